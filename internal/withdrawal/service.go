package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/notification"
	"github.com/petnest/settlement/internal/wallet"
)

// Wallets is the slice of the wallet store the workflow drives.
type Wallets interface {
	GetOrCreate(ctx context.Context, ownerID string) (wallet.Wallet, error)
	Reserve(ctx context.Context, walletID string, amount int64, reference string) (wallet.Mutation, error)
	Release(ctx context.Context, walletID string, amount int64, reference string) (wallet.Mutation, error)
	DebitPending(ctx context.Context, walletID string, amount int64, reference string) (wallet.Mutation, error)
}

// Limits bounds the amount of a single withdrawal request.
type Limits struct {
	MinAmount int64
	MaxAmount int64
}

// Service runs the withdrawal state machine. Every transition is one unit:
// the version-checked withdrawal update and the matching wallet operation
// commit or roll back together.
type Service struct {
	repo     Repository
	wallets  Wallets
	tx       infra.Transactor
	notifier notification.Notifier
	limits   Limits
	fees     FeeSchedule
	policy   infra.RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithRetryPolicy overrides the conflict retry bounds.
func WithRetryPolicy(p infra.RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the withdrawal workflow.
func NewService(
	repo Repository,
	wallets Wallets,
	tx infra.Transactor,
	notifier notification.Notifier,
	limits Limits,
	fees FeeSchedule,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:     repo,
		wallets:  wallets,
		tx:       tx,
		notifier: notifier,
		limits:   limits,
		fees:     fees,
		policy:   infra.DefaultRetryPolicy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is a provider's cash-out request.
type CreateInput struct {
	ProviderID string
	Amount     int64
	Bank       Bank
}

// Create validates the request, reserves the amount and stores a PENDING withdrawal.
func (s *Service) Create(ctx context.Context, in CreateInput) (Withdrawal, error) {
	if _, err := uuid.Parse(in.ProviderID); err != nil {
		return Withdrawal{}, apperrors.Invalid("provider_id", "must be a UUID")
	}
	if in.Amount < s.limits.MinAmount {
		return Withdrawal{}, apperrors.Invalid("amount", fmt.Sprintf("must be at least %d", s.limits.MinAmount))
	}
	if s.limits.MaxAmount > 0 && in.Amount > s.limits.MaxAmount {
		return Withdrawal{}, apperrors.Invalid("amount", fmt.Sprintf("must be at most %d", s.limits.MaxAmount))
	}
	if in.Amount <= 0 {
		return Withdrawal{}, apperrors.Invalid("amount", "must be positive")
	}
	bank := in.Bank.normalized()
	if err := bank.validate(); err != nil {
		return Withdrawal{}, err
	}
	fee := s.fees.Fee(in.Amount)
	if in.Amount-fee <= 0 {
		return Withdrawal{}, apperrors.Invalid("amount", "does not cover the withdrawal fee")
	}

	wal, err := s.wallets.GetOrCreate(ctx, in.ProviderID)
	if err != nil {
		return Withdrawal{}, fmt.Errorf("resolve wallet: %w", err)
	}

	now := s.now()
	w := Withdrawal{
		ID:         uuid.NewString(),
		Code:       "WD" + ulid.Make().String(),
		WalletID:   wal.ID,
		ProviderID: in.ProviderID,
		Amount:     in.Amount,
		Fee:        fee,
		NetAmount:  in.Amount - fee,
		Status:     StatusPending,
		Bank:       bank,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = infra.RetryOnConflict(ctx, s.policy, s.logger, "withdrawal.create", func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.wallets.Reserve(ctx, w.WalletID, w.Amount, w.Code); err != nil {
				return err
			}
			return s.repo.Create(ctx, w)
		})
	})
	if err != nil {
		s.logger.WarnContext(ctx, "withdrawal request refused",
			slog.String("provider_id", in.ProviderID),
			slog.Int64("amount", in.Amount),
			slog.Any("error", err),
		)
		return Withdrawal{}, fmt.Errorf("create withdrawal: %w", err)
	}

	s.logger.InfoContext(ctx, "withdrawal requested",
		slog.String("withdrawal_id", w.ID),
		slog.String("code", w.Code),
		slog.String("provider_id", w.ProviderID),
		slog.Int64("amount", w.Amount),
		slog.Int64("fee", w.Fee),
	)
	s.publish(ctx, w, "")
	return w, nil
}

// Get returns a withdrawal by identifier.
func (s *Service) Get(ctx context.Context, id string) (Withdrawal, error) {
	return s.repo.Get(ctx, id)
}

// List pages through withdrawals, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Withdrawal, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.Invalid("status", "unknown withdrawal status "+string(filter.Status))
	}
	if filter.ProviderID != "" && !infra.IsUUID(filter.ProviderID) {
		return nil, 0, apperrors.Invalid("provider_id", "must be a UUID")
	}
	return s.repo.List(ctx, filter)
}

// Approve moves a PENDING withdrawal to APPROVED.
func (s *Service) Approve(ctx context.Context, id, adminID, note string) (Withdrawal, error) {
	return s.transition(ctx, transitionStep{
		id:      id,
		adminID: adminID,
		to:      StatusApproved,
		apply:   func(w *Withdrawal) { w.AdminNote = strings.TrimSpace(note) },
	})
}

// StartProcessing marks an APPROVED withdrawal as being transferred by the bank.
func (s *Service) StartProcessing(ctx context.Context, id, adminID string) (Withdrawal, error) {
	return s.transition(ctx, transitionStep{id: id, adminID: adminID, to: StatusProcessing})
}

// Complete records a successful bank transfer and permanently debits the
// reserved funds. Completing an already COMPLETED withdrawal is a no-op.
func (s *Service) Complete(ctx context.Context, id, adminID, transactionRef string) (Withdrawal, error) {
	ref := strings.TrimSpace(transactionRef)
	if ref == "" {
		return Withdrawal{}, apperrors.Invalid("transaction_ref", "required")
	}
	return s.transition(ctx, transitionStep{
		id:         id,
		adminID:    adminID,
		to:         StatusCompleted,
		idempotent: true,
		apply:      func(w *Withdrawal) { w.TransactionRef = ref },
		money: func(ctx context.Context, w Withdrawal) error {
			_, err := s.wallets.DebitPending(ctx, w.WalletID, w.Amount, w.Code)
			return err
		},
	})
}

// Reject refuses a PENDING withdrawal and returns the reserved funds.
func (s *Service) Reject(ctx context.Context, id, adminID, reason string) (Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Withdrawal{}, apperrors.Invalid("reason", "required")
	}
	return s.transition(ctx, transitionStep{
		id:      id,
		adminID: adminID,
		to:      StatusRejected,
		apply:   func(w *Withdrawal) { w.RejectionReason = reason },
		money:   s.release,
	})
}

// Fail records a failed payout and returns the reserved funds.
func (s *Service) Fail(ctx context.Context, id, adminID, reason string) (Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Withdrawal{}, apperrors.Invalid("reason", "required")
	}
	return s.transition(ctx, transitionStep{
		id:      id,
		adminID: adminID,
		to:      StatusFailed,
		apply:   func(w *Withdrawal) { w.FailureReason = reason },
		money:   s.release,
	})
}

func (s *Service) release(ctx context.Context, w Withdrawal) error {
	_, err := s.wallets.Release(ctx, w.WalletID, w.Amount, w.Code)
	return err
}

type transitionStep struct {
	id         string
	adminID    string
	to         Status
	idempotent bool
	apply      func(*Withdrawal)
	money      func(ctx context.Context, w Withdrawal) error
}

func (s *Service) transition(ctx context.Context, step transitionStep) (Withdrawal, error) {
	if strings.TrimSpace(step.adminID) == "" {
		return Withdrawal{}, apperrors.Invalid("admin_id", "required")
	}

	var (
		result  Withdrawal
		from    Status
		changed bool
	)
	err := infra.RetryOnConflict(ctx, s.policy, s.logger, "withdrawal."+strings.ToLower(string(step.to)), func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			current, err := s.repo.Get(ctx, step.id)
			if err != nil {
				return err
			}
			if step.idempotent && current.Status == step.to {
				result, changed = current, false
				return nil
			}
			if !CanTransition(current.Status, step.to) {
				return fmt.Errorf("%s -> %s: %w", current.Status, step.to, apperrors.ErrInvalidStateTransition)
			}

			now := s.now()
			next := current
			next.Status = step.to
			next.ProcessedBy = step.adminID
			next.ProcessedAt = &now
			next.Version = current.Version + 1
			next.UpdatedAt = now
			if step.apply != nil {
				step.apply(&next)
			}
			if err := s.repo.Update(ctx, next, current.Version); err != nil {
				return err
			}
			if step.money != nil {
				if err := step.money(ctx, next); err != nil {
					return err
				}
			}
			result, from, changed = next, current.Status, true
			return nil
		})
	})
	if err != nil {
		level := slog.LevelWarn
		if !errors.Is(err, apperrors.ErrInvalidStateTransition) && !errors.Is(err, apperrors.ErrNotFound) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "withdrawal transition failed",
			slog.String("withdrawal_id", step.id),
			slog.String("to", string(step.to)),
			slog.String("admin_id", step.adminID),
			slog.Any("error", err),
		)
		return Withdrawal{}, fmt.Errorf("withdrawal %s: %w", step.id, err)
	}

	if changed {
		s.logger.InfoContext(ctx, "withdrawal transitioned",
			slog.String("withdrawal_id", result.ID),
			slog.String("code", result.Code),
			slog.String("from", string(from)),
			slog.String("to", string(result.Status)),
			slog.String("admin_id", step.adminID),
		)
		s.publish(ctx, result, from)
	}
	return result, nil
}

func (s *Service) publish(ctx context.Context, w Withdrawal, from Status) {
	reason := w.RejectionReason
	if w.Status == StatusFailed {
		reason = w.FailureReason
	}
	notification.Publish(ctx, s.notifier, s.logger, notification.KindWithdrawalStatusChanged, w.ProviderID, w.Code,
		notification.WithdrawalStatusChanged{
			WithdrawalID: w.ID,
			Code:         w.Code,
			ProviderID:   w.ProviderID,
			From:         string(from),
			To:           string(w.Status),
			Amount:       w.Amount,
			NetAmount:    w.NetAmount,
			Reason:       reason,
			OccurredAt:   w.UpdatedAt,
		})
}

package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/ledger"
)

// Service is the only component allowed to change wallet balances. Every
// mutation updates the wallet row with a version check and appends exactly one
// ledger entry inside the same unit.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	tx     infra.Transactor
	policy infra.RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithRetryPolicy overrides the conflict retry bounds.
func WithRetryPolicy(p infra.RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a wallet service instance.
func NewService(repo Repository, led ledger.Ledger, tx infra.Transactor, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		ledger: led,
		tx:     tx,
		policy: infra.DefaultRetryPolicy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mutation is the outcome of a balance change.
type Mutation struct {
	Wallet Wallet
	Entry  ledger.Entry
}

// CreditInput captures a credit to a wallet's spendable balance.
type CreditInput struct {
	WalletID    string
	Amount      int64
	Type        ledger.Type
	BookingID   string
	Reference   string
	Description string
}

// GetOrCreate returns the owner's wallet, provisioning an empty one on first access.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (Wallet, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return Wallet{}, apperrors.Invalid("owner_id", "must be a UUID")
	}

	w, err := s.repo.GetByOwner(ctx, ownerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return Wallet{}, err
	}

	now := s.now()
	w, err = s.repo.Create(ctx, Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Wallet{}, err
	}
	s.logger.InfoContext(ctx, "wallet provisioned", slog.String("wallet_id", w.ID), slog.String("owner_id", ownerID))
	return w, nil
}

// Get retrieves a wallet by identifier.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner retrieves the wallet owned by ownerID.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Balance returns the current funds of a wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Available: w.Balance, Pending: w.PendingBalance, AsOf: s.now()}, nil
}

// Credit adds money to the spendable balance and records a COMPLETED entry.
func (s *Service) Credit(ctx context.Context, in CreditInput) (Mutation, error) {
	if err := validAmount(in.Amount); err != nil {
		return Mutation{}, err
	}
	switch in.Type {
	case ledger.TypeDeposit, ledger.TypeServiceProviderEarning, ledger.TypeSystemAdjustment:
	default:
		return Mutation{}, apperrors.Invalid("type", fmt.Sprintf("%q cannot be credited", in.Type))
	}

	return s.mutate(ctx, "credit", in.WalletID, Wallet.credit, in.Amount, ledger.Entry{
		BookingID:   in.BookingID,
		Reference:   in.Reference,
		Amount:      in.Amount,
		Type:        in.Type,
		Status:      ledger.StatusCompleted,
		Description: in.Description,
	})
}

// Reserve moves amount from balance to pending balance.
func (s *Service) Reserve(ctx context.Context, walletID string, amount int64, reference string) (Mutation, error) {
	if err := validAmount(amount); err != nil {
		return Mutation{}, err
	}
	return s.mutate(ctx, "reserve", walletID, Wallet.reserve, amount, ledger.Entry{
		Reference:   reference,
		Amount:      -amount,
		Type:        ledger.TypeSystemAdjustment,
		Status:      ledger.StatusPending,
		Description: "funds reserved for withdrawal",
	})
}

// Release returns reserved funds to the spendable balance.
func (s *Service) Release(ctx context.Context, walletID string, amount int64, reference string) (Mutation, error) {
	if err := validAmount(amount); err != nil {
		return Mutation{}, err
	}
	return s.mutate(ctx, "release", walletID, Wallet.release, amount, ledger.Entry{
		Reference:   reference,
		Amount:      amount,
		Type:        ledger.TypeSystemAdjustment,
		Status:      ledger.StatusPending,
		Description: "reserved funds released",
	})
}

// DebitPending permanently removes reserved funds and records a COMPLETED withdrawal.
func (s *Service) DebitPending(ctx context.Context, walletID string, amount int64, reference string) (Mutation, error) {
	if err := validAmount(amount); err != nil {
		return Mutation{}, err
	}
	return s.mutate(ctx, "debit_pending", walletID, Wallet.debitPending, amount, ledger.Entry{
		Reference:   reference,
		Amount:      -amount,
		Type:        ledger.TypeWithdrawal,
		Status:      ledger.StatusCompleted,
		Description: "withdrawal paid out",
	})
}

func (s *Service) mutate(
	ctx context.Context,
	op string,
	walletID string,
	apply func(Wallet, int64) (Wallet, error),
	amount int64,
	entry ledger.Entry,
) (Mutation, error) {
	var result Mutation
	err := infra.RetryOnConflict(ctx, s.policy, s.logger, "wallet."+op, func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			current, err := s.repo.Get(ctx, walletID)
			if err != nil {
				return err
			}
			next, err := apply(current, amount)
			if err != nil {
				return err
			}
			now := s.now()
			next.Version = current.Version + 1
			next.UpdatedAt = now
			if err := s.repo.Update(ctx, next, current.Version); err != nil {
				return err
			}

			e := entry
			e.ID = uuid.NewString()
			e.WalletID = walletID
			e.CreatedAt = now
			if err := s.ledger.Append(ctx, e); err != nil {
				return err
			}
			result = Mutation{Wallet: next, Entry: e}
			return nil
		})
	})
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, apperrors.ErrInsufficientFunds) || errors.Is(err, apperrors.ErrNotFound) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "wallet mutation failed",
			slog.String("op", op),
			slog.String("wallet_id", walletID),
			slog.Int64("amount", amount),
			slog.Any("error", err),
		)
		return Mutation{}, fmt.Errorf("wallet %s: %w", op, err)
	}

	s.logger.DebugContext(ctx, "wallet mutated",
		slog.String("op", op),
		slog.String("wallet_id", walletID),
		slog.Int64("balance", result.Wallet.Balance),
		slog.Int64("pending_balance", result.Wallet.PendingBalance),
		slog.String("entry_id", result.Entry.ID),
	)
	return result, nil
}

// Transactions pages through the wallet's ledger.
func (s *Service) Transactions(ctx context.Context, walletID string, filter ledger.Filter) (ledger.Page, error) {
	if _, err := s.repo.Get(ctx, walletID); err != nil {
		return ledger.Page{}, err
	}
	filter.WalletID = walletID
	return s.ledger.Query(ctx, filter)
}

// AuditReport compares a wallet's stored total with its replayed ledger.
type AuditReport struct {
	WalletID string
	Stored   int64
	Replayed int64
}

// Consistent reports whether the replay matches the stored balances.
func (r AuditReport) Consistent() bool {
	return r.Stored == r.Replayed
}

// Audit replays every COMPLETED entry of the wallet from zero.
func (s *Service) Audit(ctx context.Context, walletID string) (AuditReport, error) {
	w, err := s.repo.Get(ctx, walletID)
	if err != nil {
		return AuditReport{}, err
	}

	report := AuditReport{WalletID: walletID, Stored: w.Total()}
	filter := ledger.Filter{WalletID: walletID, Statuses: []ledger.Status{ledger.StatusCompleted}, Limit: 500}
	for {
		page, err := s.ledger.Query(ctx, filter)
		if err != nil {
			return AuditReport{}, err
		}
		report.Replayed += ledger.Replay(page.Entries)
		filter.Offset += len(page.Entries)
		if len(page.Entries) == 0 || filter.Offset >= page.Total {
			break
		}
	}

	if !report.Consistent() {
		s.logger.ErrorContext(ctx, "wallet ledger drift",
			slog.String("wallet_id", walletID),
			slog.Int64("stored", report.Stored),
			slog.Int64("replayed", report.Replayed),
		)
	}
	return report, nil
}

func validAmount(amount int64) error {
	if amount <= 0 {
		return apperrors.Invalid("amount", "must be positive")
	}
	return nil
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/booking"
	"github.com/petnest/settlement/internal/gateway"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/ledger"
	"github.com/petnest/settlement/internal/notification"
	"github.com/petnest/settlement/internal/wallet"
)

// Wallets is the slice of the wallet store reconciliation credits through.
type Wallets interface {
	GetOrCreate(ctx context.Context, ownerID string) (wallet.Wallet, error)
	Credit(ctx context.Context, in wallet.CreditInput) (wallet.Mutation, error)
}

type registeredAdapter struct {
	adapter gateway.Adapter
	secret  string
}

// Service reconciles gateway callbacks against registered payments. A
// callback is applied at most once: the receipt claim, the payment update and
// the wallet credit commit in one unit.
type Service struct {
	repo       Repository
	bookings   booking.Service
	wallets    Wallets
	tx         infra.Transactor
	notifier   notification.Notifier
	commission decimal.Decimal
	adapters   map[gateway.Provider]registeredAdapter
	policy     infra.RetryPolicy
	logger     *slog.Logger
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithAdapter registers a gateway adapter and the secret its callbacks are signed with.
func WithAdapter(a gateway.Adapter, secret string) Option {
	return func(s *Service) {
		s.adapters[a.Provider()] = registeredAdapter{adapter: a, secret: secret}
	}
}

// WithRetryPolicy overrides the conflict retry bounds.
func WithRetryPolicy(p infra.RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires payment reconciliation. commission is the platform's share
// of each settled payment, between 0 and 1.
func NewService(
	repo Repository,
	bookings booking.Service,
	wallets Wallets,
	tx infra.Transactor,
	notifier notification.Notifier,
	commission decimal.Decimal,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:       repo,
		bookings:   bookings,
		wallets:    wallets,
		tx:         tx,
		notifier:   notifier,
		commission: commission,
		adapters:   make(map[gateway.Provider]registeredAdapter),
		policy:     infra.DefaultRetryPolicy,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenInput registers a checkout with a gateway.
type OpenInput struct {
	BookingID       string
	Provider        gateway.Provider
	TransactionCode string
	Amount          int64
}

// OpenPayment records the PENDING payment a later callback settles. Opening
// the same provider and code again with identical details returns the
// existing payment.
func (s *Service) OpenPayment(ctx context.Context, in OpenInput) (Payment, error) {
	if _, ok := s.adapters[in.Provider]; !ok {
		return Payment{}, apperrors.Invalid("provider", fmt.Sprintf("unsupported gateway %q", in.Provider))
	}
	code := strings.TrimSpace(in.TransactionCode)
	if code == "" {
		return Payment{}, apperrors.Invalid("transaction_code", "required")
	}
	if in.Amount <= 0 {
		return Payment{}, apperrors.Invalid("amount", "must be positive")
	}
	if _, err := s.bookings.Get(ctx, in.BookingID); err != nil {
		return Payment{}, fmt.Errorf("open payment: %w", err)
	}

	now := s.now()
	p, err := s.repo.Create(ctx, Payment{
		ID:              uuid.NewString(),
		BookingID:       in.BookingID,
		Provider:        in.Provider,
		TransactionCode: code,
		Amount:          in.Amount,
		Status:          StatusPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Payment{}, fmt.Errorf("open payment: %w", err)
	}
	if p.BookingID != in.BookingID || p.Amount != in.Amount {
		return Payment{}, apperrors.Invalid("transaction_code", "already used by another payment")
	}
	s.logger.InfoContext(ctx, "payment opened",
		slog.String("payment_id", p.ID),
		slog.String("booking_id", p.BookingID),
		slog.String("provider", string(p.Provider)),
		slog.String("transaction_code", p.TransactionCode),
		slog.Int64("amount", p.Amount),
	)
	return p, nil
}

// Get returns the payment registered under provider and code.
func (s *Service) Get(ctx context.Context, provider gateway.Provider, code string) (Payment, error) {
	return s.repo.GetByCode(ctx, provider, code)
}

// Result describes how a callback was handled and what to answer the gateway.
type Result struct {
	Outcome  gateway.Outcome
	Payment  Payment
	Credited int64
	Ack      gateway.Ack
}

// HandleCallback verifies, resolves and applies one inbound gateway callback.
// The returned Result always carries the acknowledgement to send, including
// when err is non-nil.
func (s *Service) HandleCallback(ctx context.Context, provider gateway.Provider, channel gateway.Channel, payload gateway.Payload) (Result, error) {
	reg, ok := s.adapters[provider]
	if !ok {
		return Result{Outcome: gateway.OutcomeError}, apperrors.Invalid("provider", fmt.Sprintf("unsupported gateway %q", provider))
	}
	log := s.logger.With(slog.String("provider", string(provider)), slog.String("channel", string(channel)))

	respond := func(outcome gateway.Outcome, p Payment, credited int64, err error) (Result, error) {
		res := Result{Outcome: outcome, Payment: p, Credited: credited, Ack: reg.adapter.Acknowledge(outcome)}
		if err != nil {
			level := slog.LevelWarn
			if outcome == gateway.OutcomeError {
				level = slog.LevelError
			}
			log.Log(ctx, level, "callback rejected",
				slog.String("outcome", string(outcome)),
				slog.String("transaction_code", p.TransactionCode),
				slog.Any("error", err),
			)
		}
		return res, err
	}

	if !reg.adapter.VerifySignature(payload, reg.secret) {
		return respond(gateway.OutcomeInvalidSignature, Payment{}, 0, apperrors.ErrInvalidSignature)
	}
	cb, err := reg.adapter.ParseCallback(payload)
	if err != nil {
		return respond(gateway.OutcomeInvalidPayload, Payment{}, 0, fmt.Errorf("parse callback: %w", err))
	}

	payment, err := s.repo.GetByCode(ctx, provider, cb.TransactionCode)
	if errors.Is(err, apperrors.ErrNotFound) {
		return respond(gateway.OutcomeNotFound, Payment{TransactionCode: cb.TransactionCode}, 0,
			fmt.Errorf("%s %s: %w", provider, cb.TransactionCode, apperrors.ErrUnknownTransaction))
	}
	if err != nil {
		return respond(gateway.OutcomeError, Payment{TransactionCode: cb.TransactionCode}, 0, err)
	}
	if cb.Amount != payment.Amount {
		return respond(gateway.OutcomeInvalidAmount, payment, 0,
			fmt.Errorf("callback %d, payment %d: %w", cb.Amount, payment.Amount, apperrors.ErrAmountMismatch))
	}
	if payment.Status.Terminal() {
		return respond(gateway.OutcomeAlreadyConfirmed, payment, 0, nil)
	}

	var walletID string
	if cb.Success {
		b, err := s.bookings.Get(ctx, payment.BookingID)
		if err != nil {
			return respond(gateway.OutcomeError, payment, 0, fmt.Errorf("resolve booking: %w", err))
		}
		w, err := s.wallets.GetOrCreate(ctx, b.ProviderID)
		if err != nil {
			return respond(gateway.OutcomeError, payment, 0, fmt.Errorf("resolve provider wallet: %w", err))
		}
		walletID = w.ID
	}

	var (
		settled   Payment
		credited  int64
		duplicate bool
	)
	err = infra.RetryOnConflict(ctx, s.policy, s.logger, "reconcile.apply", func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			now := s.now()
			claimed, err := s.repo.ClaimCallback(ctx, Receipt{
				ID:              uuid.NewString(),
				Provider:        provider,
				TransactionCode: cb.TransactionCode,
				Channel:         channel,
				ResponseCode:    cb.ResponseCode,
				ReceivedAt:      now,
			})
			if err != nil {
				return err
			}
			current, err := s.repo.Get(ctx, payment.ID)
			if err != nil {
				return err
			}
			if !claimed || current.Status.Terminal() {
				settled, credited, duplicate = current, 0, true
				return nil
			}

			next := current
			next.ResponseCode = cb.ResponseCode
			next.ProviderTxID = cb.ProviderTxID
			next.Version = current.Version + 1
			next.UpdatedAt = now
			var amount int64
			if cb.Success {
				next.Status = StatusCompleted
				next.PaidAt = &now
				amount = s.providerShare(current.Amount)
			} else {
				next.Status = StatusFailed
			}
			if err := s.repo.Update(ctx, next, current.Version); err != nil {
				return err
			}
			if amount > 0 {
				_, err := s.wallets.Credit(ctx, wallet.CreditInput{
					WalletID:    walletID,
					Amount:      amount,
					Type:        ledger.TypeServiceProviderEarning,
					BookingID:   current.BookingID,
					Reference:   string(provider) + ":" + current.TransactionCode,
					Description: "booking payment settled",
				})
				if err != nil {
					return err
				}
			}
			settled, credited, duplicate = next, amount, false
			return nil
		})
	})
	if err != nil {
		return respond(gateway.OutcomeError, payment, 0, fmt.Errorf("apply callback: %w", err))
	}
	if duplicate {
		log.Info("duplicate callback ignored",
			slog.String("transaction_code", cb.TransactionCode),
			slog.String("status", string(settled.Status)),
		)
		return respond(gateway.OutcomeAlreadyConfirmed, settled, 0, nil)
	}

	log.Info("payment reconciled",
		slog.String("payment_id", settled.ID),
		slog.String("transaction_code", settled.TransactionCode),
		slog.String("status", string(settled.Status)),
		slog.String("response_code", settled.ResponseCode),
		slog.Int64("credited", credited),
	)
	s.afterCommit(ctx, settled, credited)
	return respond(gateway.OutcomeConfirmed, settled, credited, nil)
}

func (s *Service) afterCommit(ctx context.Context, p Payment, credited int64) {
	var providerID string
	if p.Status == StatusCompleted {
		if err := s.bookings.MarkSettled(ctx, p.BookingID); err != nil {
			s.logger.ErrorContext(ctx, "booking settlement failed",
				slog.String("booking_id", p.BookingID),
				slog.String("payment_id", p.ID),
				slog.Any("error", err),
			)
		}
		if b, err := s.bookings.Get(ctx, p.BookingID); err == nil {
			providerID = b.ProviderID
		}
	}
	notification.Publish(ctx, s.notifier, s.logger, notification.KindPaymentSettled, providerID, p.TransactionCode,
		notification.PaymentSettled{
			PaymentID:       p.ID,
			BookingID:       p.BookingID,
			ProviderID:      providerID,
			Gateway:         string(p.Provider),
			TransactionCode: p.TransactionCode,
			Status:          string(p.Status),
			Amount:          p.Amount,
			Credited:        credited,
			OccurredAt:      p.UpdatedAt,
		})
}

// providerShare is the payment amount minus the platform commission,
// rounded half-up to whole đồng.
func (s *Service) providerShare(amount int64) int64 {
	fee := s.commission.Mul(decimal.NewFromInt(amount)).Round(0).IntPart()
	return amount - fee
}

package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/booking"
	"github.com/petnest/settlement/internal/gateway"
	"github.com/petnest/settlement/internal/gateway/vnpay"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/ledger"
	"github.com/petnest/settlement/internal/logging"
	"github.com/petnest/settlement/internal/testutil"
	"github.com/petnest/settlement/internal/wallet"
)

func TestPostgresDuplicateIPNCreditsOnce(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()

	tx := infra.NewPostgresTransactor(pool)
	led := ledger.NewPostgresLedger(pool)
	policy := infra.RetryPolicy{MaxAttempts: 10, BaseDelay: time.Millisecond}
	wallets := wallet.NewService(wallet.NewPostgresRepository(pool), led, tx, logging.Discard(), wallet.WithRetryPolicy(policy))
	bookings := booking.NewPostgresService(pool)
	svc := NewService(NewPostgresRepository(pool), bookings, wallets, tx, &recordingNotifier{},
		decimal.RequireFromString("0.1"), logging.Discard(),
		WithAdapter(vnpay.New(), vnpaySecret),
		WithRetryPolicy(policy),
	)

	providerID := uuid.NewString()
	bookingID := uuid.NewString()
	require.NoError(t, bookings.Create(ctx, booking.Booking{ID: bookingID, ProviderID: providerID, TotalAmount: 300_000, CreatedAt: time.Now()}))
	_, err := svc.OpenPayment(ctx, OpenInput{BookingID: bookingID, Provider: gateway.ProviderVNPay, TransactionCode: "PG1", Amount: 300_000})
	require.NoError(t, err)

	var confirmed atomic.Int32
	var g errgroup.Group
	for range 5 {
		g.Go(func() error {
			res, err := svc.HandleCallback(ctx, gateway.ProviderVNPay, gateway.ChannelIPN, vnpayPayload("PG1", 300_000, "00"))
			if res.Outcome == gateway.OutcomeConfirmed {
				confirmed.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, confirmed.Load())

	w, err := wallets.GetByOwner(ctx, providerID)
	require.NoError(t, err)
	require.EqualValues(t, 270_000, w.Balance)

	page, err := led.Query(ctx, ledger.Filter{WalletID: w.ID, Types: []ledger.Type{ledger.TypeServiceProviderEarning}})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, bookingID, page.Entries[0].BookingID)

	p, err := svc.Get(ctx, gateway.ProviderVNPay, "PG1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, p.Status)

	b, err := bookings.Get(ctx, bookingID)
	require.NoError(t, err)
	require.Equal(t, booking.PaymentStatusPaid, b.PaymentStatus)
}

func TestPostgresClaimCallbackIsUnique(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()

	receipt := Receipt{ID: uuid.NewString(), Provider: gateway.ProviderPayOS, TransactionCode: "42", Channel: gateway.ChannelWebhook, ReceivedAt: time.Now()}
	claimed, err := repo.ClaimCallback(ctx, receipt)
	require.NoError(t, err)
	require.True(t, claimed)

	receipt.ID = uuid.NewString()
	claimed, err = repo.ClaimCallback(ctx, receipt)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestPostgresMalformedIDsAreNotFound(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := NewPostgresRepository(pool).Get(ctx, "not-a-uuid")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = booking.NewPostgresService(pool).Get(ctx, "BK-1")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

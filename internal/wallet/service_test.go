package wallet

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/ledger"
	"github.com/petnest/settlement/internal/logging"
)

func newTestService(t *testing.T) (*Service, ledger.Ledger) {
	t.Helper()
	led := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), led, infra.NewMemoryTransactor(), logging.Discard())
	return svc, led
}

func fundedWallet(t *testing.T, svc *Service, amount int64) Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := svc.GetOrCreate(ctx, uuid.NewString())
	require.NoError(t, err)
	if amount > 0 {
		_, err = svc.Credit(ctx, CreditInput{
			WalletID:  w.ID,
			Amount:    amount,
			Type:      ledger.TypeDeposit,
			Reference: "seed",
		})
		require.NoError(t, err)
	}
	w, err = svc.Get(ctx, w.ID)
	require.NoError(t, err)
	return w
}

func TestGetOrCreateReturnsSameWallet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.NewString()

	first, err := svc.GetOrCreate(ctx, owner)
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, owner)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Zero(t, first.Balance)
	require.Zero(t, first.PendingBalance)
}

func TestGetOrCreateConcurrentFirstAccess(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.NewString()

	ids := make([]string, 10)
	var g errgroup.Group
	for i := range ids {
		g.Go(func() error {
			w, err := svc.GetOrCreate(context.Background(), owner)
			ids[i] = w.ID
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestGetOrCreateRejectsMalformedOwner(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetOrCreate(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreditRecordsCompletedEntry(t *testing.T) {
	svc, _ := newTestService(t)
	w := fundedWallet(t, svc, 0)

	m, err := svc.Credit(context.Background(), CreditInput{
		WalletID:    w.ID,
		Amount:      90_000,
		Type:        ledger.TypeServiceProviderEarning,
		BookingID:   uuid.NewString(),
		Reference:   "VNP-1",
		Description: "booking settled",
	})
	require.NoError(t, err)
	require.EqualValues(t, 90_000, m.Wallet.Balance)
	require.Equal(t, ledger.StatusCompleted, m.Entry.Status)
	require.Equal(t, ledger.TypeServiceProviderEarning, m.Entry.Type)
	require.EqualValues(t, 90_000, m.Entry.Amount)
	require.Equal(t, w.Version+1, m.Wallet.Version)
}

func TestCreditValidation(t *testing.T) {
	svc, _ := newTestService(t)
	w := fundedWallet(t, svc, 0)
	ctx := context.Background()

	_, err := svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: 0, Type: ledger.TypeDeposit})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: 10, Type: ledger.TypeWithdrawal})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Credit(ctx, CreditInput{WalletID: uuid.NewString(), Amount: 10, Type: ledger.TypeDeposit})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreditRefusesOverflow(t *testing.T) {
	svc, led := newTestService(t)
	w := fundedWallet(t, svc, 0)
	ctx := context.Background()

	_, err := svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: math.MaxInt64 - 5, Type: ledger.TypeDeposit})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, w.ID, 100, "hold")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: 10, Type: ledger.TypeDeposit})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = svc.Release(ctx, w.ID, 100, "hold")
	require.NoError(t, err)

	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, math.MaxInt64-5, got.Balance)
	require.Zero(t, got.PendingBalance)

	page, err := led.Query(ctx, ledger.Filter{WalletID: w.ID, Statuses: []ledger.Status{ledger.StatusCompleted}})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
}

func TestReserveReleaseDebit(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	w := fundedWallet(t, svc, 100_000)

	m, err := svc.Reserve(ctx, w.ID, 50_000, "WD1")
	require.NoError(t, err)
	require.EqualValues(t, 50_000, m.Wallet.Balance)
	require.EqualValues(t, 50_000, m.Wallet.PendingBalance)
	require.Equal(t, ledger.StatusPending, m.Entry.Status)

	m, err = svc.Release(ctx, w.ID, 20_000, "WD1")
	require.NoError(t, err)
	require.EqualValues(t, 70_000, m.Wallet.Balance)
	require.EqualValues(t, 30_000, m.Wallet.PendingBalance)

	m, err = svc.DebitPending(ctx, w.ID, 30_000, "WD1")
	require.NoError(t, err)
	require.EqualValues(t, 70_000, m.Wallet.Balance)
	require.Zero(t, m.Wallet.PendingBalance)
	require.Equal(t, ledger.TypeWithdrawal, m.Entry.Type)
	require.EqualValues(t, -30_000, m.Entry.Amount)

	page, err := led.Query(ctx, ledger.Filter{WalletID: w.ID})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)
	require.EqualValues(t, 70_000, ledger.Replay(page.Entries))
}

func TestInsufficientFundsLeavesStateUntouched(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	w := fundedWallet(t, svc, 10_000)

	_, err := svc.Reserve(ctx, w.ID, 10_001, "WD1")
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	_, err = svc.DebitPending(ctx, w.ID, 1, "WD1")
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	_, err = svc.Release(ctx, w.ID, 1, "WD1")
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	after, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, w, after)

	page, err := led.Query(ctx, ledger.Filter{WalletID: w.ID})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
}

func TestConcurrentReservesOnlyOneWins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := fundedWallet(t, svc, 10_000)

	errs := make([]error, 2)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			_, errs[i] = svc.Reserve(ctx, w.ID, 8_000, "WD-race")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, short)

	bal, err := svc.Balance(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2_000, bal.Available)
	require.EqualValues(t, 8_000, bal.Pending)
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := fundedWallet(t, svc, 0)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 300; i++ {
		amount := rng.Int63n(20_000) + 1
		var err error
		switch rng.Intn(4) {
		case 0:
			_, err = svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: amount, Type: ledger.TypeServiceProviderEarning})
		case 1:
			_, err = svc.Reserve(ctx, w.ID, amount, "seq")
		case 2:
			_, err = svc.Release(ctx, w.ID, amount, "seq")
		case 3:
			_, err = svc.DebitPending(ctx, w.ID, amount, "seq")
		}
		if err != nil {
			require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
		}

		current, err := svc.Get(ctx, w.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, current.Balance, int64(0))
		require.GreaterOrEqual(t, current.PendingBalance, int64(0))
	}

	report, err := svc.Audit(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, report.Consistent(), "stored %d replayed %d", report.Stored, report.Replayed)
}

func TestAuditPagesThroughLongLedgers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := fundedWallet(t, svc, 0)

	for i := 0; i < 620; i++ {
		_, err := svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: 10, Type: ledger.TypeDeposit})
		require.NoError(t, err)
	}
	report, err := svc.Audit(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 6_200, report.Replayed)
	require.True(t, report.Consistent())
}

func TestNestedUnitRollsBackWalletAndLedger(t *testing.T) {
	led := ledger.NewInMemory()
	tx := infra.NewMemoryTransactor()
	svc := NewService(NewMemoryRepository(), led, tx, logging.Discard())
	ctx := context.Background()
	w := fundedWallet(t, svc, 10_000)

	boom := errors.New("later step failed")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.Reserve(ctx, w.ID, 5_000, "WD1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10_000, after.Balance)
	require.Zero(t, after.PendingBalance)

	page, err := led.Query(ctx, ledger.Filter{WalletID: w.ID})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
}

func TestTransactionsFiltersByWallet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := fundedWallet(t, svc, 1_000)
	fundedWallet(t, svc, 2_000)

	page, err := svc.Transactions(ctx, a.ID, ledger.Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, a.ID, page.Entries[0].WalletID)

	_, err = svc.Transactions(ctx, uuid.NewString(), ledger.Filter{})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

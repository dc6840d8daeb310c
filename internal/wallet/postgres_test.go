package wallet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/ledger"
	"github.com/petnest/settlement/internal/logging"
	"github.com/petnest/settlement/internal/testutil"
)

func TestPostgresRepositoryVersionGuard(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()

	w, err := repo.Create(ctx, Wallet{ID: uuid.NewString(), OwnerID: uuid.NewString(), Version: 1})
	require.NoError(t, err)

	next := w
	next.Balance = 500
	next.Version = 2
	require.NoError(t, repo.Update(ctx, next, 1))

	stale := w
	stale.Balance = 900
	stale.Version = 2
	err = repo.Update(ctx, stale, 1)
	require.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)

	got, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 500, got.Balance)
	require.EqualValues(t, 2, got.Version)

	_, err = repo.Get(ctx, uuid.NewString())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repo.Get(ctx, "not-a-uuid")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repo.GetByOwner(ctx, "not-a-uuid")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresConcurrentReservesStayConsistent(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	svc := NewService(NewPostgresRepository(pool), ledger.NewPostgresLedger(pool), infra.NewPostgresTransactor(pool),
		logging.Discard(), WithRetryPolicy(infra.RetryPolicy{MaxAttempts: 20, BaseDelay: time.Millisecond}))
	ctx := context.Background()

	w, err := svc.GetOrCreate(ctx, uuid.NewString())
	require.NoError(t, err)
	_, err = svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: 10_000, Type: ledger.TypeDeposit, Reference: "seed"})
	require.NoError(t, err)

	var g errgroup.Group
	for i := range 10 {
		g.Go(func() error {
			_, err := svc.Reserve(ctx, w.ID, 1_000, fmt.Sprintf("hold-%d", i))
			return err
		})
	}
	require.NoError(t, g.Wait())

	bal, err := svc.Balance(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, bal.Available)
	require.EqualValues(t, 10_000, bal.Pending)

	_, err = svc.Reserve(ctx, w.ID, 1, "overdraw")
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	report, err := svc.Audit(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, report.Consistent())
}

func TestPostgresCompletedEntriesAreImmutable(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	svc := NewService(NewPostgresRepository(pool), ledger.NewPostgresLedger(pool), infra.NewPostgresTransactor(pool), logging.Discard())
	ctx := context.Background()

	w, err := svc.GetOrCreate(ctx, uuid.NewString())
	require.NoError(t, err)
	m, err := svc.Credit(ctx, CreditInput{WalletID: w.ID, Amount: 2_500, Type: ledger.TypeDeposit, Reference: "seed"})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE wallet_transactions SET amount = 1 WHERE id = $1`, m.Entry.ID)
	require.Error(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM wallet_transactions WHERE id = $1`, m.Entry.ID)
	require.Error(t, err)
}

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/testutil"
)

var errRollback = errors.New("rollback")

func TestPostgresLedger_QueryFiltersAndOrders(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	l := NewPostgresLedger(pool)

	walletID := uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO wallets (id, owner_id) VALUES ($1, $2)`, walletID, uuid.NewString())
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, l.Append(ctx, entryAt(walletID, 100_000, TypeServiceProviderEarning, StatusCompleted, base)))
	require.NoError(t, l.Append(ctx, entryAt(walletID, -40_000, TypeSystemAdjustment, StatusPending, base.Add(time.Hour))))
	require.NoError(t, l.Append(ctx, entryAt(walletID, -40_000, TypeWithdrawal, StatusCompleted, base.Add(2*time.Hour))))

	all, err := l.Query(ctx, Filter{WalletID: walletID, Order: OrderNewestFirst})
	require.NoError(t, err)
	require.Equal(t, 3, all.Total)
	require.Equal(t, TypeWithdrawal, all.Entries[0].Type)
	require.EqualValues(t, 60_000, Replay(all.Entries))

	completed, err := l.Query(ctx, Filter{WalletID: walletID, Statuses: []Status{StatusCompleted}, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 2, completed.Total)
	require.Len(t, completed.Entries, 1)
	require.Equal(t, TypeServiceProviderEarning, completed.Entries[0].Type)

	window, err := l.Query(ctx, Filter{WalletID: walletID, From: base.Add(time.Hour), To: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, 1, window.Total)
	require.Equal(t, StatusPending, window.Entries[0].Status)
}

func TestPostgresLedger_AppendJoinsUnit(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	l := NewPostgresLedger(pool)
	tx := infra.NewPostgresTransactor(pool)

	walletID := uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO wallets (id, owner_id) VALUES ($1, $2)`, walletID, uuid.NewString())
	require.NoError(t, err)

	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, l.Append(ctx, entryAt(walletID, 5_000, TypeDeposit, StatusCompleted, time.Now())))
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	page, err := l.Query(ctx, Filter{WalletID: walletID})
	require.NoError(t, err)
	require.Zero(t, page.Total)
}

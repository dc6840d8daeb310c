package wallet_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/ledger"
	"github.com/petnest/settlement/internal/logging"
	"github.com/petnest/settlement/internal/wallet"
	"github.com/petnest/settlement/internal/wallet/mocks"
)

var fastRetry = infra.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

func TestCreditRetriesOnVersionConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	led := ledger.NewInMemory()
	svc := wallet.NewService(repo, led, infra.NewMemoryTransactor(), logging.Discard(), wallet.WithRetryPolicy(fastRetry))

	id := uuid.NewString()
	stale := wallet.Wallet{ID: id, Balance: 100, Version: 1}
	fresh := wallet.Wallet{ID: id, Balance: 150, Version: 2}
	conflict := fmt.Errorf("update: %w", apperrors.ErrConcurrencyConflict)

	gomock.InOrder(
		repo.EXPECT().Get(gomock.Any(), id).Return(stale, nil),
		repo.EXPECT().Update(gomock.Any(), gomock.Any(), int64(1)).Return(conflict),
		repo.EXPECT().Get(gomock.Any(), id).Return(fresh, nil),
		repo.EXPECT().Update(gomock.Any(), gomock.Any(), int64(2)).DoAndReturn(
			func(_ context.Context, next wallet.Wallet, _ int64) error {
				require.EqualValues(t, 160, next.Balance)
				require.EqualValues(t, 3, next.Version)
				return nil
			}),
	)

	m, err := svc.Credit(context.Background(), wallet.CreditInput{WalletID: id, Amount: 10, Type: ledger.TypeDeposit})
	require.NoError(t, err)
	require.EqualValues(t, 160, m.Wallet.Balance)

	page, err := led.Query(context.Background(), ledger.Filter{WalletID: id})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
}

func TestCreditSurfacesConflictAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	led := ledger.NewInMemory()
	svc := wallet.NewService(repo, led, infra.NewMemoryTransactor(), logging.Discard(), wallet.WithRetryPolicy(fastRetry))

	id := uuid.NewString()
	repo.EXPECT().Get(gomock.Any(), id).Return(wallet.Wallet{ID: id, Version: 4}, nil).Times(fastRetry.MaxAttempts)
	repo.EXPECT().Update(gomock.Any(), gomock.Any(), int64(4)).Return(apperrors.ErrConcurrencyConflict).Times(fastRetry.MaxAttempts)

	_, err := svc.Credit(context.Background(), wallet.CreditInput{WalletID: id, Amount: 10, Type: ledger.TypeDeposit})
	require.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)

	page, err := led.Query(context.Background(), ledger.Filter{WalletID: id})
	require.NoError(t, err)
	require.Zero(t, page.Total)
}

func TestInsufficientFundsIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	svc := wallet.NewService(repo, ledger.NewInMemory(), infra.NewMemoryTransactor(), logging.Discard(), wallet.WithRetryPolicy(fastRetry))

	id := uuid.NewString()
	repo.EXPECT().Get(gomock.Any(), id).Return(wallet.Wallet{ID: id, Balance: 5, Version: 1}, nil).Times(1)

	_, err := svc.Reserve(context.Background(), id, 10, "WD1")
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
}

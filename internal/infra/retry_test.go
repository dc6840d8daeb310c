package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/logging"
)

var fastPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: time.Microsecond}

func TestRetryOnConflictSucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), fastPolicy, logging.Discard(), "test", func() error {
		calls++
		if calls < 3 {
			return apperrors.ErrConcurrencyConflict
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryOnConflictGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), fastPolicy, logging.Discard(), "test", func() error {
		calls++
		return apperrors.ErrConcurrencyConflict
	})

	require.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
	require.Equal(t, fastPolicy.MaxAttempts, calls)
}

func TestRetryOnConflictDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), fastPolicy, logging.Discard(), "test", func() error {
		calls++
		return apperrors.ErrInsufficientFunds
	})

	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	require.Equal(t, 1, calls)
}

func TestRetryOnConflictInsideUnitRunsOnce(t *testing.T) {
	calls := 0
	tx := NewMemoryTransactor()
	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return RetryOnConflict(ctx, fastPolicy, logging.Discard(), "test", func() error {
			calls++
			return apperrors.ErrConcurrencyConflict
		})
	})

	require.True(t, errors.Is(err, apperrors.ErrConcurrencyConflict))
	require.Equal(t, 1, calls)
}

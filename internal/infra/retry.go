package infra

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/petnest/settlement/internal/apperrors"
)

// RetryPolicy bounds the retry loop around optimistic-lock conflicts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is used when a service is built without an explicit policy.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}

// RetryOnConflict runs fn until it succeeds, fails with an error other than
// apperrors.ErrConcurrencyConflict, or the attempts are exhausted. When ctx is
// already inside a unit, fn runs once and the enclosing unit owns the retry.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func() error) error {
	if InTx(ctx) {
		return fn()
	}
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.BaseDelay
	expo.MaxInterval = policy.BaseDelay * 16
	expo.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(policy.MaxAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil || errors.Is(err, apperrors.ErrConcurrencyConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		if logger != nil {
			logger.WarnContext(ctx, "retrying after conflict",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		}
	})
}

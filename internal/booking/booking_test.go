package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/petnest/settlement/internal/apperrors"
)

func TestMemoryServiceMarkSettledKeepsFirstTimestamp(t *testing.T) {
	svc := NewMemoryService()
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, svc.Create(ctx, Booking{ID: id, ProviderID: uuid.NewString(), TotalAmount: 100_000, CreatedAt: time.Now()}))

	b, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, PaymentStatusUnpaid, b.PaymentStatus)
	require.Nil(t, b.SettledAt)

	require.NoError(t, svc.MarkSettled(ctx, id))
	first, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPaid, first.PaymentStatus)
	require.NotNil(t, first.SettledAt)

	require.NoError(t, svc.MarkSettled(ctx, id))
	second, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, *first.SettledAt, *second.SettledAt)
}

func TestMemoryServiceUnknownBooking(t *testing.T) {
	svc := NewMemoryService()
	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.ErrorIs(t, svc.MarkSettled(context.Background(), "missing"), apperrors.ErrNotFound)
}

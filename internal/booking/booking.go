// Package booking is the settlement side of the booking service: it reads the
// provider a booking pays and records when its payment has settled.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
)

const (
	PaymentStatusUnpaid = "UNPAID"
	PaymentStatusPaid   = "PAID"
)

// Booking is the subset of a booking settlement needs.
type Booking struct {
	ID            string
	ProviderID    string
	TotalAmount   int64
	PaymentStatus string
	SettledAt     *time.Time
	CreatedAt     time.Time
}

// Service is the booking collaborator used by reconciliation.
type Service interface {
	Get(ctx context.Context, id string) (Booking, error)
	MarkSettled(ctx context.Context, id string) error
}

// PostgresService reads and settles bookings in PostgreSQL.
type PostgresService struct {
	db *pgxpool.Pool
}

// NewPostgresService builds a booking collaborator backed by PostgreSQL.
func NewPostgresService(db *pgxpool.Pool) *PostgresService {
	return &PostgresService{db: db}
}

// Get fetches a booking by identifier.
func (s *PostgresService) Get(ctx context.Context, id string) (Booking, error) {
	if !infra.IsUUID(id) {
		return Booking{}, fmt.Errorf("booking %s: %w", id, apperrors.ErrNotFound)
	}
	var (
		b         Booking
		settledAt *time.Time
	)
	err := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT id, provider_id, total_amount, payment_status, settled_at, created_at
        FROM bookings WHERE id = $1`, id).
		Scan(&b.ID, &b.ProviderID, &b.TotalAmount, &b.PaymentStatus, &settledAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, fmt.Errorf("booking: %w", apperrors.ErrNotFound)
		}
		return Booking{}, fmt.Errorf("get booking: %w", err)
	}
	b.SettledAt = settledAt
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// MarkSettled flags the booking as paid. Settling twice keeps the first timestamp.
func (s *PostgresService) MarkSettled(ctx context.Context, id string) error {
	if !infra.IsUUID(id) {
		return fmt.Errorf("booking %s: %w", id, apperrors.ErrNotFound)
	}
	cmd, err := infra.Conn(ctx, s.db).Exec(ctx, `UPDATE bookings
        SET payment_status = $1, settled_at = COALESCE(settled_at, NOW())
        WHERE id = $2`, PaymentStatusPaid, id)
	if err != nil {
		return fmt.Errorf("settle booking %s: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// Create inserts a booking. The booking service owns this table; settlement
// only writes rows in local development and tests.
func (s *PostgresService) Create(ctx context.Context, b Booking) error {
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentStatusUnpaid
	}
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `INSERT INTO bookings (id, provider_id, total_amount, payment_status, created_at)
        VALUES ($1, $2, $3, $4, $5)`, b.ID, b.ProviderID, b.TotalAmount, b.PaymentStatus, b.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// MemoryService keeps bookings in memory for tests and local development.
type MemoryService struct {
	mu       sync.RWMutex
	bookings map[string]Booking
	now      func() time.Time
}

// NewMemoryService constructs an empty in-memory booking collaborator.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		bookings: make(map[string]Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a booking.
func (s *MemoryService) Create(_ context.Context, b Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentStatusUnpaid
	}
	s.bookings[b.ID] = b
	return nil
}

// Get fetches a booking by identifier.
func (s *MemoryService) Get(_ context.Context, id string) (Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, fmt.Errorf("booking: %w", apperrors.ErrNotFound)
	}
	return b, nil
}

// MarkSettled flags the booking as paid.
func (s *MemoryService) MarkSettled(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, apperrors.ErrNotFound)
	}
	b.PaymentStatus = PaymentStatusPaid
	if b.SettledAt == nil {
		now := s.now()
		b.SettledAt = &now
	}
	s.bookings[id] = b
	return nil
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/gateway"
	"github.com/petnest/settlement/internal/infra"
)

// Repository persists payments and callback receipts.
type Repository interface {
	// Create inserts p, or returns the payment already registered under the
	// same provider and transaction code.
	Create(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, id string) (Payment, error)
	GetByCode(ctx context.Context, provider gateway.Provider, code string) (Payment, error)
	Update(ctx context.Context, next Payment, expectedVersion int64) error
	// ClaimCallback records r and reports false when a receipt for the same
	// provider and transaction code already exists.
	ClaimCallback(ctx context.Context, r Receipt) (bool, error)
}

// PostgresRepository stores payments in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `id, booking_id, provider, transaction_code, amount, status, response_code,
        provider_tx_id, paid_at, version, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, p Payment) (Payment, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `INSERT INTO payments (`+paymentColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (provider, transaction_code) DO NOTHING
        RETURNING `+paymentColumns,
		p.ID, p.BookingID, string(p.Provider), p.TransactionCode, p.Amount, string(p.Status), p.ResponseCode,
		p.ProviderTxID, p.PaidAt, p.Version, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	created, err := scanPayment(row)
	if errors.Is(err, apperrors.ErrNotFound) {
		return r.GetByCode(ctx, p.Provider, p.TransactionCode)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Payment, error) {
	if !infra.IsUUID(id) {
		return Payment{}, fmt.Errorf("payment %s: %w", id, apperrors.ErrNotFound)
	}
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *PostgresRepository) GetByCode(ctx context.Context, provider gateway.Provider, code string) (Payment, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
        WHERE provider = $1 AND transaction_code = $2`, string(provider), code)
	return scanPayment(row)
}

func (r *PostgresRepository) Update(ctx context.Context, next Payment, expectedVersion int64) error {
	cmd, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE payments
        SET status = $1, response_code = $2, provider_tx_id = $3, paid_at = $4, version = $5, updated_at = $6
        WHERE id = $7 AND version = $8`,
		string(next.Status), next.ResponseCode, next.ProviderTxID, next.PaidAt, next.Version, next.UpdatedAt.UTC(),
		next.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", next.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("payment %s version %d: %w", next.ID, expectedVersion, apperrors.ErrConcurrencyConflict)
	}
	return nil
}

func (r *PostgresRepository) ClaimCallback(ctx context.Context, rc Receipt) (bool, error) {
	cmd, err := infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO payment_callbacks
        (id, provider, transaction_code, channel, response_code, received_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (provider, transaction_code) DO NOTHING`,
		rc.ID, string(rc.Provider), rc.TransactionCode, string(rc.Channel), rc.ResponseCode, rc.ReceivedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("claim callback: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p                    Payment
		provider, status     string
		paidAt               *time.Time
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&p.ID, &p.BookingID, &provider, &p.TransactionCode, &p.Amount, &status, &p.ResponseCode,
		&p.ProviderTxID, &paidAt, &p.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, fmt.Errorf("payment: %w", apperrors.ErrNotFound)
		}
		return Payment{}, err
	}
	p.Provider = gateway.Provider(provider)
	p.Status = Status(status)
	if paidAt != nil {
		t := paidAt.UTC()
		p.PaidAt = &t
	}
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}

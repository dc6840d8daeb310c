package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

// Repository persists wallet rows. Update is a compare-and-update on Version
// and returns apperrors.ErrConcurrencyConflict when the stored version moved.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) (Wallet, error)
	Get(ctx context.Context, id string) (Wallet, error)
	GetByOwner(ctx context.Context, ownerID string) (Wallet, error)
	Update(ctx context.Context, next Wallet, expectedVersion int64) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, owner_id, balance, pending_balance, version, created_at, updated_at`

// Create inserts a wallet, or returns the owner's existing wallet when another
// request created it first.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) (Wallet, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `INSERT INTO wallets (`+walletColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (owner_id) DO NOTHING
        RETURNING `+walletColumns,
		wallet.ID, wallet.OwnerID, wallet.Balance, wallet.PendingBalance, wallet.Version,
		wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	created, err := scanWallet(row)
	if errors.Is(err, apperrors.ErrNotFound) {
		return r.GetByOwner(ctx, wallet.OwnerID)
	}
	if err != nil {
		return Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return created, nil
}

// Get fetches a wallet by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	if !infra.IsUUID(id) {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, apperrors.ErrNotFound)
	}
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

// GetByOwner fetches the wallet owned by ownerID.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	if !infra.IsUUID(ownerID) {
		return Wallet{}, fmt.Errorf("wallet owner %s: %w", ownerID, apperrors.ErrNotFound)
	}
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, ownerID)
	return scanWallet(row)
}

// Update writes next if the stored version still equals expectedVersion.
func (r *PostgresRepository) Update(ctx context.Context, next Wallet, expectedVersion int64) error {
	cmd, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE wallets
        SET balance = $1, pending_balance = $2, version = $3, updated_at = $4
        WHERE id = $5 AND version = $6`,
		next.Balance, next.PendingBalance, next.Version, next.UpdatedAt.UTC(), next.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", next.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s version %d: %w", next.ID, expectedVersion, apperrors.ErrConcurrencyConflict)
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                    Wallet
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.PendingBalance, &w.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, fmt.Errorf("wallet: %w", apperrors.ErrNotFound)
		}
		return Wallet{}, err
	}
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

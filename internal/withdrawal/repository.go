package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
)

// Repository persists withdrawals. Update is a compare-and-update on Version.
type Repository interface {
	Create(ctx context.Context, w Withdrawal) error
	Get(ctx context.Context, id string) (Withdrawal, error)
	Update(ctx context.Context, next Withdrawal, expectedVersion int64) error
	List(ctx context.Context, filter Filter) ([]Withdrawal, int, error)
}

// PostgresRepository stores withdrawals in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const withdrawalColumns = `id, code, wallet_id, provider_id, amount, fee, net_amount, status,
        bank_code, bank_name, account_number, account_holder,
        admin_note, processed_by, processed_at, transaction_ref, rejection_reason, failure_reason,
        version, created_at, updated_at`

// Create inserts a new withdrawal row.
func (r *PostgresRepository) Create(ctx context.Context, w Withdrawal) error {
	_, err := infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO withdrawals (`+withdrawalColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		w.ID, w.Code, w.WalletID, w.ProviderID, w.Amount, w.Fee, w.NetAmount, string(w.Status),
		w.Bank.Code, w.Bank.Name, w.Bank.AccountNumber, w.Bank.HolderName,
		w.AdminNote, w.ProcessedBy, w.ProcessedAt, w.TransactionRef, w.RejectionReason, w.FailureReason,
		w.Version, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// Get fetches a withdrawal by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Withdrawal, error) {
	if !infra.IsUUID(id) {
		return Withdrawal{}, fmt.Errorf("withdrawal %s: %w", id, apperrors.ErrNotFound)
	}
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	return scanWithdrawal(row)
}

// Update writes next if the stored version still equals expectedVersion.
func (r *PostgresRepository) Update(ctx context.Context, next Withdrawal, expectedVersion int64) error {
	cmd, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE withdrawals
        SET status = $1, admin_note = $2, processed_by = $3, processed_at = $4, transaction_ref = $5,
            rejection_reason = $6, failure_reason = $7, version = $8, updated_at = $9
        WHERE id = $10 AND version = $11`,
		string(next.Status), next.AdminNote, next.ProcessedBy, next.ProcessedAt, next.TransactionRef,
		next.RejectionReason, next.FailureReason, next.Version, next.UpdatedAt.UTC(), next.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update withdrawal %s: %w", next.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal %s version %d: %w", next.ID, expectedVersion, apperrors.ErrConcurrencyConflict)
	}
	return nil
}

// List returns one page of withdrawals, newest first, and the total match count.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Withdrawal, int, error) {
	filter = filter.normalized()

	var (
		where []string
		args  []any
	)
	if filter.ProviderID != "" {
		args = append(args, filter.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := infra.Conn(ctx, r.db)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM withdrawals%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		withdrawalColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func scanWithdrawal(row pgx.Row) (Withdrawal, error) {
	var (
		w                    Withdrawal
		status               string
		processedAt          *time.Time
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&w.ID, &w.Code, &w.WalletID, &w.ProviderID, &w.Amount, &w.Fee, &w.NetAmount, &status,
		&w.Bank.Code, &w.Bank.Name, &w.Bank.AccountNumber, &w.Bank.HolderName,
		&w.AdminNote, &w.ProcessedBy, &processedAt, &w.TransactionRef, &w.RejectionReason, &w.FailureReason,
		&w.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Withdrawal{}, fmt.Errorf("withdrawal: %w", apperrors.ErrNotFound)
		}
		return Withdrawal{}, err
	}
	w.Status = Status(status)
	if processedAt != nil {
		t := processedAt.UTC()
		w.ProcessedAt = &t
	}
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petnest/settlement/internal/infra"
)

// PostgresLedger persists wallet transactions in PostgreSQL. Append joins the
// caller's transaction when one is bound to the context.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Append inserts one entry.
func (l *PostgresLedger) Append(ctx context.Context, entry Entry) error {
	if !entry.Type.Valid() {
		return fmt.Errorf("unknown entry type %q", entry.Type)
	}

	var bookingID *string
	if entry.BookingID != "" {
		bookingID = &entry.BookingID
	}
	_, err := infra.Conn(ctx, l.db).Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_id, booking_id, reference, amount, type, status, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.WalletID, bookingID, entry.Reference, entry.Amount,
		string(entry.Type), string(entry.Status), entry.Description, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Query returns the entries matching filter along with the total match count.
func (l *PostgresLedger) Query(ctx context.Context, filter Filter) (Page, error) {
	filter = filter.normalized()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.WalletID != "" {
		where = append(where, "wallet_id = "+arg(filter.WalletID))
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= "+arg(filter.From.UTC()))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at < "+arg(filter.To.UTC()))
	}
	if len(filter.Types) > 0 {
		where = append(where, "type = ANY("+arg(toStrings(filter.Types))+")")
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(toStrings(filter.Statuses))+")")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := infra.Conn(ctx, l.db)

	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM wallet_transactions"+clause, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count ledger entries: %w", err)
	}

	direction := "ASC"
	if filter.Order == OrderNewestFirst {
		direction = "DESC"
	}
	query := `SELECT id, wallet_id, booking_id, reference, amount, type, status, description, created_at
        FROM wallet_transactions` + clause +
		fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT %s OFFSET %s", direction, direction, arg(filter.Limit), arg(filter.Offset))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	page := Page{Total: total, Entries: []Entry{}}
	for rows.Next() {
		var (
			e         Entry
			bookingID *string
			typ       string
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.WalletID, &bookingID, &e.Reference, &e.Amount, &typ, &status, &e.Description, &createdAt); err != nil {
			return Page{}, fmt.Errorf("scan ledger entry: %w", err)
		}
		if bookingID != nil {
			e.BookingID = *bookingID
		}
		e.Type = Type(typ)
		e.Status = Status(status)
		e.CreatedAt = createdAt.UTC()
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return page, nil
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

package infra

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Transactor runs fn as one atomic unit. Calls nested inside an active unit
// join it instead of opening a new one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}
type memTxKey struct{}

// PostgresTransactor opens a pgx transaction and carries it in the context so
// repositories participate through Conn.
type PostgresTransactor struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactor builds a transactor over the pool.
func NewPostgresTransactor(pool *pgxpool.Pool) *PostgresTransactor {
	return &PostgresTransactor{pool: pool}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Conn returns the transaction bound to ctx, or the pool when none is active.
func Conn(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// MemoryTransactor serializes units over the in-memory repositories and
// replays registered undo steps when a unit fails.
type MemoryTransactor struct {
	mu sync.Mutex
}

// NewMemoryTransactor builds a transactor for the in-memory backends.
func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

type memTx struct {
	undo []func()
}

// WithinTx runs fn under the unit lock.
func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	unit := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, unit)); err != nil {
		for i := len(unit.undo) - 1; i >= 0; i-- {
			unit.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers an undo step for the memory unit bound to ctx. Outside
// a unit it is a no-op.
func OnRollback(ctx context.Context, undo func()) {
	if unit, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		unit.undo = append(unit.undo, undo)
	}
}

// InTx reports whether ctx already carries an active unit of either kind.
func InTx(ctx context.Context) bool {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return true
	}
	_, ok := ctx.Value(memTxKey{}).(*memTx)
	return ok
}

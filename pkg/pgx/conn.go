package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of *pgx.Conn and *pgxpool.Pool used by the sink,
// so either a single connection or a pool can back it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Begin starts a transaction. The context only affects the begin command;
	// there is no auto-rollback on context cancellation.
	Begin(ctx context.Context) (pgx.Tx, error)
}

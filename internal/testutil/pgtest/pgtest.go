// Package pgtest provides PostgreSQL helpers for integration tests.
// Tests using it are skipped unless TEST_DATABASE holds a connection string.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

const EnvDatabase = "TEST_DATABASE"

// ConnString returns TEST_DATABASE or skips the test.
func ConnString(t testing.TB) string {
	t.Helper()
	s := os.Getenv(EnvDatabase)
	if s == "" {
		t.Skipf("%s not set", EnvDatabase)
	}
	return s
}

// Connect opens a connection that is closed when the test ends.
func Connect(ctx context.Context, t testing.TB) *pgx.Conn {
	t.Helper()
	config, err := pgx.ParseConfig(ConnString(t))
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, conn.Close(ctx))
	})
	return conn
}

// TempTable returns a table name unique to the test and drops it on cleanup.
func TempTable(t testing.TB, conn *pgx.Conn, prefix string) string {
	t.Helper()
	name := prefix + "_" + time.Now().UTC().Format("20060102150405") + "_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{name}.Sanitize())
		require.NoError(t, err)
	})
	return name
}

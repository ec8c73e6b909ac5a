package store

import (
	"context"
	"errors"
	"testing"

	"github.com/edgeflare/threatflow/pkg/pipeline/transform"
	pg "github.com/edgeflare/threatflow/pkg/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	execErr    error
	commitErr  error
	sql        string
	args       []any
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.sql = sql
	tx.args = args
	if tx.execErr != nil {
		return pgconn.CommandTag{}, tx.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}

type fakeConn struct {
	pg.Conn
	tx       *fakeTx
	beginErr error
	ddl      string
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.ddl = sql
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func record(t *testing.T) transform.Record {
	t.Helper()
	ts, err := transform.ParseDate("2025-03-01T12:30:45")
	require.NoError(t, err)
	return transform.Record{
		AttackTypes:    []string{"Malware"},
		AttackVectors:  []string{"Email"},
		Urgency:        []string{"Hot", "Critical"},
		Targets:        []string{"UserFocused"},
		Locations:      []string{"Germany"},
		ExpirationDate: ts,
	}
}

func TestPersist(t *testing.T) {
	tx := &fakeTx{}
	sink := NewSink(&fakeConn{tx: tx}, "", "", nil)

	r := record(t)
	require.NoError(t, sink.Persist(context.Background(), r))

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Equal(t,
		`INSERT INTO "public"."enriched_records" ("attack_types", "attack_vectors", "urgency", "targets", "locations", "expiration_date") VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.sql)
	assert.Equal(t, []any{
		`["Malware"]`, `["Email"]`, `["Hot","Critical"]`, `["UserFocused"]`, `["Germany"]`, r.ExpirationDate,
	}, tx.args)
}

func TestPersistEmptyRecord(t *testing.T) {
	tx := &fakeTx{}
	sink := NewSink(&fakeConn{tx: tx}, "events", "intel", nil)

	require.NoError(t, sink.Persist(context.Background(), transform.Record{}))
	assert.Contains(t, tx.sql, `"intel"."events"`)
	assert.Equal(t, []any{`[]`, `[]`, `[]`, `[]`, `[]`}, tx.args[:5])
	assert.Equal(t, pgtype.Timestamp{}, tx.args[5], "absent expiration is NULL")
}

func TestPersistFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		conn         *fakeConn
		wantRollback bool
	}{
		{"begin", &fakeConn{beginErr: boom, tx: &fakeTx{}}, false},
		{"exec", &fakeConn{tx: &fakeTx{execErr: boom}}, true},
		{"commit", &fakeConn{tx: &fakeTx{commitErr: boom}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewSink(tt.conn, "", "", nil)
			err := sink.Persist(context.Background(), record(t))
			assert.ErrorIs(t, err, ErrPersist)
			assert.ErrorIs(t, err, boom)
			assert.False(t, tt.conn.tx.committed)
			assert.Equal(t, tt.wantRollback, tt.conn.tx.rolledBack)
		})
	}
}

func TestEnsureTable(t *testing.T) {
	conn := &fakeConn{}
	sink := NewSink(conn, "enriched_records", "", nil)

	require.NoError(t, sink.EnsureTable(context.Background()))
	assert.Contains(t, conn.ddl, `CREATE TABLE IF NOT EXISTS "public"."enriched_records"`)
	assert.Contains(t, conn.ddl, "expiration_date TIMESTAMP")
}

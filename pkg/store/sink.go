// Package store persists normalized threat records into PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edgeflare/threatflow/pkg/pipeline/transform"
	pg "github.com/edgeflare/threatflow/pkg/pgx"
	"go.uber.org/zap"
)

const DefaultTable = "enriched_records"

var ErrPersist = errors.New("persist record")

var columns = []string{"attack_types", "attack_vectors", "urgency", "targets", "locations", "expiration_date"}

// Sink inserts one row per record, each in its own transaction.
type Sink struct {
	conn   pg.Conn
	logger *zap.Logger
	table  string
	schema string
}

// NewSink returns a Sink writing to table (DefaultTable when empty) in schema (public when empty).
func NewSink(conn pg.Conn, table, schema string, logger *zap.Logger) *Sink {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{conn: conn, table: table, schema: schema, logger: logger}
}

// Persist writes r as a single row and commits. Nothing is written when it returns an error.
func (s *Sink) Persist(ctx context.Context, r transform.Record) (err error) {
	values, err := rowValues(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersist, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			s.logger.Warn("rollback failed", zap.String("table", s.table), zap.Error(rbErr))
		}
	}()

	if err := pg.InsertRow(ctx, tx, s.table, columns, values, s.schema); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersist, err)
	}

	s.logger.Debug("record persisted", zap.String("table", s.table))
	return nil
}

// EnsureTable creates the target table if it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	attack_types JSONB NOT NULL,
	attack_vectors JSONB NOT NULL,
	urgency JSONB NOT NULL,
	targets JSONB NOT NULL,
	locations JSONB NOT NULL,
	expiration_date TIMESTAMP
)`, pg.TableIdentifier(s.table, s.schema))

	if _, err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// rowValues returns the insert arguments in column order. Array fields are
// bound as JSON text; a nil slice is written as [].
func rowValues(r transform.Record) ([]any, error) {
	values := make([]any, 0, len(columns))
	for _, field := range [][]string{r.AttackTypes, r.AttackVectors, r.Urgency, r.Targets, r.Locations} {
		if field == nil {
			field = []string{}
		}
		data, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		values = append(values, string(data))
	}
	return append(values, r.ExpirationDate), nil
}

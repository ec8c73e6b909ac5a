package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

var ErrColumnMismatch = errors.New("pgx: number of columns and values differ")

type queryBuilder struct {
	schema    string
	table     string
	columns   []string
	values    []any
	nextIndex int
}

func newQueryBuilder(tableName string, schema ...string) *queryBuilder {
	schemaName := "public"
	if len(schema) > 0 && schema[0] != "" {
		schemaName = schema[0]
	}
	return &queryBuilder{
		schema:    schemaName,
		table:     tableName,
		nextIndex: 1,
	}
}

func (qb *queryBuilder) addValue(column string, value any) {
	qb.columns = append(qb.columns, pgx.Identifier{column}.Sanitize())
	qb.values = append(qb.values, value)
}

func (qb *queryBuilder) placeholders() string {
	ph := make([]string, len(qb.values))
	for i := range qb.values {
		ph[i] = fmt.Sprintf("$%d", qb.nextIndex)
		qb.nextIndex++
	}
	return strings.Join(ph, ", ")
}

func (qb *queryBuilder) tableIdentifier() string {
	return pgx.Identifier{qb.schema, qb.table}.Sanitize()
}

// TableIdentifier returns the quoted schema-qualified name of tableName.
// The schema defaults to public.
func TableIdentifier(tableName string, schema ...string) string {
	return newQueryBuilder(tableName, schema...).tableIdentifier()
}

// InsertQuery builds a parameterized INSERT statement with columns in the given order.
func InsertQuery(tableName string, columns []string, schema ...string) string {
	qb := newQueryBuilder(tableName, schema...)
	for _, c := range columns {
		qb.addValue(c, nil)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		qb.tableIdentifier(),
		strings.Join(qb.columns, ", "),
		qb.placeholders(),
	)
}

// InsertRow inserts one row, binding values positionally to columns.
func InsertRow(ctx context.Context, conn Conn, tableName string, columns []string, values []any, schema ...string) error {
	if len(columns) != len(values) {
		return ErrColumnMismatch
	}

	if _, err := conn.Exec(ctx, InsertQuery(tableName, columns, schema...), values...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

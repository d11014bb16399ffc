// Package pgstore persists users, projects and tasks in PostgreSQL.
//
// Stores run their statements through a [DB], normally a
// *postgres.Client, so every call is traced and every error carries a
// taskhub error code. Missing rows are reported as not-found errors and
// unique violations as conflicts.
package pgstore

import (
	"context"
	_ "embed"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/StricklySoft/taskhub/pkg/clients/postgres"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// DB is the query surface the stores need.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DB = (*postgres.Client)(nil)

//go:embed schema.sql
var schema string

// Migrate creates the tables and indexes that do not exist yet. It is safe
// to run on every start.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements() {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// schemaStatements splits the schema into single statements. The schema
// holds no function bodies, so a semicolon always ends a statement.
func schemaStatements() []string {
	var out []string
	for _, s := range strings.Split(schema, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// listPage runs a count query and a page query and assembles the result.
// The page query receives LIMIT and OFFSET as its last two arguments.
func listPage[T any](
	ctx context.Context,
	db DB,
	countSQL, listSQL string,
	scan pgx.RowToFunc[T],
	req models.PageRequest,
	args ...any,
) (models.Page[T], error) {
	req = req.Normalize()

	var total int64
	if err := db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return models.Page[T]{}, postgres.WrapScanError(err, "pgstore: count failed")
	}
	if total == 0 {
		return models.NewPage[T](nil, req, 0), nil
	}

	listArgs := append(append([]any{}, args...), req.Size, req.Offset())
	rows, err := db.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return models.Page[T]{}, postgres.WrapScanError(err, "pgstore: list query failed")
	}
	items, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return models.Page[T]{}, postgres.WrapScanError(err, "pgstore: reading rows failed")
	}
	return models.NewPage(items, req, total), nil
}

// escapeLike escapes the LIKE wildcards in a user-supplied search term.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

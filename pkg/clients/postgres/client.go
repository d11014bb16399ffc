// Package postgres wraps a pgx connection pool with OpenTelemetry spans and
// taskhub error codes.
//
// Create a client with [NewClient]:
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("TASKHUB_POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// For tests, inject a pgxmock pool with [NewFromPool].
//
// Every error returned by the client is an *sserr.Error:
//   - [sserr.CodeTimeoutDatabase] when the context expired or was cancelled
//   - [sserr.CodeConflictAlreadyExists] for unique constraint violations
//   - [sserr.CodeInternalDatabase] for everything else
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

const tracerName = "github.com/StricklySoft/taskhub/pkg/clients/postgres"

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// Pool is the subset of [*pgxpool.Pool] the client uses. pgxmock pools
// satisfy it too.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client is a traced PostgreSQL client. It is safe for concurrent use.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// NewClient validates cfg, opens a pool and pings the database.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot connect to the database
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to connect to database")
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.databaseName(),
	}, nil
}

// NewFromPool wraps an existing pool. cfg may be nil.
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.databaseName(),
	}
}

// Query runs a statement returning rows. The caller closes the rows.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)

	rows, err := c.pool.Query(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: query failed")
	}
	return rows, nil
}

// QueryRow runs a statement returning at most one row. Errors surface from
// Scan; pass them through [WrapScanError] to classify them.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()

	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)

	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Begin starts a transaction. Defer tx.Rollback right after; it is a no-op
// once committed.
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := c.startSpan(ctx, "Begin", "BEGIN")

	tx, err := c.pool.Begin(ctx)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: begin transaction failed")
	}
	return tx, nil
}

// Health pings the database, applying [DefaultHealthTimeout] when ctx has
// no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: health check failed")
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Pool returns the underlying pool.
func (c *Client) Pool() Pool {
	return c.pool
}

func (c *Client) startSpan(ctx context.Context, operation, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

// finishSpan records err, if any, and ends the span.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// WrapScanError classifies an error from scanning a QueryRow result. It
// returns nil for nil, and passes [pgx.ErrNoRows] through unchanged so
// callers can map it to their own not-found error.
func WrapScanError(err error, message string) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return wrapError(err, message)
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// wrapped or not.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// wrapError converts a database error into an *sserr.Error.
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sserr.Wrap(err, sserr.CodeConflictAlreadyExists, message).
			WithDetail("constraint", pgErr.ConstraintName)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}

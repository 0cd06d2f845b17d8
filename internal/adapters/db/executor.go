// Package db runs validated SQL against a bounded pgx connection pool
// and returns rows plus timing. Every statement carries a timeout, and
// pool acquisition blocks for at most the configured wait.
package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consumerlens/consumerlens/pkg/logger"
	"github.com/consumerlens/consumerlens/pkg/metrics"
)

// Default resource bounds, matching the values the datasets were tuned
// for in production.
const (
	DefaultMinConns         = 2
	DefaultMaxConns         = 10
	DefaultAcquireWait      = 5 * time.Second
	DefaultStatementTimeout = 60 * time.Second
)

// Config holds per-dataset execution settings.
type Config struct {
	// DSN is the Postgres connection string. It never appears in
	// errors or logs.
	DSN string

	// MinConns and MaxConns bound the pool size.
	MinConns int32
	MaxConns int32

	// AcquireWait bounds how long a caller blocks for a connection.
	AcquireWait time.Duration

	// StatementTimeout bounds a single statement's execution.
	StatementTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.MinConns <= 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.AcquireWait <= 0 {
		c.AcquireWait = DefaultAcquireWait
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
}

// RowSet is the result of one execution: column names, row values, and
// elapsed query time.
type RowSet struct {
	Columns []string
	Rows    [][]any
	Elapsed time.Duration
}

// Empty reports whether the query matched no rows.
func (rs *RowSet) Empty() bool {
	return rs == nil || len(rs.Rows) == 0
}

// Executor owns one dataset's pool.
type Executor struct {
	pool *pgxpool.Pool
	cfg  Config
	log  logger.Logger
}

// Option applies a configuration option to the Executor.
type Option func(*Executor)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// New constructs an Executor and its pool. The pool connects lazily;
// construction fails only on an unparseable DSN.
func New(ctx context.Context, cfg Config, opts ...Option) (*Executor, error) {
	cfg.withDefaults()

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid connection descriptor", ErrQueryExecution)
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQueryExecution, sanitize(err.Error()))
	}

	e := &Executor{pool: pool, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// logger returns the configured logger, falling back to the global one
// at call time so construction never forces initialization order.
func (e *Executor) logger() logger.Logger {
	if e.log != nil {
		return e.log
	}
	return logger.Get().Named("db")
}

// Close releases the pool.
func (e *Executor) Close() {
	e.pool.Close()
}

// Query runs one statement and collects all rows. Errors are mapped to
// the package sentinels; messages never contain the DSN.
func (e *Executor) Query(ctx context.Context, sql string, args ...any) (*RowSet, error) {
	acquireStart := time.Now()
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, e.cfg.AcquireWait)
	defer cancelAcquire()

	conn, err := e.pool.Acquire(acquireCtx)
	metrics.RecordPoolAcquireLatency(float64(time.Since(acquireStart).Milliseconds()))
	if err != nil {
		if acquireCtx.Err() != nil && ctx.Err() == nil {
			metrics.RecordPoolExhausted()
			return nil, fmt.Errorf("%w: no connection available within %s", ErrPoolExhausted, e.cfg.AcquireWait)
		}
		return nil, fmt.Errorf("%w: %s", ErrQueryExecution, sanitize(err.Error()))
	}
	defer conn.Release()

	queryCtx, cancelQuery := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	defer cancelQuery()

	start := time.Now()
	rows, err := conn.Query(queryCtx, sql, args...)
	if err != nil {
		return nil, e.wrapQueryErr(queryCtx, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = string(f.Name)
	}

	out := &RowSet{Columns: cols}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, e.wrapQueryErr(queryCtx, err)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, e.wrapQueryErr(queryCtx, err)
	}
	out.Elapsed = time.Since(start)
	return out, nil
}

// QueryScalar runs a statement expected to return a single numeric
// value, e.g. a population total.
func (e *Executor) QueryScalar(ctx context.Context, sql string, args ...any) (float64, error) {
	rs, err := e.Query(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if rs.Empty() || len(rs.Rows[0]) == 0 {
		return 0, nil
	}
	return ToFloat(rs.Rows[0][0]), nil
}

// wrapQueryErr distinguishes a statement timeout from other driver
// failures. On timeout pgx discards the connection for us.
func (e *Executor) wrapQueryErr(queryCtx context.Context, err error) error {
	if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
		metrics.RecordQueryTimeout()
		e.logger().Warn(queryCtx, "statement timeout", logger.String("timeout", e.cfg.StatementTimeout.String()))
		return fmt.Errorf("%w: statement exceeded %s", ErrQueryTimeout, e.cfg.StatementTimeout)
	}
	return fmt.Errorf("%w: %s", ErrQueryExecution, sanitize(err.Error()))
}

// dsnPattern matches connection URIs and key=value credentials so they
// never leak through error messages.
var dsnPattern = regexp.MustCompile(`(?i)(postgres(?:ql)?://\S+|password=\S+|user=\S+)`)

func sanitize(msg string) string {
	return dsnPattern.ReplaceAllString(msg, "[redacted]")
}

// ToFloat coerces the numeric types pgx hands back into a float64.
// NUMERIC columns arrive as pgtype values exposing Float64Value.
// Non-numeric values coerce to zero.
func ToFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int16:
		return float64(n)
	case int:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	}
	if fv, ok := v.(interface{ Float64Value() (pgtype.Float8, error) }); ok {
		if f, err := fv.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
	}
	return 0
}

// ToString renders a cell value for labels and table cells.
func ToString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

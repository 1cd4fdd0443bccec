// Package dataaccess wraps every external dependency of the engine
// behind a circuit breaker: PostgreSQL, Redis, and Kafka each get their
// own breaker so an outage in one cannot cascade into the others. All
// calls carry deadlines; a hung dependency is indistinguishable from a
// failed one.
package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/breaker"
	"github.com/kendoaustine/adela-auth/cache"
)

const defaultQueryTimeout = 30 * time.Second

// ErrNoPool is an exported constant or variable used by the authentication gateway.
// It reports that no database pool was configured; callers relying on an
// external user directory hit this only through health checks.
var ErrNoPool = errors.New("no database pool configured")

// Pool is the subset of pgxpool behavior the client needs. Satisfied by
// *pgxpool.Pool and pgxmock pools.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Config tunes the data access client.
type Config struct {
	QueryTimeout time.Duration
	DB           breaker.Config
	Cache        breaker.Config
	Broker       breaker.Config
}

// Client is the breaker-guarded access point for all engine I/O.
type Client struct {
	pool   Pool
	logger *zap.Logger

	queryTimeout time.Duration

	dbBreaker     *breaker.Breaker
	cacheBreaker  *breaker.Breaker
	brokerBreaker *breaker.Breaker

	guarded cache.Store
}

// New constructs a [Client]. The raw cache store is wrapped so every
// cache call flows through the cache breaker; callers should use
// [Client.Cache] rather than the raw store.
func New(pool Pool, raw cache.Store, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}

	c := &Client{
		pool:          pool,
		logger:        logger,
		queryTimeout:  cfg.QueryTimeout,
		dbBreaker:     breaker.New("postgres", cfg.DB, logger),
		cacheBreaker:  breaker.New("redis", cfg.Cache, logger),
		brokerBreaker: breaker.New("kafka", cfg.Broker, logger),
	}
	if raw != nil {
		c.guarded = &guardedCache{inner: raw, b: c.cacheBreaker}
	}
	return c
}

// Cache returns the breaker-guarded cache store.
func (c *Client) Cache() cache.Store { return c.guarded }

// HasPool reports whether a database pool is configured.
func (c *Client) HasPool() bool { return c.pool != nil }

// DBBreaker exposes the PostgreSQL breaker for health reporting.
func (c *Client) DBBreaker() *breaker.Breaker { return c.dbBreaker }

// CacheBreaker exposes the Redis breaker for health reporting.
func (c *Client) CacheBreaker() *breaker.Breaker { return c.cacheBreaker }

// BrokerBreaker exposes the Kafka breaker. Its Record method is wired as
// the producer's delivery error hook, so async delivery failures open it
// just like synchronous ones would.
func (c *Client) BrokerBreaker() *breaker.Breaker { return c.brokerBreaker }

// BreakerStates reports the current state of every dependency breaker.
func (c *Client) BreakerStates() map[string]breaker.State {
	return map[string]breaker.State{
		c.dbBreaker.Name():     c.dbBreaker.State(),
		c.cacheBreaker.Name():  c.cacheBreaker.State(),
		c.brokerBreaker.Name(): c.brokerBreaker.State(),
	}
}

// Exec runs a statement through the database breaker.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.pool == nil {
		return pgconn.CommandTag{}, ErrNoPool
	}
	return breaker.Do(ctx, c.dbBreaker, func(ctx context.Context) (pgconn.CommandTag, error) {
		ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
		return c.pool.Exec(ctx, sql, args...)
	})
}

// Query runs a query through the database breaker. The returned rows must
// be closed by the caller; row iteration errors after a successful start
// are not fed back into the breaker.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.pool == nil {
		return nil, ErrNoPool
	}
	return breaker.Do(ctx, c.dbBreaker, func(ctx context.Context) (pgx.Rows, error) {
		// no WithTimeout here: the deadline would cancel the rows mid-iteration
		return c.pool.Query(ctx, sql, args...)
	})
}

// QueryRow runs a single-row query. pgx defers errors to Scan, so the
// breaker outcome is recorded when the returned row is scanned. ErrNoRows
// is an answer, not an outage, and counts as success.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if c.pool == nil {
		return errRow{err: ErrNoPool}
	}
	if err := c.dbBreaker.Allow(); err != nil {
		return errRow{err: err}
	}
	return guardedRow{row: c.pool.QueryRow(ctx, sql, args...), b: c.dbBreaker}
}

// Transaction runs fn inside a transaction through the database breaker.
// fn returning an error rolls back; otherwise the transaction commits.
func (c *Client) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if c.pool == nil {
		return ErrNoPool
	}
	return c.dbBreaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()

		tx, err := c.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// Ping checks database connectivity through the breaker.
func (c *Client) Ping(ctx context.Context) error {
	if c.pool == nil {
		return ErrNoPool
	}
	return c.dbBreaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
		return c.pool.Ping(ctx)
	})
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type guardedRow struct {
	row pgx.Row
	b   *breaker.Breaker
}

func (r guardedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		r.b.Record(nil)
	} else {
		r.b.Record(err)
	}
	return err
}

var _ Pool = (*pgxpool.Pool)(nil)

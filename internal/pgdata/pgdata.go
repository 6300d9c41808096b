// Package pgdata is an optional Postgres-backed bar loader: an input-side
// collaborator for the market data store (§6.1 only covers CSV; this
// supplements it with a second source the core may be fed from). Every
// query runs through a circuit breaker so a flaky warehouse fails fast
// instead of hanging a walk-forward run.
package pgdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"backtestlab/internal/barstore"
	"backtestlab/internal/resilience"
)

// Config holds connection and retry parameters for the bar warehouse.
type Config struct {
	DSN           string
	MaxConns      int32
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns sensible defaults for a read-mostly bar warehouse.
func DefaultConfig(dsn string) Config {
	return Config{DSN: dsn, MaxConns: 10, RetryAttempts: 3, RetryDelay: time.Second}
}

// Loader wraps a pgx connection pool with a circuit breaker.
type Loader struct {
	pool    *pgxpool.Pool
	breaker *resilience.CircuitBreaker
}

// Connect establishes a connection pool with retry and exponential backoff,
// and wires a circuit breaker around subsequent queries.
func Connect(ctx context.Context, cfg Config) (*Loader, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgdata: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	var pool *pgxpool.Pool
	delay := cfg.RetryDelay
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			continue
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			continue
		}
		return &Loader{
			pool:    pool,
			breaker: resilience.New(resilience.DefaultConfig("pgdata")),
		}, nil
	}
	return nil, fmt.Errorf("pgdata: connect after %d attempts: %w", cfg.RetryAttempts+1, err)
}

// Close releases the connection pool.
func (l *Loader) Close() { l.pool.Close() }

// LoadSymbol queries every bar for symbol ordered by timestamp and
// registers it with store. Expects a table shaped like
// bars(symbol text, ts bigint, open double precision, high double
// precision, low double precision, close double precision,
// adj_close double precision, volume double precision).
func (l *Loader) LoadSymbol(ctx context.Context, store *barstore.Store, symbol string) error {
	result, err := l.breaker.Execute(ctx, func() (any, error) {
		rows, err := l.pool.Query(ctx,
			`SELECT ts, open, high, low, close, adj_close, volume
			 FROM bars WHERE symbol = $1 ORDER BY ts ASC`, symbol)
		if err != nil {
			return nil, fmt.Errorf("pgdata: query %s: %w", symbol, err)
		}
		defer rows.Close()

		var bars []barstore.Bar
		for rows.Next() {
			var b barstore.Bar
			if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
				return nil, fmt.Errorf("pgdata: scan %s: %w", symbol, err)
			}
			bars = append(bars, b)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("pgdata: rows %s: %w", symbol, err)
		}
		return bars, nil
	})
	if err != nil {
		return err
	}
	return store.Load(symbol, result.([]barstore.Bar))
}

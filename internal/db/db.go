// Package db opens the PostgreSQL pool behind the document store and applies
// its schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// minPoolConns covers one change listener plus ordinary queries.
const minPoolConns = 2

// PoolConfig parses dsn and applies the service's pool limits. Every open
// document watch holds a connection, so maxConns also bounds live report
// streams.
func PoolConfig(dsn string, maxConns int32) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	cfg.MaxConns = max(maxConns, minPoolConns)
	cfg.MinConns = min(minPoolConns, cfg.MaxConns)
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	return cfg, nil
}

// Connect opens a pool and verifies the server answers before returning it.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(dsn, maxConns)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Close is nil-safe so callers running on the memory store need no branch.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

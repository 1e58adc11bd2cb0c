package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a database connection pool from a Postgres connection URL.
//
// The pool is shared by every connection's event handlers, so it is tuned
// for many short queries rather than few long ones:
//
// MaxConns (25): each in-flight event (send, reaction, read marker) holds a
//   connection only for the duration of its queries. 25 handles thousands of
//   idle WebSocket connections comfortably without overwhelming Postgres.
//
// MinConns (5): keep warm connections ready so the first events after an
//   idle period don't pay connection-setup latency.
//
// MaxConnLifetime (1h) / MaxConnIdleTime (20min): recycle connections so
//   stale TCP sessions and failovers don't linger.
//
// HealthCheckPeriod (1min): ping idle connections before a real query
//   hits a dead one.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 20 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Ping verifies the connection actually works (credentials, network).
	// If it fails, close the pool immediately — don't leak a half-open pool.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	logger.Info("DB connection established",
		zap.String("dsn", poolConfig.ConnString()),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return &DB{
		pool:   pool,
		logger: logger,
	}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.pool.Close()
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

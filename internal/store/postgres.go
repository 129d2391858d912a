package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres connects a pgx pool to dsn and migrates the schema
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	// goose speaks database/sql; the wrapper shares the pool's connections
	if err := ApplyMigrations(ctx, stdlib.OpenDBFromPool(pool), "postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return NewPostgresStore(pool, func() error {
		pool.Close()
		return nil
	}), nil
}

// NewPostgresStore wraps an already-migrated pgx pool (or pgxmock)
func NewPostgresStore(db PgxDB, closer func() error) *SQLStore {
	return newSQLStore(pgxExecutor{db: db}, squirrel.Dollar, closer)
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var Pool *pgxpool.Pool

// InitPostgres opens a pool for dsn. An empty dsn disables persistence and
// returns a nil pool without error.
func InitPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if dsn == "" {
		logger.Warn().Msg("DATABASE_URL not set, skipping Postgres connection")
		return nil, nil
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	Pool = pool
	logger.Info().Str("host", cfg.ConnConfig.Host).Msg("connected to postgres")
	return pool, nil
}

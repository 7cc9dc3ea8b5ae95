package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartcity/stationmap/internal/logger"
)

// EnsureSchema creates the cache tables on first run.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS city_sources (
			slug TEXT PRIMARY KEY,
			city TEXT NOT NULL,
			stations JSONB NOT NULL,
			boundary JSONB NOT NULL,
			lines JSONB,
			fetched_at TIMESTAMPTZ NOT NULL
		)`,
		`ALTER TABLE city_sources ADD COLUMN IF NOT EXISTS lines JSONB`,
		`CREATE TABLE IF NOT EXISTS city_artifacts (
			slug TEXT PRIMARY KEY,
			generation_id TEXT NOT NULL,
			city TEXT NOT NULL,
			artifact JSONB NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS generation_status (
			slug TEXT PRIMARY KEY,
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			artifact_ref TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generation_status_state ON generation_status(state)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres: failed to ensure schema: %w", err)
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

// Package history persists evaluated advisory results to PostgreSQL. The
// store is optional: when the database is disabled the rest of the service
// runs unchanged and only the analysis queries are unavailable.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"futures-advisor/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewDB connects to PostgreSQL and verifies the connection
func NewDB(dsn string, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("history")

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL")
	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("database connection closed")
	}
}

// RunMigrations creates the advisory tables
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS advisory_results (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			evaluated_at TIMESTAMPTZ NOT NULL,
			thresholds_version VARCHAR(64) NOT NULL,
			feature_version VARCHAR(32) NOT NULL,
			short_decision VARCHAR(16) NOT NULL,
			short_confidence VARCHAR(16) NOT NULL,
			short_executable BOOLEAN NOT NULL,
			medium_decision VARCHAR(16) NOT NULL,
			medium_confidence VARCHAR(16) NOT NULL,
			medium_executable BOOLEAN NOT NULL,
			alignment_type VARCHAR(32) NOT NULL,
			has_conflict BOOLEAN NOT NULL,
			risk_exposure_allowed BOOLEAN NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_advisory_results_symbol ON advisory_results(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_advisory_results_evaluated_at ON advisory_results(evaluated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_advisory_results_alignment ON advisory_results(alignment_type)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("database migrations completed")
	return nil
}

// HealthCheck pings the pool
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

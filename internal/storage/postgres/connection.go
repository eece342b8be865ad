// Package postgres implements the relational storage layer backing the
// Job Queue (spec.md section 4.10) and the Site/Opportunity/Document
// repositories, over database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/common"
)

// DB wraps the pooled SQL connection and exposes a BeginTx helper for
// the Scrape Runner's single-transaction persist step.
type DB struct {
	sqlDB  *sql.DB
	logger arbor.ILogger
}

// Open connects to Postgres per cfg, applies pool limits, verifies
// connectivity, and bootstraps the schema.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger arbor.ILogger) (*DB, error) {
	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	db := &DB{sqlDB: sqlDB, logger: logger}
	if err := db.initSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres: initializing schema: %w", err)
	}

	logger.Info().Msg("postgres storage initialized")
	return db, nil
}

// SQL returns the underlying pool, for repositories in this package.
func (d *DB) SQL() *sql.DB { return d.sqlDB }

// Close releases the connection pool.
func (d *DB) Close() error { return d.sqlDB.Close() }

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error { return d.sqlDB.PingContext(ctx) }

// BeginTx starts a transaction for the Scrape Runner's persist step.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.sqlDB.BeginTx(ctx, nil)
}

// Package database opens the bun handle for the configured driver.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	checkindb "ms-checkin/internal/checkin/db"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/logger"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const maxRetries = 5

// Connect opens the database, retrying postgres while it comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		log.Info("DATABASE", fmt.Sprintf("Using SQLite database %s", cfg.DSN))
		return bun.NewDB(sqldb, sqlitedialect.New()), nil

	case "postgres", "":
		var sqldb *sql.DB
		var err error
		for i := 0; i < maxRetries; i++ {
			log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
			sqldb, err = sql.Open("postgres", cfg.DSN)
			if err == nil {
				if err = sqldb.PingContext(ctx); err == nil {
					break
				}
				sqldb.Close()
			}

			log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			if i < maxRetries-1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(2 * time.Second):
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("connect to postgres after %d attempts: %w", maxRetries, err)
		}

		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		log.Info("DATABASE", "PostgreSQL connection successful")
		return bun.NewDB(sqldb, pgdialect.New()), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Prepare brings the schema up to date: SQL migrations on postgres, the bun
// models on sqlite.
func Prepare(ctx context.Context, bunDB *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) error {
	if !cfg.AutoMigrate {
		return nil
	}
	if cfg.Driver == "sqlite" {
		return checkindb.CreateSchema(ctx, bunDB)
	}

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		AutoMigrate: cfg.AutoMigrate,
		SeedData:    cfg.SeedData,
	}, log)
	// the migrator's Close would also close the shared sql.DB
	return runner.RunMigrations()
}

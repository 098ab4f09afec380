// Package main applies the Postgres wallet schema and the ClickHouse trade
// archive schema.
//
//	migrate -db postgres -action up|down|version
//	migrate -db clickhouse -action up
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/storage"
)

// migrationTarget applies one action to one database
type migrationTarget func(ctx context.Context, cfg *config.Config, action string, logger *logging.Logger) error

var targets = map[string]migrationTarget{
	"postgres":   migratePostgres,
	"clickhouse": migrateClickHouse,
}

func main() {
	var (
		action  = flag.String("action", "up", "Migration action: up, down, version")
		dbType  = flag.String("db", "postgres", "Database: postgres, clickhouse")
		timeout = flag.Duration("timeout", 5*time.Minute, "Abort after this long")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLoggerWithOptions(logging.Options{
		Level:  logging.ParseLogLevel(cfg.Logging.Level),
		Format: logging.ParseLogFormat(cfg.Logging.Format),
	})
	logger := logging.GetGlobalLogger().WithFields(map[string]interface{}{
		"component": "migrate",
		"db":        *dbType,
		"action":    *action,
	})

	target, ok := targets[*dbType]
	if !ok {
		logger.Fatalf("Unknown database %q", *dbType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := target(ctx, cfg, *action, logger); err != nil {
		logger.WithError(err).Error("Migration failed")
		cancel()
		os.Exit(1)
	}
}

func migratePostgres(ctx context.Context, cfg *config.Config, action string, logger *logging.Logger) error {
	pg := cfg.Database.Postgres
	url := pg.URL()

	switch action {
	case "up":
		if err := storage.RunMigrations(url, pg.MigrationsPath); err != nil {
			return err
		}
		logger.Info("Wallet schema is up to date")
	case "down":
		if err := storage.RollbackMigrations(url, pg.MigrationsPath); err != nil {
			return err
		}
		logger.Info("Rolled back one wallet schema migration")
	case "version":
		version, dirty, err := storage.MigrationVersion(url, pg.MigrationsPath)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Current wallet schema version")
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func migrateClickHouse(ctx context.Context, cfg *config.Config, action string, logger *logging.Logger) error {
	if action != "up" {
		return fmt.Errorf("clickhouse supports only the up action, got %q", action)
	}

	ch := cfg.Database.ClickHouse
	if _, err := os.Stat(ch.MigrationsPath); err != nil {
		return fmt.Errorf("migrations directory %s: %w", ch.MigrationsPath, err)
	}

	db, err := storage.NewClickHouseDB(&ch)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close ClickHouse connection")
		}
	}()

	if err := storage.RunClickHouseMigrations(ctx, db, ch.MigrationsPath); err != nil {
		return err
	}
	logger.Info("Trade archive schema is up to date")
	return nil
}

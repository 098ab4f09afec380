package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/models"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           envOr("POSTGRES_HOST", "localhost"),
		Port:           envOr("POSTGRES_PORT", "5432"),
		Database:       envOr("POSTGRES_DB", "kol_dashboard_test"),
		User:           envOr("POSTGRES_USER", "kol"),
		Password:       envOr("POSTGRES_PASSWORD", "kol_dev_password"),
		MaxConnections: 4,
		MigrationsPath: filepath.Join("..", "..", "migrations", "postgres"),
	}
}

func testClickHouseConfig() *config.ClickHouseConfig {
	return &config.ClickHouseConfig{
		Host:           envOr("CLICKHOUSE_HOST", "localhost"),
		Port:           envOr("CLICKHOUSE_PORT", "9000"),
		Database:       envOr("CLICKHOUSE_DB", "default"),
		User:           envOr("CLICKHOUSE_USER", "default"),
		Password:       envOr("CLICKHOUSE_PASSWORD", ""),
		MigrationsPath: filepath.Join("..", "..", "migrations", "clickhouse"),
	}
}

// testWalletRepository connects to Postgres, migrates and empties the wallet
// table. The test is skipped when Postgres is not reachable.
func testWalletRepository(t *testing.T) *WalletRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(context.Background(), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), cfg.MigrationsPath); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if _, err := db.Pool().Exec(testContext(t), "TRUNCATE tracked_wallets"); err != nil {
		t.Fatalf("truncate error = %v", err)
	}
	return NewWalletRepository(db)
}

func testProfile(address, name string) models.WalletProfile {
	return models.WalletProfile{
		Address: address,
		Name:    name,
		Twitter: "https://x.com/" + name,
		Tags:    []string{"DeFi"},
	}
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/models"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `
-- header comment
CREATE TABLE a (
    x String
) ENGINE = MergeTree
ORDER BY x;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
SELECT 1
`
	statements := splitSQLStatements(content)
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0], "CREATE TABLE a")
	assert.Contains(t, statements[0], "ORDER BY x")
	assert.NotContains(t, statements[0], ";")
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Memory", statements[1])
	assert.Equal(t, "SELECT 1", statements[2])

	assert.Empty(t, splitSQLStatements("-- only a comment\n\n"))
}

func TestClickHouseOptions(t *testing.T) {
	opts := clickHouseOptions(&config.ClickHouseConfig{
		Host:             "ch.internal",
		Port:             "9440",
		Database:         "kol",
		User:             "reader",
		MaxOpenConns:     8,
		MaxIdleConns:     3,
		DialTimeout:      2 * time.Second,
		ConnMaxLifetime:  20 * time.Minute,
		MaxExecutionTime: 45 * time.Second,
	})

	assert.Equal(t, []string{"ch.internal:9440"}, opts.Addr)
	assert.Equal(t, "kol", opts.Auth.Database)
	assert.Equal(t, "reader", opts.Auth.Username)
	assert.Equal(t, 8, opts.MaxOpenConns)
	assert.Equal(t, 3, opts.MaxIdleConns)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 20*time.Minute, opts.ConnMaxLifetime)
	assert.Equal(t, clickhouse.Settings{"max_execution_time": 45}, opts.Settings)
}

func TestClickHouseOptions_Fallbacks(t *testing.T) {
	opts := clickHouseOptions(&config.ClickHouseConfig{Host: "localhost", Port: "9000", MaxIdleConns: 5})

	assert.Equal(t, 1, opts.MaxOpenConns)
	assert.Equal(t, 1, opts.MaxIdleConns)
	assert.Equal(t, defaultClickHouseDialTimeout, opts.DialTimeout)
	assert.Nil(t, opts.Settings)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}

func testTradeArchive(t *testing.T) *TradeArchive {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testClickHouseConfig()
	db, err := NewClickHouseDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := testContext(t)
	require.NoError(t, RunClickHouseMigrations(ctx, db, cfg.MigrationsPath))
	require.NoError(t, db.Exec(ctx, "TRUNCATE TABLE kol_trades"))
	return NewTradeArchive(db)
}

func TestNewClickHouseDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(testClickHouseConfig())
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
		return
	}
	defer func() {
		assert.NoError(t, db.Close())
	}()

	assert.NoError(t, db.Ping(testContext(t)))
	assert.NotNil(t, db.Conn())
}

func TestTradeArchive_ArchiveTrades(t *testing.T) {
	archive := testTradeArchive(t)
	ctx := testContext(t)

	trades := sampleResult(1).Trades
	require.NoError(t, archive.ArchiveTrades(ctx, "cycle-1", addrRed, trades))
	// The next cycle archives the same trades again
	require.NoError(t, archive.ArchiveTrades(ctx, "cycle-2", addrRed, trades))

	got, err := archive.RecentTrades(ctx, addrRed, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	seen := map[models.TradeType]bool{}
	for _, at := range got {
		assert.Equal(t, addrRed, at.Wallet)
		assert.Equal(t, "sig1", at.TxHash)
		assert.Equal(t, int64(1700000000000), at.Timestamp)
		seen[at.Type] = true
	}
	assert.True(t, seen[models.TradeBuy])
	assert.True(t, seen[models.TradeSell])
}

func TestTradeArchive_EmptyIsNoop(t *testing.T) {
	archive := &TradeArchive{}
	assert.NoError(t, archive.ArchiveTrades(context.Background(), "cycle", addrRed, nil))
}

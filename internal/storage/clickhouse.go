package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/kol-dashboard/internal/config"
)

const (
	defaultClickHouseDialTimeout = 10 * time.Second
	clickHousePingTimeout        = 5 * time.Second
)

// ClickHouseDB holds the connection used by the trade archive
type ClickHouseDB struct {
	conn driver.Conn
}

// clickHouseOptions maps the archive settings onto driver options. Unset
// pool sizes fall back to one connection; idle connections never exceed
// open ones.
func clickHouseOptions(cfg *config.ClickHouseConfig) *clickhouse.Options {
	maxOpen := cfg.MaxOpenConns
	if maxOpen < 1 {
		maxOpen = 1
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle < 0 {
		maxIdle = 0
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultClickHouseDialTimeout
	}

	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:      dialTimeout,
		MaxOpenConns:     maxOpen,
		MaxIdleConns:     maxIdle,
		ConnMaxLifetime:  cfg.ConnMaxLifetime,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	// max_execution_time is whole seconds; 0 leaves the server default
	if secs := int(cfg.MaxExecutionTime / time.Second); secs > 0 {
		opts.Settings = clickhouse.Settings{"max_execution_time": secs}
	}
	return opts
}

// NewClickHouseDB opens the connection and verifies it with a ping
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(clickHouseOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), clickHousePingTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse at %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the connection
func (db *ClickHouseDB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn exposes the driver connection for batch inserts and queries
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks that the server is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec runs a statement that returns no rows
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}

// Package config provides configuration management for the KOL dashboard.
// It loads configuration from environment variables and .env files, and the
// tracked wallet roster from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Providers ProvidersConfig
	Gateway   GatewayConfig
	Budget    BudgetConfig
	Pipeline  PipelineConfig
	Scheduler SchedulerConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Wallets   WalletsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL returns the connection URL used by golang-migrate
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled          bool
	Host             string
	Port             string
	Database         string
	User             string
	Password         string
	MaxOpenConns     int
	MaxIdleConns     int
	DialTimeout      time.Duration
	ConnMaxLifetime  time.Duration
	MaxExecutionTime time.Duration // Server-side query limit
	MigrationsPath   string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// StoreConfig selects the wallet store implementation
type StoreConfig struct {
	Driver string // "postgres" or "memory"
}

// ProvidersConfig holds the external data provider settings
type ProvidersConfig struct {
	Helius      HeliusConfig
	DexScreener DexScreenerConfig
	Birdeye     BirdeyeConfig
	// MetadataSource selects the asset metadata variant: "helius" or "birdeye"
	MetadataSource string
	// PriceSource selects the price variant: "dexscreener" or "birdeye"
	PriceSource string
}

// HeliusConfig holds Helius API configuration
type HeliusConfig struct {
	APIKey  string
	APIURL  string // Enhanced transactions REST API
	RPCURL  string // Solana JSON-RPC endpoint
	TxLimit int
	RPS     float64
}

// DexScreenerConfig holds DexScreener configuration
type DexScreenerConfig struct {
	BaseURL string
	RPS     float64
}

// BirdeyeConfig holds Birdeye configuration
type BirdeyeConfig struct {
	APIKey  string
	BaseURL string
	RPS     float64
}

// GatewayConfig bounds every outbound provider call
type GatewayConfig struct {
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// BudgetConfig holds the shared Helius credit budget. Enforcing it needs Redis.
type BudgetConfig struct {
	Enabled          bool
	CreditsPerSecond int
	ReservedCredits  int // Held back for history and balance reads
	MaxWait          time.Duration
}

// PipelineConfig holds reconstruction pipeline settings
type PipelineConfig struct {
	MaterialityThresholdUSD float64
	IncludeTransfers        bool
	TxConcurrency           int
	WalletConcurrency       int
	DecimalAdjustHoldings   bool
}

// SchedulerConfig holds refresh scheduler settings
type SchedulerConfig struct {
	Enabled    bool
	Interval   time.Duration
	RunOnStart bool
}

// CacheConfig holds cache TTLs
type CacheConfig struct {
	MetadataTTL time.Duration
	PriceTTL    time.Duration
}

// RateLimitConfig holds inbound API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// WalletsConfig points at the tracked wallet roster
type WalletsConfig struct {
	File string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	heliusKey := getEnv("HELIUS_API_KEY", "")

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "5000"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "kol_dashboard"),
				User:           getEnv("POSTGRES_USER", "kol"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:          getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:             getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:             getEnv("CLICKHOUSE_PORT", "9000"),
				Database:         getEnv("CLICKHOUSE_DB", "kol_dashboard"),
				User:             getEnv("CLICKHOUSE_USER", "default"),
				Password:         getEnv("CLICKHOUSE_PASSWORD", ""),
				MaxOpenConns:     getEnvAsInt("CLICKHOUSE_MAX_OPEN_CONNS", 4),
				MaxIdleConns:     getEnvAsInt("CLICKHOUSE_MAX_IDLE_CONNS", 2),
				DialTimeout:      getEnvAsDuration("CLICKHOUSE_DIAL_TIMEOUT", 10*time.Second),
				ConnMaxLifetime:  getEnvAsDuration("CLICKHOUSE_CONN_MAX_LIFETIME", time.Hour),
				MaxExecutionTime: getEnvAsDuration("CLICKHOUSE_MAX_EXECUTION_TIME", 30*time.Second),
				MigrationsPath:   getEnv("CLICKHOUSE_MIGRATIONS_PATH", "migrations/clickhouse"),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", false),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		},
		Providers: ProvidersConfig{
			Helius: HeliusConfig{
				APIKey:  heliusKey,
				APIURL:  getEnv("HELIUS_API_URL", "https://api.helius.xyz"),
				RPCURL:  getEnv("HELIUS_RPC_URL", "https://mainnet.helius-rpc.com/?api-key="+heliusKey),
				TxLimit: getEnvAsInt("HELIUS_TX_LIMIT", 100),
				RPS:     getEnvAsFloat("HELIUS_RPS", 10),
			},
			DexScreener: DexScreenerConfig{
				BaseURL: getEnv("DEXSCREENER_BASE_URL", "https://api.dexscreener.com"),
				RPS:     getEnvAsFloat("DEXSCREENER_RPS", 2),
			},
			Birdeye: BirdeyeConfig{
				APIKey:  getEnv("BIRDEYE_API_KEY", ""),
				BaseURL: getEnv("BIRDEYE_BASE_URL", "https://public-api.birdeye.so"),
				RPS:     getEnvAsFloat("BIRDEYE_RPS", 1),
			},
			MetadataSource: strings.ToLower(getEnv("METADATA_SOURCE", "helius")),
			PriceSource:    strings.ToLower(getEnv("PRICE_SOURCE", "dexscreener")),
		},
		Gateway: GatewayConfig{
			Timeout:        getEnvAsDuration("GATEWAY_TIMEOUT", 5*time.Second),
			MaxAttempts:    getEnvAsInt("GATEWAY_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvAsDuration("GATEWAY_RETRY_BASE_DELAY", 500*time.Millisecond),
		},
		Budget: BudgetConfig{
			Enabled:          getEnvAsBool("HELIUS_CREDIT_BUDGET_ENABLED", false),
			CreditsPerSecond: getEnvAsInt("HELIUS_CREDITS_PER_SECOND", 50),
			ReservedCredits:  getEnvAsInt("HELIUS_RESERVED_CREDITS", 30),
			MaxWait:          getEnvAsDuration("HELIUS_CREDIT_MAX_WAIT", 5*time.Second),
		},
		Pipeline: PipelineConfig{
			MaterialityThresholdUSD: getEnvAsFloat("MATERIALITY_THRESHOLD_USD", 100),
			IncludeTransfers:        getEnvAsBool("PIPELINE_INCLUDE_TRANSFERS", false),
			TxConcurrency:           getEnvAsInt("PIPELINE_TX_CONCURRENCY", 8),
			WalletConcurrency:       getEnvAsInt("WORKER_CONCURRENCY", 1),
			DecimalAdjustHoldings:   getEnvAsBool("HOLDINGS_DECIMAL_ADJUST", true),
		},
		Scheduler: SchedulerConfig{
			Enabled:    getEnvAsBool("SCHEDULER_ENABLED", true),
			Interval:   getEnvAsDuration("REFRESH_INTERVAL", 12*time.Hour),
			RunOnStart: getEnvAsBool("SCHEDULER_RUN_ON_START", false),
		},
		Cache: CacheConfig{
			MetadataTTL: getEnvAsDuration("CACHE_METADATA_TTL", 24*time.Hour),
			PriceTTL:    getEnvAsDuration("CACHE_PRICE_TTL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
		Wallets: WalletsConfig{
			File: getEnv("WALLETS_FILE", "config/wallets.yaml"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that have no sensible fallback
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want postgres or memory)", c.Store.Driver)
	}
	switch c.Providers.MetadataSource {
	case "helius", "birdeye":
	default:
		return fmt.Errorf("unknown METADATA_SOURCE %q (want helius or birdeye)", c.Providers.MetadataSource)
	}
	switch c.Providers.PriceSource {
	case "dexscreener", "birdeye":
	default:
		return fmt.Errorf("unknown PRICE_SOURCE %q (want dexscreener or birdeye)", c.Providers.PriceSource)
	}
	if c.Pipeline.MaterialityThresholdUSD < 0 {
		return fmt.Errorf("MATERIALITY_THRESHOLD_USD must not be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.Budget.Enabled && !c.Database.Redis.Enabled {
		return fmt.Errorf("HELIUS_CREDIT_BUDGET_ENABLED requires REDIS_ENABLED")
	}
	if c.Pipeline.TxConcurrency < 1 {
		c.Pipeline.TxConcurrency = 1
	}
	if c.Pipeline.WalletConcurrency < 1 {
		c.Pipeline.WalletConcurrency = 1
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

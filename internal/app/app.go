// Package app assembles the refresh pipeline and its backing stores from
// configuration. Both the API server and the one-shot refresh command use it.
package app

import (
	"context"
	"fmt"

	"github.com/kol-dashboard/internal/adapter"
	"github.com/kol-dashboard/internal/circuitbreaker"
	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/ratelimit"
	"github.com/kol-dashboard/internal/service"
	"github.com/kol-dashboard/internal/storage"
)

// Components holds everything wired from one configuration
type Components struct {
	Roster   []models.WalletProfile
	Store    service.WalletStore
	Refresh  *service.RefreshService
	Rollup   *service.RollupService
	Breakers *circuitbreaker.Manager
	Budget   *ratelimit.BudgetGate // nil unless the credit budget is enabled
	Cache    *storage.CacheService // nil unless Redis is enabled
	Archive  *storage.TradeArchive // nil unless ClickHouse is enabled

	closers []func()
}

// Build connects the configured stores and caches and wires the pipeline.
// On error every connection opened so far is closed.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{Breakers: circuitbreaker.NewManager()}
	if err := c.build(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, cfg *config.Config) error {
	logger := logging.FromContext(ctx)

	var err error

	c.Roster, err = config.LoadWallets(cfg.Wallets.File)
	if err != nil {
		return fmt.Errorf("load wallet roster: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"file":    cfg.Wallets.File,
		"wallets": len(c.Roster),
	}).Info("Wallet roster loaded")

	if err = c.buildStore(ctx, cfg); err != nil {
		return err
	}

	var gate adapter.CreditGate
	if cfg.Database.Redis.Enabled {
		redisCache, rerr := storage.NewRedisCache(&cfg.Database.Redis)
		if rerr != nil {
			return fmt.Errorf("connect redis: %w", rerr)
		}
		c.closers = append(c.closers, func() { _ = redisCache.Close() })
		c.Cache = storage.NewCacheService(redisCache, cfg.Cache.MetadataTTL, cfg.Cache.PriceTTL)
		logger.Info("Redis cache enabled")

		if cfg.Budget.Enabled {
			c.Budget, err = newBudgetGate(redisCache, cfg.Budget)
			if err != nil {
				return err
			}
			gate = c.Budget
			logger.WithField("credits_per_second", cfg.Budget.CreditsPerSecond).Info("Helius credit budget enabled")
		}
	}

	gateway, err := adapter.NewGatewayFromConfig(cfg, c.Breakers, gate)
	if err != nil {
		return fmt.Errorf("build provider gateway: %w", err)
	}

	c.Refresh = service.NewRefreshService(gateway, c.Store, c.Roster, cfg.Pipeline)
	if c.Cache != nil {
		c.Refresh.SetCaches(c.Cache, c.Cache)
	}

	if cfg.Database.ClickHouse.Enabled {
		ch, cerr := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if cerr != nil {
			return fmt.Errorf("connect clickhouse: %w", cerr)
		}
		c.closers = append(c.closers, func() { _ = ch.Close() })
		c.Archive = storage.NewTradeArchive(ch)
		c.Refresh.SetTradeArchive(c.Archive)
		logger.Info("ClickHouse trade archive enabled")
	}

	c.Rollup = service.NewRollupService(c.Store)
	return c.seedRoster(ctx)
}

func (c *Components) buildStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Driver {
	case "memory":
		c.Store = storage.NewMemoryWalletStore()
		logging.FromContext(ctx).Warn("Using in-memory wallet store; data is lost on exit")
	case "postgres":
		db, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		c.Store = storage.NewWalletRepository(db)
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	return nil
}

// seedRoster creates an empty record for every roster wallet so the API lists
// them before the first refresh completes
func (c *Components) seedRoster(ctx context.Context) error {
	for _, profile := range c.Roster {
		if _, err := c.Store.EnsureWallet(ctx, profile); err != nil {
			return fmt.Errorf("seed wallet %s: %w", profile.Address, err)
		}
	}
	return nil
}

func newBudgetGate(redisCache *storage.RedisCache, cfg config.BudgetConfig) (*ratelimit.BudgetGate, error) {
	tracker, err := ratelimit.NewCreditBudgetTracker(&ratelimit.CreditBudgetTrackerConfig{
		Redis:          redisCache.Client(),
		TotalBudget:    cfg.CreditsPerSecond,
		ReservedBudget: cfg.ReservedCredits,
	})
	if err != nil {
		return nil, fmt.Errorf("credit budget: %w", err)
	}
	return ratelimit.NewBudgetGate(tracker, ratelimit.NewCreditCostRegistry(nil), cfg.MaxWait)
}

// Close releases connections in reverse order of opening
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

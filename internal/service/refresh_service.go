package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/parser"
	"github.com/kol-dashboard/internal/types"
)

// WalletResult summarizes one wallet refresh
type WalletResult struct {
	Address      string        `json:"address"`
	Transactions int           `json:"transactions"`
	Trades       int           `json:"trades"`
	Holdings     int           `json:"holdings"`
	SkippedTxs   int           `json:"skippedTxs"`
	Duration     time.Duration `json:"duration"`
}

// WalletFailure records a wallet whose refresh was abandoned
type WalletFailure struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// CycleReport summarizes a full refresh cycle
type CycleReport struct {
	CycleID    string          `json:"cycleId"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Succeeded  []WalletResult  `json:"succeeded"`
	Failed     []WalletFailure `json:"failed"`
}

// Duration returns how long the cycle ran
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RefreshService reconstructs trades and holdings for the tracked wallets and
// hands each result to the store
type RefreshService struct {
	gateway  ProviderGateway
	store    WalletStore
	roster   []models.WalletProfile
	cfg      config.PipelineConfig
	archive  TradeArchive
	resolver *TokenResolver
	prices   *PriceService
	filter   MaterialityFilter
	trades   *TradeBuilder
	holdings *HoldingsBuilder
	now      func() time.Time
}

// NewRefreshService creates a new refresh service
func NewRefreshService(gateway ProviderGateway, store WalletStore, roster []models.WalletProfile, cfg config.PipelineConfig) *RefreshService {
	if cfg.TxConcurrency < 1 {
		cfg.TxConcurrency = 1
	}
	if cfg.WalletConcurrency < 1 {
		cfg.WalletConcurrency = 1
	}

	resolver := NewTokenResolver(gateway)
	prices := NewPriceService(gateway)
	holdings := NewHoldingsBuilder(resolver, prices, cfg.DecimalAdjustHoldings)
	holdings.SetConcurrency(cfg.TxConcurrency)

	return &RefreshService{
		gateway:  gateway,
		store:    store,
		roster:   roster,
		cfg:      cfg,
		resolver: resolver,
		prices:   prices,
		filter:   NewMaterialityFilter(cfg.MaterialityThresholdUSD),
		trades:   NewTradeBuilder(),
		holdings: holdings,
		now:      time.Now,
	}
}

// SetCaches enables cross-cycle metadata and price caching
func (s *RefreshService) SetCaches(metadata MetadataCache, prices PriceCache) {
	if metadata != nil {
		s.resolver.SetCache(metadata)
	}
	if prices != nil {
		s.prices.SetCache(prices)
	}
}

// SetTradeArchive enables archiving of every successful refresh's trades
func (s *RefreshService) SetTradeArchive(archive TradeArchive) {
	s.archive = archive
}

// SetClock replaces the clock used for lastUpdated
func (s *RefreshService) SetClock(now func() time.Time) {
	s.now = now
}

// Roster returns the tracked wallet profiles
func (s *RefreshService) Roster() []models.WalletProfile {
	return s.roster
}

// RunCycle refreshes every tracked wallet. A wallet failure is logged and
// recorded; it never stops the cycle.
func (s *RefreshService) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{
		CycleID:   uuid.New().String(),
		StartedAt: s.now(),
		Succeeded: []WalletResult{},
		Failed:    []WalletFailure{},
	}

	logger := logging.FromContext(ctx).WithField("cycleId", report.CycleID)
	ctx = logging.WithLogger(ctx, logger)
	logger.WithFields(map[string]interface{}{
		"wallets":     len(s.roster),
		"concurrency": s.cfg.WalletConcurrency,
	}).Info("Starting refresh cycle")

	s.resolver.ResetMemo()
	s.prices.ResetMemo()

	results := boundedMap(ctx, s.roster, s.cfg.WalletConcurrency, func(ctx context.Context, p models.WalletProfile) (*WalletResult, error) {
		return s.refreshWallet(ctx, report.CycleID, p)
	})

	for i, r := range results {
		address := s.roster[i].Address
		if r.err != nil {
			logger.WithField("wallet", address).WithError(r.err).Error("Wallet refresh failed")
			report.Failed = append(report.Failed, WalletFailure{Address: address, Error: r.err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, *r.value)
	}

	report.FinishedAt = s.now()
	logger.WithFields(map[string]interface{}{
		"succeeded":   len(report.Succeeded),
		"failed":      len(report.Failed),
		"duration_ms": report.Duration().Milliseconds(),
	}).Info("Refresh cycle complete")
	return report
}

// RefreshWallet refreshes a single wallet outside of a cycle
func (s *RefreshService) RefreshWallet(ctx context.Context, profile models.WalletProfile) (*WalletResult, error) {
	return s.refreshWallet(ctx, uuid.New().String(), profile)
}

func (s *RefreshService) refreshWallet(ctx context.Context, cycleID string, profile models.WalletProfile) (*WalletResult, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).WithField("wallet", profile.Address)
	ctx = logging.WithLogger(ctx, logger)

	if _, err := s.store.EnsureWallet(ctx, profile); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	var (
		txs      []types.Transaction
		balances []types.TokenBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.gateway.FetchTransactionHistory(gctx, profile.Address)
		if err != nil {
			return fmt.Errorf("fetch transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		balances, err = s.gateway.FetchTokenBalances(gctx, profile.Address)
		if err != nil {
			return fmt.Errorf("fetch balances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trades, skipped := s.buildTrades(ctx, txs)
	holdings := s.holdings.Build(ctx, balances)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.RefreshResult{
		Trades:      trades,
		Holdings:    holdings,
		Stats:       ComputeStats(trades, holdings),
		LastUpdated: s.now().UnixMilli(),
	}
	if err := s.store.UpsertWalletResult(ctx, profile.Address, result); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}

	if s.archive != nil && len(trades) > 0 {
		if err := s.archive.ArchiveTrades(ctx, cycleID, profile.Address, trades); err != nil {
			logger.WithError(err).Warn("Trade archive write failed")
		}
	}

	wr := &WalletResult{
		Address:      profile.Address,
		Transactions: len(txs),
		Trades:       len(trades),
		Holdings:     len(holdings),
		SkippedTxs:   skipped,
		Duration:     time.Since(start),
	}
	logger.WithFields(map[string]interface{}{
		"transactions": wr.Transactions,
		"trades":       wr.Trades,
		"holdings":     wr.Holdings,
		"skipped":      wr.SkippedTxs,
	}).Info("Wallet refreshed")
	return wr, nil
}

// buildTrades processes transactions concurrently and flattens the trades in
// transaction order. It returns the number of transactions that failed.
func (s *RefreshService) buildTrades(ctx context.Context, txs []types.Transaction) ([]models.Trade, int) {
	logger := logging.FromContext(ctx)

	built := boundedMap(ctx, txs, s.cfg.TxConcurrency, s.processTransaction)

	trades := make([]models.Trade, 0, len(txs))
	skipped := 0
	for i, r := range built {
		if r.err != nil {
			skipped++
			logger.WithField("signature", txs[i].Signature).WithError(r.err).Warn("Skipping transaction")
			continue
		}
		trades = append(trades, r.value...)
	}
	return trades, skipped
}

// processTransaction runs one transaction through parse, resolve, price,
// materiality and build. Dropped transactions yield no trades and no error.
func (s *RefreshService) processTransaction(ctx context.Context, tx types.Transaction) ([]models.Trade, error) {
	parsed, ok := parser.Parse(tx)
	if !ok {
		return nil, nil
	}

	switch parsed.Type {
	case types.TxTypeSwap:
		given, err := s.priceLeg(ctx, parsed.Legs[0])
		if err != nil {
			return nil, err
		}
		received, err := s.priceLeg(ctx, parsed.Legs[1])
		if err != nil {
			return nil, err
		}
		if !s.filter.Qualifies(given.Amount, given.Price, received.Amount, received.Price) {
			return nil, nil
		}
		return s.trades.BuildSwap(tx, given, received), nil

	case types.TxTypeTransfer:
		if !s.cfg.IncludeTransfers {
			return nil, nil
		}
		token, err := s.resolver.Resolve(ctx, parsed.Legs[0].TokenRef)
		if err != nil {
			return nil, err
		}
		leg := PricedLeg{Amount: parsed.Legs[0].Amount(), Token: token}
		return []models.Trade{s.trades.BuildTransfer(tx, leg)}, nil
	}
	return nil, nil
}

func (s *RefreshService) priceLeg(ctx context.Context, leg parser.ParsedLeg) (PricedLeg, error) {
	token, err := s.resolver.Resolve(ctx, leg.TokenRef)
	if err != nil {
		return PricedLeg{}, fmt.Errorf("resolve %q: %w", leg.TokenRef, err)
	}
	price, err := s.prices.UnitPrice(ctx, token.Address)
	if err != nil {
		return PricedLeg{}, fmt.Errorf("price %q: %w", token.Address, err)
	}
	return PricedLeg{Amount: leg.Amount(), Token: token, Price: price}, nil
}

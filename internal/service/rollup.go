package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/models"
)

// Leaderboard ranges
const (
	RangeDaily   = "daily"
	RangeWeekly  = "weekly"
	RangeMonthly = "monthly"
)

// Leaderboard sort keys
const (
	SortByPnL     = "pnl"
	SortByTrades  = "trades"
	SortByWinRate = "winRate"
)

const (
	// DefaultDetailDays is the window of the wallet detail view
	DefaultDetailDays = 30
	// DefaultFeedLimit is the trade feed page size
	DefaultFeedLimit = 50
	// MaxFeedLimit caps the trade feed page size
	MaxFeedLimit = 500
)

var leaderboardDays = map[string]int{
	RangeDaily:   1,
	RangeWeekly:  7,
	RangeMonthly: 30,
}

var trendingWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// ComputeStats rolls up a refresh result
func ComputeStats(trades []models.Trade, holdings []models.TokenHolding) models.WalletStats {
	stats := models.WalletStats{
		TotalTrades:   len(trades),
		HoldingsCount: len(holdings),
	}

	volume := decimal.Zero
	pnl := decimal.Zero
	for _, t := range trades {
		switch t.Type {
		case models.TradeBuy:
			stats.BuyCount++
		case models.TradeSell:
			stats.SellCount++
		case models.TradeTransfer:
			stats.TransferCount++
		}
		if t.IsSwapLeg() {
			volume = volume.Add(Notional(t.Amount, t.Price))
		}
		pnl = pnl.Add(decimal.NewFromFloat(t.PnL))
	}
	stats.VolumeUSD, _ = volume.Float64()
	stats.TotalPnL, _ = pnl.Float64()
	stats.WinRate = WinRate(trades)
	stats.PortfolioValue = PortfolioValue(holdings)
	return stats
}

// WinRate is the percentage of trades with positive pnl, 0 without trades
func WinRate(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades)) * 100
}

// PortfolioValue sums holding values
func PortfolioValue(holdings []models.TokenHolding) float64 {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(decimal.NewFromFloat(h.Value))
	}
	f, _ := total.Float64()
	return f
}

// LeaderboardEntry is one ranked wallet
type LeaderboardEntry struct {
	Rank           int      `json:"rank"`
	Address        string   `json:"address"`
	Name           string   `json:"name"`
	Avatar         string   `json:"avatar"`
	Tags           []string `json:"tags"`
	PnL            float64  `json:"pnl"`
	Trades         int      `json:"trades"`
	WinRate        float64  `json:"winRate"`
	PortfolioValue float64  `json:"portfolioValue"`
	LastUpdated    int64    `json:"lastUpdated"`
}

// WalletDetail is a wallet with stats over a trailing window
type WalletDetail struct {
	*models.TrackedWallet
	Window WindowStats `json:"window"`
}

// WindowStats are the profile figures over the last Days days
type WindowStats struct {
	Days           int              `json:"days"`
	TotalPnL       float64          `json:"totalPnl"`
	TotalTrades    int              `json:"totalTrades"`
	WinRate        float64          `json:"winRate"`
	PortfolioValue float64          `json:"portfolioValue"`
	Trades         []models.Trade   `json:"trades"`
	HistoricalPnL  []models.PnLData `json:"historicalPnL"`
}

// FeedTrade is a trade tagged with the wallet that made it
type FeedTrade struct {
	models.Trade
	Wallet     string `json:"wallet"`
	WalletName string `json:"walletName"`
	Avatar     string `json:"avatar"`
}

// TrendingToken aggregates the recorded trades of one token
type TrendingToken struct {
	Token        string  `json:"token"`
	TokenAddress string  `json:"tokenAddress"`
	TokenIcon    string  `json:"tokenIcon"`
	Trades       int     `json:"trades"`
	Buys         int     `json:"buys"`
	Sells        int     `json:"sells"`
	VolumeUSD    float64 `json:"volumeUsd"`
	Wallets      int     `json:"wallets"`
	LastTrade    int64   `json:"lastTrade"`
}

// RollupService derives the dashboard views from stored wallets
type RollupService struct {
	wallets WalletReader
	now     func() time.Time
}

// NewRollupService creates a new rollup service
func NewRollupService(wallets WalletReader) *RollupService {
	return &RollupService{
		wallets: wallets,
		now:     time.Now,
	}
}

// SetClock replaces the clock used for windows
func (s *RollupService) SetClock(now func() time.Time) {
	s.now = now
}

// ListWallets returns every stored wallet
func (s *RollupService) ListWallets(ctx context.Context) ([]*models.TrackedWallet, error) {
	return s.wallets.ListWallets(ctx)
}

// Leaderboard ranks wallets over a daily, weekly or monthly window.
// PnL and trade counts come from the daily history; win rate from the
// trades recorded inside the window.
func (s *RollupService) Leaderboard(ctx context.Context, rangeKey, sortKey string) ([]LeaderboardEntry, error) {
	if rangeKey == "" {
		rangeKey = RangeDaily
	}
	if sortKey == "" {
		sortKey = SortByPnL
	}
	days, ok := leaderboardDays[rangeKey]
	if !ok {
		return nil, apperrors.NewInvalidParameterError("range", "must be one of daily, weekly, monthly")
	}
	switch sortKey {
	case SortByPnL, SortByTrades, SortByWinRate:
	default:
		return nil, apperrors.NewInvalidParameterError("sort", "must be one of pnl, trades, winRate")
	}

	wallets, err := s.wallets.ListWallets(ctx)
	if err != nil {
		return nil, err
	}

	start := s.now().AddDate(0, 0, -days)
	entries := make([]LeaderboardEntry, 0, len(wallets))
	for _, w := range wallets {
		pnl, count := historySince(w.HistoricalPnL, start)
		entries = append(entries, LeaderboardEntry{
			Address:        w.Address,
			Name:           w.Name,
			Avatar:         w.Avatar,
			Tags:           w.Tags,
			PnL:            pnl,
			Trades:         count,
			WinRate:        WinRate(tradesSince(w.Trades, start)),
			PortfolioValue: PortfolioValue(w.Holdings),
			LastUpdated:    w.LastUpdated,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		switch sortKey {
		case SortByTrades:
			return entries[i].Trades > entries[j].Trades
		case SortByWinRate:
			return entries[i].WinRate > entries[j].WinRate
		default:
			return entries[i].PnL > entries[j].PnL
		}
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// WalletDetail returns a wallet with its figures over the last days days
func (s *RollupService) WalletDetail(ctx context.Context, address string, days int) (*WalletDetail, error) {
	if days <= 0 {
		days = DefaultDetailDays
	}

	w, err := s.wallets.GetWallet(ctx, address)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().AddDate(0, 0, -days)
	trades := tradesSince(w.Trades, cutoff)

	pnl := decimal.Zero
	for _, t := range trades {
		pnl = pnl.Add(decimal.NewFromFloat(t.PnL))
	}
	totalPnL, _ := pnl.Float64()

	history := make([]models.PnLData, 0, len(w.HistoricalPnL))
	for _, d := range w.HistoricalPnL {
		if day, ok := parsePnLDate(d.Date); ok && !day.Before(cutoff) {
			history = append(history, d)
		}
	}

	return &WalletDetail{
		TrackedWallet: w,
		Window: WindowStats{
			Days:           days,
			TotalPnL:       totalPnL,
			TotalTrades:    len(trades),
			WinRate:        WinRate(trades),
			PortfolioValue: PortfolioValue(w.Holdings),
			Trades:         trades,
			HistoricalPnL:  history,
		},
	}, nil
}

// TradeFeed returns recorded trades across wallets, newest first. An empty
// wallet filter includes every wallet.
func (s *RollupService) TradeFeed(ctx context.Context, wallet string, limit int) ([]FeedTrade, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}

	var wallets []*models.TrackedWallet
	if wallet != "" {
		w, err := s.wallets.GetWallet(ctx, wallet)
		if err != nil {
			return nil, err
		}
		wallets = []*models.TrackedWallet{w}
	} else {
		var err error
		wallets, err = s.wallets.ListWallets(ctx)
		if err != nil {
			return nil, err
		}
	}

	feed := make([]FeedTrade, 0)
	for _, w := range wallets {
		for _, t := range w.Trades {
			feed = append(feed, FeedTrade{Trade: t, Wallet: w.Address, WalletName: w.Name, Avatar: w.Avatar})
		}
	}

	sort.SliceStable(feed, func(i, j int) bool {
		if feed[i].Timestamp != feed[j].Timestamp {
			return feed[i].Timestamp > feed[j].Timestamp
		}
		if feed[i].TxHash != feed[j].TxHash {
			return feed[i].TxHash < feed[j].TxHash
		}
		return feed[i].Type < feed[j].Type
	})
	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}

// Trending aggregates swap trades per token over 1h, 4h, 24h or 7d, ordered
// by trade count then volume
func (s *RollupService) Trending(ctx context.Context, rangeKey string) ([]TrendingToken, error) {
	if rangeKey == "" {
		rangeKey = "4h"
	}
	window, ok := trendingWindows[rangeKey]
	if !ok {
		return nil, apperrors.NewInvalidParameterError("range", "must be one of 1h, 4h, 24h, 7d")
	}

	wallets, err := s.wallets.ListWallets(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-window).UnixMilli()
	byToken := make(map[string]*TrendingToken)
	volumes := make(map[string]decimal.Decimal)
	holders := make(map[string]map[string]struct{})

	for _, w := range wallets {
		for _, t := range w.Trades {
			if !t.IsSwapLeg() || t.Timestamp < cutoff || t.TokenAddress == models.UnknownToken {
				continue
			}
			agg, ok := byToken[t.TokenAddress]
			if !ok {
				agg = &TrendingToken{Token: t.Token, TokenAddress: t.TokenAddress, TokenIcon: t.TokenIcon}
				byToken[t.TokenAddress] = agg
				holders[t.TokenAddress] = make(map[string]struct{})
			}
			agg.Trades++
			if t.Type == models.TradeBuy {
				agg.Buys++
			} else {
				agg.Sells++
			}
			if t.Timestamp > agg.LastTrade {
				agg.LastTrade = t.Timestamp
			}
			volumes[t.TokenAddress] = volumes[t.TokenAddress].Add(Notional(t.Amount, t.Price))
			holders[t.TokenAddress][w.Address] = struct{}{}
		}
	}

	trending := make([]TrendingToken, 0, len(byToken))
	for addr, agg := range byToken {
		agg.VolumeUSD, _ = volumes[addr].Float64()
		agg.Wallets = len(holders[addr])
		trending = append(trending, *agg)
	}
	sort.Slice(trending, func(i, j int) bool {
		if trending[i].Trades != trending[j].Trades {
			return trending[i].Trades > trending[j].Trades
		}
		if trending[i].VolumeUSD != trending[j].VolumeUSD {
			return trending[i].VolumeUSD > trending[j].VolumeUSD
		}
		return trending[i].TokenAddress < trending[j].TokenAddress
	})
	return trending, nil
}

func tradesSince(trades []models.Trade, start time.Time) []models.Trade {
	ms := start.UnixMilli()
	out := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp >= ms {
			out = append(out, t)
		}
	}
	return out
}

func historySince(history []models.PnLData, start time.Time) (float64, int) {
	pnl := decimal.Zero
	count := 0
	for _, d := range history {
		day, ok := parsePnLDate(d.Date)
		if !ok || day.Before(start) {
			continue
		}
		pnl = pnl.Add(decimal.NewFromFloat(d.PnL))
		count += d.Trades
	}
	f, _ := pnl.Float64()
	return f, count
}

// parsePnLDate accepts calendar dates and RFC 3339 timestamps
func parsePnLDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

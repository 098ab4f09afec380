package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/models"
)

func ms(t time.Time) int64 { return t.UnixMilli() }

func rollupFixture() *mockWalletReader {
	day := func(n int) string { return fixedNow.AddDate(0, 0, -n).Format("2006-01-02") }

	alpha := models.NewTrackedWallet(models.WalletProfile{Address: walletA, Name: "Alpha"})
	alpha.HistoricalPnL = []models.PnLData{
		{Date: day(20), PnL: 1000, Trades: 10},
		{Date: day(3), PnL: 50, Trades: 2},
		{Date: day(0), PnL: 10, Trades: 1},
	}
	alpha.Trades = []models.Trade{
		{Timestamp: ms(fixedNow.Add(-30 * time.Minute)), Type: models.TradeBuy, Token: "BONK", TokenAddress: mintBonk, Amount: 1e7, Price: bonkPrice, PnL: 5, TxHash: "a1"},
		{Timestamp: ms(fixedNow.Add(-30 * time.Minute)), Type: models.TradeSell, Token: "SOL", TokenAddress: mintWSOL, Amount: 2, Price: solPrice, TxHash: "a1"},
		{Timestamp: ms(fixedNow.AddDate(0, 0, -10)), Type: models.TradeBuy, Token: "USDC", TokenAddress: mintUSDC, Amount: 100, Price: 1, PnL: -1, TxHash: "a0"},
	}
	alpha.Holdings = []models.TokenHolding{{Symbol: "BONK", Value: 20}, {Symbol: "USDC", Value: 5.5}}

	bravo := models.NewTrackedWallet(models.WalletProfile{Address: walletB, Name: "Bravo"})
	bravo.HistoricalPnL = []models.PnLData{
		{Date: day(5), PnL: 500, Trades: 40},
		{Date: "garbage", PnL: 1e9, Trades: 1e6},
	}
	bravo.Trades = []models.Trade{
		{Timestamp: ms(fixedNow.Add(-2 * time.Hour)), Type: models.TradeBuy, Token: "BONK", TokenAddress: mintBonk, Amount: 5e6, Price: bonkPrice, PnL: 1, TxHash: "b1"},
		{Timestamp: ms(fixedNow.Add(-2 * time.Hour)), Type: models.TradeSell, Token: "USDC", TokenAddress: mintUSDC, Amount: 100, Price: 1, PnL: 1, TxHash: "b1"},
		{Timestamp: ms(fixedNow.Add(-time.Hour)), Type: models.TradeTransfer, Token: "SOL", TokenAddress: mintWSOL, Amount: 1, TxHash: "b2"},
	}

	charlie := models.NewTrackedWallet(models.WalletProfile{Address: walletC, Name: "Charlie"})

	return &mockWalletReader{wallets: []*models.TrackedWallet{alpha, bravo, charlie}}
}

func newTestRollupService() *RollupService {
	svc := NewRollupService(rollupFixture())
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func TestComputeStats(t *testing.T) {
	trades := []models.Trade{
		{Type: models.TradeBuy, Amount: 2, Price: 50, PnL: 10},
		{Type: models.TradeSell, Amount: 1, Price: 100, PnL: -4},
		{Type: models.TradeTransfer, Amount: 1000, Price: 0},
	}
	holdings := []models.TokenHolding{{Value: 1.25}, {Value: 2.5}}

	stats := ComputeStats(trades, holdings)
	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 1, stats.BuyCount)
	assert.Equal(t, 1, stats.SellCount)
	assert.Equal(t, 1, stats.TransferCount)
	assert.InDelta(t, 100.0/3, stats.WinRate, 1e-9)
	assert.Equal(t, 6.0, stats.TotalPnL)
	assert.Equal(t, 200.0, stats.VolumeUSD)
	assert.Equal(t, 3.75, stats.PortfolioValue)
	assert.Equal(t, 2, stats.HoldingsCount)
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil, nil)
	assert.Equal(t, models.WalletStats{}, stats)
}

func TestRollupService_LeaderboardByPnL(t *testing.T) {
	svc := newTestRollupService()

	weekly, err := svc.Leaderboard(context.Background(), RangeWeekly, SortByPnL)
	require.NoError(t, err)
	require.Len(t, weekly, 3)

	assert.Equal(t, walletB, weekly[0].Address)
	assert.Equal(t, 500.0, weekly[0].PnL)
	assert.Equal(t, 40, weekly[0].Trades)
	assert.Equal(t, 1, weekly[0].Rank)

	assert.Equal(t, walletA, weekly[1].Address)
	assert.Equal(t, 60.0, weekly[1].PnL)
	assert.Equal(t, 3, weekly[1].Trades)
	assert.Equal(t, 25.5, weekly[1].PortfolioValue)

	assert.Equal(t, walletC, weekly[2].Address)
	assert.Zero(t, weekly[2].WinRate)

	monthly, err := svc.Leaderboard(context.Background(), RangeMonthly, SortByPnL)
	require.NoError(t, err)
	assert.Equal(t, walletA, monthly[0].Address)
	assert.Equal(t, 1060.0, monthly[0].PnL)
}

func TestRollupService_LeaderboardByWinRate(t *testing.T) {
	svc := newTestRollupService()

	board, err := svc.Leaderboard(context.Background(), RangeDaily, SortByWinRate)
	require.NoError(t, err)

	// Bravo: 2 of 3 trades in the last day won; Alpha: 1 of 2
	assert.Equal(t, walletB, board[0].Address)
	assert.InDelta(t, 200.0/3, board[0].WinRate, 1e-9)
	assert.Equal(t, walletA, board[1].Address)
	assert.Equal(t, 50.0, board[1].WinRate)
}

func TestRollupService_LeaderboardByTrades(t *testing.T) {
	svc := newTestRollupService()

	board, err := svc.Leaderboard(context.Background(), RangeDaily, SortByTrades)
	require.NoError(t, err)
	assert.Equal(t, walletA, board[0].Address)
	assert.Equal(t, 1, board[0].Trades)
}

func TestRollupService_LeaderboardDefaultsAndValidation(t *testing.T) {
	svc := newTestRollupService()

	board, err := svc.Leaderboard(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, board, 3)

	daily, err := svc.Leaderboard(context.Background(), RangeDaily, SortByPnL)
	require.NoError(t, err)
	assert.Equal(t, daily, board, "empty range and sort default to daily by pnl")

	_, err = svc.Leaderboard(context.Background(), "yearly", SortByPnL)
	assert.True(t, apperrors.IsUserError(err))

	_, err = svc.Leaderboard(context.Background(), RangeDaily, "volume")
	assert.True(t, apperrors.IsUserError(err))
}

func TestRollupService_WalletDetail(t *testing.T) {
	svc := newTestRollupService()

	detail, err := svc.WalletDetail(context.Background(), walletA, 7)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", detail.Name)
	assert.Equal(t, 7, detail.Window.Days)
	assert.Equal(t, 2, detail.Window.TotalTrades)
	assert.Equal(t, 5.0, detail.Window.TotalPnL)
	assert.Equal(t, 50.0, detail.Window.WinRate)
	assert.Equal(t, 25.5, detail.Window.PortfolioValue)
	assert.Len(t, detail.Window.HistoricalPnL, 2)

	detail, err = svc.WalletDetail(context.Background(), walletA, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDetailDays, detail.Window.Days)
	assert.Equal(t, 3, detail.Window.TotalTrades)
}

func TestRollupService_WalletDetailNotFound(t *testing.T) {
	_, err := newTestRollupService().WalletDetail(context.Background(), "missing", 7)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRollupService_TradeFeed(t *testing.T) {
	svc := newTestRollupService()

	feed, err := svc.TradeFeed(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, feed, 6)
	for i := 1; i < len(feed); i++ {
		assert.GreaterOrEqual(t, feed[i-1].Timestamp, feed[i].Timestamp)
	}
	assert.Equal(t, walletA, feed[0].Wallet)
	assert.Equal(t, "Alpha", feed[0].WalletName)

	limited, err := svc.TradeFeed(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	bravo, err := svc.TradeFeed(context.Background(), walletB, 10)
	require.NoError(t, err)
	assert.Len(t, bravo, 3)
	assert.Equal(t, "b2", bravo[0].TxHash)

	_, err = svc.TradeFeed(context.Background(), "missing", 10)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRollupService_Trending(t *testing.T) {
	svc := newTestRollupService()

	hour, err := svc.Trending(context.Background(), "1h")
	require.NoError(t, err)
	require.Len(t, hour, 2)
	// BONK and SOL tie on trade count; SOL has the larger volume
	assert.Equal(t, mintWSOL, hour[0].TokenAddress)
	assert.Equal(t, 1, hour[0].Trades)
	assert.InDelta(t, 300.0, hour[0].VolumeUSD, 1e-9)
	assert.Equal(t, mintBonk, hour[1].TokenAddress)

	day, err := svc.Trending(context.Background(), "24h")
	require.NoError(t, err)
	require.Len(t, day, 3)
	bonk := day[0]
	assert.Equal(t, "BONK", bonk.Token)
	assert.Equal(t, 2, bonk.Trades)
	assert.Equal(t, 2, bonk.Buys)
	assert.Equal(t, 2, bonk.Wallets)
	assert.Equal(t, ms(fixedNow.Add(-30*time.Minute)), bonk.LastTrade)
	for _, tok := range day {
		assert.NotEqual(t, 0, tok.Trades)
	}

	_, err = svc.Trending(context.Background(), "1y")
	assert.True(t, apperrors.IsUserError(err))
}

func TestRollupService_StoreFailure(t *testing.T) {
	svc := NewRollupService(&mockWalletReader{err: errors.New("db down")})

	_, err := svc.Leaderboard(context.Background(), RangeDaily, SortByPnL)
	assert.Error(t, err)
	_, err = svc.Trending(context.Background(), "4h")
	assert.Error(t, err)
	_, err = svc.ListWallets(context.Background())
	assert.Error(t, err)
}

package service

import (
	"context"
	"errors"
	"sync"

	"github.com/kol-dashboard/internal/config"
	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/types"
)

const (
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB = "GThUX1Atko4tqhN2NaiTazWSeFWMuiUvfFnyJyUghFMJ"
	walletC = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

	mintBonk  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	mintUSDC  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	mintWSOL  = "So11111111111111111111111111111111111111112"
	bonkIcon  = "https://example.com/bonk.png"
	usdcIcon  = "https://example.com/usdc.png"
	solPrice  = 150.0
	bonkPrice = 0.00002
)

var errUpstream = errors.New("upstream unavailable")

// Mock gateway for testing

type mockGateway struct {
	mu sync.Mutex

	txs      map[string][]types.Transaction
	balances map[string][]types.TokenBalance
	metadata map[string]*types.AssetMetadata
	prices   map[string][]types.PriceQuote

	failTxs   map[string]error
	failMeta  map[string]error
	failPrice map[string]error

	txCalls    int
	metaCalls  int
	priceCalls int
	metaMints  []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		txs:       make(map[string][]types.Transaction),
		balances:  make(map[string][]types.TokenBalance),
		metadata:  make(map[string]*types.AssetMetadata),
		prices:    make(map[string][]types.PriceQuote),
		failTxs:   make(map[string]error),
		failMeta:  make(map[string]error),
		failPrice: make(map[string]error),
	}
}

// withMarket registers the usual metadata and prices
func (m *mockGateway) withMarket() *mockGateway {
	m.metadata[mintBonk] = &types.AssetMetadata{Symbol: "BONK", Name: "Bonk", IconURL: bonkIcon}
	m.metadata[mintUSDC] = &types.AssetMetadata{Symbol: "USDC", Name: "USD Coin", IconURL: usdcIcon}
	m.prices[mintWSOL] = []types.PriceQuote{{PriceUSD: solPrice, PriceChange24h: 1.5}}
	m.prices[mintBonk] = []types.PriceQuote{{PriceUSD: bonkPrice, PriceChange24h: -4}, {PriceUSD: 1}}
	m.prices[mintUSDC] = []types.PriceQuote{{PriceUSD: 1}}
	return m
}

func (m *mockGateway) FetchTransactionHistory(ctx context.Context, address string) ([]types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	if err := m.failTxs[address]; err != nil {
		return nil, err
	}
	return append([]types.Transaction{}, m.txs[address]...), nil
}

func (m *mockGateway) FetchTokenBalances(ctx context.Context, address string) ([]types.TokenBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.TokenBalance{}, m.balances[address]...), nil
}

func (m *mockGateway) FetchAssetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metaCalls++
	m.metaMints = append(m.metaMints, mint)
	if err := m.failMeta[mint]; err != nil {
		return nil, err
	}
	if meta, ok := m.metadata[mint]; ok {
		cp := *meta
		return &cp, nil
	}
	return &types.AssetMetadata{}, nil
}

func (m *mockGateway) FetchTokenPriceUSD(ctx context.Context, address string) ([]types.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceCalls++
	if err := m.failPrice[address]; err != nil {
		return nil, err
	}
	return append([]types.PriceQuote{}, m.prices[address]...), nil
}

func (m *mockGateway) calls() (tx, meta, price int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCalls, m.metaCalls, m.priceCalls
}

// Mock caches for testing

type mockMetadataCache struct {
	mu      sync.Mutex
	entries map[string]*types.AssetMetadata
	getErr  error
	sets    int
}

func newMockMetadataCache() *mockMetadataCache {
	return &mockMetadataCache{entries: make(map[string]*types.AssetMetadata)}
}

func (c *mockMetadataCache) GetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	meta, ok := c.entries[mint]
	return meta, ok, nil
}

func (c *mockMetadataCache) SetMetadata(ctx context.Context, mint string, meta *types.AssetMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[mint] = meta
	return nil
}

type mockPriceCache struct {
	mu      sync.Mutex
	entries map[string]types.PriceQuote
}

func newMockPriceCache() *mockPriceCache {
	return &mockPriceCache{entries: make(map[string]types.PriceQuote)}
}

func (c *mockPriceCache) GetPrice(ctx context.Context, mint string) (types.PriceQuote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.entries[mint]
	return q, ok, nil
}

func (c *mockPriceCache) SetPrice(ctx context.Context, mint string, quote types.PriceQuote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[mint] = quote
	return nil
}

// Mock archive for testing

type mockArchive struct {
	mu      sync.Mutex
	batches map[string][]models.Trade
	cycles  []string
	err     error
}

func newMockArchive() *mockArchive {
	return &mockArchive{batches: make(map[string][]models.Trade)}
}

func (a *mockArchive) ArchiveTrades(ctx context.Context, cycleID, wallet string, trades []models.Trade) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cycles = append(a.cycles, cycleID)
	if a.err != nil {
		return a.err
	}
	a.batches[wallet] = append(a.batches[wallet], trades...)
	return nil
}

// Mock wallet reader for rollup tests

type mockWalletReader struct {
	wallets []*models.TrackedWallet
	err     error
}

func (r *mockWalletReader) GetWallet(ctx context.Context, address string) (*models.TrackedWallet, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, w := range r.wallets {
		if w.Address == address {
			return w, nil
		}
	}
	return nil, apperrors.NewNotFoundError("wallet", address)
}

func (r *mockWalletReader) ListWallets(ctx context.Context) ([]*models.TrackedWallet, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.wallets, nil
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaterialityThresholdUSD: DefaultMaterialityThresholdUSD,
		TxConcurrency:           4,
		WalletConcurrency:       1,
		DecimalAdjustHoldings:   true,
	}
}

func swapTx(sig string, ts int64, given, givenToken, received, receivedToken string) types.Transaction {
	return types.Transaction{
		Type:        types.TxTypeSwap,
		Description: walletA + " swapped " + given + " " + givenToken + " for " + received + " " + receivedToken,
		Timestamp:   ts,
		Signature:   sig,
	}
}

// blockingSource holds every lookup until release is closed, then answers
// with an error if the lookup context was cancelled
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSource() *blockingSource {
	return &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSource) wait(ctx context.Context) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return ctx.Err()
}

func (b *blockingSource) FetchTokenPriceUSD(ctx context.Context, address string) ([]types.PriceQuote, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return []types.PriceQuote{{PriceUSD: solPrice}}, nil
}

func (b *blockingSource) FetchAssetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return &types.AssetMetadata{Symbol: "BONK", IconURL: bonkIcon}, nil
}

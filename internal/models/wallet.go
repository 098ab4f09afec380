// Package models provides data models for the KOL dashboard.
package models

// CurrentSchemaVersion is the layout version written with every wallet record
const CurrentSchemaVersion = 1

// WalletProfile holds the static, roster-defined identity of a tracked wallet
type WalletProfile struct {
	Address     string   `json:"address" yaml:"address"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Twitter     string   `json:"twitter" yaml:"twitter"`
	Telegram    string   `json:"telegram" yaml:"telegram"`
	Avatar      string   `json:"avatar" yaml:"avatar"`
	Tags        []string `json:"tags" yaml:"tags"`
}

// TrackedWallet is the persisted record of one KOL wallet
type TrackedWallet struct {
	Address       string           `json:"address" db:"address"`
	Name          string           `json:"name" db:"name"`
	Description   string           `json:"description" db:"description"`
	Twitter       string           `json:"twitter" db:"twitter"`
	Telegram      string           `json:"telegram" db:"telegram"`
	Avatar        string           `json:"avatar" db:"avatar"`
	Tags          []string         `json:"tags" db:"tags"`
	Holdings      []TokenHolding   `json:"holdings" db:"holdings"`
	Trades        []Trade          `json:"trades" db:"trades"`
	Activities    []WalletActivity `json:"activities" db:"activities"`
	HistoricalPnL []PnLData        `json:"historicalPnL" db:"historical_pnl"`
	Stats         WalletStats      `json:"stats" db:"stats"`
	LastUpdated   int64            `json:"lastUpdated" db:"last_updated"` // Epoch millis, 0 until the first refresh
	SchemaVersion int              `json:"schemaVersion" db:"schema_version"`
}

// NewTrackedWallet creates an empty record for a roster profile
func NewTrackedWallet(p WalletProfile) *TrackedWallet {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return &TrackedWallet{
		Address:       p.Address,
		Name:          p.Name,
		Description:   p.Description,
		Twitter:       p.Twitter,
		Telegram:      p.Telegram,
		Avatar:        p.Avatar,
		Tags:          tags,
		Holdings:      []TokenHolding{},
		Trades:        []Trade{},
		Activities:    []WalletActivity{},
		HistoricalPnL: []PnLData{},
		SchemaVersion: CurrentSchemaVersion,
	}
}

// TokenHolding is a point-in-time balance snapshot of one mint
type TokenHolding struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Mint      string  `json:"mint"`
	Amount    float64 `json:"amount"`
	RawAmount string  `json:"rawAmount"`
	Decimals  uint8   `json:"decimals"`
	Value     float64 `json:"value"`
	Change24h float64 `json:"change24h"`
	Icon      string  `json:"icon"`
}

// WalletActivity is an activity feed entry. The refresh pipeline never writes it.
type WalletActivity struct {
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
	Description string `json:"description"`
	TxHash      string `json:"txHash,omitempty"`
}

// PnLData is one day of historical profit and loss
type PnLData struct {
	Date       string  `json:"date"`
	PnL        float64 `json:"pnl"`
	Cumulative float64 `json:"cumulative"`
	Trades     int     `json:"trades"`
}

// WalletStats is the rollup written alongside each refresh
type WalletStats struct {
	TotalTrades    int     `json:"totalTrades"`
	BuyCount       int     `json:"buyCount"`
	SellCount      int     `json:"sellCount"`
	TransferCount  int     `json:"transferCount"`
	WinRate        float64 `json:"winRate"`
	TotalPnL       float64 `json:"totalPnl"`
	VolumeUSD      float64 `json:"volumeUsd"`
	PortfolioValue float64 `json:"portfolioValue"`
	HoldingsCount  int     `json:"holdingsCount"`
}

// RefreshResult is the output of one wallet refresh. The store replaces the
// wallet's trades, holdings and stats with it wholesale.
type RefreshResult struct {
	Trades      []Trade        `json:"trades"`
	Holdings    []TokenHolding `json:"holdings"`
	Stats       WalletStats    `json:"stats"`
	LastUpdated int64          `json:"lastUpdated"`
}

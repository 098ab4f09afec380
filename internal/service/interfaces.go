package service

import (
	"context"

	"github.com/kol-dashboard/internal/adapter"
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/types"
)

// Repository interfaces for dependency injection

// WalletReader reads tracked wallets
type WalletReader interface {
	GetWallet(ctx context.Context, address string) (*models.TrackedWallet, error)
	ListWallets(ctx context.Context) ([]*models.TrackedWallet, error)
}

// WalletStore is the persistence sink of the refresh pipeline
type WalletStore interface {
	WalletReader
	EnsureWallet(ctx context.Context, profile models.WalletProfile) (*models.TrackedWallet, error)
	UpsertWalletResult(ctx context.Context, address string, result *models.RefreshResult) error
}

// MetadataCache caches mint metadata across refresh cycles
type MetadataCache interface {
	GetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, bool, error)
	SetMetadata(ctx context.Context, mint string, meta *types.AssetMetadata) error
}

// PriceCache caches primary market quotes across refresh cycles
type PriceCache interface {
	GetPrice(ctx context.Context, mint string) (types.PriceQuote, bool, error)
	SetPrice(ctx context.Context, mint string, quote types.PriceQuote) error
}

// TradeArchive receives the trades of every successful wallet refresh
type TradeArchive interface {
	ArchiveTrades(ctx context.Context, cycleID, wallet string, trades []models.Trade) error
}

// ProviderGateway is every provider capability the pipeline consumes
type ProviderGateway interface {
	adapter.TransactionSource
	adapter.BalanceSource
	adapter.MetadataSource
	adapter.PriceSource
}

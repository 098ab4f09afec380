package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/types"
)

// HoldingsBuilder values a wallet's token accounts
type HoldingsBuilder struct {
	resolver       *TokenResolver
	prices         *PriceService
	decimalAdjust  bool
	maxConcurrency int
}

// NewHoldingsBuilder creates a holdings builder. When decimalAdjust is set,
// raw base-unit balances are shifted by the mint's decimals before valuation.
func NewHoldingsBuilder(resolver *TokenResolver, prices *PriceService, decimalAdjust bool) *HoldingsBuilder {
	return &HoldingsBuilder{
		resolver:       resolver,
		prices:         prices,
		decimalAdjust:  decimalAdjust,
		maxConcurrency: 1,
	}
}

// SetConcurrency bounds the number of balances valued at once
func (b *HoldingsBuilder) SetConcurrency(n int) {
	if n > 0 {
		b.maxConcurrency = n
	}
}

// Build values every non-zero balance, keeping input order. A balance whose
// lookups fail is logged and left out.
func (b *HoldingsBuilder) Build(ctx context.Context, balances []types.TokenBalance) []models.TokenHolding {
	logger := logging.FromContext(ctx)

	built := boundedMap(ctx, balances, b.maxConcurrency, func(ctx context.Context, bal types.TokenBalance) (*models.TokenHolding, error) {
		return b.buildOne(ctx, bal)
	})

	holdings := make([]models.TokenHolding, 0, len(built))
	for i, r := range built {
		if r.err != nil {
			logger.WithFields(map[string]interface{}{
				"mint":    balances[i].Mint,
				"account": balances[i].Account,
			}).WithError(r.err).Warn("Skipping token holding")
			continue
		}
		if r.value != nil {
			holdings = append(holdings, *r.value)
		}
	}
	return holdings
}

func (b *HoldingsBuilder) buildOne(ctx context.Context, bal types.TokenBalance) (*models.TokenHolding, error) {
	amount, err := b.amount(bal)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, nil
	}

	meta, err := b.resolver.Metadata(ctx, bal.Mint)
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", bal.Mint, err)
	}
	quote, err := b.prices.Quote(ctx, bal.Mint)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", bal.Mint, err)
	}

	amt, _ := amount.Float64()
	value, _ := amount.Mul(decimal.NewFromFloat(quote.PriceUSD)).Float64()

	return &models.TokenHolding{
		Symbol:    orDefault(meta.Symbol, models.UnknownToken),
		Name:      orDefault(meta.Name, models.UnknownTokenName),
		Mint:      bal.Mint,
		Amount:    amt,
		RawAmount: bal.RawAmount,
		Decimals:  bal.Decimals,
		Value:     value,
		Change24h: quote.PriceChange24h,
		Icon:      orDefault(meta.IconURL, models.HoldingIconPlaceholder),
	}, nil
}

func (b *HoldingsBuilder) amount(bal types.TokenBalance) (decimal.Decimal, error) {
	if bal.RawAmount == "" {
		return decimal.Zero, nil
	}
	raw, err := decimal.NewFromString(bal.RawAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid raw amount %q: %w", bal.RawAmount, err)
	}
	if b.decimalAdjust {
		raw = raw.Shift(-int32(bal.Decimals))
	}
	return raw, nil
}

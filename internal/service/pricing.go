package service

import (
	"context"
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/kol-dashboard/internal/adapter"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/types"
)

// DefaultMaterialityThresholdUSD is the notional a swap leg must exceed to be recorded
const DefaultMaterialityThresholdUSD = 100.0

// PriceService looks up the USD price of a mint from its primary market
type PriceService struct {
	prices adapter.PriceSource
	cache  PriceCache

	mu    sync.RWMutex
	memo  map[string]types.PriceQuote
	group singleflight.Group
}

// NewPriceService creates a price service over a price source
func NewPriceService(prices adapter.PriceSource) *PriceService {
	return &PriceService{
		prices: prices,
		memo:   make(map[string]types.PriceQuote),
	}
}

// SetCache enables the cross-cycle price cache
func (s *PriceService) SetCache(cache PriceCache) {
	s.cache = cache
}

// ResetMemo forgets the quotes of the previous cycle
func (s *PriceService) ResetMemo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo = make(map[string]types.PriceQuote)
}

// Quote returns the first quote for address, or a zero quote when there is
// no market. The empty address is priced at zero without a lookup.
func (s *PriceService) Quote(ctx context.Context, address string) (types.PriceQuote, error) {
	if address == "" {
		return types.PriceQuote{}, nil
	}

	s.mu.RLock()
	q, ok := s.memo[address]
	s.mu.RUnlock()
	if ok {
		return q, nil
	}

	// Waiters share the result, so one caller's cancellation must not fail the others
	v, err, _ := s.group.Do(address, func() (interface{}, error) {
		return s.lookup(context.WithoutCancel(ctx), address)
	})
	if err != nil {
		return types.PriceQuote{}, err
	}
	q = v.(types.PriceQuote)

	s.mu.Lock()
	s.memo[address] = q
	s.mu.Unlock()
	return q, nil
}

// UnitPrice returns the USD price of one unit of address
func (s *PriceService) UnitPrice(ctx context.Context, address string) (float64, error) {
	q, err := s.Quote(ctx, address)
	if err != nil {
		return 0, err
	}
	return q.PriceUSD, nil
}

func (s *PriceService) lookup(ctx context.Context, address string) (types.PriceQuote, error) {
	logger := logging.FromContext(ctx).WithField("mint", address)

	if s.cache != nil {
		q, found, err := s.cache.GetPrice(ctx, address)
		if err != nil {
			logger.WithError(err).Warn("Price cache read failed")
		} else if found {
			return q, nil
		}
	}

	quotes, err := s.prices.FetchTokenPriceUSD(ctx, address)
	if err != nil {
		return types.PriceQuote{}, err
	}

	var q types.PriceQuote
	if len(quotes) > 0 {
		q = quotes[0]
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, address, q); err != nil {
			logger.WithError(err).Warn("Price cache write failed")
		}
	}
	return q, nil
}

// MaterialityFilter drops swaps too small to matter
type MaterialityFilter struct {
	ThresholdUSD float64
}

// NewMaterialityFilter creates a filter; a negative threshold falls back to the default
func NewMaterialityFilter(thresholdUSD float64) MaterialityFilter {
	if thresholdUSD < 0 {
		thresholdUSD = DefaultMaterialityThresholdUSD
	}
	return MaterialityFilter{ThresholdUSD: thresholdUSD}
}

// Qualifies reports whether either leg's notional strictly exceeds the threshold
func (f MaterialityFilter) Qualifies(amountA, priceA, amountB, priceB float64) bool {
	threshold := finite(f.ThresholdUSD)
	return Notional(amountA, priceA).GreaterThan(threshold) ||
		Notional(amountB, priceB).GreaterThan(threshold)
}

// Notional is amount times price in decimal arithmetic. A non-finite
// operand counts as 0.
func Notional(amount, price float64) decimal.Decimal {
	return finite(amount).Mul(finite(price))
}

func finite(f float64) decimal.Decimal {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

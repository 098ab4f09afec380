package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/kol-dashboard/internal/config"
	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/types"
)

// DexScreenerClient reads token prices from the DexScreener tokens API
type DexScreenerClient struct {
	http   *resty.Client
	policy *callPolicy
}

// NewDexScreenerClient creates a DexScreener client
func NewDexScreenerClient(cfg config.DexScreenerConfig, policy *callPolicy) *DexScreenerClient {
	return &DexScreenerClient{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Accept", "application/json"),
		policy: policy,
	}
}

type dexScreenerPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	PriceUSD    string `json:"priceUsd"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
}

// FetchTokenPriceUSD returns one quote per pair in DexScreener's order.
// The first quote is the primary market.
func (c *DexScreenerClient) FetchTokenPriceUSD(ctx context.Context, address string) ([]types.PriceQuote, error) {
	var quotes []types.PriceQuote

	err := c.policy.do(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("address", address).
			Get("/tokens/v1/solana/{address}")
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return apperrors.NewProviderStatusError(ProviderDexScreener, resp.StatusCode(), resp.String())
		}

		body := bytes.TrimSpace(resp.Body())
		if len(body) == 0 || bytes.Equal(body, []byte("null")) {
			quotes = []types.PriceQuote{}
			return nil
		}

		var pairs []dexScreenerPair
		if err := json.Unmarshal(body, &pairs); err != nil {
			return apperrors.NewProviderBadResponseError(ProviderDexScreener, fmt.Errorf("decode pairs: %w", err))
		}

		decoded := make([]types.PriceQuote, 0, len(pairs))
		for _, p := range pairs {
			decoded = append(decoded, types.PriceQuote{
				PriceUSD:       parsePrice(p.PriceUSD),
				PriceChange24h: p.PriceChange.H24,
				PairAddress:    p.PairAddress,
				DexID:          p.DexID,
			})
		}
		quotes = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

// parsePrice converts a decimal price string, 0 when absent, malformed or
// out of float64 range
func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

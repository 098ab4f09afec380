package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/kol-dashboard/internal/config"
	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/types"
)

// BirdeyeClient serves both metadata and prices from the Birdeye public API
type BirdeyeClient struct {
	http   *resty.Client
	policy *callPolicy
}

// NewBirdeyeClient creates a Birdeye client. Every request carries the API key
// and the solana chain header.
func NewBirdeyeClient(cfg config.BirdeyeConfig, policy *callPolicy) *BirdeyeClient {
	return &BirdeyeClient{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Accept", "application/json").
			SetHeader("X-API-KEY", cfg.APIKey).
			SetHeader("x-chain", "solana"),
		policy: policy,
	}
}

type birdeyeEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type birdeyePrice struct {
	Value          float64 `json:"value"`
	PriceChange24h float64 `json:"priceChange24h"`
}

type birdeyeMetadata struct {
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	LogoURI string `json:"logo_uri"`
	// Older responses use camel case
	LogoURILegacy string `json:"logoURI"`
}

// get fetches path and decodes the data member into out. ok is false when
// Birdeye answered with success=false or no data.
func (c *BirdeyeClient) get(ctx context.Context, path, address string, out interface{}) (bool, error) {
	var ok bool

	err := c.policy.do(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("address", address).
			Get(path)
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return apperrors.NewProviderStatusError(ProviderBirdeye, resp.StatusCode(), resp.String())
		}

		var env birdeyeEnvelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return apperrors.NewProviderBadResponseError(ProviderBirdeye, fmt.Errorf("decode %s: %w", path, err))
		}
		if !env.Success || len(env.Data) == 0 || string(env.Data) == "null" {
			ok = false
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperrors.NewProviderBadResponseError(ProviderBirdeye, fmt.Errorf("decode %s data: %w", path, err))
		}
		ok = true
		return nil
	})
	return ok, err
}

// FetchTokenPriceUSD returns a single quote, or none when Birdeye has no price
func (c *BirdeyeClient) FetchTokenPriceUSD(ctx context.Context, address string) ([]types.PriceQuote, error) {
	var p birdeyePrice
	ok, err := c.get(ctx, "/defi/price", address, &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.PriceQuote{}, nil
	}
	return []types.PriceQuote{{PriceUSD: p.Value, PriceChange24h: p.PriceChange24h}}, nil
}

// FetchAssetMetadata returns symbol, name and logo of mint
func (c *BirdeyeClient) FetchAssetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, error) {
	var m birdeyeMetadata
	ok, err := c.get(ctx, "/defi/v3/token/meta-data/single", mint, &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.AssetMetadata{}, nil
	}
	icon := m.LogoURI
	if icon == "" {
		icon = m.LogoURILegacy
	}
	return &types.AssetMetadata{Symbol: m.Symbol, Name: m.Name, IconURL: icon}, nil
}

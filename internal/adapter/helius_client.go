package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/kol-dashboard/internal/config"
	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/types"
)

// HeliusClient reads parsed transaction history from the Helius enhanced
// transactions API
type HeliusClient struct {
	http    *resty.Client
	apiKey  string
	txLimit int
	policy  *callPolicy
}

// NewHeliusClient creates a client for the enhanced transactions API
func NewHeliusClient(cfg config.HeliusConfig, policy *callPolicy) *HeliusClient {
	return &HeliusClient{
		http: resty.New().
			SetBaseURL(cfg.APIURL).
			SetHeader("Accept", "application/json"),
		apiKey:  cfg.APIKey,
		txLimit: cfg.TxLimit,
		policy:  policy,
	}
}

// FetchTransactionHistory returns the most recent enhanced transactions of address
func (c *HeliusClient) FetchTransactionHistory(ctx context.Context, address string) ([]types.Transaction, error) {
	var txs []types.Transaction

	err := c.policy.do(ctx, func(ctx context.Context) error {
		req := c.http.R().
			SetContext(ctx).
			SetPathParam("address", address).
			SetQueryParam("api-key", c.apiKey)
		if c.txLimit > 0 {
			req.SetQueryParam("limit", strconv.Itoa(c.txLimit))
		}

		resp, err := req.Get("/v0/addresses/{address}/transactions")
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return apperrors.NewProviderStatusError(ProviderHelius, resp.StatusCode(), resp.String())
		}

		body := bytes.TrimSpace(resp.Body())
		if len(body) == 0 || bytes.Equal(body, []byte("null")) {
			txs = []types.Transaction{}
			return nil
		}

		var decoded []types.Transaction
		if err := json.Unmarshal(body, &decoded); err != nil {
			return apperrors.NewProviderBadResponseError(ProviderHelius, fmt.Errorf("decode transactions: %w", err))
		}
		txs = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"wallet":       address,
		"transactions": len(txs),
	}).Debug("Fetched transaction history")

	return txs, nil
}

// HeliusDASClient resolves mint metadata with the Digital Asset Standard
// getAsset JSON-RPC method
type HeliusDASClient struct {
	http   *resty.Client
	rpcURL string
	policy *callPolicy
}

// NewHeliusDASClient creates a DAS client posting to rpcURL
func NewHeliusDASClient(rpcURL string, policy *callPolicy) *HeliusDASClient {
	return &HeliusDASClient{
		http:   resty.New().SetHeader("Content-Type", "application/json"),
		rpcURL: rpcURL,
		policy: policy,
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type dasAssetResponse struct {
	Result *struct {
		Content struct {
			Metadata struct {
				Symbol string `json:"symbol"`
				Name   string `json:"name"`
			} `json:"metadata"`
			Links struct {
				Image string `json:"image"`
			} `json:"links"`
		} `json:"content"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

// FetchAssetMetadata returns symbol, name and image of mint. A JSON-RPC error
// object (typically "asset not found") yields empty metadata.
func (c *HeliusDASClient) FetchAssetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, error) {
	meta := &types.AssetMetadata{}

	err := c.policy.do(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(jsonRPCRequest{
				JSONRPC: "2.0",
				ID:      "kol-dashboard",
				Method:  "getAsset",
				Params:  map[string]string{"id": mint},
			}).
			Post(c.rpcURL)
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return apperrors.NewProviderStatusError(ProviderHeliusDAS, resp.StatusCode(), resp.String())
		}

		var decoded dasAssetResponse
		if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
			return apperrors.NewProviderBadResponseError(ProviderHeliusDAS, fmt.Errorf("decode getAsset: %w", err))
		}
		if decoded.Error != nil {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"mint":  mint,
				"code":  decoded.Error.Code,
				"error": decoded.Error.Message,
			}).Debug("getAsset returned an error object")
			return nil
		}
		if decoded.Result != nil {
			meta.Symbol = decoded.Result.Content.Metadata.Symbol
			meta.Name = decoded.Result.Content.Metadata.Name
			meta.IconURL = decoded.Result.Content.Links.Image
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

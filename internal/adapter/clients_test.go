package adapter

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kol-dashboard/internal/config"
	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/types"
)

const (
	testWallet = "7ABz8qEFZTHPkovMDsmQkm64DZWN5wRtU7LEtD2ShkQ6"
	testMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestHeliusClient_FetchTransactionHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/addresses/"+testWallet+"/transactions", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api-key"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			{"type":"SWAP","description":"` + testWallet + ` swapped 1 SOL for 150 ` + testMint + `","timestamp":1700000000,"signature":"sig1","source":"JUPITER","fee":5000,"feePayer":"` + testWallet + `"},
			{"type":"NFT_SALE","description":"sold","timestamp":1700000100,"signature":"sig2"}
		]`))
	}))
	defer srv.Close()

	client := NewHeliusClient(config.HeliusConfig{APIURL: srv.URL, APIKey: "secret", TxLimit: 50}, testPolicy(ProviderHelius))
	txs, err := client.FetchTransactionHistory(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, types.TxTypeSwap, txs[0].Type)
	assert.Equal(t, int64(1700000000), txs[0].Timestamp)
	assert.Equal(t, "sig1", txs[0].Signature)
	assert.Equal(t, "JUPITER", txs[0].Source)
	assert.Equal(t, types.TransactionType("NFT_SALE"), txs[1].Type)
}

func TestHeliusClient_EmptyIsNotAnError(t *testing.T) {
	for _, body := range []string{"", "null", "[]", "  \n"} {
		t.Run("body="+body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			client := NewHeliusClient(config.HeliusConfig{APIURL: srv.URL}, testPolicy(ProviderHelius))
			txs, err := client.FetchTransactionHistory(context.Background(), testWallet)
			require.NoError(t, err)
			assert.NotNil(t, txs)
			assert.Empty(t, txs)
		})
	}
}

func TestHeliusClient_UndecodableBodyIsAnError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	client := NewHeliusClient(config.HeliusConfig{APIURL: srv.URL}, testPolicy(ProviderHelius))
	_, err := client.FetchTransactionHistory(context.Background(), testWallet)
	require.Error(t, err)

	var catErr *apperrors.CategorizedError
	require.True(t, stderrors.As(err, &catErr))
	assert.Equal(t, "PROVIDER_BAD_RESPONSE", catErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHeliusClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHeliusClient(config.HeliusConfig{APIURL: srv.URL}, testPolicy(ProviderHelius))
	_, err := client.FetchTransactionHistory(context.Background(), testWallet)

	var catErr *apperrors.CategorizedError
	require.True(t, stderrors.As(err, &catErr))
	assert.Equal(t, "PROVIDER_RATE_LIMIT", catErr.Code)
	assert.Equal(t, ProviderHelius, catErr.Details["provider"])
}

func TestHeliusDASClient_FetchAssetMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getAsset", req.Method)
		params, _ := req.Params.(map[string]interface{})
		assert.Equal(t, testMint, params["id"])

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"content":{
			"metadata":{"symbol":"USDC","name":"USD Coin"},
			"links":{"image":"https://example.com/usdc.png"}}}}`))
	}))
	defer srv.Close()

	client := NewHeliusDASClient(srv.URL+"/?api-key=k", testPolicy(ProviderHeliusDAS))
	meta, err := client.FetchAssetMetadata(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, &types.AssetMetadata{Symbol: "USDC", Name: "USD Coin", IconURL: "https://example.com/usdc.png"}, meta)
}

func TestHeliusDASClient_ErrorObjectMeansNoMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32000,"message":"Asset Not Found"}}`))
	}))
	defer srv.Close()

	client := NewHeliusDASClient(srv.URL, testPolicy(ProviderHeliusDAS))
	meta, err := client.FetchAssetMetadata(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, &types.AssetMetadata{}, meta)
}

func TestHeliusDASClient_PartialMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"content":{"metadata":{"name":"Nameless"}}}}`))
	}))
	defer srv.Close()

	client := NewHeliusDASClient(srv.URL, testPolicy(ProviderHeliusDAS))
	meta, err := client.FetchAssetMetadata(context.Background(), testMint)
	require.NoError(t, err)
	assert.Empty(t, meta.Symbol)
	assert.Equal(t, "Nameless", meta.Name)
	assert.Empty(t, meta.IconURL)
}

func TestDexScreenerClient_FetchTokenPriceUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/v1/solana/"+testMint, r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"chainId":"solana","dexId":"raydium","pairAddress":"pair1","priceUsd":"0.9998","priceChange":{"h24":-0.12}},
			{"chainId":"solana","dexId":"orca","pairAddress":"pair2","priceUsd":"1.0001","priceChange":{"h24":0.3}},
			{"chainId":"solana","dexId":"meteora","pairAddress":"pair3"}
		]`))
	}))
	defer srv.Close()

	client := NewDexScreenerClient(config.DexScreenerConfig{BaseURL: srv.URL}, testPolicy(ProviderDexScreener))
	quotes, err := client.FetchTokenPriceUSD(context.Background(), testMint)
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	assert.InDelta(t, 0.9998, quotes[0].PriceUSD, 1e-9)
	assert.InDelta(t, -0.12, quotes[0].PriceChange24h, 1e-9)
	assert.Equal(t, "raydium", quotes[0].DexID)
	assert.Equal(t, "pair1", quotes[0].PairAddress)
	assert.Zero(t, quotes[2].PriceUSD)
}

func TestBirdeyeClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "birdeye-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "solana", r.Header.Get("x-chain"))

		switch {
		case r.URL.Path == "/defi/price" && r.URL.Query().Get("address") == testMint:
			_, _ = w.Write([]byte(`{"success":true,"data":{"value":1.0002,"priceChange24h":0.05}}`))
		case r.URL.Path == "/defi/price":
			_, _ = w.Write([]byte(`{"success":false,"message":"Not found"}`))
		case r.URL.Path == "/defi/v3/token/meta-data/single":
			_, _ = w.Write([]byte(`{"success":true,"data":{"symbol":"USDC","name":"USD Coin","logo_uri":"https://example.com/usdc.png"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewBirdeyeClient(config.BirdeyeConfig{BaseURL: srv.URL, APIKey: "birdeye-key"}, testPolicy(ProviderBirdeye))
	ctx := context.Background()

	quotes, err := client.FetchTokenPriceUSD(ctx, testMint)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.InDelta(t, 1.0002, quotes[0].PriceUSD, 1e-9)
	assert.InDelta(t, 0.05, quotes[0].PriceChange24h, 1e-9)

	quotes, err = client.FetchTokenPriceUSD(ctx, "unknown-mint")
	require.NoError(t, err)
	assert.Empty(t, quotes)

	meta, err := client.FetchAssetMetadata(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, &types.AssetMetadata{Symbol: "USDC", Name: "USD Coin", IconURL: "https://example.com/usdc.png"}, meta)
}

func TestSolanaBalanceClient_FetchTokenBalances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getTokenAccountsByOwner", req["method"])

		params, _ := req["params"].([]interface{})
		require.Len(t, params, 3)
		assert.Equal(t, testWallet, params[0])

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 1},
				"value": []interface{}{
					map[string]interface{}{
						"pubkey": "4wwHh4fzdVTZjmhGHfQUBFasJ3TdQJHNmkfMBwzXEmYL",
						"account": map[string]interface{}{
							"lamports":   2039280,
							"owner":      "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
							"executable": false,
							"rentEpoch":  0,
							"data": map[string]interface{}{
								"program": "spl-token",
								"space":   165,
								"parsed": map[string]interface{}{
									"type": "account",
									"info": map[string]interface{}{
										"mint":  testMint,
										"owner": testWallet,
										"tokenAmount": map[string]interface{}{
											"amount":         "1500000",
											"decimals":       6,
											"uiAmount":       1.5,
											"uiAmountString": "1.5",
										},
									},
								},
							},
						},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewSolanaBalanceClient(srv.URL, testPolicy(ProviderSolanaRPC))
	balances, err := client.FetchTokenBalances(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, balances, 1)

	assert.Equal(t, types.TokenBalance{
		Account:   "4wwHh4fzdVTZjmhGHfQUBFasJ3TdQJHNmkfMBwzXEmYL",
		Mint:      testMint,
		RawAmount: "1500000",
		Decimals:  6,
	}, balances[0])
}

func TestSolanaBalanceClient_InvalidAddress(t *testing.T) {
	client := NewSolanaBalanceClient("http://127.0.0.1:1", testPolicy(ProviderSolanaRPC))
	_, err := client.FetchTokenBalances(context.Background(), "not-base58!")
	require.Error(t, err)
	assert.True(t, apperrors.IsUserError(err))
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"0.0001234", 0.0001234},
		{"150.25", 150.25},
		{"", 0},
		{"n/a", 0},
		{"1e400", 0},
		{"-1e400", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePrice(tt.in))
		})
	}
}

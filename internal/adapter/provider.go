package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kol-dashboard/internal/circuitbreaker"
	"github.com/kol-dashboard/internal/config"
	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/retry"
	"github.com/kol-dashboard/internal/types"
)

// Provider names, used for logging, breaker names and error details
const (
	ProviderHelius      = "helius"
	ProviderHeliusDAS   = "helius-das"
	ProviderSolanaRPC   = "solana-rpc"
	ProviderDexScreener = "dexscreener"
	ProviderBirdeye     = "birdeye"
)

// TransactionSource returns the enhanced transaction history of a wallet.
// An empty slice is a valid result; a provider failure is an error.
type TransactionSource interface {
	FetchTransactionHistory(ctx context.Context, address string) ([]types.Transaction, error)
}

// BalanceSource returns the SPL token accounts owned by a wallet
type BalanceSource interface {
	FetchTokenBalances(ctx context.Context, address string) ([]types.TokenBalance, error)
}

// MetadataSource returns display metadata for a mint. Every field of the
// result may be empty; only transport failures are errors.
type MetadataSource interface {
	FetchAssetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, error)
}

// PriceSource returns USD price quotes for a mint, primary market first
type PriceSource interface {
	FetchTokenPriceUSD(ctx context.Context, address string) ([]types.PriceQuote, error)
}

// CreditGate admits a call to a billed provider operation, blocking until
// the shared credit budget allows it
type CreditGate interface {
	Admit(ctx context.Context, operation string) error
}

// Gateway composes one implementation of each provider capability
type Gateway struct {
	Transactions TransactionSource
	Balances     BalanceSource
	Metadata     MetadataSource
	Prices       PriceSource
}

// FetchTransactionHistory delegates to the transaction source
func (g *Gateway) FetchTransactionHistory(ctx context.Context, address string) ([]types.Transaction, error) {
	return g.Transactions.FetchTransactionHistory(ctx, address)
}

// FetchTokenBalances delegates to the balance source
func (g *Gateway) FetchTokenBalances(ctx context.Context, address string) ([]types.TokenBalance, error) {
	return g.Balances.FetchTokenBalances(ctx, address)
}

// FetchAssetMetadata delegates to the metadata source
func (g *Gateway) FetchAssetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, error) {
	return g.Metadata.FetchAssetMetadata(ctx, mint)
}

// FetchTokenPriceUSD delegates to the price source
func (g *Gateway) FetchTokenPriceUSD(ctx context.Context, address string) ([]types.PriceQuote, error) {
	return g.Prices.FetchTokenPriceUSD(ctx, address)
}

// NewGatewayFromConfig builds the gateway, selecting the metadata and price
// variants named in the configuration. Breakers are registered in breakers so
// their state can be reported. gate may be nil when no credit budget is
// enforced.
func NewGatewayFromConfig(cfg *config.Config, breakers *circuitbreaker.Manager, gate CreditGate) (*Gateway, error) {
	if breakers == nil {
		breakers = circuitbreaker.NewManager()
	}
	p := cfg.Providers
	g := cfg.Gateway

	policy := func(name string, rps float64) *callPolicy {
		policy := newCallPolicy(name, g, rps, breakers)
		policy.gate = gate
		return policy
	}

	gw := &Gateway{
		Transactions: NewHeliusClient(p.Helius, policy(ProviderHelius, p.Helius.RPS)),
		Balances:     NewSolanaBalanceClient(p.Helius.RPCURL, policy(ProviderSolanaRPC, p.Helius.RPS)),
	}

	switch p.MetadataSource {
	case "helius":
		gw.Metadata = NewHeliusDASClient(p.Helius.RPCURL, policy(ProviderHeliusDAS, p.Helius.RPS))
	case "birdeye":
		gw.Metadata = NewBirdeyeClient(p.Birdeye, policy(ProviderBirdeye, p.Birdeye.RPS))
	default:
		return nil, fmt.Errorf("unknown metadata source: %s", p.MetadataSource)
	}

	switch p.PriceSource {
	case "dexscreener":
		gw.Prices = NewDexScreenerClient(p.DexScreener, policy(ProviderDexScreener, p.DexScreener.RPS))
	case "birdeye":
		if b, ok := gw.Metadata.(*BirdeyeClient); ok {
			gw.Prices = b
		} else {
			gw.Prices = NewBirdeyeClient(p.Birdeye, policy(ProviderBirdeye, p.Birdeye.RPS))
		}
	default:
		return nil, fmt.Errorf("unknown price source: %s", p.PriceSource)
	}

	return gw, nil
}

// callPolicy bounds every outbound call to one provider: a per-call timeout,
// a token bucket, an optional credit gate, exponential-backoff retry and a
// circuit breaker
type callPolicy struct {
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	gate    CreditGate
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.RetryConfig
}

func newCallPolicy(name string, g config.GatewayConfig, rps float64, breakers *circuitbreaker.Manager) *callPolicy {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	rc := retry.DefaultRetryConfig()
	if g.MaxAttempts > 0 {
		rc.MaxAttempts = g.MaxAttempts
	}
	if g.RetryBaseDelay > 0 {
		rc.InitialDelay = g.RetryBaseDelay
	}
	rc.ShouldRetry = func(err error) bool {
		return !errors.Is(err, circuitbreaker.ErrCircuitOpen) && apperrors.IsRetryable(err)
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &callPolicy{
		name:    name,
		timeout: timeout,
		limiter: limiter,
		breaker: breakers.GetOrCreate(name, nil),
		retry:   rc,
	}
}

// do runs fn under the policy. fn receives a context carrying the per-call
// deadline and must return categorized errors for bad statuses and bodies.
func (p *callPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	result := retry.WithExponentialBackoff(ctx, p.retry, func(ctx context.Context, attempt int) error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return apperrors.WrapProviderTransport(p.name, err)
			}
		}
		if p.gate != nil {
			if err := p.gate.Admit(ctx, p.name); err != nil {
				return apperrors.WrapProviderTransport(p.name, err)
			}
		}

		err := p.breaker.Execute(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			return fn(callCtx)
		})
		if err != nil {
			return apperrors.WrapProviderTransport(p.name, err)
		}
		return nil
	})
	if err := result.Err(); err != nil {
		return apperrors.WrapProviderTransport(p.name, err)
	}
	return nil
}

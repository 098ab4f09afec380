package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/types"
)

// SolanaBalanceClient lists SPL token accounts over Solana JSON-RPC
type SolanaBalanceClient struct {
	rpc    *rpc.Client
	policy *callPolicy
}

// NewSolanaBalanceClient creates a balance client for the RPC endpoint at rpcURL
func NewSolanaBalanceClient(rpcURL string, policy *callPolicy) *SolanaBalanceClient {
	return &SolanaBalanceClient{
		rpc:    rpc.New(rpcURL),
		policy: policy,
	}
}

// parsedTokenAccount is the jsonParsed layout of an SPL token account
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals uint8  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// FetchTokenBalances returns every token account of the SPL Token program
// owned by address
func (c *SolanaBalanceClient) FetchTokenBalances(ctx context.Context, address string) ([]types.TokenBalance, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, apperrors.NewInvalidAddressError(address)
	}

	var balances []types.TokenBalance

	err = c.policy.do(ctx, func(ctx context.Context) error {
		out, err := c.rpc.GetTokenAccountsByOwner(
			ctx,
			owner,
			&rpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
			&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed},
		)
		if err != nil {
			return err
		}

		decoded := make([]types.TokenBalance, 0, len(out.Value))
		for _, acc := range out.Value {
			if acc == nil || acc.Account.Data == nil {
				continue
			}
			var parsed parsedTokenAccount
			if err := json.Unmarshal(acc.Account.Data.GetRawJSON(), &parsed); err != nil {
				return apperrors.NewProviderBadResponseError(ProviderSolanaRPC, fmt.Errorf("decode token account %s: %w", acc.Pubkey, err))
			}
			info := parsed.Parsed.Info
			decoded = append(decoded, types.TokenBalance{
				Account:   acc.Pubkey.String(),
				Mint:      info.Mint,
				RawAmount: info.TokenAmount.Amount,
				Decimals:  info.TokenAmount.Decimals,
			})
		}
		balances = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// Package types provides provider-facing type definitions shared by the
// gateway, the reconstruction pipeline and the API.
package types

// TransactionType is the provider's classification of a transaction
type TransactionType string

const (
	// TxTypeSwap represents a token swap
	TxTypeSwap TransactionType = "SWAP"
	// TxTypeTransfer represents a plain token transfer
	TxTypeTransfer TransactionType = "TRANSFER"
)

// Transaction is an enhanced transaction record returned by the history provider.
// Timestamp is in seconds.
type Transaction struct {
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	Timestamp   int64           `json:"timestamp"`
	Signature   string          `json:"signature"`
	Source      string          `json:"source,omitempty"`
	Fee         int64           `json:"fee,omitempty"`
	FeePayer    string          `json:"feePayer,omitempty"`
}

// TokenBalance is a single SPL token account owned by a wallet
type TokenBalance struct {
	Account   string `json:"account"`
	Mint      string `json:"mint"`
	RawAmount string `json:"rawAmount"` // Base units, as returned by the RPC
	Decimals  uint8  `json:"decimals"`
}

// AssetMetadata is the display metadata of a mint. Every field is optional.
type AssetMetadata struct {
	Symbol  string `json:"symbol,omitempty"`
	Name    string `json:"name,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

// PriceQuote is a USD price record for a token on one market
type PriceQuote struct {
	PriceUSD       float64 `json:"priceUsd"`
	PriceChange24h float64 `json:"priceChange24h"`
	PairAddress    string  `json:"pairAddress,omitempty"`
	DexID          string  `json:"dexId,omitempty"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

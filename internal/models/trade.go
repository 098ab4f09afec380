package models

// TradeType is the direction of a reconstructed trade
type TradeType string

const (
	// TradeBuy is the leg received in a swap
	TradeBuy TradeType = "BUY"
	// TradeSell is the leg given up in a swap
	TradeSell TradeType = "SELL"
	// TradeTransfer is a plain transfer; it is stored lowercase
	TradeTransfer TradeType = "transfer"
)

const (
	// UnknownToken is stored when a token symbol or address cannot be resolved
	UnknownToken = "Unknown"
	// UnknownTokenName is the holding name fallback
	UnknownTokenName = "Unknown Token"
	// TokenIconPlaceholder is the trade icon fallback, also used as the SOL icon
	TokenIconPlaceholder = "https://cdn-icons-png.flaticon.com/128/12114/12114239.png"
	// HoldingIconPlaceholder is the holding icon fallback
	HoldingIconPlaceholder = "https://cdn-icons-png.flaticon.com/128/6318/6318574.png"
)

// Trade is an immutable reconstructed trade. TxHash is the idempotency key;
// both legs of one swap share it.
type Trade struct {
	Timestamp    int64     `json:"timestamp"` // Epoch millis
	Type         TradeType `json:"type"`
	Token        string    `json:"token"`
	TokenAddress string    `json:"tokenAddress"`
	TokenIcon    string    `json:"tokenIcon"`
	Amount       float64   `json:"amount"`
	Price        float64   `json:"price"`
	PnL          float64   `json:"pnl"`
	TxHash       string    `json:"txHash"`
}

// NotionalUSD returns amount times price
func (t Trade) NotionalUSD() float64 {
	return t.Amount * t.Price
}

// IsSwapLeg reports whether the trade is one side of a swap
func (t Trade) IsSwapLeg() bool {
	return t.Type == TradeBuy || t.Type == TradeSell
}

package service

import (
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/types"
)

// PricedLeg is a parsed leg after token resolution and pricing
type PricedLeg struct {
	Amount float64
	Token  ResolvedToken
	Price  float64
}

// Notional returns the leg's USD value
func (l PricedLeg) Notional() float64 {
	f, _ := Notional(l.Amount, l.Price).Float64()
	return f
}

// TradeBuilder turns priced legs into trade records
type TradeBuilder struct{}

// NewTradeBuilder creates a trade builder
func NewTradeBuilder() *TradeBuilder {
	return &TradeBuilder{}
}

// BuildSwap emits the SELL of the given-up leg followed by the BUY of the received leg
func (b *TradeBuilder) BuildSwap(tx types.Transaction, given, received PricedLeg) []models.Trade {
	return []models.Trade{
		b.build(tx, models.TradeSell, given),
		b.build(tx, models.TradeBuy, received),
	}
}

// BuildTransfer emits a single unpriced transfer record
func (b *TradeBuilder) BuildTransfer(tx types.Transaction, leg PricedLeg) models.Trade {
	leg.Price = 0
	return b.build(tx, models.TradeTransfer, leg)
}

func (b *TradeBuilder) build(tx types.Transaction, tradeType models.TradeType, leg PricedLeg) models.Trade {
	return models.Trade{
		Timestamp:    tx.Timestamp * 1000,
		Type:         tradeType,
		Token:        orDefault(leg.Token.Symbol, models.UnknownToken),
		TokenAddress: orDefault(leg.Token.Address, models.UnknownToken),
		TokenIcon:    orDefault(leg.Token.Icon, models.TokenIconPlaceholder),
		Amount:       leg.Amount,
		Price:        leg.Price,
		PnL:          0,
		TxHash:       tx.Signature,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

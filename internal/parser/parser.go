// Package parser extracts trade legs from the human-readable transaction
// descriptions produced by the enhanced transaction API, e.g.
//
//	"7ABz...ShkQ6 swapped 1.5 SOL for 2000 EPjF...Dt1v"
//	"7ABz...ShkQ6 transferred a total 12 USDC to 3 accounts"
//
// Positions are fixed by the provider's summary format. A field that falls
// outside the description is returned empty; parsing never fails.
package parser

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kol-dashboard/internal/types"
)

// ParsedLeg is one side of a parsed transaction. Both fields may be empty.
type ParsedLeg struct {
	AmountText string
	TokenRef   string
}

// Amount converts AmountText to a number, 0 when empty or not numeric
func (l ParsedLeg) Amount() float64 {
	return ParseAmount(l.AmountText)
}

// Result is the outcome of parsing an accepted transaction
type Result struct {
	Type types.TransactionType
	Legs []ParsedLeg // Two legs for a swap (given up, received), one for a transfer
}

const transferTotalMarker = "a total"

// Accepts reports whether the transaction is a kind the pipeline records
func Accepts(tx types.Transaction) bool {
	if strings.TrimSpace(tx.Description) == "" {
		return false
	}
	return tx.Type == types.TxTypeSwap || tx.Type == types.TxTypeTransfer
}

// Parse extracts legs from a transaction. ok is false for dropped kinds.
func Parse(tx types.Transaction) (Result, bool) {
	if !Accepts(tx) {
		return Result{}, false
	}

	fields := strings.Fields(tx.Description)

	switch tx.Type {
	case types.TxTypeSwap:
		n := len(fields)
		return Result{
			Type: types.TxTypeSwap,
			Legs: []ParsedLeg{
				{AmountText: at(fields, 2), TokenRef: at(fields, 3)},
				{AmountText: at(fields, n-2), TokenRef: at(fields, n-1)},
			},
		}, true

	default:
		amountIdx, tokenIdx := 2, 3
		if strings.Contains(tx.Description, transferTotalMarker) {
			amountIdx, tokenIdx = 4, 5
		}
		return Result{
			Type: types.TxTypeTransfer,
			Legs: []ParsedLeg{
				{AmountText: at(fields, amountIdx), TokenRef: at(fields, tokenIdx)},
			},
		}, true
	}
}

func at(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// ParseAmount converts an amount token to float64. Thousands separators are
// tolerated; anything that is not a finite decimal number yields 0.
func ParseAmount(text string) float64 {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if text == "" {
		return 0
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

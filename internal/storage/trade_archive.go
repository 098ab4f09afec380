package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/kol-dashboard/internal/models"
)

// TradeArchive appends reconstructed trades to the ClickHouse kol_trades
// table. The table is a ReplacingMergeTree keyed by (wallet, tx_hash, type),
// so archiving the same trades on every cycle converges to one row each.
type TradeArchive struct {
	db *ClickHouseDB
}

// NewTradeArchive creates a new trade archive
func NewTradeArchive(db *ClickHouseDB) *TradeArchive {
	return &TradeArchive{db: db}
}

// ArchivedTrade is one row of kol_trades
type ArchivedTrade struct {
	Wallet   string    `json:"wallet"`
	CycleID  string    `json:"cycleId"`
	TradedAt time.Time `json:"tradedAt"`
	models.Trade
}

// ArchiveTrades batch-inserts the trades of one wallet refresh
func (a *TradeArchive) ArchiveTrades(ctx context.Context, cycleID, wallet string, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO kol_trades (
			wallet, tx_hash, type, token, token_address, token_icon,
			amount, price, notional_usd, pnl, traded_at, cycle_id
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, t := range trades {
		err := batch.Append(
			wallet,
			t.TxHash,
			string(t.Type),
			t.Token,
			t.TokenAddress,
			t.TokenIcon,
			t.Amount,
			t.Price,
			t.NotionalUSD(),
			t.PnL,
			time.UnixMilli(t.Timestamp).UTC(),
			cycleID,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append trade %s to batch: %w", t.TxHash, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// RecentTrades returns the newest archived trades of wallet, deduplicated
func (a *TradeArchive) RecentTrades(ctx context.Context, wallet string, limit int) ([]ArchivedTrade, error) {
	rows, err := a.db.Conn().Query(ctx, `
		SELECT wallet, cycle_id, traded_at, tx_hash, type, token, token_address, token_icon, amount, price, pnl
		FROM kol_trades FINAL
		WHERE wallet = ?
		ORDER BY traded_at DESC
		LIMIT ?
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived trades: %w", err)
	}
	defer rows.Close()

	var out []ArchivedTrade
	for rows.Next() {
		var (
			at       ArchivedTrade
			typeName string
		)
		if err := rows.Scan(
			&at.Wallet,
			&at.CycleID,
			&at.TradedAt,
			&at.TxHash,
			&typeName,
			&at.Token,
			&at.TokenAddress,
			&at.TokenIcon,
			&at.Amount,
			&at.Price,
			&at.PnL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archived trade: %w", err)
		}
		at.Type = models.TradeType(typeName)
		at.Timestamp = at.TradedAt.UnixMilli()
		out = append(out, at)
	}
	return out, rows.Err()
}

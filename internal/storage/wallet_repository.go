package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/models"
)

// WalletRepository persists tracked wallets in Postgres. Variable-length
// collections live in JSONB columns so a wallet is read and replaced as one row.
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

const walletColumns = `
	address, name, description, twitter, telegram, avatar, tags,
	holdings, trades, activities, historical_pnl, stats, last_updated, schema_version
`

// GetWallet returns the wallet stored under address
func (r *WalletRepository) GetWallet(ctx context.Context, address string) (*models.TrackedWallet, error) {
	return r.getWallet(ctx, r.db.Pool(), address)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *WalletRepository) getWallet(ctx context.Context, q rowQuerier, address string) (*models.TrackedWallet, error) {
	query := `SELECT ` + walletColumns + ` FROM tracked_wallets WHERE address = $1`

	w, err := scanWallet(q.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("wallet", address)
		}
		return nil, apperrors.NewDatabaseError("get wallet", err)
	}
	return w, nil
}

// EnsureWallet creates the wallet from its roster profile when absent and
// returns the stored record. An existing record is left untouched.
func (r *WalletRepository) EnsureWallet(ctx context.Context, profile models.WalletProfile) (*models.TrackedWallet, error) {
	fresh := models.NewTrackedWallet(profile)

	tags, err := json.Marshal(fresh.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	var out *models.TrackedWallet
	err = r.db.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tracked_wallets (address, name, description, twitter, telegram, avatar, tags, schema_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (address) DO NOTHING
		`,
			fresh.Address,
			fresh.Name,
			fresh.Description,
			fresh.Twitter,
			fresh.Telegram,
			fresh.Avatar,
			tags,
			models.CurrentSchemaVersion,
		)
		if err != nil {
			return apperrors.NewDatabaseError("ensure wallet", err)
		}

		out, err = r.getWallet(ctx, tx, profile.Address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertWalletResult replaces trades, holdings and stats of an existing
// wallet and stamps lastUpdated. Profile fields are not touched.
func (r *WalletRepository) UpsertWalletResult(ctx context.Context, address string, result *models.RefreshResult) error {
	trades, err := json.Marshal(nonNilTrades(result.Trades))
	if err != nil {
		return fmt.Errorf("failed to marshal trades: %w", err)
	}
	holdings, err := json.Marshal(nonNilHoldings(result.Holdings))
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}
	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE tracked_wallets
		SET trades = $2, holdings = $3, stats = $4, last_updated = $5,
			schema_version = $6, updated_at = NOW()
		WHERE address = $1
	`,
		address,
		trades,
		holdings,
		stats,
		result.LastUpdated,
		models.CurrentSchemaVersion,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert wallet result", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("wallet", address)
	}
	return nil
}

// ListWallets returns every tracked wallet in roster insertion order
func (r *WalletRepository) ListWallets(ctx context.Context) ([]*models.TrackedWallet, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+walletColumns+` FROM tracked_wallets ORDER BY created_at, address`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list wallets", err)
	}
	defer rows.Close()

	wallets := []*models.TrackedWallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan wallet", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list wallets", err)
	}
	return wallets, nil
}

func scanWallet(row pgx.Row) (*models.TrackedWallet, error) {
	var (
		w                                                        models.TrackedWallet
		tags, holdings, trades, activities, historicalPnL, stats []byte
	)

	err := row.Scan(
		&w.Address,
		&w.Name,
		&w.Description,
		&w.Twitter,
		&w.Telegram,
		&w.Avatar,
		&tags,
		&holdings,
		&trades,
		&activities,
		&historicalPnL,
		&stats,
		&w.LastUpdated,
		&w.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}

	columns := []struct {
		name string
		data []byte
		dest interface{}
	}{
		{"tags", tags, &w.Tags},
		{"holdings", holdings, &w.Holdings},
		{"trades", trades, &w.Trades},
		{"activities", activities, &w.Activities},
		{"historical_pnl", historicalPnL, &w.HistoricalPnL},
		{"stats", stats, &w.Stats},
	}
	for _, c := range columns {
		if len(c.data) == 0 {
			continue
		}
		if err := json.Unmarshal(c.data, c.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s of %s: %w", c.name, w.Address, err)
		}
	}

	normalizeWallet(&w)
	return &w, nil
}

// normalizeWallet replaces nil collections with empty ones so records always
// serialize with arrays
func normalizeWallet(w *models.TrackedWallet) {
	if w.Tags == nil {
		w.Tags = []string{}
	}
	w.Holdings = nonNilHoldings(w.Holdings)
	w.Trades = nonNilTrades(w.Trades)
	if w.Activities == nil {
		w.Activities = []models.WalletActivity{}
	}
	if w.HistoricalPnL == nil {
		w.HistoricalPnL = []models.PnLData{}
	}
}

func nonNilTrades(t []models.Trade) []models.Trade {
	if t == nil {
		return []models.Trade{}
	}
	return t
}

func nonNilHoldings(h []models.TokenHolding) []models.TokenHolding {
	if h == nil {
		return []models.TokenHolding{}
	}
	return h
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/models"
)

// MemoryWalletStore keeps wallets in process memory. It backs tests and the
// STORE_DRIVER=memory local mode and follows the Postgres store's semantics.
type MemoryWalletStore struct {
	mu      sync.RWMutex
	wallets map[string]*models.TrackedWallet
	order   []string
}

// NewMemoryWalletStore creates an empty in-memory store
func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{
		wallets: make(map[string]*models.TrackedWallet),
	}
}

// GetWallet returns a copy of the wallet stored under address
func (s *MemoryWalletStore) GetWallet(ctx context.Context, address string) (*models.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[address]
	if !ok {
		return nil, apperrors.NewNotFoundError("wallet", address)
	}
	return cloneWallet(w)
}

// EnsureWallet creates the wallet when absent and returns the stored record
func (s *MemoryWalletStore) EnsureWallet(ctx context.Context, profile models.WalletProfile) (*models.TrackedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[profile.Address]
	if !ok {
		w = models.NewTrackedWallet(profile)
		s.wallets[profile.Address] = w
		s.order = append(s.order, profile.Address)
	}
	return cloneWallet(w)
}

// UpsertWalletResult replaces trades, holdings and stats of an existing wallet
func (s *MemoryWalletStore) UpsertWalletResult(ctx context.Context, address string, result *models.RefreshResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[address]
	if !ok {
		return apperrors.NewNotFoundError("wallet", address)
	}

	updated := *w
	updated.Trades = append([]models.Trade{}, result.Trades...)
	updated.Holdings = append([]models.TokenHolding{}, result.Holdings...)
	updated.Stats = result.Stats
	updated.LastUpdated = result.LastUpdated
	updated.SchemaVersion = models.CurrentSchemaVersion
	s.wallets[address] = &updated
	return nil
}

// ListWallets returns copies of every wallet in insertion order
func (s *MemoryWalletStore) ListWallets(ctx context.Context) ([]*models.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TrackedWallet, 0, len(s.order))
	for _, addr := range s.order {
		w, err := cloneWallet(s.wallets[addr])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// SetHistoricalPnL seeds the opaque PnL history of a wallet
func (s *MemoryWalletStore) SetHistoricalPnL(address string, history []models.PnLData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[address]
	if !ok {
		return apperrors.NewNotFoundError("wallet", address)
	}
	updated := *w
	updated.HistoricalPnL = append([]models.PnLData{}, history...)
	s.wallets[address] = &updated
	return nil
}

// cloneWallet deep-copies through JSON, the same round trip a Postgres read makes
func cloneWallet(w *models.TrackedWallet) (*models.TrackedWallet, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wallet %s: %w", w.Address, err)
	}
	var out models.TrackedWallet
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet %s: %w", w.Address, err)
	}
	normalizeWallet(&out)
	return &out, nil
}

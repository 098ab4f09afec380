package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/kol-dashboard/internal/models"
)

// walletRoster is the on-disk layout of the wallets file
type walletRoster struct {
	Wallets []models.WalletProfile `yaml:"wallets"`
}

// LoadWallets reads and validates the tracked wallet roster
func LoadWallets(path string) ([]models.WalletProfile, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read wallets file %s: %w", path, err)
	}
	return ParseWallets(data)
}

// ParseWallets decodes a YAML roster. Every address must be a valid base58
// public key and appear once.
func ParseWallets(data []byte) ([]models.WalletProfile, error) {
	var roster walletRoster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse wallets file: %w", err)
	}

	seen := make(map[string]struct{}, len(roster.Wallets))
	for i := range roster.Wallets {
		w := &roster.Wallets[i]
		w.Address = strings.TrimSpace(w.Address)
		w.Name = strings.TrimSpace(w.Name)

		if w.Name == "" {
			return nil, fmt.Errorf("wallet %d: name is required", i)
		}
		if _, err := solana.PublicKeyFromBase58(w.Address); err != nil {
			return nil, fmt.Errorf("wallet %q: invalid address %q: %w", w.Name, w.Address, err)
		}
		if _, dup := seen[w.Address]; dup {
			return nil, fmt.Errorf("wallet %q: duplicate address %s", w.Name, w.Address)
		}
		seen[w.Address] = struct{}{}

		if w.Tags == nil {
			w.Tags = []string{}
		}
		if w.Avatar == "" && w.Twitter != "" {
			w.Avatar = "https://unavatar.io/twitter/" + twitterHandle(w.Twitter)
		}
	}

	return roster.Wallets, nil
}

// twitterHandle extracts the handle from a profile URL or @handle
func twitterHandle(twitter string) string {
	h := strings.TrimSuffix(strings.TrimSpace(twitter), "/")
	if i := strings.LastIndex(h, "/"); i >= 0 {
		h = h[i+1:]
	}
	return strings.TrimPrefix(h, "@")
}

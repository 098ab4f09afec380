package service

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/singleflight"

	"github.com/kol-dashboard/internal/adapter"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/types"
)

// NativeSymbol is the token reference the description uses for native SOL
const NativeSymbol = "SOL"

// ResolvedToken is the display identity of a leg's token. Fields may be empty;
// the trade builder applies fallbacks.
type ResolvedToken struct {
	Address string
	Symbol  string
	Name    string
	Icon    string
}

// TokenResolver maps a description token reference to a mint identity.
// Metadata lookups are memoized for the current cycle and, when a cache is
// set, shared across cycles.
type TokenResolver struct {
	metadata adapter.MetadataSource
	cache    MetadataCache

	mu    sync.RWMutex
	memo  map[string]*types.AssetMetadata
	group singleflight.Group
}

// NewTokenResolver creates a resolver over a metadata source
func NewTokenResolver(metadata adapter.MetadataSource) *TokenResolver {
	return &TokenResolver{
		metadata: metadata,
		memo:     make(map[string]*types.AssetMetadata),
	}
}

// SetCache enables the cross-cycle metadata cache
func (r *TokenResolver) SetCache(cache MetadataCache) {
	r.cache = cache
}

// ResetMemo forgets the lookups of the previous cycle
func (r *TokenResolver) ResetMemo() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo = make(map[string]*types.AssetMetadata)
}

// Resolve resolves a token reference. "SOL" and the empty reference never
// reach the network; any other reference is treated as a mint address.
func (r *TokenResolver) Resolve(ctx context.Context, ref string) (ResolvedToken, error) {
	switch ref {
	case "":
		return ResolvedToken{}, nil
	case NativeSymbol:
		return ResolvedToken{
			Address: solana.WrappedSol.String(),
			Symbol:  NativeSymbol,
			Name:    "Solana",
			Icon:    models.TokenIconPlaceholder,
		}, nil
	}

	meta, err := r.Metadata(ctx, ref)
	if err != nil {
		return ResolvedToken{}, err
	}

	icon := meta.IconURL
	if icon == "" {
		icon = models.TokenIconPlaceholder
	}
	return ResolvedToken{
		Address: ref,
		Symbol:  meta.Symbol,
		Name:    meta.Name,
		Icon:    icon,
	}, nil
}

// Metadata returns the raw metadata of mint, never nil on success
func (r *TokenResolver) Metadata(ctx context.Context, mint string) (*types.AssetMetadata, error) {
	r.mu.RLock()
	meta, ok := r.memo[mint]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	// Waiters share the result, so one caller's cancellation must not fail the others
	v, err, _ := r.group.Do(mint, func() (interface{}, error) {
		return r.lookup(context.WithoutCancel(ctx), mint)
	})
	if err != nil {
		return nil, err
	}
	meta = v.(*types.AssetMetadata)

	r.mu.Lock()
	r.memo[mint] = meta
	r.mu.Unlock()
	return meta, nil
}

func (r *TokenResolver) lookup(ctx context.Context, mint string) (*types.AssetMetadata, error) {
	logger := logging.FromContext(ctx).WithField("mint", mint)

	if r.cache != nil {
		meta, found, err := r.cache.GetMetadata(ctx, mint)
		if err != nil {
			logger.WithError(err).Warn("Metadata cache read failed")
		} else if found {
			return meta, nil
		}
	}

	meta, err := r.metadata.FetchAssetMetadata(ctx, mint)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = &types.AssetMetadata{}
	}

	if r.cache != nil {
		if err := r.cache.SetMetadata(ctx, mint, meta); err != nil {
			logger.WithError(err).Warn("Metadata cache write failed")
		}
	}
	return meta, nil
}

package memory

import (
	"context"
	"slices"
	"time"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

// StoreSummary is one row of Summary.
type StoreSummary struct {
	StoreStats
	Category string `json:"category"`
}

const (
	CategorySharedPools      = "shared_pools"
	CategoryIndividualAgents = "individual_agents"
)

// Summary describes every physical store, pools first.
func (m *Manager) Summary(ctx context.Context) ([]StoreSummary, error) {
	if m.disabled {
		return nil, nil
	}
	stores, err := m.store.Stores(ctx)
	if err != nil {
		return nil, m.storageError("*", "list", err)
	}
	var pools, agents []StoreSummary
	for _, id := range stores {
		st, err := m.store.Stats(ctx, id)
		if err != nil {
			return nil, m.storageError(id, "stats", err)
		}
		if IsPoolStore(id) {
			pools = append(pools, StoreSummary{StoreStats: st, Category: CategorySharedPools})
		} else {
			agents = append(agents, StoreSummary{StoreStats: st, Category: CategoryIndividualAgents})
		}
	}
	return append(pools, agents...), nil
}

// knownStore rejects store ids that hold no data, so that inspection never
// creates an empty store.
func (m *Manager) knownStore(ctx context.Context, store string) error {
	stores, err := m.store.Stores(ctx)
	if err != nil {
		return m.storageError("*", "list", err)
	}
	if !slices.Contains(stores, store) {
		return memerrors.Validation("unknown store %q", store).
			WithSuggestion("run `scopemem summary` to list stores")
	}
	return nil
}

// Optimize reclaims space in one store.
func (m *Manager) Optimize(ctx context.Context, store string) error {
	if m.disabled {
		return nil
	}
	if err := m.knownStore(ctx, store); err != nil {
		return err
	}
	start := time.Now()
	if err := m.store.Optimize(ctx, store); err != nil {
		return m.storageError(store, "optimize", err)
	}
	m.logger.Info("Store optimized", "store", store, "duration", time.Since(start))
	return nil
}

package memory

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
	memerrors "github.com/cadre-oss/scopemem/internal/errors"
	"github.com/cadre-oss/scopemem/internal/event"
)

// CacheKey identifies a cached response.
func CacheKey(provider, endpoint string) string {
	return provider + ":" + endpoint
}

func (m *Manager) cacheDisabled() bool {
	return m.disabled || m.cfg.Cache.Disabled
}

func validateCacheKey(provider, endpoint string) error {
	if strings.TrimSpace(provider) == "" {
		return memerrors.Validation("provider is required")
	}
	if strings.TrimSpace(endpoint) == "" {
		return memerrors.Validation("endpoint is required")
	}
	return nil
}

// CacheAPIResponse stores data as the newest cached response for
// (provider, endpoint). A ttl of 0 uses the configured default.
func (a *AgentMemory) CacheAPIResponse(ctx context.Context, provider, endpoint string, data any, ttl time.Duration) (string, error) {
	if a.m.cacheDisabled() {
		return "", nil
	}
	if err := validateCacheKey(provider, endpoint); err != nil {
		return "", err
	}
	if ttl < 0 {
		return "", memerrors.Validation("ttl must not be negative")
	}
	if ttl > config.MaxRetention {
		return "", memerrors.Validation("ttl %s exceeds %s", ttl, config.MaxRetention)
	}
	if ttl == 0 {
		ttl = a.m.cacheTTL
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", memerrors.Validation("response is not JSON-encodable: %v", err)
	}

	s, err := a.m.authorize(a.agent, a.m.registry.cache, OpWrite)
	if err != nil {
		return "", err
	}
	key := CacheKey(provider, endpoint)
	rec, err := a.m.write(ctx, writeRequest{
		agent:    a.agent,
		scope:    s,
		store:    s.StoreFor(a.agent),
		content:  string(payload),
		priority: string(PriorityLow),
		metadata: map[string]any{
			"cache_key":   key,
			"provider":    provider,
			"endpoint":    endpoint,
			"ttl_minutes": ttl.Minutes(),
		},
		key: key,
		ttl: ttl,
	})
	if err != nil {
		return "", err
	}
	a.m.emit(event.CacheStored, a.agent, rec.Scope, map[string]interface{}{
		"id":  rec.ID,
		"key": key,
	})
	return rec.ID, nil
}

// GetCachedResponse returns the newest cached response for (provider,
// endpoint). If the newest entry has expired the lookup misses; older
// entries never resurface.
func (a *AgentMemory) GetCachedResponse(ctx context.Context, provider, endpoint string) (json.RawMessage, bool, error) {
	if a.m.cacheDisabled() {
		return nil, false, nil
	}
	if err := validateCacheKey(provider, endpoint); err != nil {
		return nil, false, err
	}
	s, err := a.m.authorize(a.agent, a.m.registry.cache, OpRead)
	if err != nil {
		return nil, false, err
	}

	store := s.StoreFor(a.agent)
	rec, err := a.m.store.Latest(ctx, store, s.Name, CacheKey(provider, endpoint))
	if err != nil {
		return nil, false, a.m.storageError(store, "latest", err)
	}
	if rec == nil || rec.Expired(a.m.now()) {
		a.m.metrics.IncCacheMiss()
		return nil, false, nil
	}
	a.m.metrics.IncCacheHit()
	return json.RawMessage(rec.Content), true, nil
}

// LoadCachedResponse decodes a cache hit into v and reports whether one was found.
func (a *AgentMemory) LoadCachedResponse(ctx context.Context, provider, endpoint string, v any) (bool, error) {
	raw, ok, err := a.GetCachedResponse(ctx, provider, endpoint)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, memerrors.Validation("cached response for %s does not decode: %v", CacheKey(provider, endpoint), err)
	}
	return true, nil
}

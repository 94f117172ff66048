package memory

import (
	"sort"
	"time"

	"github.com/cadre-oss/scopemem/internal/config"
	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

// Scope is a resolved scope definition.
type Scope struct {
	Name            string
	Retention       time.Duration
	DefaultPriority Priority
	Shared          bool
	Pool            string

	access    map[string]bool
	accessAll bool
}

// Permits reports whether agent is on the scope's access list.
func (s *Scope) Permits(agent string) bool {
	return s.accessAll || s.access[agent]
}

// Access returns the access list, or ["all"].
func (s *Scope) Access() []string {
	if s.accessAll {
		return []string{config.AccessAll}
	}
	out := make([]string, 0, len(s.access))
	for a := range s.access {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// StoreFor returns the physical store holding agent's view of the scope: the
// pool store for shared scopes, the agent's own store otherwise.
func (s *Scope) StoreFor(agent string) string {
	if s.Shared {
		return PoolStoreID(s.Pool)
	}
	return AgentStoreID(agent)
}

// Registry holds the resolved scope table. It is immutable after construction.
type Registry struct {
	scopes  map[string]*Scope
	order   []string
	handoff string
	alerts  string
	cache   string
}

// NewRegistry resolves the scopes of a validated configuration.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	r := &Registry{
		scopes:  make(map[string]*Scope, len(cfg.Scopes)),
		handoff: cfg.HandoffScope,
		alerts:  cfg.AlertsScope,
		cache:   cfg.CacheScope,
	}
	for i := range cfg.Scopes {
		sc := &cfg.Scopes[i]
		retention, err := sc.ParsedRetention()
		if err != nil {
			return nil, memerrors.Configuration("scope %s: invalid retention %q", sc.Name, sc.Retention)
		}
		s := &Scope{
			Name:            sc.Name,
			Retention:       retention,
			DefaultPriority: Priority(sc.DefaultPriority),
			Shared:          sc.Shared,
			access:          make(map[string]bool, len(sc.Access)),
		}
		if sc.Shared {
			s.Pool = sc.PoolName()
		}
		for _, a := range sc.Access {
			if a == config.AccessAll {
				s.accessAll = true
				continue
			}
			s.access[a] = true
		}
		r.scopes[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// Lookup resolves a scope by name.
func (r *Registry) Lookup(name string) (*Scope, error) {
	s, ok := r.scopes[name]
	if !ok {
		return nil, memerrors.Configuration("unknown scope %q", name).
			WithScope(name).
			WithSuggestion("declare the scope in " + config.FileName)
	}
	return s, nil
}

// Scopes returns every scope in configuration order.
func (r *Registry) Scopes() []*Scope {
	out := make([]*Scope, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.scopes[name])
	}
	return out
}

// Handoff returns the scope used for handoffs.
func (r *Registry) Handoff() *Scope { return r.scopes[r.handoff] }

// Alerts returns the scope used for broadcasts.
func (r *Registry) Alerts() *Scope { return r.scopes[r.alerts] }

// Cache returns the scope used for API response caching.
func (r *Registry) Cache() *Scope { return r.scopes[r.cache] }

// IsAlerts reports whether s is the broadcast scope.
func (r *Registry) IsAlerts(s *Scope) bool { return s.Name == r.alerts }

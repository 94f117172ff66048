package memory

import (
	"context"
	"sort"
	"strings"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
	"github.com/cadre-oss/scopemem/internal/event"
)

// AgentMemory is one agent's view of the memory layer. Handles are cheap;
// every call is checked against the scope access lists.
type AgentMemory struct {
	m     *Manager
	agent string
}

// AgentID returns the agent the handle acts for.
func (a *AgentMemory) AgentID() string {
	return a.agent
}

func (a *AgentMemory) validate() error {
	if strings.TrimSpace(a.agent) == "" {
		return memerrors.Validation("agent id is required")
	}
	return nil
}

// StoreOption customises a write.
type StoreOption func(*storeOptions)

type storeOptions struct {
	priority string
	metadata map[string]any
}

// WithPriority overrides the scope's default priority.
func WithPriority(p Priority) StoreOption {
	return func(o *storeOptions) { o.priority = string(p) }
}

// WithMetadata attaches metadata to the record.
func WithMetadata(md map[string]any) StoreOption {
	return func(o *storeOptions) { o.metadata = md }
}

func applyStoreOptions(opts []StoreOption) storeOptions {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store writes content into scope and returns the new record id. Shared
// scopes land in the scope's pool; private scopes in the agent's own store.
func (a *AgentMemory) Store(ctx context.Context, scope, content string, opts ...StoreOption) (string, error) {
	if a.m.disabled {
		return "", nil
	}
	s, err := a.m.authorize(a.agent, scope, OpWrite)
	if err != nil {
		return "", err
	}
	o := applyStoreOptions(opts)
	rec, err := a.m.write(ctx, writeRequest{
		agent:    a.agent,
		scope:    s,
		store:    s.StoreFor(a.agent),
		content:  content,
		priority: o.priority,
		metadata: o.metadata,
	})
	if err != nil {
		return "", err
	}
	a.m.emit(event.RecordStored, a.agent, rec.Scope, map[string]interface{}{
		"id":       rec.ID,
		"priority": string(rec.Priority),
	})
	return rec.ID, nil
}

// AgentStats describes what an agent can see and how much of it exists.
type AgentStats struct {
	Enabled  bool             `json:"enabled"`
	Agent    string           `json:"agent"`
	Readable []string         `json:"readable_scopes,omitempty"`
	Writable []string         `json:"writable_scopes,omitempty"`
	Records  map[string]int64 `json:"records,omitempty"` // per readable scope, expired records included until swept
}

// Stats reports the agent's scopes and the record count visible in each.
func (a *AgentMemory) Stats(ctx context.Context) (AgentStats, error) {
	st := AgentStats{Enabled: !a.m.disabled, Agent: a.agent}
	if a.m.disabled {
		return st, nil
	}
	if err := a.validate(); err != nil {
		return st, err
	}

	readable := a.m.guard.Readable(a.agent)
	byStore := make(map[string][]*Scope)
	for _, s := range readable {
		st.Readable = append(st.Readable, s.Name)
		id := s.StoreFor(a.agent)
		byStore[id] = append(byStore[id], s)
	}
	for _, s := range a.m.guard.Writable(a.agent) {
		st.Writable = append(st.Writable, s.Name)
	}

	st.Records = make(map[string]int64, len(readable))
	ids := make([]string, 0, len(byStore))
	for id := range byStore {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ss, err := a.m.store.Stats(ctx, id)
		if err != nil {
			return st, a.m.storageError(id, "stats", err)
		}
		for _, s := range byStore[id] {
			st.Records[s.Name] = ss.Scopes[s.Name]
		}
	}
	return st, nil
}

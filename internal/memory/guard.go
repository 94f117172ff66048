package memory

import (
	"strings"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

// Op is an operation checked by the Guard.
type Op string

const (
	OpRead      Op = "read"
	OpWrite     Op = "write"
	OpHandoff   Op = "handoff"
	OpBroadcast Op = "broadcast"
)

// Guard enforces scope access lists. It holds no mutable state.
type Guard struct {
	registry *Registry
}

// NewGuard creates a guard over the registry.
func NewGuard(r *Registry) *Guard {
	return &Guard{registry: r}
}

// Check resolves scope and decides whether agent may perform op on it.
// For OpHandoff, agent is the recipient.
//
// Rules:
//   - read: agents on the access list; the alerts scope is readable by all
//   - write: agents on the access list
//   - broadcast: any agent, alerts scope only
//   - handoff: recipient must be on the handoff scope's access list
func (g *Guard) Check(agent, scope string, op Op) (*Scope, error) {
	if strings.TrimSpace(agent) == "" {
		return nil, memerrors.Validation("agent id is required")
	}
	s, err := g.registry.Lookup(scope)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpRead:
		if g.registry.IsAlerts(s) || s.Permits(agent) {
			return s, nil
		}
	case OpWrite:
		if s.Permits(agent) {
			return s, nil
		}
	case OpBroadcast:
		if g.registry.IsAlerts(s) {
			return s, nil
		}
	case OpHandoff:
		if s.Name == g.registry.handoff && s.Permits(agent) {
			return s, nil
		}
	default:
		return nil, memerrors.Validation("unknown operation %q", op)
	}
	return nil, memerrors.PermissionDenied(scope, agent, string(op))
}

// Readable returns every scope agent may read, in configuration order.
func (g *Guard) Readable(agent string) []*Scope {
	var out []*Scope
	for _, s := range g.registry.Scopes() {
		if g.registry.IsAlerts(s) || s.Permits(agent) {
			out = append(out, s)
		}
	}
	return out
}

// Writable returns every scope agent may write, in configuration order.
func (g *Guard) Writable(agent string) []*Scope {
	var out []*Scope
	for _, s := range g.registry.Scopes() {
		if s.Permits(agent) {
			out = append(out, s)
		}
	}
	return out
}

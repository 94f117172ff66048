package memory

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	agentStorePrefix = "agent_"
	poolStorePrefix  = "pool_"
)

// AgentStoreID returns the physical store id owned by an agent.
func AgentStoreID(agent string) string {
	return agentStorePrefix + slug(agent)
}

// PoolStoreID returns the physical store id of a shared pool.
func PoolStoreID(pool string) string {
	return poolStorePrefix + slug(pool)
}

// IsPoolStore reports whether id names a shared pool store.
func IsPoolStore(id string) bool {
	return strings.HasPrefix(id, poolStorePrefix)
}

// slug maps a name onto [a-z0-9_-]. A name that had to be rewritten gets a
// digest suffix so that distinct names never share a store.
func slug(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == name && s != "" {
		return s
	}
	sum := blake3.Sum256([]byte(name))
	return s + "-" + hex.EncodeToString(sum[:4])
}

package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

// Priority ranks a record. It is descriptive only; queries never reorder by it.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityWeights = map[Priority]int{
	PriorityCritical: 10,
	PriorityHigh:     7,
	PriorityMedium:   5,
	PriorityLow:      3,
}

// ParsePriority validates a priority name.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := priorityWeights[p]; !ok {
		return "", memerrors.Validation("invalid priority %q", s).
			WithSuggestion("use one of critical, high, medium, low")
	}
	return p, nil
}

// Weight returns the numeric weight of the priority, or 0 if unknown.
func (p Priority) Weight() int {
	return priorityWeights[p]
}

// Metadata is a JSON-compatible attribute map attached to a record.
type Metadata map[string]any

// Record is one immutable memory entry.
type Record struct {
	ID        string    `json:"id" cbor:"id"`
	Seq       int64     `json:"seq" cbor:"seq"`
	Store     string    `json:"store" cbor:"store"`
	Scope     string    `json:"scope" cbor:"scope"`
	AgentID   string    `json:"agent_id" cbor:"agent_id"`
	Content   string    `json:"content" cbor:"content"`
	Priority  Priority  `json:"priority" cbor:"priority"`
	Metadata  Metadata  `json:"metadata,omitempty" cbor:"metadata,omitempty"`
	Key       string    `json:"key,omitempty" cbor:"key,omitempty"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at"`
	ExpiresAt time.Time `json:"expires_at" cbor:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// NormalizeMetadata validates md and converts it to the closed set of
// JSON-compatible kinds: nil, string, bool, int64, float64, []any and
// map[string]any. Integer kinds become int64 and float32 becomes float64.
func NormalizeMetadata(md map[string]any) (Metadata, error) {
	if md == nil {
		return nil, nil
	}
	out := make(Metadata, len(md))
	for k, v := range md {
		nv, err := normalizeValue(k, v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(path string, v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return uintToInt(path, uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt(path, x)
	case float32:
		return checkFloat(path, float64(x))
	case float64:
		return checkFloat(path, x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, memerrors.Validation("metadata %s: invalid number %q", path, x.String())
		}
		return checkFloat(path, f)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ne, err := normalizeValue(fmt.Sprintf("%s[%d]", path, i), e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case Metadata:
		return normalizeMap(path, x)
	case map[string]any:
		return normalizeMap(path, x)
	default:
		return nil, memerrors.Validation("metadata %s: unsupported value of type %T", path, v).
			WithSuggestion("metadata values must be strings, numbers, booleans, lists or maps")
	}
}

func normalizeMap(path string, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		nv, err := normalizeValue(path+"."+k, v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func uintToInt(path string, u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, memerrors.Validation("metadata %s: integer %d overflows int64", path, u)
	}
	return int64(u), nil
}

func checkFloat(path string, f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, memerrors.Validation("metadata %s: %v is not representable in JSON", path, f)
	}
	return f, nil
}

// encodeMetadata renders metadata as JSON text; nil or empty maps encode as "".
func encodeMetadata(md Metadata) (string, error) {
	if len(md) == 0 {
		return "", nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

// decodeMetadata parses JSON text written by encodeMetadata, keeping integers
// as int64.
func decodeMetadata(s string) (Metadata, error) {
	if s == "" {
		return nil, nil
	}
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return NormalizeMetadata(raw)
}

// decodeRecord parses a JSON-encoded record, keeping metadata integers as int64.
func decodeRecord(data []byte) (Record, error) {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	md, err := NormalizeMetadata(rec.Metadata)
	if err != nil {
		return Record{}, err
	}
	rec.Metadata = md
	return rec, nil
}

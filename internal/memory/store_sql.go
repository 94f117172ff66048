package memory

import (
	"fmt"
	"strings"
	"time"
)

// recordColumns is the select list shared by the SQL drivers.
const recordColumns = `seq, id, scope, agent_id, content, priority, metadata, cache_key, created_at_ns, expires_at_ns`

// whereClause renders f as SQL conditions. placeholder returns the bind
// marker for the n-th argument (1-based). Leading conditions and args may be
// supplied by the caller.
func whereClause(f Filter, conds []string, args []any, placeholder func(n int) string) (string, []any) {
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if f.Scope != "" {
		add("scope = %s", f.Scope)
	}
	if !f.Since.IsZero() {
		add("created_at_ns >= %s", f.Since.UnixNano())
	}
	if !f.Now.IsZero() {
		add("expires_at_ns >= %s", f.Now.UnixNano())
	}
	if f.Priority != "" {
		add("priority = %s", string(f.Priority))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner is satisfied by *sql.Rows, *sql.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, store string) (Record, error) {
	var (
		rec       Record
		priority  string
		metadata  string
		createdNs int64
		expiresNs int64
	)
	if err := row.Scan(&rec.Seq, &rec.ID, &rec.Scope, &rec.AgentID, &rec.Content,
		&priority, &metadata, &rec.Key, &createdNs, &expiresNs); err != nil {
		return Record{}, err
	}
	md, err := decodeMetadata(metadata)
	if err != nil {
		return Record{}, err
	}
	rec.Store = store
	rec.Priority = Priority(priority)
	rec.Metadata = md
	rec.CreatedAt = time.Unix(0, createdNs)
	rec.ExpiresAt = time.Unix(0, expiresNs)
	return rec, nil
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memory_records (
	seq BIGSERIAL PRIMARY KEY,
	store_id TEXT NOT NULL,
	id TEXT NOT NULL UNIQUE,
	scope TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	content TEXT NOT NULL,
	priority TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '',
	cache_key TEXT NOT NULL DEFAULT '',
	created_at_ns BIGINT NOT NULL,
	expires_at_ns BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_records_recent ON memory_records(store_id, scope, created_at_ns DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_memory_records_expiry ON memory_records(store_id, expires_at_ns);
CREATE INDEX IF NOT EXISTS idx_memory_records_key ON memory_records(store_id, scope, cache_key, seq DESC) WHERE cache_key <> '';
`

// PostgresRecordStore keeps every physical store in one table keyed by store_id.
type PostgresRecordStore struct {
	db *pgxpool.Pool
}

// NewPostgresRecordStore connects to dsn and applies the schema.
func NewPostgresRecordStore(ctx context.Context, dsn string) (*PostgresRecordStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresRecordStore{db: pool}, nil
}

func pgPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func (s *PostgresRecordStore) Append(ctx context.Context, store string, rec *Record) error {
	md, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO memory_records (store_id, id, scope, agent_id, content, priority, metadata, cache_key, created_at_ns, expires_at_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq
	`, store, rec.ID, rec.Scope, rec.AgentID, rec.Content, string(rec.Priority), md, rec.Key,
		rec.CreatedAt.UnixNano(), rec.ExpiresAt.UnixNano()).Scan(&rec.Seq)
	if err != nil {
		return err
	}
	rec.Store = store
	return nil
}

func (s *PostgresRecordStore) Query(ctx context.Context, store string, f Filter) ([]Record, error) {
	where, args := whereClause(f, []string{"store_id = $1"}, []any{store}, pgPlaceholder)
	q := "SELECT " + recordColumns + " FROM memory_records" + where + " ORDER BY created_at_ns DESC, seq DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT " + pgPlaceholder(len(args))
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows, store)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) Latest(ctx context.Context, store, scope, key string) (*Record, error) {
	row := s.db.QueryRow(ctx, "SELECT "+recordColumns+`
		FROM memory_records
		WHERE store_id = $1 AND scope = $2 AND cache_key = $3
		ORDER BY seq DESC
		LIMIT 1
	`, store, scope, key)
	rec, err := scanRecord(row, store)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresRecordStore) Sweep(ctx context.Context, store string, now time.Time) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	superseded, err := tx.Exec(ctx, `
		DELETE FROM memory_records old
		USING memory_records newer
		WHERE old.store_id = $1 AND newer.store_id = $1
		  AND old.cache_key <> ''
		  AND newer.scope = old.scope
		  AND newer.cache_key = old.cache_key
		  AND newer.seq > old.seq
	`, store)
	if err != nil {
		return 0, err
	}
	expired, err := tx.Exec(ctx, `
		DELETE FROM memory_records WHERE store_id = $1 AND expires_at_ns < $2
	`, store, now.UnixNano())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return superseded.RowsAffected() + expired.RowsAffected(), nil
}

func (s *PostgresRecordStore) Stats(ctx context.Context, store string) (StoreStats, error) {
	st := StoreStats{Store: store, Scopes: make(map[string]int64)}
	rows, err := s.db.Query(ctx, `
		SELECT scope, COUNT(*), MIN(created_at_ns), MAX(created_at_ns)
		FROM memory_records
		WHERE store_id = $1
		GROUP BY scope
	`, store)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			scope          string
			n              int64
			oldest, newest int64
		)
		if err := rows.Scan(&scope, &n, &oldest, &newest); err != nil {
			return st, err
		}
		st.Scopes[scope] = n
		st.Records += n
		if o := time.Unix(0, oldest); st.Oldest.IsZero() || o.Before(st.Oldest) {
			st.Oldest = o
		}
		if nw := time.Unix(0, newest); nw.After(st.Newest) {
			st.Newest = nw
		}
	}
	return st, rows.Err()
}

func (s *PostgresRecordStore) Stores(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT store_id FROM memory_records ORDER BY store_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Optimize runs VACUUM ANALYZE on the shared table; the store argument is
// accepted for interface symmetry.
func (s *PostgresRecordStore) Optimize(ctx context.Context, _ string) error {
	_, err := s.db.Exec(ctx, "VACUUM ANALYZE memory_records")
	return err
}

// Close shuts down the connection pool.
func (s *PostgresRecordStore) Close() error {
	s.db.Close()
	return nil
}

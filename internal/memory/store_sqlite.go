package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	scope TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	content TEXT NOT NULL,
	priority TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '',
	cache_key TEXT NOT NULL DEFAULT '',
	created_at_ns INTEGER NOT NULL,
	expires_at_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_records_recent ON memory_records(scope, created_at_ns DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_memory_records_expiry ON memory_records(expires_at_ns);
CREATE INDEX IF NOT EXISTS idx_memory_records_key ON memory_records(scope, cache_key, seq DESC);
`

// SQLiteRecordStore keeps one SQLite database file per physical store under a
// directory. Handles are opened lazily and shared by every caller in the process.
type SQLiteRecordStore struct {
	dir string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewSQLiteRecordStore creates (if needed) dir and returns a store rooted there.
func NewSQLiteRecordStore(dir string) (*SQLiteRecordStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &SQLiteRecordStore{dir: dir, dbs: make(map[string]*sql.DB)}, nil
}

func (s *SQLiteRecordStore) path(store string) string {
	return filepath.Join(s.dir, store+".db")
}

// exists reports whether the store has been written, so reads of an unknown
// store do not create its file.
func (s *SQLiteRecordStore) exists(store string) bool {
	s.mu.Lock()
	_, open := s.dbs[store]
	s.mu.Unlock()
	if open {
		return true
	}
	_, err := os.Stat(s.path(store))
	return err == nil
}

func (s *SQLiteRecordStore) db(store string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[store]; ok {
		return db, nil
	}

	dsn := "file:" + s.path(store) + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store database: %w", err)
	}
	s.dbs[store] = db
	return db, nil
}

func (s *SQLiteRecordStore) Append(ctx context.Context, store string, rec *Record) error {
	db, err := s.db(store)
	if err != nil {
		return err
	}
	md, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO memory_records (id, scope, agent_id, content, priority, metadata, cache_key, created_at_ns, expires_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Scope, rec.AgentID, rec.Content, string(rec.Priority), md, rec.Key,
		rec.CreatedAt.UnixNano(), rec.ExpiresAt.UnixNano())
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.Seq = seq
	rec.Store = store
	return nil
}

func (s *SQLiteRecordStore) Query(ctx context.Context, store string, f Filter) ([]Record, error) {
	if !s.exists(store) {
		return nil, nil
	}
	db, err := s.db(store)
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f, nil, nil, func(int) string { return "?" })
	q := "SELECT " + recordColumns + " FROM memory_records" + where + " ORDER BY created_at_ns DESC, seq DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
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

func (s *SQLiteRecordStore) Latest(ctx context.Context, store, scope, key string) (*Record, error) {
	if !s.exists(store) {
		return nil, nil
	}
	db, err := s.db(store)
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, "SELECT "+recordColumns+`
		FROM memory_records
		WHERE scope = ? AND cache_key = ?
		ORDER BY seq DESC
		LIMIT 1
	`, scope, key)
	rec, err := scanRecord(row, store)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteRecordStore) Sweep(ctx context.Context, store string, now time.Time) (int64, error) {
	db, err := s.db(store)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var deleted int64
	for _, stmt := range []struct {
		q    string
		args []any
	}{
		{`DELETE FROM memory_records WHERE cache_key <> '' AND EXISTS (
			SELECT 1 FROM memory_records newer
			WHERE newer.scope = memory_records.scope
			  AND newer.cache_key = memory_records.cache_key
			  AND newer.seq > memory_records.seq)`, nil},
		{`DELETE FROM memory_records WHERE expires_at_ns < ?`, []any{now.UnixNano()}},
	} {
		res, err := tx.ExecContext(ctx, stmt.q, stmt.args...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *SQLiteRecordStore) Stats(ctx context.Context, store string) (StoreStats, error) {
	st := StoreStats{Store: store, Scopes: make(map[string]int64)}
	if !s.exists(store) {
		return st, nil
	}
	db, err := s.db(store)
	if err != nil {
		return st, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT scope, COUNT(*), MIN(created_at_ns), MAX(created_at_ns)
		FROM memory_records
		GROUP BY scope
	`)
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
	if err := rows.Err(); err != nil {
		return st, err
	}

	for _, suffix := range []string{"", "-wal"} {
		if fi, err := os.Stat(s.path(store) + suffix); err == nil {
			st.SizeBytes += fi.Size()
		}
	}
	return st, nil
}

// Stores lists the .db files in the directory, including ones written by
// other processes.
func (s *SQLiteRecordStore) Stores(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".db"); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *SQLiteRecordStore) Optimize(ctx context.Context, store string) error {
	db, err := s.db(store)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "VACUUM")
	return err
}

// Close closes every open database handle.
func (s *SQLiteRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, id)
	}
	return firstErr
}

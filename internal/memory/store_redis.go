package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "scopemem:"

// RedisRecordStore keeps one sorted set per (store, scope), scored by seq.
//
// Keys:
//
//	scopemem:stores                    set of store ids
//	scopemem:<store>:seq               INCR counter
//	scopemem:<store>:scopes            set of scopes holding records
//	scopemem:<store>:records:<scope>   zset of JSON records, score = seq
type RedisRecordStore struct {
	rdb *redis.Client
}

// NewRedisRecordStore connects to a redis:// URL.
func NewRedisRecordStore(ctx context.Context, url string) (*RedisRecordStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisRecordStore{rdb: rdb}, nil
}

func storesKey() string { return redisPrefix + "stores" }
func seqKey(store string) string { return redisPrefix + store + ":seq" }
func scopesKey(store string) string { return redisPrefix + store + ":scopes" }
func recordsKey(store, scope string) string {
	return redisPrefix + store + ":records:" + scope
}

func (s *RedisRecordStore) Append(ctx context.Context, store string, rec *Record) error {
	seq, err := s.rdb.Incr(ctx, seqKey(store)).Result()
	if err != nil {
		return fmt.Errorf("allocate seq: %w", err)
	}
	rec.Seq = seq
	rec.Store = store

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, recordsKey(store, rec.Scope), redis.Z{Score: float64(seq), Member: string(data)})
		pipe.SAdd(ctx, scopesKey(store), rec.Scope)
		pipe.SAdd(ctx, storesKey(), store)
		return nil
	})
	return err
}

func (s *RedisRecordStore) scopes(ctx context.Context, store, scope string) ([]string, error) {
	if scope != "" {
		return []string{scope}, nil
	}
	return s.rdb.SMembers(ctx, scopesKey(store)).Result()
}

// load returns every record of one scope, highest seq first.
func (s *RedisRecordStore) load(ctx context.Context, store, scope string) ([]Record, []string, error) {
	members, err := s.rdb.ZRevRange(ctx, recordsKey(store, scope), 0, -1).Result()
	if err != nil {
		return nil, nil, err
	}
	recs := make([]Record, 0, len(members))
	for _, m := range members {
		rec, err := decodeRecord([]byte(m))
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
	}
	return recs, members, nil
}

func (s *RedisRecordStore) Query(ctx context.Context, store string, f Filter) ([]Record, error) {
	scopes, err := s.scopes(ctx, store, f.Scope)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, scope := range scopes {
		recs, _, err := s.load(ctx, store, scope)
		if err != nil {
			return nil, err
		}
		for i := range recs {
			if f.matches(&recs[i]) {
				out = append(out, recs[i])
			}
		}
	}
	sortRecords(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *RedisRecordStore) Latest(ctx context.Context, store, scope, key string) (*Record, error) {
	recs, _, err := s.load(ctx, store, scope)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Key == key {
			return &recs[i], nil
		}
	}
	return nil, nil
}

// Sweep removes the stale members of every scope in a single MULTI/EXEC.
// Members are removed by value, so records appended concurrently survive.
func (s *RedisRecordStore) Sweep(ctx context.Context, store string, now time.Time) (int64, error) {
	scopes, err := s.scopes(ctx, store, "")
	if err != nil {
		return 0, err
	}

	doomed := make(map[string][]any)
	var total int64
	for _, scope := range scopes {
		recs, members, err := s.load(ctx, store, scope)
		if err != nil {
			return 0, err
		}
		stale := superseded(recs)
		for i := range recs {
			if stale[i] || recs[i].Expired(now) {
				doomed[scope] = append(doomed[scope], members[i])
			}
		}
		total += int64(len(doomed[scope]))
	}
	if total == 0 {
		return 0, nil
	}

	var removed int64
	cmds, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for scope, members := range doomed {
			pipe.ZRem(ctx, recordsKey(store, scope), members...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, c := range cmds {
		if ic, ok := c.(*redis.IntCmd); ok {
			removed += ic.Val()
		}
	}
	return removed, nil
}

func (s *RedisRecordStore) Stats(ctx context.Context, store string) (StoreStats, error) {
	st := StoreStats{Store: store, Scopes: make(map[string]int64)}
	scopes, err := s.scopes(ctx, store, "")
	if err != nil {
		return st, err
	}
	for _, scope := range scopes {
		recs, _, err := s.load(ctx, store, scope)
		if err != nil {
			return st, err
		}
		if len(recs) == 0 {
			continue
		}
		st.Scopes[scope] = int64(len(recs))
		st.Records += int64(len(recs))
		for _, r := range recs {
			if st.Oldest.IsZero() || r.CreatedAt.Before(st.Oldest) {
				st.Oldest = r.CreatedAt
			}
			if r.CreatedAt.After(st.Newest) {
				st.Newest = r.CreatedAt
			}
		}
	}
	return st, nil
}

func (s *RedisRecordStore) Stores(ctx context.Context) ([]string, error) {
	out, err := s.rdb.SMembers(ctx, storesKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Optimize is a no-op; Redis reclaims memory on delete.
func (s *RedisRecordStore) Optimize(context.Context, string) error { return nil }

func (s *RedisRecordStore) Close() error {
	return s.rdb.Close()
}

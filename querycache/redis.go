package querycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisStore shares entries between web replicas. Each entry is a JSON envelope kept
// for `retention`, independently of the cache's freshness TTL.
type RedisStore struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, retention: retention}
}

// Connect opens a client for `addr` and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "pinging redis at %s", addr)
	}
	return rdb, nil
}

func (s *RedisStore) redisKey(scope string, key Key) string {
	return s.prefix + ":" + scope + ":" + key.String()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getEntry(ctx context.Context, c getter, k string) (Entry, bool, error) {
	var e Entry
	data, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	if err = json.Unmarshal(data, &e); err != nil {
		return e, false, errors.Wrapf(err, "decoding %s", k)
	}
	return e, true, nil
}

func (s *RedisStore) Get(ctx context.Context, scope string, key Key) (Entry, bool, error) {
	return getEntry(ctx, s.rdb, s.redisKey(scope, key))
}

// update applies fn to the entry at `k` inside an optimistic transaction.
// fn returns false to leave the entry untouched.
func (s *RedisStore) update(ctx context.Context, k string, fn func(e Entry, found bool) (Entry, bool)) error {
	txf := func(tx *redis.Tx) error {
		e, found, err := getEntry(ctx, tx, k)
		if err != nil {
			return err
		}
		e, write := fn(e, found)
		if !write {
			return nil
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.retention)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errors.Errorf("updating %s: too many concurrent writers", k)
}

func (s *RedisStore) Set(ctx context.Context, scope string, key Key, e Entry) error {
	return s.update(ctx, s.redisKey(scope, key), func(existing Entry, found bool) (Entry, bool) {
		if found && !supersedes(existing, e.FetchedAt) {
			return existing, false
		}
		return e, true
	})
}

func (s *RedisStore) MarkStale(ctx context.Context, scope string, at time.Time, keys ...Key) error {
	for _, key := range keys {
		err := s.update(ctx, s.redisKey(scope, key), func(e Entry, _ bool) (Entry, bool) {
			return markStale(e, at), true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, scope string) error {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+":"+scope+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "scanning scope")
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

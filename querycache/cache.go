// Package querycache memoizes backend reads per session and re-fetches them once
// invalidated by a mutation.
package querycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/quizboard/core"
)

// Entry is a cached response.
type Entry struct {
	Data          json.RawMessage `json:"data,omitempty"`
	Stale         bool            `json:"stale"`
	FetchedAt     time.Time       `json:"fetched_at"`
	InvalidatedAt time.Time       `json:"invalidated_at"`
}

// Store persists entries. Set must not overwrite an entry invalidated at or after
// the new entry's FetchedAt.
type Store interface {
	Get(ctx context.Context, scope string, key Key) (Entry, bool, error)
	Set(ctx context.Context, scope string, key Key, e Entry) error
	// MarkStale flags `keys` as stale at time `at`, creating empty markers for absent keys.
	MarkStale(ctx context.Context, scope string, at time.Time, keys ...Key) error
	Clear(ctx context.Context, scope string) error
}

type Cache struct {
	store  Store
	ttl    time.Duration // 0: entries stay fresh until invalidated
	logger core.Logger
	flight singleflight.Group
	now    func() time.Time
}

func New(store Store, ttl time.Duration, logger core.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Scope returns the view of the cache belonging to one session.
func (c *Cache) Scope(sid string) *Scope {
	return &Scope{cache: c, id: sid}
}

func (c *Cache) fresh(e Entry) bool {
	if e.Stale || e.Data == nil {
		return false
	}
	return c.ttl <= 0 || c.now().Sub(e.FetchedAt) < c.ttl
}

type Scope struct {
	cache *Cache
	id    string
}

func (s *Scope) ID() string { return s.id }

func (s *Scope) flightKey(key Key) string {
	return s.id + "|" + key.String()
}

// Invalidate marks `keys` stale; the next Fetch of each calls the backend again.
func (s *Scope) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		s.cache.flight.Forget(s.flightKey(key))
	}
	return errors.Wrap(s.cache.store.MarkStale(ctx, s.id, s.cache.now(), keys...), "invalidating cache")
}

// Clear drops every entry of the scope.
func (s *Scope) Clear(ctx context.Context) error {
	return errors.Wrap(s.cache.store.Clear(ctx, s.id), "clearing cache")
}

// Query describes a cached read. A disabled query never runs.
type Query[T any] struct {
	Key     Key
	Enabled bool
	Fn      func(ctx context.Context) (T, error)
}

// Fetch returns the cached value of q.Key when fresh, or runs q.Fn and caches its result.
// Concurrent fetches of the same key share one call. ok is false when the query is disabled.
func Fetch[T any](ctx context.Context, s *Scope, q Query[T]) (value T, ok bool, err error) {
	if !q.Enabled {
		return value, false, nil
	}
	c := s.cache

	entry, found, err := c.store.Get(ctx, s.id, q.Key)
	if err != nil {
		c.logger.Warn("cache read failed", errors.Wrapf(err, "reading %s", q.Key))
	} else if found && c.fresh(entry) {
		if err = json.Unmarshal(entry.Data, &value); err == nil {
			return value, true, nil
		}
		c.logger.Warn("discarding unreadable cache entry", errors.Wrapf(err, "decoding %s", q.Key))
	}

	data, err, _ := c.flight.Do(s.flightKey(q.Key), func() (interface{}, error) {
		started := c.now()
		v, err := q.Fn(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s", q.Key)
		}
		if err := c.store.Set(ctx, s.id, q.Key, Entry{Data: raw, FetchedAt: started}); err != nil {
			c.logger.Warn("cache write failed", errors.Wrapf(err, "writing %s", q.Key))
		}
		return raw, nil
	})
	if err != nil {
		return value, false, err
	}
	if err = json.Unmarshal(data.([]byte), &value); err != nil {
		return value, false, errors.Wrapf(err, "decoding %s", q.Key)
	}
	return value, true, nil
}

// supersedes reports whether an entry fetched at `fetchedAt` may replace `existing`.
func supersedes(existing Entry, fetchedAt time.Time) bool {
	return existing.InvalidatedAt.IsZero() || fetchedAt.After(existing.InvalidatedAt)
}

// markStale returns `e` flagged stale at `at`.
func markStale(e Entry, at time.Time) Entry {
	e.Stale = true
	if at.After(e.InvalidatedAt) {
		e.InvalidatedAt = at
	}
	return e
}

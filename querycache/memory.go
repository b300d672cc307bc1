package querycache

import (
	"context"
	"sync"
	"time"
)

type memoryScope struct {
	entries map[Key]Entry
	usedAt  time.Time
}

// MemoryStore keeps entries in process memory.
// Scopes left untouched for longer than the retention are dropped; a zero retention keeps them until cleared.
type MemoryStore struct {
	mutex     sync.Mutex
	scopes    map[string]*memoryScope
	retention time.Duration
	sweptAt   time.Time
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		scopes:    make(map[string]*memoryScope),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, scope string, key Key) (Entry, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return Entry{}, false, nil
	}
	now := s.now()
	if s.expired(sc, now) {
		delete(s.scopes, scope)
		return Entry{}, false, nil
	}
	sc.usedAt = now
	e, ok := sc.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, scope string, key Key, e Entry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	entries := s.entries(scope)
	if existing, ok := entries[key]; ok && !supersedes(existing, e.FetchedAt) {
		return nil
	}
	entries[key] = e
	return nil
}

func (s *MemoryStore) MarkStale(_ context.Context, scope string, at time.Time, keys ...Key) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	entries := s.entries(scope)
	for _, key := range keys {
		entries[key] = markStale(entries[key], at)
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, scope string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.scopes, scope)
	return nil
}

// Len returns the number of scopes currently held.
func (s *MemoryStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.scopes)
}

// callers hold s.mutex
func (s *MemoryStore) entries(scope string) map[Key]Entry {
	now := s.now()
	s.sweep(now)
	sc, ok := s.scopes[scope]
	if !ok || s.expired(sc, now) {
		sc = &memoryScope{entries: make(map[Key]Entry)}
		s.scopes[scope] = sc
	}
	sc.usedAt = now
	return sc.entries
}

// sweep drops idle scopes, at most once per retention period. callers hold s.mutex
func (s *MemoryStore) sweep(now time.Time) {
	if s.retention <= 0 || now.Sub(s.sweptAt) < s.retention {
		return
	}
	s.sweptAt = now
	for id, sc := range s.scopes {
		if s.expired(sc, now) {
			delete(s.scopes, id)
		}
	}
}

func (s *MemoryStore) expired(sc *memoryScope, now time.Time) bool {
	return s.retention > 0 && now.Sub(sc.usedAt) > s.retention
}

// Package inmem keeps session values in process memory.
package inmem

import (
	"context"
	"sync"

	"github.com/trezcool/quizboard/session"
)

type Store struct {
	mutex sync.RWMutex
	table map[string]map[string]string // sid -> key -> value
}

var _ session.Storage = (*Store)(nil)

func NewStore() *Store {
	return &Store{table: make(map[string]map[string]string)}
}

func (s *Store) Get(_ context.Context, sid, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, ok := s.table[sid][key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, sid, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	row, ok := s.table[sid]
	if !ok {
		row = make(map[string]string)
		s.table[sid] = row
	}
	row[key] = value
	return nil
}

func (s *Store) Remove(_ context.Context, sid string, keys ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	row, ok := s.table[sid]
	if !ok {
		return nil
	}
	for _, key := range keys {
		delete(row, key)
	}
	if len(row) == 0 {
		delete(s.table, sid)
	}
	return nil
}

// Len returns the number of sessions holding at least one value.
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.table)
}

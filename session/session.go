// Package session holds the authentication state of one browser (or CLI) session:
// the backend token and the signed-in user's profile.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/core/classroom"
)

// Persisted keys
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Storage persists session values. Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the value of `key`; ok is false when absent.
	Get(ctx context.Context, sid, key string) (value string, ok bool, err error)
	Set(ctx context.Context, sid, key, value string) error
	// Remove deletes all `keys` in one operation.
	Remove(ctx context.Context, sid string, keys ...string) error
}

// ProfileLoader fetches the profile of the user owning the session's token.
type ProfileLoader func(ctx context.Context, s *Session) (classroom.User, error)

type Manager struct {
	storage Storage
	loader  ProfileLoader
	logger  core.Logger
}

func NewManager(storage Storage, loader ProfileLoader, logger core.Logger) *Manager {
	return &Manager{storage: storage, loader: loader, logger: logger}
}

// NewID returns a fresh session id.
func (m *Manager) NewID() string {
	return uuid.NewString()
}

// Open hydrates the session `id` from storage. When a token is stored without a user,
// the profile is fetched; if that fails the session is cleared.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	s := &Session{id: id, m: m, loading: true}

	token, hasToken, err := m.storage.Get(ctx, id, KeyToken)
	if err != nil {
		return nil, errors.Wrap(err, "reading session token")
	}
	raw, ok, err := m.storage.Get(ctx, id, KeyUser)
	if err != nil {
		return nil, errors.Wrap(err, "reading session user")
	}
	if ok && raw != "" {
		var usr classroom.User
		if err := json.Unmarshal([]byte(raw), &usr); err != nil {
			m.logger.Warn("discarding unreadable session user", err)
		} else {
			s.user = &usr
		}
	}
	s.token = token
	s.storedToken = token
	s.stored = hasToken || ok

	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Session is the authentication state of one session. It is safe for concurrent use.
type Session struct {
	id string
	m  *Manager

	mu      sync.RWMutex
	token   string
	user    *classroom.User
	loading bool

	// what storage holds, so unchanged values are not written again
	storedToken string
	stored      bool
}

func (s *Session) ID() string { return s.id }

// Token implements apiclient.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the signed-in user, if known.
func (s *Session) User() (classroom.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return classroom.User{}, false
	}
	return *s.user, true
}

// Loading reports whether the session is still being hydrated.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// SetToken replaces the token and runs the fetch-or-clear sequence once.
func (s *Session) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.loading = true
	s.mu.Unlock()
	return s.sync(ctx)
}

// SetUser replaces the user; it never triggers a profile fetch.
func (s *Session) SetUser(ctx context.Context, usr *classroom.User) error {
	s.mu.Lock()
	s.user = usr
	s.mu.Unlock()
	if usr == nil {
		return nil
	}
	return s.persistUser(ctx, *usr)
}

// SignIn stores the token and user returned by a login in one step.
func (s *Session) SignIn(ctx context.Context, token string, usr classroom.User) error {
	if err := s.SetUser(ctx, &usr); err != nil {
		return err
	}
	return s.SetToken(ctx, token)
}

// Logout forgets the token and user, in memory and in storage. The backend is not called.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	if err := s.m.storage.Remove(ctx, s.id, KeyToken, KeyUser); err != nil {
		return errors.Wrap(err, "clearing session")
	}
	s.mu.Lock()
	s.storedToken = ""
	s.stored = false
	s.mu.Unlock()
	return nil
}

// sync reconciles storage and the user with the current token.
func (s *Session) sync(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	s.mu.Lock()
	token, storedToken, stored := s.token, s.storedToken, s.stored
	if token == "" && !stored {
		// anonymous and nothing persisted
		s.user = nil
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if token == "" {
		return s.Logout(ctx)
	}
	if token != storedToken {
		if err := s.m.storage.Set(ctx, s.id, KeyToken, token); err != nil {
			return errors.Wrap(err, "storing session token")
		}
		s.mu.Lock()
		s.storedToken = token
		s.stored = true
		s.mu.Unlock()
	}
	if _, ok := s.User(); ok {
		return nil
	}

	// the loader may itself clear the session on 401: no lock is held here
	usr, err := s.m.loader(ctx, s)
	if err != nil {
		s.m.logger.Warn("failed to fetch user profile", err)
		return s.Logout(ctx)
	}
	return s.SetUser(ctx, &usr)
}

func (s *Session) persistUser(ctx context.Context, usr classroom.User) error {
	data, err := json.Marshal(usr)
	if err != nil {
		return errors.Wrap(err, "encoding session user")
	}
	if err := s.m.storage.Set(ctx, s.id, KeyUser, string(data)); err != nil {
		return errors.Wrap(err, "storing session user")
	}
	s.mu.Lock()
	s.stored = true
	s.mu.Unlock()
	return nil
}

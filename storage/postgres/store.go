package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/session"
)

type Store struct {
	db *sqlx.DB
}

var _ session.Storage = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, sid, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM session_value WHERE sid = $1 AND key = $2`, sid, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "selecting session value")
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, sid, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_value (sid, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (sid, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		sid, key, value,
	)
	return errors.Wrap(err, "upserting session value")
}

// Remove deletes `keys` with a single statement.
func (s *Store) Remove(ctx context.Context, sid string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_value WHERE sid = $1 AND key = ANY($2)`, sid, pq.Array(keys))
	return errors.Wrap(err, "deleting session values")
}

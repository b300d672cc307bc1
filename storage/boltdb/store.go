// Package boltdb keeps session values in a bbolt file, one nested bucket per session.
package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/quizboard/session"
)

var sessionsBucket = []byte("sessions")

type Store struct {
	db *bbolt.DB
}

var _ session.Storage = (*Store)(nil)

// Open opens (or creates) the database file at `path`.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating session directory")
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating sessions bucket")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(_ context.Context, sid, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionsBucket).Bucket([]byte(sid))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, errors.Wrap(err, "reading session")
}

func (s *Store) Set(_ context.Context, sid, key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.Bucket(sessionsBucket).CreateBucketIfNotExists([]byte(sid))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), []byte(value))
	})
	return errors.Wrap(err, "writing session")
}

// Remove deletes `keys` in a single transaction and drops the session bucket once empty.
func (s *Store) Remove(_ context.Context, sid string, keys ...string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(sessionsBucket)
		bkt := root.Bucket([]byte(sid))
		if bkt == nil {
			return nil
		}
		for _, key := range keys {
			if err := bkt.Delete([]byte(key)); err != nil {
				return err
			}
		}
		if k, _ := bkt.Cursor().First(); k == nil {
			return root.DeleteBucket([]byte(sid))
		}
		return nil
	})
	return errors.Wrap(err, "removing session keys")
}

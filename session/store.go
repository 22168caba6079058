// Package session keeps login sessions in a bbolt file. A session maps an
// opaque id to a user id and an expiry; the user itself is always loaded
// from the database.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var bucketSessions = []byte("Sessions")

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

type Session struct {
	ID        string    `json:"-"`
	UserID    uint      `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens (or creates) the session file at path.
func Open(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Create stores a new session for userID valid for ttl and returns its id.
func (s *BoltStore) Create(ctx context.Context, userID uint, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now()
	sess := Session{UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	value, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte(id), value)
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

// Lookup resolves a session id. Expired sessions are removed and reported as
// ErrExpired.
func (s *BoltStore) Lookup(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sess Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSessions).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &sess)
	})
	if err != nil {
		return nil, err
	}

	if !s.now().Before(sess.ExpiresAt) {
		_ = s.Delete(ctx, id)
		return nil, ErrExpired
	}
	sess.ID = id
	return &sess, nil
}

func (s *BoltStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(id))
	})
}

// DeleteUser drops every session belonging to userID.
func (s *BoltStore) DeleteUser(ctx context.Context, userID uint) (int, error) {
	return s.deleteWhere(func(sess Session) bool { return sess.UserID == userID })
}

// Purge removes all expired sessions and returns how many were dropped.
func (s *BoltStore) Purge(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now()
	return s.deleteWhere(func(sess Session) bool { return !now.Before(sess.ExpiresAt) })
}

func (s *BoltStore) deleteWhere(match func(Session) bool) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil || match(sess) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// RunPurge purges expired sessions every interval until ctx is done.
func (s *BoltStore) RunPurge(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Purge(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

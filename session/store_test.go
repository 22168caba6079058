package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateLookupDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, 42, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := s.Lookup(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.UserID != 42 || sess.ID != id {
		t.Fatalf("unexpected session %#v", sess)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Lookup(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupExpired(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := s.Lookup(ctx, id); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := s.Lookup(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session should be gone, got %v", err)
	}
}

func TestPurgeAndDeleteUser(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	short, _ := s.Create(ctx, 1, time.Minute)
	long, _ := s.Create(ctx, 1, time.Hour)
	other, _ := s.Create(ctx, 2, time.Hour)

	s.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d sessions, want 1", n)
	}
	if _, err := s.Lookup(ctx, short); !errors.Is(err, ErrNotFound) {
		t.Fatalf("short session survived purge: %v", err)
	}

	n, err = s.DeleteUser(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("DeleteUser = %d, %v", n, err)
	}
	if _, err := s.Lookup(ctx, long); !errors.Is(err, ErrNotFound) {
		t.Fatal("user 1 session still present")
	}
	if _, err := s.Lookup(ctx, other); err != nil {
		t.Fatalf("user 2 session lost: %v", err)
	}
}

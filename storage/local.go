package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore writes uploads below a directory served as static files.
type LocalStore struct {
	root      string
	urlPrefix string
}

func NewLocalStore(root, urlPrefix string) (*LocalStore, error) {
	for _, dir := range []string{DirCategories, DirTaskPackages, DirSubmissions} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	return &LocalStore{root: root, urlPrefix: urlPrefix}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Save(ctx context.Context, dir, prefix, originalName string, r io.Reader) (Stored, error) {
	if !validDir(dir) {
		return Stored{}, fmt.Errorf("%w: %q", ErrInvalidDir, dir)
	}
	ext := Ext(originalName)

	// O_EXCL guarantees an existing file is never overwritten; a clash of
	// the random part only costs another attempt.
	for attempt := 0; attempt < 5; attempt++ {
		if err := ctx.Err(); err != nil {
			return Stored{}, err
		}
		name := GenerateName(prefix, ext)
		full := filepath.Join(s.root, dir, name)
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return Stored{}, fmt.Errorf("create %s: %w", name, err)
		}

		n, err := io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(full)
			return Stored{}, fmt.Errorf("write %s: %w", name, err)
		}
		return Stored{Path: s.urlPrefix + "/" + dir + "/" + name, Size: n}, nil
	}
	return Stored{}, errors.New("could not allocate a unique file name")
}

func (s *LocalStore) Delete(ctx context.Context, storedPath string) error {
	key, err := keyFor(s.urlPrefix, storedPath)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) URL(storedPath string) string {
	return storedPath
}

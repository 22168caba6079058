package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/kurin/blazer/b2"
)

// B2Store keeps uploads in a Backblaze B2 bucket under the same keys the
// local store uses on disk.
type B2Store struct {
	client    *b2.Client
	bucket    *b2.Bucket
	urlPrefix string
}

func NewB2Store(ctx context.Context, keyID, appKey, bucketName, urlPrefix string) (*B2Store, error) {
	client, err := b2.NewClient(ctx, keyID, appKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create b2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &B2Store{client: client, bucket: bucket, urlPrefix: urlPrefix}, nil
}

func (s *B2Store) Save(ctx context.Context, dir, prefix, originalName string, r io.Reader) (Stored, error) {
	if !validDir(dir) {
		return Stored{}, fmt.Errorf("%w: %q", ErrInvalidDir, dir)
	}
	key := dir + "/" + GenerateName(prefix, Ext(originalName))

	w := s.bucket.Object(key).NewWriter(ctx)
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return Stored{}, fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return Stored{}, fmt.Errorf("failed to close writer: %w", err)
	}
	return Stored{Path: s.urlPrefix + "/" + key, Size: n}, nil
}

func (s *B2Store) Delete(ctx context.Context, storedPath string) error {
	key, err := keyFor(s.urlPrefix, storedPath)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(key).Delete(ctx); err != nil && !b2.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *B2Store) URL(storedPath string) string {
	key, err := keyFor(s.urlPrefix, storedPath)
	if err != nil {
		return storedPath
	}
	return s.bucket.Object(key).URL()
}

// Package storage keeps uploaded files. Rows only ever reference the public
// path returned by Save.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resource directories.
const (
	DirCategories   = "categories"
	DirTaskPackages = "aufgabenpakete"
	DirSubmissions  = "abgaben"
)

var (
	ErrInvalidPath = errors.New("invalid storage path")
	ErrInvalidDir  = errors.New("unknown upload directory")
)

type Store interface {
	Save(ctx context.Context, dir, prefix, originalName string, r io.Reader) (Stored, error)
	// Delete removes the file behind a stored path. A missing file is not
	// an error.
	Delete(ctx context.Context, storedPath string) error
	URL(storedPath string) string
}

type Stored struct {
	Path string
	Size int64
}

// Upload is one incoming file.
type Upload struct {
	Name   string
	Size   int64
	Reader io.Reader
}

func validDir(dir string) bool {
	switch dir {
	case DirCategories, DirTaskPackages, DirSubmissions:
		return true
	}
	return false
}

// FromMultipart opens a form file. The caller closes the returned file.
func FromMultipart(fh *multipart.FileHeader) (*Upload, multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	return &Upload{Name: fh.Filename, Size: fh.Size, Reader: f}, f, nil
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Ext returns the lower-cased extension of name, or "" when it is unusable.
func Ext(name string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// GenerateName builds "<prefix>-<unixmillis>-<random><ext>".
func GenerateName(prefix, ext string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s%s", prefix, time.Now().UnixMilli(), random, ext)
}

// keyFor strips the public prefix from a stored path and rejects anything
// that would leave the upload root.
func keyFor(urlPrefix, storedPath string) (string, error) {
	if !strings.HasPrefix(storedPath, urlPrefix+"/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, storedPath)
	}
	key := strings.TrimPrefix(storedPath, urlPrefix+"/")
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, storedPath)
	}
	dir, file := path.Split(clean)
	if !validDir(strings.TrimSuffix(dir, "/")) || file == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, storedPath)
	}
	return clean, nil
}

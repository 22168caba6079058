package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"challengetracker/models"
)

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveSameNameNeverOverwrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, DirSubmissions, "abgabe", "foto.JPG", strings.NewReader("one"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Save(ctx, DirSubmissions, "abgabe", "foto.JPG", strings.NewReader("two"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Path == second.Path {
		t.Fatalf("identical stored paths %q", first.Path)
	}
	if !strings.HasPrefix(first.Path, "/uploads/abgaben/abgabe-") || !strings.HasSuffix(first.Path, ".jpg") {
		t.Fatalf("unexpected path layout %q", first.Path)
	}

	for path, want := range map[string]string{first.Path: "one", second.Path: "two"} {
		b, err := os.ReadFile(filepath.Join(s.Root(), strings.TrimPrefix(path, "/uploads/")))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != want {
			t.Fatalf("%s contains %q, want %q", path, b, want)
		}
	}
}

func TestSaveConcurrentUploadsDistinct(t *testing.T) {
	s := newStore(t)
	var mu sync.Mutex
	var wg sync.WaitGroup
	paths := map[string]bool{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Save(context.Background(), DirCategories, "icon", "a.png", strings.NewReader("x"))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			paths[st.Path] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(paths) != 20 {
		t.Fatalf("expected 20 distinct files, got %d", len(paths))
	}
}

func TestSaveRejectsUnknownDir(t *testing.T) {
	s := newStore(t)
	_, err := s.Save(context.Background(), "../etc", "x", "a.txt", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidDir) {
		t.Fatalf("expected ErrInvalidDir, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	st, err := s.Save(ctx, DirTaskPackages, "paket", "bild.png", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, st.Path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), strings.TrimPrefix(st.Path, "/uploads/"))); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	// deleting twice is fine
	if err := s.Delete(ctx, st.Path); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteRejectsEscapingPaths(t *testing.T) {
	s := newStore(t)
	for _, p := range []string{
		"/uploads/../secret.txt",
		"/uploads/abgaben/../../x",
		"/other/abgaben/a.png",
		"/uploads/unknown/a.png",
		"/uploads/abgaben/",
	} {
		if err := s.Delete(context.Background(), p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("%q: expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestExt(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a.PNG", ".png"},
		{"archive.tar.gz", ".gz"},
		{"noext", ""},
		{"evil.p/hp", ""},
		{"x.verylongextension", ""},
	}
	for _, tc := range cases {
		if got := Ext(tc.in); got != tc.want {
			t.Fatalf("Ext(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSniffAndClassify(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	mime, r, err := Sniff(strings.NewReader(png))
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/png" {
		t.Fatalf("mime = %q", mime)
	}
	b, _ := io.ReadAll(r)
	if string(b) != png {
		t.Fatal("sniffed bytes not replayed")
	}

	mime, _, err = Sniff(strings.NewReader("%PDF-1.4\n%rest"))
	if err != nil {
		t.Fatal(err)
	}
	if Classify(mime) != models.MediaDocument {
		t.Fatalf("pdf classified as %s", Classify(mime))
	}

	cases := []struct {
		mime string
		want models.MediaKind
	}{
		{"video/mp4", models.MediaVideo},
		{"audio/mpeg", models.MediaAudio},
		{"text/plain; charset=utf-8", models.MediaDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", models.MediaDocument},
		{"application/zip", models.MediaOther},
	}
	for _, tc := range cases {
		if got := Classify(tc.mime); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.mime, got, tc.want)
		}
	}
	if IsImage("application/pdf") {
		t.Fatal("pdf is not an image")
	}
}

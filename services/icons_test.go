package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"challengetracker/models"
	"challengetracker/storage"
)

func exists(t *testing.T, s *storage.LocalStore, stored string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(s.Root(), strings.TrimPrefix(stored, "/uploads/")))
	return err == nil
}

func TestApplyIconKeepIgnoresUpload(t *testing.T) {
	f := newFixture(t)
	var written string
	got, err := ApplyIcon(context.Background(), f.db, f.files, storage.DirCategories, "🔧",
		IconChange{Action: IconKeep, Upload: pngUpload("neu.png")},
		func(icon string) error {
			written = icon
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if got != "🔧" || written != "🔧" {
		t.Fatalf("keep changed icon to %q/%q", got, written)
	}
	if files := storedFiles(t, f.files, storage.DirCategories); len(files) != 0 {
		t.Fatalf("keep stored a file: %v", files)
	}
}

func TestApplyIconReplaceRemovesOldAfterWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, err := ApplyIcon(ctx, f.db, f.files, storage.DirCategories, "", NewIcon("", pngUpload("alt.png")),
		func(string) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if !exists(t, f.files, old) {
		t.Fatalf("first icon %q not stored", old)
	}

	next, err := ApplyIcon(ctx, f.db, f.files, storage.DirCategories, old,
		IconChange{Action: IconReplace, Upload: pngUpload("neu.png")},
		func(icon string) error {
			if !exists(t, f.files, old) {
				t.Fatal("old icon removed before the row was written")
			}
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if next == old || !exists(t, f.files, next) {
		t.Fatalf("new icon %q not stored", next)
	}
	if exists(t, f.files, old) {
		t.Fatal("old icon file still present")
	}
}

func TestApplyIconFailedWriteKeepsOldAndDropsNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, _ := ApplyIcon(ctx, f.db, f.files, storage.DirTaskPackages, "", NewIcon("", pngUpload("alt.png")),
		func(string) error { return nil })

	boom := errors.New("write failed")
	got, err := ApplyIcon(ctx, f.db, f.files, storage.DirTaskPackages, old,
		IconChange{Action: IconReplace, Upload: pngUpload("neu.png")},
		func(string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if got != old || !exists(t, f.files, old) {
		t.Fatal("old icon must survive a failed write")
	}
	if files := storedFiles(t, f.files, storage.DirTaskPackages); len(files) != 1 {
		t.Fatalf("unreferenced file left behind: %v", files)
	}
}

func TestApplyIconDeleteAndText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, _ := ApplyIcon(ctx, f.db, f.files, storage.DirCategories, "", NewIcon("", pngUpload("alt.png")),
		func(string) error { return nil })

	got, err := ApplyIcon(ctx, f.db, f.files, storage.DirCategories, old, IconChange{Action: IconDelete},
		func(string) error { return nil })
	if err != nil || got != "" {
		t.Fatalf("delete: %q %v", got, err)
	}
	if exists(t, f.files, old) {
		t.Fatal("deleted icon file still present")
	}

	got, err = ApplyIcon(ctx, f.db, f.files, storage.DirCategories, "🚀", IconChange{Action: IconReplace, Text: " 🧪 "},
		func(string) error { return nil })
	if err != nil || got != "🧪" {
		t.Fatalf("text replace: %q %v", got, err)
	}

	_, err = ApplyIcon(ctx, f.db, f.files, storage.DirCategories, "🚀", IconChange{Action: IconReplace},
		func(string) error { return nil })
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("replace without value: %v", err)
	}

	_, err = ApplyIcon(ctx, f.db, f.files, storage.DirCategories, "", IconChange{
		Action: IconReplace,
		Upload: &storage.Upload{Name: "doc.pdf", Reader: strings.NewReader("%PDF-1.4\n")},
	}, func(string) error { return nil })
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("non-image icon accepted: %v", err)
	}
	if files := storedFiles(t, f.files, storage.DirCategories); len(files) != 0 {
		t.Fatalf("files left: %v", files)
	}
}

func TestParseIconAction(t *testing.T) {
	cases := []struct {
		in   string
		want IconAction
	}{
		{"", IconKeep},
		{"REPLACE", IconReplace},
		{"delete", IconDelete},
		{"bogus", IconKeep},
	}
	for _, tc := range cases {
		if got := ParseIconAction(tc.in); got != tc.want {
			t.Fatalf("ParseIconAction(%q) = %q", tc.in, got)
		}
	}
}

func TestCategoryIconLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat, err := CreateCategory(ctx, f.db, f.files, CategoryInput{Title: "Kunst"}, NewIcon("", pngUpload("kunst.png")))
	if err != nil {
		t.Fatal(err)
	}
	if !models.IconIsFile(cat.Icon) || !exists(t, f.files, cat.Icon) {
		t.Fatalf("icon not stored: %q", cat.Icon)
	}

	if _, err := CreateCategory(ctx, f.db, f.files, CategoryInput{Title: "Kunst"}, NewIcon("🎨", nil)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate title: %v", err)
	}

	icon := cat.Icon
	if err := DeleteCategory(ctx, f.db, f.files, cat.ID); err != nil {
		t.Fatal(err)
	}
	if exists(t, f.files, icon) {
		t.Fatal("icon file outlived its category")
	}

	// the fixture category still has task package 5
	if err := DeleteCategory(ctx, f.db, f.files, f.pkg.CategoryID); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
}

func TestDeleteTaskPackageInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	createOne(t, f, 10)
	if err := DeleteTaskPackage(ctx, f.db, f.files, f.pkg.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}

	end := f.pkg.CreatedAt
	start := end.AddDate(0, 0, 1)
	_, err := CreateTaskPackage(ctx, f.db, f.files, TaskPackageInput{Title: "X", CategoryID: f.pkg.CategoryID, StartDate: &start, EndDate: &end}, IconChange{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("end before start accepted: %v", err)
	}
	_, err = CreateTaskPackage(ctx, f.db, f.files, TaskPackageInput{Title: "X", CategoryID: 999}, IconChange{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown category accepted: %v", err)
	}
}

func TestPackageIconSurvivesWhileChallengesShowIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pkg, err := UpdateTaskPackage(ctx, f.db, f.files, f.pkg.ID,
		TaskPackageInput{Title: f.pkg.Title, CategoryID: f.pkg.CategoryID},
		IconChange{Action: IconReplace, Upload: pngUpload("a.png")})
	if err != nil {
		t.Fatal(err)
	}
	first := pkg.Icon
	ch := createOne(t, f, 10)
	if ch.Icon != first {
		t.Fatalf("challenge icon = %q, want %q", ch.Icon, first)
	}

	pkg, err = UpdateTaskPackage(ctx, f.db, f.files, f.pkg.ID,
		TaskPackageInput{Title: f.pkg.Title, CategoryID: f.pkg.CategoryID},
		IconChange{Action: IconReplace, Upload: pngUpload("b.png")})
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Icon == first || !exists(t, f.files, pkg.Icon) {
		t.Fatalf("replacement not stored: %q", pkg.Icon)
	}
	if !exists(t, f.files, first) {
		t.Fatal("icon removed while a challenge still shows it")
	}

	if _, err := UpdateTaskPackage(ctx, f.db, f.files, f.pkg.ID,
		TaskPackageInput{Title: f.pkg.Title, CategoryID: f.pkg.CategoryID},
		IconChange{Action: IconDelete}); err != nil {
		t.Fatal(err)
	}
	if !exists(t, f.files, first) {
		t.Fatal("icon removed by delete while a challenge still shows it")
	}

	// the last challenge showing it takes the file along
	if err := DeleteChallenge(ctx, f.db, f.files, ch.ID); err != nil {
		t.Fatal(err)
	}
	if exists(t, f.files, first) {
		t.Fatal("orphaned icon left behind")
	}
}

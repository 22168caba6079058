package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"challengetracker/models"
	"challengetracker/storage"
	"challengetracker/testutil/testdb"

	"gorm.io/gorm"
)

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01"

type fixture struct {
	db      *gorm.DB
	files   *storage.LocalStore
	pkg     models.TaskPackage
	teacher models.User
	// students 10, 11, 12 and 13
	students map[uint]*models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureDB(t, testdb.Open(t))
}

func newFixtureDB(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	files, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{db: db, files: files, students: map[uint]*models.User{}}
	year := models.SchoolYear{Name: "2024/25", StartYear: 2024, EndYear: 2025, Active: true}
	mustCreate(t, db, &year)

	cat := models.Category{Title: "Technik", Icon: "🔧"}
	mustCreate(t, db, &cat)
	f.pkg = models.TaskPackage{ID: 5, Title: "Brücke bauen", Description: "Eine Brücke aus Papier", CategoryID: cat.ID, Icon: "🌉"}
	mustCreate(t, db, &f.pkg)

	f.teacher = models.User{ID: 2, Username: "lehrer", FirstName: "Lena", RoleID: models.RoleTeacher}
	mustCreate(t, db, &f.teacher)
	for _, id := range []uint{10, 11, 12, 13} {
		u := &models.User{ID: id, Username: "schueler" + string(rune('a'+id-10)), RoleID: models.RoleStudent, SchoolYearID: &year.ID}
		mustCreate(t, db, u)
		f.students[id] = u
	}
	return f
}

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func team(name string, ids ...uint) TeamInput {
	in := TeamInput{Name: name}
	for _, id := range ids {
		in.Members = append(in.Members, MemberRef{ID: FlexibleID(id)})
	}
	return in
}

// storedFiles lists the files below one upload directory.
func storedFiles(t *testing.T, s *storage.LocalStore, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(s.Root(), dir))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func pngUpload(name string) *storage.Upload {
	return &storage.Upload{Name: name, Reader: strings.NewReader(pngHeader)}
}

package services

import (
	"context"
	"errors"
	"testing"

	"challengetracker/directory"
	"challengetracker/models"

	"golang.org/x/crypto/bcrypt"
)

type fakeDirectory struct {
	password string
	entry    directory.Entry
	calls    int
}

func (d *fakeDirectory) Authenticate(ctx context.Context, username, password string) (*directory.Entry, error) {
	d.calls++
	if password != d.password {
		return nil, directory.ErrInvalidCredentials
	}
	e := d.entry
	e.Username = username
	return &e, nil
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("geheim123"), bcrypt.MinCost)
	admin := models.User{Username: "admin", PasswordHash: string(hash), RoleID: models.RoleAdmin}
	mustCreate(t, f.db, &admin)

	dir := &fakeDirectory{password: "ldap-pass", entry: directory.Entry{FirstName: "Anna", Email: "anna@schule.de"}}

	if u, err := Authenticate(ctx, f.db, dir, " Admin ", "geheim123"); err != nil || u.ID != admin.ID {
		t.Fatalf("local login: %v %v", u, err)
	}
	if dir.calls != 0 {
		t.Fatal("local accounts must not hit the directory")
	}
	if _, err := Authenticate(ctx, f.db, dir, "admin", "falsch"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong local password: %v", err)
	}

	u, err := Authenticate(ctx, f.db, dir, "schuelera", "ldap-pass")
	if err != nil {
		t.Fatal(err)
	}
	if u.FirstName != "Anna" || u.Email != "anna@schule.de" {
		t.Fatalf("directory data not synced: %#v", u)
	}
	if _, err := Authenticate(ctx, f.db, dir, "schuelera", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong directory password: %v", err)
	}
	if _, err := Authenticate(ctx, f.db, dir, "unbekannt", "ldap-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown local user: %v", err)
	}
	if _, err := Authenticate(ctx, f.db, nil, "schuelera", "ldap-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("no directory configured: %v", err)
	}
}

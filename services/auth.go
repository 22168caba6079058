package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"challengetracker/directory"
	"challengetracker/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticate checks username and password. Accounts with a local password
// are verified against its bcrypt hash, all others against the directory
// when one is configured. The account must exist locally either way.
func Authenticate(ctx context.Context, db *gorm.DB, dir directory.Authenticator, username, password string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	db = db.WithContext(ctx)

	var u models.User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if u.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidCredentials
		}
		return &u, nil
	}

	if dir == nil {
		return nil, ErrInvalidCredentials
	}
	entry, err := dir.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) || errors.Is(err, directory.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("directory: %w", err)
	}

	if syncFromDirectory(&u, entry) {
		if err := db.Model(&u).Select("FirstName", "LastName", "Email").Updates(&u).Error; err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// syncFromDirectory fills empty name and mail fields from the directory.
func syncFromDirectory(u *models.User, e *directory.Entry) bool {
	changed := false
	if u.FirstName == "" && e.FirstName != "" {
		u.FirstName, changed = e.FirstName, true
	}
	if u.LastName == "" && e.LastName != "" {
		u.LastName, changed = e.LastName, true
	}
	if u.Email == "" && e.Email != "" {
		u.Email, changed = e.Email, true
	}
	return changed
}

// DemoUser returns the first account with the given role for the demo
// login.
func DemoUser(ctx context.Context, db *gorm.DB, role models.Role) (*models.User, error) {
	var u models.User
	if err := db.WithContext(ctx).Where("role_id = ?", role).Order("id").First(&u).Error; err != nil {
		return nil, notFound(err, role.String())
	}
	return &u, nil
}

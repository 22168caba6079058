package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"challengetracker/metrics"
	"challengetracker/models"
	"challengetracker/storage"

	"gorm.io/gorm"
)

type IconAction string

const (
	IconKeep    IconAction = "keep"
	IconReplace IconAction = "replace"
	IconDelete  IconAction = "delete"
)

// ParseIconAction defaults to keep for anything unknown.
func ParseIconAction(s string) IconAction {
	switch IconAction(strings.ToLower(strings.TrimSpace(s))) {
	case IconReplace:
		return IconReplace
	case IconDelete:
		return IconDelete
	}
	return IconKeep
}

// IconChange describes what an edit form wants to do with an icon. Upload
// wins over Text when both are set.
type IconChange struct {
	Action IconAction
	Text   string
	Upload *storage.Upload
}

// NewIcon is the change for a freshly created row: any upload or text
// becomes the icon.
func NewIcon(text string, upload *storage.Upload) IconChange {
	if upload != nil || strings.TrimSpace(text) != "" {
		return IconChange{Action: IconReplace, Text: text, Upload: upload}
	}
	return IconChange{Action: IconKeep}
}

// ApplyIcon resolves change against the current icon value and calls write
// with the value to persist. A newly stored file is removed again when
// write fails; the previously referenced file is only removed after write
// succeeded and no row refers to it any more. It returns the icon value now
// in effect.
func ApplyIcon(ctx context.Context, db *gorm.DB, files storage.Store, dir, current string, change IconChange, write func(icon string) error) (string, error) {
	switch change.Action {
	case IconDelete:
		if err := write(""); err != nil {
			return current, err
		}
		return "", releaseIcon(ctx, db, files, current, "")

	case IconReplace:
		next := strings.TrimSpace(change.Text)
		stored := false
		if change.Upload != nil {
			path, err := storeIcon(ctx, files, dir, change.Upload)
			if err != nil {
				return current, err
			}
			next, stored = path, true
		}
		if next == "" {
			return current, invalid("Kein neues Icon angegeben")
		}
		if len(next) > 500 {
			return current, invalid("Icon ist zu lang")
		}

		if err := write(next); err != nil {
			if stored {
				_ = files.Delete(ctx, next)
			}
			return current, err
		}
		return next, releaseIcon(ctx, db, files, current, next)
	}

	if err := write(current); err != nil {
		return current, err
	}
	return current, nil
}

func storeIcon(ctx context.Context, files storage.Store, dir string, up *storage.Upload) (string, error) {
	mime, r, err := storage.Sniff(up.Reader)
	if err != nil {
		return "", fmt.Errorf("read icon: %w", err)
	}
	if !storage.IsImage(mime) {
		return "", invalid("Das Icon muss ein Bild sein")
	}
	st, err := files.Save(ctx, dir, iconPrefix(dir), up.Name, r)
	if err != nil {
		return "", fmt.Errorf("store icon: %w", err)
	}
	metrics.ObserveUpload(dir, st.Size)
	return st.Path, nil
}

// releaseIcon removes the file behind old unless a category, task package
// or challenge still shows it. Challenges keep a copy of their package icon,
// so a replaced package icon stays on disk while they exist. Emoji and
// external URLs are not stored paths and are left alone.
func releaseIcon(ctx context.Context, db *gorm.DB, files storage.Store, old, next string) error {
	if old == "" || old == next {
		return nil
	}
	used, err := iconReferenced(db.WithContext(ctx), old)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCleanup, err)
	}
	if used {
		return nil
	}
	err = files.Delete(ctx, old)
	if err == nil || errors.Is(err, storage.ErrInvalidPath) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCleanup, err)
}

func iconReferenced(db *gorm.DB, icon string) (bool, error) {
	for _, model := range []interface{}{&models.Challenge{}, &models.TaskPackage{}, &models.Category{}} {
		var n int64
		if err := db.Model(model).Where("icon = ?", icon).Count(&n).Error; err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func iconPrefix(dir string) string {
	if dir == storage.DirCategories {
		return "category"
	}
	return "paket"
}

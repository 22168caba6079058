package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"challengetracker/metrics"
	"challengetracker/models"
	"challengetracker/storage"

	"gorm.io/gorm"
)

type SubmissionInput struct {
	Description string                  `json:"beschreibung" validate:"max=20000"`
	Status      models.SubmissionStatus `json:"status"`
}

// SaveSubmission upserts the team's submission for a challenge. A submitted
// submission is locked; only staff can move it back to a draft. Submitting
// completes the challenge, the first draft puts an open challenge in
// progress.
func SaveSubmission(ctx context.Context, db *gorm.DB, principal *models.User, challengeID uint, in SubmissionInput) (*models.ChallengeSubmission, error) {
	if in.Status == "" {
		in.Status = models.SubmissionDraft
	}
	if !in.Status.Valid() {
		return nil, invalid("Unbekannter Abgabestatus %q", in.Status)
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var sub *models.ChallengeSubmission
	submitted := false
	err := retryOnDuplicate(func() error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ch, err := loadForMember(tx, principal, challengeID)
			if err != nil {
				return err
			}
			s, created, err := findOrCreateSubmission(tx, ch, principal, in)
			if err != nil {
				return err
			}

			wasSubmitted := s.Status == models.SubmissionSubmitted
			if !created {
				if wasSubmitted && !(principal.IsStaff() && in.Status == models.SubmissionDraft) {
					return ErrLocked
				}
				s.Description = in.Description
				s.Status = in.Status
				if in.Status == models.SubmissionSubmitted {
					now := time.Now()
					s.SubmittedAt = &now
				} else {
					s.SubmittedAt = nil
				}
				if err := tx.Model(s).Select("Description", "Status", "SubmittedAt").Updates(s).Error; err != nil {
					return err
				}
			}

			submitted = in.Status == models.SubmissionSubmitted && (created || !wasSubmitted)
			if err := advanceChallenge(tx, ch, s.Status); err != nil {
				return err
			}
			sub = s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if submitted {
		metrics.SubmissionsSubmitted.Inc()
	}
	return sub, nil
}

// ReopenSubmission moves a submitted submission back to a draft. Staff only.
func ReopenSubmission(ctx context.Context, db *gorm.DB, principal *models.User, challengeID uint) (*models.ChallengeSubmission, error) {
	if principal == nil || !principal.IsStaff() {
		return nil, ErrForbidden
	}

	var sub models.ChallengeSubmission
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch models.Challenge
		if err := tx.First(&ch, challengeID).Error; err != nil {
			return notFound(err, "challenge")
		}
		if err := tx.Where("challenge_id = ? AND team_id = ?", ch.ID, ch.TeamID).First(&sub).Error; err != nil {
			return notFound(err, "submission")
		}
		sub.Status = models.SubmissionDraft
		sub.SubmittedAt = nil
		if err := tx.Model(&sub).Select("Status", "SubmittedAt").Updates(&sub).Error; err != nil {
			return err
		}
		return advanceChallenge(tx, &ch, sub.Status)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UploadSubmissionMedia stores one file for the team's submission and
// records it. The file is removed again when the row cannot be written.
func UploadSubmissionMedia(ctx context.Context, db *gorm.DB, files storage.Store, principal *models.User, challengeID uint, up storage.Upload) (*models.SubmissionMedia, error) {
	name := strings.TrimSpace(up.Name)
	if name == "" || up.Reader == nil {
		return nil, invalid("Es wurde keine Datei hochgeladen")
	}
	name = keepTail(name, 255)

	// Reject early so nothing is stored for a locked submission.
	ch, err := loadForMember(db.WithContext(ctx), principal, challengeID)
	if err != nil {
		return nil, err
	}
	var existing models.ChallengeSubmission
	err = db.WithContext(ctx).Where("challenge_id = ? AND team_id = ?", ch.ID, ch.TeamID).First(&existing).Error
	switch {
	case err == nil && existing.Locked():
		return nil, ErrLocked
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	mime, r, err := storage.Sniff(up.Reader)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	st, err := files.Save(ctx, storage.DirSubmissions, "abgabe", name, r)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if st.Size == 0 {
		_ = files.Delete(ctx, st.Path)
		return nil, invalid("Die Datei ist leer")
	}

	media := models.SubmissionMedia{
		OriginalName: name,
		Path:         st.Path,
		Kind:         storage.Classify(mime),
		MimeType:     mime,
		Size:         st.Size,
	}
	err = retryOnDuplicate(func() error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ch, err := loadForMember(tx, principal, challengeID)
			if err != nil {
				return err
			}
			s, _, err := findOrCreateSubmission(tx, ch, principal, SubmissionInput{Status: models.SubmissionDraft})
			if err != nil {
				return err
			}
			if s.Locked() {
				return ErrLocked
			}
			media.ID = 0
			media.SubmissionID = s.ID
			if err := tx.Create(&media).Error; err != nil {
				return err
			}
			return advanceChallenge(tx, ch, s.Status)
		})
	})
	if err != nil {
		_ = files.Delete(ctx, st.Path)
		return nil, err
	}

	metrics.ObserveUpload(storage.DirSubmissions, st.Size)
	return &media, nil
}

// DeleteSubmissionMedia removes a media row and then its file.
func DeleteSubmissionMedia(ctx context.Context, db *gorm.DB, files storage.Store, principal *models.User, mediaID uint) error {
	var media models.SubmissionMedia
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&media, mediaID).Error; err != nil {
			return notFound(err, "media")
		}
		var sub models.ChallengeSubmission
		if err := tx.First(&sub, media.SubmissionID).Error; err != nil {
			return notFound(err, "submission")
		}
		if _, err := loadForMember(tx, principal, sub.ChallengeID); err != nil {
			return err
		}
		if sub.Locked() {
			return ErrLocked
		}
		return tx.Delete(&media).Error
	})
	if err != nil {
		return err
	}
	return removeFiles(ctx, files, []string{media.Path})
}

// loadForMember loads the challenge with its team members and checks that
// principal may work on it.
func loadForMember(tx *gorm.DB, principal *models.User, challengeID uint) (*models.Challenge, error) {
	var ch models.Challenge
	if err := tx.Preload("Team.Members").First(&ch, challengeID).Error; err != nil {
		return nil, notFound(err, "challenge")
	}
	if !CanAccess(principal, &ch) {
		return nil, ErrForbidden
	}
	return &ch, nil
}

func findOrCreateSubmission(tx *gorm.DB, ch *models.Challenge, principal *models.User, in SubmissionInput) (*models.ChallengeSubmission, bool, error) {
	var sub models.ChallengeSubmission
	err := tx.Where("challenge_id = ? AND team_id = ?", ch.ID, ch.TeamID).First(&sub).Error
	if err == nil {
		return &sub, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	sub = models.ChallengeSubmission{
		ChallengeID: ch.ID,
		TeamID:      ch.TeamID,
		UserID:      principal.ID,
		Description: in.Description,
		Status:      in.Status,
	}
	if in.Status == models.SubmissionSubmitted {
		now := time.Now()
		sub.SubmittedAt = &now
	}
	if err := tx.Create(&sub).Error; err != nil {
		return nil, false, err
	}
	return &sub, true, nil
}

// advanceChallenge keeps the challenge status in line with its submission.
func advanceChallenge(tx *gorm.DB, ch *models.Challenge, status models.SubmissionStatus) error {
	next := ch.Status
	switch {
	case status == models.SubmissionSubmitted && ch.Status != models.ChallengeGraded:
		next = models.ChallengeCompleted
	case status == models.SubmissionDraft && ch.Status == models.ChallengeOpen:
		next = models.ChallengeInProgress
	case status == models.SubmissionDraft && ch.Status == models.ChallengeCompleted:
		next = models.ChallengeInProgress
	}
	if next == ch.Status {
		return nil
	}
	ch.Status = next
	return tx.Model(&models.Challenge{}).Where("id = ?", ch.ID).Update("status", next).Error
}

// retryOnDuplicate runs fn a second time when a concurrent request created
// the same submission first.
func retryOnDuplicate(fn func() error) error {
	err := fn()
	if err != nil && isDuplicate(err) {
		err = fn()
	}
	return err
}

// keepTail shortens s to at most max bytes from its end, starting at a
// character boundary so the extension survives and the result stays valid
// UTF-8.
func keepTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

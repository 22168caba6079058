package models

import (
	"time"
)

type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "entwurf"
	SubmissionSubmitted SubmissionStatus = "eingereicht"
)

func (s SubmissionStatus) Valid() bool {
	return s == SubmissionDraft || s == SubmissionSubmitted
}

// ChallengeSubmission ("Abgabe") is the team's deliverable for a challenge,
// one row per (challenge, team).
type ChallengeSubmission struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ChallengeID uint              `gorm:"not null;uniqueIndex:idx_submissions_challenge_team" json:"challenge_id"`
	TeamID      uint              `gorm:"not null;uniqueIndex:idx_submissions_challenge_team;index" json:"team_id"`
	Team        *Team             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	UserID      uint              `gorm:"not null;index" json:"user_id"`
	User        *User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"user,omitempty"`
	Description string            `gorm:"type:text" json:"beschreibung"`
	Status      SubmissionStatus  `gorm:"not null;size:20;default:entwurf" json:"status"`
	SubmittedAt *time.Time        `json:"eingereicht_am"`
	Media       []SubmissionMedia `gorm:"foreignKey:SubmissionID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"medien,omitempty"`
}

func (ChallengeSubmission) TableName() string {
	return "challenge_abgaben"
}

func (s *ChallengeSubmission) Locked() bool {
	return s.Status == SubmissionSubmitted
}

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

type SubmissionMedia struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	SubmissionID uint      `gorm:"not null;index" json:"abgabe_id"`
	OriginalName string    `gorm:"not null;size:255" json:"original_name"`
	Path         string    `gorm:"not null;size:500" json:"path"`
	Kind         MediaKind `gorm:"not null;size:20" json:"kind"`
	MimeType     string    `gorm:"size:150" json:"mime_type"`
	Size         int64     `json:"size"`
}

func (SubmissionMedia) TableName() string {
	return "abgabe_medien"
}

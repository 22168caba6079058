package models

import (
	"time"
)

type ChallengeStatus string

const (
	ChallengeOpen       ChallengeStatus = "offen"
	ChallengeInProgress ChallengeStatus = "in_arbeit"
	ChallengeCompleted  ChallengeStatus = "abgeschlossen"
	ChallengeGraded     ChallengeStatus = "bewertet"
)

func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeOpen, ChallengeInProgress, ChallengeCompleted, ChallengeGraded:
		return true
	}
	return false
}

var ChallengeStatuses = []ChallengeStatus{ChallengeOpen, ChallengeInProgress, ChallengeCompleted, ChallengeGraded}

// Challenge assigns a task package to exactly one team for a school year.
// Title, description, category and icon are copied from the task package
// when the challenge is created.
type Challenge struct {
	ID            uint                 `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	TaskPackageID uint                 `gorm:"not null;index" json:"aufgabenpaket_id"`
	TaskPackage   *TaskPackage         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"aufgabenpaket,omitempty"`
	TeamID        uint                 `gorm:"not null;uniqueIndex" json:"team_id"`
	Team          *Team                `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"team,omitempty"`
	SchoolYearID  *uint                `gorm:"index" json:"schuljahr_id"`
	SchoolYear    *SchoolYear          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"schuljahr,omitempty"`
	Title         string               `gorm:"not null;size:200" json:"title"`
	Description   string               `gorm:"type:text" json:"description"`
	Category      string               `gorm:"size:200" json:"kategorie"`
	Icon          string               `gorm:"size:500" json:"icon"`
	ExtraNotes    string               `gorm:"type:text" json:"zusatzinfos"`
	DueDate       *time.Time           `json:"abgabedatum"`
	Status        ChallengeStatus      `gorm:"not null;size:20;default:offen;index" json:"status"`
	Score         *int                 `json:"punkte"`
	Feedback      string               `gorm:"type:text" json:"feedback"`
	SubmissionURL string               `gorm:"size:500" json:"abgabe_url"`
	Submission    *ChallengeSubmission `gorm:"foreignKey:ChallengeID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"abgabe,omitempty"`
}

func (c *Challenge) Overdue(now time.Time) bool {
	if c.DueDate == nil {
		return false
	}
	if c.Status == ChallengeCompleted || c.Status == ChallengeGraded {
		return false
	}
	return now.After(*c.DueDate)
}

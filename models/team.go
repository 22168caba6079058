package models

import (
	"time"
)

type MemberRole string

const (
	MemberRoleMember MemberRole = "mitglied"
	MemberRoleLeader MemberRole = "teamleiter"
)

type Team struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Name         string       `gorm:"not null;size:100" json:"name"`
	SchoolYearID *uint        `gorm:"index" json:"schuljahr_id"`
	SchoolYear   *SchoolYear  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"schuljahr,omitempty"`
	Members      []TeamMember `gorm:"foreignKey:TeamID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"mitglieder,omitempty"`
}

// Leader returns the member flagged as team lead, if any.
func (t *Team) Leader() *TeamMember {
	for i := range t.Members {
		if t.Members[i].Role == MemberRoleLeader {
			return &t.Members[i]
		}
	}
	return nil
}

func (t *Team) HasMember(userID uint) bool {
	for _, m := range t.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// TeamMember joins a team and a user; the pair is unique.
type TeamMember struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	TeamID    uint       `gorm:"not null;uniqueIndex:idx_team_members_team_user" json:"team_id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_team_members_team_user;index" json:"user_id"`
	User      *User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"user,omitempty"`
	Role      MemberRole `gorm:"not null;size:20;default:mitglied" json:"rolle"`
}

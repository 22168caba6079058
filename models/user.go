package models

import (
	"strings"
	"time"
)

// Role is the numeric role id stored on every user row.
type Role int

const (
	RoleStudent Role = 1
	RoleTeacher Role = 2
	RoleAdmin   Role = 3
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "schueler"
	case RoleTeacher:
		return "lehrer"
	case RoleAdmin:
		return "admin"
	}
	return "unbekannt"
}

// ParseRole accepts the numeric id or the role name.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "schueler", "student":
		return RoleStudent, true
	case "2", "lehrer", "teacher":
		return RoleTeacher, true
	case "3", "admin":
		return RoleAdmin, true
	}
	return 0, false
}

// User unifies students, teachers and admins. Students additionally carry a
// class and a school year.
type User struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Username     string      `gorm:"uniqueIndex;not null;size:100" json:"username"`
	FirstName    string      `gorm:"size:100" json:"vorname"`
	LastName     string      `gorm:"size:100" json:"nachname"`
	Email        string      `gorm:"size:200" json:"email"`
	RoleID       Role        `gorm:"not null;default:1;index" json:"role_id"`
	ClassID      *uint       `gorm:"index" json:"klasse_id"`
	Class        *Class      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"klasse,omitempty"`
	SchoolYearID *uint       `gorm:"index" json:"schuljahr_id"`
	SchoolYear   *SchoolYear `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"schuljahr,omitempty"`
	PasswordHash string      `gorm:"size:100" json:"-"`
}

func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Username
}

func (u *User) IsStudent() bool {
	return u.RoleID == RoleStudent
}

func (u *User) IsTeacher() bool {
	return u.RoleID == RoleTeacher
}

func (u *User) IsAdmin() bool {
	return u.RoleID == RoleAdmin
}

// IsStaff reports whether the user reviews and manages challenges.
func (u *User) IsStaff() bool {
	return u.IsTeacher() || u.IsAdmin()
}

func (u *User) ClassName() string {
	if u.Class == nil {
		return ""
	}
	return u.Class.Name
}

package models

import (
	"strings"
	"time"
)

type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Title       string    `gorm:"uniqueIndex;not null;size:200" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Icon        string    `gorm:"size:500" json:"icon"`
}

// TaskPackage ("Aufgabenpaket") is the reusable assignment template a
// challenge is created from.
type TaskPackage struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Title       string     `gorm:"not null;size:200" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	CategoryID  uint       `gorm:"not null;index" json:"category_id"`
	Category    *Category  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"category,omitempty"`
	Icon        string     `gorm:"size:500" json:"icon"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

func (TaskPackage) TableName() string {
	return "aufgabenpakete"
}

func (p *TaskPackage) CategoryTitle() string {
	if p.Category == nil {
		return ""
	}
	return p.Category.Title
}

// IconIsFile reports whether an icon value points at an uploaded file rather
// than an emoji or an external URL.
func IconIsFile(icon string) bool {
	return strings.HasPrefix(icon, "/uploads/")
}

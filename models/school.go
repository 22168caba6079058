package models

import (
	"fmt"
	"time"
)

type SchoolYear struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"uniqueIndex;not null;size:20" json:"name"`
	StartYear int       `gorm:"not null" json:"start_year"`
	EndYear   int       `gorm:"not null" json:"end_year"`
	Active    bool      `gorm:"not null;default:false;index" json:"active"`
}

func (SchoolYear) TableName() string {
	return "schuljahre"
}

// SchoolYearLabel formats the conventional name, e.g. 2024 -> "2024/25".
func SchoolYearLabel(startYear int) string {
	return fmt.Sprintf("%d/%02d", startYear, (startYear+1)%100)
}

// CurrentStartYear returns the start year of the school year containing t.
// School years begin on 1 August.
func CurrentStartYear(t time.Time) int {
	if t.Month() < time.August {
		return t.Year() - 1
	}
	return t.Year()
}

// Class ("Klasse").
type Class struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `gorm:"uniqueIndex;not null;size:50" json:"name"`
}

func (Class) TableName() string {
	return "klassen"
}

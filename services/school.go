package services

import (
	"context"
	"fmt"
	"strings"

	"challengetracker/models"

	"gorm.io/gorm"
)

func ListSchoolYears(ctx context.Context, db *gorm.DB) ([]models.SchoolYear, error) {
	var years []models.SchoolYear
	err := db.WithContext(ctx).Order("start_year DESC").Find(&years).Error
	return years, err
}

// ActiveSchoolYear returns the school year flagged active, ErrNotFound when
// none is.
func ActiveSchoolYear(ctx context.Context, db *gorm.DB) (*models.SchoolYear, error) {
	return activeSchoolYear(db.WithContext(ctx))
}

func activeSchoolYear(db *gorm.DB) (*models.SchoolYear, error) {
	var year models.SchoolYear
	if err := db.Where("active = ?", true).Order("start_year DESC").First(&year).Error; err != nil {
		return nil, notFound(err, "active school year")
	}
	return &year, nil
}

// CreateSchoolYear adds the school year starting in startYear.
func CreateSchoolYear(ctx context.Context, db *gorm.DB, startYear int, active bool) (*models.SchoolYear, error) {
	if startYear < 2000 || startYear > 2100 {
		return nil, invalid("Ungültiges Startjahr %d", startYear)
	}
	year := models.SchoolYear{
		Name:      models.SchoolYearLabel(startYear),
		StartYear: startYear,
		EndYear:   startYear + 1,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&year).Error; err != nil {
			return err
		}
		if active {
			return activate(tx, year.ID)
		}
		return nil
	})
	if err != nil {
		return nil, constraint(err, fmt.Sprintf("Schuljahr %s existiert bereits", year.Name), "")
	}
	year.Active = active
	return &year, nil
}

// SetActiveSchoolYear flags id as the only active school year.
func SetActiveSchoolYear(ctx context.Context, db *gorm.DB, id uint) error {
	db = db.WithContext(ctx)
	var year models.SchoolYear
	if err := db.First(&year, id).Error; err != nil {
		return notFound(err, "school year")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return activate(tx, id)
	})
}

func activate(tx *gorm.DB, id uint) error {
	if err := tx.Model(&models.SchoolYear{}).Where("id <> ?", id).Update("active", false).Error; err != nil {
		return err
	}
	return tx.Model(&models.SchoolYear{}).Where("id = ?", id).Update("active", true).Error
}

// DeleteSchoolYear removes a school year that is not active. References from
// teams, challenges and students are cleared by the database.
func DeleteSchoolYear(ctx context.Context, db *gorm.DB, id uint) error {
	db = db.WithContext(ctx)
	var year models.SchoolYear
	if err := db.First(&year, id).Error; err != nil {
		return notFound(err, "school year")
	}
	if year.Active {
		return invalid("Das aktive Schuljahr kann nicht gelöscht werden")
	}
	return db.Delete(&year).Error
}

func ListClasses(ctx context.Context, db *gorm.DB) ([]models.Class, error) {
	var classes []models.Class
	err := db.WithContext(ctx).Order("name").Find(&classes).Error
	return classes, err
}

func CreateClass(ctx context.Context, db *gorm.DB, name string) (*models.Class, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 50 {
		return nil, invalid("Bitte einen Klassennamen mit höchstens 50 Zeichen angeben")
	}
	class := models.Class{Name: name}
	if err := db.WithContext(ctx).Create(&class).Error; err != nil {
		return nil, constraint(err, fmt.Sprintf("Klasse %s existiert bereits", name), "")
	}
	return &class, nil
}

// DeleteClass removes a class; its students keep their accounts without a
// class.
func DeleteClass(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&models.Class{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("class: %w", ErrNotFound)
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"challengetracker/models"
	"challengetracker/storage"

	"gorm.io/gorm"
)

type CategoryInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

func ListCategories(ctx context.Context, db *gorm.DB) ([]models.Category, error) {
	var cats []models.Category
	err := db.WithContext(ctx).Order("title").Find(&cats).Error
	return cats, err
}

func GetCategory(ctx context.Context, db *gorm.DB, id uint) (*models.Category, error) {
	var cat models.Category
	if err := db.WithContext(ctx).First(&cat, id).Error; err != nil {
		return nil, notFound(err, "category")
	}
	return &cat, nil
}

func CreateCategory(ctx context.Context, db *gorm.DB, files storage.Store, in CategoryInput, icon IconChange) (*models.Category, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	cat := models.Category{Title: in.Title, Description: strings.TrimSpace(in.Description)}
	_, err := ApplyIcon(ctx, db, files, storage.DirCategories, "", icon, func(value string) error {
		cat.Icon = value
		return db.Create(&cat).Error
	})
	if err != nil && !isCleanup(err) {
		return nil, constraint(err, fmt.Sprintf("Kategorie %q existiert bereits", in.Title), "")
	}
	return &cat, err
}

func UpdateCategory(ctx context.Context, db *gorm.DB, files storage.Store, id uint, in CategoryInput, icon IconChange) (*models.Category, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	cat, err := GetCategory(ctx, db, id)
	if err != nil {
		return nil, err
	}
	cat.Title = in.Title
	cat.Description = strings.TrimSpace(in.Description)
	_, err = ApplyIcon(ctx, db, files, storage.DirCategories, cat.Icon, icon, func(value string) error {
		cat.Icon = value
		return db.Model(cat).Select("Title", "Description", "Icon").Updates(cat).Error
	})
	if err != nil && !isCleanup(err) {
		return nil, constraint(err, fmt.Sprintf("Kategorie %q existiert bereits", in.Title), "")
	}
	return cat, err
}

// DeleteCategory refuses to delete a category that still has task
// packages. The uploaded icon is removed after the row is gone.
func DeleteCategory(ctx context.Context, db *gorm.DB, files storage.Store, id uint) error {
	db = db.WithContext(ctx)
	cat, err := GetCategory(ctx, db, id)
	if err != nil {
		return err
	}
	if err := db.Delete(cat).Error; err != nil {
		if isForeignKey(err) {
			return fmt.Errorf("category %d: %w", id, ErrInUse)
		}
		return err
	}
	return releaseIcon(ctx, db, files, cat.Icon, "")
}

type TaskPackageInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=10000"`
	CategoryID  uint       `json:"category_id" validate:"required"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

func (in *TaskPackageInput) check() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(*in); err != nil {
		return err
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return invalid("Das Enddatum liegt vor dem Startdatum")
	}
	return nil
}

type TaskPackageFilter struct {
	CategoryID uint
	Search     string
}

func ListTaskPackages(ctx context.Context, db *gorm.DB, f TaskPackageFilter) ([]models.TaskPackage, error) {
	q := db.WithContext(ctx).Preload("Category").Order("title")
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	var pkgs []models.TaskPackage
	err := q.Find(&pkgs).Error
	return pkgs, err
}

func GetTaskPackage(ctx context.Context, db *gorm.DB, id uint) (*models.TaskPackage, error) {
	return loadTaskPackage(db.WithContext(ctx), id)
}

func CreateTaskPackage(ctx context.Context, db *gorm.DB, files storage.Store, in TaskPackageInput, icon IconChange) (*models.TaskPackage, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	pkg := models.TaskPackage{
		Title:       in.Title,
		Description: in.Description,
		CategoryID:  in.CategoryID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	}
	_, err := ApplyIcon(ctx, db, files, storage.DirTaskPackages, "", icon, func(value string) error {
		pkg.Icon = value
		return db.Create(&pkg).Error
	})
	if err != nil && !isCleanup(err) {
		return nil, constraint(err, "", "Die Kategorie existiert nicht")
	}
	return &pkg, err
}

func UpdateTaskPackage(ctx context.Context, db *gorm.DB, files storage.Store, id uint, in TaskPackageInput, icon IconChange) (*models.TaskPackage, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	var pkg models.TaskPackage
	if err := db.First(&pkg, id).Error; err != nil {
		return nil, notFound(err, "aufgabenpaket")
	}
	pkg.Title = in.Title
	pkg.Description = in.Description
	pkg.CategoryID = in.CategoryID
	pkg.Category = nil
	pkg.StartDate = in.StartDate
	pkg.EndDate = in.EndDate
	_, err := ApplyIcon(ctx, db, files, storage.DirTaskPackages, pkg.Icon, icon, func(value string) error {
		pkg.Icon = value
		return db.Model(&pkg).
			Select("Title", "Description", "CategoryID", "StartDate", "EndDate", "Icon").
			Updates(&pkg).Error
	})
	if err != nil && !isCleanup(err) {
		return nil, constraint(err, "", "Die Kategorie existiert nicht")
	}
	return &pkg, err
}

// DeleteTaskPackage refuses to delete a package that challenges still use.
func DeleteTaskPackage(ctx context.Context, db *gorm.DB, files storage.Store, id uint) error {
	db = db.WithContext(ctx)
	var pkg models.TaskPackage
	if err := db.First(&pkg, id).Error; err != nil {
		return notFound(err, "aufgabenpaket")
	}

	var used int64
	if err := db.Model(&models.Challenge{}).Where("task_package_id = ?", id).Count(&used).Error; err != nil {
		return err
	}
	if used > 0 {
		return fmt.Errorf("aufgabenpaket %d used by %d challenges: %w", id, used, ErrInUse)
	}

	if err := db.Delete(&pkg).Error; err != nil {
		if isForeignKey(err) {
			return fmt.Errorf("aufgabenpaket %d: %w", id, ErrInUse)
		}
		return err
	}
	return releaseIcon(ctx, db, files, pkg.Icon, "")
}

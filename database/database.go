package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"challengetracker/config"
	"challengetracker/logging"
	"challengetracker/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured database, migrates the schema and seeds the
// default admin and school year.
func Init(cfg *config.Config, log *logging.Log) error {
	db, err := Open(cfg, log)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := Seed(db, cfg, log); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	DB = db
	return nil
}

// Open connects through the dialect adapter for cfg.DBDialect.
func Open(cfg *config.Config, log *logging.Log) (*gorm.DB, error) {
	d, err := dialectFor(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if log.Debug() {
		level = logger.Info
	}
	db, err := gorm.Open(d.dialector(), &gorm.Config{
		Logger:         newGormLog(log.Base, level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name(), err)
	}
	if err := d.configure(db); err != nil {
		return nil, fmt.Errorf("configure %s: %w", d.name(), err)
	}
	return db, nil
}

// Models lists every table of the logical schema.
func Models() []interface{} {
	return []interface{}{
		&models.SchoolYear{},
		&models.Class{},
		&models.User{},
		&models.Category{},
		&models.TaskPackage{},
		&models.Team{},
		&models.TeamMember{},
		&models.Challenge{},
		&models.ChallengeSubmission{},
		&models.SubmissionMedia{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func Seed(db *gorm.DB, cfg *config.Config, log *logging.Log) error {
	if err := seedSchoolYear(db, log); err != nil {
		return err
	}
	return seedDefaultAdmin(db, cfg, log)
}

func seedSchoolYear(db *gorm.DB, log *logging.Log) error {
	var count int64
	if err := db.Model(&models.SchoolYear{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	start := models.CurrentStartYear(time.Now())
	year := models.SchoolYear{
		Name:      models.SchoolYearLabel(start),
		StartYear: start,
		EndYear:   start + 1,
		Active:    true,
	}
	if err := db.Create(&year).Error; err != nil {
		return err
	}
	log.Base.Info("default school year created", zap.String("name", year.Name))
	return nil
}

func seedDefaultAdmin(db *gorm.DB, cfg *config.Config, log *logging.Log) error {
	var count int64
	db.Model(&models.User{}).Where("role_id = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:     cfg.AdminUsername,
		FirstName:    "Administrator",
		PasswordHash: string(hashedPassword),
		RoleID:       models.RoleAdmin,
	}

	result := db.Create(&admin)
	if result.Error != nil {
		return result.Error
	}

	log.Base.Info("default admin user created", zap.String("username", admin.Username))
	return nil
}

func GetDB() *gorm.DB {
	return DB
}

// Ping checks the underlying connection pool.
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database not initialised")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

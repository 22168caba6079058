package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"challengetracker/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type RosterResult struct {
	Created int
	Updated int
	Skipped int
}

type rosterColumns struct {
	username, firstName, lastName, class, email int
}

func findRosterColumns(header []string) (rosterColumns, bool) {
	cols := rosterColumns{-1, -1, -1, -1, -1}
	for i, cell := range header {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "benutzername", "username", "login":
			cols.username = i
		case "vorname", "first name", "firstname":
			cols.firstName = i
		case "nachname", "last name", "lastname", "name":
			cols.lastName = i
		case "klasse", "class":
			cols.class = i
		case "e-mail", "email", "mail":
			cols.email = i
		}
	}
	return cols, cols.username >= 0
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ImportRoster reads students from an xlsx workbook. Every sheet with a
// username column is imported; classes are created by name and students
// are upserted by username into the active school year.
func ImportRoster(ctx context.Context, db *gorm.DB, r io.Reader) (RosterResult, error) {
	var res RosterResult

	xlsx, err := excelize.OpenReader(r)
	if err != nil {
		return res, invalid("Die Datei ist keine gültige Excel-Datei")
	}
	defer xlsx.Close()

	db = db.WithContext(ctx)
	yearID, err := resolveSchoolYear(db, nil)
	if err != nil {
		return res, err
	}

	found := false
	err = db.Transaction(func(tx *gorm.DB) error {
		classes := map[string]uint{}
		for _, sheet := range xlsx.GetSheetList() {
			rows, err := xlsx.GetRows(sheet)
			if err != nil {
				return fmt.Errorf("read sheet %s: %w", sheet, err)
			}
			if len(rows) < 2 {
				continue
			}
			cols, ok := findRosterColumns(rows[0])
			if !ok {
				continue
			}
			found = true

			for _, row := range rows[1:] {
				username := strings.ToLower(cell(row, cols.username))
				if username == "" || len(username) > 100 {
					res.Skipped++
					continue
				}

				var classID *uint
				if name := cell(row, cols.class); name != "" {
					id, err := classByName(tx, classes, name)
					if err != nil {
						return err
					}
					classID = &id
				}

				created, err := upsertStudent(tx, models.User{
					Username:     username,
					FirstName:    cell(row, cols.firstName),
					LastName:     cell(row, cols.lastName),
					Email:        cell(row, cols.email),
					RoleID:       models.RoleStudent,
					ClassID:      classID,
					SchoolYearID: yearID,
				})
				switch {
				case errors.Is(err, ErrInvalidInput):
					res.Skipped++
				case err != nil:
					return err
				case created:
					res.Created++
				default:
					res.Updated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return RosterResult{}, err
	}
	if !found {
		return res, invalid("Keine Tabelle mit einer Spalte Benutzername gefunden")
	}
	return res, nil
}

func classByName(tx *gorm.DB, cache map[string]uint, name string) (uint, error) {
	if id, ok := cache[name]; ok {
		return id, nil
	}
	class := models.Class{Name: name}
	if err := tx.Where(models.Class{Name: name}).FirstOrCreate(&class).Error; err != nil {
		return 0, fmt.Errorf("class %s: %w", name, err)
	}
	cache[name] = class.ID
	return class.ID, nil
}

// upsertStudent creates the student or refreshes name, mail and class of an
// existing one. Existing staff accounts are never turned into students.
func upsertStudent(tx *gorm.DB, in models.User) (bool, error) {
	var existing models.User
	err := tx.Where("username = ?", in.Username).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, tx.Create(&in).Error
	}
	if err != nil {
		return false, err
	}
	if !existing.IsStudent() {
		return false, invalid("%s ist kein Schülerkonto", in.Username)
	}

	existing.FirstName = in.FirstName
	existing.LastName = in.LastName
	existing.Email = in.Email
	existing.ClassID = in.ClassID
	existing.SchoolYearID = in.SchoolYearID
	return false, tx.Model(&existing).
		Select("FirstName", "LastName", "Email", "ClassID", "SchoolYearID").
		Updates(&existing).Error
}

// Package export renders challenge overviews as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"challengetracker/models"

	"github.com/xuri/excelize/v2"
)

const sheetChallenges = "Challenges"

var challengeHeader = []string{
	"ID", "Team", "Teamleitung", "Mitglieder", "Aufgabenpaket", "Kategorie",
	"Schuljahr", "Status", "Abgabedatum", "Abgabe", "Punkte", "Feedback",
}

// ChallengesWorkbook builds one row per challenge. Team members, school year
// and submission should be preloaded.
func ChallengesWorkbook(challenges []models.Challenge) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetChallenges); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for c, h := range challengeHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellStr(sheetChallenges, cell, h); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}

	for r, ch := range challenges {
		row := challengeRow(&ch)
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheetChallenges, cell, val); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := applyFormatting(f, sheetChallenges, len(challengeHeader)); err != nil {
		return nil, err
	}
	return f, nil
}

func challengeRow(ch *models.Challenge) []interface{} {
	var team, leader string
	var members []string
	if ch.Team != nil {
		team = ch.Team.Name
		for _, m := range ch.Team.Members {
			name := fmt.Sprintf("#%d", m.UserID)
			if m.User != nil {
				name = m.User.DisplayName()
			}
			if m.Role == models.MemberRoleLeader {
				leader = name
			}
			members = append(members, name)
		}
	}

	var year, due, submission string
	if ch.SchoolYear != nil {
		year = ch.SchoolYear.Name
	}
	if ch.DueDate != nil {
		due = ch.DueDate.Format("02.01.2006")
	}
	if ch.Submission != nil {
		submission = string(ch.Submission.Status)
	}
	var score interface{} = ""
	if ch.Score != nil {
		score = *ch.Score
	}

	return []interface{}{
		ch.ID, team, leader, strings.Join(members, ", "), ch.Title, ch.Category,
		year, string(ch.Status), due, submission, score, ch.Feedback,
	}
}

func applyFormatting(f *excelize.File, sheet string, cols int) error {
	last, _ := excelize.ColumnNumberToName(cols)
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", last+"1", style)
	}
	_ = f.AutoFilter(sheet, "A1:"+last+"1", nil)

	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	for c := 0; c < cols; c++ {
		w := 10.0
		for _, row := range rows {
			if c < len(row) {
				if l := float64(len([]rune(row[c]))) * 1.1; l > w {
					w = l
				}
			}
		}
		if w > 60 {
			w = 60
		}
		name, _ := excelize.ColumnNumberToName(c + 1)
		_ = f.SetColWidth(sheet, name, name, w)
	}
	return nil
}

// Filename returns the download name for an export taken at t.
func Filename(t time.Time) string {
	return "challenges_" + t.Format("2006-01-02") + ".xlsx"
}

// Write streams the workbook to w.
func Write(f *excelize.File, w io.Writer) error {
	defer f.Close()
	_, err := f.WriteTo(w)
	return err
}

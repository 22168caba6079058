package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"challengetracker/metrics"
	"challengetracker/models"
	"challengetracker/storage"

	"gorm.io/gorm"
)

// FlexibleID accepts a JSON number or a numeric string.
type FlexibleID uint

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	raw := string(bytes.TrimSpace(b))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return fmt.Errorf("invalid id %s", b)
	}
	*id = FlexibleID(n)
	return nil
}

// MemberRef references a user either as {"id": 10} or as a bare id.
type MemberRef struct {
	ID FlexibleID `json:"id"`
}

func (m *MemberRef) UnmarshalJSON(b []byte) error {
	if t := bytes.TrimSpace(b); len(t) > 0 && t[0] == '{' {
		var obj struct {
			ID FlexibleID `json:"id"`
		}
		if err := json.Unmarshal(t, &obj); err != nil {
			return err
		}
		m.ID = obj.ID
		return nil
	}
	return json.Unmarshal(b, &m.ID)
}

type TeamInput struct {
	Name    string      `json:"name" validate:"required,max=100"`
	Members []MemberRef `json:"mitglieder" validate:"required,min=1"`
}

// MemberIDs returns the referenced user ids in the given order.
func (t TeamInput) MemberIDs() []uint {
	ids := make([]uint, len(t.Members))
	for i, m := range t.Members {
		ids[i] = uint(m.ID)
	}
	return ids
}

// ParseTeams decodes the team descriptor form field, e.g.
// [{"name":"TeamA","mitglieder":[{"id":10},{"id":11}]}].
func ParseTeams(raw string) ([]TeamInput, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalid("Es wurde kein Team angegeben")
	}

	var teams []TeamInput
	if err := json.Unmarshal([]byte(raw), &teams); err != nil {
		return nil, invalid("Teamdaten sind ungültig")
	}
	if len(teams) == 0 {
		return nil, invalid("Es wurde kein Team angegeben")
	}

	for i := range teams {
		teams[i].Name = strings.TrimSpace(teams[i].Name)
		if teams[i].Name == "" {
			return nil, invalid("Team %d hat keinen Namen", i+1)
		}
		if len(teams[i].Members) == 0 {
			return nil, invalid("Team %q hat keine Mitglieder", teams[i].Name)
		}
		seen := make(map[FlexibleID]bool, len(teams[i].Members))
		for _, m := range teams[i].Members {
			if seen[m.ID] {
				return nil, invalid("Team %q enthält ein Mitglied doppelt", teams[i].Name)
			}
			seen[m.ID] = true
		}
	}
	return teams, nil
}

type ChallengeInput struct {
	TaskPackageID uint        `json:"aufgabenpaket_id" validate:"required"`
	SchoolYearID  *uint       `json:"schuljahr_id"`
	ExtraNotes    string      `json:"zusatzinfos" validate:"max=5000"`
	DueDate       *time.Time  `json:"abgabedatum"`
	SubmissionURL string      `json:"abgabe_url" validate:"omitempty,http_url,max=500"`
	Teams         []TeamInput `json:"teams" validate:"required,min=1,dive"`
}

// CreateChallenges creates one team and one challenge per team descriptor.
// The whole batch is written in a single transaction.
func CreateChallenges(ctx context.Context, db *gorm.DB, in ChallengeInput) ([]models.Challenge, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	pkg, err := loadTaskPackage(db, in.TaskPackageID)
	if err != nil {
		return nil, err
	}
	yearID, err := resolveSchoolYear(db, in.SchoolYearID)
	if err != nil {
		return nil, err
	}

	var created []models.Challenge
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, t := range in.Teams {
			team := models.Team{Name: t.Name, SchoolYearID: yearID}
			if err := tx.Create(&team).Error; err != nil {
				return fmt.Errorf("create team %q: %w", t.Name, err)
			}
			if err := insertMembers(tx, team.ID, t.MemberIDs()); err != nil {
				return fmt.Errorf("team %q: %w", t.Name, err)
			}

			ch := models.Challenge{
				TaskPackageID: pkg.ID,
				TeamID:        team.ID,
				SchoolYearID:  yearID,
				ExtraNotes:    strings.TrimSpace(in.ExtraNotes),
				DueDate:       in.DueDate,
				SubmissionURL: in.SubmissionURL,
				Status:        models.ChallengeOpen,
			}
			copyPackage(&ch, pkg)
			if err := tx.Create(&ch).Error; err != nil {
				return fmt.Errorf("create challenge for team %q: %w", t.Name, err)
			}
			created = append(created, ch)
		}
		return nil
	})
	if err != nil {
		metrics.TransactionErrors.WithLabelValues("create_challenges").Inc()
		return nil, constraint(err, "", "Ein ausgewählter Schüler oder das Schuljahr existiert nicht")
	}

	metrics.ChallengesCreated.Add(float64(len(created)))
	return created, nil
}

// UpdateChallenge rewrites the challenge and its team. Only the first team
// descriptor is used; the member list replaces the current one.
func UpdateChallenge(ctx context.Context, db *gorm.DB, id uint, in ChallengeInput) (*models.Challenge, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	var ch models.Challenge
	if err := db.First(&ch, id).Error; err != nil {
		return nil, notFound(err, "challenge")
	}
	pkg, err := loadTaskPackage(db, in.TaskPackageID)
	if err != nil {
		return nil, err
	}
	if in.SchoolYearID != nil {
		ch.SchoolYearID = in.SchoolYearID
	}

	team := in.Teams[0]
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Team{}).Where("id = ?", ch.TeamID).
			Updates(map[string]interface{}{"name": team.Name, "school_year_id": ch.SchoolYearID}).Error; err != nil {
			return fmt.Errorf("rename team: %w", err)
		}
		if err := tx.Where("team_id = ?", ch.TeamID).Delete(&models.TeamMember{}).Error; err != nil {
			return fmt.Errorf("clear members: %w", err)
		}
		if err := insertMembers(tx, ch.TeamID, team.MemberIDs()); err != nil {
			return err
		}

		if ch.TaskPackageID != pkg.ID {
			ch.TaskPackageID = pkg.ID
			copyPackage(&ch, pkg)
		}
		ch.ExtraNotes = strings.TrimSpace(in.ExtraNotes)
		ch.DueDate = in.DueDate
		ch.SubmissionURL = in.SubmissionURL
		return tx.Model(&ch).
			Select("TaskPackageID", "SchoolYearID", "Title", "Description", "Category", "Icon", "ExtraNotes", "DueDate", "SubmissionURL").
			Updates(&ch).Error
	})
	if err != nil {
		metrics.TransactionErrors.WithLabelValues("update_challenge").Inc()
		return nil, constraint(err, "", "Ein ausgewählter Schüler oder das Schuljahr existiert nicht")
	}
	return &ch, nil
}

// DeleteChallenge removes the challenge together with its submission, the
// submission media, its team members and the team. Stored media files and
// an icon copy nothing else shows are removed after the transaction
// committed.
func DeleteChallenge(ctx context.Context, db *gorm.DB, files storage.Store, id uint) error {
	db = db.WithContext(ctx)

	var ch models.Challenge
	if err := db.Preload("Submission.Media").First(&ch, id).Error; err != nil {
		return notFound(err, "challenge")
	}

	var paths []string
	err := db.Transaction(func(tx *gorm.DB) error {
		if ch.Submission != nil {
			for _, m := range ch.Submission.Media {
				paths = append(paths, m.Path)
			}
			if err := tx.Where("submission_id = ?", ch.Submission.ID).Delete(&models.SubmissionMedia{}).Error; err != nil {
				return fmt.Errorf("delete media: %w", err)
			}
		}
		if err := tx.Where("challenge_id = ?", ch.ID).Delete(&models.ChallengeSubmission{}).Error; err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}
		if err := tx.Delete(&models.Challenge{}, ch.ID).Error; err != nil {
			return fmt.Errorf("delete challenge: %w", err)
		}
		if err := tx.Where("team_id = ?", ch.TeamID).Delete(&models.TeamMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if err := tx.Delete(&models.Team{}, ch.TeamID).Error; err != nil {
			return fmt.Errorf("delete team: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.TransactionErrors.WithLabelValues("delete_challenge").Inc()
		return err
	}

	return errors.Join(removeFiles(ctx, files, paths), releaseIcon(ctx, db, files, ch.Icon, ""))
}

type GradeInput struct {
	Status   models.ChallengeStatus `json:"status"`
	Score    *int                   `json:"punkte" validate:"omitempty,gte=0,lte=100"`
	Feedback string                 `json:"feedback" validate:"max=5000"`
}

// GradeChallenge stores the review of a challenge. An empty status means
// "bewertet".
func GradeChallenge(ctx context.Context, db *gorm.DB, id uint, in GradeInput) (*models.Challenge, error) {
	if in.Status == "" {
		in.Status = models.ChallengeGraded
	}
	if !in.Status.Valid() {
		return nil, invalid("Unbekannter Status %q", in.Status)
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	var ch models.Challenge
	if err := db.First(&ch, id).Error; err != nil {
		return nil, notFound(err, "challenge")
	}
	ch.Status = in.Status
	ch.Score = in.Score
	ch.Feedback = strings.TrimSpace(in.Feedback)
	if err := db.Model(&ch).Select("Status", "Score", "Feedback").Updates(&ch).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

type ChallengeFilter struct {
	Status        models.ChallengeStatus
	SchoolYearID  uint
	TaskPackageID uint
	Search        string
	// StudentID restricts the list to challenges of teams the user is in.
	StudentID uint
}

func ListChallenges(ctx context.Context, db *gorm.DB, f ChallengeFilter) ([]models.Challenge, error) {
	db = db.WithContext(ctx)
	q := applyChallengeFilter(db, db.Model(&models.Challenge{}), f).
		Preload("Team.Members", orderByID).
		Preload("Team.Members.User").
		Preload("SchoolYear").
		Preload("Submission").
		Order("created_at DESC, id DESC")

	var out []models.Challenge
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CountByStatus counts the challenges matching f per status.
func CountByStatus(ctx context.Context, db *gorm.DB, f ChallengeFilter) (map[models.ChallengeStatus]int64, error) {
	f.Status = ""
	var rows []struct {
		Status models.ChallengeStatus
		Count  int64
	}
	db = db.WithContext(ctx)
	err := applyChallengeFilter(db, db.Model(&models.Challenge{}), f).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.ChallengeStatus]int64, len(models.ChallengeStatuses))
	for _, s := range models.ChallengeStatuses {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func applyChallengeFilter(db, q *gorm.DB, f ChallengeFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.SchoolYearID != 0 {
		q = q.Where("school_year_id = ?", f.SchoolYearID)
	}
	if f.TaskPackageID != 0 {
		q = q.Where("task_package_id = ?", f.TaskPackageID)
	}
	if f.StudentID != 0 {
		q = q.Where("team_id IN (?)",
			db.Model(&models.TeamMember{}).Select("team_id").Where("user_id = ?", f.StudentID))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		teams := db.Model(&models.Team{}).Select("id").Where("LOWER(name) LIKE ?", like)
		q = q.Where("LOWER(title) LIKE ? OR LOWER(category) LIKE ? OR team_id IN (?)", like, like, teams)
	}
	return q
}

func GetChallenge(ctx context.Context, db *gorm.DB, id uint) (*models.Challenge, error) {
	var ch models.Challenge
	err := db.WithContext(ctx).
		Preload("Team.Members", orderByID).
		Preload("Team.Members.User.Class").
		Preload("TaskPackage.Category").
		Preload("SchoolYear").
		Preload("Submission.User").
		Preload("Submission.Media", orderByID).
		First(&ch, id).Error
	if err != nil {
		return nil, notFound(err, "challenge")
	}
	return &ch, nil
}

// CanAccess reports whether u may see and work on the challenge. The team
// members must be loaded.
func CanAccess(u *models.User, ch *models.Challenge) bool {
	if u == nil {
		return false
	}
	if u.IsStaff() {
		return true
	}
	return ch.Team != nil && ch.Team.HasMember(u.ID)
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func loadTaskPackage(db *gorm.DB, id uint) (*models.TaskPackage, error) {
	var pkg models.TaskPackage
	if err := db.Preload("Category").First(&pkg, id).Error; err != nil {
		return nil, notFound(err, "aufgabenpaket")
	}
	return &pkg, nil
}

// resolveSchoolYear falls back to the active school year when id is nil.
func resolveSchoolYear(db *gorm.DB, id *uint) (*uint, error) {
	if id != nil && *id != 0 {
		return id, nil
	}
	year, err := activeSchoolYear(db)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &year.ID, nil
}

func copyPackage(ch *models.Challenge, pkg *models.TaskPackage) {
	ch.Title = pkg.Title
	ch.Description = pkg.Description
	ch.Category = pkg.CategoryTitle()
	ch.Icon = pkg.Icon
}

// insertMembers adds userIDs to the team; the first one leads the team.
func insertMembers(tx *gorm.DB, teamID uint, userIDs []uint) error {
	members := make([]models.TeamMember, len(userIDs))
	for i, uid := range userIDs {
		role := models.MemberRoleMember
		if i == 0 {
			role = models.MemberRoleLeader
		}
		members[i] = models.TeamMember{TeamID: teamID, UserID: uid, Role: role}
	}
	if err := tx.Create(&members).Error; err != nil {
		return fmt.Errorf("insert members: %w", err)
	}
	return nil
}

// removeFiles deletes stored files that are no longer referenced.
func removeFiles(ctx context.Context, files storage.Store, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := files.Delete(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrCleanup, errors.Join(errs...))
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"strings"

	"challengetracker/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserInput struct {
	Username     string `json:"username" validate:"required,max=100"`
	FirstName    string `json:"vorname" validate:"max=100"`
	LastName     string `json:"nachname" validate:"max=100"`
	Email        string `json:"email" validate:"omitempty,email,max=200"`
	ClassID      *uint  `json:"klasse_id"`
	SchoolYearID *uint  `json:"schuljahr_id"`
	// Password sets a local password; empty keeps the current one.
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
}

func (in *UserInput) normalize() {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	if in.ClassID != nil && *in.ClassID == 0 {
		in.ClassID = nil
	}
	if in.SchoolYearID != nil && *in.SchoolYearID == 0 {
		in.SchoolYearID = nil
	}
}

type UserFilter struct {
	Roles   []models.Role
	ClassID uint
	Search  string
	Limit   int
}

func ListUsers(ctx context.Context, db *gorm.DB, f UserFilter) ([]models.User, error) {
	q := db.WithContext(ctx).Preload("Class").Preload("SchoolYear").Order("last_name, first_name, username")
	if len(f.Roles) > 0 {
		q = q.Where("role_id IN ?", f.Roles)
	}
	if f.ClassID != 0 {
		q = q.Where("class_id = ?", f.ClassID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var users []models.User
	err := q.Find(&users).Error
	return users, err
}

// GetUser loads a user with the given role.
func GetUser(ctx context.Context, db *gorm.DB, role models.Role, id uint) (*models.User, error) {
	var u models.User
	if err := db.WithContext(ctx).Preload("Class").Where("role_id = ?", role).First(&u, id).Error; err != nil {
		return nil, notFound(err, role.String())
	}
	return &u, nil
}

func CreateUser(ctx context.Context, db *gorm.DB, role models.Role, in UserInput) (*models.User, error) {
	if !role.Valid() {
		return nil, invalid("Unbekannte Rolle")
	}
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	u := models.User{
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		RoleID:    role,
	}
	if role == models.RoleStudent {
		u.ClassID = in.ClassID
		year, err := resolveSchoolYear(db, in.SchoolYearID)
		if err != nil {
			return nil, err
		}
		u.SchoolYearID = year
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = string(hash)
	}

	if err := db.Create(&u).Error; err != nil {
		return nil, constraint(err,
			fmt.Sprintf("Benutzername %q ist bereits vergeben", in.Username),
			"Klasse oder Schuljahr existiert nicht")
	}
	return &u, nil
}

func UpdateUser(ctx context.Context, db *gorm.DB, role models.Role, id uint, in UserInput) (*models.User, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	u, err := GetUser(ctx, db, role, id)
	if err != nil {
		return nil, err
	}
	u.Class = nil
	u.Username = in.Username
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	u.Email = in.Email
	fields := []string{"Username", "FirstName", "LastName", "Email"}
	if role == models.RoleStudent {
		u.ClassID = in.ClassID
		u.SchoolYearID = in.SchoolYearID
		fields = append(fields, "ClassID", "SchoolYearID")
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = string(hash)
		fields = append(fields, "PasswordHash")
	}

	if err := db.Model(u).Select(fields).Updates(u).Error; err != nil {
		return nil, constraint(err,
			fmt.Sprintf("Benutzername %q ist bereits vergeben", in.Username),
			"Klasse oder Schuljahr existiert nicht")
	}
	return u, nil
}

// DeleteUser removes an account that is not a member of any team and has
// not uploaded a submission.
func DeleteUser(ctx context.Context, db *gorm.DB, role models.Role, id uint) error {
	db = db.WithContext(ctx)
	u, err := GetUser(ctx, db, role, id)
	if err != nil {
		return err
	}
	if err := db.Delete(u).Error; err != nil {
		if isForeignKey(err) {
			return fmt.Errorf("user %d: %w", id, ErrInUse)
		}
		return err
	}
	return nil
}

package services

import (
	"context"
	"errors"

	"challengetracker/models"

	"gorm.io/gorm"
)

// TeamView is a team together with the challenge it was created for.
type TeamView struct {
	models.Team
	Challenge *models.Challenge
}

func ListTeams(ctx context.Context, db *gorm.DB, schoolYearID uint) ([]TeamView, error) {
	db = db.WithContext(ctx)
	q := db.Preload("Members", orderByID).Preload("Members.User").Preload("SchoolYear").Order("name")
	if schoolYearID != 0 {
		q = q.Where("school_year_id = ?", schoolYearID)
	}
	var teams []models.Team
	if err := q.Find(&teams).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, len(teams))
	for i, t := range teams {
		ids[i] = t.ID
	}
	byTeam := make(map[uint]*models.Challenge, len(teams))
	if len(ids) > 0 {
		var challenges []models.Challenge
		if err := db.Where("team_id IN ?", ids).Find(&challenges).Error; err != nil {
			return nil, err
		}
		for i := range challenges {
			byTeam[challenges[i].TeamID] = &challenges[i]
		}
	}

	out := make([]TeamView, len(teams))
	for i, t := range teams {
		out[i] = TeamView{Team: t, Challenge: byTeam[t.ID]}
	}
	return out, nil
}

func GetTeam(ctx context.Context, db *gorm.DB, id uint) (*TeamView, error) {
	db = db.WithContext(ctx)
	var team models.Team
	err := db.Preload("Members", orderByID).Preload("Members.User.Class").Preload("SchoolYear").First(&team, id).Error
	if err != nil {
		return nil, notFound(err, "team")
	}

	view := &TeamView{Team: team}
	var ch models.Challenge
	err = db.Where("team_id = ?", id).First(&ch).Error
	switch {
	case err == nil:
		view.Challenge = &ch
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return view, nil
}

//go:build testutil
// +build testutil

package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"challengetracker/models"
	"challengetracker/storage"
	"challengetracker/testutil/testdb"
)

func TestPostgresChallengeScenarios(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	h, err := testdb.StartPostgres(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer h.Close()
	f := newFixtureDB(t, h.DB)

	teams, err := ParseTeams(`[{"name":"TeamA","mitglieder":[{"id":10},{"id":11}]}]`)
	if err != nil {
		t.Fatal(err)
	}
	created, err := CreateChallenges(ctx, f.db, ChallengeInput{TaskPackageID: 5, Teams: teams})
	if err != nil {
		t.Fatal(err)
	}
	a := created[0]

	_, err = CreateChallenges(ctx, f.db, ChallengeInput{
		TaskPackageID: 5,
		Teams:         []TeamInput{team("B", 12), team("C", 13, 999)},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected rollback with input error, got %v", err)
	}
	if n := count(t, f.db, &models.Team{}); n != 1 {
		t.Fatalf("teams after rollback = %d", n)
	}

	created, err = CreateChallenges(ctx, f.db, ChallengeInput{TaskPackageID: 5, Teams: []TeamInput{team("B", 12, 13)}})
	if err != nil {
		t.Fatal(err)
	}
	b := created[0]

	if _, err := UploadSubmissionMedia(ctx, f.db, f.files, f.students[10], a.ID, storage.Upload{Name: "a.png", Reader: strings.NewReader(pngHeader)}); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveSubmission(ctx, f.db, f.students[10], a.ID, SubmissionInput{Status: models.SubmissionSubmitted}); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveSubmission(ctx, f.db, f.students[11], a.ID, SubmissionInput{Description: "x"}); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := DeleteChallenge(ctx, f.db, f.files, a.ID); err != nil {
		t.Fatal(err)
	}
	if n := count(t, f.db, &models.TeamMember{}); n != 2 {
		t.Fatalf("memberships after delete = %d", n)
	}
	if _, err := GetChallenge(ctx, f.db, b.ID); err != nil {
		t.Fatalf("challenge B lost: %v", err)
	}
}

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"challengetracker/models"
	"challengetracker/storage"
)

func TestParseTeams(t *testing.T) {
	teams, err := ParseTeams(`[{"name":" TeamA ","mitglieder":[{"id":10},{"id":"11"}]},{"name":"TeamB","mitglieder":[12]}]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(teams) != 2 || teams[0].Name != "TeamA" {
		t.Fatalf("unexpected teams %#v", teams)
	}
	if ids := teams[0].MemberIDs(); len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Fatalf("unexpected member ids %v", ids)
	}
	if ids := teams[1].MemberIDs(); len(ids) != 1 || ids[0] != 12 {
		t.Fatalf("bare ids not accepted: %v", ids)
	}

	for _, raw := range []string{
		``,
		`not json`,
		`[]`,
		`[{"name":"","mitglieder":[{"id":1}]}]`,
		`[{"name":"A","mitglieder":[]}]`,
		`[{"name":"A","mitglieder":[{"id":1},{"id":"1"}]}]`,
		`[{"name":"A","mitglieder":[{"id":"abc"}]}]`,
		`[{"name":"A","mitglieder":[{"id":0}]}]`,
	} {
		if _, err := ParseTeams(raw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParseTeams(%q): expected ErrInvalidInput, got %v", raw, err)
		}
	}
}

func TestCreateChallengesExample(t *testing.T) {
	f := newFixture(t)
	teams, err := ParseTeams(`[{"name":"TeamA","mitglieder":[{"id":10},{"id":11}]}]`)
	if err != nil {
		t.Fatal(err)
	}

	created, err := CreateChallenges(context.Background(), f.db, ChallengeInput{TaskPackageID: 5, Teams: teams})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 challenge, got %d", len(created))
	}

	ch, err := GetChallenge(context.Background(), f.db, created[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if ch.TaskPackageID != 5 || ch.Title != "Brücke bauen" || ch.Category != "Technik" || ch.Icon != "🌉" {
		t.Fatalf("package fields not copied: %#v", ch)
	}
	if ch.Status != models.ChallengeOpen || ch.SchoolYearID == nil {
		t.Fatalf("unexpected status/year %s %v", ch.Status, ch.SchoolYearID)
	}
	if ch.Team == nil || ch.Team.Name != "TeamA" || len(ch.Team.Members) != 2 {
		t.Fatalf("unexpected team %#v", ch.Team)
	}
	roles := map[uint]models.MemberRole{}
	for _, m := range ch.Team.Members {
		roles[m.UserID] = m.Role
	}
	if roles[10] != models.MemberRoleLeader || roles[11] != models.MemberRoleMember {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestCreateChallengesOnePerTeam(t *testing.T) {
	f := newFixture(t)
	in := ChallengeInput{
		TaskPackageID: f.pkg.ID,
		Teams:         []TeamInput{team("A", 10, 11), team("B", 12), team("C", 13, 10)},
	}
	if _, err := CreateChallenges(context.Background(), f.db, in); err != nil {
		t.Fatal(err)
	}
	if n := count(t, f.db, &models.Team{}); n != 3 {
		t.Fatalf("teams = %d", n)
	}
	if n := count(t, f.db, &models.Challenge{}); n != 3 {
		t.Fatalf("challenges = %d", n)
	}
	if n := count(t, f.db, &models.TeamMember{}); n != 5 {
		t.Fatalf("memberships = %d", n)
	}
	var leaders int64
	f.db.Model(&models.TeamMember{}).Where("role = ?", models.MemberRoleLeader).Count(&leaders)
	if leaders != 3 {
		t.Fatalf("leaders = %d", leaders)
	}
}

func TestCreateChallengesRollsBackWholeBatch(t *testing.T) {
	f := newFixture(t)
	in := ChallengeInput{
		TaskPackageID: f.pkg.ID,
		Teams:         []TeamInput{team("A", 10, 11), team("B", 12, 999)},
	}
	_, err := CreateChallenges(context.Background(), f.db, in)
	if err == nil {
		t.Fatal("expected failure for unknown member")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("foreign key failure should be reported as input error, got %v", err)
	}
	for _, m := range []interface{}{&models.Team{}, &models.Challenge{}, &models.TeamMember{}} {
		if n := count(t, f.db, m); n != 0 {
			t.Fatalf("%T left %d rows after rollback", m, n)
		}
	}
}

func TestCreateChallengesUnknownPackage(t *testing.T) {
	f := newFixture(t)
	_, err := CreateChallenges(context.Background(), f.db, ChallengeInput{TaskPackageID: 404, Teams: []TeamInput{team("A", 10)}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := count(t, f.db, &models.Team{}); n != 0 {
		t.Fatalf("teams written: %d", n)
	}
}

func TestUpdateChallengeReplacesMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := CreateChallenges(ctx, f.db, ChallengeInput{TaskPackageID: f.pkg.ID, Teams: []TeamInput{team("A", 10, 11)}})
	if err != nil {
		t.Fatal(err)
	}
	id := created[0].ID

	_, err = UpdateChallenge(ctx, f.db, id, ChallengeInput{
		TaskPackageID: f.pkg.ID,
		ExtraNotes:    "  Bitte Fotos hochladen ",
		Teams:         []TeamInput{team("Neu", 12, 10), team("ignored", 13)},
	})
	if err != nil {
		t.Fatal(err)
	}

	ch, err := GetChallenge(ctx, f.db, id)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Team.Name != "Neu" || ch.ExtraNotes != "Bitte Fotos hochladen" {
		t.Fatalf("unexpected challenge %q %q", ch.Team.Name, ch.ExtraNotes)
	}
	if len(ch.Team.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(ch.Team.Members))
	}
	if l := ch.Team.Leader(); l == nil || l.UserID != 12 {
		t.Fatalf("leader should be 12, got %#v", l)
	}
	if n := count(t, f.db, &models.Team{}); n != 1 {
		t.Fatalf("extra team descriptors must be ignored, teams = %d", n)
	}
}

func TestDeleteChallengeRemovesOnlyItsRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := CreateChallenges(ctx, f.db, ChallengeInput{
		TaskPackageID: f.pkg.ID,
		Teams:         []TeamInput{team("X", 10, 11), team("Y", 12, 13)},
	})
	if err != nil {
		t.Fatal(err)
	}
	x, y := created[0], created[1]

	member := f.students[10]
	media, err := UploadSubmissionMedia(ctx, f.db, f.files, member, x.ID, storage.Upload{Name: "foto.png", Reader: strings.NewReader(pngHeader)})
	if err != nil {
		t.Fatal(err)
	}

	if err := DeleteChallenge(ctx, f.db, f.files, x.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := GetChallenge(ctx, f.db, x.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("challenge X still present: %v", err)
	}
	if n := count(t, f.db, &models.Team{}); n != 1 {
		t.Fatalf("teams = %d", n)
	}
	if n := count(t, f.db, &models.TeamMember{}); n != 2 {
		t.Fatalf("memberships = %d", n)
	}
	if n := count(t, f.db, &models.ChallengeSubmission{}); n != 0 {
		t.Fatalf("submissions = %d", n)
	}
	rest, err := GetChallenge(ctx, f.db, y.ID)
	if err != nil || rest.Team.Name != "Y" || len(rest.Team.Members) != 2 {
		t.Fatalf("challenge Y damaged: %v %#v", err, rest)
	}
	path := filepath.Join(f.files.Root(), strings.TrimPrefix(media.Path, "/uploads/"))
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("media file not removed: %v", err)
	}
}

func TestDeleteChallengeUnknown(t *testing.T) {
	f := newFixture(t)
	if err := DeleteChallenge(context.Background(), f.db, f.files, 77); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGradeChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := CreateChallenges(ctx, f.db, ChallengeInput{TaskPackageID: f.pkg.ID, Teams: []TeamInput{team("A", 10)}})
	if err != nil {
		t.Fatal(err)
	}
	id := created[0].ID

	bad := 120
	if _, err := GradeChallenge(ctx, f.db, id, GradeInput{Score: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for score 120, got %v", err)
	}

	score := 90
	ch, err := GradeChallenge(ctx, f.db, id, GradeInput{Score: &score, Feedback: "Sehr gut"})
	if err != nil {
		t.Fatal(err)
	}
	if ch.Status != models.ChallengeGraded || *ch.Score != 90 {
		t.Fatalf("unexpected grade %s %v", ch.Status, ch.Score)
	}
}

func TestListChallengesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := CreateChallenges(ctx, f.db, ChallengeInput{
		TaskPackageID: f.pkg.ID,
		Teams:         []TeamInput{team("Rakete", 10, 11), team("Brücke", 12)},
	})
	if err != nil {
		t.Fatal(err)
	}

	mine, err := ListChallenges(ctx, f.db, ChallengeFilter{StudentID: 12})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Team.Name != "Brücke" {
		t.Fatalf("student filter returned %d challenges", len(mine))
	}

	found, err := ListChallenges(ctx, f.db, ChallengeFilter{Search: "rak"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Team.Name != "Rakete" {
		t.Fatalf("search returned %d challenges", len(found))
	}

	counts, err := CountByStatus(ctx, f.db, ChallengeFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.ChallengeOpen] != 2 || counts[models.ChallengeGraded] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestChallengeSubmissionURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := CreateChallenges(ctx, f.db, ChallengeInput{
		TaskPackageID: f.pkg.ID,
		SubmissionURL: "https://padlet.com/klasse/bruecke",
		Teams:         []TeamInput{team("A", 10)},
	})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := GetChallenge(ctx, f.db, created[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if ch.SubmissionURL != "https://padlet.com/klasse/bruecke" {
		t.Fatalf("submission url = %q", ch.SubmissionURL)
	}

	_, err = UpdateChallenge(ctx, f.db, ch.ID, ChallengeInput{
		TaskPackageID: f.pkg.ID,
		SubmissionURL: "javascript:alert(1)",
		Teams:         []TeamInput{team("A", 10)},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("script url accepted: %v", err)
	}

	if _, err := UpdateChallenge(ctx, f.db, ch.ID, ChallengeInput{TaskPackageID: f.pkg.ID, Teams: []TeamInput{team("A", 10)}}); err != nil {
		t.Fatal(err)
	}
	ch, _ = GetChallenge(ctx, f.db, ch.ID)
	if ch.SubmissionURL != "" {
		t.Fatalf("submission url not cleared: %q", ch.SubmissionURL)
	}
}

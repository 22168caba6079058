package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"challengetracker/models"
	"challengetracker/storage"
)

func createOne(t *testing.T, f *fixture, ids ...uint) models.Challenge {
	t.Helper()
	created, err := CreateChallenges(context.Background(), f.db, ChallengeInput{TaskPackageID: f.pkg.ID, Teams: []TeamInput{team("A", ids...)}})
	if err != nil {
		t.Fatal(err)
	}
	return created[0]
}

func challengeStatus(t *testing.T, f *fixture, id uint) models.ChallengeStatus {
	t.Helper()
	var ch models.Challenge
	if err := f.db.First(&ch, id).Error; err != nil {
		t.Fatal(err)
	}
	return ch.Status
}

func TestSubmissionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := createOne(t, f, 10, 11)
	student := f.students[11]

	sub, err := SaveSubmission(ctx, f.db, student, ch.ID, SubmissionInput{Description: "Entwurf"})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != models.SubmissionDraft || sub.UserID != 11 {
		t.Fatalf("unexpected submission %#v", sub)
	}
	if s := challengeStatus(t, f, ch.ID); s != models.ChallengeInProgress {
		t.Fatalf("first draft should start the challenge, status %s", s)
	}

	sub, err = SaveSubmission(ctx, f.db, f.students[10], ch.ID, SubmissionInput{Description: "Fertig", Status: models.SubmissionSubmitted})
	if err != nil {
		t.Fatal(err)
	}
	if sub.SubmittedAt == nil || sub.Status != models.SubmissionSubmitted {
		t.Fatalf("submit not recorded: %#v", sub)
	}
	if s := challengeStatus(t, f, ch.ID); s != models.ChallengeCompleted {
		t.Fatalf("submitting should complete the challenge, status %s", s)
	}
	if n := count(t, f.db, &models.ChallengeSubmission{}); n != 1 {
		t.Fatalf("submission rows = %d", n)
	}

	// locked
	_, err = SaveSubmission(ctx, f.db, student, ch.ID, SubmissionInput{Description: "Nachtrag"})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked on save, got %v", err)
	}
	_, err = UploadSubmissionMedia(ctx, f.db, f.files, student, ch.ID, storage.Upload{Name: "spät.png", Reader: strings.NewReader(pngHeader)})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked on upload, got %v", err)
	}
	if n := count(t, f.db, &models.SubmissionMedia{}); n != 0 {
		t.Fatalf("media rows written for locked submission: %d", n)
	}
	if files := storedFiles(t, f.files, storage.DirSubmissions); len(files) != 0 {
		t.Fatalf("files stored for locked submission: %v", files)
	}
	var stored models.ChallengeSubmission
	f.db.First(&stored, sub.ID)
	if stored.Description != "Fertig" {
		t.Fatalf("locked submission changed: %q", stored.Description)
	}

	// staff reopen
	if _, err := ReopenSubmission(ctx, f.db, student, ch.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("students must not reopen, got %v", err)
	}
	reopened, err := ReopenSubmission(ctx, f.db, &f.teacher, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Status != models.SubmissionDraft || reopened.SubmittedAt != nil {
		t.Fatalf("reopen failed: %#v", reopened)
	}
	if s := challengeStatus(t, f, ch.ID); s != models.ChallengeInProgress {
		t.Fatalf("reopened challenge status %s", s)
	}

	media, err := UploadSubmissionMedia(ctx, f.db, f.files, student, ch.ID, storage.Upload{Name: "bild.png", Reader: strings.NewReader(pngHeader)})
	if err != nil {
		t.Fatal(err)
	}
	if media.Kind != models.MediaImage || media.MimeType != "image/png" || media.SubmissionID != sub.ID {
		t.Fatalf("unexpected media %#v", media)
	}
}

func TestStaffCanMoveSubmittedBackToDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := createOne(t, f, 10)
	if _, err := SaveSubmission(ctx, f.db, f.students[10], ch.ID, SubmissionInput{Status: models.SubmissionSubmitted}); err != nil {
		t.Fatal(err)
	}
	sub, err := SaveSubmission(ctx, f.db, &f.teacher, ch.ID, SubmissionInput{Description: "zurück", Status: models.SubmissionDraft})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != models.SubmissionDraft {
		t.Fatalf("status %s", sub.Status)
	}
}

func TestSubmissionOutsiderForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := createOne(t, f, 10)

	outsider := f.students[13]
	if _, err := SaveSubmission(ctx, f.db, outsider, ch.ID, SubmissionInput{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	_, err := UploadSubmissionMedia(ctx, f.db, f.files, outsider, ch.ID, storage.Upload{Name: "x.png", Reader: strings.NewReader(pngHeader)})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := SaveSubmission(ctx, f.db, f.students[10], 999, SubmissionInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := SaveSubmission(ctx, f.db, f.students[10], ch.ID, SubmissionInput{Status: "fertig"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteSubmissionMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := createOne(t, f, 10)
	student := f.students[10]

	keep, err := UploadSubmissionMedia(ctx, f.db, f.files, student, ch.ID, storage.Upload{Name: "a.pdf", Reader: strings.NewReader("%PDF-1.4\n%x")})
	if err != nil {
		t.Fatal(err)
	}
	drop, err := UploadSubmissionMedia(ctx, f.db, f.files, student, ch.ID, storage.Upload{Name: "a.pdf", Reader: strings.NewReader("%PDF-1.4\n%y")})
	if err != nil {
		t.Fatal(err)
	}
	if keep.Path == drop.Path {
		t.Fatal("identical names must not share a stored file")
	}
	if keep.Kind != models.MediaDocument {
		t.Fatalf("pdf kind %s", keep.Kind)
	}

	if err := DeleteSubmissionMedia(ctx, f.db, f.files, f.students[13], drop.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := DeleteSubmissionMedia(ctx, f.db, f.files, student, drop.ID); err != nil {
		t.Fatal(err)
	}
	if files := storedFiles(t, f.files, storage.DirSubmissions); len(files) != 1 {
		t.Fatalf("expected one remaining file, got %v", files)
	}

	if _, err := SaveSubmission(ctx, f.db, student, ch.ID, SubmissionInput{Status: models.SubmissionSubmitted}); err != nil {
		t.Fatal(err)
	}
	if err := DeleteSubmissionMedia(ctx, f.db, f.files, student, keep.ID); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if n := count(t, f.db, &models.SubmissionMedia{}); n != 1 {
		t.Fatalf("media rows = %d", n)
	}
	if err := DeleteSubmissionMedia(ctx, f.db, f.files, student, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKeepTailRespectsCharacters(t *testing.T) {
	long := strings.Repeat("ä", 200) + ".png"
	got := keepTail(long, 255)
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8: %q", got)
	}
	if len(got) > 255 || !strings.HasSuffix(got, ".png") {
		t.Fatalf("len %d, %q", len(got), got)
	}
	if keepTail("foto.png", 255) != "foto.png" {
		t.Fatal("short name changed")
	}
}

func TestUploadLongUmlautName(t *testing.T) {
	f := newFixture(t)
	ch := createOne(t, f, 10)
	name := strings.Repeat("Ü", 150) + ".png"

	media, err := UploadSubmissionMedia(context.Background(), f.db, f.files, f.students[10], ch.ID, storage.Upload{Name: name, Reader: strings.NewReader(pngHeader)})
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(media.OriginalName) || len(media.OriginalName) > 255 || !strings.HasSuffix(media.OriginalName, ".png") {
		t.Fatalf("original name %q", media.OriginalName)
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"challengetracker/middleware"
	"challengetracker/models"
	"challengetracker/services"
)

type ChallengeHandler struct {
	base
}

func NewChallengeHandler(d Deps) *ChallengeHandler {
	return &ChallengeHandler{base{d}}
}

// activeYear returns the active school year, nil when none is flagged.
func (h *ChallengeHandler) activeYear(ctx context.Context) (*models.SchoolYear, error) {
	year, err := services.ActiveSchoolYear(ctx, h.DB)
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	return year, err
}

// Dashboard shows students their own challenges and staff the active
// school year.
func (h *ChallengeHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	year, err := h.activeYear(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	var filter services.ChallengeFilter
	if user.IsStudent() {
		filter.StudentID = user.ID
	} else if year != nil {
		filter.SchoolYearID = year.ID
	}

	counts, err := services.CountByStatus(r.Context(), h.DB, filter)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	challenges, err := services.ListChallenges(r.Context(), h.DB, filter)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if len(challenges) > 10 {
		challenges = challenges[:10]
	}

	data := viewData(r)
	data["ActiveYear"] = year
	data["Counts"] = counts
	data["Statuses"] = models.ChallengeStatuses
	data["Challenges"] = challenges
	h.render(w, r, "dashboard", data)
}

func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	q := r.URL.Query()

	filter := services.ChallengeFilter{
		Status:        models.ChallengeStatus(q.Get("status")),
		SchoolYearID:  parseUint(q.Get("schuljahr_id")),
		TaskPackageID: parseUint(q.Get("aufgabenpaket_id")),
		Search:        q.Get("q"),
	}
	if !filter.Status.Valid() {
		filter.Status = ""
	}
	if user.IsStudent() {
		filter.StudentID = user.ID
		filter.TaskPackageID = 0
	}

	challenges, err := services.ListChallenges(r.Context(), h.DB, filter)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	years, err := services.ListSchoolYears(r.Context(), h.DB)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	var packages []models.TaskPackage
	if user.IsStaff() {
		if packages, err = services.ListTaskPackages(r.Context(), h.DB, services.TaskPackageFilter{}); err != nil {
			h.serverError(w, r, err)
			return
		}
	}

	data := viewData(r)
	data["Challenges"] = challenges
	data["Statuses"] = models.ChallengeStatuses
	data["SchoolYears"] = years
	data["TaskPackages"] = packages
	data["Status"] = filter.Status
	data["SchoolYearID"] = filter.SchoolYearID
	data["TaskPackageID"] = filter.TaskPackageID
	data["Search"] = filter.Search
	h.render(w, r, "challenges", data)
}

// formData fills the choices shared by the create and edit forms.
func (h *ChallengeHandler) formData(r *http.Request, data map[string]interface{}) error {
	packages, err := services.ListTaskPackages(r.Context(), h.DB, services.TaskPackageFilter{})
	if err != nil {
		return err
	}
	years, err := services.ListSchoolYears(r.Context(), h.DB)
	if err != nil {
		return err
	}
	students, err := services.ListUsers(r.Context(), h.DB, services.UserFilter{Roles: []models.Role{models.RoleStudent}})
	if err != nil {
		return err
	}
	data["TaskPackages"] = packages
	data["SchoolYears"] = years
	data["Students"] = students
	return nil
}

func (h *ChallengeHandler) NewPage(w http.ResponseWriter, r *http.Request) {
	data := viewData(r)
	if err := h.formData(r, data); err != nil {
		h.serverError(w, r, err)
		return
	}
	year, err := h.activeYear(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	var yearID uint
	if year != nil {
		yearID = year.ID
	}

	data["Challenge"] = (*models.Challenge)(nil)
	data["Action"] = "/challenges"
	data["TaskPackageID"] = parseUint(r.URL.Query().Get("aufgabenpaket_id"))
	data["SchoolYearID"] = yearID
	data["DueDate"] = (*time.Time)(nil)
	data["ExtraNotes"] = ""
	data["SubmissionURL"] = ""
	data["TeamsData"] = ""
	h.render(w, r, "challenge-form", data)
}

// challengeInput reads the create and edit form. teams_data holds the JSON
// team descriptors.
func challengeInput(r *http.Request) (services.ChallengeInput, error) {
	teams, err := services.ParseTeams(r.FormValue("teams_data"))
	if err != nil {
		return services.ChallengeInput{}, err
	}
	due, err := formDate(r, "abgabedatum", "Abgabedatum")
	if err != nil {
		return services.ChallengeInput{}, err
	}
	return services.ChallengeInput{
		TaskPackageID: formUint(r, "aufgabenpaket_id"),
		SchoolYearID:  formOptionalUint(r, "schuljahr_id"),
		ExtraNotes:    r.FormValue("zusatzinfos"),
		DueDate:       due,
		SubmissionURL: strings.TrimSpace(r.FormValue("abgabe_url")),
		Teams:         teams,
	}, nil
}

func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, "/challenges/new", "error", "Ungültige Formulardaten")
		return
	}
	back := "/challenges/new"
	if pkg := formUint(r, "aufgabenpaket_id"); pkg != 0 {
		back = fmt.Sprintf("%s?aufgabenpaket_id=%d", back, pkg)
	}

	in, err := challengeInput(r)
	if err != nil {
		h.fail(w, r, err, back, "")
		return
	}
	created, err := services.CreateChallenges(r.Context(), h.DB, in)
	if err != nil {
		h.fail(w, r, err, back, "")
		return
	}

	msg := "Challenge erstellt"
	if len(created) > 1 {
		msg = fmt.Sprintf("%d Challenges erstellt", len(created))
	}
	success(w, r, "/challenges", msg)
}

func (h *ChallengeHandler) Detail(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/challenges", "error", "Ungültige Challenge")
		return
	}
	ch, err := services.GetChallenge(r.Context(), h.DB, id)
	if err != nil {
		h.fail(w, r, err, "/challenges", "")
		return
	}
	if !services.CanAccess(user, ch) {
		h.fail(w, r, services.ErrForbidden, "/challenges", "")
		return
	}

	data := viewData(r)
	data["Challenge"] = ch
	data["Locked"] = ch.Submission != nil && ch.Submission.Locked()
	data["Statuses"] = models.ChallengeStatuses
	gradeStatus := ch.Status
	if gradeStatus != models.ChallengeGraded && ch.Score == nil {
		gradeStatus = models.ChallengeGraded
	}
	data["GradeStatus"] = gradeStatus
	h.render(w, r, "challenge-detail", data)
}

func (h *ChallengeHandler) EditPage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/challenges", "error", "Ungültige Challenge")
		return
	}
	ch, err := services.GetChallenge(r.Context(), h.DB, id)
	if err != nil {
		h.fail(w, r, err, "/challenges", "")
		return
	}

	data := viewData(r)
	if err := h.formData(r, data); err != nil {
		h.serverError(w, r, err)
		return
	}
	teamsData, err := teamsJSON(ch.Team)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	var yearID uint
	if ch.SchoolYearID != nil {
		yearID = *ch.SchoolYearID
	}
	data["Challenge"] = ch
	data["Action"] = "/challenges/" + strconv.FormatUint(uint64(ch.ID), 10)
	data["TaskPackageID"] = ch.TaskPackageID
	data["SchoolYearID"] = yearID
	data["DueDate"] = ch.DueDate
	data["ExtraNotes"] = ch.ExtraNotes
	data["SubmissionURL"] = ch.SubmissionURL
	data["TeamsData"] = teamsData
	h.render(w, r, "challenge-form", data)
}

// teamsJSON renders a team in the descriptor format of the edit form.
func teamsJSON(team *models.Team) (string, error) {
	if team == nil {
		return "", nil
	}
	in := services.TeamInput{Name: team.Name}
	for _, m := range team.Members {
		in.Members = append(in.Members, services.MemberRef{ID: services.FlexibleID(m.UserID)})
	}
	b, err := json.Marshal([]services.TeamInput{in})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *ChallengeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/challenges", "error", "Ungültige Challenge")
		return
	}
	back := fmt.Sprintf("/challenges/%d/edit", id)
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, back, "error", "Ungültige Formulardaten")
		return
	}

	in, err := challengeInput(r)
	if err != nil {
		h.fail(w, r, err, back, "/challenges")
		return
	}
	if _, err := services.UpdateChallenge(r.Context(), h.DB, id, in); err != nil {
		h.fail(w, r, err, back, "/challenges")
		return
	}
	success(w, r, fmt.Sprintf("/challenges/%d", id), "Challenge gespeichert")
}

func (h *ChallengeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/challenges", "error", "Ungültige Challenge")
		return
	}
	if err := h.committed(r, services.DeleteChallenge(r.Context(), h.DB, h.Files, id)); err != nil {
		h.fail(w, r, err, "/challenges", "")
		return
	}
	success(w, r, "/challenges", "Challenge gelöscht")
}

// Grade stores status, score and feedback of a challenge.
func (h *ChallengeHandler) Grade(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/challenges", "error", "Ungültige Challenge")
		return
	}
	back := fmt.Sprintf("/challenges/%d", id)
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, back, "error", "Ungültige Formulardaten")
		return
	}

	in := services.GradeInput{
		Status:   models.ChallengeStatus(r.FormValue("status")),
		Feedback: r.FormValue("feedback"),
	}
	if raw := strings.TrimSpace(r.FormValue("punkte")); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			redirectFlash(w, r, back, "error", "Punkte müssen eine Zahl sein")
			return
		}
		in.Score = &score
	}

	if _, err := services.GradeChallenge(r.Context(), h.DB, id, in); err != nil {
		h.fail(w, r, err, back, "/challenges")
		return
	}
	success(w, r, back, "Bewertung gespeichert")
}

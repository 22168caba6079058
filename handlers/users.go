package handlers

import (
	"fmt"
	"net/http"

	"challengetracker/models"
	"challengetracker/services"

	"go.uber.org/zap"
)

// UserHandler manages the accounts of one role under one path, /schueler
// for students and /lehrer for teachers.
type UserHandler struct {
	base
	role  models.Role
	path  string
	title string
}

func NewStudentHandler(d Deps) *UserHandler {
	return &UserHandler{base: base{d}, role: models.RoleStudent, path: "/schueler", title: "Schüler"}
}

func NewTeacherHandler(d Deps) *UserHandler {
	return &UserHandler{base: base{d}, role: models.RoleTeacher, path: "/lehrer", title: "Lehrkräfte"}
}

func (h *UserHandler) pageData(r *http.Request) (map[string]interface{}, error) {
	data := viewData(r)
	data["Title"] = h.title
	data["Path"] = h.path
	data["IsStudent"] = h.role == models.RoleStudent
	data["Account"] = (*models.User)(nil)
	data["AccountClassID"] = uint(0)
	data["AccountSchoolYearID"] = uint(0)
	if h.role != models.RoleStudent {
		return data, nil
	}

	classes, err := services.ListClasses(r.Context(), h.DB)
	if err != nil {
		return nil, err
	}
	years, err := services.ListSchoolYears(r.Context(), h.DB)
	if err != nil {
		return nil, err
	}
	data["Classes"] = classes
	data["SchoolYears"] = years
	for _, y := range years {
		if y.Active {
			data["AccountSchoolYearID"] = y.ID
		}
	}
	return data, nil
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.UserFilter{Roles: []models.Role{h.role}, Search: q.Get("q")}
	if h.role == models.RoleStudent {
		filter.ClassID = parseUint(q.Get("class_id"))
	}

	users, err := services.ListUsers(r.Context(), h.DB, filter)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data, err := h.pageData(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data["Users"] = users
	data["ClassID"] = filter.ClassID
	data["Search"] = filter.Search
	h.render(w, r, "users", data)
}

func userInput(r *http.Request) services.UserInput {
	return services.UserInput{
		Username:     r.FormValue("username"),
		FirstName:    r.FormValue("vorname"),
		LastName:     r.FormValue("nachname"),
		Email:        r.FormValue("email"),
		ClassID:      formOptionalUint(r, "klasse_id"),
		SchoolYearID: formOptionalUint(r, "schuljahr_id"),
		Password:     r.FormValue("password"),
	}
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, h.path, "error", "Ungültige Formulardaten")
		return
	}
	u, err := services.CreateUser(r.Context(), h.DB, h.role, userInput(r))
	if err != nil {
		h.fail(w, r, err, h.path, "")
		return
	}
	if h.role == models.RoleStudent {
		h.invalidateStudents(r)
	}
	success(w, r, h.path, fmt.Sprintf("%s angelegt", u.DisplayName()))
}

func (h *UserHandler) EditPage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, h.path, "error", "Ungültiger Benutzer")
		return
	}
	u, err := services.GetUser(r.Context(), h.DB, h.role, id)
	if err != nil {
		h.fail(w, r, err, h.path, "")
		return
	}
	data, err := h.pageData(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data["Account"] = u
	if u.ClassID != nil {
		data["AccountClassID"] = *u.ClassID
	}
	if u.SchoolYearID != nil {
		data["AccountSchoolYearID"] = *u.SchoolYearID
	}
	h.render(w, r, "user-edit", data)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, h.path, "error", "Ungültiger Benutzer")
		return
	}
	back := fmt.Sprintf("%s/%d/edit", h.path, id)
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, back, "error", "Ungültige Formulardaten")
		return
	}
	if _, err := services.UpdateUser(r.Context(), h.DB, h.role, id, userInput(r)); err != nil {
		h.fail(w, r, err, back, h.path)
		return
	}
	if h.role == models.RoleStudent {
		h.invalidateStudents(r)
	}
	success(w, r, h.path, "Gespeichert")
}

// Delete removes the account and ends its sessions.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, h.path, "error", "Ungültiger Benutzer")
		return
	}
	if err := services.DeleteUser(r.Context(), h.DB, h.role, id); err != nil {
		h.fail(w, r, err, h.path, "")
		return
	}
	if n, err := h.Sessions.DeleteUser(r.Context(), id); err != nil {
		h.logError(r, err)
	} else if n > 0 {
		h.Log.Base.Info("sessions revoked", zap.Uint("user_id", id), zap.Int("count", n))
	}
	if h.role == models.RoleStudent {
		h.invalidateStudents(r)
	}
	success(w, r, h.path, "Gelöscht")
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"challengetracker/export"
	"challengetracker/models"
	"challengetracker/services"

	"go.uber.org/zap"
)

type AdminHandler struct {
	base
}

func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{base{d}}
}

func (h *AdminHandler) Page(w http.ResponseWriter, r *http.Request) {
	years, err := services.ListSchoolYears(r.Context(), h.DB)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	classes, err := services.ListClasses(r.Context(), h.DB)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	next := models.CurrentStartYear(time.Now())
	if len(years) > 0 && years[0].StartYear >= next {
		next = years[0].StartYear + 1
	}

	data := viewData(r)
	data["SchoolYears"] = years
	data["Classes"] = classes
	data["NextStartYear"] = next
	h.render(w, r, "admin", data)
}

func (h *AdminHandler) CreateSchoolYear(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, "/admin", "error", "Ungültige Formulardaten")
		return
	}
	start, err := strconv.Atoi(r.FormValue("start_year"))
	if err != nil {
		redirectFlash(w, r, "/admin", "error", "Das Startjahr muss eine Zahl sein")
		return
	}
	active, _ := strconv.ParseBool(r.FormValue("active"))

	year, err := services.CreateSchoolYear(r.Context(), h.DB, start, active)
	if err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	success(w, r, "/admin", fmt.Sprintf("Schuljahr %s angelegt", year.Name))
}

func (h *AdminHandler) ActivateSchoolYear(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/admin", "error", "Ungültiges Schuljahr")
		return
	}
	if err := services.SetActiveSchoolYear(r.Context(), h.DB, id); err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	success(w, r, "/admin", "Aktives Schuljahr geändert")
}

func (h *AdminHandler) DeleteSchoolYear(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/admin", "error", "Ungültiges Schuljahr")
		return
	}
	if err := services.DeleteSchoolYear(r.Context(), h.DB, id); err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	success(w, r, "/admin", "Schuljahr gelöscht")
}

func (h *AdminHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, "/admin", "error", "Ungültige Formulardaten")
		return
	}
	class, err := services.CreateClass(r.Context(), h.DB, r.FormValue("name"))
	if err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	success(w, r, "/admin", fmt.Sprintf("Klasse %s angelegt", class.Name))
}

func (h *AdminHandler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/admin", "error", "Ungültige Klasse")
		return
	}
	if err := services.DeleteClass(r.Context(), h.DB, id); err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	h.invalidateStudents(r)
	success(w, r, "/admin", "Klasse gelöscht")
}

// ImportRoster reads an uploaded xlsx student list.
func (h *AdminHandler) ImportRoster(w http.ResponseWriter, r *http.Request) {
	if err := h.parseUpload(w, r); err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	upload, closeFile, err := formFile(r, "roster")
	defer closeFile()
	if err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	if upload == nil {
		redirectFlash(w, r, "/admin", "error", "Bitte eine Datei auswählen")
		return
	}

	res, err := services.ImportRoster(r.Context(), h.DB, upload.Reader)
	if err != nil {
		h.fail(w, r, err, "/admin", "")
		return
	}
	h.invalidateStudents(r)
	h.Log.Base.Info("roster imported",
		zap.String("file", upload.Name),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	success(w, r, "/admin", fmt.Sprintf("Import abgeschlossen: %d neu, %d aktualisiert, %d übersprungen", res.Created, res.Updated, res.Skipped))
}

// Export downloads the challenges as an xlsx workbook.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.ChallengeFilter{
		Status:       models.ChallengeStatus(q.Get("status")),
		SchoolYearID: parseUint(q.Get("schuljahr_id")),
	}
	if !filter.Status.Valid() {
		filter.Status = ""
	}

	challenges, err := services.ListChallenges(r.Context(), h.DB, filter)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	f, err := export.ChallengesWorkbook(challenges)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(time.Now())))
	if err := export.Write(f, w); err != nil {
		h.logError(r, err)
	}
}

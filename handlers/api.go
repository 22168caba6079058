package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"challengetracker/cache"
	"challengetracker/middleware"
	"challengetracker/models"
	"challengetracker/services"

	"go.uber.org/zap"
)

const (
	studentCachePrefix = "api:schueler"
	studentCacheTTL    = 2 * time.Minute
	searchLimit        = 20
)

type APIHandler struct {
	base
}

func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{base{d}}
}

type studentResult struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Klasse   string `json:"klasse"`
}

// SearchStudents backs the member autocomplete of the challenge form.
// Responses are cached per query.
func (h *APIHandler) SearchStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := cache.Key(studentCachePrefix, q)
	if body, err := h.Cache.Get(r.Context(), key); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.Write([]byte(body))
		return
	} else if !errors.Is(err, cache.ErrMiss) {
		h.Log.Base.Warn("cache read failed", zap.Error(err))
	}

	users, err := services.ListUsers(r.Context(), h.DB, services.UserFilter{
		Roles:   []models.Role{models.RoleStudent},
		ClassID: parseUint(q.Get("class_id")),
		Search:  q.Get("q"),
		Limit:   searchLimit,
	})
	if err != nil {
		h.apiError(w, r, err)
		return
	}

	out := make([]studentResult, len(users))
	for i := range users {
		u := &users[i]
		out[i] = studentResult{ID: u.ID, Username: u.Username, Name: u.DisplayName(), Klasse: u.ClassName()}
	}
	body, err := json.Marshal(envelope{Success: true, Data: out})
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	if err := h.Cache.Set(r.Context(), key, string(body), studentCacheTTL); err != nil {
		h.Log.Base.Warn("cache write failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

type taskPackageResult struct {
	ID        uint   `json:"id"`
	Title     string `json:"title"`
	Kategorie string `json:"kategorie"`
	Icon      string `json:"icon"`
}

func (h *APIHandler) SearchTaskPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	packages, err := services.ListTaskPackages(r.Context(), h.DB, services.TaskPackageFilter{
		CategoryID: parseUint(q.Get("category_id")),
		Search:     q.Get("q"),
	})
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	if len(packages) > searchLimit {
		packages = packages[:searchLimit]
	}

	out := make([]taskPackageResult, len(packages))
	for i := range packages {
		p := &packages[i]
		out[i] = taskPackageResult{ID: p.ID, Title: p.Title, Kategorie: p.CategoryTitle(), Icon: h.Files.URL(p.Icon)}
	}
	writeData(w, http.StatusOK, out)
}

// SaveSubmission accepts a JSON body or a form with beschreibung and status.
func (h *APIHandler) SaveSubmission(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Ungültige Challenge")
		return
	}

	var in services.SubmissionInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "Ungültige Anfrage")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Ungültige Formulardaten")
			return
		}
		in.Description = r.FormValue("beschreibung")
		in.Status = models.SubmissionStatus(r.FormValue("status"))
	}

	sub, err := services.SaveSubmission(r.Context(), h.DB, user, id, in)
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

type mediaResult struct {
	*models.SubmissionMedia
	URL string `json:"url"`
}

// UploadMedia stores one file of the multipart field "file".
func (h *APIHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Ungültige Challenge")
		return
	}
	if err := h.parseUpload(w, r); err != nil {
		h.apiError(w, r, err)
		return
	}
	upload, closeFile, err := formFile(r, "file")
	defer closeFile()
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	if upload == nil {
		writeError(w, http.StatusBadRequest, "Keine Datei übermittelt")
		return
	}

	media, err := services.UploadSubmissionMedia(r.Context(), h.DB, h.Files, user, id, *upload)
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, mediaResult{SubmissionMedia: media, URL: h.Files.URL(media.Path)})
}

func (h *APIHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Ungültige Datei")
		return
	}
	err := services.DeleteSubmissionMedia(r.Context(), h.DB, h.Files, user, id)
	if err := h.committed(r, err); err != nil {
		h.apiError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]uint{"id": id})
}

// Reopen moves a submitted submission back to draft.
func (h *APIHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Ungültige Challenge")
		return
	}
	sub, err := services.ReopenSubmission(r.Context(), h.DB, user, id)
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"challengetracker/cache"
	"challengetracker/config"
	"challengetracker/directory"
	"challengetracker/logging"
	"challengetracker/middleware"
	"challengetracker/observability"
	"challengetracker/services"
	"challengetracker/session"
	"challengetracker/storage"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are shared by all handlers. Directory is nil when no directory
// service is configured.
type Deps struct {
	Config    *config.Config
	Log       *logging.Log
	DB        *gorm.DB
	Files     storage.Store
	Sessions  *session.BoltStore
	Directory directory.Authenticator
	Cache     cache.Cache
	Templates map[string]*template.Template
}

type base struct {
	Deps
}

// viewData starts the data map of a page with the principal and the flash
// messages.
func viewData(r *http.Request) map[string]interface{} {
	return map[string]interface{}{
		"User":    middleware.GetUserFromContext(r.Context()),
		"Error":   r.URL.Query().Get("error"),
		"Success": r.URL.Query().Get("success"),
		"Now":     time.Now(),
	}
}

func (b *base) render(w http.ResponseWriter, r *http.Request, page string, data map[string]interface{}) {
	tmpl, ok := b.Templates[page]
	if !ok {
		b.serverError(w, r, fmt.Errorf("template %q not loaded", page))
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		b.serverError(w, r, fmt.Errorf("render %s: %w", page, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// redirectFlash redirects to target with a success or error message.
func redirectFlash(w http.ResponseWriter, r *http.Request, target, key, msg string) {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set(key, msg)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

func success(w http.ResponseWriter, r *http.Request, target, msg string) {
	redirectFlash(w, r, target, "success", msg)
}

// message is the text shown to the user for err.
func message(err error) string {
	var ie *services.InputError
	if errors.As(err, &ie) {
		return ie.Msg
	}
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return "Ungültige Eingabe"
	case errors.Is(err, services.ErrNotFound):
		return "Eintrag nicht gefunden"
	case errors.Is(err, services.ErrForbidden):
		return "Keine Berechtigung"
	case errors.Is(err, services.ErrLocked):
		return "Die Abgabe ist bereits eingereicht und gesperrt"
	case errors.Is(err, services.ErrInUse):
		return "Der Eintrag wird noch verwendet und kann nicht gelöscht werden"
	}
	return "Die Aktion ist fehlgeschlagen"
}

// expected reports whether err is a domain outcome rather than a failure.
func expected(err error) bool {
	for _, target := range []error{
		services.ErrInvalidInput, services.ErrNotFound, services.ErrForbidden,
		services.ErrLocked, services.ErrInUse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// fail redirects back with the error flash. Missing records go to list
// instead when it is set.
func (b *base) fail(w http.ResponseWriter, r *http.Request, err error, back, list string) {
	if errors.Is(err, services.ErrNotFound) && list != "" {
		back = list
	}
	if !expected(err) {
		b.logError(r, err)
	}
	redirectFlash(w, r, back, "error", message(err))
}

// committed swallows ErrCleanup: the database change went through and only
// removing stored files failed.
func (b *base) committed(r *http.Request, err error) error {
	if err != nil && errors.Is(err, services.ErrCleanup) {
		b.Log.Base.Warn("stored files left behind", zap.Error(err), zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		return nil
	}
	return err
}

func (b *base) logError(r *http.Request, err error) {
	b.Log.Base.Error("request failed",
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
	)
	observability.CaptureRequestErr(r, err)
}

func (b *base) serverError(w http.ResponseWriter, r *http.Request, err error) {
	b.logError(r, err)
	if middleware.IsAPI(r) {
		writeError(w, http.StatusInternalServerError, "Interner Fehler")
		return
	}
	http.Error(w, "Interner Fehler", http.StatusInternalServerError)
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// apiError answers with the status matching err.
func (b *base) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrLocked), errors.Is(err, services.ErrInUse):
		status = http.StatusConflict
	default:
		b.logError(r, err)
	}
	writeError(w, status, message(err))
}

func idParam(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func parseUint(s string) uint {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0
	}
	return uint(n)
}

func formUint(r *http.Request, key string) uint {
	return parseUint(r.FormValue(key))
}

// formOptionalUint returns nil for an empty or zero value.
func formOptionalUint(r *http.Request, key string) *uint {
	n := formUint(r, key)
	if n == 0 {
		return nil
	}
	return &n
}

// formDate parses an <input type="date"> value; empty means no date.
func formDate(r *http.Request, key, label string) (*time.Time, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return nil, &services.InputError{Msg: fmt.Sprintf("%s ist kein gültiges Datum", label)}
	}
	return &t, nil
}

// parseUpload reads a multipart body limited to the configured upload size.
func (b *base) parseUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, b.Config.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &services.InputError{Msg: fmt.Sprintf("Die Datei ist größer als %d MB", b.Config.MaxUploadBytes>>20)}
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil
		}
		return &services.InputError{Msg: "Ungültige Formulardaten"}
	}
	return nil
}

// formFile opens an optional file field. The returned close func is never
// nil.
func formFile(r *http.Request, field string) (*storage.Upload, func(), error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, func() {}, nil
	}
	fh := r.MultipartForm.File[field][0]
	if fh.Filename == "" {
		return nil, func() {}, nil
	}
	up, f, err := storage.FromMultipart(fh)
	if err != nil {
		return nil, func() {}, err
	}
	return up, func() { f.Close() }, nil
}

func (b *base) invalidateStudents(r *http.Request) {
	if err := b.Cache.Invalidate(r.Context(), studentCachePrefix); err != nil {
		b.Log.Base.Warn("cache invalidation failed", zap.Error(err))
	}
}

// Package templates holds the server-rendered pages. Every page is parsed
// together with base.html and executed through the "base" template.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"challengetracker/models"
)

//go:embed *.html
var files embed.FS

var pages = []string{
	"login", "dashboard",
	"categories", "category-edit",
	"aufgabenpakete", "aufgabenpaket-edit",
	"challenges", "challenge-form", "challenge-detail",
	"users", "user-edit",
	"teams", "team-detail",
	"admin",
}

// Load parses all pages. extra overrides or adds template functions, e.g.
// fileURL for the configured storage backend.
func Load(extra template.FuncMap) (map[string]*template.Template, error) {
	funcs := Funcs()
	for name, fn := range extra {
		funcs[name] = fn
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.New("").Funcs(funcs).ParseFS(files, "base.html", page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		templates[page] = tmpl
	}
	return templates, nil
}

func Funcs() template.FuncMap {
	return template.FuncMap{
		"deref": func(p *uint) uint {
			if p == nil {
				return 0
			}
			return *p
		},
		"score": func(p *int) string {
			if p == nil {
				return "–"
			}
			return fmt.Sprintf("%d", *p)
		},
		"date":        formatDate,
		"dateInput":   formatDateInput,
		"isImageIcon": isImageIcon,
		"statusLabel": statusLabel,
		"roleLabel":   roleLabel,
		"fileURL":     func(p string) string { return p },
		"now":         time.Now,
	}
}

func formatDate(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("02.01.2006")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format("02.01.2006")
	}
	return ""
}

// formatDateInput renders the value of an <input type="date">.
func formatDateInput(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// isImageIcon tells stored or linked images apart from emoji icons.
func isImageIcon(icon string) bool {
	return strings.HasPrefix(icon, "/") || strings.HasPrefix(icon, "http://") || strings.HasPrefix(icon, "https://")
}

func statusLabel(s interface{}) string {
	switch fmt.Sprint(s) {
	case string(models.ChallengeOpen):
		return "Offen"
	case string(models.ChallengeInProgress):
		return "In Arbeit"
	case string(models.ChallengeCompleted):
		return "Abgeschlossen"
	case string(models.ChallengeGraded):
		return "Bewertet"
	case string(models.SubmissionDraft):
		return "Entwurf"
	case string(models.SubmissionSubmitted):
		return "Eingereicht"
	}
	return fmt.Sprint(s)
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleStudent:
		return "Schüler/in"
	case models.RoleTeacher:
		return "Lehrkraft"
	case models.RoleAdmin:
		return "Administration"
	}
	return "Unbekannt"
}

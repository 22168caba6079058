package handlers

import (
	"net/http"
	"strings"

	"challengetracker/metrics"
	"challengetracker/middleware"
	"challengetracker/models"
	"challengetracker/observability"
	"challengetracker/storage"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router wires every route of the application.
func Router(d Deps) http.Handler {
	authHandler := NewAuthHandler(d)
	challengeHandler := NewChallengeHandler(d)
	catalogHandler := NewCatalogHandler(d)
	studentHandler := NewStudentHandler(d)
	teacherHandler := NewTeacherHandler(d)
	teamHandler := NewTeamHandler(d)
	adminHandler := NewAdminHandler(d)
	apiHandler := NewAPIHandler(d)
	healthHandler := NewHealthHandler(d)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(d.Log.Base))
	router.Use(middleware.Metrics)
	router.Use(chimiddleware.Recoverer)
	router.Use(observability.Middleware)
	router.Use(middleware.MethodOverride)

	router.Get("/healthz", healthHandler.Healthz)
	router.Handle("/metrics", metrics.Handler())
	if d.Config.StorageBackend == "local" {
		prefix := d.Config.UploadURLPrefix + "/"
		router.Handle(prefix+"*", http.StripPrefix(prefix, uploadFiles(d.Config.UploadDir)))
	}

	// Public routes
	router.Get("/login", authHandler.LoginPage)
	router.Post("/login", authHandler.Login)
	router.Post("/login/demo", authHandler.DemoLogin)
	router.Get("/logout", authHandler.Logout)
	router.Post("/logout", authHandler.Logout)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Sessions, d.DB))

		r.Get("/", challengeHandler.Dashboard)
		r.Get("/challenges", challengeHandler.List)
		r.Get("/challenges/{id}", challengeHandler.Detail)

		r.Post("/api/challenges/{id}/abgabe", apiHandler.SaveSubmission)
		r.Post("/api/challenges/{id}/abgabe/media", apiHandler.UploadMedia)
		r.Delete("/api/abgabe/media/{id}", apiHandler.DeleteMedia)

		// Teacher and admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff)

			r.Get("/challenges/new", challengeHandler.NewPage)
			r.Post("/challenges", challengeHandler.Create)
			r.Get("/challenges/{id}/edit", challengeHandler.EditPage)
			r.Put("/challenges/{id}", challengeHandler.Update)
			r.Delete("/challenges/{id}", challengeHandler.Delete)
			r.Post("/challenges/{id}/bewertung", challengeHandler.Grade)

			r.Get("/categories", catalogHandler.Categories)
			r.Post("/categories", catalogHandler.CreateCategory)
			r.Get("/categories/{id}/edit", catalogHandler.EditCategoryPage)
			r.Put("/categories/{id}", catalogHandler.UpdateCategory)
			r.Delete("/categories/{id}", catalogHandler.DeleteCategory)

			r.Get("/aufgabenpakete", catalogHandler.TaskPackages)
			r.Post("/aufgabenpakete", catalogHandler.CreateTaskPackage)
			r.Get("/aufgabenpakete/{id}/edit", catalogHandler.EditTaskPackagePage)
			r.Put("/aufgabenpakete/{id}", catalogHandler.UpdateTaskPackage)
			r.Delete("/aufgabenpakete/{id}", catalogHandler.DeleteTaskPackage)

			r.Get("/schueler", studentHandler.List)
			r.Post("/schueler", studentHandler.Create)
			r.Get("/schueler/{id}/edit", studentHandler.EditPage)
			r.Put("/schueler/{id}", studentHandler.Update)
			r.Delete("/schueler/{id}", studentHandler.Delete)

			r.Get("/teams", teamHandler.List)
			r.Get("/teams/{id}", teamHandler.Detail)

			r.Get("/api/schueler", apiHandler.SearchStudents)
			r.Get("/api/aufgabenpakete", apiHandler.SearchTaskPackages)
			r.Post("/api/challenges/{id}/abgabe/reopen", apiHandler.Reopen)
		})

		// Admin only routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Get("/lehrer", teacherHandler.List)
			r.Post("/lehrer", teacherHandler.Create)
			r.Get("/lehrer/{id}/edit", teacherHandler.EditPage)
			r.Put("/lehrer/{id}", teacherHandler.Update)
			r.Delete("/lehrer/{id}", teacherHandler.Delete)

			r.Get("/admin", adminHandler.Page)
			r.Post("/admin/schuljahre", adminHandler.CreateSchoolYear)
			r.Post("/admin/schuljahre/{id}/aktivieren", adminHandler.ActivateSchoolYear)
			r.Delete("/admin/schuljahre/{id}", adminHandler.DeleteSchoolYear)
			r.Post("/admin/klassen", adminHandler.CreateClass)
			r.Delete("/admin/klassen/{id}", adminHandler.DeleteClass)
			r.Post("/admin/import", adminHandler.ImportRoster)
			r.Get("/admin/export", adminHandler.Export)
		})
	})

	return router
}

// uploadFiles serves the upload folder without directory indexes. Stored
// files never run as pages of this origin, and submission files are always
// downloaded instead of opened.
func uploadFiles(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "sandbox")
		if strings.HasPrefix(r.URL.Path, storage.DirSubmissions+"/") {
			h.Set("Content-Disposition", "attachment")
		}
		files.ServeHTTP(w, r)
	})
}

package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"challengetracker/middleware"
	"challengetracker/models"
	"challengetracker/services"

	"go.uber.org/zap"
)

type AuthHandler struct {
	base
}

func NewAuthHandler(d Deps) *AuthHandler {
	return &AuthHandler{base{d}}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := viewData(r)
	data["User"] = (*models.User)(nil)
	data["Username"] = r.URL.Query().Get("username")
	data["DemoLogin"] = h.Config.DemoLogin
	h.render(w, r, "login", data)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=Ung%C3%BCltige+Formulardaten", http.StatusSeeOther)
		return
	}

	username := r.FormValue("username")
	user, err := services.Authenticate(r.Context(), h.DB, h.Directory, username, r.FormValue("password"))
	if err != nil {
		if !errors.Is(err, services.ErrInvalidCredentials) {
			h.logError(r, err)
			redirectFlash(w, r, "/login", "error", "Die Anmeldung ist derzeit nicht möglich")
			return
		}
		h.Log.Base.Info("login rejected", zap.String("username", username))
		redirectFlash(w, r, "/login?username="+url.QueryEscape(username), "error", "Benutzername oder Passwort falsch")
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		h.logError(r, err)
		redirectFlash(w, r, "/login", "error", "Die Anmeldung ist derzeit nicht möglich")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DemoLogin signs in as the first account of the chosen role.
func (h *AuthHandler) DemoLogin(w http.ResponseWriter, r *http.Request) {
	if !h.Config.DemoLogin {
		http.NotFound(w, r)
		return
	}
	role, ok := models.ParseRole(r.FormValue("role"))
	if !ok {
		redirectFlash(w, r, "/login", "error", "Unbekannte Rolle")
		return
	}
	user, err := services.DemoUser(r.Context(), h.DB, role)
	if err != nil {
		h.fail(w, r, err, "/login", "")
		return
	}
	if err := h.startSession(w, r, user); err != nil {
		h.logError(r, err)
		redirectFlash(w, r, "/login", "error", "Die Anmeldung ist derzeit nicht möglich")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if claims, err := middleware.ValidateToken(token); err == nil {
			if err := h.Sessions.Delete(r.Context(), claims.SessionID); err != nil {
				h.logError(r, err)
			}
		}
	}
	middleware.ClearSessionCookie(w)
	redirectFlash(w, r, "/login", "success", "Sie wurden abgemeldet")
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	ttl := h.Config.SessionTTL
	id, err := h.Sessions.Create(r.Context(), user.ID, ttl)
	if err != nil {
		return err
	}
	token, err := middleware.GenerateToken(id, ttl)
	if err != nil {
		return err
	}
	middleware.SetSessionCookie(w, token, ttl, h.Config.IsProd())
	h.Log.Base.Info("login", zap.Uint("user_id", user.ID), zap.String("role", user.RoleID.String()))
	return nil
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"challengetracker/models"
	"challengetracker/session"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type contextKey string

const UserContextKey contextKey = "user"

// CookieName holds the signed session token.
const CookieName = "session"

// Claims only carry the opaque session id. Who the user is gets resolved
// from the session store and the users table on every request.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

var jwtSecret []byte

func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

func GenerateToken(sessionID string, expiration time.Duration) (string, error) {
	claims := &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// SetSessionCookie writes the signed token for sessionID.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// SessionStore resolves session ids.
type SessionStore interface {
	Lookup(ctx context.Context, id string) (*session.Session, error)
}

// TokenFromRequest reads the session token from the cookie or a bearer
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ""
}

// AuthMiddleware resolves the principal of the request. Anonymous HTML
// requests are sent to the login page, API requests get a 401.
func AuthMiddleware(sessions SessionStore, db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := TokenFromRequest(r)
			if tokenString == "" {
				unauthorized(w, r)
				return
			}

			claims, err := ValidateToken(tokenString)
			if err != nil {
				ClearSessionCookie(w)
				unauthorized(w, r)
				return
			}

			sess, err := sessions.Lookup(r.Context(), claims.SessionID)
			if err != nil {
				if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
					http.Error(w, "Session store unavailable", http.StatusServiceUnavailable)
					return
				}
				ClearSessionCookie(w)
				unauthorized(w, r)
				return
			}

			var user models.User
			if err := db.WithContext(r.Context()).Preload("Class").First(&user, sess.UserID).Error; err != nil {
				ClearSessionCookie(w)
				unauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &user)))
		})
	}
}

func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				unauthorized(w, r)
				return
			}

			for _, role := range roles {
				if user.RoleID == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			if IsAPI(r) {
				writeError(w, http.StatusForbidden, "Keine Berechtigung")
				return
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

// RequireStaff admits teachers and admins.
func RequireStaff(next http.Handler) http.Handler {
	return RequireRole(models.RoleTeacher, models.RoleAdmin)(next)
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// IsAPI reports whether r targets the JSON API.
func IsAPI(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	if IsAPI(r) {
		writeError(w, http.StatusUnauthorized, "Nicht angemeldet")
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
}

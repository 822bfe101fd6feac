// Package identity resolves the participant behind a request.
package identity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

const (
	AnonCookieName = "auracode_anon_id"
	// TokenHeaderName carries a signed participant token. The subject is the user id.
	TokenHeaderName  = "X-AuraCode-User-Token"
	RoleParticipant  = "participant"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const userIDKey contextKey = iota

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)
)

// UserIDFromContext extracts the participant ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// ValidUserID reports whether id can be used as a participant identity.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func generateAnonID() string {
	return "anon_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// participantFromToken verifies a participant token and returns its subject.
func participantFromToken(auth *jwtauth.JWTAuth, raw string) (string, bool) {
	token, err := jwtauth.VerifyToken(auth, raw)
	if err != nil {
		return "", false
	}
	if role, _ := token.PrivateClaims()["role"].(string); role != RoleParticipant {
		return "", false
	}
	sub := token.Subject()
	if !ValidUserID(sub) {
		return "", false
	}
	return sub, true
}

// resolve picks the verified token identity when one is presented, otherwise
// the anonymous cookie, minting one if needed. Without auth only cookies count.
func resolve(w http.ResponseWriter, r *http.Request, isDev bool, auth *jwtauth.JWTAuth) string {
	if raw := strings.TrimSpace(r.Header.Get(TokenHeaderName)); raw != "" {
		if auth != nil {
			if id, ok := participantFromToken(auth, raw); ok {
				return id
			}
		}
		slog.Warn("Ignoring unverified participant token", "ip", IPFromRequest(r), "path", r.URL.Path)
	}
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value
	}
	id := generateAnonID()
	setAnonCookie(w, id, isDev)
	return id
}

// Middleware injects the participant ID into the request context. auth may
// be nil, in which case participants are identified by cookie only.
func Middleware(isDev bool, auth *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := resolve(w, r, isDev, auth)
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// IPFromRequest returns the remote IP without the port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

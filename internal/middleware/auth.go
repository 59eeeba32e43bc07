package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// TokenCookieName is the cookie the auth routes set on sign-in.
const TokenCookieName = "token"

type contextKey string

const userIDKey contextKey = "userID"

// SessionValidator resolves a session token to the owning user id.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (string, bool, error)
}

// ExtractToken reads the session token from a Bearer header, falling back
// to the token cookie.
func ExtractToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth rejects requests without a valid session and stores the
// caller id in the request context.
func RequireAuth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				writeMsg(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}

			userID, ok, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				slog.Error("session validation failed", "error", err)
				writeMsg(w, http.StatusInternalServerError, "Server Error")
				return
			}
			if !ok {
				writeMsg(w, http.StatusUnauthorized, "Token is not valid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the id stored by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}

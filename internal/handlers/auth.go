package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AnshRaj112/giftwise-backend/internal/middleware"
	"github.com/AnshRaj112/giftwise-backend/internal/models"
	"github.com/AnshRaj112/giftwise-backend/internal/services"
	"github.com/AnshRaj112/giftwise-backend/pkg/utils"
)

// SessionManager issues and revokes login sessions.
type SessionManager interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	InvalidateSession(ctx context.Context, token string) error
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	Users         services.UserStore
	Sessions      SessionManager
	Logger        *slog.Logger
	SecureCookies bool
}

// Credentials is the body of sign-up and sign-in
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse returns the public user and the session token
type AuthResponse struct {
	User  map[string]interface{} `json:"user"`
	Token string                 `json:"token,omitempty"`
}

func publicUser(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"username":   u.Username,
		"created_at": u.CreatedAt,
	}
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// startSession creates a session for user and writes the auth response.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	token, err := h.Sessions.CreateSession(r.Context(), user.ID)
	if err != nil {
		h.Logger.Error("create session failed", "user_id", user.ID, "error", err)
		serverError(w)
		return
	}

	h.setTokenCookie(w, token, services.SessionDuration)
	writeJSON(w, status, AuthResponse{User: publicUser(user), Token: token})
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := utils.ValidateUsername(req.Username); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		h.Logger.Error("hash password failed", "error", err)
		serverError(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.Users.CreateUser(ctx, utils.NormalizeUsername(req.Username), hash)
	if err != nil {
		if errors.Is(err, services.ErrUsernameTaken) {
			writeMsg(w, http.StatusConflict, "Username is already taken")
			return
		}
		h.Logger.Error("create user failed", "error", err)
		serverError(w)
		return
	}

	h.Logger.Info("user signed up", "user_id", user.ID)
	h.startSession(w, r, user, http.StatusCreated)
}

// Signin handles POST /api/auth/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeMsg(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.Users.FindByUsername(ctx, utils.NormalizeUsername(req.Username))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeMsg(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.Logger.Error("find user failed", "error", err)
		serverError(w)
		return
	}

	valid, err := utils.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !valid {
		writeMsg(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if !user.IsActive {
		writeMsg(w, http.StatusForbidden, "Account is inactive")
		return
	}

	h.startSession(w, r, user, http.StatusOK)
}

// Signout handles POST /api/auth/signout. It succeeds without a session.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.ExtractToken(r); token != "" {
		if err := h.Sessions.InvalidateSession(r.Context(), token); err != nil {
			h.Logger.Error("invalidate session failed", "error", err)
			serverError(w)
			return
		}
	}

	h.setTokenCookie(w, "", -time.Second)
	writeMsg(w, http.StatusOK, "Signed out")
}

// Me handles GET /api/auth/me (authenticated)
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.Users.FindByID(ctx, callerID(r))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeMsg(w, http.StatusNotFound, "User not found")
			return
		}
		h.Logger.Error("find user failed", "error", err)
		serverError(w)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: publicUser(user)})
}

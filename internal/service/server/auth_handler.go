package server

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kaze-kaze/file-transfer/internal/config"
	"github.com/kaze-kaze/file-transfer/internal/security"
	"github.com/kaze-kaze/file-transfer/internal/util/ratelimiter"
)

// AuthHandler handles login, logout and session introspection.
type AuthHandler struct {
	auth     config.AuthConfig
	sessions *SessionManager
	limiter  *ratelimiter.Limiter
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth config.AuthConfig, sessions *SessionManager, limiter *ratelimiter.Limiter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions, limiter: limiter, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin handles POST /api/login. Failed attempts are throttled
// per client IP.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ip := clientIP(r)
	if !h.limiter.Allowed(ip) {
		retryAfter := int(h.limiter.RemainingLockout(ip).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSONError(w, http.StatusTooManyRequests, "Too many failed attempts, try again later")
		return
	}

	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	if username != h.auth.Username ||
		!security.VerifyPassword(req.Password, h.auth.Salt, h.auth.PasswordHash, h.auth.Iterations) {
		h.limiter.RecordFailure(ip)
		h.logger.Warn("failed login attempt",
			zap.String("username", username),
			zap.String("client_ip", ip))
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.limiter.RecordSuccess(ip)

	token, err := h.sessions.Create(username)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful"})
}

// HandleLogout handles POST /api/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	h.sessions.Invalidate(sessionTokenFromRequest(r))
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// HandleSession handles GET /api/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	session, ok := h.sessions.Get(sessionTokenFromRequest(r))
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":   session.Username,
		"expires_at": session.ExpiresAt.Unix(),
	})
}

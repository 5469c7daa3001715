// Package adminapi exposes the agent's only operator-facing HTTP surface: a
// bcrypt-token-guarded endpoint to pause/resume the sweep scheduler and
// inspect current escrow depths. There is no dashboard, no session
// management, and no multi-user model — one shared bearer token compared
// against a bcrypt hash configured at startup.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Will-Luck/sally-agent/internal/logging"
)

// EscrowReader reports the current depth of each named escrow table.
type EscrowReader interface {
	Depths() map[string]int
}

// SettingsStore reads and writes the "paused" runtime setting the scheduler
// checks on every sweep.
type SettingsStore interface {
	GetSetting(key string) (string, bool)
	SetSetting(key, value string) error
}

// Handler serves the admin endpoints. TokenHash is a bcrypt hash of the
// single shared bearer token; an empty TokenHash disables the admin
// surface entirely (every request is rejected).
type Handler struct {
	Settings  SettingsStore
	Escrow    EscrowReader
	TokenHash string
	Log       *logging.Logger
}

// Mux returns an http.ServeMux with the admin routes registered, suitable
// for mounting under a path prefix in the main server mux.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.authed(h.handleStatus))
	mux.HandleFunc("POST /pause", h.authed(h.handlePause))
	mux.HandleFunc("POST /resume", h.authed(h.handleResume))
	return mux
}

func (h *Handler) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.TokenHash == "" {
			writeError(w, http.StatusServiceUnavailable, "admin api disabled: no token configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok || bcrypt.CompareHashAndPassword([]byte(h.TokenHash), []byte(token)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing admin token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimPrefix(auth, prefix), true
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	paused, _ := h.Settings.GetSetting("paused")
	writeJSON(w, http.StatusOK, map[string]any{
		"paused": paused == "true",
		"escrow": h.Escrow.Depths(),
	})
}

func (h *Handler) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := h.Settings.SetSetting("paused", "true"); err != nil {
		writeError(w, http.StatusInternalServerError, "pause scheduler: "+err.Error())
		return
	}
	h.Log.Info("sweep scheduler paused via admin api")
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handler) handleResume(w http.ResponseWriter, _ *http.Request) {
	if err := h.Settings.SetSetting("paused", "false"); err != nil {
		writeError(w, http.StatusInternalServerError, "resume scheduler: "+err.Error())
		return
	}
	h.Log.Info("sweep scheduler resumed via admin api")
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HashToken returns a bcrypt hash of token, suitable for AGENT_ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

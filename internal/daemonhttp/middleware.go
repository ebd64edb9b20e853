package daemonhttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// envelope is the JSON shape every endpoint but /run (SSE), /mcp and
// /health (a bare status object) returns.
type envelope struct {
	Success bool `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// withAuth short-circuits with 401 before any other processing when a
// token is configured and the request's bearer token doesn't match.
func (a *App) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Token != "" && extractBearerToken(r) != a.cfg.Token {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// withRateLimit gates /run and /serve only, per §2B.
func (a *App) withRateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow() {
			writeErr(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (a *App) requireReady(w http.ResponseWriter) bool {
	if !a.ready.Load() {
		writeErr(w, http.StatusServiceUnavailable, "daemon state not ready")
		return false
	}
	return true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

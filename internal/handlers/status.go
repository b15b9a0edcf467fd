package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"opsmon/internal/state"
)

// StatusProvider exposes the latest monitor status
type StatusProvider interface {
	Snapshot() state.Status
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	state.Status
	Runtime map[string]any `json:"runtime,omitempty"`
}

// StatusHandler serves the latest readings, flags and failures
type StatusHandler struct {
	store StatusProvider
	// runtime adds process counters such as scheduler and sink stats
	runtime func() map[string]any
}

func NewStatusHandler(store StatusProvider, runtime func() map[string]any) *StatusHandler {
	return &StatusHandler{store: store, runtime: runtime}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := StatusResponse{Status: h.store.Snapshot()}
	if h.runtime != nil {
		resp.Runtime = h.runtime()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthHandler reports unhealthy once no cycle has completed within maxAge
type HealthHandler struct {
	store  StatusProvider
	maxAge time.Duration
	now    func() time.Time
}

func NewHealthHandler(store StatusProvider, maxAge time.Duration) *HealthHandler {
	return &HealthHandler{store: store, maxAge: maxAge, now: time.Now}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	now := h.now()

	last := snap.LastCycle
	if last.IsZero() {
		last = snap.StartedAt
	}

	body := map[string]any{
		"status":    "healthy",
		"timestamp": now.UTC().Format(time.RFC3339),
		"cycles":    snap.Cycles,
	}
	if !snap.LastCycle.IsZero() {
		body["last_cycle"] = snap.LastCycle.UTC().Format(time.RFC3339)
	}

	if h.maxAge > 0 && now.Sub(last) > h.maxAge {
		body["status"] = "stale"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bitgeese/sequential-questioning/internal/conversation"
)

// Session listing bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000
)

// SessionStore lists user sessions. Implemented by *conversation.Store.
type SessionStore interface {
	ListSessions(ctx context.Context, limit, offset int32) ([]*conversation.UserSession, error)
}

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	store  SessionStore
	logger *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store SessionStore, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
}

// list returns user sessions with pagination support.
// Query parameters:
//   - limit: maximum number of sessions to return (default: 100, max: 1000)
//   - offset: number of sessions to skip (default: 0)
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.logger.Error("session store is nil")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	sessions, err := h.store.ListSessions(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
		"limit":    limit,
		"offset":   offset,
	})
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

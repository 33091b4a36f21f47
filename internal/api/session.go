package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/session"
)

// sessionHandler serves read-only session endpoints.
type sessionHandler struct {
	store  session.Store
	logger log.Logger
}

// sessionSummary is one entry in the session list.
type sessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// list handles GET /api/sessions, most recently updated first.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sessions", h.logger)
		return
	}

	summaries := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		summaries[i] = sessionSummary{
			ID:        s.ID,
			Title:     s.Title(),
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries}, h.logger)
}

// get handles GET /api/sessions/{id}, returning the full transcript.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("failed to load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load session", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, sess, h.logger)
}

package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/borichat/internal/identity"
)

// SessionHandler exposes stored transcripts and the live widget state.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions/{id}/messages", h.ListMessages)
		r.Get("/widget", h.GetWidget)
	})
}

// ListMessages returns the stored transcript of a session.
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	cs, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load chat session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if cs == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to list chat messages", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session":  cs,
		"messages": messages,
	})
}

// GetWidget returns the state of the caller's open widget. The optional
// recent query parameter limits the transcript to the last n entries.
func (h *SessionHandler) GetWidget(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())

	widget := h.widgets.Get(visitorID, tabID)
	if widget == nil {
		Error(w, http.StatusNotFound, "no open widget")
		return
	}

	state, err := widget.State(r.Context())
	if err != nil {
		Error(w, http.StatusGone, "widget closed")
		return
	}

	snap := widget.Snapshot()
	if n, err := strconv.Atoi(r.URL.Query().Get("recent")); err == nil && n >= 0 {
		snap.Session.Transcript = snap.Session.RecentEntries(n)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"state":   state.String(),
		"session": snap.Session,
		"run":     snap.Run,
	})
}

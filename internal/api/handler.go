// Package api provides HTTP handlers for the BoriChat API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/borichat/internal/bridge"
	"github.com/ashureev/borichat/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo    store.Repository
	widgets *bridge.Manager
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, widgets *bridge.Manager) *Handler {
	return &Handler{repo: repo, widgets: widgets}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

var errBadBody = errors.New("invalid request body")

// decode reads a bounded JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

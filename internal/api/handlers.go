// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"respack/internal/errors"
	"respack/internal/history"
)

// DefaultListLimit caps GET /api/runs when no limit is given.
const DefaultListLimit = 20

// RunBox is the read side of the run history.
type RunBox interface {
	Get(id string) (*history.Run, error)
	List(limit int) ([]*history.Run, error)
}

type RunHandler struct {
	box RunBox
}

func NewRunHandler(box RunBox) *RunHandler {
	return &RunHandler{box: box}
}

// Register mounts the handlers on mux.
func (h *RunHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", Health)
	mux.HandleFunc("GET /api/runs", h.List)
	mux.HandleFunc("GET /api/runs/{id}", h.Get)
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.box.List(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	run, err := h.box.Get(id)
	if err != nil {
		if errors.Is(err, errors.ErrorTypeNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

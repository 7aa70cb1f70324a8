package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vibe-presenting/server/internal/models"
	"github.com/vibe-presenting/server/internal/services"
)

// PresentationHandler handles HTTP requests for presentations and rooms
type PresentationHandler struct {
	store services.Store
	rooms *services.WebSocketService
}

// NewPresentationHandler creates a new presentation handler
func NewPresentationHandler(store services.Store, rooms *services.WebSocketService) *PresentationHandler {
	return &PresentationHandler{
		store: store,
		rooms: rooms,
	}
}

// ListPresentationsResponse represents the response for listing presentations
type ListPresentationsResponse struct {
	Success       bool                         `json:"success"`
	Presentations []models.PresentationSummary `json:"presentations"`
}

// ListPresentations returns the stored presentations, newest first
// GET /api/presentations
func (h *PresentationHandler) ListPresentations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListPresentations(r.Context())
	if err != nil {
		slog.Error("failed to list presentations", "error", err)
		http.Error(w, "failed to list presentations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListPresentationsResponse{
		Success:       true,
		Presentations: summaries,
	})
}

// GetPresentation returns one stored presentation document
// GET /api/presentations/{id}
func (h *PresentationHandler) GetPresentation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := h.store.GetPresentation(r.Context(), id)
	if errors.Is(err, models.ErrPresentationNotFound) {
		http.Error(w, "presentation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to load presentation", "id", id, "error", err)
		http.Error(w, "failed to load presentation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetRoom returns the live snapshot of a room as an admin sees it
// GET /api/rooms/{room}
func (h *PresentationHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["room"]

	coord, err := h.rooms.Room(name)
	if errors.Is(err, services.ErrInvalidRoom) {
		http.Error(w, "invalid room name", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("failed to open room", "room", name, "error", err)
		http.Error(w, "room unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap, err := coord.Snapshot(ctx, models.RoleAdmin)
	if err != nil {
		slog.Error("failed to read room snapshot", "room", name, "error", err)
		http.Error(w, "room unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Health reports liveness
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

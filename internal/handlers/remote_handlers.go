package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vibe-presenting/server/internal/models"
	"github.com/vibe-presenting/server/internal/services"
)

// RemotePresser moves a room's active slide on behalf of a clicker
type RemotePresser interface {
	HandleRemotePress(ctx context.Context, room string, action models.RemoteAction) (bool, error)
}

// RemoteHandler handles HTTP requests for presenter clicker remotes
type RemoteHandler struct {
	rooms   RemotePresser
	remotes *services.RemoteService
}

// NewRemoteHandler creates a new remote handler
func NewRemoteHandler(rooms RemotePresser, remotes *services.RemoteService) *RemoteHandler {
	return &RemoteHandler{
		rooms:   rooms,
		remotes: remotes,
	}
}

// RemotePressRequest is sent by the clicker firmware
type RemotePressRequest struct {
	MACAddress string `json:"macAddress"`
	Action     string `json:"action,omitempty"`
}

// RemotePressResponse reports what a press did
type RemotePressResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Processed bool   `json:"processed"` // Whether the active slide moved
}

// RegisterRemoteRequest registers a clicker
type RegisterRemoteRequest struct {
	MACAddress string `json:"macAddress"`
	Name       string `json:"name,omitempty"`
}

// AssignRemoteRequest binds a clicker to a room
type AssignRemoteRequest struct {
	MACAddress string `json:"macAddress"`
	Room       string `json:"room"`
}

// SetRemoteActiveRequest enables or disables a clicker
type SetRemoteActiveRequest struct {
	MACAddress string `json:"macAddress"`
	Active     *bool  `json:"active"`
}

// PressRemote handles press events from clickers. Unknown remotes are
// registered on their first press.
// POST /api/remotes/press
func (h *RemoteHandler) PressRemote(w http.ResponseWriter, r *http.Request) {
	var req RemotePressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	action, err := models.ParseRemoteAction(req.Action)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	remote, err := h.remotes.RecordPress(r.Context(), req.MACAddress)
	if errors.Is(err, models.ErrRemoteNotFound) {
		slog.Info("unknown remote pressed, registering", "mac", req.MACAddress)
		if _, err = h.remotes.Register(r.Context(), req.MACAddress, ""); err == nil {
			remote, err = h.remotes.RecordPress(r.Context(), req.MACAddress)
		}
	}
	if err != nil {
		status := remoteErrorStatus(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			slog.Error("remote press failed", "mac", req.MACAddress, "error", err)
			message = "internal error"
		}
		writeJSON(w, status, RemotePressResponse{Success: false, Message: message})
		return
	}

	if remote.Room == "" {
		writeJSON(w, http.StatusOK, RemotePressResponse{Success: true, Message: "Remote not assigned to a room"})
		return
	}

	moved, err := h.rooms.HandleRemotePress(r.Context(), remote.Room, action)
	if err != nil {
		slog.Warn("remote press not processed", "mac", remote.MACAddress, "room", remote.Room, "error", err)
		writeJSON(w, http.StatusOK, RemotePressResponse{Success: true, Message: err.Error()})
		return
	}

	message := "Slide changed"
	if !moved {
		message = "Already at the edge of the presentation"
	}
	writeJSON(w, http.StatusOK, RemotePressResponse{Success: true, Message: message, Processed: moved})
}

// RegisterRemote registers a clicker
// POST /api/remotes/register
func (h *RemoteHandler) RegisterRemote(w http.ResponseWriter, r *http.Request) {
	var req RegisterRemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	remote, err := h.remotes.Register(r.Context(), req.MACAddress, req.Name)
	if err != nil {
		remoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote)
}

// AssignRemote binds a clicker to a room
// POST /api/remotes/assign
func (h *RemoteHandler) AssignRemote(w http.ResponseWriter, r *http.Request) {
	var req AssignRemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.MACAddress == "" || req.Room == "" {
		http.Error(w, "MAC address and room are required", http.StatusBadRequest)
		return
	}

	remote, err := h.remotes.Assign(r.Context(), req.MACAddress, req.Room)
	if err != nil {
		remoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote)
}

// UnassignRemote releases a clicker from its room
// POST /api/remotes/unassign
func (h *RemoteHandler) UnassignRemote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MACAddress string `json:"macAddress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.MACAddress == "" {
		http.Error(w, "MAC address is required", http.StatusBadRequest)
		return
	}

	if err := h.remotes.Unassign(r.Context(), req.MACAddress); err != nil {
		remoteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetRemoteActive enables or disables a clicker
// POST /api/remotes/active
func (h *RemoteHandler) SetRemoteActive(w http.ResponseWriter, r *http.Request) {
	var req SetRemoteActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.MACAddress == "" || req.Active == nil {
		http.Error(w, "MAC address and active are required", http.StatusBadRequest)
		return
	}

	if err := h.remotes.SetActive(r.Context(), req.MACAddress, *req.Active); err != nil {
		remoteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRemotes returns every registered clicker
// GET /api/remotes
func (h *RemoteHandler) ListRemotes(w http.ResponseWriter, r *http.Request) {
	remotes, err := h.remotes.List(r.Context())
	if err != nil {
		remoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remotes)
}

// GetRemotesByRoom returns the clickers bound to a room
// GET /api/remotes/room/{room}
func (h *RemoteHandler) GetRemotesByRoom(w http.ResponseWriter, r *http.Request) {
	remotes, err := h.remotes.ListByRoom(r.Context(), mux.Vars(r)["room"])
	if err != nil {
		remoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remotes)
}

// GetRemote returns a clicker by MAC address
// GET /api/remotes/{macAddress}
func (h *RemoteHandler) GetRemote(w http.ResponseWriter, r *http.Request) {
	remote, err := h.remotes.Get(r.Context(), mux.Vars(r)["macAddress"])
	if err != nil {
		remoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote)
}

// DeleteRemote removes a clicker
// DELETE /api/remotes/{macAddress}
func (h *RemoteHandler) DeleteRemote(w http.ResponseWriter, r *http.Request) {
	if err := h.remotes.Delete(r.Context(), mux.Vars(r)["macAddress"]); err != nil {
		remoteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// remoteError reports caller mistakes verbatim and hides store failures
func remoteError(w http.ResponseWriter, err error) {
	status := remoteErrorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("remote store failure", "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func remoteErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrRemoteNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRemoteInactive):
		return http.StatusForbidden
	case errors.Is(err, models.ErrValidation), errors.Is(err, services.ErrInvalidRoom):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

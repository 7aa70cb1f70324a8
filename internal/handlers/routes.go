package handlers

import (
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	"github.com/vibe-presenting/server/internal/middleware"
)

// Routes bundles the handlers mounted by SetupRoutes
type Routes struct {
	WebSocket      *WebSocketHandler
	Presentations  *PresentationHandler
	Media          *MediaHandler
	Remotes        *RemoteHandler
	Static         http.Handler
	MCP            http.Handler
	AllowedOrigins []string
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(rt Routes) *mux.Router {
	r := mux.NewRouter()

	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestLogger)

	r.HandleFunc("/health", Health).Methods(http.MethodGet)

	// WebSocket endpoint
	r.HandleFunc("/ws/{room}", rt.WebSocket.ServeWS).Methods(http.MethodGet)

	// REST API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.CORS(rt.AllowedOrigins))
	api.HandleFunc("/presentations", rt.Presentations.ListPresentations).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/presentations/{id}", rt.Presentations.GetPresentation).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/rooms/{room}", rt.Presentations.GetRoom).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/image", rt.Media.GenerateImage).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	api.HandleFunc("/audio/stream", rt.Media.TranscribeAudio).Methods(http.MethodPost, http.MethodOptions)

	// Clicker remotes, available when the SQLite database is open
	if rt.Remotes != nil {
		api.HandleFunc("/remotes", rt.Remotes.ListRemotes).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/remotes/press", rt.Remotes.PressRemote).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/remotes/register", rt.Remotes.RegisterRemote).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/remotes/assign", rt.Remotes.AssignRemote).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/remotes/unassign", rt.Remotes.UnassignRemote).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/remotes/active", rt.Remotes.SetRemoteActive).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/remotes/room/{room}", rt.Remotes.GetRemotesByRoom).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/remotes/{macAddress}", rt.Remotes.GetRemote).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/remotes/{macAddress}", rt.Remotes.DeleteRemote).Methods(http.MethodDelete, http.MethodOptions)
	}

	// Agent tools
	if rt.MCP != nil {
		r.PathPrefix("/mcp").Handler(middleware.CORS(rt.AllowedOrigins)(rt.MCP))
	}

	// Frontend
	if rt.Static != nil {
		r.PathPrefix("/").Handler(rt.Static)
	}

	return r
}

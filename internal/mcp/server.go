package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vibe-presenting/server/internal/models"
	"github.com/vibe-presenting/server/internal/services"
)

const callTimeout = 30 * time.Second

// Server exposes the room transitions as MCP tools so an AI agent can drive
// a presentation the same way a presenter does
type Server struct {
	mcp   *server.MCPServer
	rooms *services.WebSocketService
	store services.Store

	defaultRoom string
}

// Deps holds the services the tools operate on
type Deps struct {
	Rooms       *services.WebSocketService
	Store       services.Store
	DefaultRoom string
	Version     string
}

// New creates the MCP server and registers every tool
func New(deps Deps) *Server {
	if deps.DefaultRoom == "" {
		deps.DefaultRoom = "main"
	}
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}
	s := &Server{
		rooms:       deps.Rooms,
		store:       deps.Store,
		defaultRoom: deps.DefaultRoom,
	}

	s.mcp = server.NewMCPServer(
		"vibe-presenting",
		deps.Version,
		server.WithToolCapabilities(true),
	)

	s.registerPresentationTools()
	s.registerSlideTools()
	s.registerCollaborationTools()

	return s
}

// HTTPHandler returns the streamable HTTP transport for the /mcp route
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult wraps text in a tool result
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) roomArg(req mcp.CallToolRequest) string {
	return req.GetString("room", s.defaultRoom)
}

// dispatch sends one inbound message to the room as an admin and waits for
// the transition to finish. Frames addressed to the agent are collected.
func (s *Server) dispatch(ctx context.Context, room string, msg map[string]any) (*agentClient, error) {
	coord, err := s.rooms.Room(room)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client := newAgentClient()
	if err := coord.Do(ctx, client, raw); err != nil {
		return client, err
	}
	return client, nil
}

// snapshot returns the admin view of a room
func (s *Server) snapshot(ctx context.Context, room string) (models.Snapshot, error) {
	coord, err := s.rooms.Room(room)
	if err != nil {
		return models.Snapshot{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return coord.Snapshot(ctx, models.RoleAdmin)
}

// dispatchAndSnapshot runs a transition and returns the resulting state
func (s *Server) dispatchAndSnapshot(ctx context.Context, room string, msg map[string]any) (*mcp.CallToolResult, error) {
	if _, err := s.dispatch(ctx, room, msg); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("read room: %w", err)
	}
	return jsonResult(snap)
}

// agentClient is the connection an MCP tool call acts through. It is never
// attached to the room, so it only sees replies to its own messages.
type agentClient struct {
	id string

	mu     sync.Mutex
	events []models.Event
}

func newAgentClient() *agentClient {
	return &agentClient{id: "mcp-" + uuid.NewString()}
}

func (c *agentClient) ID() string        { return c.id }
func (c *agentClient) Role() models.Role { return models.RoleAdmin }

func (c *agentClient) Send(frame []byte) bool {
	var event models.Event
	if err := json.Unmarshal(frame, &event); err != nil {
		return false
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return true
}

// find returns the first collected event of type t
func (c *agentClient) find(t models.EventType) (models.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type == t {
			return e, true
		}
	}
	return models.Event{}, false
}

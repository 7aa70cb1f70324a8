package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibe-presenting/server/internal/models"
)

func (s *Server) registerPresentationTools() {
	// ── list_presentations ─────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_presentations",
		mcp.WithDescription("List stored presentations, most recently updated first"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListPresentations)

	// ── get_room ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_room",
		mcp.WithDescription("Get the live state of a room: its presentation, active slide, config and connection count"),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleGetRoom)

	// ── create_presentation ────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_presentation",
		mcp.WithDescription("Create a new presentation in a room. Slides are generated in the background and appear in later get_room calls."),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithString("name",
			mcp.Description("Name of the presentation"),
			mcp.Required(),
		),
		mcp.WithString("description",
			mcp.Description("What the presentation is about"),
			mcp.Required(),
		),
	), s.handleCreatePresentation)
}

func boolPtr(v bool) *bool { return &v }

func (s *Server) handleListPresentations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries, err := s.store.ListPresentations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presentations: %w", err)
	}
	return jsonResult(summaries)
}

func (s *Server) handleGetRoom(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.snapshot(ctx, s.roomArg(req))
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return jsonResult(snap)
}

func (s *Server) handleCreatePresentation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	description := req.GetString("description", "")
	if name == "" || description == "" {
		return nil, fmt.Errorf("name and description are required")
	}

	room := s.roomArg(req)
	client, err := s.dispatch(ctx, room, map[string]any{
		"type":        models.MsgCreatePresentation,
		"name":        name,
		"description": description,
	})
	if err != nil {
		return nil, fmt.Errorf("create presentation: %w", err)
	}

	created, ok := client.find(models.EventCreatedPresentation)
	if !ok {
		return nil, fmt.Errorf("create presentation: room did not confirm creation")
	}
	snap, err := s.snapshot(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("read room: %w", err)
	}
	return jsonResult(map[string]any{
		"id":   created.ID,
		"room": snap,
	})
}

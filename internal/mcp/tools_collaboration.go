package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibe-presenting/server/internal/models"
)

func (s *Server) registerCollaborationTools() {
	// ── toggle_collaboration ───────────────────────────
	s.mcp.AddTool(mcp.NewTool("toggle_collaboration",
		mcp.WithDescription("Turn attendee feedback on or off for a room"),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithBoolean("enabled",
			mcp.Description("true to accept feedback messages"),
			mcp.Required(),
		),
	), s.handleToggleCollaboration)

	// ── consolidate_feedback ───────────────────────────
	s.mcp.AddTool(mcp.NewTool("consolidate_feedback",
		mcp.WithDescription("Ask the model to turn the feedback collected on a slide into an edit of that slide. The edit is applied in the background."),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithString("slideId",
			mcp.Description("ID of the slide whose feedback should be consolidated"),
			mcp.Required(),
		),
	), s.handleConsolidateFeedback)
}

func (s *Server) handleToggleCollaboration(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	enabled, ok := args["enabled"].(bool)
	if !ok {
		return nil, fmt.Errorf("enabled is required")
	}
	return s.dispatchAndSnapshot(ctx, s.roomArg(req), map[string]any{
		"type":    models.MsgToggleCollaboration,
		"enabled": enabled,
	})
}

func (s *Server) handleConsolidateFeedback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID := req.GetString("slideId", "")
	if slideID == "" {
		return nil, fmt.Errorf("slideId is required")
	}
	if _, err := s.dispatch(ctx, s.roomArg(req), map[string]any{
		"type":    models.MsgConsolidateMessages,
		"slideId": slideID,
	}); err != nil {
		return nil, fmt.Errorf("consolidate feedback: %w", err)
	}
	return textResult(fmt.Sprintf("Consolidation started for slide %s", slideID)), nil
}

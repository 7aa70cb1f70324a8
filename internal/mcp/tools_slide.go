package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibe-presenting/server/internal/models"
)

func (s *Server) registerSlideTools() {
	// ── set_active_slide ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_active_slide",
		mcp.WithDescription("Show a slide to everyone in the room. Omit slideId to return to the overview."),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithString("slideId", mcp.Description("ID of the slide to show")),
	), s.handleSetActiveSlide)

	// ── navigate_slide ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("navigate_slide",
		mcp.WithDescription("Move to the next or previous slide. Does nothing at the first or last slide."),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithString("direction",
			mcp.Description("next or previous"),
			mcp.Enum("next", "previous"),
			mcp.Required(),
		),
		mcp.WithString("currentSlideId", mcp.Description("Slide to move from (defaults to the active slide)")),
	), s.handleNavigateSlide)

	// ── update_slide ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_slide",
		mcp.WithDescription("Update fields of one slide. Unlisted fields keep their value."),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithString("slideId",
			mcp.Description("ID of the slide to update"),
			mcp.Required(),
		),
		mcp.WithString("fields",
			mcp.Description(`JSON object with the fields to change, e.g. {"title":"New title","markdownContent":"- point"}. Keys: design, title, subtitle, topic, description, speakerNotes, markdownContent, markdownContentLeft, markdownContentRight, image {prompt,url}, caption, textPosition, textColor, overlayText`),
			mcp.Required(),
		),
	), s.handleUpdateSlide)

	// ── reorder_slides ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("reorder_slides",
		mcp.WithDescription("Move the listed slides to the front in the given order; unlisted slides follow in their current order"),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithString("slideIds",
			mcp.Description("Comma-separated slide IDs"),
			mcp.Required(),
		),
	), s.handleReorderSlides)

	// ── delete_slide ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_slide",
		mcp.WithDescription("Delete a slide from the presentation"),
		mcp.WithString("room", mcp.Description("Room name (defaults to the main room)")),
		mcp.WithString("slideId",
			mcp.Description("ID of the slide to delete"),
			mcp.Required(),
		),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteSlide)
}

func (s *Server) handleSetActiveSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var id any
	if slideID := req.GetString("slideId", ""); slideID != "" {
		id = slideID
	}
	return s.dispatchAndSnapshot(ctx, s.roomArg(req), map[string]any{
		"type": models.MsgSetActiveSlide,
		"id":   id,
	})
}

func (s *Server) handleNavigateSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var msgType models.MessageType
	switch req.GetString("direction", "") {
	case "next":
		msgType = models.MsgNavigateNextSlide
	case "previous":
		msgType = models.MsgNavigatePreviousSlide
	default:
		return nil, fmt.Errorf("direction must be next or previous")
	}

	room := s.roomArg(req)
	current := req.GetString("currentSlideId", "")
	if current == "" {
		snap, err := s.snapshot(ctx, room)
		if err != nil {
			return nil, fmt.Errorf("read room: %w", err)
		}
		if snap.ActiveSlideID == nil {
			return nil, fmt.Errorf("no active slide; pass currentSlideId")
		}
		current = *snap.ActiveSlideID
	}

	return s.dispatchAndSnapshot(ctx, room, map[string]any{
		"type":           msgType,
		"currentSlideId": current,
	})
}

func (s *Server) handleUpdateSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID := req.GetString("slideId", "")
	if slideID == "" {
		return nil, fmt.Errorf("slideId is required")
	}

	msg := map[string]any{}
	if err := json.Unmarshal([]byte(req.GetString("fields", "")), &msg); err != nil {
		return nil, fmt.Errorf("fields must be a JSON object: %w", err)
	}
	msg["type"] = models.MsgUpdateSlide
	msg["slideId"] = slideID

	return s.dispatchAndSnapshot(ctx, s.roomArg(req), msg)
}

func (s *Server) handleReorderSlides(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := []string{}
	for _, id := range strings.Split(req.GetString("slideIds", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("slideIds is required")
	}

	return s.dispatchAndSnapshot(ctx, s.roomArg(req), map[string]any{
		"type":     models.MsgReorderSlides,
		"slideIds": ids,
	})
}

func (s *Server) handleDeleteSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID := req.GetString("slideId", "")
	if slideID == "" {
		return nil, fmt.Errorf("slideId is required")
	}
	return s.dispatchAndSnapshot(ctx, s.roomArg(req), map[string]any{
		"type":    models.MsgDeleteSlide,
		"slideId": slideID,
	})
}

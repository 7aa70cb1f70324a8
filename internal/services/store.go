package services

import (
	"context"

	"github.com/vibe-presenting/server/internal/models"
)

// Store persists presentation documents and room state
type Store interface {
	SavePresentation(ctx context.Context, p *models.Presentation) error
	GetPresentation(ctx context.Context, id string) (*models.Presentation, error)
	ListPresentations(ctx context.Context) ([]models.PresentationSummary, error)
	SaveRoom(ctx context.Context, room *models.RoomState) error
	GetRoom(ctx context.Context, name string) (*models.RoomState, error)
}

// FeedbackStore keeps the append-only collaboration messages of each slide
type FeedbackStore interface {
	AppendFeedback(ctx context.Context, msg *models.CollaborationMessage) error
	ListFeedback(ctx context.Context, presentationID, slideID string) ([]models.CollaborationMessage, error)
}

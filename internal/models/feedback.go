package models

// CollaborationMessage is a piece of chat feedback attached to a slide
type CollaborationMessage struct {
	ID             string `json:"id"`
	PresentationID string `json:"presentationId"`
	SlideID        string `json:"slideId"`
	AuthorRole     Role   `json:"authorRole"`
	AuthorID       string `json:"authorId"`
	Body           string `json:"body"`
	CreatedAt      int64  `json:"createdAt"`
}

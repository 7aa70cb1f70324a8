package models

// EventType discriminates outbound frames
type EventType string

const (
	EventAllPresentations      EventType = "all-presentations"
	EventCreatedPresentation   EventType = "created-presentation"
	EventPresentationUpdated   EventType = "presentation-updated"
	EventError                 EventType = "error"
	EventInitialConnections    EventType = "initial-connections"
	EventConfigUpdated         EventType = "config-updated"
	EventUpdatedSlide          EventType = "updated-slide"
	EventCollaborationMessages EventType = "collaboration-messages"

	// Legacy schedule frames. They are part of the wire vocabulary but the
	// server never sends them.
	EventSchedules   EventType = "schedules"
	EventSchedule    EventType = "schedule"
	EventRunSchedule EventType = "run-schedule"
)

// Event is one outbound frame
type Event struct {
	Type EventType `json:"type"`
	ID   string    `json:"id,omitempty"`
	Data any       `json:"data,omitempty"`
}

// ConnectionsData is the payload of initial-connections
type ConnectionsData struct {
	ConnectionCount int `json:"connectionCount"`
}

// ConfigData is the payload of config-updated
type ConfigData struct {
	Collaboration CollaborationMode `json:"collaboration"`
}

// UpdatedSlideData is the payload of updated-slide
type UpdatedSlideData struct {
	SlideID string `json:"slideId"`
	Slide   Slide  `json:"slide"`
}

// CollaborationData is the payload of collaboration-messages
type CollaborationData struct {
	SlideID  string                 `json:"slideId"`
	Messages []CollaborationMessage `json:"messages"`
}

// ErrorEvent builds an error frame
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Data: err.Error()}
}

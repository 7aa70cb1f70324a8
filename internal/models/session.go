package models

// Status is the transient processing indicator of a room
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// CollaborationMode toggles attendee feedback on slides
type CollaborationMode string

const (
	CollaborationActive   CollaborationMode = "active"
	CollaborationInactive CollaborationMode = "inactive"
)

// NotesVisibility controls who receives speaker notes
type NotesVisibility string

const (
	NotesPublic  NotesVisibility = "public"
	NotesPrivate NotesVisibility = "private"
)

// Role is the author role of a connection
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAttendee Role = "attendee"
)

// ParseRole maps a query value to a Role, defaulting to attendee
func ParseRole(v string) Role {
	if Role(v) == RoleAdmin {
		return RoleAdmin
	}
	return RoleAttendee
}

// Config holds the feature toggles of a room
type Config struct {
	SidebarNavigation      bool              `json:"sidebarNavigation"`
	Collaboration          CollaborationMode `json:"collaboration"`
	SpeakerNotesVisibility NotesVisibility   `json:"speakerNotesVisibility"`
}

// DefaultConfig returns the toggles used for a new room
func DefaultConfig() Config {
	return Config{
		SidebarNavigation:      true,
		Collaboration:          CollaborationInactive,
		SpeakerNotesVisibility: NotesPrivate,
	}
}

// RoomState is the persisted part of a room's session
type RoomState struct {
	Room           string  `json:"room"`
	PresentationID string  `json:"presentationId,omitempty"`
	ActiveSlideID  *string `json:"activeSlideId"`
	Config         Config  `json:"config"`
	UpdatedAt      int64   `json:"updatedAt"`
}

// Snapshot is the full state pushed to clients
type Snapshot struct {
	Room            string        `json:"room"`
	ConnectionCount int           `json:"connectionCount"`
	ActiveSlideID   *string       `json:"activeSlideId"`
	Status          Status        `json:"status"`
	Config          Config        `json:"config"`
	Presentation    *Presentation `json:"presentation"`
}

// ForRole returns the snapshot as seen by a connection with the given role.
// Attendees do not receive speaker notes while they are private.
func (s Snapshot) ForRole(role Role) Snapshot {
	if role == RoleAdmin || s.Config.SpeakerNotesVisibility != NotesPrivate || s.Presentation == nil {
		return s
	}
	p := s.Presentation.Clone()
	for i := range p.Slides {
		p.Slides[i].SpeakerNotes = ""
	}
	s.Presentation = p
	return s
}

// StringPtr returns a pointer to a copy of v
func StringPtr(v string) *string {
	return &v
}

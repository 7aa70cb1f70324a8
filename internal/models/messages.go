package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType discriminates inbound client messages
type MessageType string

const (
	MsgPresentationsInit     MessageType = "presentations-init"
	MsgCreatePresentation    MessageType = "create-presentation"
	MsgSetActivePresentation MessageType = "set-active-presentation"
	MsgDeleteSchedule        MessageType = "delete-schedule"
	MsgSetActiveSlide        MessageType = "set-active-slide"
	MsgToggleCollaboration   MessageType = "toggle-collaboration"
	MsgNavigateNextSlide     MessageType = "navigate-next-slide"
	MsgNavigatePreviousSlide MessageType = "navigate-previous-slide"
	MsgUpdateSlide           MessageType = "update-slide"
	MsgReorderSlides         MessageType = "reorder-slides"
	MsgDeleteSlide           MessageType = "delete-slide"
	MsgFeedback              MessageType = "message"
	MsgConsolidateMessages   MessageType = "consolidate-messages"
)

// Inbound is one validated client message
type Inbound interface {
	Type() MessageType
	Validate() error
}

// ParseInbound decodes raw into the typed message named by its "type" field
// and validates it. Every failure is a *ValidationError.
func ParseInbound(raw []byte) (Inbound, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ValidationError{Message: "invalid message format: " + err.Error(), Cause: err}
	}
	if envelope.Type == "" {
		return nil, NewValidationError("message type is required")
	}

	var msg Inbound
	switch envelope.Type {
	case MsgPresentationsInit:
		msg = &PresentationsInit{}
	case MsgCreatePresentation:
		msg = &CreatePresentation{}
	case MsgSetActivePresentation:
		msg = &SetActivePresentation{}
	case MsgDeleteSchedule:
		msg = &DeleteSchedule{}
	case MsgSetActiveSlide:
		msg = &SetActiveSlide{}
	case MsgToggleCollaboration:
		msg = &ToggleCollaboration{}
	case MsgNavigateNextSlide:
		msg = &NavigateSlide{Direction: MsgNavigateNextSlide}
	case MsgNavigatePreviousSlide:
		msg = &NavigateSlide{Direction: MsgNavigatePreviousSlide}
	case MsgUpdateSlide:
		msg = &UpdateSlide{}
	case MsgReorderSlides:
		msg = &ReorderSlides{}
	case MsgDeleteSlide:
		msg = &DeleteSlideRequest{}
	case MsgFeedback:
		msg = &Feedback{}
	case MsgConsolidateMessages:
		msg = &ConsolidateMessages{}
	default:
		return nil, &ValidationError{
			Message: fmt.Sprintf("unknown message type: %q", envelope.Type),
			Cause:   ErrUnknownMessage,
		}
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, &ValidationError{
			Message: fmt.Sprintf("invalid %s message: %v", envelope.Type, err),
			Cause:   err,
		}
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func required(msgType MessageType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(fmt.Sprintf("%s: %s is required", msgType, field))
	}
	return nil
}

// PresentationsInit asks for the current state on first attach
type PresentationsInit struct{}

func (m *PresentationsInit) Type() MessageType { return MsgPresentationsInit }
func (m *PresentationsInit) Validate() error   { return nil }

// CreatePresentation replaces the room's document with a new one
type CreatePresentation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (m *CreatePresentation) Type() MessageType { return MsgCreatePresentation }

func (m *CreatePresentation) Validate() error {
	if err := required(MsgCreatePresentation, "name", m.Name); err != nil {
		return err
	}
	return required(MsgCreatePresentation, "description", m.Description)
}

// SetActivePresentation loads a stored document into the room
type SetActivePresentation struct {
	ID string `json:"id"`
}

func (m *SetActivePresentation) Type() MessageType { return MsgSetActivePresentation }

func (m *SetActivePresentation) Validate() error {
	return required(MsgSetActivePresentation, "id", m.ID)
}

// DeleteSchedule is a legacy message kept for wire compatibility
type DeleteSchedule struct {
	ID string `json:"id"`
}

func (m *DeleteSchedule) Type() MessageType { return MsgDeleteSchedule }
func (m *DeleteSchedule) Validate() error   { return nil }

// SetActiveSlide points the room at a slide, or at the overview when the id
// is null. The id key itself must be present.
type SetActiveSlide struct {
	RawID json.RawMessage `json:"id"`

	slideID *string
}

func (m *SetActiveSlide) Type() MessageType { return MsgSetActiveSlide }

func (m *SetActiveSlide) Validate() error {
	if len(m.RawID) == 0 {
		return NewValidationError("set-active-slide: id is required (string or null)")
	}
	var id *string
	if err := json.Unmarshal(m.RawID, &id); err != nil {
		return NewValidationError("set-active-slide: id must be a string or null")
	}
	m.slideID = id
	return nil
}

// SlideID returns the requested slide id; nil selects the overview
func (m *SetActiveSlide) SlideID() *string {
	return m.slideID
}

// ToggleCollaboration switches attendee feedback on or off
type ToggleCollaboration struct {
	Enabled *bool `json:"enabled"`
}

func (m *ToggleCollaboration) Type() MessageType { return MsgToggleCollaboration }

func (m *ToggleCollaboration) Validate() error {
	if m.Enabled == nil {
		return NewValidationError("toggle-collaboration: enabled is required")
	}
	return nil
}

// NavigateSlide moves the active slide one step from CurrentSlideID
type NavigateSlide struct {
	Direction      MessageType `json:"-"`
	CurrentSlideID string      `json:"currentSlideId"`
}

func (m *NavigateSlide) Type() MessageType { return m.Direction }

func (m *NavigateSlide) Validate() error {
	return required(m.Direction, "currentSlideId", m.CurrentSlideID)
}

// SlidePatch carries the fields of a partial slide update; nil means
// unchanged.
type SlidePatch struct {
	Design               *Design `json:"design,omitempty"`
	Title                *string `json:"title,omitempty"`
	Subtitle             *string `json:"subtitle,omitempty"`
	Topic                *string `json:"topic,omitempty"`
	Description          *string `json:"description,omitempty"`
	SpeakerNotes         *string `json:"speakerNotes,omitempty"`
	MarkdownContent      *string `json:"markdownContent,omitempty"`
	MarkdownContentLeft  *string `json:"markdownContentLeft,omitempty"`
	MarkdownContentRight *string `json:"markdownContentRight,omitempty"`
	Image                *Image  `json:"image,omitempty"`
	Caption              *string `json:"caption,omitempty"`
	TextPosition         *string `json:"textPosition,omitempty"`
	TextColor            *string `json:"textColor,omitempty"`
	OverlayText          *string `json:"overlayText,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p SlidePatch) Empty() bool {
	return p == SlidePatch{}
}

// Apply returns s with the patch merged in. The id and order never change.
func (p SlidePatch) Apply(s Slide) Slide {
	out := s.Clone()
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if p.Design != nil {
		out.Design = *p.Design
	}
	set(&out.Title, p.Title)
	set(&out.Subtitle, p.Subtitle)
	set(&out.Topic, p.Topic)
	set(&out.Description, p.Description)
	set(&out.SpeakerNotes, p.SpeakerNotes)
	set(&out.MarkdownContent, p.MarkdownContent)
	set(&out.MarkdownContentLeft, p.MarkdownContentLeft)
	set(&out.MarkdownContentRight, p.MarkdownContentRight)
	set(&out.Caption, p.Caption)
	set(&out.TextPosition, p.TextPosition)
	set(&out.TextColor, p.TextColor)
	set(&out.OverlayText, p.OverlayText)
	if p.Image != nil {
		img := *p.Image
		out.Image = &img
	}
	return out
}

// PatchFromSlide builds a patch that turns any slide into s
func PatchFromSlide(s Slide) SlidePatch {
	design := s.Design
	p := SlidePatch{
		Design:               &design,
		Title:                StringPtr(s.Title),
		Subtitle:             StringPtr(s.Subtitle),
		Topic:                StringPtr(s.Topic),
		Description:          StringPtr(s.Description),
		SpeakerNotes:         StringPtr(s.SpeakerNotes),
		MarkdownContent:      StringPtr(s.MarkdownContent),
		MarkdownContentLeft:  StringPtr(s.MarkdownContentLeft),
		MarkdownContentRight: StringPtr(s.MarkdownContentRight),
		Caption:              StringPtr(s.Caption),
		TextPosition:         StringPtr(s.TextPosition),
		TextColor:            StringPtr(s.TextColor),
		OverlayText:          StringPtr(s.OverlayText),
	}
	if s.Image != nil {
		img := *s.Image
		p.Image = &img
	}
	return p
}

// UpdateSlide merges partial fields into one slide
type UpdateSlide struct {
	SlideID string `json:"slideId"`
	SlidePatch
}

func (m *UpdateSlide) Type() MessageType { return MsgUpdateSlide }

func (m *UpdateSlide) Validate() error {
	if err := required(MsgUpdateSlide, "slideId", m.SlideID); err != nil {
		return err
	}
	if m.SlidePatch.Empty() {
		return NewValidationError("update-slide: at least one slide field is required")
	}
	if m.Design != nil && !m.Design.Known() {
		return NewValidationError(fmt.Sprintf("update-slide: unknown slide design: %q", *m.Design))
	}
	return nil
}

// ReorderSlides moves the listed slides to the front in the given order
type ReorderSlides struct {
	SlideIDs []string `json:"slideIds"`
}

func (m *ReorderSlides) Type() MessageType { return MsgReorderSlides }

func (m *ReorderSlides) Validate() error {
	if m.SlideIDs == nil {
		return NewValidationError("reorder-slides: slideIds is required")
	}
	for _, id := range m.SlideIDs {
		if strings.TrimSpace(id) == "" {
			return NewValidationError("reorder-slides: slideIds must not contain empty ids")
		}
	}
	return nil
}

// DeleteSlideRequest removes one slide
type DeleteSlideRequest struct {
	SlideID string `json:"slideId"`
}

func (m *DeleteSlideRequest) Type() MessageType { return MsgDeleteSlide }

func (m *DeleteSlideRequest) Validate() error {
	return required(MsgDeleteSlide, "slideId", m.SlideID)
}

// Feedback appends a collaboration message to a slide
type Feedback struct {
	SlideID string `json:"slideId"`
	Message string `json:"message"`
}

func (m *Feedback) Type() MessageType { return MsgFeedback }

func (m *Feedback) Validate() error {
	if err := required(MsgFeedback, "slideId", m.SlideID); err != nil {
		return err
	}
	return required(MsgFeedback, "message", m.Message)
}

// ConsolidateMessages asks the generator to fold a slide's feedback into an
// edit of that slide
type ConsolidateMessages struct {
	SlideID string `json:"slideId"`
}

func (m *ConsolidateMessages) Type() MessageType { return MsgConsolidateMessages }

func (m *ConsolidateMessages) Validate() error {
	return required(MsgConsolidateMessages, "slideId", m.SlideID)
}

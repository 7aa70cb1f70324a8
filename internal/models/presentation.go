package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Design is the layout discriminator of a slide
type Design string

const (
	DesignTitle                   Design = "title"
	DesignOneTextColumn           Design = "one-text-column"
	DesignTwoTextColumns          Design = "two-text-columns"
	DesignTwoColumnsWithImage     Design = "two-columns-with-image"
	DesignFullSizeImage           Design = "full-size-image"
	DesignBigImageWithCaption     Design = "big-image-with-caption"
	DesignBackgroundImageWithText Design = "background-image-with-text"

	// DesignUnknown is reported for any design value outside the known set
	DesignUnknown Design = "unknown"
)

// Designs lists every known slide design in presentation order of the docs
var Designs = []Design{
	DesignTitle,
	DesignOneTextColumn,
	DesignTwoTextColumns,
	DesignTwoColumnsWithImage,
	DesignFullSizeImage,
	DesignBigImageWithCaption,
	DesignBackgroundImageWithText,
}

// Known reports whether d is one of the supported designs
func (d Design) Known() bool {
	for _, known := range Designs {
		if d == known {
			return true
		}
	}
	return false
}

// Image references a slide image either by generation prompt or by URL
type Image struct {
	Prompt string `json:"prompt,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Valid reports whether the image carries a prompt or a URL
func (i *Image) Valid() bool {
	return i != nil && (strings.TrimSpace(i.Prompt) != "" || strings.TrimSpace(i.URL) != "")
}

// Slide is one slide of a presentation. Which optional fields are populated
// depends on Design.
type Slide struct {
	ID           string `json:"id"`
	Order        int    `json:"order"`
	Design       Design `json:"design"`
	Title        string `json:"title,omitempty"`
	Subtitle     string `json:"subtitle,omitempty"`
	Topic        string `json:"topic,omitempty"`
	Description  string `json:"description,omitempty"`
	SpeakerNotes string `json:"speakerNotes"`

	MarkdownContent      string `json:"markdownContent,omitempty"`
	MarkdownContentLeft  string `json:"markdownContentLeft,omitempty"`
	MarkdownContentRight string `json:"markdownContentRight,omitempty"`
	Image                *Image `json:"image,omitempty"`
	Caption              string `json:"caption,omitempty"`
	TextPosition         string `json:"textPosition,omitempty"`
	TextColor            string `json:"textColor,omitempty"`
	OverlayText          string `json:"overlayText,omitempty"`
}

// UnmarshalJSON accepts markdownContent either as a string or as a list of
// strings (full-size-image slides used to carry a list).
func (s *Slide) UnmarshalJSON(data []byte) error {
	type plain Slide
	var raw struct {
		plain
		MarkdownContent json.RawMessage `json:"markdownContent,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Slide(raw.plain)
	s.MarkdownContent = ""
	if len(raw.MarkdownContent) == 0 || string(raw.MarkdownContent) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw.MarkdownContent, &text); err == nil {
		s.MarkdownContent = text
		return nil
	}
	var lines []string
	if err := json.Unmarshal(raw.MarkdownContent, &lines); err != nil {
		return fmt.Errorf("markdownContent must be a string or a list of strings")
	}
	s.MarkdownContent = strings.Join(lines, "\n")
	return nil
}

// Kind returns the slide design, or DesignUnknown for unsupported values
func (s *Slide) Kind() Design {
	if s.Design.Known() {
		return s.Design
	}
	return DesignUnknown
}

// Known reports whether the slide uses a supported design
func (s *Slide) Known() bool {
	return s.Design.Known()
}

// Validate checks the id and the required fields of the slide's design
func (s *Slide) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return NewValidationError("slide id is required")
	}
	if !s.Design.Known() {
		return NewValidationError(fmt.Sprintf("unknown slide design: %q", s.Design))
	}
	if strings.TrimSpace(s.Title) == "" {
		return NewValidationError(fmt.Sprintf("slide %s: title is required", s.ID))
	}

	var missing []string
	switch s.Design {
	case DesignOneTextColumn:
		if s.MarkdownContent == "" {
			missing = append(missing, "markdownContent")
		}
	case DesignTwoTextColumns:
		if s.MarkdownContentLeft == "" {
			missing = append(missing, "markdownContentLeft")
		}
		if s.MarkdownContentRight == "" {
			missing = append(missing, "markdownContentRight")
		}
	case DesignTwoColumnsWithImage:
		if s.MarkdownContent == "" {
			missing = append(missing, "markdownContent")
		}
		if !s.Image.Valid() {
			missing = append(missing, "image")
		}
	case DesignFullSizeImage:
		if !s.Image.Valid() {
			missing = append(missing, "image")
		}
	case DesignBigImageWithCaption:
		if !s.Image.Valid() {
			missing = append(missing, "image")
		}
		if s.Caption == "" {
			missing = append(missing, "caption")
		}
	case DesignBackgroundImageWithText:
		if !s.Image.Valid() {
			missing = append(missing, "image")
		}
		if s.OverlayText == "" {
			missing = append(missing, "overlayText")
		}
		switch s.TextPosition {
		case "", "top", "center", "bottom":
		default:
			return NewValidationError(fmt.Sprintf("slide %s: invalid textPosition %q", s.ID, s.TextPosition))
		}
	}
	if len(missing) > 0 {
		return NewValidationError(fmt.Sprintf("slide %s (%s): missing %s", s.ID, s.Design, strings.Join(missing, ", ")))
	}
	return nil
}

// Clone returns a deep copy of the slide
func (s Slide) Clone() Slide {
	if s.Image != nil {
		img := *s.Image
		s.Image = &img
	}
	return s
}

// Presentation is the document shared by every client of a room
type Presentation struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Slides      []Slide `json:"slides"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// PresentationSummary is the listing entry of a stored presentation
type PresentationSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SlideCount  int    `json:"slideCount"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// NowMillis returns the current time in unix milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NewPresentation creates a document holding a single title slide
func NewPresentation(id, slideID, name, description string) *Presentation {
	now := NowMillis()
	return &Presentation{
		ID:          id,
		Name:        name,
		Description: description,
		Slides: []Slide{{
			ID:           slideID,
			Order:        0,
			Design:       DesignTitle,
			Title:        name,
			Subtitle:     description,
			Topic:        name,
			SpeakerNotes: "",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Summary returns the listing entry for p
func (p *Presentation) Summary() PresentationSummary {
	return PresentationSummary{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		SlideCount:  len(p.Slides),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Clone returns a deep copy of the document
func (p *Presentation) Clone() *Presentation {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Slides = make([]Slide, len(p.Slides))
	for i, s := range p.Slides {
		cp.Slides[i] = s.Clone()
	}
	return &cp
}

// IndexOf returns the position of the slide with the given id, or -1
func (p *Presentation) IndexOf(slideID string) int {
	for i := range p.Slides {
		if p.Slides[i].ID == slideID {
			return i
		}
	}
	return -1
}

// Slide returns the slide with the given id
func (p *Presentation) Slide(slideID string) (*Slide, bool) {
	idx := p.IndexOf(slideID)
	if idx < 0 {
		return nil, false
	}
	return &p.Slides[idx], true
}

// NextSlideID returns the id after current. ok is false when current is the
// last slide.
func (p *Presentation) NextSlideID(current string) (string, bool, error) {
	idx := p.IndexOf(current)
	if idx < 0 {
		return "", false, fmt.Errorf("%w: %s", ErrSlideNotFound, current)
	}
	if idx == len(p.Slides)-1 {
		return "", false, nil
	}
	return p.Slides[idx+1].ID, true, nil
}

// PreviousSlideID returns the id before current. ok is false when current is
// the first slide.
func (p *Presentation) PreviousSlideID(current string) (string, bool, error) {
	idx := p.IndexOf(current)
	if idx < 0 {
		return "", false, fmt.Errorf("%w: %s", ErrSlideNotFound, current)
	}
	if idx == 0 {
		return "", false, nil
	}
	return p.Slides[idx-1].ID, true, nil
}

// ReorderByIDs returns the slides with ids placed first, in the given order,
// followed by the omitted slides in their original order. Repeated ids keep
// their first position.
func ReorderByIDs(slides []Slide, ids []string) ([]Slide, error) {
	byID := make(map[string]int, len(slides))
	for i, s := range slides {
		byID[s.ID] = i
	}

	placed := make(map[string]bool, len(ids))
	out := make([]Slide, 0, len(slides))
	for _, id := range ids {
		idx, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSlideNotFound, id)
		}
		if placed[id] {
			continue
		}
		placed[id] = true
		out = append(out, slides[idx].Clone())
	}
	for _, s := range slides {
		if !placed[s.ID] {
			out = append(out, s.Clone())
		}
	}
	Renumber(out)
	return out, nil
}

// DeleteSlide returns the slides without the given id, renumbered from zero
func DeleteSlide(slides []Slide, slideID string) ([]Slide, error) {
	out := make([]Slide, 0, len(slides))
	found := false
	for _, s := range slides {
		if s.ID == slideID {
			found = true
			continue
		}
		out = append(out, s.Clone())
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSlideNotFound, slideID)
	}
	Renumber(out)
	return out, nil
}

// Renumber sets each slide's Order to its position
func Renumber(slides []Slide) {
	for i := range slides {
		slides[i].Order = i
	}
}

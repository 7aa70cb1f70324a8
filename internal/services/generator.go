package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vibe-presenting/server/internal/models"
)

// SlideProposal is an edit suggested for one slide
type SlideProposal struct {
	SlideID string
	Patch   models.SlidePatch
}

// SlideGenerator produces and edits slide content. Every call may fail or
// return nothing; callers treat both as a no-op.
type SlideGenerator interface {
	// GenerateSlides streams the deck for a new presentation. Each emit call
	// carries the complete slide list generated so far.
	GenerateSlides(ctx context.Context, name, description string, emit func([]models.Slide)) error
	// ProposeSlideUpdate folds feedback into an edit of slide. A nil proposal
	// means the feedback needs no change.
	ProposeSlideUpdate(ctx context.Context, p *models.Presentation, slide models.Slide, feedback []models.CollaborationMessage) (*SlideProposal, error)
	// Moderate reports whether text is safe for work
	Moderate(ctx context.Context, text string) (bool, error)
}

// LLMGenerator implements SlideGenerator on top of a chat-completions API
type LLMGenerator struct {
	client *AIClient
	logger *slog.Logger
}

// NewLLMGenerator creates a generator backed by client
func NewLLMGenerator(client *AIClient) *LLMGenerator {
	return &LLMGenerator{
		client: client,
		logger: slog.With("component", "generator"),
	}
}

const slideFormatGuide = `Each slide is a JSON object with these fields:
- "design": one of "title", "one-text-column", "two-text-columns", "two-columns-with-image", "full-size-image", "big-image-with-caption", "background-image-with-text"
- "title": string, always required
- "topic", "description", "speakerNotes": strings
- "subtitle": string (title design)
- "markdownContent": markdown string (one-text-column, two-columns-with-image, full-size-image)
- "markdownContentLeft", "markdownContentRight": markdown strings (two-text-columns)
- "image": {"prompt": "description of the image to generate"} (every image design)
- "caption": string (big-image-with-caption)
- "overlayText", "textPosition" ("top"|"center"|"bottom"), "textColor": (background-image-with-text)`

const generatePrompt = `You are an expert presentation designer. Create a slide deck for the presentation described by the user.

` + slideFormatGuide + `

Output rules:
- Write exactly one slide per line as a single-line JSON object.
- Do not wrap the output in an array or in a code block. Do not write anything else.
- The first slide uses the "title" design.
- Produce between 5 and 12 slides and vary the designs.
- Always write useful speakerNotes for the presenter.`

// GenerateSlides asks the model for a deck as JSON lines and emits the
// accumulated valid slides after every line that parses
func (g *LLMGenerator) GenerateSlides(ctx context.Context, name, description string, emit func([]models.Slide)) error {
	stream := newSlideStream(g.logger)
	req := ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: generatePrompt},
			{Role: "user", Content: fmt.Sprintf("Name: %s\nDescription: %s", name, description)},
		},
	}

	err := g.client.ChatStream(ctx, req, func(delta string) error {
		if stream.Write(delta) {
			emit(stream.Slides())
		}
		return nil
	})
	if stream.Flush() {
		emit(stream.Slides())
	}
	if err != nil {
		return fmt.Errorf("generate slides: %w", err)
	}
	if stream.Len() == 0 {
		return errors.New("generate slides: model returned no usable slides")
	}
	return nil
}

// slideStream turns a stream of JSON-lines text into a list of valid slides
type slideStream struct {
	buf    strings.Builder
	slides []models.Slide
	seen   map[string]bool
	logger *slog.Logger
}

func newSlideStream(logger *slog.Logger) *slideStream {
	return &slideStream{seen: make(map[string]bool), logger: logger}
}

// Write appends text and reports whether a new slide was completed
func (s *slideStream) Write(text string) bool {
	s.buf.WriteString(text)
	pending := s.buf.String()
	idx := strings.LastIndexByte(pending, '\n')
	if idx < 0 {
		return false
	}
	s.buf.Reset()
	s.buf.WriteString(pending[idx+1:])

	added := false
	for _, line := range strings.Split(pending[:idx], "\n") {
		if s.addLine(line) {
			added = true
		}
	}
	return added
}

// Flush consumes the trailing unterminated line
func (s *slideStream) Flush() bool {
	rest := s.buf.String()
	s.buf.Reset()
	return s.addLine(rest)
}

func (s *slideStream) Len() int {
	return len(s.slides)
}

// Slides returns a copy of the slides parsed so far
func (s *slideStream) Slides() []models.Slide {
	out := make([]models.Slide, len(s.slides))
	for i, slide := range s.slides {
		out[i] = slide.Clone()
	}
	return out
}

func (s *slideStream) addLine(line string) bool {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, ",")
	if !strings.HasPrefix(line, "{") {
		return false
	}

	var slide models.Slide
	if err := json.Unmarshal([]byte(line), &slide); err != nil {
		s.logger.Debug("skipping unparsable slide line", "error", err)
		return false
	}
	if slide.ID == "" || s.seen[slide.ID] {
		slide.ID = uuid.NewString()
	}
	slide.Order = len(s.slides)
	if err := slide.Validate(); err != nil {
		s.logger.Debug("skipping invalid slide", "error", err)
		return false
	}

	s.seen[slide.ID] = true
	s.slides = append(s.slides, slide)
	return true
}

const consolidatePrompt = `You are an expert at analyzing feedback on presentation slides and deciding whether the feedback requires changes to the slide.
You receive a set of feedback messages and the content of one slide.
Compare the feedback with the slide. If it requires changes, call the "update_slide" tool with the updated fields of the slide. If it does not, answer without calling any tool.

` + slideFormatGuide

var updateSlideTool = Tool{
	Type: "function",
	Function: ToolFunction{
		Name:        "update_slide",
		Description: "Updates the content of a slide",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "slideId": {"type": "string", "description": "ID of the slide to update"},
    "design": {"type": "string"},
    "title": {"type": "string"},
    "subtitle": {"type": "string"},
    "topic": {"type": "string"},
    "description": {"type": "string"},
    "speakerNotes": {"type": "string"},
    "markdownContent": {"type": "string"},
    "markdownContentLeft": {"type": "string"},
    "markdownContentRight": {"type": "string"},
    "image": {"type": "object", "properties": {"prompt": {"type": "string"}, "url": {"type": "string"}}},
    "caption": {"type": "string"},
    "textPosition": {"type": "string", "enum": ["top", "center", "bottom"]},
    "textColor": {"type": "string"},
    "overlayText": {"type": "string"}
  },
  "required": ["slideId"]
}`),
	},
}

// ProposeSlideUpdate lets the model decide on an edit through the
// update_slide tool
func (g *LLMGenerator) ProposeSlideUpdate(ctx context.Context, p *models.Presentation, slide models.Slide, feedback []models.CollaborationMessage) (*SlideProposal, error) {
	slideJSON, err := json.MarshalIndent(slide, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal slide: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<presentation>\n%s: %s\n</presentation>\n\n", p.Name, p.Description)
	fmt.Fprintf(&sb, "<existing-slide>\n%s\n</existing-slide>\n\n<feedback>\n", slideJSON)
	for _, msg := range feedback {
		fmt.Fprintf(&sb, "<message role=%q author=%q>%s</message>\n", msg.AuthorRole, msg.AuthorID, msg.Body)
	}
	sb.WriteString("</feedback>")

	resp, err := g.client.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: consolidatePrompt},
			{Role: "user", Content: sb.String()},
		},
		Tools:      []Tool{updateSlideTool},
		ToolChoice: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("consolidate feedback: %w", err)
	}

	msg, ok := resp.FirstMessage()
	if !ok {
		return nil, nil
	}
	for _, call := range msg.ToolCalls {
		if call.Function.Name != updateSlideTool.Function.Name {
			continue
		}
		var args models.UpdateSlide
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("parse update_slide arguments: %w", err)
		}
		if args.SlidePatch.Empty() {
			return nil, nil
		}
		return &SlideProposal{SlideID: slide.ID, Patch: args.SlidePatch}, nil
	}

	g.logger.Debug("model proposed no slide change", "slide_id", slide.ID)
	return nil, nil
}

const moderationPrompt = `You are an assistant expert in validating that text is safe for work. You will be given a message in any language, particularly Spanish and English. Answer with a JSON object {"valid": true} when the message is safe for work and {"valid": false} when it is not.`

// Moderate classifies text as safe for work or not
func (g *LLMGenerator) Moderate(ctx context.Context, text string) (bool, error) {
	resp, err := g.client.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: moderationPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return false, fmt.Errorf("moderate: %w", err)
	}

	msg, ok := resp.FirstMessage()
	if !ok {
		return false, errors.New("moderate: empty response")
	}
	var verdict struct {
		Valid *bool `json:"valid"`
	}
	if err := json.Unmarshal([]byte(msg.Content), &verdict); err != nil {
		return false, fmt.Errorf("moderate: parse verdict: %w", err)
	}
	if verdict.Valid == nil {
		return false, errors.New("moderate: verdict missing valid field")
	}
	return *verdict.Valid, nil
}

package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/vibe-presenting/server/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// frame is an outbound event with its payload left encoded
type frame struct {
	Type models.EventType `json:"type"`
	ID   string           `json:"id,omitempty"`
	Data json.RawMessage  `json:"data,omitempty"`
}

// recordingClient collects every frame the room sends it
type recordingClient struct {
	id   string
	role models.Role
	drop bool

	mu     sync.Mutex
	frames []frame
}

func newClient(id string, role models.Role) *recordingClient {
	return &recordingClient{id: id, role: role}
}

func (c *recordingClient) ID() string        { return c.id }
func (c *recordingClient) Role() models.Role { return c.role }

func (c *recordingClient) Send(raw []byte) bool {
	if c.drop {
		return false
	}
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return true
}

func (c *recordingClient) all() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.frames...)
}

func (c *recordingClient) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func (c *recordingClient) ofType(t models.EventType) []frame {
	var out []frame
	for _, f := range c.all() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (c *recordingClient) types() []models.EventType {
	var out []models.EventType
	for _, f := range c.all() {
		out = append(out, f.Type)
	}
	return out
}

// lastSnapshot decodes the most recent presentation-updated frame
func (c *recordingClient) lastSnapshot(t *testing.T) models.Snapshot {
	t.Helper()
	frames := c.ofType(models.EventPresentationUpdated)
	require.NotEmpty(t, frames, "no snapshot received")
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Data, &snap))
	return snap
}

// fakeGenerator is a scripted SlideGenerator
type fakeGenerator struct {
	slides   []models.Slide
	genErr   error
	block    chan struct{}
	proposal *SlideProposal
	valid    bool
	modErr   error

	mu        sync.Mutex
	generated []string
	moderated []string
	feedback  []models.CollaborationMessage
}

func (g *fakeGenerator) GenerateSlides(ctx context.Context, name, description string, emit func([]models.Slide)) error {
	g.mu.Lock()
	g.generated = append(g.generated, name)
	g.mu.Unlock()

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(g.slides) > 0 {
		out := make([]models.Slide, len(g.slides))
		copy(out, g.slides)
		emit(out)
	}
	return g.genErr
}

func (g *fakeGenerator) ProposeSlideUpdate(_ context.Context, _ *models.Presentation, _ models.Slide, feedback []models.CollaborationMessage) (*SlideProposal, error) {
	g.mu.Lock()
	g.feedback = append(g.feedback, feedback...)
	g.mu.Unlock()
	return g.proposal, nil
}

func (g *fakeGenerator) Moderate(_ context.Context, text string) (bool, error) {
	g.mu.Lock()
	g.moderated = append(g.moderated, text)
	g.mu.Unlock()
	return g.valid, g.modErr
}

func (g *fakeGenerator) moderatedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.moderated)
}

func threeSlides() []models.Slide {
	return []models.Slide{
		{ID: "intro", Design: models.DesignTitle, Title: "Intro", SpeakerNotes: "welcome everyone"},
		{ID: "body", Design: models.DesignOneTextColumn, Title: "Body", MarkdownContent: "- one\n- two"},
		{ID: "end", Design: models.DesignTitle, Title: "Thanks"},
	}
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTestFeedback(t *testing.T) (*RedisFeedbackStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	feedback, err := NewRedisFeedbackStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { feedback.Close() })
	return feedback, mr
}

type roomFixture struct {
	coord    *Coordinator
	store    *FileStore
	feedback *RedisFeedbackStore
	gen      *fakeGenerator
}

func newRoom(t *testing.T, gen *fakeGenerator) *roomFixture {
	t.Helper()
	store := newTestFileStore(t)
	feedback, _ := newTestFeedback(t)
	return newRoomWith(t, store, feedback, gen)
}

func newRoomWith(t *testing.T, store Store, feedback FeedbackStore, gen *fakeGenerator) *roomFixture {
	t.Helper()
	opts := CoordinatorOptions{
		Room:             "main",
		Store:            store,
		Feedback:         feedback,
		Defaults:         models.DefaultConfig(),
		GeneratorTimeout: waitFor,
	}
	if gen != nil {
		opts.Generator = gen
	}
	coord, err := NewCoordinator(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(coord.Stop)

	fx := &roomFixture{coord: coord, gen: gen}
	fx.store, _ = store.(*FileStore)
	fx.feedback, _ = feedback.(*RedisFeedbackStore)
	return fx
}

// attach connects clients and waits until the room has processed them
func (fx *roomFixture) attach(t *testing.T, clients ...*recordingClient) {
	t.Helper()
	for _, c := range clients {
		require.NoError(t, fx.coord.Attach(c))
	}
	fx.sync(t)
}

// sync waits until every queued transition has run
func (fx *roomFixture) sync(t *testing.T) models.Snapshot {
	t.Helper()
	snap, err := fx.coord.Snapshot(context.Background(), models.RoleAdmin)
	require.NoError(t, err)
	return snap
}

func (fx *roomFixture) do(t *testing.T, client *recordingClient, msg map[string]any) error {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return fx.coord.Do(ctx, client, raw)
}

// create makes a presentation and returns its id
func (fx *roomFixture) create(t *testing.T, admin *recordingClient, name string) string {
	t.Helper()
	require.NoError(t, fx.do(t, admin, map[string]any{
		"type": "create-presentation", "name": name, "description": name + " description",
	}))
	created := admin.ofType(models.EventCreatedPresentation)
	require.NotEmpty(t, created)
	return created[len(created)-1].ID
}

// waitIdle waits until no generator job is outstanding for the current
// document
func (fx *roomFixture) waitIdle(t *testing.T) models.Snapshot {
	t.Helper()
	var snap models.Snapshot
	require.Eventually(t, func() bool {
		s, err := fx.coord.Snapshot(context.Background(), models.RoleAdmin)
		if err != nil {
			return false
		}
		snap = s
		return s.Status == models.StatusIdle
	}, waitFor, tick)
	return snap
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-presenting/server/internal/models"
)

func TestCoordinator_AttachSendsCountAndSnapshot(t *testing.T) {
	fx := newRoom(t, nil)
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)

	assert.Equal(t, []models.EventType{models.EventInitialConnections, models.EventPresentationUpdated}, admin.types())
	var count models.ConnectionsData
	require.NoError(t, json.Unmarshal(admin.ofType(models.EventInitialConnections)[0].Data, &count))
	assert.Equal(t, 1, count.ConnectionCount)

	snap := admin.lastSnapshot(t)
	assert.Equal(t, "main", snap.Room)
	assert.Nil(t, snap.Presentation)
	assert.Nil(t, snap.ActiveSlideID)
	assert.Equal(t, models.StatusIdle, snap.Status)
	assert.Equal(t, models.DefaultConfig(), snap.Config)

	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, attendee)

	require.NoError(t, json.Unmarshal(admin.ofType(models.EventInitialConnections)[1].Data, &count))
	assert.Equal(t, 2, count.ConnectionCount)

	require.NoError(t, fx.coord.Detach(attendee))
	snap = fx.sync(t)
	assert.Equal(t, 1, snap.ConnectionCount)
	require.NoError(t, json.Unmarshal(admin.ofType(models.EventInitialConnections)[2].Data, &count))
	assert.Equal(t, 1, count.ConnectionCount)
}

func TestCoordinator_PresentationsInit(t *testing.T) {
	fx := newRoom(t, nil)
	admin := newClient("admin", models.RoleAdmin)
	other := newClient("other", models.RoleAttendee)
	fx.attach(t, admin, other)
	fx.create(t, admin, "First")
	admin.reset()
	other.reset()

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "presentations-init"}))

	assert.Equal(t, []models.EventType{models.EventAllPresentations, models.EventPresentationUpdated}, admin.types())
	assert.Empty(t, other.all(), "presentations-init answers only the sender")

	var summaries []models.PresentationSummary
	require.NoError(t, json.Unmarshal(admin.all()[0].Data, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "First", summaries[0].Name)
	assert.Equal(t, 1, summaries[0].SlideCount)
}

func TestCoordinator_BroadcastReachesEveryClientOnce(t *testing.T) {
	fx := newRoom(t, nil)
	admin := newClient("admin", models.RoleAdmin)
	a1 := newClient("a1", models.RoleAttendee)
	a2 := newClient("a2", models.RoleAttendee)
	fx.attach(t, admin, a1, a2)
	for _, c := range []*recordingClient{admin, a1, a2} {
		c.reset()
	}

	id := fx.create(t, admin, "Go")

	assert.Equal(t, []models.EventType{models.EventCreatedPresentation, models.EventPresentationUpdated}, admin.types())
	assert.Equal(t, id, admin.all()[0].ID)
	for _, c := range []*recordingClient{a1, a2} {
		assert.Equal(t, []models.EventType{models.EventPresentationUpdated}, c.types(), c.id)
		snap := c.lastSnapshot(t)
		require.NotNil(t, snap.Presentation)
		assert.Equal(t, id, snap.Presentation.ID)
		assert.Equal(t, 3, snap.ConnectionCount)
	}
}

func TestCoordinator_CreateSetActiveNavigate(t *testing.T) {
	gen := &fakeGenerator{slides: threeSlides()}
	fx := newRoom(t, gen)
	admin := newClient("admin", models.RoleAdmin)
	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, admin, attendee)

	id := fx.create(t, admin, "Go Concurrency")
	snap := fx.waitIdle(t)

	require.NotNil(t, snap.Presentation)
	assert.Equal(t, id, snap.Presentation.ID)
	assert.Equal(t, []string{"intro", "body", "end"}, ids(snap.Presentation.Slides))
	assert.Nil(t, snap.ActiveSlideID)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": "intro"}))
	require.NoError(t, fx.do(t, attendee, map[string]any{"type": "navigate-next-slide", "currentSlideId": "intro"}))

	got := attendee.lastSnapshot(t)
	require.NotNil(t, got.ActiveSlideID)
	assert.Equal(t, "body", *got.ActiveSlideID)
	got = admin.lastSnapshot(t)
	assert.Equal(t, "body", *got.ActiveSlideID)

	// The room survives a restart with its document and position
	room, err := fx.store.GetRoom(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, id, room.PresentationID)
	require.NotNil(t, room.ActiveSlideID)
	assert.Equal(t, "body", *room.ActiveSlideID)

	fx.coord.Stop()
	restarted := newRoomWith(t, fx.store, fx.feedback, nil)
	snap = restarted.sync(t)
	require.NotNil(t, snap.Presentation)
	assert.Equal(t, id, snap.Presentation.ID)
	assert.Len(t, snap.Presentation.Slides, 3)
	assert.Equal(t, "body", *snap.ActiveSlideID)
}

func TestCoordinator_NavigationBoundaries(t *testing.T) {
	fx := newRoom(t, &fakeGenerator{slides: threeSlides()})
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)
	fx.create(t, admin, "Deck")
	fx.waitIdle(t)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": "intro"}))
	admin.reset()

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "navigate-previous-slide", "currentSlideId": "intro"}))
	assert.Equal(t, []models.EventType{models.EventPresentationUpdated}, admin.types(), "a no-op move still broadcasts")
	assert.Equal(t, "intro", *admin.lastSnapshot(t).ActiveSlideID)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "navigate-next-slide", "currentSlideId": "end"}))
	assert.Equal(t, "intro", *fx.sync(t).ActiveSlideID, "next from the last slide keeps the active slide")

	err := fx.do(t, admin, map[string]any{"type": "navigate-next-slide", "currentSlideId": "ghost"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorIs(t, err, models.ErrSlideNotFound)
}

func TestCoordinator_SetActiveSlide(t *testing.T) {
	fx := newRoom(t, &fakeGenerator{slides: threeSlides()})
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)

	err := fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": "intro"})
	assert.ErrorIs(t, err, models.ErrNoPresentation, "no document yet")

	fx.create(t, admin, "Deck")
	fx.waitIdle(t)
	admin.reset()

	for i := 0; i < 2; i++ {
		require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": "body"}))
	}
	snaps := admin.ofType(models.EventPresentationUpdated)
	assert.Len(t, snaps, 2, "repeating the same slide still broadcasts")
	assert.Equal(t, "body", *fx.sync(t).ActiveSlideID)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": nil}))
	assert.Nil(t, fx.sync(t).ActiveSlideID, "null selects the overview")

	err = fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": "ghost"})
	assert.ErrorIs(t, err, models.ErrSlideNotFound)
	assert.Nil(t, fx.sync(t).ActiveSlideID)
}

func TestCoordinator_RejectedMessageOnlyAnswersSender(t *testing.T) {
	fx := newRoom(t, &fakeGenerator{slides: threeSlides()})
	admin := newClient("admin", models.RoleAdmin)
	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, admin, attendee)
	fx.create(t, admin, "Deck")
	before := fx.waitIdle(t)
	admin.reset()
	attendee.reset()

	// Switching to one-text-column without markdownContent is invalid
	err := fx.do(t, admin, map[string]any{"type": "update-slide", "slideId": "intro", "design": "one-text-column"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.Equal(t, []models.EventType{models.EventError}, admin.types())
	assert.Empty(t, attendee.all())
	assert.Equal(t, before.Presentation, fx.sync(t).Presentation, "document unchanged")

	err = fx.do(t, admin, map[string]any{"type": "warp-drive"})
	assert.ErrorIs(t, err, models.ErrUnknownMessage)
	var reason string
	require.NoError(t, json.Unmarshal(admin.all()[1].Data, &reason))
	assert.Contains(t, reason, "warp-drive")

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "delete-schedule", "id": "x"}))
	assert.Len(t, admin.all(), 2, "legacy schedule messages are ignored")
}

func TestCoordinator_UpdateSlide(t *testing.T) {
	fx := newRoom(t, &fakeGenerator{slides: threeSlides()})
	admin := newClient("admin", models.RoleAdmin)
	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, admin, attendee)
	id := fx.create(t, admin, "Deck")
	before := fx.waitIdle(t)
	admin.reset()
	attendee.reset()

	require.NoError(t, fx.do(t, admin, map[string]any{
		"type": "update-slide", "slideId": "intro", "title": "Welcome", "speakerNotes": "smile",
	}))

	assert.Equal(t, []models.EventType{models.EventUpdatedSlide, models.EventPresentationUpdated}, admin.types())
	assert.Equal(t, []models.EventType{models.EventUpdatedSlide, models.EventPresentationUpdated}, attendee.types())

	var forAdmin, forAttendee models.UpdatedSlideData
	require.NoError(t, json.Unmarshal(admin.all()[0].Data, &forAdmin))
	require.NoError(t, json.Unmarshal(attendee.all()[0].Data, &forAttendee))
	assert.Equal(t, "Welcome", forAdmin.Slide.Title)
	assert.Equal(t, "smile", forAdmin.Slide.SpeakerNotes)
	assert.Equal(t, "Welcome", forAttendee.Slide.Title)
	assert.Empty(t, forAttendee.Slide.SpeakerNotes, "private notes are stripped for attendees")
	assert.Empty(t, attendee.lastSnapshot(t).Presentation.Slides[0].SpeakerNotes)

	stored, err := fx.store.GetPresentation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", stored.Slides[0].Title)
	assert.Equal(t, "smile", stored.Slides[0].SpeakerNotes)
	assert.Equal(t, 0, stored.Slides[0].Order)
	assert.GreaterOrEqual(t, stored.UpdatedAt, before.Presentation.UpdatedAt)

	err = fx.do(t, admin, map[string]any{"type": "update-slide", "slideId": "ghost", "title": "x"})
	assert.ErrorIs(t, err, models.ErrSlideNotFound)
}

func TestCoordinator_ReorderAndDelete(t *testing.T) {
	fx := newRoom(t, &fakeGenerator{slides: threeSlides()})
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)
	fx.create(t, admin, "Deck")
	fx.waitIdle(t)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "reorder-slides", "slideIds": []string{"end", "intro"}}))
	snap := fx.sync(t)
	assert.Equal(t, []string{"end", "intro", "body"}, ids(snap.Presentation.Slides))
	for i, s := range snap.Presentation.Slides {
		assert.Equal(t, i, s.Order)
	}

	err := fx.do(t, admin, map[string]any{"type": "reorder-slides", "slideIds": []string{"ghost"}})
	assert.ErrorIs(t, err, models.ErrSlideNotFound)
	assert.Equal(t, []string{"end", "intro", "body"}, ids(fx.sync(t).Presentation.Slides))

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": "intro"}))
	require.NoError(t, fx.do(t, admin, map[string]any{"type": "delete-slide", "slideId": "intro"}))
	snap = fx.sync(t)
	assert.Equal(t, []string{"end", "body"}, ids(snap.Presentation.Slides))
	assert.Equal(t, 1, snap.Presentation.Slides[1].Order)
	assert.Nil(t, snap.ActiveSlideID, "deleting the active slide returns to the overview")

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": "body"}))
	require.NoError(t, fx.do(t, admin, map[string]any{"type": "delete-slide", "slideId": "end"}))
	assert.Equal(t, "body", *fx.sync(t).ActiveSlideID)

	err = fx.do(t, admin, map[string]any{"type": "delete-slide", "slideId": "end"})
	assert.ErrorIs(t, err, models.ErrSlideNotFound)
}

func TestCoordinator_ToggleCollaboration(t *testing.T) {
	fx := newRoom(t, nil)
	admin := newClient("admin", models.RoleAdmin)
	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, admin, attendee)
	attendee.reset()

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "toggle-collaboration", "enabled": true}))

	assert.Equal(t, []models.EventType{models.EventConfigUpdated, models.EventPresentationUpdated}, attendee.types())
	var cfg models.ConfigData
	require.NoError(t, json.Unmarshal(attendee.all()[0].Data, &cfg))
	assert.Equal(t, models.CollaborationActive, cfg.Collaboration)
	assert.Equal(t, models.CollaborationActive, attendee.lastSnapshot(t).Config.Collaboration)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "toggle-collaboration", "enabled": false}))
	assert.Equal(t, models.CollaborationInactive, fx.sync(t).Config.Collaboration)
}

func TestCoordinator_SetActivePresentation(t *testing.T) {
	fx := newRoom(t, nil)
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)

	first := fx.create(t, admin, "First")
	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": fx.sync(t).Presentation.Slides[0].ID}))
	second := fx.create(t, admin, "Second")
	assert.NotEqual(t, first, second)
	assert.Nil(t, fx.sync(t).ActiveSlideID, "creating clears the active slide")

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-presentation", "id": first}))
	snap := fx.sync(t)
	assert.Equal(t, first, snap.Presentation.ID)
	assert.Nil(t, snap.ActiveSlideID)

	err := fx.do(t, admin, map[string]any{"type": "set-active-presentation", "id": "missing"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorIs(t, err, models.ErrPresentationNotFound)
	assert.Equal(t, first, fx.sync(t).Presentation.ID)
}

func TestCoordinator_GenerationForReplacedPresentationIsDropped(t *testing.T) {
	gen := &fakeGenerator{slides: threeSlides(), block: make(chan struct{})}
	fx := newRoom(t, gen)
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)

	old := fx.create(t, admin, "Old")
	assert.Equal(t, models.StatusLoading, admin.lastSnapshot(t).Status)

	current := fx.create(t, admin, "Current")
	close(gen.block)
	snap := fx.waitIdle(t)

	assert.Equal(t, current, snap.Presentation.ID)
	assert.Equal(t, []string{"intro", "body", "end"}, ids(snap.Presentation.Slides))

	stored, err := fx.store.GetPresentation(context.Background(), old)
	require.NoError(t, err)
	assert.Len(t, stored.Slides, 1, "the replaced document keeps its title slide")
}

func TestCoordinator_GenerationClearsReplacedActiveSlide(t *testing.T) {
	slides := threeSlides()
	gen := &fakeGenerator{slides: slides, block: make(chan struct{})}
	fx := newRoom(t, gen)
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)
	fx.create(t, admin, "Deck")

	titleID := fx.sync(t).Presentation.Slides[0].ID
	require.NoError(t, fx.do(t, admin, map[string]any{"type": "set-active-slide", "id": titleID}))

	close(gen.block)
	snap := fx.waitIdle(t)
	assert.Nil(t, snap.ActiveSlideID, "the title slide was replaced by the generated deck")
}

func TestCoordinator_GenerationFailureLeavesDocument(t *testing.T) {
	gen := &fakeGenerator{genErr: errors.New("model unavailable")}
	fx := newRoom(t, gen)
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)

	fx.create(t, admin, "Deck")
	snap := fx.waitIdle(t)
	require.Len(t, snap.Presentation.Slides, 1)
	assert.Equal(t, "Deck", snap.Presentation.Slides[0].Title)
}

func TestCoordinator_Feedback(t *testing.T) {
	gen := &fakeGenerator{slides: threeSlides(), valid: true}
	fx := newRoom(t, gen)
	admin := newClient("admin", models.RoleAdmin)
	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, admin, attendee)
	id := fx.create(t, admin, "Deck")
	fx.waitIdle(t)

	err := fx.do(t, attendee, map[string]any{"type": "message", "slideId": "body", "message": "more examples"})
	assert.ErrorIs(t, err, models.ErrCollaborationDisabled)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "toggle-collaboration", "enabled": true}))
	admin.reset()

	require.NoError(t, fx.do(t, attendee, map[string]any{"type": "message", "slideId": "body", "message": " more examples "}))
	require.Eventually(t, func() bool {
		return len(admin.ofType(models.EventCollaborationMessages)) == 1
	}, waitFor, tick)

	var data models.CollaborationData
	require.NoError(t, json.Unmarshal(admin.ofType(models.EventCollaborationMessages)[0].Data, &data))
	assert.Equal(t, "body", data.SlideID)
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "more examples", data.Messages[0].Body)
	assert.Equal(t, models.RoleAttendee, data.Messages[0].AuthorRole)
	assert.Equal(t, "a1", data.Messages[0].AuthorID)
	assert.Equal(t, id, data.Messages[0].PresentationID)
	assert.Equal(t, 1, gen.moderatedCount())

	// Presenter messages skip moderation
	require.NoError(t, fx.do(t, admin, map[string]any{"type": "message", "slideId": "body", "message": "noted"}))
	require.Len(t, admin.ofType(models.EventCollaborationMessages), 2)
	assert.Equal(t, 1, gen.moderatedCount())

	stored, err := fx.feedback.ListFeedback(context.Background(), id, "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"more examples", "noted"}, []string{stored[0].Body, stored[1].Body})

	err = fx.do(t, attendee, map[string]any{"type": "message", "slideId": "ghost", "message": "x"})
	assert.ErrorIs(t, err, models.ErrSlideNotFound)
}

func TestCoordinator_FeedbackModeration(t *testing.T) {
	gen := &fakeGenerator{slides: threeSlides(), valid: false}
	fx := newRoom(t, gen)
	admin := newClient("admin", models.RoleAdmin)
	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, admin, attendee)
	id := fx.create(t, admin, "Deck")
	fx.waitIdle(t)
	require.NoError(t, fx.do(t, admin, map[string]any{"type": "toggle-collaboration", "enabled": true}))

	require.NoError(t, fx.do(t, attendee, map[string]any{"type": "message", "slideId": "intro", "message": "rude words"}))
	fx.waitIdle(t)

	stored, err := fx.feedback.ListFeedback(context.Background(), id, "intro")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Message from connection a1 contains inappropriate content", stored[0].Body)

	gen.modErr = errors.New("moderation down")
	require.NoError(t, fx.do(t, attendee, map[string]any{"type": "message", "slideId": "intro", "message": "hello"}))
	fx.waitIdle(t)

	stored, err = fx.feedback.ListFeedback(context.Background(), id, "intro")
	require.NoError(t, err)
	assert.Len(t, stored, 1, "messages that cannot be moderated are dropped")
}

func TestCoordinator_Consolidate(t *testing.T) {
	title := "Body, with examples"
	gen := &fakeGenerator{
		slides:   threeSlides(),
		proposal: &SlideProposal{SlideID: "body", Patch: models.SlidePatch{Title: &title}},
	}
	fx := newRoom(t, gen)
	admin := newClient("admin", models.RoleAdmin)
	attendee := newClient("a1", models.RoleAttendee)
	fx.attach(t, admin, attendee)
	fx.create(t, admin, "Deck")
	fx.waitIdle(t)

	err := fx.do(t, attendee, map[string]any{"type": "consolidate-messages", "slideId": "body"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	err = fx.do(t, admin, map[string]any{"type": "consolidate-messages", "slideId": "body"})
	assert.ErrorIs(t, err, models.ErrNoFeedback)

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "toggle-collaboration", "enabled": true}))
	require.NoError(t, fx.do(t, admin, map[string]any{"type": "message", "slideId": "body", "message": "add examples"}))
	attendee.reset()

	require.NoError(t, fx.do(t, admin, map[string]any{"type": "consolidate-messages", "slideId": "body"}))
	snap := fx.waitIdle(t)

	slide, ok := snap.Presentation.Slide("body")
	require.True(t, ok)
	assert.Equal(t, title, slide.Title)
	assert.Equal(t, "- one\n- two", slide.MarkdownContent)

	assert.Contains(t, attendee.types(), models.EventUpdatedSlide)
	gen.mu.Lock()
	require.Len(t, gen.feedback, 1)
	assert.Equal(t, "add examples", gen.feedback[0].Body)
	gen.mu.Unlock()
}

func TestCoordinator_SlowClientDoesNotBlockOthers(t *testing.T) {
	fx := newRoom(t, nil)
	slow := newClient("slow", models.RoleAttendee)
	slow.drop = true
	fast := newClient("fast", models.RoleAttendee)
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, slow, fast, admin)
	fast.reset()

	fx.create(t, admin, "Deck")
	assert.Equal(t, []models.EventType{models.EventPresentationUpdated}, fast.types())
}

func TestCoordinator_StopAndIdle(t *testing.T) {
	fx := newRoom(t, nil)
	admin := newClient("admin", models.RoleAdmin)

	assert.True(t, fx.coord.Idle(0))
	fx.attach(t, admin)
	assert.False(t, fx.coord.Idle(0), "a connected client keeps the room alive")

	require.NoError(t, fx.coord.Detach(admin))
	fx.sync(t)
	assert.False(t, fx.coord.Idle(time.Hour))
	assert.True(t, fx.coord.Idle(0))

	fx.coord.Stop()
	select {
	case <-fx.coord.Done():
	default:
		t.Fatal("room goroutine still running after Stop")
	}

	err := fx.do(t, admin, map[string]any{"type": "presentations-init"})
	assert.ErrorIs(t, err, ErrCoordinatorStopped)
	_, err = fx.coord.Snapshot(context.Background(), models.RoleAdmin)
	assert.ErrorIs(t, err, ErrCoordinatorStopped)
}

func TestCoordinator_AttachAfterStop(t *testing.T) {
	fx := newRoom(t, nil)
	fx.coord.Stop()

	for i := 0; i < 200; i++ {
		client := newClient(fmt.Sprintf("late-%d", i), models.RoleAttendee)
		assert.ErrorIs(t, fx.coord.Attach(client), ErrCoordinatorStopped)
		assert.Empty(t, client.all())
	}
}

func TestCoordinator_AttachDeliversSnapshotBeforeReturning(t *testing.T) {
	fx := newRoom(t, nil)
	client := newClient("c1", models.RoleAttendee)

	require.NoError(t, fx.coord.Attach(client))
	assert.Equal(t, 1, client.lastSnapshot(t).ConnectionCount)
}

// lateGenerator emits only after release, whatever its context says
type lateGenerator struct {
	*fakeGenerator
	started chan struct{}
	release chan struct{}
}

func (g *lateGenerator) GenerateSlides(_ context.Context, _, _ string, emit func([]models.Slide)) error {
	close(g.started)
	<-g.release
	emit(threeSlides())
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCoordinator_GeneratedSlidesAfterStopAreLogged(t *testing.T) {
	var logs lockedBuffer
	gen := &lateGenerator{
		fakeGenerator: &fakeGenerator{},
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	feedback, _ := newTestFeedback(t)
	coord, err := NewCoordinator(context.Background(), CoordinatorOptions{
		Room:             "main",
		Store:            newTestFileStore(t),
		Feedback:         feedback,
		Generator:        gen,
		Defaults:         models.DefaultConfig(),
		GeneratorTimeout: waitFor,
		Logger:           slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)
	t.Cleanup(coord.Stop)

	fx := &roomFixture{coord: coord}
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)
	fx.create(t, admin, "Deck")
	<-gen.started

	coord.Stop()
	close(gen.release)

	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "dropping generated slides")
	}, waitFor, tick)
}

func TestCoordinator_ConcurrentSubmitsAreSerialized(t *testing.T) {
	fx := newRoom(t, &fakeGenerator{slides: threeSlides()})
	admin := newClient("admin", models.RoleAdmin)
	fx.attach(t, admin)
	fx.create(t, admin, "Deck")
	fx.waitIdle(t)

	const writers = 8
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		raw := []byte(fmt.Sprintf(`{"type":"update-slide","slideId":"body","speakerNotes":"note %d"}`, i))
		go func() {
			done <- fx.coord.Do(context.Background(), admin, raw)
		}()
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-done)
	}

	snap := fx.sync(t)
	slide, _ := snap.Presentation.Slide("body")
	assert.Regexp(t, `^note \d$`, slide.SpeakerNotes)
	assert.Len(t, admin.ofType(models.EventUpdatedSlide), writers)
}

func ids(slides []models.Slide) []string {
	out := make([]string, len(slides))
	for i, s := range slides {
		out[i] = s.ID
	}
	return out
}

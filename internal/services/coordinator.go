package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vibe-presenting/server/internal/models"
)

// ErrCoordinatorStopped is returned when a room has already shut down
var ErrCoordinatorStopped = errors.New("room coordinator stopped")

const (
	inboxSize    = 256
	storeTimeout = 5 * time.Second
)

// Client is one connection attached to a room
type Client interface {
	ID() string
	Role() models.Role
	// Send queues a frame without blocking. It returns false when the
	// frame was dropped.
	Send(frame []byte) bool
}

// CoordinatorOptions configures a room coordinator
type CoordinatorOptions struct {
	Room             string
	Store            Store
	Feedback         FeedbackStore
	Generator        SlideGenerator
	Defaults         models.Config
	GeneratorTimeout time.Duration
	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// Coordinator owns the document and session of one room. Every transition
// runs on its own goroutine, in inbox order.
type Coordinator struct {
	room      string
	store     Store
	feedback  FeedbackStore
	generator SlideGenerator
	timeout   time.Duration
	logger    *slog.Logger

	inbox  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the run goroutine
	clients      map[string]Client
	presentation *models.Presentation
	state        models.RoomState
	jobs         map[string]int

	connections atomic.Int64
	pendingJobs atomic.Int64
	lastActive  atomic.Int64
}

// NewCoordinator loads the room's saved state and starts its goroutine.
// The coordinator lives until parent is cancelled or Stop is called.
func NewCoordinator(parent context.Context, opts CoordinatorOptions) (*Coordinator, error) {
	timeout := opts.GeneratorTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		room:      opts.Room,
		store:     opts.Store,
		feedback:  opts.Feedback,
		generator: opts.Generator,
		timeout:   timeout,
		logger:    logger.With("component", "coordinator", "room", opts.Room),
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
		clients:   make(map[string]Client),
		jobs:      make(map[string]int),
	}

	if err := c.load(parent, opts.Defaults); err != nil {
		return nil, err
	}

	c.ctx, c.cancel = context.WithCancel(parent)
	c.touch()
	go c.run()
	return c, nil
}

func (c *Coordinator) load(parent context.Context, defaults models.Config) error {
	ctx, cancel := context.WithTimeout(parent, storeTimeout)
	defer cancel()

	room, err := c.store.GetRoom(ctx, c.room)
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		c.state = models.RoomState{Room: c.room, Config: defaults}
		return nil
	case err != nil:
		return fmt.Errorf("load room %s: %w", c.room, err)
	}
	c.state = *room

	if c.state.PresentationID == "" {
		return nil
	}
	p, err := c.store.GetPresentation(ctx, c.state.PresentationID)
	if errors.Is(err, models.ErrPresentationNotFound) {
		c.logger.Warn("saved presentation is missing, starting empty", "presentation_id", c.state.PresentationID)
		c.state.PresentationID = ""
		c.state.ActiveSlideID = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("load presentation %s: %w", c.state.PresentationID, err)
	}
	c.presentation = p
	return nil
}

// Room returns the room name
func (c *Coordinator) Room() string {
	return c.room
}

func (c *Coordinator) run() {
	defer close(c.done)
	c.logger.Debug("room started")
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("room stopped")
			return
		case fn := <-c.inbox:
			c.exec(fn)
		}
	}
}

func (c *Coordinator) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in room transition", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Stop shuts the room down and cancels outstanding generator work
func (c *Coordinator) Stop() {
	c.cancel()
	<-c.done
}

// Done is closed once the room goroutine has exited
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Idle reports whether the room has had no connections and no generator
// work for at least d
func (c *Coordinator) Idle(d time.Duration) bool {
	if c.connections.Load() > 0 || c.pendingJobs.Load() > 0 {
		return false
	}
	return time.Since(time.UnixMilli(c.lastActive.Load())) >= d
}

func (c *Coordinator) touch() {
	c.lastActive.Store(time.Now().UnixMilli())
}

// post queues fn on the inbox. A queued fn still never runs if the room
// stops before reaching it; callers that need the outcome wait for a reply.
func (c *Coordinator) post(ctx context.Context, fn func()) error {
	if c.ctx.Err() != nil {
		return ErrCoordinatorStopped
	}
	select {
	case c.inbox <- fn:
		return nil
	case <-c.done:
		return ErrCoordinatorStopped
	case <-c.ctx.Done():
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers a connection. It receives the current snapshot and every
// client is told the new connection count.
func (c *Coordinator) Attach(client Client) error {
	attached := make(chan struct{})
	err := c.post(context.Background(), func() {
		defer close(attached)
		c.clients[client.ID()] = client
		c.connections.Store(int64(len(c.clients)))
		c.touch()
		c.logger.Info("client attached", "client_id", client.ID(), "role", client.Role(), "connections", len(c.clients))

		c.broadcastConnections()
		c.sendTo(client, c.snapshotEvent(client.Role()))
	})
	if err != nil {
		return err
	}
	select {
	case <-attached:
		return nil
	case <-c.done:
		// the room may have run the attach just before stopping
		select {
		case <-attached:
			return nil
		default:
			return ErrCoordinatorStopped
		}
	}
}

// Detach removes a connection
func (c *Coordinator) Detach(client Client) error {
	return c.post(context.Background(), func() {
		if _, ok := c.clients[client.ID()]; !ok {
			return
		}
		delete(c.clients, client.ID())
		c.connections.Store(int64(len(c.clients)))
		c.touch()
		c.logger.Info("client detached", "client_id", client.ID(), "connections", len(c.clients))

		c.broadcastConnections()
	})
}

// Submit queues a raw inbound message from client
func (c *Coordinator) Submit(client Client, raw []byte) error {
	return c.post(context.Background(), func() {
		_ = c.handle(client, raw)
	})
}

// Do handles a raw inbound message and waits for the transition to finish.
// The returned error is the one reported to the sender.
func (c *Coordinator) Do(ctx context.Context, client Client, raw []byte) error {
	errc := make(chan error, 1)
	err := c.post(ctx, func() {
		err := errors.New("internal error while handling message")
		defer func() { errc <- err }()
		err = c.handle(client, raw)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the room state as seen by role
func (c *Coordinator) Snapshot(ctx context.Context, role models.Role) (models.Snapshot, error) {
	result := make(chan models.Snapshot, 1)
	err := c.post(ctx, func() {
		snap := c.snapshot().ForRole(role)
		snap.Presentation = snap.Presentation.Clone()
		result <- snap
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	select {
	case snap := <-result:
		return snap, nil
	case <-c.done:
		return models.Snapshot{}, ErrCoordinatorStopped
	case <-ctx.Done():
		return models.Snapshot{}, ctx.Err()
	}
}

func (c *Coordinator) handle(client Client, raw []byte) error {
	c.touch()
	msg, err := models.ParseInbound(raw)
	if err == nil {
		err = c.apply(client, msg)
	}
	if err != nil {
		c.logger.Debug("message rejected", "client_id", client.ID(), "error", err)
		c.sendTo(client, models.ErrorEvent(err))
		return err
	}
	return nil
}

func (c *Coordinator) apply(client Client, msg models.Inbound) error {
	switch m := msg.(type) {
	case *models.PresentationsInit:
		return c.presentationsInit(client)
	case *models.CreatePresentation:
		return c.createPresentation(client, m)
	case *models.SetActivePresentation:
		return c.setActivePresentation(m)
	case *models.DeleteSchedule:
		return nil
	case *models.SetActiveSlide:
		return c.setActiveSlide(m)
	case *models.ToggleCollaboration:
		return c.toggleCollaboration(m)
	case *models.NavigateSlide:
		return c.navigate(m)
	case *models.UpdateSlide:
		return c.updateSlide(m)
	case *models.ReorderSlides:
		return c.reorderSlides(m)
	case *models.DeleteSlideRequest:
		return c.deleteSlide(m)
	case *models.Feedback:
		return c.addFeedback(client, m)
	case *models.ConsolidateMessages:
		return c.consolidate(client, m)
	default:
		return &models.ValidationError{
			Message: fmt.Sprintf("unhandled message type: %q", msg.Type()),
			Cause:   models.ErrUnknownMessage,
		}
	}
}

func (c *Coordinator) requirePresentation() error {
	if c.presentation == nil {
		return models.WrapValidation(models.ErrNoPresentation)
	}
	return nil
}

func (c *Coordinator) presentationsInit(client Client) error {
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	summaries, err := c.store.ListPresentations(ctx)
	if err != nil {
		return fmt.Errorf("list presentations: %w", err)
	}
	c.sendTo(client, models.Event{Type: models.EventAllPresentations, Data: summaries})
	c.sendTo(client, c.snapshotEvent(client.Role()))
	return nil
}

func (c *Coordinator) createPresentation(client Client, m *models.CreatePresentation) error {
	name := strings.TrimSpace(m.Name)
	description := strings.TrimSpace(m.Description)

	p := models.NewPresentation(uuid.NewString(), uuid.NewString(), name, description)
	c.presentation = p
	c.state.PresentationID = p.ID
	c.state.ActiveSlideID = nil
	c.persist(true)
	c.logger.Info("created presentation", "presentation_id", p.ID, "name", name)

	c.sendTo(client, models.Event{Type: models.EventCreatedPresentation, ID: p.ID})
	c.startGeneration(p.ID, name, description)
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) setActivePresentation(m *models.SetActivePresentation) error {
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	p, err := c.store.GetPresentation(ctx, m.ID)
	if errors.Is(err, models.ErrPresentationNotFound) {
		return models.WrapValidation(err)
	}
	if err != nil {
		return fmt.Errorf("load presentation: %w", err)
	}

	c.presentation = p
	c.state.PresentationID = p.ID
	c.state.ActiveSlideID = nil
	c.persist(false)
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) setActiveSlide(m *models.SetActiveSlide) error {
	if err := c.requirePresentation(); err != nil {
		return err
	}
	id := m.SlideID()
	if id != nil && c.presentation.IndexOf(*id) < 0 {
		return models.WrapValidation(fmt.Errorf("%w: %s", models.ErrSlideNotFound, *id))
	}

	c.state.ActiveSlideID = nil
	if id != nil {
		c.state.ActiveSlideID = models.StringPtr(*id)
	}
	c.persist(false)
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) navigate(m *models.NavigateSlide) error {
	if err := c.requirePresentation(); err != nil {
		return err
	}

	var (
		target string
		ok     bool
		err    error
	)
	if m.Direction == models.MsgNavigateNextSlide {
		target, ok, err = c.presentation.NextSlideID(m.CurrentSlideID)
	} else {
		target, ok, err = c.presentation.PreviousSlideID(m.CurrentSlideID)
	}
	if err != nil {
		return models.WrapValidation(err)
	}

	if ok {
		c.state.ActiveSlideID = models.StringPtr(target)
		c.persist(false)
	}
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) toggleCollaboration(m *models.ToggleCollaboration) error {
	mode := models.CollaborationInactive
	if *m.Enabled {
		mode = models.CollaborationActive
	}
	c.state.Config.Collaboration = mode
	c.persist(false)

	c.broadcast(func(models.Role) models.Event {
		return models.Event{Type: models.EventConfigUpdated, Data: models.ConfigData{Collaboration: mode}}
	})
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) updateSlide(m *models.UpdateSlide) error {
	if err := c.requirePresentation(); err != nil {
		return err
	}
	idx := c.presentation.IndexOf(m.SlideID)
	if idx < 0 {
		return models.WrapValidation(fmt.Errorf("%w: %s", models.ErrSlideNotFound, m.SlideID))
	}

	merged := m.SlidePatch.Apply(c.presentation.Slides[idx])
	if err := merged.Validate(); err != nil {
		return err
	}

	next := c.presentation.Clone()
	next.Slides[idx] = merged
	c.commit(next)

	c.broadcast(func(role models.Role) models.Event {
		slide := merged.Clone()
		if role != models.RoleAdmin && c.state.Config.SpeakerNotesVisibility == models.NotesPrivate {
			slide.SpeakerNotes = ""
		}
		return models.Event{Type: models.EventUpdatedSlide, Data: models.UpdatedSlideData{SlideID: merged.ID, Slide: slide}}
	})
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) reorderSlides(m *models.ReorderSlides) error {
	if err := c.requirePresentation(); err != nil {
		return err
	}
	slides, err := models.ReorderByIDs(c.presentation.Slides, m.SlideIDs)
	if err != nil {
		return models.WrapValidation(err)
	}

	next := c.presentation.Clone()
	next.Slides = slides
	c.commit(next)
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) deleteSlide(m *models.DeleteSlideRequest) error {
	if err := c.requirePresentation(); err != nil {
		return err
	}
	slides, err := models.DeleteSlide(c.presentation.Slides, m.SlideID)
	if err != nil {
		return models.WrapValidation(err)
	}

	next := c.presentation.Clone()
	next.Slides = slides
	if c.state.ActiveSlideID != nil && *c.state.ActiveSlideID == m.SlideID {
		c.state.ActiveSlideID = nil
	}
	c.commit(next)
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) addFeedback(client Client, m *models.Feedback) error {
	if err := c.requirePresentation(); err != nil {
		return err
	}
	if c.presentation.IndexOf(m.SlideID) < 0 {
		return models.WrapValidation(fmt.Errorf("%w: %s", models.ErrSlideNotFound, m.SlideID))
	}
	if c.state.Config.Collaboration != models.CollaborationActive {
		return models.WrapValidation(models.ErrCollaborationDisabled)
	}
	if c.feedback == nil {
		return errors.New("collaboration messages are not stored on this server")
	}

	msg := &models.CollaborationMessage{
		ID:             uuid.NewString(),
		PresentationID: c.presentation.ID,
		SlideID:        m.SlideID,
		AuthorRole:     client.Role(),
		AuthorID:       client.ID(),
		Body:           strings.TrimSpace(m.Message),
		CreatedAt:      models.NowMillis(),
	}

	if client.Role() == models.RoleAdmin || c.generator == nil {
		return c.appendFeedback(msg)
	}

	c.runJob(msg.PresentationID, "moderate", func(ctx context.Context) func() {
		valid, err := c.generator.Moderate(ctx, msg.Body)
		if err != nil {
			c.logger.Warn("moderation failed, dropping message", "client_id", msg.AuthorID, "error", err)
			return nil
		}
		if !valid {
			msg.Body = fmt.Sprintf("Message from connection %s contains inappropriate content", msg.AuthorID)
		}
		return func() {
			if err := c.appendFeedback(msg); err != nil {
				c.logger.Error("failed to store collaboration message", "error", err)
			}
		}
	})
	return nil
}

func (c *Coordinator) appendFeedback(msg *models.CollaborationMessage) error {
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	if err := c.feedback.AppendFeedback(ctx, msg); err != nil {
		return fmt.Errorf("store collaboration message: %w", err)
	}
	messages, err := c.feedback.ListFeedback(ctx, msg.PresentationID, msg.SlideID)
	if err != nil {
		return fmt.Errorf("list collaboration messages: %w", err)
	}

	if c.presentation == nil || c.presentation.ID != msg.PresentationID {
		return nil
	}
	c.broadcast(func(models.Role) models.Event {
		return models.Event{
			Type: models.EventCollaborationMessages,
			Data: models.CollaborationData{SlideID: msg.SlideID, Messages: messages},
		}
	})
	return nil
}

func (c *Coordinator) consolidate(client Client, m *models.ConsolidateMessages) error {
	if client.Role() != models.RoleAdmin {
		return models.WrapValidation(models.ErrForbidden)
	}
	if err := c.requirePresentation(); err != nil {
		return err
	}
	slide, ok := c.presentation.Slide(m.SlideID)
	if !ok {
		return models.WrapValidation(fmt.Errorf("%w: %s", models.ErrSlideNotFound, m.SlideID))
	}
	if c.feedback == nil {
		return models.WrapValidation(models.ErrNoFeedback)
	}

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	feedback, err := c.feedback.ListFeedback(ctx, c.presentation.ID, m.SlideID)
	if err != nil {
		return fmt.Errorf("list collaboration messages: %w", err)
	}
	if len(feedback) == 0 {
		return models.WrapValidation(models.ErrNoFeedback)
	}
	if c.generator == nil {
		return errors.New("slide generator is not configured")
	}

	p := c.presentation.Clone()
	target := slide.Clone()
	c.runJob(p.ID, "consolidate", func(ctx context.Context) func() {
		proposal, err := c.generator.ProposeSlideUpdate(ctx, p, target, feedback)
		if err != nil {
			c.logger.Warn("consolidation failed", "slide_id", target.ID, "error", err)
			return nil
		}
		if proposal == nil {
			return nil
		}
		return func() {
			if c.presentation == nil || c.presentation.ID != p.ID {
				return
			}
			update := &models.UpdateSlide{SlideID: proposal.SlideID, SlidePatch: proposal.Patch}
			if err := c.updateSlide(update); err != nil {
				c.logger.Warn("discarding consolidated slide update", "slide_id", proposal.SlideID, "error", err)
			}
		}
	})
	c.broadcastSnapshot()
	return nil
}

func (c *Coordinator) startGeneration(presentationID, name, description string) {
	if c.generator == nil {
		return
	}
	c.runJob(presentationID, "generate", func(ctx context.Context) func() {
		err := c.generator.GenerateSlides(ctx, name, description, func(slides []models.Slide) {
			if err := c.post(ctx, func() { c.applyGenerated(presentationID, slides) }); err != nil {
				c.logger.Debug("dropping generated slides", "presentation_id", presentationID, "error", err)
			}
		})
		if err != nil {
			c.logger.Warn("slide generation failed", "presentation_id", presentationID, "error", err)
		}
		return nil
	})
}

// applyGenerated replaces the slides of the current document with the
// latest generator emission
func (c *Coordinator) applyGenerated(presentationID string, slides []models.Slide) {
	if c.presentation == nil || c.presentation.ID != presentationID {
		c.logger.Debug("dropping slides for inactive presentation", "presentation_id", presentationID)
		return
	}
	if len(slides) == 0 {
		return
	}

	next := c.presentation.Clone()
	next.Slides = make([]models.Slide, len(slides))
	for i, s := range slides {
		next.Slides[i] = s.Clone()
	}
	models.Renumber(next.Slides)
	if c.state.ActiveSlideID != nil && next.IndexOf(*c.state.ActiveSlideID) < 0 {
		c.state.ActiveSlideID = nil
	}
	c.commit(next)
	c.broadcastSnapshot()
}

// runJob runs work off the room goroutine under the generator deadline.
// The function work returns, if any, is applied back on the room goroutine.
// The room reports loading until the job has finished.
func (c *Coordinator) runJob(presentationID, op string, work func(ctx context.Context) func()) {
	c.jobs[presentationID]++
	c.pendingJobs.Add(1)

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()

		start := time.Now()
		apply := work(ctx)
		c.logger.Debug("generator job finished", "op", op, "presentation_id", presentationID, "duration", time.Since(start))

		err := c.post(c.ctx, func() {
			if apply != nil {
				apply()
			}
			c.finishJob(presentationID)
		})
		if err != nil {
			c.pendingJobs.Add(-1)
		}
	}()
}

func (c *Coordinator) finishJob(presentationID string) {
	c.pendingJobs.Add(-1)
	c.jobs[presentationID]--
	if c.jobs[presentationID] <= 0 {
		delete(c.jobs, presentationID)
	}
	c.touch()
	if c.presentation != nil && c.presentation.ID == presentationID {
		c.broadcastSnapshot()
	}
}

// commit swaps in a mutated document, bumps its timestamp and persists it
func (c *Coordinator) commit(next *models.Presentation) {
	next.UpdatedAt = models.NowMillis()
	c.presentation = next
	c.persist(true)
}

// persist saves the room state and optionally the document. Failures are
// logged; the in-memory state stays authoritative.
func (c *Coordinator) persist(withDocument bool) {
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	if withDocument && c.presentation != nil {
		if err := c.store.SavePresentation(ctx, c.presentation); err != nil {
			c.logger.Error("failed to save presentation", "presentation_id", c.presentation.ID, "error", err)
		}
	}

	c.state.Room = c.room
	c.state.UpdatedAt = models.NowMillis()
	if err := c.store.SaveRoom(ctx, &c.state); err != nil {
		c.logger.Error("failed to save room", "error", err)
	}
}

func (c *Coordinator) status() models.Status {
	if c.presentation != nil && c.jobs[c.presentation.ID] > 0 {
		return models.StatusLoading
	}
	return models.StatusIdle
}

func (c *Coordinator) snapshot() models.Snapshot {
	var active *string
	if c.state.ActiveSlideID != nil {
		active = models.StringPtr(*c.state.ActiveSlideID)
	}
	return models.Snapshot{
		Room:            c.room,
		ConnectionCount: len(c.clients),
		ActiveSlideID:   active,
		Status:          c.status(),
		Config:          c.state.Config,
		Presentation:    c.presentation,
	}
}

func (c *Coordinator) snapshotEvent(role models.Role) models.Event {
	return models.Event{Type: models.EventPresentationUpdated, Data: c.snapshot().ForRole(role)}
}

func (c *Coordinator) broadcastSnapshot() {
	c.broadcast(c.snapshotEvent)
}

func (c *Coordinator) broadcastConnections() {
	count := len(c.clients)
	c.broadcast(func(models.Role) models.Event {
		return models.Event{Type: models.EventInitialConnections, Data: models.ConnectionsData{ConnectionCount: count}}
	})
}

// broadcast sends one frame to every client, encoding it once per role
func (c *Coordinator) broadcast(build func(models.Role) models.Event) {
	frames := make(map[models.Role][]byte, 2)
	for _, client := range c.clients {
		role := client.Role()
		frame, ok := frames[role]
		if !ok {
			frame = c.encode(build(role))
			frames[role] = frame
		}
		if frame == nil {
			continue
		}
		if !client.Send(frame) {
			c.logger.Warn("dropped frame for slow client", "client_id", client.ID())
		}
	}
}

func (c *Coordinator) sendTo(client Client, event models.Event) {
	frame := c.encode(event)
	if frame == nil {
		return
	}
	if !client.Send(frame) {
		c.logger.Warn("dropped frame for slow client", "client_id", client.ID())
	}
}

func (c *Coordinator) encode(event models.Event) []byte {
	frame, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to encode frame", "type", event.Type, "error", err)
		return nil
	}
	return frame
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/vibe-presenting/server/internal/models"
)

// ErrInvalidRoom is returned for room names outside [A-Za-z0-9._-]{1,64}
var ErrInvalidRoom = errors.New("invalid room name")

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidRoomName reports whether name can address a room
func ValidRoomName(name string) bool {
	return roomNamePattern.MatchString(name)
}

// ServiceOptions configures the room registry
type ServiceOptions struct {
	Store            Store
	Feedback         FeedbackStore
	Generator        SlideGenerator
	Defaults         models.Config
	GeneratorTimeout time.Duration
	IdleTimeout      time.Duration
}

// WebSocketService maps room names to running coordinators. Rooms start on
// first use and are stopped after staying idle for IdleTimeout.
type WebSocketService struct {
	opts   ServiceOptions
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Coordinator
}

// NewWebSocketService creates the registry. Coordinators it starts are
// bound to ctx.
func NewWebSocketService(ctx context.Context, opts ServiceOptions) *WebSocketService {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WebSocketService{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		logger: slog.With("component", "rooms"),
		rooms:  make(map[string]*Coordinator),
	}
}

// Room returns the coordinator for name, starting it if needed
func (s *WebSocketService) Room(name string) (*Coordinator, error) {
	if !ValidRoomName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return nil, ErrCoordinatorStopped
	}
	if c, ok := s.rooms[name]; ok {
		select {
		case <-c.Done():
			delete(s.rooms, name)
		default:
			return c, nil
		}
	}

	c, err := NewCoordinator(s.ctx, CoordinatorOptions{
		Room:             name,
		Store:            s.opts.Store,
		Feedback:         s.opts.Feedback,
		Generator:        s.opts.Generator,
		Defaults:         s.opts.Defaults,
		GeneratorTimeout: s.opts.GeneratorTimeout,
	})
	if err != nil {
		return nil, err
	}
	s.rooms[name] = c
	s.logger.Info("room opened", "room", name, "rooms", len(s.rooms))
	return c, nil
}

// Attach connects client to the named room. A room that was reaped between
// lookup and attach is started again.
func (s *WebSocketService) Attach(name string, client Client) (*Coordinator, error) {
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.Room(name)
		if err != nil {
			return nil, err
		}
		err = c.Attach(client)
		if errors.Is(err, ErrCoordinatorStopped) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, ErrCoordinatorStopped
}

// Rooms returns the names of the running rooms
func (s *WebSocketService) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run reaps idle rooms until ctx is cancelled or Stop is called
func (s *WebSocketService) Run(ctx context.Context) {
	interval := s.opts.IdleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *WebSocketService) reap() {
	var idle []*Coordinator

	s.mu.Lock()
	for name, c := range s.rooms {
		if c.Idle(s.opts.IdleTimeout) {
			idle = append(idle, c)
			delete(s.rooms, name)
		}
	}
	remaining := len(s.rooms)
	s.mu.Unlock()

	for _, c := range idle {
		c.Stop()
		s.logger.Info("room closed after idle timeout", "room", c.Room(), "rooms", remaining)
	}
}

// HandleRemotePress moves the active slide of room one step in the
// direction of action. With no active slide, next opens the first slide and
// previous does nothing. It reports whether the active slide changed.
func (s *WebSocketService) HandleRemotePress(ctx context.Context, room string, action models.RemoteAction) (bool, error) {
	c, err := s.Room(room)
	if err != nil {
		return false, err
	}
	snap, err := c.Snapshot(ctx, models.RoleAdmin)
	if err != nil {
		return false, err
	}
	if snap.Presentation == nil || len(snap.Presentation.Slides) == 0 {
		return false, models.ErrNoPresentation
	}

	var msg any
	switch {
	case snap.ActiveSlideID == nil && action == models.RemotePrevious:
		return false, nil
	case snap.ActiveSlideID == nil:
		msg = map[string]any{"type": models.MsgSetActiveSlide, "id": snap.Presentation.Slides[0].ID}
	case action == models.RemotePrevious:
		msg = map[string]any{"type": models.MsgNavigatePreviousSlide, "currentSlideId": *snap.ActiveSlideID}
	default:
		msg = map[string]any{"type": models.MsgNavigateNextSlide, "currentSlideId": *snap.ActiveSlideID}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	if err := c.Do(ctx, remoteClient{room: room}, raw); err != nil {
		return false, err
	}

	after, err := c.Snapshot(ctx, models.RoleAdmin)
	if err != nil {
		return false, err
	}
	return !sameSlide(snap.ActiveSlideID, after.ActiveSlideID), nil
}

func sameSlide(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// remoteClient is the admin identity a clicker press acts through. Frames
// addressed to it are discarded.
type remoteClient struct {
	room string
}

func (r remoteClient) ID() string         { return "remote-" + r.room }
func (r remoteClient) Role() models.Role  { return models.RoleAdmin }
func (r remoteClient) Send(_ []byte) bool { return true }

// Stop shuts down every room
func (s *WebSocketService) Stop() {
	s.cancel()

	s.mu.Lock()
	rooms := s.rooms
	s.rooms = make(map[string]*Coordinator)
	s.mu.Unlock()

	for _, c := range rooms {
		c.Stop()
	}
	s.logger.Info("all rooms stopped", "count", len(rooms))
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vibe-presenting/server/internal/models"
)

// presentationsFile is the root structure of presentations.json
type presentationsFile struct {
	Presentations map[string]*models.Presentation `json:"presentations"`
	Rooms         map[string]*models.RoomState    `json:"rooms"`
}

// FileStore keeps documents and rooms in a single JSON file
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	data     *presentationsFile
}

// NewFileStore creates a file store under dataPath and loads existing data
func NewFileStore(dataPath string) (*FileStore, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &FileStore{
		filePath: filepath.Join(dataPath, "presentations.json"),
		data:     emptyPresentationsFile(),
	}

	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load presentations: %w", err)
	}

	return store, nil
}

func emptyPresentationsFile() *presentationsFile {
	return &presentationsFile{
		Presentations: make(map[string]*models.Presentation),
		Rooms:         make(map[string]*models.RoomState),
	}
}

// Load reads presentations.json, keeping an empty structure if the file
// does not exist
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		slog.Info("presentations file not found, starting empty", "path", s.filePath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read presentations file: %w", err)
	}

	file := emptyPresentationsFile()
	if err := json.Unmarshal(data, file); err != nil {
		return fmt.Errorf("failed to parse presentations file: %w", err)
	}
	if file.Presentations == nil {
		file.Presentations = make(map[string]*models.Presentation)
	}
	if file.Rooms == nil {
		file.Rooms = make(map[string]*models.RoomState)
	}

	s.data = file
	slog.Info("loaded presentations", "count", len(s.data.Presentations), "path", s.filePath)
	return nil
}

// save atomically writes presentations.json (temp file → rename)
// Must be called with lock held
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal presentations: %w", err)
	}

	tempPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SavePresentation stores a copy of p
func (s *FileStore) SavePresentation(_ context.Context, p *models.Presentation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Presentations[p.ID] = p.Clone()
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save presentation %s: %w", p.ID, err)
	}
	return nil
}

// GetPresentation returns a copy of the stored document
func (s *FileStore) GetPresentation(_ context.Context, id string) (*models.Presentation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data.Presentations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrPresentationNotFound, id)
	}
	return p.Clone(), nil
}

// ListPresentations returns summaries, most recently updated first
func (s *FileStore) ListPresentations(_ context.Context) ([]models.PresentationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]models.PresentationSummary, 0, len(s.data.Presentations))
	for _, p := range s.data.Presentations {
		summaries = append(summaries, p.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt != summaries[j].UpdatedAt {
			return summaries[i].UpdatedAt > summaries[j].UpdatedAt
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// SaveRoom stores a copy of the room state
func (s *FileStore) SaveRoom(_ context.Context, room *models.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *room
	if room.ActiveSlideID != nil {
		cp.ActiveSlideID = models.StringPtr(*room.ActiveSlideID)
	}
	s.data.Rooms[room.Room] = &cp
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save room %s: %w", room.Room, err)
	}
	return nil
}

// GetRoom returns a copy of the stored room state
func (s *FileStore) GetRoom(_ context.Context, name string) (*models.RoomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.data.Rooms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, name)
	}
	cp := *room
	if room.ActiveSlideID != nil {
		cp.ActiveSlideID = models.StringPtr(*room.ActiveSlideID)
	}
	return &cp, nil
}

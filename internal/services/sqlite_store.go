package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vibe-presenting/server/internal/models"
)

// SQLiteStore implements Store and FeedbackStore on a SQLite database
type SQLiteStore struct {
	database *sql.DB
}

// NewSQLiteStore creates a store on an initialized database
func NewSQLiteStore(database *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		database: database,
	}
}

// SavePresentation inserts or replaces a document
func (s *SQLiteStore) SavePresentation(ctx context.Context, p *models.Presentation) error {
	document, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal presentation: %w", err)
	}

	query := `INSERT INTO presentations
		(id, name, description, document, slide_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			document = excluded.document,
			slide_count = excluded.slide_count,
			updated_at = excluded.updated_at`

	_, err = s.database.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, string(document), len(p.Slides), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save presentation: %w", err)
	}
	return nil
}

// GetPresentation loads a document by id
func (s *SQLiteStore) GetPresentation(ctx context.Context, id string) (*models.Presentation, error) {
	var document string
	err := s.database.QueryRowContext(ctx,
		`SELECT document FROM presentations WHERE id = ?`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrPresentationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query presentation: %w", err)
	}

	var p models.Presentation
	if err := json.Unmarshal([]byte(document), &p); err != nil {
		return nil, fmt.Errorf("failed to decode presentation %s: %w", id, err)
	}
	return &p, nil
}

// ListPresentations returns summaries, most recently updated first
func (s *SQLiteStore) ListPresentations(ctx context.Context) ([]models.PresentationSummary, error) {
	query := `SELECT id, name, description, slide_count, created_at, updated_at
		FROM presentations ORDER BY updated_at DESC`

	rows, err := s.database.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query presentations: %w", err)
	}
	defer rows.Close()

	summaries := []models.PresentationSummary{}
	for rows.Next() {
		var summary models.PresentationSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&summary.Description,
			&summary.SlideCount,
			&summary.CreatedAt,
			&summary.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan presentation: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SaveRoom inserts or replaces the persisted state of a room
func (s *SQLiteStore) SaveRoom(ctx context.Context, room *models.RoomState) error {
	config, err := json.Marshal(room.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal room config: %w", err)
	}

	var activeSlide sql.NullString
	if room.ActiveSlideID != nil {
		activeSlide = sql.NullString{String: *room.ActiveSlideID, Valid: true}
	}

	query := `INSERT INTO rooms (name, presentation_id, active_slide_id, config, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			presentation_id = excluded.presentation_id,
			active_slide_id = excluded.active_slide_id,
			config = excluded.config,
			updated_at = excluded.updated_at`

	_, err = s.database.ExecContext(ctx, query,
		room.Room, room.PresentationID, activeSlide, string(config), room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

// GetRoom loads the persisted state of a room
func (s *SQLiteStore) GetRoom(ctx context.Context, name string) (*models.RoomState, error) {
	var (
		room        models.RoomState
		activeSlide sql.NullString
		config      string
	)
	err := s.database.QueryRowContext(ctx,
		`SELECT name, presentation_id, active_slide_id, config, updated_at FROM rooms WHERE name = ?`, name).
		Scan(&room.Room, &room.PresentationID, &activeSlide, &config, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query room: %w", err)
	}

	if activeSlide.Valid {
		room.ActiveSlideID = models.StringPtr(activeSlide.String)
	}
	if err := json.Unmarshal([]byte(config), &room.Config); err != nil {
		return nil, fmt.Errorf("failed to decode room config: %w", err)
	}
	return &room, nil
}

// AppendFeedback stores one collaboration message
func (s *SQLiteStore) AppendFeedback(ctx context.Context, msg *models.CollaborationMessage) error {
	query := `INSERT INTO collaboration_messages
		(id, presentation_id, slide_id, author_role, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.database.ExecContext(ctx, query,
		msg.ID, msg.PresentationID, msg.SlideID, string(msg.AuthorRole), msg.AuthorID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert collaboration message: %w", err)
	}
	return nil
}

// ListFeedback returns the messages of a slide in insertion order
func (s *SQLiteStore) ListFeedback(ctx context.Context, presentationID, slideID string) ([]models.CollaborationMessage, error) {
	query := `SELECT id, presentation_id, slide_id, author_role, author_id, body, created_at
		FROM collaboration_messages
		WHERE presentation_id = ? AND slide_id = ?
		ORDER BY created_at, rowid`

	rows, err := s.database.QueryContext(ctx, query, presentationID, slideID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaboration messages: %w", err)
	}
	defer rows.Close()

	messages := []models.CollaborationMessage{}
	for rows.Next() {
		var (
			msg  models.CollaborationMessage
			role string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.PresentationID,
			&msg.SlideID,
			&role,
			&msg.AuthorID,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan collaboration message: %w", err)
		}
		msg.AuthorRole = models.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vibe-presenting/server/internal/models"
)

const remoteColumns = `id, mac_address, name, room, is_active, press_count, last_press, created_at, updated_at`

// RemoteService manages presenter clicker remotes
type RemoteService struct {
	database *sql.DB
	logger   *slog.Logger
}

// NewRemoteService creates a remote service on an initialized database
func NewRemoteService(database *sql.DB) *RemoteService {
	return &RemoteService{
		database: database,
		logger:   slog.With("component", "remotes"),
	}
}

// Register adds a remote. Registering a known MAC address returns the
// existing remote unchanged.
func (rs *RemoteService) Register(ctx context.Context, macAddress, name string) (*models.Remote, error) {
	mac, err := models.ValidateMAC(macAddress)
	if err != nil {
		return nil, err
	}

	existing, err := rs.Get(ctx, mac)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrRemoteNotFound) {
		return nil, err
	}

	now := models.NowMillis()
	query := `INSERT INTO presenter_remotes
		(id, mac_address, name, room, is_active, press_count, created_at, updated_at)
		VALUES (?, ?, ?, '', 1, 0, ?, ?)
		ON CONFLICT(mac_address) DO NOTHING`

	// Last 6 hex digits identify the device
	id := "rmt_" + mac[len(mac)-6:]
	if _, err := rs.database.ExecContext(ctx, query, id, mac, name, now, now); err != nil {
		return nil, fmt.Errorf("failed to insert remote: %w", err)
	}

	rs.logger.Info("remote registered", "mac", mac, "id", id)
	return rs.Get(ctx, mac)
}

// Get returns a remote by MAC address
func (rs *RemoteService) Get(ctx context.Context, macAddress string) (*models.Remote, error) {
	mac := models.NormalizeMAC(macAddress)
	row := rs.database.QueryRowContext(ctx,
		`SELECT `+remoteColumns+` FROM presenter_remotes WHERE mac_address = ?`, mac)

	remote, err := scanRemote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRemoteNotFound, mac)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query remote: %w", err)
	}
	return remote, nil
}

// Assign binds a remote to a room
func (rs *RemoteService) Assign(ctx context.Context, macAddress, room string) (*models.Remote, error) {
	if !ValidRoomName(room) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	mac := models.NormalizeMAC(macAddress)
	if err := rs.update(ctx, `UPDATE presenter_remotes SET room = ?, updated_at = ? WHERE mac_address = ?`,
		room, models.NowMillis(), mac); err != nil {
		return nil, err
	}
	rs.logger.Info("remote assigned", "mac", mac, "room", room)
	return rs.Get(ctx, mac)
}

// Unassign releases a remote from its room
func (rs *RemoteService) Unassign(ctx context.Context, macAddress string) error {
	mac := models.NormalizeMAC(macAddress)
	if err := rs.update(ctx, `UPDATE presenter_remotes SET room = '', updated_at = ? WHERE mac_address = ?`,
		models.NowMillis(), mac); err != nil {
		return err
	}
	rs.logger.Info("remote unassigned", "mac", mac)
	return nil
}

// SetActive enables or disables a remote. Presses from a disabled remote
// are rejected.
func (rs *RemoteService) SetActive(ctx context.Context, macAddress string, active bool) error {
	mac := models.NormalizeMAC(macAddress)
	return rs.update(ctx, `UPDATE presenter_remotes SET is_active = ?, updated_at = ? WHERE mac_address = ?`,
		active, models.NowMillis(), mac)
}

// RecordPress counts a press and returns the updated remote
func (rs *RemoteService) RecordPress(ctx context.Context, macAddress string) (*models.Remote, error) {
	remote, err := rs.Get(ctx, macAddress)
	if err != nil {
		return nil, err
	}
	if !remote.IsActive {
		return nil, fmt.Errorf("%w: %s", models.ErrRemoteInactive, remote.MACAddress)
	}

	now := models.NowMillis()
	_, err = rs.database.ExecContext(ctx, `UPDATE presenter_remotes
		SET press_count = press_count + 1, last_press = ?, updated_at = ?
		WHERE mac_address = ?`, now, now, remote.MACAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to update remote press: %w", err)
	}

	remote.PressCount++
	remote.LastPress = now
	remote.UpdatedAt = now
	rs.logger.Debug("remote press recorded", "mac", remote.MACAddress, "presses", remote.PressCount)
	return remote, nil
}

// List returns every remote, newest first
func (rs *RemoteService) List(ctx context.Context) ([]*models.Remote, error) {
	return rs.query(ctx, `SELECT `+remoteColumns+` FROM presenter_remotes ORDER BY created_at DESC, id`)
}

// ListByRoom returns the remotes bound to room
func (rs *RemoteService) ListByRoom(ctx context.Context, room string) ([]*models.Remote, error) {
	return rs.query(ctx, `SELECT `+remoteColumns+` FROM presenter_remotes WHERE room = ? ORDER BY created_at DESC, id`, room)
}

// Delete removes a remote
func (rs *RemoteService) Delete(ctx context.Context, macAddress string) error {
	mac := models.NormalizeMAC(macAddress)
	if err := rs.update(ctx, `DELETE FROM presenter_remotes WHERE mac_address = ?`, mac); err != nil {
		return err
	}
	rs.logger.Info("remote deleted", "mac", mac)
	return nil
}

// update runs a single-row statement whose last argument is the MAC address
func (rs *RemoteService) update(ctx context.Context, query string, args ...any) error {
	result, err := rs.database.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update remote: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", models.ErrRemoteNotFound, args[len(args)-1])
	}
	return nil
}

func (rs *RemoteService) query(ctx context.Context, query string, args ...any) ([]*models.Remote, error) {
	rows, err := rs.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query remotes: %w", err)
	}
	defer rows.Close()

	remotes := []*models.Remote{}
	for rows.Next() {
		remote, err := scanRemote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan remote: %w", err)
		}
		remotes = append(remotes, remote)
	}
	return remotes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRemote(row rowScanner) (*models.Remote, error) {
	var (
		remote    models.Remote
		lastPress sql.NullInt64
	)
	err := row.Scan(
		&remote.ID,
		&remote.MACAddress,
		&remote.Name,
		&remote.Room,
		&remote.IsActive,
		&remote.PressCount,
		&lastPress,
		&remote.CreatedAt,
		&remote.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastPress.Valid {
		remote.LastPress = lastPress.Int64
	}
	return &remote, nil
}

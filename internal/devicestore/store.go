package devicestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages device persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the device database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps PRAGMA foreign_keys in effect for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// FindDevice looks a device up by identifier first, then by display name.
// It returns nil, nil when neither matches.
func (s *Store) FindDevice(ctx context.Context, nameOrID string) (*Device, error) {
	key := strings.TrimSpace(nameOrID)
	if key == "" {
		return nil, nil
	}
	device, err := s.scanDevice(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, key)
	if err != nil || device != nil {
		return device, err
	}
	return s.scanDevice(ctx, `SELECT `+deviceColumns+` FROM devices WHERE name = ? ORDER BY updated_at DESC LIMIT 1`, key)
}

// SaveDevice inserts a device or overwrites the name and data of an existing one.
func (s *Store) SaveDevice(ctx context.Context, device Device) error {
	if strings.TrimSpace(device.ID) == "" {
		return fmt.Errorf("%w: device id is required", ErrWriteFailed)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO devices (id, name, data, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data, updated_at = excluded.updated_at`,
		device.ID, device.Name, device.Data, timestamp, timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: save device %s: %w", ErrWriteFailed, device.ID, err)
	}
	return nil
}

// ListDevices returns every stored device with its file count, most recently
// updated first.
func (s *Store) ListDevices(ctx context.Context) ([]DeviceSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.name, d.data, d.created_at, d.updated_at,
                COUNT(f.id), MAX(f.uploaded_at)
         FROM devices d
         LEFT JOIN files f ON f.device_id = d.id
         GROUP BY d.id
         ORDER BY d.updated_at DESC, d.id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceSummary
	for rows.Next() {
		var (
			summary    DeviceSummary
			createdRaw string
			updatedRaw string
			lastRaw    sql.NullString
		)
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.Data, &createdRaw, &updatedRaw, &summary.FileCount, &lastRaw); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		summary.CreatedAt, _ = parseTimeString(createdRaw)
		summary.UpdatedAt, _ = parseTimeString(updatedRaw)
		if lastRaw.Valid {
			summary.LastUploadAt, _ = parseTimeString(lastRaw.String)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// ForgetDevice removes a device together with its file and metadata history.
func (s *Store) ForgetDevice(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%w: check device %s: %w", ErrWriteFailed, id, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		for _, stmt := range []string{
			`DELETE FROM files WHERE device_id = ?`,
			`DELETE FROM metadata WHERE device_id = ?`,
			`DELETE FROM devices WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("%w: forget device %s: %w", ErrWriteFailed, id, err)
			}
		}
		return nil
	})
}

const deviceColumns = "id, name, data, created_at, updated_at"

func (s *Store) scanDevice(ctx context.Context, query string, args ...any) (*Device, error) {
	var (
		device     Device
		createdRaw string
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&device.ID, &device.Name, &device.Data, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	device.CreatedAt, _ = parseTimeString(createdRaw)
	device.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &device, nil
}

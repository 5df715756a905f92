package devicestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tunedrop/internal/metadata"
)

// RecordUpload stores a fresh metadata row for the device and points the
// (device, path) file record at it, creating the record on first upload.
// It must only be called after the device acknowledged the upload.
func (s *Store) RecordUpload(ctx context.Context, deviceID, path string, md metadata.Metadata) (*FileRecord, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	record := &FileRecord{DeviceID: deviceID, Path: path, Metadata: md, UploadedAt: now}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE id = ?`, deviceID).Scan(&exists); err != nil {
			return fmt.Errorf("%w: check device %s: %w", ErrWriteFailed, deviceID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (device_id, title, artist, album, track_number, external_id, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			deviceID,
			nullableString(md.Title),
			nullableString(md.Artist),
			nullableString(md.Album),
			nullableInt(md.TrackNumber),
			nullableString(md.ExternalID),
			timestamp,
		)
		if err != nil {
			return fmt.Errorf("%w: insert metadata: %w", ErrWriteFailed, err)
		}
		if record.MetadataID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("%w: metadata id: %w", ErrWriteFailed, err)
		}

		if err := tx.QueryRowContext(ctx,
			`INSERT INTO files (device_id, path, metadata_id, uploaded_at)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(device_id, path) DO UPDATE SET metadata_id = excluded.metadata_id, uploaded_at = excluded.uploaded_at
             RETURNING id`,
			deviceID, path, record.MetadataID, timestamp,
		).Scan(&record.ID); err != nil {
			return fmt.Errorf("%w: upsert file: %w", ErrWriteFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Files lists the file records of a device ordered by path.
func (s *Store) Files(ctx context.Context, deviceID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.device_id, f.path, f.metadata_id, f.uploaded_at,
                m.title, m.artist, m.album, m.track_number, m.external_id
         FROM files f
         JOIN metadata m ON m.id = f.metadata_id
         WHERE f.device_id = ?
         ORDER BY f.path`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

// FileByPath returns the file record for a device and path, or nil when the
// path was never recorded.
func (s *Store) FileByPath(ctx context.Context, deviceID, path string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT f.id, f.device_id, f.path, f.metadata_id, f.uploaded_at,
                m.title, m.artist, m.album, m.track_number, m.external_id
         FROM files f
         JOIN metadata m ON m.id = f.metadata_id
         WHERE f.device_id = ? AND f.path = ?`, deviceID, path)
	record, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// MetadataCount reports how many metadata rows exist for a device.
func (s *Store) MetadataCount(ctx context.Context, deviceID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata WHERE device_id = ?`, deviceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count metadata: %w", err)
	}
	return count, nil
}

func scanFile(scanner interface{ Scan(dest ...any) error }) (*FileRecord, error) {
	var (
		record      FileRecord
		uploadedRaw string
		title       sql.NullString
		artist      sql.NullString
		album       sql.NullString
		track       sql.NullInt64
		externalID  sql.NullString
	)
	if err := scanner.Scan(
		&record.ID,
		&record.DeviceID,
		&record.Path,
		&record.MetadataID,
		&uploadedRaw,
		&title,
		&artist,
		&album,
		&track,
		&externalID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	record.UploadedAt, _ = parseTimeString(uploadedRaw)
	record.Metadata = metadata.Metadata{
		Title:       title.String,
		Artist:      artist.String,
		Album:       album.String,
		TrackNumber: int(track.Int64),
		ExternalID:  externalID.String,
	}
	return &record, nil
}

// Package storage persists the local download ledger and provides
// filesystem primitives for safe concurrent use: advisory file locks
// and atomic file writes.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// VideoRecord is one processed video in the local ledger. The ledger is
// the authoritative local record of what has been downloaded, independent
// of the spreadsheet.
type VideoRecord struct {
	ID              string // Ledger row UUID
	VideoID         string // YouTube video ID, unique
	URL             string
	Title           string
	DurationSeconds int
	FileSizeBytes   int64
	LocalPath       string
	DriveFileID     string
	UploadStatus    string
	DownloadedAt    time.Time
}

// Ledger is a SQLite-backed record of processed videos.
type Ledger struct {
	db *sql.DB
}

var ledgerMigrations = []string{
	`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		file_size_bytes INTEGER NOT NULL DEFAULT 0,
		local_path TEXT NOT NULL DEFAULT '',
		drive_file_id TEXT NOT NULL DEFAULT '',
		upload_status TEXT NOT NULL DEFAULT '',
		downloaded_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_video_id ON videos(video_id)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_downloaded_at ON videos(downloaded_at)`,
}

// OpenLedger opens (and creates, if needed) the ledger database at path.
// Pass ":memory:" for an ephemeral in-memory ledger.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "ledger", ID: path, Err: err}
	}

	// SQLite handles one writer at a time. Serializing through a single
	// connection avoids SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	for i, migration := range ledgerMigrations {
		if _, err := db.Exec(migration); err != nil {
			db.Close()
			return nil, &StorageError{Op: "migrate", Entity: "ledger", ID: path,
				Err: fmt.Errorf("migration %d: %w", i, err)}
		}
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts a new video record. The record's ID and DownloadedAt are
// assigned here if unset. Returns ErrAlreadyExists if the video ID is
// already in the ledger.
func (l *Ledger) Record(ctx context.Context, rec *VideoRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now().UTC()
	}

	exists, err := l.Has(ctx, rec.VideoID)
	if err != nil {
		return err
	}
	if exists {
		return &StorageError{Op: "record", Entity: "video", ID: rec.VideoID, Err: ErrAlreadyExists}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO videos
		(id, video_id, url, title, duration_seconds, file_size_bytes, local_path, drive_file_id, upload_status, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.VideoID,
		rec.URL,
		rec.Title,
		rec.DurationSeconds,
		rec.FileSizeBytes,
		rec.LocalPath,
		rec.DriveFileID,
		rec.UploadStatus,
		rec.DownloadedAt,
	)
	if err != nil {
		return &StorageError{Op: "record", Entity: "video", ID: rec.VideoID, Err: err}
	}
	return nil
}

// Has reports whether a video ID has already been recorded.
func (l *Ledger) Has(ctx context.Context, videoID string) (bool, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM videos WHERE video_id = ?`, videoID).Scan(&count)
	if err != nil {
		return false, &StorageError{Op: "has", Entity: "video", ID: videoID, Err: err}
	}
	return count > 0, nil
}

// Get returns the record for a video ID, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, videoID string) (*VideoRecord, error) {
	rec := &VideoRecord{}
	err := l.db.QueryRowContext(ctx, `
		SELECT id, video_id, url, title, duration_seconds, file_size_bytes, local_path, drive_file_id, upload_status, downloaded_at
		FROM videos WHERE video_id = ?`, videoID).Scan(
		&rec.ID,
		&rec.VideoID,
		&rec.URL,
		&rec.Title,
		&rec.DurationSeconds,
		&rec.FileSizeBytes,
		&rec.LocalPath,
		&rec.DriveFileID,
		&rec.UploadStatus,
		&rec.DownloadedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &StorageError{Op: "get", Entity: "video", ID: videoID, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Entity: "video", ID: videoID, Err: err}
	}
	return rec, nil
}

// MarkUploaded records the Drive file ID and upload status for a video.
func (l *Ledger) MarkUploaded(ctx context.Context, videoID, driveFileID, status string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE videos SET drive_file_id = ?, upload_status = ? WHERE video_id = ?`,
		driveFileID, status, videoID)
	if err != nil {
		return &StorageError{Op: "update", Entity: "video", ID: videoID, Err: err}
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return &StorageError{Op: "update", Entity: "video", ID: videoID, Err: ErrNotFound}
	}
	return nil
}

// Recent returns the most recently downloaded records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*VideoRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, video_id, url, title, duration_seconds, file_size_bytes, local_path, drive_file_id, upload_status, downloaded_at
		FROM videos ORDER BY downloaded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "videos", Err: err}
	}
	defer rows.Close()

	var recs []*VideoRecord
	for rows.Next() {
		rec := &VideoRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.VideoID,
			&rec.URL,
			&rec.Title,
			&rec.DurationSeconds,
			&rec.FileSizeBytes,
			&rec.LocalPath,
			&rec.DriveFileID,
			&rec.UploadStatus,
			&rec.DownloadedAt,
		); err != nil {
			return nil, &StorageError{Op: "list", Entity: "videos", Err: err}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Entity: "videos", Err: err}
	}
	return recs, nil
}

// Count returns the total number of ledger records.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count)
	if err != nil {
		return 0, &StorageError{Op: "count", Entity: "videos", Err: err}
	}
	return count, nil
}

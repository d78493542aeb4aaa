// Package pipeline orchestrates processing a single video: validate the
// URL, fetch metadata, record a spreadsheet row, download, upload to
// Drive, then reconcile statuses and clean up.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"ytmanager/config"
	"ytmanager/drive"
	"ytmanager/httpx"
	"ytmanager/sheets"
	"ytmanager/storage"
	"ytmanager/youtube"
)

// ErrAlreadyProcessed is returned when the video is already tracked in
// the ledger or the spreadsheet.
var ErrAlreadyProcessed = errors.New("video already processed")

// MetadataFetcher resolves video metadata for a video ID.
type MetadataFetcher interface {
	Fetch(ctx context.Context, videoID string) (*youtube.VideoMetadata, error)
}

// Downloader fetches the video file.
type Downloader interface {
	Download(ctx context.Context, videoID string, opts *youtube.DownloadOptions) (*youtube.DownloadResult, error)
}

// SheetRecorder maintains the tracking spreadsheet.
type SheetRecorder interface {
	EnsureHeaders(ctx context.Context) error
	HasVideo(ctx context.Context, videoID string) (bool, error)
	Append(ctx context.Context, rec sheets.Record) error
	SetStatus(ctx context.Context, videoID, driveFileID, status string) error
}

// Uploader stores the video file in Drive.
type Uploader interface {
	Upload(ctx context.Context, path string, opts drive.UploadOptions) (*drive.FileInfo, error)
}

// Ledger is the local record of processed videos.
type Ledger interface {
	Has(ctx context.Context, videoID string) (bool, error)
	Record(ctx context.Context, rec *storage.VideoRecord) error
}

// ThumbnailFetcher downloads thumbnail images.
type ThumbnailFetcher interface {
	Get(ctx context.Context, url string) (*httpx.Response, error)
}

// Result summarizes one processed video.
type Result struct {
	VideoID     string
	Title       string
	LocalPath   string // Empty when the file was removed after upload
	DriveFileID string
	Status      string
	FileSize    int64
	Duration    time.Duration
}

// Processor runs the pipeline. All dependencies are injected.
type Processor struct {
	cfg      *config.Config
	log      *zap.Logger
	metadata MetadataFetcher
	download Downloader
	sheet    SheetRecorder
	uploader Uploader
	ledger   Ledger
	thumbs   ThumbnailFetcher

	// LockTimeout bounds waiting for the cross-process run lock.
	LockTimeout time.Duration

	// OnDownloadProgress and OnUploadProgress receive progress updates
	// when set. Both may be called from the downloading goroutine.
	OnDownloadProgress func(percent float64)
	OnUploadProgress   func(current, total int64)
}

// New creates a Processor. The uploader may be nil when Drive uploads
// are disabled; the thumbnail fetcher may be nil when thumbnails are.
func New(cfg *config.Config, log *zap.Logger, metadata MetadataFetcher, download Downloader, sheet SheetRecorder, uploader Uploader, ledger Ledger, thumbs ThumbnailFetcher) *Processor {
	return &Processor{
		cfg:         cfg,
		log:         log,
		metadata:    metadata,
		download:    download,
		sheet:       sheet,
		uploader:    uploader,
		ledger:      ledger,
		thumbs:      thumbs,
		LockTimeout: 30 * time.Second,
	}
}

// Process runs the full pipeline for one video URL.
func (p *Processor) Process(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()

	videoID, err := youtube.ParseVideoID(rawURL)
	if err != nil {
		return nil, err
	}
	log := p.log.With(zap.String("video_id", videoID))

	lock := storage.NewFileLock(p.cfg.LedgerPath())
	if err := lock.Lock(p.LockTimeout); err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer lock.Unlock()

	seen, err := p.ledger.Has(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if seen {
		log.Info("skipping, already in local ledger")
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, videoID)
	}

	if err := p.sheet.EnsureHeaders(ctx); err != nil {
		return nil, err
	}
	inSheet, err := p.sheet.HasVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if inSheet {
		log.Info("skipping, already in spreadsheet")
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, videoID)
	}

	log.Info("fetching metadata")
	meta, err := p.metadata.Fetch(ctx, videoID)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("title", meta.Title))

	rec := sheets.Record{
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.JoinedTags(),
		Category:    meta.Category(),
		Thumbnail:   meta.ThumbnailURL,
		Playlist:    p.cfg.PlaylistID,
		VideoID:     videoID,
		UploadDate:  meta.UploadDate,
		Status:      sheets.StatusPending,
	}
	if err := p.sheet.Append(ctx, rec); err != nil {
		return nil, err
	}

	log.Info("downloading video")
	dl, err := p.download.Download(ctx, videoID, &youtube.DownloadOptions{
		OutputDir:  p.cfg.TempDir(),
		OnProgress: p.OnDownloadProgress,
	})
	if err != nil {
		return nil, err
	}
	// A successful move renames the temp file away; this only fires when a
	// later step fails.
	defer func() {
		if err := os.Remove(dl.VideoPath); err != nil && !os.IsNotExist(err) {
			log.Warn("temp file not removed", zap.Error(err))
		}
	}()

	finalPath, err := p.moveToProcessed(dl.VideoPath, meta)
	if err != nil {
		return nil, err
	}
	// If a later step fails the sheet row is still Pending; remove the
	// moved file as well so nothing is left stranded on disk.
	done := false
	defer func() {
		if done {
			return
		}
		if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
			log.Warn("processed file not removed", zap.Error(err))
		}
	}()
	log.Info("download complete",
		zap.String("path", finalPath),
		zap.Int64("size_bytes", dl.FileSize))

	if err := p.writeSidecar(finalPath, meta, dl.FileSize); err != nil {
		log.Warn("metadata sidecar not written", zap.Error(err))
	}
	if p.cfg.SaveThumbnail {
		if err := p.saveThumbnail(ctx, finalPath, meta.ThumbnailURL); err != nil {
			log.Warn("thumbnail not saved", zap.Error(err))
		}
	}

	status := sheets.StatusCompletedLocally
	driveFileID := ""
	if p.cfg.UploadToDrive && p.uploader != nil {
		log.Info("uploading to drive")
		info, err := p.uploader.Upload(ctx, finalPath, drive.UploadOptions{
			Name:       filepath.Base(finalPath),
			OnProgress: p.OnUploadProgress,
		})
		if err != nil {
			return nil, err
		}
		status = sheets.StatusCompleted
		driveFileID = info.ID
		log.Info("upload complete", zap.String("drive_file_id", driveFileID))
	}

	// Without an upload, the Drive File ID cell records where the file
	// lives locally.
	fileIDCell := driveFileID
	if driveFileID == "" {
		fileIDCell = finalPath
	}
	if err := p.sheet.SetStatus(ctx, videoID, fileIDCell, status); err != nil {
		return nil, err
	}

	localPath := finalPath
	if !p.cfg.KeepFiles && driveFileID != "" {
		if err := os.Remove(finalPath); err != nil {
			log.Warn("local video not removed", zap.Error(err))
		} else {
			localPath = ""
		}
	}

	if err := p.ledger.Record(ctx, &storage.VideoRecord{
		VideoID:         videoID,
		URL:             youtube.WatchURL(videoID),
		Title:           meta.Title,
		DurationSeconds: meta.Duration,
		FileSizeBytes:   dl.FileSize,
		LocalPath:       localPath,
		DriveFileID:     driveFileID,
		UploadStatus:    status,
	}); err != nil {
		return nil, err
	}

	done = true
	log.Info("video processed",
		zap.String("status", status),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		VideoID:     videoID,
		Title:       meta.Title,
		LocalPath:   localPath,
		DriveFileID: driveFileID,
		Status:      status,
		FileSize:    dl.FileSize,
		Duration:    time.Since(start),
	}, nil
}

// moveToProcessed renames the downloaded file into the processed
// directory under its final title-based name.
func (p *Processor) moveToProcessed(tempPath string, meta *youtube.VideoMetadata) (string, error) {
	if err := os.MkdirAll(p.cfg.ProcessedDir(), 0755); err != nil {
		return "", fmt.Errorf("create processed dir: %w", err)
	}
	finalPath := filepath.Join(p.cfg.ProcessedDir(), youtube.VideoFilename(meta.Title, meta.ID))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("move to processed: %w", err)
	}
	return finalPath, nil
}

// writeSidecar stores the fetched metadata next to the video file.
func (p *Processor) writeSidecar(videoPath string, meta *youtube.VideoMetadata, fileSize int64) error {
	sidecar := struct {
		*youtube.VideoMetadata
		FileSizeBytes int64 `json:"file_size_bytes"`
	}{meta, fileSize}

	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(sidecarPath(videoPath, ".json"), data)
}

// saveThumbnail fetches the thumbnail image next to the video file.
func (p *Processor) saveThumbnail(ctx context.Context, videoPath, thumbnailURL string) error {
	if p.thumbs == nil || thumbnailURL == "" {
		return nil
	}
	resp, err := p.thumbs.Get(ctx, thumbnailURL)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(sidecarPath(videoPath, ".jpg"), resp.Body)
}

func sidecarPath(videoPath, ext string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ext
}

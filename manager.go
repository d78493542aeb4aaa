package ytmanager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ytmanager/config"
	"ytmanager/drive"
	"ytmanager/googleauth"
	"ytmanager/httpx"
	"ytmanager/pipeline"
	"ytmanager/retry"
	"ytmanager/sheets"
	"ytmanager/storage"
	"ytmanager/youtube"
)

// Manager wires the full processing pipeline from configuration: Google
// credentials, the spreadsheet recorder, the Drive uploader, the local
// ledger and the download backend.
type Manager struct {
	cfg    *config.Config
	log    *zap.Logger
	ledger *storage.Ledger
	thumbs *httpx.Client
	proc   *pipeline.Processor
}

// New loads configuration and builds a Manager.
func New(ctx context.Context, log *zap.Logger) (*Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, log)
}

// NewWithConfig builds a Manager from an already validated configuration.
// A nil logger disables logging.
func NewWithConfig(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	creds, err := googleauth.Load(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	client, err := creds.Client(ctx, googleauth.ScopeSpreadsheets, googleauth.ScopeDriveFile)
	if err != nil {
		return nil, err
	}

	retryCfg := retry.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Multiplier:     cfg.BackoffMultiplier,
		JitterFraction: 0.2,
	}

	recorder, err := sheets.NewRecorder(ctx, client, cfg.SpreadsheetID, cfg.SheetName,
		sheets.WithRateLimit(cfg.SheetsRPS),
		sheets.WithRetryConfig(retryCfg),
		sheets.WithShareHint(creds.ShareHint()),
	)
	if err != nil {
		return nil, err
	}

	var uploader pipeline.Uploader
	if cfg.UploadToDrive {
		u, err := drive.NewUploader(ctx, client, cfg.DriveFolderID,
			drive.WithChunkSize(int(cfg.ChunkSize)),
			drive.WithRateLimit(cfg.DriveRPS),
			drive.WithRetryConfig(retryCfg),
			drive.WithShareHint(creds.ShareHint()),
		)
		if err != nil {
			return nil, err
		}
		uploader = u
	}

	ledger, err := storage.OpenLedger(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}

	metadata, downloader := buildDownloader(cfg, retryCfg)

	var thumbs *httpx.Client
	var thumbFetcher pipeline.ThumbnailFetcher
	if cfg.SaveThumbnail {
		thumbs = httpx.New(nil)
		thumbFetcher = thumbs
	}

	proc := pipeline.New(cfg, log, metadata, downloader, recorder, uploader, ledger, thumbFetcher)

	return &Manager{
		cfg:    cfg,
		log:    log,
		ledger: ledger,
		thumbs: thumbs,
		proc:   proc,
	}, nil
}

// buildDownloader selects the download backend. The native backend also
// serves metadata, avoiding the yt-dlp dependency entirely.
func buildDownloader(cfg *config.Config, retryCfg retry.Config) (pipeline.MetadataFetcher, pipeline.Downloader) {
	if cfg.Downloader == config.DownloaderNative {
		d := youtube.NewNativeDownloader()
		return nativeMetadata{d}, d
	}

	d := youtube.NewYtdlpDownloader()
	d.Path = cfg.YtdlpPath
	d.Timeout = cfg.YtdlpTimeout
	d.FFmpegDir = cfg.FFmpegDir
	d.RetryConfig = &retryCfg

	f := youtube.NewMetadataFetcher()
	f.Path = cfg.YtdlpPath
	f.Timeout = cfg.YtdlpTimeout
	f.RetryConfig = &retryCfg

	return f, d
}

// nativeMetadata adapts NativeDownloader's metadata lookup to the
// pipeline interface.
type nativeMetadata struct {
	d *youtube.NativeDownloader
}

func (n nativeMetadata) Fetch(ctx context.Context, videoID string) (*youtube.VideoMetadata, error) {
	return n.d.Metadata(ctx, videoID)
}

// Config returns the active configuration.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Processor exposes the underlying pipeline, mainly so callers can set
// progress callbacks.
func (m *Manager) Processor() *pipeline.Processor {
	return m.proc
}

// Process runs the pipeline for one video URL.
func (m *Manager) Process(ctx context.Context, rawURL string) (*pipeline.Result, error) {
	return m.proc.Process(ctx, rawURL)
}

// History returns the most recently processed videos, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]*storage.VideoRecord, error) {
	return m.ledger.Recent(ctx, limit)
}

// Close releases the ledger and any idle HTTP connections.
func (m *Manager) Close() error {
	if m.thumbs != nil {
		m.thumbs.Close()
	}
	return m.ledger.Close()
}

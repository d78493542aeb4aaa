// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Downloader backend names accepted by Config.Downloader.
const (
	DownloaderYtdlp  = "ytdlp"
	DownloaderNative = "native"
)

// Config holds all application configuration.
type Config struct {
	// Google settings
	SpreadsheetID   string `json:"spreadsheet_id"`
	SheetName       string `json:"sheet_name"`
	DriveFolderID   string `json:"drive_folder_id"`
	PlaylistID      string `json:"playlist_id"`
	CredentialsFile string `json:"credentials_file"`

	// Storage layout
	StorageDir string `json:"storage_dir"`

	// Processing settings
	KeepFiles     bool   `json:"keep_files"`
	UploadToDrive bool   `json:"upload_to_drive"`
	SaveThumbnail bool   `json:"save_thumbnail"`
	ChunkSize     int64  `json:"chunk_size"`
	Downloader    string `json:"downloader"`

	// yt-dlp settings
	YtdlpPath    string        `json:"ytdlp_path"`
	YtdlpTimeout time.Duration `json:"ytdlp_timeout"`
	FFmpegDir    string        `json:"ffmpeg_dir"`

	// Retry settings
	MaxRetries        int           `json:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`

	// API rate limits, requests per second
	SheetsRPS float64 `json:"sheets_rps"`
	DriveRPS  float64 `json:"drive_rps"`

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		SheetName:         "Sheet1",
		StorageDir:        "storage",
		KeepFiles:         true,
		UploadToDrive:     true,
		ChunkSize:         50 * 1024 * 1024,
		Downloader:        DownloaderYtdlp,
		YtdlpPath:         "yt-dlp",
		YtdlpTimeout:      10 * time.Minute,
		MaxRetries:        3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		SheetsRPS:         1.0,
		DriveRPS:          2.0,
		LogLevel:          "info",
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = filepath.Join(cfg.CredentialsDir(), "google_creds.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from ytmanager.json in the current
// directory or the user config directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"ytmanager.json",
		filepath.Join(os.Getenv("HOME"), ".config", "ytmanager", "ytmanager.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("YTMANAGER_SPREADSHEET_ID"); v != "" {
		c.SpreadsheetID = v
	}
	if v := os.Getenv("YTMANAGER_SHEET_NAME"); v != "" {
		c.SheetName = v
	}
	if v := os.Getenv("YTMANAGER_DRIVE_FOLDER_ID"); v != "" {
		c.DriveFolderID = v
	}
	if v := os.Getenv("YTMANAGER_PLAYLIST_ID"); v != "" {
		c.PlaylistID = v
	}
	if v := os.Getenv("YTMANAGER_CREDENTIALS_FILE"); v != "" {
		c.CredentialsFile = v
	}
	if v := os.Getenv("YTMANAGER_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv("YTMANAGER_KEEP_FILES"); v != "" {
		c.KeepFiles = v == "true" || v == "1"
	}
	if v := os.Getenv("YTMANAGER_UPLOAD_TO_DRIVE"); v != "" {
		c.UploadToDrive = v == "true" || v == "1"
	}
	if v := os.Getenv("YTMANAGER_SAVE_THUMBNAIL"); v != "" {
		c.SaveThumbnail = v == "true" || v == "1"
	}
	if v := os.Getenv("YTMANAGER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChunkSize = n
		}
	}
	if v := os.Getenv("YTMANAGER_DOWNLOADER"); v != "" {
		c.Downloader = v
	}
	if v := os.Getenv("YTMANAGER_YTDLP_PATH"); v != "" {
		c.YtdlpPath = v
	}
	if v := os.Getenv("YTMANAGER_YTDLP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.YtdlpTimeout = d
		}
	}
	if v := os.Getenv("YTMANAGER_FFMPEG_DIR"); v != "" {
		c.FFmpegDir = v
	}
	if v := os.Getenv("YTMANAGER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("YTMANAGER_INITIAL_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.InitialBackoff = d
		}
	}
	if v := os.Getenv("YTMANAGER_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxBackoff = d
		}
	}
	if v := os.Getenv("YTMANAGER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.SpreadsheetID == "" {
		return fmt.Errorf("spreadsheet_id is required")
	}
	if c.UploadToDrive && c.DriveFolderID == "" {
		return fmt.Errorf("drive_folder_id is required when upload_to_drive is enabled")
	}
	if c.Downloader != DownloaderYtdlp && c.Downloader != DownloaderNative {
		return fmt.Errorf("downloader must be %q or %q", DownloaderYtdlp, DownloaderNative)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.YtdlpTimeout <= 0 {
		return fmt.Errorf("ytdlp_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	if c.SheetsRPS <= 0 || c.DriveRPS <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// TempDir is the directory in-flight downloads are written to.
func (c *Config) TempDir() string {
	return filepath.Join(c.StorageDir, "videos", "temp")
}

// ProcessedDir is the directory completed downloads are moved to.
func (c *Config) ProcessedDir() string {
	return filepath.Join(c.StorageDir, "videos", "processed")
}

// LogDir is the directory log files are written to.
func (c *Config) LogDir() string {
	return filepath.Join(c.StorageDir, "logs")
}

// CredentialsDir is the default location of the Google credentials file.
func (c *Config) CredentialsDir() string {
	return filepath.Join(c.StorageDir, "credentials")
}

// LedgerPath is the location of the local video ledger database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.StorageDir, "ytmanager.db")
}

// EnsureDirs creates the storage directory layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.TempDir(), c.ProcessedDir(), c.LogDir(), c.CredentialsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

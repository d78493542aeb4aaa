package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.SpreadsheetID = "sheet-id"
	cfg.DriveFolderID = "folder-id"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Downloader != DownloaderYtdlp {
		t.Errorf("Downloader = %q, want %q", cfg.Downloader, DownloaderYtdlp)
	}
	if cfg.ChunkSize != 50*1024*1024 {
		t.Errorf("ChunkSize = %d, want 50MiB", cfg.ChunkSize)
	}
	if !cfg.KeepFiles {
		t.Error("KeepFiles = false, want true")
	}
	if !cfg.UploadToDrive {
		t.Error("UploadToDrive = false, want true")
	}
	if cfg.SheetName != "Sheet1" {
		t.Errorf("SheetName = %q, want Sheet1", cfg.SheetName)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no user config file
	t.Setenv("YTMANAGER_SPREADSHEET_ID", "env-sheet")
	t.Setenv("YTMANAGER_DRIVE_FOLDER_ID", "env-folder")
	t.Setenv("YTMANAGER_KEEP_FILES", "false")
	t.Setenv("YTMANAGER_YTDLP_TIMEOUT", "3m")
	t.Setenv("YTMANAGER_DOWNLOADER", "native")
	t.Setenv("YTMANAGER_CHUNK_SIZE", "1048576")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SpreadsheetID != "env-sheet" {
		t.Errorf("SpreadsheetID = %q, want env-sheet", cfg.SpreadsheetID)
	}
	if cfg.DriveFolderID != "env-folder" {
		t.Errorf("DriveFolderID = %q, want env-folder", cfg.DriveFolderID)
	}
	if cfg.KeepFiles {
		t.Error("KeepFiles = true, want false")
	}
	if cfg.YtdlpTimeout != 3*time.Minute {
		t.Errorf("YtdlpTimeout = %v, want 3m", cfg.YtdlpTimeout)
	}
	if cfg.Downloader != DownloaderNative {
		t.Errorf("Downloader = %q, want native", cfg.Downloader)
	}
	if cfg.ChunkSize != 1048576 {
		t.Errorf("ChunkSize = %d, want 1048576", cfg.ChunkSize)
	}
}

func TestLoad_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("YTMANAGER_SPREADSHEET_ID", "")

	if _, err := Load(); err == nil {
		t.Error("Load() with no spreadsheet_id returned nil error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing folder with upload", mutate: func(c *Config) { c.DriveFolderID = "" }, wantErr: true},
		{name: "missing folder without upload", mutate: func(c *Config) { c.DriveFolderID = ""; c.UploadToDrive = false }, wantErr: false},
		{name: "bad downloader", mutate: func(c *Config) { c.Downloader = "curl" }, wantErr: true},
		{name: "zero chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "backoff inversion", mutate: func(c *Config) { c.MaxBackoff = c.InitialBackoff / 2 }, wantErr: true},
		{name: "multiplier too small", mutate: func(c *Config) { c.BackoffMultiplier = 1.0 }, wantErr: true},
		{name: "zero rps", mutate: func(c *Config) { c.SheetsRPS = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDirLayout(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDir = "/data/yt"

	if got := cfg.TempDir(); got != filepath.Join("/data/yt", "videos", "temp") {
		t.Errorf("TempDir() = %q", got)
	}
	if got := cfg.ProcessedDir(); got != filepath.Join("/data/yt", "videos", "processed") {
		t.Errorf("ProcessedDir() = %q", got)
	}
	if got := cfg.LedgerPath(); got != filepath.Join("/data/yt", "ytmanager.db") {
		t.Errorf("LedgerPath() = %q", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDir = t.TempDir()

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs() error = %v", err)
	}

	for _, dir := range []string{cfg.TempDir(), cfg.ProcessedDir(), cfg.LogDir(), cfg.CredentialsDir()} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
}

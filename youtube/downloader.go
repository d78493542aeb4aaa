package youtube

import (
	"context"
	"fmt"
)

// DownloadOptions configures video download behavior.
type DownloadOptions struct {
	// OutputDir is the directory to save the downloaded video.
	// Defaults to current directory if empty.
	OutputDir string
	// OnProgress receives download progress in percent (0-100), when known.
	OnProgress func(percent float64)
}

// DownloadResult contains information about a completed download.
type DownloadResult struct {
	// VideoPath is the path to the downloaded video file.
	VideoPath string
	// FileSize is the size of the downloaded file in bytes.
	FileSize int64
}

// Downloader fetches a video to local disk. Implementations exist for the
// yt-dlp subprocess and a pure-Go backend.
type Downloader interface {
	Download(ctx context.Context, videoID string, opts *DownloadOptions) (*DownloadResult, error)
}

// DownloadError wraps errors during video download.
type DownloadError struct {
	VideoID string
	Source  string // "ytdlp" or "native"
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s via %s: %v", e.VideoID, e.Source, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

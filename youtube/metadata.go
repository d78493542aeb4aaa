package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"ytmanager/retry"
)

// VideoMetadata contains essential metadata about a YouTube video.
type VideoMetadata struct {
	// ID is the YouTube video ID (e.g., "dQw4w9WgXcQ").
	ID string `json:"id"`
	// Title is the video title.
	Title string `json:"title"`
	// Description is the full video description.
	Description string `json:"description"`
	// Duration is the video length in seconds.
	Duration int `json:"duration"`
	// Tags are the video's tags/keywords.
	Tags []string `json:"tags"`
	// Categories are the video's YouTube categories.
	Categories []string `json:"categories"`
	// ThumbnailURL is the URL to the best available thumbnail image.
	ThumbnailURL string `json:"thumbnail_url"`
	// UploadDate is when the video was uploaded, formatted YYYY-MM-DD.
	UploadDate string `json:"upload_date"`
	// Uploader is the channel name/display name.
	Uploader string `json:"uploader"`
	// ViewCount is the total number of views.
	ViewCount int64 `json:"view_count"`
	// IsLive indicates whether the video is a live stream.
	IsLive bool `json:"is_live"`
	// AgeLimit is the minimum viewer age; non-zero means age-restricted.
	AgeLimit int `json:"age_limit"`
	// FetchedAt is the timestamp when this metadata was retrieved.
	FetchedAt time.Time `json:"fetched_at"`
}

// JoinedTags returns the tags as a single comma-separated string, the form
// used in the spreadsheet.
func (m *VideoMetadata) JoinedTags() string {
	return strings.Join(m.Tags, ", ")
}

// Category returns the primary category, or empty if none.
func (m *VideoMetadata) Category() string {
	if len(m.Categories) == 0 {
		return ""
	}
	return m.Categories[0]
}

// MetadataError wraps errors during metadata extraction.
type MetadataError struct {
	VideoID string
	Err     error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("fetch metadata for %s: %v", e.VideoID, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// MetadataFetcher retrieves video metadata using yt-dlp.
type MetadataFetcher struct {
	// Path is the path to the yt-dlp executable. Defaults to "yt-dlp".
	Path string
	// Timeout is the maximum time to wait for yt-dlp.
	Timeout time.Duration
	// RetryConfig holds retry behavior configuration.
	RetryConfig *retry.Config
}

// NewMetadataFetcher creates a fetcher with default settings.
func NewMetadataFetcher() *MetadataFetcher {
	cfg := retry.DefaultConfig()
	return &MetadataFetcher{
		Path:        defaultYtdlpPath,
		Timeout:     defaultYtdlpTimeout,
		RetryConfig: &cfg,
	}
}

// Fetch retrieves metadata for a video without downloading it.
func (f *MetadataFetcher) Fetch(ctx context.Context, videoID string) (*VideoMetadata, error) {
	if err := checkYtdlpInstalled(ctx, f.path()); err != nil {
		return nil, err
	}

	cfg := f.RetryConfig
	if cfg == nil {
		defaultCfg := retry.DefaultConfig()
		cfg = &defaultCfg
	}

	var meta *VideoMetadata
	err := retry.Do(ctx, *cfg, ytdlpErrorClassifier, func(ctx context.Context) error {
		timeout := f.Timeout
		if timeout == 0 {
			timeout = defaultYtdlpTimeout
		}
		cmdCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(cmdCtx, f.path(), "-J", "--no-warnings", "--no-playlist", WatchURL(videoID))

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if cmdCtx.Err() == context.DeadlineExceeded {
				return &MetadataError{VideoID: videoID, Err: ErrNetworkTimeout}
			}
			return &MetadataError{VideoID: videoID, Err: classifyYtdlpStderr(stderr.String(), err)}
		}

		parsed, err := parseMetadataJSON(stdout.Bytes())
		if err != nil {
			return &MetadataError{VideoID: videoID, Err: err}
		}
		meta = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if meta.IsLive {
		return nil, &MetadataError{VideoID: videoID, Err: ErrLiveStream}
	}
	if meta.AgeLimit > 0 {
		return nil, &MetadataError{VideoID: videoID, Err: ErrAgeRestricted}
	}

	return meta, nil
}

func (f *MetadataFetcher) path() string {
	if f.Path != "" {
		return f.Path
	}
	return defaultYtdlpPath
}

// ytdlpVideo is yt-dlp's JSON output for a single video.
type ytdlpVideo struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Duration    float64           `json:"duration"`
	Tags        []string          `json:"tags"`
	Categories  []string          `json:"categories"`
	Thumbnail   string            `json:"thumbnail"`
	UploadDate  string            `json:"upload_date"` // YYYYMMDD
	Uploader    string            `json:"uploader"`
	ViewCount   int64             `json:"view_count"`
	IsLive      bool              `json:"is_live"`
	AgeLimit    int               `json:"age_limit"`
	Entries     []json.RawMessage `json:"entries"`
}

// parseMetadataJSON parses yt-dlp -J output into VideoMetadata.
func parseMetadataJSON(data []byte) (*VideoMetadata, error) {
	var raw ytdlpVideo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}

	// A playlist resolves to an object with entries, not a video.
	if len(raw.Entries) > 0 {
		return nil, ErrPlaylistURL
	}

	if raw.ID == "" {
		return nil, fmt.Errorf("invalid metadata: missing id")
	}
	if raw.Title == "" {
		return nil, fmt.Errorf("invalid metadata: missing title")
	}

	return &VideoMetadata{
		ID:           raw.ID,
		Title:        raw.Title,
		Description:  raw.Description,
		Duration:     int(raw.Duration),
		Tags:         raw.Tags,
		Categories:   raw.Categories,
		ThumbnailURL: raw.Thumbnail,
		UploadDate:   formatUploadDate(raw.UploadDate),
		Uploader:     raw.Uploader,
		ViewCount:    raw.ViewCount,
		IsLive:       raw.IsLive,
		AgeLimit:     raw.AgeLimit,
		FetchedAt:    time.Now().UTC(),
	}, nil
}

// formatUploadDate converts yt-dlp's YYYYMMDD form to YYYY-MM-DD.
func formatUploadDate(d string) string {
	if len(d) != 8 {
		return d
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}

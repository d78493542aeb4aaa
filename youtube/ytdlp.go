package youtube

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ytmanager/retry"
)

const (
	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 10 * time.Minute

	// Best mp4 video+audio, merged through ffmpeg.
	defaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
)

// YtdlpDownloader implements Downloader using yt-dlp as a subprocess.
type YtdlpDownloader struct {
	// Path is the path to the yt-dlp executable. Defaults to "yt-dlp".
	Path string
	// Timeout is the maximum time to wait for a download.
	Timeout time.Duration
	// FFmpegDir is the directory containing ffmpeg, passed via --ffmpeg-location.
	// Empty means yt-dlp finds ffmpeg on PATH.
	FFmpegDir string
	// ExtraArgs are additional arguments to pass to yt-dlp.
	ExtraArgs []string
	// RetryConfig holds retry behavior configuration.
	RetryConfig *retry.Config
}

// NewYtdlpDownloader creates a yt-dlp based downloader with defaults.
func NewYtdlpDownloader() *YtdlpDownloader {
	cfg := retry.DefaultConfig()
	return &YtdlpDownloader{
		Path:        defaultYtdlpPath,
		Timeout:     defaultYtdlpTimeout,
		RetryConfig: &cfg,
	}
}

// Download fetches the video into opts.OutputDir as <id>.mp4.
func (d *YtdlpDownloader) Download(ctx context.Context, videoID string, opts *DownloadOptions) (*DownloadResult, error) {
	if opts == nil {
		opts = &DownloadOptions{}
	}

	if err := checkYtdlpInstalled(ctx, d.path()); err != nil {
		return nil, err
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	cfg := d.RetryConfig
	if cfg == nil {
		defaultCfg := retry.DefaultConfig()
		cfg = &defaultCfg
	}

	var result *DownloadResult
	err := retry.Do(ctx, *cfg, ytdlpErrorClassifier, func(ctx context.Context) error {
		res, err := d.runOnce(ctx, videoID, outputDir, opts.OnProgress)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *YtdlpDownloader) runOnce(ctx context.Context, videoID, outputDir string, onProgress func(float64)) (*DownloadResult, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = defaultYtdlpTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildYtdlpArgs(videoID, outputDir, d.FFmpegDir, d.ExtraArgs)
	cmd := exec.CommandContext(cmdCtx, d.path(), args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &DownloadError{VideoID: videoID, Source: "ytdlp", Err: err}
	}

	// Progress lines and the final filepath both arrive on stdout.
	var finalPath string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if pct, ok := parseProgressPercent(line); ok {
			if onProgress != nil {
				onProgress(pct)
			}
			continue
		}
		if looksLikePath(line) {
			finalPath = line
		}
	}

	if err := cmd.Wait(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return nil, &DownloadError{VideoID: videoID, Source: "ytdlp", Err: ErrNetworkTimeout}
		}
		return nil, &DownloadError{VideoID: videoID, Source: "ytdlp", Err: classifyYtdlpStderr(stderr.String(), err)}
	}

	if finalPath == "" {
		// Fall back to the output template location.
		finalPath = filepath.Join(outputDir, videoID+".mp4")
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, &DownloadError{VideoID: videoID, Source: "ytdlp",
			Err: fmt.Errorf("download completed but file not found: %w", err)}
	}
	if info.Size() == 0 {
		return nil, &DownloadError{VideoID: videoID, Source: "ytdlp",
			Err: errors.New("downloaded file is empty")}
	}

	return &DownloadResult{VideoPath: finalPath, FileSize: info.Size()}, nil
}

func (d *YtdlpDownloader) path() string {
	if d.Path != "" {
		return d.Path
	}
	return defaultYtdlpPath
}

// buildYtdlpArgs assembles the yt-dlp command line for a video download.
func buildYtdlpArgs(videoID, outputDir, ffmpegDir string, extra []string) []string {
	args := []string{
		"-f", defaultFormat,
		"--merge-output-format", "mp4",
		"--no-warnings",
		"--no-playlist",
		"--newline",
		"--progress",
		"-o", filepath.Join(outputDir, "%(id)s.%(ext)s"),
		"--print", "after_move:filepath",
	}
	if ffmpegDir != "" {
		args = append(args, "--ffmpeg-location", ffmpegDir)
	}
	args = append(args, extra...)
	args = append(args, WatchURL(videoID))
	return args
}

var progressPercentRegex = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%`)

// parseProgressPercent extracts the percent from a yt-dlp progress line.
func parseProgressPercent(line string) (float64, bool) {
	if !strings.HasPrefix(line, "[download]") {
		return 0, false
	}
	m := progressPercentRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

func looksLikePath(line string) bool {
	return strings.HasPrefix(line, "/") || strings.Contains(line, string(os.PathSeparator))
}

// checkYtdlpInstalled verifies that yt-dlp is available.
func checkYtdlpInstalled(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, path, "--version")
	if err := cmd.Run(); err != nil {
		return ErrYtdlpNotInstalled
	}
	return nil
}

// classifyYtdlpStderr maps yt-dlp stderr output to sentinel errors.
func classifyYtdlpStderr(stderr string, cause error) error {
	switch {
	case strings.Contains(stderr, "Private video"):
		return ErrPrivateVideo
	case strings.Contains(stderr, "Sign in to confirm your age"):
		return ErrAgeRestricted
	case strings.Contains(stderr, "Video unavailable"),
		strings.Contains(stderr, "has been removed"),
		strings.Contains(stderr, "not found"),
		strings.Contains(stderr, "does not exist"):
		return ErrVideoUnavailable
	case strings.Contains(stderr, "live event"),
		strings.Contains(stderr, "Premieres in"):
		return ErrLiveStream
	case strings.Contains(stderr, "429"),
		strings.Contains(stderr, "rate-limit"),
		strings.Contains(stderr, "rate limit"):
		return ErrRateLimited
	}
	if stderr != "" {
		return fmt.Errorf("yt-dlp failed: %w: %s", cause, strings.TrimSpace(stderr))
	}
	return fmt.Errorf("yt-dlp failed: %w", cause)
}

// ytdlpErrorClassifier determines if a yt-dlp error is retryable.
func ytdlpErrorClassifier(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrVideoUnavailable),
		errors.Is(err, ErrPrivateVideo),
		errors.Is(err, ErrAgeRestricted),
		errors.Is(err, ErrLiveStream),
		errors.Is(err, ErrPlaylistURL),
		errors.Is(err, ErrYtdlpNotInstalled):
		return false
	}
	return true
}

package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	kkdai "github.com/kkdai/youtube/v2"
)

// NativeDownloader implements Downloader in pure Go, without requiring a
// yt-dlp binary. It cannot merge separate video and audio streams, so it is
// limited to progressive mp4 formats.
type NativeDownloader struct {
	client kkdai.Client
}

// NewNativeDownloader creates a pure-Go downloader.
func NewNativeDownloader() *NativeDownloader {
	return &NativeDownloader{client: kkdai.Client{}}
}

// Download fetches the best progressive mp4 format into opts.OutputDir as <id>.mp4.
func (d *NativeDownloader) Download(ctx context.Context, videoID string, opts *DownloadOptions) (*DownloadResult, error) {
	if opts == nil {
		opts = &DownloadOptions{}
	}

	video, err := d.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, &DownloadError{VideoID: videoID, Source: "native", Err: classifyNativeError(err)}
	}

	format, err := pickFormat(video)
	if err != nil {
		return nil, &DownloadError{VideoID: videoID, Source: "native", Err: err}
	}

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, &DownloadError{VideoID: videoID, Source: "native", Err: err}
	}
	defer stream.Close()

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(outputDir, videoID+".mp4")
	f, err := os.Create(path)
	if err != nil {
		return nil, &DownloadError{VideoID: videoID, Source: "native", Err: err}
	}

	var src io.Reader = stream
	if opts.OnProgress != nil && size > 0 {
		src = &progressReader{r: stream, total: size, onProgress: opts.OnProgress}
	}

	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, &DownloadError{VideoID: videoID, Source: "native", Err: err}
	}
	if written == 0 {
		os.Remove(path)
		return nil, &DownloadError{VideoID: videoID, Source: "native", Err: errors.New("downloaded file is empty")}
	}

	return &DownloadResult{VideoPath: path, FileSize: written}, nil
}

// Metadata retrieves video metadata through the native client. Tags and
// categories are not exposed by the player response this client uses.
func (d *NativeDownloader) Metadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	video, err := d.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, &MetadataError{VideoID: videoID, Err: classifyNativeError(err)}
	}

	meta := &VideoMetadata{
		ID:          video.ID,
		Title:       video.Title,
		Description: video.Description,
		Duration:    int(video.Duration / time.Second),
		Uploader:    video.Author,
		UploadDate:  video.PublishDate.Format("2006-01-02"),
		ViewCount:   int64(video.Views),
		FetchedAt:   time.Now().UTC(),
	}
	if len(video.Thumbnails) > 0 {
		meta.ThumbnailURL = video.Thumbnails[len(video.Thumbnails)-1].URL
	}
	return meta, nil
}

// pickFormat selects the highest-resolution progressive mp4 format.
func pickFormat(video *kkdai.Video) (*kkdai.Format, error) {
	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, errors.New("no formats with audio found")
	}

	var best *kkdai.Format
	for i := range formats {
		if !strings.Contains(formats[i].MimeType, "video/mp4") {
			continue
		}
		if best == nil || formats[i].Height > best.Height {
			best = &formats[i]
		}
	}
	if best == nil {
		best = &formats[0]
	}
	return best, nil
}

func classifyNativeError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "LOGIN_REQUIRED"), strings.Contains(msg, "private"):
		return ErrPrivateVideo
	case strings.Contains(msg, "age"):
		return ErrAgeRestricted
	case strings.Contains(msg, "not available"), strings.Contains(msg, "unavailable"):
		return ErrVideoUnavailable
	}
	return err
}

// progressReader reports copy progress as a percentage of total.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if n > 0 {
		p.onProgress(float64(p.read) / float64(p.total) * 100)
	}
	return n, err
}

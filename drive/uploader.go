// Package drive uploads processed videos to a Google Drive folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ytmanager/retry"
)

const videoMimeType = "video/mp4"

// ErrFolderNotFound is returned when the destination folder cannot be
// reached. Usually the folder is not shared with the service account.
var ErrFolderNotFound = errors.New("drive folder not found or not shared")

// DriveError wraps Drive API failures with the failed operation and file.
type DriveError struct {
	Op   string
	Name string
	Err  error
}

func (e *DriveError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("drive %s %q: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("drive %s: %v", e.Op, e.Err)
}

func (e *DriveError) Unwrap() error {
	return e.Err
}

// FileInfo describes an uploaded file.
type FileInfo struct {
	ID       string
	Name     string
	Size     int64
	MimeType string
	Created  string // RFC 3339 timestamp
}

// UploadOptions controls a single upload.
type UploadOptions struct {
	// Name overrides the file name in Drive. Defaults to the local base name.
	Name string
	// OnProgress receives upload progress as bytes sent out of total.
	OnProgress func(current, total int64)
}

// Uploader sends files to one Drive folder. API calls share a rate
// limiter and are retried on transient errors.
type Uploader struct {
	svc       *driveapi.Service
	folderID  string
	chunkSize int
	limiter   *rate.Limiter
	retryCfg  retry.Config
	shareHint string
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithChunkSize sets the resumable upload chunk size in bytes. Zero
// selects a single multipart request.
func WithChunkSize(size int) UploaderOption {
	return func(u *Uploader) {
		u.chunkSize = size
	}
}

// WithRateLimit caps Drive API calls at rps requests per second.
func WithRateLimit(rps float64) UploaderOption {
	return func(u *Uploader) {
		u.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryConfig overrides the retry policy for API calls.
func WithRetryConfig(cfg retry.Config) UploaderOption {
	return func(u *Uploader) {
		u.retryCfg = cfg
	}
}

// WithShareHint attaches a hint appended to not-found errors, telling the
// operator which account the folder must be shared with.
func WithShareHint(hint string) UploaderOption {
	return func(u *Uploader) {
		u.shareHint = hint
	}
}

// NewUploader creates an Uploader for one Drive folder. The client must
// already carry Drive API credentials.
func NewUploader(ctx context.Context, client *http.Client, folderID string, opts ...UploaderOption) (*Uploader, error) {
	return newUploader(ctx, folderID, opts, option.WithHTTPClient(client))
}

// newUploader is split out so tests can add endpoint options.
func newUploader(ctx context.Context, folderID string, opts []UploaderOption, clientOpts ...option.ClientOption) (*Uploader, error) {
	svc, err := driveapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, &DriveError{Op: "init", Err: err}
	}

	u := &Uploader{
		svc:       svc,
		folderID:  folderID,
		chunkSize: googleapi.DefaultUploadChunkSize,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		retryCfg:  retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Upload sends the file at path into the folder. The file is reopened on
// each retry so every attempt streams from the start.
func (u *Uploader) Upload(ctx context.Context, path string, opts UploadOptions) (*FileInfo, error) {
	name := opts.Name
	if name == "" {
		name = filepath.Base(path)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, &DriveError{Op: "upload", Name: name, Err: err}
	}
	total := stat.Size()

	var created *driveapi.File
	err = retry.Do(ctx, u.retryCfg, apiErrorClassifier, func(ctx context.Context) error {
		if err := u.limiter.Wait(ctx); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		call := u.svc.Files.Create(&driveapi.File{
			Name:    name,
			Parents: []string{u.folderID},
		}).Fields("id", "name", "size").Context(ctx)

		mediaOpts := []googleapi.MediaOption{googleapi.ContentType(videoMimeType)}
		if u.chunkSize > 0 {
			mediaOpts = append(mediaOpts, googleapi.ChunkSize(u.chunkSize))
		}
		call = call.Media(f, mediaOpts...)

		if opts.OnProgress != nil {
			call = call.ProgressUpdater(func(current, _ int64) {
				opts.OnProgress(current, total)
			})
		}

		created, err = call.Do()
		return err
	})
	if err != nil {
		return nil, &DriveError{Op: "upload", Name: name, Err: u.describe(err)}
	}

	info := &FileInfo{ID: created.Id, Name: created.Name, Size: created.Size}
	if info.Size == 0 {
		info.Size = total
	}
	return info, nil
}

// Delete removes a file by ID.
func (u *Uploader) Delete(ctx context.Context, fileID string) error {
	err := retry.Do(ctx, u.retryCfg, apiErrorClassifier, func(ctx context.Context) error {
		if err := u.limiter.Wait(ctx); err != nil {
			return err
		}
		return u.svc.Files.Delete(fileID).Context(ctx).Do()
	})
	if err != nil {
		return &DriveError{Op: "delete", Name: fileID, Err: u.describe(err)}
	}
	return nil
}

// FileInfo looks up an uploaded file by ID.
func (u *Uploader) FileInfo(ctx context.Context, fileID string) (*FileInfo, error) {
	var f *driveapi.File
	err := retry.Do(ctx, u.retryCfg, apiErrorClassifier, func(ctx context.Context) error {
		if err := u.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		f, err = u.svc.Files.Get(fileID).
			Fields("id", "name", "size", "mimeType", "createdTime").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, &DriveError{Op: "stat", Name: fileID, Err: u.describe(err)}
	}
	return &FileInfo{
		ID:       f.Id,
		Name:     f.Name,
		Size:     f.Size,
		MimeType: f.MimeType,
		Created:  f.CreatedTime,
	}, nil
}

// describe maps a not-found API error to ErrFolderNotFound with the
// share hint, since that is almost always a sharing problem.
func (u *Uploader) describe(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusForbidden) {
		if u.shareHint != "" {
			return fmt.Errorf("%w (%s): %v", ErrFolderNotFound, u.shareHint, err)
		}
		return fmt.Errorf("%w: %v", ErrFolderNotFound, err)
	}
	return err
}

// apiErrorClassifier treats client errors other than 429 as permanent.
func apiErrorClassifier(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return true
		}
		return apiErr.Code >= 500
	}
	return retry.IsRetryable(err)
}

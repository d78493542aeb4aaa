package ytmanager

import (
	"ytmanager/drive"
	"ytmanager/pipeline"
	"ytmanager/retry"
	"ytmanager/sheets"
	"ytmanager/storage"
	"ytmanager/youtube"
)

// Error handling types exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, ytmanager.ErrPrivateVideo) {
//		fmt.Println("Video is private")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var dlErr *ytmanager.DownloadError
//	if errors.As(err, &dlErr) {
//		fmt.Printf("Download of %s failed: %v\n", dlErr.VideoID, dlErr.Err)
//	}

// Type aliases for convenient error handling.
type (
	// DownloadError wraps errors during video downloads.
	DownloadError = youtube.DownloadError
	// MetadataError wraps errors during metadata extraction.
	MetadataError = youtube.MetadataError
	// SheetError wraps errors from the tracking spreadsheet.
	SheetError = sheets.SheetError
	// DriveError wraps errors from Drive uploads.
	DriveError = drive.DriveError
	// StorageError wraps errors during ledger and file operations.
	StorageError = storage.StorageError
	// RetryableError wraps errors that persisted after retries were exhausted.
	RetryableError = retry.RetryableError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrInvalidURL indicates the URL is not a recognized YouTube video URL.
	ErrInvalidURL = youtube.ErrInvalidURL
	// ErrPlaylistURL indicates a playlist URL where a single video was expected.
	ErrPlaylistURL = youtube.ErrPlaylistURL
	// ErrVideoUnavailable indicates the video was removed or never existed.
	ErrVideoUnavailable = youtube.ErrVideoUnavailable
	// ErrPrivateVideo indicates the video is private.
	ErrPrivateVideo = youtube.ErrPrivateVideo
	// ErrAgeRestricted indicates the video is age-restricted.
	ErrAgeRestricted = youtube.ErrAgeRestricted
	// ErrLiveStream indicates the video is a live stream and cannot be downloaded.
	ErrLiveStream = youtube.ErrLiveStream
	// ErrRateLimited indicates YouTube rate limited the operation.
	ErrRateLimited = youtube.ErrRateLimited
	// ErrNetworkTimeout indicates a network timeout occurred.
	ErrNetworkTimeout = youtube.ErrNetworkTimeout
	// ErrYtdlpNotInstalled indicates the yt-dlp binary was not found.
	ErrYtdlpNotInstalled = youtube.ErrYtdlpNotInstalled

	// ErrAlreadyProcessed indicates the video is already tracked.
	ErrAlreadyProcessed = pipeline.ErrAlreadyProcessed

	// ErrSheetNotFound indicates the spreadsheet is unreachable or not shared.
	ErrSheetNotFound = sheets.ErrSheetNotFound
	// ErrFolderNotFound indicates the Drive folder is unreachable or not shared.
	ErrFolderNotFound = drive.ErrFolderNotFound

	// ErrNotFound indicates a record was not found in the ledger.
	ErrNotFound = storage.ErrNotFound
	// ErrAlreadyExists indicates a ledger record already exists.
	ErrAlreadyExists = storage.ErrAlreadyExists
	// ErrLockTimeout indicates a timeout acquiring the run lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable reports whether an error is worth retrying.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}

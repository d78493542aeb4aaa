// Package ytmanager downloads YouTube videos, records them in a Google
// Spreadsheet and stores the files in a Google Drive folder.
//
// Overview
//
// The pipeline for a single video URL is: validate the URL, fetch
// metadata, append a Pending row to the tracking sheet, download the
// video, upload it to Drive, then mark the row Completed and clean up
// the local file.
//
// Quick Start
//
// Process a video with the high-level Manager:
//
//	ctx := context.Background()
//	mgr, err := ytmanager.New(ctx, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	res, err := mgr.Process(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("%s -> %s\n", res.Title, res.Status)
//
// Configuration
//
// ytmanager loads settings from multiple sources:
//
//   1. Environment variables (highest priority)
//   2. Config file (ytmanager.json or ~/.config/ytmanager/ytmanager.json)
//   3. Default values (lowest priority)
//
// Environment variables:
//
//   - YTMANAGER_SPREADSHEET_ID: Tracking spreadsheet ID (required)
//   - YTMANAGER_DRIVE_FOLDER_ID: Destination Drive folder ID
//   - YTMANAGER_CREDENTIALS_FILE: Path to the service account key
//   - YTMANAGER_STORAGE_DIR: Local storage root
//   - YTMANAGER_KEEP_FILES: Keep local files after upload (true/false)
//   - YTMANAGER_UPLOAD_TO_DRIVE: Enable Drive uploads (true/false)
//   - YTMANAGER_DOWNLOADER: Download backend, "ytdlp" or "native"
//   - YTMANAGER_YTDLP_PATH: Path to yt-dlp executable
//   - YTMANAGER_MAX_RETRIES: Maximum retry attempts
//
// Error Handling
//
// All operations return errors that support the standard patterns:
//
//	if errors.Is(err, ytmanager.ErrVideoUnavailable) {
//		fmt.Println("Video is gone")
//	}
//
//	var dlErr *ytmanager.DownloadError
//	if errors.As(err, &dlErr) {
//		fmt.Printf("Download of %s failed: %v\n", dlErr.VideoID, dlErr.Err)
//	}
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - youtube: URL parsing, metadata and video downloads
//   - sheets: The tracking spreadsheet
//   - drive: Drive uploads
//   - storage: The local ledger and filesystem primitives
//   - pipeline: Orchestration with injectable dependencies
//   - config: Configuration management
//   - retry: Exponential backoff retry logic
//
// Dependencies
//
// With the default "ytdlp" backend, yt-dlp must be installed and
// available in PATH or specified via YTMANAGER_YTDLP_PATH. The "native"
// backend downloads without external tools but cannot merge separate
// audio and video streams.
//
// Install yt-dlp: https://github.com/yt-dlp/yt-dlp
//
// The spreadsheet and the Drive folder must be shared with the service
// account's client email.
package ytmanager

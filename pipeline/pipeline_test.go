package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"ytmanager/config"
	"ytmanager/drive"
	"ytmanager/httpx"
	"ytmanager/sheets"
	"ytmanager/storage"
	"ytmanager/youtube"
)

type fakeMetadata struct {
	meta *youtube.VideoMetadata
	err  error
}

func (f *fakeMetadata) Fetch(ctx context.Context, videoID string) (*youtube.VideoMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

type fakeDownloader struct {
	dir   string
	size  int64
	err   error
	calls int
}

func (f *fakeDownloader) Download(ctx context.Context, videoID string, opts *youtube.DownloadOptions) (*youtube.DownloadResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(opts.OutputDir, videoID+".mp4")
	data := make([]byte, f.size)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(100)
	}
	return &youtube.DownloadResult{VideoPath: path, FileSize: f.size}, nil
}

type fakeSheet struct {
	headers   bool
	rows      []sheets.Record
	statuses  map[string][2]string // videoID -> (driveFileID, status)
	hasErr    error
	appendErr error
}

func (f *fakeSheet) EnsureHeaders(ctx context.Context) error {
	f.headers = true
	return nil
}

func (f *fakeSheet) HasVideo(ctx context.Context, videoID string) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	for _, r := range f.rows {
		if r.VideoID == videoID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSheet) Append(ctx context.Context, rec sheets.Record) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, rec)
	return nil
}

func (f *fakeSheet) SetStatus(ctx context.Context, videoID, driveFileID, status string) error {
	if f.statuses == nil {
		f.statuses = make(map[string][2]string)
	}
	f.statuses[videoID] = [2]string{driveFileID, status}
	return nil
}

type fakeUploader struct {
	id    string
	err   error
	calls int
}

func (f *fakeUploader) Upload(ctx context.Context, path string, opts drive.UploadOptions) (*drive.FileInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &drive.FileInfo{ID: f.id, Name: opts.Name, Size: stat.Size()}, nil
}

type fakeThumbs struct {
	body  []byte
	calls int
}

func (f *fakeThumbs) Get(ctx context.Context, url string) (*httpx.Response, error) {
	f.calls++
	return &httpx.Response{StatusCode: 200, Body: f.body}, nil
}

func testMeta() *youtube.VideoMetadata {
	return &youtube.VideoMetadata{
		ID:           "dQw4w9WgXcQ",
		Title:        "Test Video",
		Description:  "A test",
		Duration:     212,
		Tags:         []string{"music", "test"},
		Categories:   []string{"Music"},
		ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		UploadDate:   "2024-06-01",
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		SpreadsheetID:   "sheet-1",
		SheetName:       "Sheet1",
		DriveFolderID:   "folder-1",
		PlaylistID:      "My Playlist",
		CredentialsFile: "unused",
		StorageDir:      t.TempDir(),
		UploadToDrive:   true,
		SaveThumbnail:   true,
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func openTestLedger(t *testing.T) *storage.Ledger {
	t.Helper()
	l, err := storage.OpenLedger(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestProcessor(t *testing.T, cfg *config.Config, sheet *fakeSheet, up *fakeUploader, ledger *storage.Ledger) (*Processor, *fakeDownloader, *fakeThumbs) {
	t.Helper()
	dl := &fakeDownloader{dir: cfg.TempDir(), size: 2048}
	thumbs := &fakeThumbs{body: []byte("jpeg bytes")}
	p := New(cfg, zap.NewNop(), &fakeMetadata{meta: testMeta()}, dl, sheet, up, ledger, thumbs)
	return p, dl, thumbs
}

func TestProcessSuccess(t *testing.T) {
	cfg := testConfig(t)
	sheet := &fakeSheet{}
	up := &fakeUploader{id: "drive-file-1"}
	ledger := openTestLedger(t)
	p, _, thumbs := newTestProcessor(t, cfg, sheet, up, ledger)
	ctx := context.Background()

	res, err := p.Process(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if res.Status != sheets.StatusCompleted {
		t.Errorf("Status = %q, want %q", res.Status, sheets.StatusCompleted)
	}
	if res.DriveFileID != "drive-file-1" {
		t.Errorf("DriveFileID = %q", res.DriveFileID)
	}
	if !sheet.headers {
		t.Error("headers were not ensured")
	}
	if len(sheet.rows) != 1 {
		t.Fatalf("sheet has %d rows, want 1", len(sheet.rows))
	}

	row := sheet.rows[0]
	if row.Status != sheets.StatusPending {
		t.Errorf("appended row status = %q, want %q", row.Status, sheets.StatusPending)
	}
	if row.Tags != "music, test" || row.Category != "Music" {
		t.Errorf("row tags/category = %q / %q", row.Tags, row.Category)
	}
	if row.Playlist != "My Playlist" {
		t.Errorf("row playlist = %q", row.Playlist)
	}

	final := sheet.statuses["dQw4w9WgXcQ"]
	if final != [2]string{"drive-file-1", sheets.StatusCompleted} {
		t.Errorf("final status = %v", final)
	}

	// KeepFiles is false, so the uploaded video is removed but the
	// sidecar and thumbnail stay.
	videoPath := filepath.Join(cfg.ProcessedDir(), youtube.VideoFilename("Test Video", "dQw4w9WgXcQ"))
	if _, err := os.Stat(videoPath); !os.IsNotExist(err) {
		t.Error("video file still present after upload with KeepFiles=false")
	}
	if res.LocalPath != "" {
		t.Errorf("LocalPath = %q, want empty after cleanup", res.LocalPath)
	}
	sidecar := strings.TrimSuffix(videoPath, ".mp4") + ".json"
	if _, err := os.Stat(sidecar); err != nil {
		t.Errorf("metadata sidecar missing: %v", err)
	}
	if thumbs.calls != 1 {
		t.Errorf("thumbnail fetched %d times, want 1", thumbs.calls)
	}

	rec, err := ledger.Get(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("ledger.Get() error = %v", err)
	}
	if rec.UploadStatus != sheets.StatusCompleted || rec.DriveFileID != "drive-file-1" {
		t.Errorf("ledger record = %+v", rec)
	}
	if rec.DurationSeconds != 212 || rec.FileSizeBytes != 2048 {
		t.Errorf("ledger duration/size = %d / %d", rec.DurationSeconds, rec.FileSizeBytes)
	}
}

func TestProcessKeepFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeepFiles = true
	sheet := &fakeSheet{}
	ledger := openTestLedger(t)
	p, _, _ := newTestProcessor(t, cfg, sheet, &fakeUploader{id: "drive-file-1"}, ledger)

	res, err := p.Process(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.LocalPath == "" {
		t.Fatal("LocalPath empty with KeepFiles=true")
	}
	if _, err := os.Stat(res.LocalPath); err != nil {
		t.Errorf("video file missing: %v", err)
	}
}

func TestProcessUploadDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadToDrive = false
	sheet := &fakeSheet{}
	up := &fakeUploader{id: "drive-file-1"}
	ledger := openTestLedger(t)
	p, _, _ := newTestProcessor(t, cfg, sheet, up, ledger)

	res, err := p.Process(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Status != sheets.StatusCompletedLocally {
		t.Errorf("Status = %q, want %q", res.Status, sheets.StatusCompletedLocally)
	}
	if up.calls != 0 {
		t.Errorf("uploader called %d times with uploads disabled", up.calls)
	}
	// Without an upload the Drive File ID cell holds the local path.
	final := sheet.statuses["dQw4w9WgXcQ"]
	if final[0] != res.LocalPath || final[1] != sheets.StatusCompletedLocally {
		t.Errorf("final status cells = %v", final)
	}
	// Nothing was uploaded, so the local file must survive even with
	// KeepFiles=false.
	if res.LocalPath == "" {
		t.Error("LocalPath empty without an upload")
	}
	if _, err := os.Stat(res.LocalPath); err != nil {
		t.Errorf("video file missing: %v", err)
	}
}

func TestProcessInvalidURL(t *testing.T) {
	cfg := testConfig(t)
	sheet := &fakeSheet{}
	ledger := openTestLedger(t)
	p, dl, _ := newTestProcessor(t, cfg, sheet, &fakeUploader{}, ledger)

	_, err := p.Process(context.Background(), "https://example.com/watch?v=dQw4w9WgXcQ")
	if !errors.Is(err, youtube.ErrInvalidURL) {
		t.Fatalf("Process() error = %v, want ErrInvalidURL", err)
	}
	if sheet.headers || len(sheet.rows) != 0 || dl.calls != 0 {
		t.Error("pipeline side effects after an invalid URL")
	}
}

func TestProcessAlreadyInLedger(t *testing.T) {
	cfg := testConfig(t)
	sheet := &fakeSheet{}
	ledger := openTestLedger(t)
	ctx := context.Background()
	if err := ledger.Record(ctx, &storage.VideoRecord{VideoID: "dQw4w9WgXcQ", URL: "u", Title: "t"}); err != nil {
		t.Fatal(err)
	}
	p, dl, _ := newTestProcessor(t, cfg, sheet, &fakeUploader{}, ledger)

	_, err := p.Process(ctx, "dQw4w9WgXcQ")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("Process() error = %v, want ErrAlreadyProcessed", err)
	}
	if dl.calls != 0 {
		t.Error("download attempted for an already processed video")
	}
}

func TestProcessAlreadyInSheet(t *testing.T) {
	cfg := testConfig(t)
	sheet := &fakeSheet{rows: []sheets.Record{{VideoID: "dQw4w9WgXcQ"}}}
	ledger := openTestLedger(t)
	p, dl, _ := newTestProcessor(t, cfg, sheet, &fakeUploader{}, ledger)

	_, err := p.Process(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("Process() error = %v, want ErrAlreadyProcessed", err)
	}
	if dl.calls != 0 {
		t.Error("download attempted for an already tracked video")
	}
}

func TestProcessUploadFailure(t *testing.T) {
	cfg := testConfig(t)
	sheet := &fakeSheet{}
	uploadErr := errors.New("drive unavailable")
	ledger := openTestLedger(t)
	p, _, _ := newTestProcessor(t, cfg, sheet, &fakeUploader{err: uploadErr}, ledger)
	ctx := context.Background()

	_, err := p.Process(ctx, "dQw4w9WgXcQ")
	if !errors.Is(err, uploadErr) {
		t.Fatalf("Process() error = %v, want upload failure", err)
	}

	// The row stays Pending and the ledger stays empty; clearing the
	// Pending row is a manual step before reprocessing.
	if _, ok := sheet.statuses["dQw4w9WgXcQ"]; ok {
		t.Error("status updated despite upload failure")
	}
	has, err := ledger.Has(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("ledger records a video whose upload failed")
	}

	// Neither the temp file nor the moved file survives a failed upload.
	videoPath := filepath.Join(cfg.ProcessedDir(), youtube.VideoFilename("Test Video", "dQw4w9WgXcQ"))
	if _, err := os.Stat(videoPath); !os.IsNotExist(err) {
		t.Errorf("processed file still on disk after upload failure: %v", err)
	}
	leftover, err := filepath.Glob(filepath.Join(cfg.TempDir(), "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftover) > 0 {
		t.Errorf("temp files left after upload failure: %v", leftover)
	}
}

func TestProcessDownloadFailure(t *testing.T) {
	cfg := testConfig(t)
	sheet := &fakeSheet{}
	ledger := openTestLedger(t)
	dl := &fakeDownloader{err: youtube.ErrVideoUnavailable}
	p := New(cfg, zap.NewNop(), &fakeMetadata{meta: testMeta()}, dl, sheet, &fakeUploader{}, ledger, nil)

	_, err := p.Process(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, youtube.ErrVideoUnavailable) {
		t.Fatalf("Process() error = %v, want ErrVideoUnavailable", err)
	}
}

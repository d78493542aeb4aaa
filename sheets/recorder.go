// Package sheets records processed videos as rows in a Google
// Spreadsheet via the Sheets API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"ytmanager/retry"
)

// Headers is the first row of the tracking sheet, in column order A..J.
var Headers = []string{
	"Title",
	"Description",
	"Tags",
	"Category",
	"Thumbnail",
	"Playlist",
	"Video ID",
	"Upload Date",
	"Drive File ID",
	"Download Status",
}

// Download status values written to column J.
const (
	StatusPending          = "Pending"
	StatusCompleted        = "Completed"
	StatusCompletedLocally = "Completed Locally"
)

// ErrSheetNotFound is returned when the configured spreadsheet cannot be
// reached. Usually the spreadsheet is not shared with the service account.
var ErrSheetNotFound = errors.New("spreadsheet not found or not shared")

// SheetError wraps Sheets API failures with the failed operation.
type SheetError struct {
	Op  string
	Err error
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("sheets %s: %v", e.Op, e.Err)
}

func (e *SheetError) Unwrap() error {
	return e.Err
}

// Record is one video row in the tracking sheet.
type Record struct {
	Title       string
	Description string
	Tags        string
	Category    string
	Thumbnail   string
	Playlist    string
	VideoID     string
	UploadDate  string
	DriveFileID string
	Status      string
}

func (r Record) row() []any {
	return []any{
		r.Title,
		r.Description,
		r.Tags,
		r.Category,
		r.Thumbnail,
		r.Playlist,
		r.VideoID,
		r.UploadDate,
		r.DriveFileID,
		r.Status,
	}
}

// Recorder reads and writes the tracking sheet. All calls go through a
// shared rate limiter and are retried on transient API errors.
type Recorder struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	sheetName     string
	limiter       *rate.Limiter
	retryCfg      retry.Config
	shareHint     string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRateLimit caps Sheets API calls at rps requests per second.
func WithRateLimit(rps float64) RecorderOption {
	return func(r *Recorder) {
		r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryConfig overrides the retry policy for API calls.
func WithRetryConfig(cfg retry.Config) RecorderOption {
	return func(r *Recorder) {
		r.retryCfg = cfg
	}
}

// WithShareHint attaches a hint appended to not-found errors, telling the
// operator which account the spreadsheet must be shared with.
func WithShareHint(hint string) RecorderOption {
	return func(r *Recorder) {
		r.shareHint = hint
	}
}

// NewRecorder creates a Recorder for one spreadsheet tab. The client must
// already carry Sheets API credentials.
func NewRecorder(ctx context.Context, client *http.Client, spreadsheetID, sheetName string, opts ...RecorderOption) (*Recorder, error) {
	return newRecorder(ctx, spreadsheetID, sheetName, opts, option.WithHTTPClient(client))
}

// newRecorder is split out so tests can add endpoint options.
func newRecorder(ctx context.Context, spreadsheetID, sheetName string, opts []RecorderOption, clientOpts ...option.ClientOption) (*Recorder, error) {
	svc, err := sheetsapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, &SheetError{Op: "init", Err: err}
	}

	r := &Recorder{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		limiter:       rate.NewLimiter(rate.Limit(1), 1),
		retryCfg:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// EnsureHeaders makes row 1 match Headers exactly. An empty sheet gets
// the header row written. A mismatched header row means existing rows
// were written under a different column layout, so the whole sheet is
// cleared before the headers are rewritten; otherwise stale rows would
// leak into the Video ID dedup scan.
func (r *Recorder) EnsureHeaders(ctx context.Context) error {
	headerRange := r.rangeOf("A1:J1")

	var resp *sheetsapi.ValueRange
	err := r.do(ctx, "get headers", func() error {
		var err error
		resp, err = r.svc.Spreadsheets.Values.Get(r.spreadsheetID, headerRange).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}

	if len(resp.Values) > 0 && headersMatch(resp.Values[0]) {
		return nil
	}

	if len(resp.Values) > 0 {
		err := r.do(ctx, "clear sheet", func() error {
			_, err := r.svc.Spreadsheets.Values.Clear(r.spreadsheetID, r.rangeOf("A:J"),
				&sheetsapi.ClearValuesRequest{}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return err
		}
	}

	row := make([]any, len(Headers))
	for i, h := range Headers {
		row[i] = h
	}
	return r.do(ctx, "write headers", func() error {
		_, err := r.svc.Spreadsheets.Values.Update(r.spreadsheetID, headerRange,
			&sheetsapi.ValueRange{Values: [][]any{row}}).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return err
	})
}

func headersMatch(row []any) bool {
	if len(row) != len(Headers) {
		return false
	}
	for i, h := range Headers {
		s, ok := row[i].(string)
		if !ok || s != h {
			return false
		}
	}
	return true
}

// HasVideo reports whether a row with the given video ID already exists.
// Video IDs live in column G.
func (r *Recorder) HasVideo(ctx context.Context, videoID string) (bool, error) {
	_, found, err := r.findRow(ctx, videoID)
	return found, err
}

// Append adds a new row for the record.
func (r *Recorder) Append(ctx context.Context, rec Record) error {
	return r.do(ctx, "append row", func() error {
		_, err := r.svc.Spreadsheets.Values.Append(r.spreadsheetID, r.rangeOf("A:J"),
			&sheetsapi.ValueRange{Values: [][]any{rec.row()}}).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	})
}

// SetStatus updates the Drive File ID and Download Status cells of the
// row holding videoID. Returns an error if no such row exists.
func (r *Recorder) SetStatus(ctx context.Context, videoID, driveFileID, status string) error {
	rowNum, found, err := r.findRow(ctx, videoID)
	if err != nil {
		return err
	}
	if !found {
		return &SheetError{Op: "set status", Err: fmt.Errorf("no row for video %s", videoID)}
	}

	cellRange := r.rangeOf(fmt.Sprintf("I%d:J%d", rowNum, rowNum))
	return r.do(ctx, "set status", func() error {
		_, err := r.svc.Spreadsheets.Values.Update(r.spreadsheetID, cellRange,
			&sheetsapi.ValueRange{Values: [][]any{{driveFileID, status}}}).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return err
	})
}

// findRow returns the 1-based sheet row holding videoID in column G.
func (r *Recorder) findRow(ctx context.Context, videoID string) (int, bool, error) {
	var resp *sheetsapi.ValueRange
	err := r.do(ctx, "scan video ids", func() error {
		var err error
		resp, err = r.svc.Spreadsheets.Values.Get(r.spreadsheetID, r.rangeOf("G2:G")).Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, false, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if s, ok := row[0].(string); ok && s == videoID {
			return i + 2, true, nil
		}
	}
	return 0, false, nil
}

func (r *Recorder) rangeOf(cells string) string {
	return fmt.Sprintf("%s!%s", r.sheetName, cells)
}

// do runs one API call behind the rate limiter with retries.
func (r *Recorder) do(ctx context.Context, op string, call func() error) error {
	err := retry.Do(ctx, r.retryCfg, apiErrorClassifier, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return call()
	})
	if err != nil {
		return &SheetError{Op: op, Err: r.describe(err)}
	}
	return nil
}

// describe maps a not-found API error to ErrSheetNotFound with the
// share hint, since that is almost always a sharing problem.
func (r *Recorder) describe(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusForbidden) {
		if r.shareHint != "" {
			return fmt.Errorf("%w (%s): %v", ErrSheetNotFound, r.shareHint, err)
		}
		return fmt.Errorf("%w: %v", ErrSheetNotFound, err)
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

package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"ytmanager/retry"
)

// fakeSheet serves a minimal slice of the Sheets values API: Get, Update,
// Append and Clear against an in-memory grid.
type fakeSheet struct {
	rows  [][]any // rows[0] is the header row
	calls []string
}

func (f *fakeSheet) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, ":append") && r.Method == http.MethodPost:
			f.calls = append(f.calls, "append")
			var vr struct {
				Values [][]any `json:"values"`
			}
			json.NewDecoder(r.Body).Decode(&vr)
			f.rows = append(f.rows, vr.Values...)
			json.NewEncoder(w).Encode(map[string]any{})

		case strings.HasSuffix(path, ":clear") && r.Method == http.MethodPost:
			rng := strings.TrimSuffix(rangeFromPath(path), ":clear")
			f.calls = append(f.calls, "clear "+rng)
			if strings.Contains(rng, "A:J") {
				f.rows = nil
			} else if len(f.rows) > 0 {
				f.rows[0] = nil
			}
			json.NewEncoder(w).Encode(map[string]any{})

		case r.Method == http.MethodGet:
			f.calls = append(f.calls, "get "+rangeFromPath(path))
			json.NewEncoder(w).Encode(map[string]any{
				"values": f.valuesFor(rangeFromPath(path)),
			})

		case r.Method == http.MethodPut:
			f.calls = append(f.calls, "update "+rangeFromPath(path))
			var vr struct {
				Values [][]any `json:"values"`
			}
			json.NewDecoder(r.Body).Decode(&vr)
			f.applyUpdate(rangeFromPath(path), vr.Values)
			json.NewEncoder(w).Encode(map[string]any{})

		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	})
}

func rangeFromPath(path string) string {
	i := strings.LastIndex(path, "/values/")
	return path[i+len("/values/"):]
}

func (f *fakeSheet) valuesFor(rng string) [][]any {
	switch {
	case strings.Contains(rng, "A1:J1"):
		if len(f.rows) == 0 || len(f.rows[0]) == 0 {
			return nil
		}
		return f.rows[:1]
	case strings.Contains(rng, "G2:G"):
		var out [][]any
		for _, row := range f.rows[min(1, len(f.rows)):] {
			if len(row) > 6 {
				out = append(out, []any{row[6]})
			} else {
				out = append(out, []any{})
			}
		}
		return out
	}
	return nil
}

func (f *fakeSheet) applyUpdate(rng string, values [][]any) {
	if strings.Contains(rng, "A1:J1") {
		if len(f.rows) == 0 {
			f.rows = append(f.rows, nil)
		}
		f.rows[0] = values[0]
		return
	}
	// Status updates target I<n>:J<n>.
	var rowNum int
	if i := strings.Index(rng, "!I"); i >= 0 {
		rest := rng[i+2:]
		if j := strings.Index(rest, ":"); j >= 0 {
			for _, c := range rest[:j] {
				rowNum = rowNum*10 + int(c-'0')
			}
		}
	}
	if rowNum >= 1 && rowNum <= len(f.rows) {
		row := f.rows[rowNum-1]
		for len(row) < 10 {
			row = append(row, "")
		}
		row[8] = values[0][0]
		row[9] = values[0][1]
		f.rows[rowNum-1] = row
	}
}

func headerRow() []any {
	row := make([]any, len(Headers))
	for i, h := range Headers {
		row[i] = h
	}
	return row
}

func testRecorder(t *testing.T, f *fakeSheet, opts ...RecorderOption) *Recorder {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	opts = append(opts, WithRateLimit(1000), WithRetryConfig(retry.Config{MaxRetries: 1}))
	r, err := newRecorder(context.Background(), "sheet-id", "Sheet1", opts,
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("newRecorder() error = %v", err)
	}
	return r
}

func TestEnsureHeadersEmptySheet(t *testing.T) {
	f := &fakeSheet{}
	r := testRecorder(t, f)

	if err := r.EnsureHeaders(context.Background()); err != nil {
		t.Fatalf("EnsureHeaders() error = %v", err)
	}
	if len(f.rows) == 0 || !headersMatch(f.rows[0]) {
		t.Errorf("header row = %v, want %v", f.rows, Headers)
	}
}

func TestEnsureHeadersAlreadyCorrect(t *testing.T) {
	f := &fakeSheet{rows: [][]any{headerRow()}}
	r := testRecorder(t, f)

	if err := r.EnsureHeaders(context.Background()); err != nil {
		t.Fatalf("EnsureHeaders() error = %v", err)
	}
	for _, call := range f.calls {
		if strings.HasPrefix(call, "clear") || strings.HasPrefix(call, "update") {
			t.Errorf("unexpected write %q on a correct header row", call)
		}
	}
}

func TestEnsureHeadersRewritesMismatch(t *testing.T) {
	f := &fakeSheet{rows: [][]any{
		{"Name", "Link"},
		{"old title", "oldvideoid1", StatusCompleted},
	}}
	r := testRecorder(t, f)
	ctx := context.Background()

	if err := r.EnsureHeaders(ctx); err != nil {
		t.Fatalf("EnsureHeaders() error = %v", err)
	}
	if !headersMatch(f.rows[0]) {
		t.Errorf("header row = %v after rewrite", f.rows[0])
	}

	// Rows written under the old layout must not survive the reconcile.
	if len(f.rows) != 1 {
		t.Errorf("sheet has %d rows after reconcile, want 1 (headers only): %v", len(f.rows), f.rows)
	}

	cleared := false
	for _, call := range f.calls {
		if strings.HasPrefix(call, "clear") && strings.Contains(call, "A:J") {
			cleared = true
		}
	}
	if !cleared {
		t.Error("sheet was not cleared before the header rewrite")
	}

	has, err := r.HasVideo(ctx, "oldvideoid1")
	if err != nil {
		t.Fatalf("HasVideo() error = %v", err)
	}
	if has {
		t.Error("HasVideo() = true for a row from the old layout")
	}
}

func TestAppendAndHasVideo(t *testing.T) {
	f := &fakeSheet{rows: [][]any{headerRow()}}
	r := testRecorder(t, f)
	ctx := context.Background()

	has, err := r.HasVideo(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("HasVideo() error = %v", err)
	}
	if has {
		t.Error("HasVideo() = true before append")
	}

	rec := Record{
		Title:      "Test Video",
		VideoID:    "dQw4w9WgXcQ",
		UploadDate: "2024-06-01",
		Status:     StatusPending,
	}
	if err := r.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	has, err = r.HasVideo(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("HasVideo() error = %v", err)
	}
	if !has {
		t.Error("HasVideo() = false after append")
	}
}

func TestSetStatus(t *testing.T) {
	f := &fakeSheet{rows: [][]any{headerRow()}}
	r := testRecorder(t, f)
	ctx := context.Background()

	if err := r.Append(ctx, Record{Title: "t", VideoID: "dQw4w9WgXcQ", Status: StatusPending}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := r.SetStatus(ctx, "dQw4w9WgXcQ", "drive-1", StatusCompleted); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	row := f.rows[1]
	if row[8] != "drive-1" || row[9] != StatusCompleted {
		t.Errorf("row after SetStatus = %v", row)
	}
}

func TestSetStatusMissingRow(t *testing.T) {
	f := &fakeSheet{rows: [][]any{headerRow()}}
	r := testRecorder(t, f)

	err := r.SetStatus(context.Background(), "nosuchvid00", "x", StatusCompleted)
	var serr *SheetError
	if !errors.As(err, &serr) {
		t.Fatalf("SetStatus() error = %v, want *SheetError", err)
	}
}

func TestNotFoundShareHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"Requested entity was not found."}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	r, err := newRecorder(context.Background(), "sheet-id", "Sheet1",
		[]RecorderOption{
			WithRateLimit(1000),
			WithRetryConfig(retry.Config{MaxRetries: 1}),
			WithShareHint("share the spreadsheet with bot@example.iam.gserviceaccount.com"),
		},
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("newRecorder() error = %v", err)
	}

	err = r.EnsureHeaders(context.Background())
	if !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("EnsureHeaders() error = %v, want ErrSheetNotFound", err)
	}
	if !strings.Contains(err.Error(), "bot@example.iam.gserviceaccount.com") {
		t.Errorf("error %q does not carry the share hint", err)
	}
}

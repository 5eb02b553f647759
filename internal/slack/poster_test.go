package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/rosa/internal/ingest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatIngestReport(t *testing.T) {
	res := &ingest.Result{
		Duration: 1500 * time.Millisecond,
		Files: []ingest.FileResult{
			{Name: "janvier.csv", Rows: 120},
			{Name: "fevrier.csv", Error: `missing column "Téléphone"`},
		},
		Failed:        1,
		RowsRead:      120,
		UniqueRecords: 118,
	}

	msg := formatIngestReport("/data/exports", res)

	checks := []string{
		"/data/exports",
		"Files: 2",
		"Rows read: 120",
		"Unique contacts: 118",
		"1.5s",
		"1 file(s) could not be imported",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q, got %q", check, msg)
		}
	}

	failures := formatFailures(res)
	if !strings.Contains(failures, "fevrier.csv") || strings.Contains(failures, "janvier.csv") {
		t.Errorf("expected only the failed file, got %q", failures)
	}
}

func TestFormatIngestReport_NoFiles(t *testing.T) {
	msg := formatIngestReport(".", &ingest.Result{})
	if !strings.Contains(msg, "No CSV files found") {
		t.Errorf("expected empty-directory note, got %q", msg)
	}
}

func TestPostIngestReport_Success(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	res := &ingest.Result{
		Files:  []ingest.FileResult{{Name: "a.csv", Rows: 2}, {Name: "b.csv", Error: "boom"}},
		Failed: 1,
	}
	if err := p.PostIngestReport(context.Background(), "/exports", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(payloads) != 2 {
		t.Fatalf("expected summary plus thread reply, got %d posts", len(payloads))
	}
	if payloads[1]["thread_ts"] != "1234567890.123456" {
		t.Errorf("expected reply threaded under summary, got %v", payloads[1]["thread_ts"])
	}
}

func TestPostIngestReport_NoFailuresNoThread(t *testing.T) {
	posts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1.2"})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	res := &ingest.Result{Files: []ingest.FileResult{{Name: "a.csv", Rows: 2}}}
	if err := p.PostIngestReport(context.Background(), "/exports", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if posts != 1 {
		t.Errorf("expected a single post, got %d", posts)
	}
}

func TestPostIngestReport_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	err := p.PostIngestReport(context.Background(), "/exports", &ingest.Result{})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected slack error, got %v", err)
	}
}

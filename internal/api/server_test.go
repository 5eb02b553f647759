package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
	"github.com/MikeSquared-Agency/rosa/internal/ingest"
	"github.com/MikeSquared-Agency/rosa/internal/session"
)

type fakeSource struct {
	records []contact.Record
	err     error
}

func (f *fakeSource) Records(context.Context) ([]contact.Record, error) {
	return f.records, f.err
}

func (f *fakeSource) Contacts(ctx context.Context) ([]contact.Record, error) {
	return f.Records(ctx)
}

func (f *fakeSource) Columns(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return datasource.Columns, nil
}

func (f *fakeSource) Duplicates(context.Context) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]int{"phone_number": 0}, nil
}

func (f *fakeSource) Statistics(context.Context) (datasource.Statistics, error) {
	if f.err != nil {
		return datasource.Statistics{}, f.err
	}
	return datasource.Statistics{TotalRecords: len(f.records), UniqueSources: 1}, nil
}

func (f *fakeSource) Version(context.Context) (time.Time, error) {
	return time.Time{}, f.err
}

type recordingPublisher struct {
	subjects []string
}

func (r *recordingPublisher) Publish(subject string, data any) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

func scenarioRecords() []contact.Record {
	return []contact.Record{
		{Status: "A", PhoneNumber: "111", TotalCalls: 1},
		{Status: "B", PhoneNumber: "222", TotalCalls: 2},
		{Status: "A", PhoneNumber: "333", TotalCalls: 1},
	}
}

func newTestServer(src *fakeSource, pub *recordingPublisher, token string) *Server {
	deps := Deps{
		Contacts: src,
		Source:   src,
		Sessions: session.NewManager(session.ResetClear, time.Now),
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Backend:  "sqlite",
		APIToken: token,
	}
	if pub != nil {
		deps.Events = pub
	}
	return NewServer(8760, deps)
}

// client replays the session cookie across requests.
type client struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func (c *client) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.srv.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == SessionCookie && ck.Value != "" {
			c.cookie = ck
		}
	}
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeSource{}, nil, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(&fakeSource{}, nil, "")

	req := httptest.NewRequest("GET", "/api/v1/rosa/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["service"] != "rosa" {
		t.Errorf("expected service rosa, got %v", body["service"])
	}
	if body["backend"] != "sqlite" {
		t.Errorf("expected backend sqlite, got %v", body["backend"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(&fakeSource{}, nil, "")

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "s3cret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/contacts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}

	// Health stays open for liveness checks.
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected health to bypass auth, got %d", w.Code)
	}
}

func TestListContacts(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "")
	c := &client{t: t, srv: srv}

	w := c.do("GET", "/api/v1/contacts?status=A&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if c.cookie != nil {
		t.Error("expected no session cookie for a read-only request")
	}

	resp := decode[ContactsResponse](t, w)
	if resp.Summary.Total != 3 || resp.Summary.Available != 2 || resp.Summary.Downloaded != 0 {
		t.Errorf("unexpected summary %+v", resp.Summary)
	}
	if resp.Summary.PercentAvailable != 66.7 {
		t.Errorf("expected 66.7%%, got %v", resp.Summary.PercentAvailable)
	}
	if len(resp.Statuses) != 2 || resp.Statuses[0] != "A" || resp.Statuses[1] != "B" {
		t.Errorf("expected statuses [A B], got %v", resp.Statuses)
	}
	if resp.Limit != 2 {
		t.Errorf("expected limit clamped to 2, got %d", resp.Limit)
	}
	if len(resp.Contacts) != 2 || resp.Contacts[0].PhoneNumber != "111" || resp.Contacts[1].PhoneNumber != "333" {
		t.Errorf("expected contacts 111, 333, got %+v", resp.Contacts)
	}
	if resp.Warning != "" {
		t.Errorf("expected no warning, got %q", resp.Warning)
	}
}

func TestListContacts_InvalidLimit(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "")
	c := &client{t: t, srv: srv}

	for _, limit := range []string{"0", "-3", "ten"} {
		w := c.do("GET", "/api/v1/contacts?limit="+limit, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected 400, got %d", limit, w.Code)
		}
	}
}

func TestExportScenario(t *testing.T) {
	pub := &recordingPublisher{}
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, pub, "")
	c := &client{t: t, srv: srv}
	form := "status=A&limit=10"

	// Preview does not change anything.
	w := c.do("GET", "/api/v1/export/preview?"+form, nil)
	preview := decode[PreviewResponse](t, w)
	if preview.Count != 2 || preview.Filename != "contacts_disponibles.csv" {
		t.Errorf("unexpected preview %+v", preview)
	}

	w = c.do("POST", "/api/v1/export", strings.NewReader(form))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("expected csv content type, got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "contacts_disponibles.csv") {
		t.Errorf("expected attachment filename, got %q", cd)
	}
	if n := w.Header().Get("X-Export-Count"); n != "2" {
		t.Errorf("expected export count 2, got %q", n)
	}

	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse export: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(contact.Header, ",") {
		t.Errorf("unexpected header %v", rows[0])
	}

	hist := decode[HistoryResponse](t, c.do("GET", "/api/v1/history", nil))
	if len(hist.Entries) != 1 || hist.Entries[0].Count != 2 || hist.Downloaded != 2 {
		t.Errorf("unexpected history %+v", hist)
	}

	// Second export with the same filter has nothing to offer.
	w = c.do("POST", "/api/v1/export", strings.NewReader(form))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json warning, got %q", ct)
	}
	warn := decode[map[string]string](t, w)
	if warn["warning"] != EmptyWarning {
		t.Errorf("expected empty warning, got %v", warn)
	}
	hist = decode[HistoryResponse](t, c.do("GET", "/api/v1/history", nil))
	if len(hist.Entries) != 1 {
		t.Errorf("expected history unchanged, got %d entries", len(hist.Entries))
	}

	// Reset brings everything back.
	if w := c.do("POST", "/api/v1/session/reset", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on reset, got %d", w.Code)
	}
	hist = decode[HistoryResponse](t, c.do("GET", "/api/v1/history", nil))
	if len(hist.Entries) != 0 || hist.Downloaded != 0 {
		t.Errorf("expected empty history after reset, got %+v", hist)
	}
	list := decode[ContactsResponse](t, c.do("GET", "/api/v1/contacts?"+form, nil))
	if list.Summary.Available != 2 {
		t.Errorf("expected 2 available after reset, got %d", list.Summary.Available)
	}

	want := []string{"rosa.export.committed", "rosa.session.reset"}
	if fmt.Sprint(pub.subjects) != fmt.Sprint(want) {
		t.Errorf("expected events %v, got %v", want, pub.subjects)
	}
}

func TestExport_SessionsAreIsolated(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "")
	alice := &client{t: t, srv: srv}
	bob := &client{t: t, srv: srv}

	if w := alice.do("POST", "/api/v1/export", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	list := decode[ContactsResponse](t, bob.do("GET", "/api/v1/contacts", nil))
	if list.Summary.Available != 3 {
		t.Errorf("expected other session untouched, got %d available", list.Summary.Available)
	}
	if srv.deps.Sessions.Len() != 1 {
		t.Errorf("expected only the exporting session registered, got %d", srv.deps.Sessions.Len())
	}
	if bob.cookie != nil {
		t.Error("expected no cookie for a session that only read")
	}
}

func TestReadOnlyRequestsDoNotCreateSessions(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "")

	for i := 0; i < 1000; i++ {
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/contacts", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
	if n := srv.deps.Sessions.Len(); n != 0 {
		t.Errorf("expected no sessions after cookieless reads, got %d", n)
	}

	// An unknown cookie is not adopted either.
	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "6f1c3a52-9d0e-4d4b-8a59-2f0b6c1e7a10"})
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if n := srv.deps.Sessions.Len(); n != 0 {
		t.Errorf("expected unknown cookie to stay unregistered, got %d sessions", n)
	}
}

func TestExpireSessions(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	srv := NewServer(8760, Deps{
		Contacts: &fakeSource{records: scenarioRecords()},
		Source:   &fakeSource{},
		Sessions: session.NewManager(session.ResetClear, clock),
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	c := &client{t: t, srv: srv}
	if w := c.do("POST", "/api/v1/session/reset", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	gauge := srv.deps.Metrics.SessionsActive
	if v := testutil.ToFloat64(gauge); v != 1 {
		t.Fatalf("expected 1 active session, got %v", v)
	}

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ExpireSessions(ctx, time.Hour, 10*time.Millisecond)

	deadline := time.After(5 * time.Second)
	for srv.deps.Sessions.Len() != 0 || testutil.ToFloat64(gauge) != 0 {
		select {
		case <-deadline:
			t.Fatalf("expected idle session expired, have %d sessions, gauge %v",
				srv.deps.Sessions.Len(), testutil.ToFloat64(gauge))
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The expired cookie now reads as a fresh session.
	hist := decode[HistoryResponse](t, c.do("GET", "/api/v1/history", nil))
	if len(hist.Entries) != 0 {
		t.Errorf("expected empty history, got %+v", hist)
	}
}

func TestEndSession(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "")
	c := &client{t: t, srv: srv}

	c.do("GET", "/api/v1/contacts", nil)
	if srv.deps.Sessions.Len() != 0 {
		t.Fatalf("expected reads to start no session, got %d", srv.deps.Sessions.Len())
	}
	c.do("POST", "/api/v1/session/reset", nil)
	if srv.deps.Sessions.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", srv.deps.Sessions.Len())
	}
	w := c.do("DELETE", "/api/v1/session", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if srv.deps.Sessions.Len() != 0 {
		t.Errorf("expected session dropped, got %d", srv.deps.Sessions.Len())
	}
}

func TestCharts(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "")
	c := &client{t: t, srv: srv}

	status := decode[struct {
		Buckets []contact.StatusCount `json:"buckets"`
	}](t, c.do("GET", "/api/v1/charts/status", nil))
	if len(status.Buckets) != 2 || status.Buckets[0].Status != "A" || status.Buckets[0].Count != 2 {
		t.Errorf("unexpected status buckets %+v", status.Buckets)
	}

	calls := decode[struct {
		Buckets []contact.CallBucket `json:"buckets"`
	}](t, c.do("GET", "/api/v1/charts/calls?status=B", nil))
	if len(calls.Buckets) != 1 || calls.Buckets[0].TotalCalls != 2 {
		t.Errorf("unexpected call buckets %+v", calls.Buckets)
	}
}

func TestStats(t *testing.T) {
	srv := newTestServer(&fakeSource{records: scenarioRecords()}, nil, "")

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]json.RawMessage](t, w)
	for _, key := range []string{"statistics", "duplicates", "columns"} {
		if _, ok := body[key]; !ok {
			t.Errorf("expected %q in stats response", key)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing source", datasource.ErrSourceMissing, http.StatusServiceUnavailable},
		{"wrapped missing", &datasource.LoadError{Op: "contacts", Err: datasource.ErrSourceMissing}, http.StatusServiceUnavailable},
		{"other failure", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeSource{err: tt.err}, nil, "")
			for _, path := range []string{"/api/v1/contacts", "/api/v1/stats"} {
				w := httptest.NewRecorder()
				srv.router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
				if w.Code != tt.want {
					t.Errorf("%s: expected %d, got %d", path, tt.want, w.Code)
				}
				if body := decode[map[string]string](t, w); body["error"] == "" {
					t.Errorf("%s: expected error message", path)
				}
			}
		})
	}
}

func TestIngestEndpoint(t *testing.T) {
	src := &fakeSource{}
	deps := Deps{
		Contacts: src,
		Source:   src,
		Sessions: session.NewManager(session.ResetClear, time.Now),
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}

	// Without an ingest func the route is not mounted.
	srv := NewServer(8760, deps)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/ingest", nil))
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected ingest route disabled, got %d", w.Code)
	}

	calls := 0
	deps.Ingest = func(context.Context) (*ingest.Result, error) {
		calls++
		return &ingest.Result{RowsRead: 4, UniqueRecords: 3}, nil
	}
	srv = NewServer(8760, deps)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/ingest", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if calls != 1 {
		t.Errorf("expected ingest to run once, got %d", calls)
	}
}

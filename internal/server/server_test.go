package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/metrics"
	"github.com/valpere/reclone/internal/orchestrator"
	"github.com/valpere/reclone/internal/scoring"
	"github.com/valpere/reclone/internal/scraper"
	"github.com/valpere/reclone/internal/store"
)

type mockCloner struct {
	cloneFunc func(ctx context.Context, doc *internal.ScrapedDocument) *orchestrator.Result
	callCount atomic.Int32
}

func (m *mockCloner) Clone(ctx context.Context, doc *internal.ScrapedDocument) *orchestrator.Result {
	m.callCount.Add(1)
	if m.cloneFunc != nil {
		return m.cloneFunc(ctx, doc)
	}
	now := time.Now().UTC()
	return &orchestrator.Result{
		CloneResult: internal.CloneResult{
			Success:          true,
			HTML:             "<html><body>clone of " + doc.URL + "</body></html>",
			VisualSimilarity: 0.9,
			Iterations:       1,
		},
		SessionID:     fmt.Sprintf("session-%d", m.callCount.Load()),
		URL:           doc.URL,
		StopReason:    orchestrator.StopAccepted,
		BestIteration: 0,
		Ledger: &orchestrator.Ledger{Candidates: []orchestrator.Candidate{
			{Iteration: 0, Markup: "<html></html>", Scores: scoring.Scores{Visual: 0.9}},
		}},
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
	}
}

type mockScraper struct {
	scrapeFunc func(ctx context.Context, rawURL string) (*internal.ScrapedDocument, error)
}

func (m *mockScraper) Scrape(ctx context.Context, rawURL string) (*internal.ScrapedDocument, error) {
	if m.scrapeFunc != nil {
		return m.scrapeFunc(ctx, rawURL)
	}
	return &internal.ScrapedDocument{URL: rawURL, Screenshot: []byte("png")}, nil
}

func newHistory(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/clone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h := New(&mockCloner{}, nil).Router()

	rec := get(t, h, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestClone_URL(t *testing.T) {
	var scrapedURL string
	scr := &mockScraper{scrapeFunc: func(_ context.Context, rawURL string) (*internal.ScrapedDocument, error) {
		scrapedURL = rawURL
		return &internal.ScrapedDocument{URL: rawURL, Screenshot: []byte("png")}, nil
	}}
	cloner := &mockCloner{}
	history := newHistory(t)
	h := New(cloner, scr, WithHistory(history)).Router()

	rec := post(t, h, `{"url": "https://example.com"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if scrapedURL != "https://example.com" {
		t.Errorf("expected scraper to receive the URL, got %q", scrapedURL)
	}

	var resp CloneResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.SessionID != "session-1" || resp.StopReason != orchestrator.StopAccepted {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.HTML, "clone of https://example.com") {
		t.Errorf("unexpected html: %q", resp.HTML)
	}

	sess, err := history.GetSession(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("expected the session to be saved: %v", err)
	}
	if sess.URL != "https://example.com" {
		t.Errorf("unexpected saved URL %q", sess.URL)
	}
}

func TestClone_Document(t *testing.T) {
	var got *internal.ScrapedDocument
	cloner := &mockCloner{}
	cloner.cloneFunc = func(ctx context.Context, doc *internal.ScrapedDocument) *orchestrator.Result {
		got = doc
		return &orchestrator.Result{CloneResult: internal.CloneResult{Success: true, HTML: "<html></html>"}, SessionID: "s"}
	}
	h := New(cloner, nil).Router()

	shot := base64.StdEncoding.EncodeToString([]byte("reference"))
	rec := post(t, h, `{"document": {"url": "https://example.com", "title": "Example", "screenshot_base64": "`+shot+`",
		"text": {"headings": ["Welcome"]}}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil {
		t.Fatal("expected the cloner to be called")
	}
	if string(got.Screenshot) != "reference" {
		t.Errorf("expected decoded screenshot, got %q", got.Screenshot)
	}
	if len(got.Text.Headings) != 1 || got.Text.Headings[0] != "Welcome" {
		t.Errorf("unexpected inventory: %+v", got.Text)
	}
}

func TestClone_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"url":`},
		{"empty", `{}`},
		{"both", `{"url": "https://example.com", "document": {"url": "https://example.com"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloner := &mockCloner{}
			h := New(cloner, &mockScraper{}).Router()

			rec := post(t, h, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if cloner.callCount.Load() != 0 {
				t.Error("expected the cloner not to be called")
			}
		})
	}
}

func TestClone_ScrapeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid url", fmt.Errorf("%w: ftp", scraper.ErrInvalidURL), http.StatusBadRequest},
		{"robots", scraper.ErrDisallowed, http.StatusForbidden},
		{"timeout", fmt.Errorf("scrape: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"chrome", errors.New("chrome not found"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scr := &mockScraper{scrapeFunc: func(context.Context, string) (*internal.ScrapedDocument, error) {
				return nil, tt.err
			}}
			cloner := &mockCloner{}
			h := New(cloner, scr).Router()

			rec := post(t, h, `{"url": "https://example.com"}`)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if cloner.callCount.Load() != 0 {
				t.Error("expected the cloner not to be called")
			}
		})
	}
}

func TestClone_ScrapingDisabled(t *testing.T) {
	h := New(&mockCloner{}, nil).Router()

	rec := post(t, h, `{"url": "https://example.com"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestClone_FailedSessionIsStillOK(t *testing.T) {
	cloner := &mockCloner{cloneFunc: func(context.Context, *internal.ScrapedDocument) *orchestrator.Result {
		return &orchestrator.Result{
			CloneResult: internal.CloneResult{Success: false, HTML: orchestrator.ErrorPage("boom"), Error: "boom"},
			SessionID:   "failed",
			StopReason:  orchestrator.StopFailure,
		}
	}}
	h := New(cloner, &mockScraper{}).Router()

	rec := post(t, h, `{"url": "https://example.com"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp CloneResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Error != "boom" || !strings.Contains(resp.HTML, "<!DOCTYPE html>") {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSessions(t *testing.T) {
	history := newHistory(t)
	h := New(&mockCloner{}, &mockScraper{}, WithHistory(history)).Router()

	for _, u := range []string{"https://a.example", "https://b.example"} {
		if rec := post(t, h, `{"url": "`+u+`"}`); rec.Code != http.StatusOK {
			t.Fatalf("clone failed: %d", rec.Code)
		}
	}

	rec := get(t, h, "/sessions?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []store.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 session, got %d", len(list))
	}

	rec = get(t, h, "/sessions/session-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var detail struct {
		ID         string                  `json:"id"`
		Candidates []store.CandidateRecord `json:"candidates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if detail.ID != "session-1" || len(detail.Candidates) != 1 {
		t.Errorf("unexpected session: %+v", detail)
	}

	rec = get(t, h, "/sessions/session-2/html")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html, got %q", ct)
	}
	if csp := rec.Header().Get("Content-Security-Policy"); csp != "sandbox" {
		t.Errorf("expected sandboxed clone html, got CSP %q", csp)
	}
	if !strings.Contains(rec.Body.String(), "clone of https://b.example") {
		t.Errorf("unexpected html: %s", rec.Body.String())
	}

	rec = get(t, h, "/sessions/session-1/report")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<table>") {
		t.Errorf("expected an HTML report, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = get(t, h, "/sessions/session-1/report?format=md")
	if !strings.HasPrefix(rec.Body.String(), "# Clone report: https://a.example") {
		t.Errorf("expected a markdown report, got %s", rec.Body.String())
	}

	if rec := get(t, h, "/sessions/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := get(t, h, "/sessions?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSessions_HistoryDisabled(t *testing.T) {
	h := New(&mockCloner{}, nil).Router()

	for _, path := range []string{"/sessions", "/sessions/x", "/sessions/x/html", "/sessions/x/report"} {
		if rec := get(t, h, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SessionStarted()
	m.SessionFinished("accepted", 2)
	h := New(&mockCloner{}, nil, WithGatherer(reg)).Router()

	rec := get(t, h, "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `reclone_sessions_total{outcome="accepted"} 1`) {
		t.Errorf("expected session counter in output, got %s", body)
	}
}

func TestClone_WaitsForSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	cloner := &mockCloner{}
	cloner.cloneFunc = func(ctx context.Context, doc *internal.ScrapedDocument) *orchestrator.Result {
		started <- struct{}{}
		<-release
		return &orchestrator.Result{SessionID: doc.URL}
	}
	h := New(cloner, &mockScraper{}, WithMaxConcurrent(1)).Router()

	done := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodPost, "/clone", strings.NewReader(`{"url": "https://example.com"}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			done <- rec.Code
		}()
	}

	<-started
	select {
	case <-started:
		t.Fatal("expected the second clone to wait for a free slot")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	for i := 0; i < 2; i++ {
		if code := <-done; code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	}
	if cloner.callCount.Load() != 2 {
		t.Errorf("expected 2 clones, got %d", cloner.callCount.Load())
	}
}

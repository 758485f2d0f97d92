// Package server exposes cloning and the session history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/orchestrator"
	"github.com/valpere/reclone/internal/report"
	"github.com/valpere/reclone/internal/scraper"
	"github.com/valpere/reclone/internal/store"
)

const maxBodyBytes = 32 << 20

// Cloner runs one clone session.
type Cloner interface {
	Clone(ctx context.Context, doc *internal.ScrapedDocument) *orchestrator.Result
}

// History stores and reads back finished sessions.
type History interface {
	SaveResult(ctx context.Context, res *orchestrator.Result) error
	ListSessions(ctx context.Context, limit int) ([]store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetCandidates(ctx context.Context, sessionID string) ([]store.CandidateRecord, error)
}

type Server struct {
	cloner       Cloner
	scraper      scraper.Scraper
	history      History
	gatherer     prometheus.Gatherer
	logger       *slog.Logger
	semaphore    chan struct{}
	cloneTimeout time.Duration
}

type Option func(*Server)

func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithMaxConcurrent bounds the number of clone sessions run at once.
func WithMaxConcurrent(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.semaphore = make(chan struct{}, n)
		}
	}
}

func WithCloneTimeout(d time.Duration) Option {
	return func(s *Server) { s.cloneTimeout = d }
}

// New creates a server. scr may be nil, in which case POST /clone accepts
// only pre-scraped documents.
func New(cloner Cloner, scr scraper.Scraper, opts ...Option) *Server {
	s := &Server{
		cloner:    cloner,
		scraper:   scr,
		gatherer:  prometheus.DefaultGatherer,
		logger:    slog.Default(),
		semaphore: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/clone", s.handleClone)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Get("/{id}/html", s.handleSessionHTML)
		r.Get("/{id}/report", s.handleSessionReport)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CloneRequest is the body of POST /clone. Exactly one of URL and Document
// must be set.
type CloneRequest struct {
	URL      string                    `json:"url,omitempty"`
	Document *internal.ScrapedDocument `json:"document,omitempty"`
}

// CloneResponse is the reply to POST /clone.
type CloneResponse struct {
	internal.CloneResult
	SessionID  string                  `json:"session_id"`
	StopReason orchestrator.StopReason `json:"stop_reason"`
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.URL == "") == (req.Document == nil) {
		writeError(w, http.StatusBadRequest, "exactly one of url or document is required")
		return
	}

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for a free slot")
		return
	}

	ctx := r.Context()
	if s.cloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cloneTimeout)
		defer cancel()
	}

	doc := req.Document
	if doc == nil {
		if s.scraper == nil {
			writeError(w, http.StatusBadRequest, "scraping is disabled; send a document")
			return
		}
		scraped, err := s.scraper.Scrape(ctx, req.URL)
		if err != nil {
			s.logger.Warn("scrape failed", "url", req.URL, "error", err)
			writeError(w, scrapeStatus(err), err.Error())
			return
		}
		doc = scraped
	}

	res := s.cloner.Clone(ctx, doc)

	if s.history != nil {
		// The request context may already be done; history is written regardless.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := s.history.SaveResult(saveCtx, res); err != nil {
			s.logger.Warn("failed to save session", "session", res.SessionID, "error", err)
		}
		cancel()
	}

	writeJSON(w, http.StatusOK, CloneResponse{
		CloneResult: res.CloneResult,
		SessionID:   res.SessionID,
		StopReason:  res.StopReason,
	})
}

func scrapeStatus(err error) int {
	switch {
	case errors.Is(err, scraper.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, scraper.ErrDisallowed):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sessions, err := s.history.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// SessionResponse is the reply to GET /sessions/{id}.
type SessionResponse struct {
	*store.Session
	Candidates []store.CandidateRecord `json:"candidates"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, cands, ok := s.loadSession(w, r, true)
	if !ok {
		return
	}
	if cands == nil {
		cands = []store.CandidateRecord{}
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: sess, Candidates: cands})
}

func (s *Server) handleSessionHTML(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.loadSession(w, r, false)
	if !ok {
		return
	}
	// Generated markup runs in an opaque origin without scripts.
	w.Header().Set("Content-Security-Policy", "sandbox")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sess.HTML))
}

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	sess, cands, ok := s.loadSession(w, r, true)
	if !ok {
		return
	}
	md := report.Markdown(sess, cands)

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(md)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.Page("Clone report "+sess.ID, md)))
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request, withCandidates bool) (*store.Session, []store.CandidateRecord, bool) {
	if !s.requireHistory(w) {
		return nil, nil, false
	}
	id := chi.URLParam(r, "id")

	sess, err := s.history.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, nil, false
	}
	if err != nil {
		s.logger.Error("failed to load session", "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil, nil, false
	}
	if !withCandidates {
		return sess, nil, true
	}

	cands, err := s.history.GetCandidates(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load candidates", "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load candidates")
		return nil, nil, false
	}
	return sess, cands, true
}

func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "session history is disabled")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

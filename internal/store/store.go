// Package store keeps the history of clone sessions in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/reclone/internal/orchestrator"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS clone_sessions (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		stop_reason TEXT NOT NULL,
		error TEXT,
		visual REAL,
		content REAL,
		asset REAL,
		iterations INTEGER,
		best_iteration INTEGER,
		language TEXT,
		asset_summary TEXT,
		html TEXT NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- clone_candidates stores every scored candidate of a session
	CREATE TABLE IF NOT EXISTS clone_candidates (
		session_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		visual REAL,
		content REAL,
		asset REAL,
		combined REAL,
		regressed BOOLEAN DEFAULT FALSE,
		minor BOOLEAN DEFAULT FALSE,
		render_error TEXT,
		duration_ms INTEGER,
		markup TEXT NOT NULL,
		PRIMARY KEY (session_id, iteration),
		FOREIGN KEY (session_id) REFERENCES clone_sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_url ON clone_sessions(url);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON clone_sessions(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Session is a stored clone session without its candidates.
type Session struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Success       bool      `json:"success"`
	StopReason    string    `json:"stop_reason"`
	Error         string    `json:"error,omitempty"`
	Visual        float64   `json:"visual_similarity"`
	Content       float64   `json:"content_completeness"`
	Asset         float64   `json:"asset_score"`
	Iterations    int       `json:"iterations"`
	BestIteration int       `json:"best_iteration"`
	Language      string    `json:"language,omitempty"`
	AssetSummary  string    `json:"asset_summary,omitempty"`
	HTML          string    `json:"-"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Duration returns how long the session ran.
func (s Session) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// CandidateRecord is one stored candidate.
type CandidateRecord struct {
	Iteration   int           `json:"iteration"`
	Visual      float64       `json:"visual"`
	Content     float64       `json:"content"`
	Asset       float64       `json:"asset"`
	Combined    float64       `json:"combined"`
	Regressed   bool          `json:"regressed"`
	Minor       bool          `json:"minor_refinement"`
	RenderError string        `json:"render_error,omitempty"`
	Duration    time.Duration `json:"duration"`
	Markup      string        `json:"-"`
}

// FromResult converts a finished session into its stored form.
func FromResult(res *orchestrator.Result) (*Session, []CandidateRecord) {
	sess := &Session{
		ID:            res.SessionID,
		URL:           normalizeURL(res.URL),
		Success:       res.Success,
		StopReason:    string(res.StopReason),
		Error:         res.Error,
		Visual:        res.VisualSimilarity,
		Content:       res.ContentCompleteness,
		Asset:         res.AssetScore,
		Iterations:    res.Iterations,
		BestIteration: res.BestIteration,
		Language:      res.Language,
		AssetSummary:  res.AssetSummary,
		HTML:          res.HTML,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
	if res.Ledger == nil {
		return sess, nil
	}

	cands := make([]CandidateRecord, 0, len(res.Ledger.Candidates))
	for _, c := range res.Ledger.Candidates {
		cands = append(cands, CandidateRecord{
			Iteration:   c.Iteration,
			Visual:      c.Scores.Visual,
			Content:     c.Scores.Content,
			Asset:       c.Scores.Asset,
			Combined:    c.Combined,
			Regressed:   c.Regressed,
			Minor:       c.Minor,
			RenderError: c.RenderError,
			Duration:    c.Duration,
			Markup:      c.Markup,
		})
	}
	return sess, cands
}

// SaveResult stores a finished session and its ledger in one transaction.
func (s *Store) SaveResult(ctx context.Context, res *orchestrator.Result) error {
	sess, cands := FromResult(res)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clone_sessions (id, url, success, stop_reason, error, visual, content, asset, iterations, best_iteration, language, asset_summary, html, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.URL, sess.Success, sess.StopReason, sess.Error,
		sess.Visual, sess.Content, sess.Asset,
		sess.Iterations, sess.BestIteration, sess.Language, sess.AssetSummary, sess.HTML,
		sess.StartedAt, sess.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, c := range cands {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clone_candidates (session_id, iteration, visual, content, asset, combined, regressed, minor, render_error, duration_ms, markup) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, c.Iteration, c.Visual, c.Content, c.Asset, c.Combined,
			c.Regressed, c.Minor, c.RenderError, c.Duration.Milliseconds(), c.Markup)
		if err != nil {
			return fmt.Errorf("failed to save candidate %d: %w", c.Iteration, err)
		}
	}

	return tx.Commit()
}

const sessionColumns = `id, url, success, stop_reason, COALESCE(error, ''), visual, content, asset, iterations, best_iteration, COALESCE(language, ''), COALESCE(asset_summary, ''), html, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var e Session
	err := row.Scan(&e.ID, &e.URL, &e.Success, &e.StopReason, &e.Error,
		&e.Visual, &e.Content, &e.Asset, &e.Iterations, &e.BestIteration,
		&e.Language, &e.AssetSummary, &e.HTML, &e.StartedAt, &e.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM clone_sessions WHERE id = ?`, id)
	e, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListSessions returns sessions ordered by most recent first. A non-positive
// limit returns all of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM clone_sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Session
	for rows.Next() {
		e, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *e)
	}

	return results, rows.Err()
}

// GetCandidates returns the candidates of a session in iteration order.
func (s *Store) GetCandidates(ctx context.Context, sessionID string) ([]CandidateRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, visual, content, asset, combined, regressed, minor, COALESCE(render_error, ''), duration_ms, markup FROM clone_candidates WHERE session_id = ? ORDER BY iteration`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CandidateRecord
	for rows.Next() {
		var c CandidateRecord
		var ms int64
		if err := rows.Scan(&c.Iteration, &c.Visual, &c.Content, &c.Asset, &c.Combined,
			&c.Regressed, &c.Minor, &c.RenderError, &ms, &c.Markup); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		results = append(results, c)
	}

	return results, rows.Err()
}

// DeleteSession permanently removes a session and its candidates.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clone_candidates WHERE session_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM clone_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Clear removes all sessions and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM clone_candidates`); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM clone_sessions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats summarises the session history.
type Stats struct {
	TotalSessions   int            `json:"total_sessions"`
	Successful      int            `json:"successful"`
	Failed          int            `json:"failed"`
	TotalCandidates int            `json:"total_candidates"`
	AvgVisual       float64        `json:"avg_visual_similarity"`
	AvgIterations   float64        `json:"avg_iterations"`
	ByStopReason    map[string]int `json:"by_stop_reason"`
}

// Stats returns summary statistics for the session history.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStopReason: map[string]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
			COALESCE(AVG(CASE WHEN success THEN visual END), 0),
			COALESCE(AVG(iterations), 0)
		FROM clone_sessions`).Scan(
		&stats.TotalSessions,
		&stats.Successful,
		&stats.Failed,
		&stats.AvgVisual,
		&stats.AvgIterations,
	)
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clone_candidates`).Scan(&stats.TotalCandidates); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT stop_reason, COUNT(*) FROM clone_sessions GROUP BY stop_reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		stats.ByStopReason[reason] = n
	}

	return stats, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeURL is the history key of a page.
func normalizeURL(url string) string {
	return strings.TrimSuffix(norm.NFC.String(strings.TrimSpace(url)), "/")
}

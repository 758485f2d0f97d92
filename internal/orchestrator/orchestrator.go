// Package orchestrator runs the generate, render, score and refine loop for a
// single page and keeps the best candidate it has seen.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/assets"
	"github.com/valpere/reclone/internal/generator"
	"github.com/valpere/reclone/internal/metrics"
	"github.com/valpere/reclone/internal/normalize"
	"github.com/valpere/reclone/internal/prompt"
	"github.com/valpere/reclone/internal/renderer"
	"github.com/valpere/reclone/internal/scoring"
)

var (
	ErrNoDocument     = errors.New("no scraped document")
	ErrNoScreenshot   = errors.New("scraped document has no screenshot")
	ErrEmptyCandidate = errors.New("generator returned no usable markup")
)

// StopReason tells why the loop ended.
type StopReason string

const (
	StopFatalInput StopReason = "fatal_input"
	StopFailure    StopReason = "failure"
	StopRegression StopReason = "regression"
	StopAccepted   StopReason = "accepted"
	StopExhausted  StopReason = "exhausted"
	StopCancelled  StopReason = "cancelled"
)

// Config holds the per-session policy. It is copied into every session and
// never modified.
type Config struct {
	MaxIterations          int             `mapstructure:"max_iterations" json:"max_iterations"`
	QualityThreshold       float64         `mapstructure:"quality_threshold" json:"quality_threshold"`
	AcceptAssetMin         float64         `mapstructure:"accept_asset_min" json:"accept_asset_min"`
	RequireAssetsForAccept bool            `mapstructure:"require_assets_for_accept" json:"require_assets_for_accept"`
	RegressionRatio        float64         `mapstructure:"regression_ratio" json:"regression_ratio"`
	MinorRefineAbove       float64         `mapstructure:"minor_refine_above" json:"minor_refine_above"`
	Weights                scoring.Weights `mapstructure:"weights" json:"weights"`
	InitialTemperature     float64         `mapstructure:"initial_temperature" json:"initial_temperature"`
	RefineTemperature      float64         `mapstructure:"refine_temperature" json:"refine_temperature"`
	MaxTokens              int             `mapstructure:"max_tokens" json:"max_tokens"`
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		MaxIterations:          3,
		QualityThreshold:       0.85,
		AcceptAssetMin:         0.7,
		RequireAssetsForAccept: true,
		RegressionRatio:        0.8,
		MinorRefineAbove:       0.8,
		Weights:                scoring.DefaultWeights,
		InitialTemperature:     0.1,
		RefineTemperature:      0.05,
		MaxTokens:              8000,
	}
}

// Evaluator computes the three fidelity signals.
type Evaluator interface {
	Visual(reference, rendered []byte) (float64, error)
	Content(markup string, inv internal.TextInventory) float64
	Assets(markup string, images []internal.ImageDescriptor) float64
}

// LanguageDetector guesses the language of a page.
type LanguageDetector interface {
	DetectPage(inv internal.TextInventory) (string, bool)
}

// Result is the outcome of one session.
type Result struct {
	internal.CloneResult
	SessionID     string     `json:"session_id"`
	URL           string     `json:"url"`
	StopReason    StopReason `json:"stop_reason"`
	BestIteration int        `json:"best_iteration"`
	AssetSummary  string     `json:"asset_summary,omitempty"`
	Language      string     `json:"language,omitempty"`
	Ledger        *Ledger    `json:"ledger"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
}

type Orchestrator struct {
	gen      generator.Generator
	rend     renderer.Renderer
	cfg      Config
	eval     Evaluator
	detector LanguageDetector
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithEvaluator(e Evaluator) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.eval = e
		}
	}
}

func WithLanguageDetector(d LanguageDetector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// New creates an orchestrator. Non-positive QualityThreshold, RegressionRatio,
// MinorRefineAbove, MaxTokens and an all-zero Weights fall back to
// DefaultConfig; every other field is used as given, so callers normally
// start from DefaultConfig.
func New(gen generator.Generator, rend renderer.Renderer, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:    gen,
		rend:   rend,
		cfg:    withDefaults(cfg),
		eval:   scoring.Suite{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxIterations < 0 {
		cfg.MaxIterations = 0
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = def.QualityThreshold
	}
	if cfg.RegressionRatio <= 0 {
		cfg.RegressionRatio = def.RegressionRatio
	}
	if cfg.MinorRefineAbove <= 0 {
		cfg.MinorRefineAbove = def.MinorRefineAbove
	}
	if cfg.Weights == (scoring.Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return cfg
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// session is the mutable state of one Clone call.
type session struct {
	doc      *internal.ScrapedDocument
	cls      assets.Classification
	lang     string
	ledger   *Ledger
	logger   *slog.Logger
	err      error
	baseline float64
}

// Clone recreates doc. It never returns nil and the returned HTML is always
// a displayable document.
func (o *Orchestrator) Clone(ctx context.Context, doc *internal.ScrapedDocument) *Result {
	res := &Result{
		SessionID:     uuid.NewString(),
		BestIteration: -1,
		Ledger:        newLedger(),
		StartedAt:     time.Now().UTC(),
	}
	logger := o.logger.With("session", res.SessionID)

	o.metrics.SessionStarted()
	defer func() {
		res.FinishedAt = time.Now().UTC()
		o.metrics.SessionFinished(string(res.StopReason), res.Iterations)
		logger.Info("clone finished",
			"stop_reason", res.StopReason,
			"success", res.Success,
			"iterations", res.Iterations,
			"visual", res.VisualSimilarity,
			"content", res.ContentCompleteness,
			"asset", res.AssetScore,
			"duration_ms", res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
		)
	}()

	if doc == nil {
		return o.fail(res, StopFatalInput, ErrNoDocument)
	}
	res.URL = doc.URL
	logger = logger.With("url", doc.URL)
	if len(doc.Screenshot) == 0 {
		logger.Error("cannot clone without a reference screenshot")
		return o.fail(res, StopFatalInput, ErrNoScreenshot)
	}

	s := &session{
		doc:    doc,
		cls:    assets.Classify(doc.Visual.Images),
		ledger: res.Ledger,
		logger: logger,
	}
	res.AssetSummary = s.cls.Summary()
	if o.detector != nil {
		if lang, ok := o.detector.DetectPage(doc.Text); ok {
			s.lang = lang
			res.Language = lang
		}
	}
	logger.Info("clone started", "assets", res.AssetSummary, "language", s.lang, "max_iterations", o.cfg.MaxIterations)

	res.StopReason = o.loop(ctx, s)
	res.Iterations = s.ledger.Len()

	best, ok := s.ledger.Best()
	if !ok {
		err := s.err
		if err == nil {
			err = ErrEmptyCandidate
		}
		return o.fail(res, res.StopReason, err)
	}

	res.BestIteration = best.Iteration
	res.Success = true
	res.HTML = best.Markup
	final := o.rescore(ctx, s, best)
	res.VisualSimilarity = final.Visual
	res.ContentCompleteness = final.Content
	res.AssetScore = final.Asset
	if s.err != nil {
		res.Error = s.err.Error()
	}
	return res
}

func (o *Orchestrator) fail(res *Result, reason StopReason, err error) *Result {
	res.StopReason = reason
	res.Success = false
	res.Error = err.Error()
	res.HTML = ErrorPage(err.Error())
	return res
}

// loop produces candidates 0..MaxIterations and returns why it stopped.
func (o *Orchestrator) loop(ctx context.Context, s *session) StopReason {
	var prev *Candidate

	for i := 0; i <= o.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			s.err = err
			return StopCancelled
		}

		req, minor := o.request(s, prev)
		logger := s.logger.With("iteration", i)

		start := time.Now()
		raw, err := o.gen.Generate(ctx, req)
		o.metrics.ObserveStage("generate", time.Since(start), err)
		if err != nil {
			s.err = fmt.Errorf("generate candidate %d: %w", i, err)
			if ctx.Err() != nil {
				logger.Warn("generation cancelled", "error", err)
				return StopCancelled
			}
			logger.Warn("generation failed, falling back to best candidate", "error", err)
			return StopFailure
		}

		markup := normalize.Normalize(raw)
		if strings.TrimSpace(markup) == "" {
			s.err = fmt.Errorf("candidate %d: %w", i, ErrEmptyCandidate)
			logger.Warn("empty candidate, falling back to best candidate")
			return StopFailure
		}

		c := o.evaluate(ctx, s, markup)
		c.Iteration = i
		c.Raw = raw
		c.Minor = minor
		c.Duration = time.Since(start)

		if i == 0 {
			s.baseline = c.Scores.Content
		} else if c.Scores.Content < o.cfg.RegressionRatio*s.baseline {
			c.Regressed = true
		}
		idx := s.ledger.add(c)

		logger.Info("candidate scored",
			"visual", c.Scores.Visual,
			"content", c.Scores.Content,
			"asset", c.Scores.Asset,
			"combined", c.Combined,
			"regressed", c.Regressed,
		)

		if c.Regressed {
			logger.Warn("content regressed, reverting to best candidate",
				"content", c.Scores.Content,
				"baseline", s.baseline,
			)
			return StopRegression
		}
		// An unrendered refinement never replaces a rendered candidate; only
		// the first attempt may stand in when nothing else exists.
		if c.RenderError != "" && i > 0 {
			s.err = fmt.Errorf("render candidate %d: %s", i, c.RenderError)
			logger.Warn("render failed, falling back to best candidate", "error", c.RenderError)
			return StopFailure
		}
		if s.ledger.offer(idx) {
			logger.Debug("new best candidate", "combined", c.Combined)
		}

		if c.RenderError != "" {
			s.err = fmt.Errorf("render candidate %d: %s", i, c.RenderError)
			return StopFailure
		}
		if o.accepted(c.Scores) {
			return StopAccepted
		}
		prev = &s.ledger.Candidates[idx]
	}
	return StopExhausted
}

func (o *Orchestrator) accepted(sc scoring.Scores) bool {
	if sc.Visual < o.cfg.QualityThreshold {
		return false
	}
	return !o.cfg.RequireAssetsForAccept || sc.Asset > o.cfg.AcceptAssetMin
}

// request builds the generation call for the next candidate. The first
// candidate gets the construction prompt; later ones refine prev.
func (o *Orchestrator) request(s *session, prev *Candidate) (generator.Request, bool) {
	req := generator.Request{
		System:    prompt.System(),
		Image:     s.doc.Screenshot,
		MaxTokens: o.cfg.MaxTokens,
	}
	if prev == nil {
		req.Prompt = prompt.Construction(s.doc, s.cls, s.lang)
		req.Temperature = o.cfg.InitialTemperature
		return req, false
	}

	minor := prev.Scores.Visual > o.cfg.MinorRefineAbove
	req.Prompt = prompt.Refine(prompt.Refinement{
		HTML:          prev.Markup,
		Visual:        prev.Scores.Visual,
		Minor:         minor,
		ImageTags:     scoring.CountImageTags(prev.Markup),
		Glyphs:        scoring.CountGlyphs(prev.Markup),
		PriorityCount: len(s.cls.Logos) + len(s.cls.Content),
	})
	req.Temperature = o.cfg.RefineTemperature
	return req, minor
}

// evaluate renders and scores markup. Render and decode failures are
// recorded as a zero visual score.
func (o *Orchestrator) evaluate(ctx context.Context, s *session, markup string) Candidate {
	c := Candidate{Markup: markup}

	start := time.Now()
	shot, err := o.rend.Render(ctx, markup)
	o.metrics.ObserveStage("render", time.Since(start), err)
	if err != nil {
		s.logger.Warn("render failed", "error", err)
		c.RenderError = err.Error()
	} else {
		c.Scores.Visual = o.visual(s, shot)
	}

	c.Scores.Content = o.eval.Content(markup, s.doc.Text)
	c.Scores.Asset = o.eval.Assets(markup, s.doc.Visual.Images)
	c.Combined = c.Scores.Combined(o.cfg.Weights)
	o.metrics.ObserveScores(c.Scores.Visual, c.Scores.Content, c.Scores.Asset)
	return c
}

func (o *Orchestrator) visual(s *session, shot []byte) float64 {
	v, err := o.eval.Visual(s.doc.Screenshot, shot)
	if err != nil {
		s.logger.Warn("visual scoring failed, using 0", "error", err)
		o.metrics.StageFailed("visual")
		return 0
	}
	return v
}

// rescore renders the chosen candidate once more. When that fails the
// ledger scores are reported.
func (o *Orchestrator) rescore(ctx context.Context, s *session, best Candidate) scoring.Scores {
	if ctx.Err() != nil {
		return best.Scores
	}
	shot, err := o.rend.Render(ctx, best.Markup)
	if err != nil {
		s.logger.Warn("final render failed, keeping recorded scores", "error", err)
		return best.Scores
	}
	v, err := o.eval.Visual(s.doc.Screenshot, shot)
	if err != nil {
		s.logger.Warn("final visual scoring failed, keeping recorded scores", "error", err)
		return best.Scores
	}
	return scoring.Scores{
		Visual:  v,
		Content: o.eval.Content(best.Markup, s.doc.Text),
		Asset:   o.eval.Assets(best.Markup, s.doc.Visual.Images),
	}
}

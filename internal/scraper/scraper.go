// Package scraper captures a live page: its screenshot, visible text and the
// layout digest the construction prompt is built from.
package scraper

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/valpere/reclone/internal"
	"github.com/valpere/reclone/internal/renderer"
)

//go:embed probe.js
var probeSource string

// ErrInvalidURL is returned for targets that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid page URL")

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

// Scraper produces a document for a page URL.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (*internal.ScrapedDocument, error)
}

// Options configures the chromedp scraper.
type Options struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	ViewportWidth      int64         `mapstructure:"viewport_width"`
	ViewportHeight     int64         `mapstructure:"viewport_height"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	UserAgent          string        `mapstructure:"user_agent"`
	ConcurrentSessions int           `mapstructure:"concurrent_sessions"`
	DisableHeadless    bool          `mapstructure:"disable_headless"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
}

// probeResult mirrors the object returned by probe.js.
type probeResult struct {
	Title               string                     `json:"title"`
	Images              []internal.ImageDescriptor `json:"images"`
	GridLayouts         int                        `json:"grid_layouts"`
	ContentSections     int                        `json:"content_sections"`
	InteractiveElements int                        `json:"interactive_elements"`
	SiteStructure       string                     `json:"site_structure"`
	LayoutStyle         string                     `json:"layout_style"`
	SiteCategory        string                     `json:"site_category"`
	Typography          internal.Typography        `json:"typography"`
}

func (p probeResult) visual() internal.VisualContext {
	return internal.VisualContext{
		Images:              p.Images,
		GridLayouts:         p.GridLayouts,
		ContentSections:     p.ContentSections,
		InteractiveElements: p.InteractiveElements,
		SiteStructure:       p.SiteStructure,
		LayoutStyle:         p.LayoutStyle,
		SiteCategory:        p.SiteCategory,
		Typography:          p.Typography,
	}
}

// ChromedpScraper loads pages in headless Chrome.
type ChromedpScraper struct {
	opts      Options
	semaphore chan struct{}
	robots    *Robots
	logger    *slog.Logger
}

// NewChromedpScraper constructs a scraper with bounded concurrency.
func NewChromedpScraper(opts Options) *ChromedpScraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1280
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 720
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	s := &ChromedpScraper{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    slog.Default(),
	}
	if opts.RespectRobots {
		s.robots = NewRobots(opts.UserAgent, nil)
	}
	return s
}

// WithLogger replaces the default logger.
func (s *ChromedpScraper) WithLogger(logger *slog.Logger) *ChromedpScraper {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// ParseTarget validates a page URL.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// Scrape navigates to rawURL, waits for the page to settle and captures it.
func (s *ChromedpScraper) Scrape(parentCtx context.Context, rawURL string) (*internal.ScrapedDocument, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("url", target.String())

	if s.robots != nil {
		if err := s.robots.Check(parentCtx, target); err != nil {
			return nil, err
		}
	}

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-parentCtx.Done():
		return nil, parentCtx.Err()
	}

	ctx, cancel := context.WithTimeout(parentCtx, s.opts.Timeout)
	defer cancel()

	execOpts := append(renderer.ExecOptions(s.opts.DisableHeadless), chromedp.UserAgent(s.opts.UserAgent))
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()
	var (
		probe probeResult
		html  string
		shot  []byte
	)
	err = chromedp.Run(chromeCtx,
		chromedp.EmulateViewport(s.opts.ViewportWidth, s.opts.ViewportHeight),
		chromedp.Navigate(target.String()),
		waitForDocumentReady(logger),
		chromedp.Sleep(s.opts.SettleDelay),
		chromedp.Evaluate(probeSource, &probe),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&shot, 100),
	)
	if err != nil {
		logger.Error("chromedp scrape failed", "error", err)
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	text, err := ExtractInventory(html)
	if err != nil {
		return nil, err
	}

	doc := &internal.ScrapedDocument{
		URL:        target.String(),
		Title:      probe.Title,
		Screenshot: shot,
		Text:       text,
		Visual:     probe.visual(),
		ScrapedAt:  time.Now().UTC(),
	}
	logger.Info("page scraped",
		"latency_ms", time.Since(start).Milliseconds(),
		"images", len(doc.Visual.Images),
		"headings", len(text.Headings),
		"screenshot_bytes", len(shot),
	)
	return doc, nil
}

func waitForDocumentReady(logger *slog.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				logger.Warn("readyState evaluate failed", "error", err)
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

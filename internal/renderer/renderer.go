// Package renderer turns candidate markup into a screenshot with headless
// Chrome.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrEmptyScreenshot is returned when Chrome produced no image.
var ErrEmptyScreenshot = errors.New("empty screenshot")

// Renderer renders markup and returns an encoded image. Implementations must
// be safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, markup string) ([]byte, error)
}

// Options configures the chromedp pipeline.
type Options struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	ViewportWidth      int64         `mapstructure:"viewport_width"`
	ViewportHeight     int64         `mapstructure:"viewport_height"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	ConcurrentSessions int           `mapstructure:"concurrent_sessions"`
	DisableHeadless    bool          `mapstructure:"disable_headless"`
}

// ChromedpRenderer loads markup into a fresh headless Chrome tab and takes a
// full-page PNG screenshot.
type ChromedpRenderer struct {
	opts      Options
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewChromedpRenderer constructs a renderer with bounded concurrency.
func NewChromedpRenderer(opts Options) *ChromedpRenderer {
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
		opts.SettleDelay = time.Second
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	return &ChromedpRenderer{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    slog.Default(),
	}
}

// WithLogger replaces the default logger.
func (r *ChromedpRenderer) WithLogger(logger *slog.Logger) *ChromedpRenderer {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Options returns the effective options.
func (r *ChromedpRenderer) Options() Options {
	return r.opts
}

// Render loads markup as the document of about:blank, waits for it to settle
// and captures the whole page.
func (r *ChromedpRenderer) Render(parentCtx context.Context, markup string) ([]byte, error) {
	if err := parentCtx.Err(); err != nil {
		return nil, err
	}

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		return nil, parentCtx.Err()
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(r.opts.DisableHeadless)...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()
	var buf []byte
	err := chromedp.Run(chromeCtx,
		chromedp.EmulateViewport(r.opts.ViewportWidth, r.opts.ViewportHeight),
		chromedp.Navigate("about:blank"),
		setDocumentContent(markup),
		chromedp.Sleep(r.opts.SettleDelay),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		r.logger.Error("chromedp render failed", "error", err, "markup_bytes", len(markup))
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if len(buf) == 0 {
		return nil, ErrEmptyScreenshot
	}

	r.logger.Debug("chromedp render complete",
		"latency_ms", time.Since(start).Milliseconds(),
		"markup_bytes", len(markup),
		"png_bytes", len(buf),
	)
	return buf, nil
}

// ExecOptions are the Chrome flags shared by the renderer and the scraper.
func ExecOptions(disableHeadless bool) []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !disableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("hide-scrollbars", true),
	}
}

func setDocumentContent(markup string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
	})
}

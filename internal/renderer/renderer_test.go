package renderer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewChromedpRenderer_Defaults(t *testing.T) {
	r := NewChromedpRenderer(Options{})
	opts := r.Options()

	if opts.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", opts.Timeout)
	}
	if opts.ViewportWidth != 1280 || opts.ViewportHeight != 720 {
		t.Errorf("viewport = %dx%d, want 1280x720", opts.ViewportWidth, opts.ViewportHeight)
	}
	if opts.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %v, want 1s", opts.SettleDelay)
	}
	if cap(r.semaphore) != 1 {
		t.Errorf("semaphore capacity = %d, want 1", cap(r.semaphore))
	}
}

func TestNewChromedpRenderer_KeepsOptions(t *testing.T) {
	r := NewChromedpRenderer(Options{ViewportWidth: 1920, ViewportHeight: 1080, ConcurrentSessions: 4})

	if r.opts.ViewportWidth != 1920 || r.opts.ViewportHeight != 1080 {
		t.Errorf("viewport overridden: %+v", r.opts)
	}
	if cap(r.semaphore) != 4 {
		t.Errorf("semaphore capacity = %d, want 4", cap(r.semaphore))
	}
}

func TestRender_CancelledContext(t *testing.T) {
	r := NewChromedpRenderer(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, "<html></html>")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRender_WaitsForSession(t *testing.T) {
	r := NewChromedpRenderer(Options{})
	r.semaphore <- struct{}{}
	defer func() { <-r.semaphore }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Render(ctx, "<html></html>")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline while waiting for a session, got %v", err)
	}
}

func TestExecOptions(t *testing.T) {
	if len(ExecOptions(false)) == 0 {
		t.Error("expected chrome flags")
	}
}

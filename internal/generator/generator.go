// Package generator talks to the language models that write candidate pages.
//
// Every client sends the reference screenshot together with the prompt, so
// the model can compare its previous attempt with the original page.
package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when a model answers without any text.
var ErrEmptyResponse = errors.New("empty response from generator")

// Request is a single generation call.
type Request struct {
	System         string
	Prompt         string
	Image          []byte
	ImageMediaType string
	Temperature    float64
	MaxTokens      int
}

// Generator produces raw model output for a request. Implementations must be
// safe for concurrent use.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Config configures a model client.
type Config struct {
	APIKey  string        `mapstructure:"api_key" json:"api_key"`
	Model   string        `mapstructure:"model" json:"model"`
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

const defaultTimeout = 300 * time.Second

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// New returns the client for provider: "anthropic", "openrouter" or "ollama".
func New(provider string, cfg Config) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "openrouter":
		return NewOpenRouter(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	default:
		return nil, fmt.Errorf("unknown generator provider: %q", provider)
	}
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Paced limits how often the wrapped generator is called.
type Paced struct {
	Generator
	limiter *rate.Limiter
}

// NewPaced allows at most requests calls per window. A non-positive limit
// returns g unchanged.
func NewPaced(g Generator, requests int, window time.Duration) Generator {
	if requests <= 0 || window <= 0 {
		return g
	}
	interval := window / time.Duration(requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Paced{
		Generator: g,
		limiter:   rate.NewLimiter(rate.Every(interval), requests),
	}
}

func (p *Paced) Generate(ctx context.Context, req Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return p.Generator.Generate(ctx, req)
}

func mediaType(req Request) string {
	if req.ImageMediaType != "" {
		return req.ImageMediaType
	}
	return http.DetectContentType(req.Image)
}

func dataURI(req Request) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType(req), base64.StdEncoding.EncodeToString(req.Image))
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// ErrDisallowed is returned when robots.txt forbids scraping a page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Robots checks robots.txt rules, caching them per host.
type Robots struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewRobots returns a checker for userAgent. A nil client uses a 10s timeout.
func NewRobots(userAgent string, client *http.Client) *Robots {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Robots{
		client:    client,
		userAgent: userAgent,
		ttl:       30 * time.Minute,
		cache:     make(map[string]robotsEntry),
	}
}

// Check returns ErrDisallowed when target may not be fetched. Failing to load
// robots.txt allows the page.
func (r *Robots) Check(ctx context.Context, target *url.URL) error {
	rules, err := r.rules(ctx, target)
	if err != nil {
		return nil
	}
	agent := r.userAgent
	if agent == "" {
		agent = "*"
	}
	if !rules.TestAgent(target.EscapedPath(), agent) {
		return fmt.Errorf("%s: %w", target, ErrDisallowed)
	}
	return nil
}

func (r *Robots) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	r.mu.Lock()
	entry, ok := r.cache[host]
	r.mu.Unlock()
	if ok && time.Since(entry.fetched) < r.ttl {
		return entry.rules, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Scheme+"://"+target.Host+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.cache[host] = robotsEntry{fetched: time.Now(), rules: data}
	r.mu.Unlock()
	return data, nil
}

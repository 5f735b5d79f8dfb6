package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Policy decides whether a URL may be fetched. Implementations must be
// safe for concurrent use by multiple workers.
type Policy interface {
	// Allowed reports whether the target URL is permitted.
	Allowed(ctx context.Context, target *url.URL) bool
}

// AllowAll is the default policy: every URL is permitted.
type AllowAll struct{}

// Allowed implements Policy.
func (AllowAll) Allowed(context.Context, *url.URL) bool { return true }

// Agent evaluates robots.txt rules with per-host caching.
//
// Design decision: We fail open on robots errors (fetch failure, parse
// failure, 4xx). A site whose robots.txt is broken or missing has not
// expressed a policy, and refusing to mirror it would surprise users.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewAgent constructs a robots.txt policy using the given HTTP client.
// A nil client falls back to a plain client with a short timeout.
func NewAgent(client *http.Client, userAgent string) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Agent{
		client:    client,
		userAgent: userAgent,
		ttl:       30 * time.Minute,
		cache:     make(map[string]cacheEntry),
	}
}

// Allowed implements Policy.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}

	rules, err := a.rules(ctx, target)
	if err != nil {
		return true
	}

	group := rules.FindGroup(a.userAgent)
	if group == nil {
		group = rules.FindGroup("*")
		if group == nil {
			return true
		}
	}
	return group.Test(target.Path)
}

// rules returns the cached robots data for the target's host, fetching
// robots.txt when the cache is cold or stale.
func (a *Agent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.RLock()
	entry, ok := a.cache[host]
	if ok && time.Since(entry.fetched) < a.ttl {
		a.mu.RUnlock()
		return entry.rules, nil
	}
	a.mu.RUnlock()

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best-effort close after read

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	a.mu.Lock()
	a.cache[host] = cacheEntry{fetched: time.Now(), rules: data}
	a.mu.Unlock()

	return data, nil
}

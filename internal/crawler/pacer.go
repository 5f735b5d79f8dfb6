package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces the minimum delay between requests to the same host.
// Each host gets its own token bucket, so slow hosts never stall the
// rest of the crawl. A zero delay disables pacing for that host.
type Pacer struct {
	defaultDelay time.Duration
	overrides    map[string]time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacer creates a pacer with the given default inter-request delay.
// Per-host overrides take precedence over the default.
func NewPacer(defaultDelay time.Duration, overrides map[string]time.Duration) *Pacer {
	normalized := make(map[string]time.Duration, len(overrides))
	for host, d := range overrides {
		normalized[strings.ToLower(host)] = d
	}
	return &Pacer{
		defaultDelay: defaultDelay,
		overrides:    normalized,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host's next request slot is available or the
// context is cancelled.
func (p *Pacer) Wait(ctx context.Context, host string) error {
	limiter := p.limiterFor(strings.ToLower(host))
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// delayFor returns the configured delay for a host.
func (p *Pacer) delayFor(host string) time.Duration {
	if d, ok := p.overrides[host]; ok {
		return d
	}
	return p.defaultDelay
}

func (p *Pacer) limiterFor(host string) *rate.Limiter {
	delay := p.delayFor(host)
	if delay <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
		p.limiters[host] = limiter
	}
	return limiter
}

package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer produces rendered HTML for pages whose plain fetch is not
// representative, typically single-page applications that ship an empty
// body and build the DOM in JavaScript. The crawl engine treats the
// renderer's output identically to a normal fetch response.
//
// Implementations must be safe for concurrent use.
type Renderer interface {
	// Render navigates to the URL and returns the final DOM as HTML.
	Render(ctx context.Context, rawURL string) ([]byte, error)
}

// ChromedpRenderer renders pages in headless Chrome via chromedp.
//
// Design decision: Sessions are bounded by a semaphore because each render
// spawns a browser tab; unbounded rendering would dwarf the crawl's own
// concurrency limits in memory cost.
type ChromedpRenderer struct {
	timeout   time.Duration
	userAgent string
	semaphore chan struct{}
}

// RendererOption configures a ChromedpRenderer.
type RendererOption func(*ChromedpRenderer)

// WithRenderTimeout sets the per-render deadline.
func WithRenderTimeout(d time.Duration) RendererOption {
	return func(r *ChromedpRenderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRenderUserAgent sets the browser User-Agent.
func WithRenderUserAgent(ua string) RendererOption {
	return func(r *ChromedpRenderer) {
		r.userAgent = ua
	}
}

// WithRenderConcurrency bounds simultaneous browser sessions.
func WithRenderConcurrency(n int) RendererOption {
	return func(r *ChromedpRenderer) {
		if n > 0 {
			r.semaphore = make(chan struct{}, n)
		}
	}
}

// NewChromedpRenderer creates a renderer with bounded concurrency
// (default: one session at a time).
func NewChromedpRenderer(opts ...RendererOption) *ChromedpRenderer {
	r := &ChromedpRenderer{
		timeout:   60 * time.Second,
		semaphore: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render implements Renderer.
func (r *ChromedpRenderer) Render(parentCtx context.Context, rawURL string) ([]byte, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		return nil, parentCtx.Err()
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
	}
	if r.userAgent != "" {
		execOpts = append(execOpts, chromedp.UserAgent(r.userAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, execOpts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}

	return []byte(html), nil
}

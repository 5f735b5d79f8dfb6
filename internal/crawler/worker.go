package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nao1215/webmirror/internal/fetch"
	"github.com/nao1215/webmirror/internal/model"
)

// runWorker is the fetch worker loop. It pops tasks until the frontier
// closes. All children of a task are pushed before Done is called, so the
// frontier's self-closing logic never fires while discovery is pending.
func (c *Coordinator) runWorker(ctx context.Context) {
	for {
		task, ok := c.frontier.Pop()
		if !ok {
			return
		}
		c.process(ctx, task)
		c.frontier.Done()
	}
}

// process handles one crawl task end to end: robots check, pacing, fetch
// with retries, extraction, persistence, recording, and discovery.
func (c *Coordinator) process(ctx context.Context, task model.CrawlTask) {
	target, err := url.Parse(task.URL)
	if err != nil {
		// Push already parsed this URL; a failure here means corruption.
		c.logger.Warn("unparseable task url", slog.String("url", task.URL))
		return
	}

	// A URL already claimed as an asset (an iframe source, for example)
	// must not also become a page: the combined record set carries each
	// URL at most once.
	if c.downloader.Seen(task.URL) {
		c.logger.Debug("already mirrored as asset", slog.String("url", task.URL))
		return
	}

	if !c.policy.Allowed(ctx, target) {
		c.logger.Debug("skipped by robots.txt", slog.String("url", task.URL))
		return
	}

	if err := c.pacer.Wait(ctx, target.Host); err != nil {
		return
	}

	resp, errKind, requeued := c.fetchWithRetry(ctx, task)
	if requeued {
		return
	}
	if errKind != model.ErrorKindNone {
		page := &model.PageResult{
			URL:   task.URL,
			Depth: task.Depth,
			Error: errKind,
		}
		if resp != nil {
			page.StatusCode = resp.StatusCode
			page.ContentType = resp.ContentType
			page.Elapsed = resp.Elapsed
		}
		c.recordPage(page)
		c.logger.Debug("page fetch failed",
			slog.String("url", task.URL), slog.String("error_kind", string(errKind)))
		return
	}

	if !resp.IsHTML() {
		// A linked URL that turned out to be a file, not a document.
		c.downloader.RecordDirect(task.URL, resp)
		return
	}

	page := c.buildPage(ctx, task, resp)
	if !c.recordPage(page) {
		return
	}

	for _, link := range page.Links {
		c.frontier.Push(model.CrawlTask{
			URL:            link,
			Depth:          task.Depth + 1,
			DiscoveredFrom: task.URL,
		})
	}
	if c.cfg.IncludeAssets && !page.Failed() {
		for _, ref := range page.Assets {
			c.downloader.Enqueue(ref)
		}
	}
}

// fetchWithRetry runs the retry loop for one page. It returns the final
// response (possibly with an error status), the error classification, and
// whether the task was requeued for a later attempt under the 429 path.
//
// Transient transport failures and 5xx statuses are retried with
// exponential backoff up to the retry limit. Other 4xx statuses are
// definitive. 429 never consumes the retry budget: the task goes back on
// the frontier after a longer wait, bounded per host by the cumulative
// rate-limit ceiling.
func (c *Coordinator) fetchWithRetry(ctx context.Context, task model.CrawlTask) (*fetch.Response, model.ErrorKind, bool) {
	for attempt := 0; ; attempt++ {
		resp, err := c.fetchOnce(ctx, task.URL)
		if err != nil {
			kind := model.ClassifyFetchError(err)
			if ctx.Err() == nil && kind.Retryable() && attempt < c.cfg.RetryLimit {
				if fetch.Sleep(ctx, c.backoff.Delay(attempt)) == nil {
					continue
				}
			}
			return nil, kind, false
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if c.requeueRateLimited(ctx, task, resp) {
				return nil, model.ErrorKindRateLimited, true
			}
			return resp, model.ErrorKindRateLimited, false

		case model.StatusRetryable(resp.StatusCode) && attempt < c.cfg.RetryLimit:
			if fetch.Sleep(ctx, c.backoff.Delay(attempt)) != nil {
				return resp, model.ErrorKindHTTP, false
			}

		default:
			return resp, model.ClassifyStatus(resp.StatusCode), false
		}
	}
}

// buildPage turns a successful HTML response into a PageResult: extract
// links and assets, fall back to rendering for script-only shells, and
// write the document into the mirror.
func (c *Coordinator) buildPage(ctx context.Context, task model.CrawlTask, resp *fetch.Response) *model.PageResult {
	page := &model.PageResult{
		URL:         task.URL,
		StatusCode:  resp.StatusCode,
		Depth:       task.Depth,
		ContentType: resp.ContentType,
		Elapsed:     resp.Elapsed,
		ByteSize:    int64(len(resp.Body)),
		Checksum:    model.Checksum(resp.Body),
	}

	body := resp.Body
	result, err := Extract(body, resp.Header.Get("Content-Type"), task.URL)
	if err != nil {
		page.Error = model.ErrorKindParse
		return page
	}

	if result.LikelyJSDependent && c.renderer != nil {
		if rendered, rerr := c.renderer.Render(ctx, task.URL); rerr == nil && len(rendered) > 0 {
			if reResult, reErr := Extract(rendered, "text/html; charset=utf-8", task.URL); reErr == nil {
				body = rendered
				result = reResult
				page.Rendered = true
				page.ByteSize = int64(len(body))
				page.Checksum = model.Checksum(body)
			}
		} else if rerr != nil {
			c.logger.Debug("render fallback failed",
				slog.String("url", task.URL), slog.String("error", rerr.Error()))
		}
	}

	page.Title = result.Title
	page.Links = result.Links
	page.Assets = result.Assets
	page.Partial = result.Partial

	path, werr := c.store.WritePage(task.URL, body)
	if werr != nil {
		page.Error = model.ErrorKindWrite
		c.logger.Warn("page write failed",
			slog.String("url", task.URL), slog.String("error", werr.Error()))
		return page
	}
	page.LocalPath = path
	return page
}

// fetchOnce performs one bounded request under the shared network ceiling.
func (c *Coordinator) fetchOnce(ctx context.Context, rawURL string) (*fetch.Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	return c.fetcher.Fetch(reqCtx, rawURL)
}

// requeueRateLimited handles an HTTP 429: wait out the server, then put
// the task back on the frontier. Returns false when the host's cumulative
// backoff budget is exhausted, the wait was interrupted, or the frontier
// has closed; the caller then records the task as failed.
func (c *Coordinator) requeueRateLimited(ctx context.Context, task model.CrawlTask, resp *fetch.Response) bool {
	host := task.Host()
	delay := c.rate.delayFor(host, resp.Header.Get("Retry-After"))

	if !c.rate.reserve(host, delay) {
		c.logger.Warn("rate limit budget exhausted",
			slog.String("host", host), slog.String("url", task.URL))
		return false
	}

	c.logger.Debug("rate limited, requeueing",
		slog.String("url", task.URL), slog.Duration("delay", delay))
	if fetch.Sleep(ctx, delay) != nil {
		return false
	}
	return c.frontier.Requeue(task)
}

// rateLimitBase is the starting 429 backoff, doubled per repeat offense
// by the same host and capped at rateLimitMaxDelay. Deliberately larger
// than the transient-failure backoff: a 429 is the server telling us to
// slow down, not a flaky connection.
const (
	rateLimitBase     = 2 * time.Second
	rateLimitMaxDelay = 30 * time.Second
)

// rateLedger tracks, per host, the cumulative time spent waiting out 429
// responses. Once a host has cost more than the ceiling, further
// rate-limited tasks for it are failed instead of requeued, so a
// permanently throttling server cannot stall the crawl forever.
type rateLedger struct {
	ceiling time.Duration

	mu    sync.Mutex
	spent map[string]time.Duration
	hits  map[string]int
}

func newRateLedger(ceiling time.Duration) *rateLedger {
	return &rateLedger{
		ceiling: ceiling,
		spent:   make(map[string]time.Duration),
		hits:    make(map[string]int),
	}
}

// delayFor computes the next backoff for a host. A parseable Retry-After
// header wins; otherwise the delay doubles with each 429 from the host.
func (l *rateLedger) delayFor(host, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			d := time.Duration(secs) * time.Second
			if d > rateLimitMaxDelay {
				d = rateLimitMaxDelay
			}
			return d
		}
	}

	l.mu.Lock()
	hits := l.hits[host]
	l.hits[host] = hits + 1
	l.mu.Unlock()

	d := rateLimitBase
	for i := 0; i < hits; i++ {
		d *= 2
		if d >= rateLimitMaxDelay {
			return rateLimitMaxDelay
		}
	}
	return d
}

// reserve charges the delay against the host's budget, or reports false
// when the ceiling would be exceeded.
func (l *rateLedger) reserve(host string, d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ceiling > 0 && l.spent[host]+d > l.ceiling {
		return false
	}
	l.spent[host] += d
	return true
}

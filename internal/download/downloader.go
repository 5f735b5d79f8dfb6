package download

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nao1215/webmirror/internal/fetch"
	"github.com/nao1215/webmirror/internal/inspect"
	"github.com/nao1215/webmirror/internal/mirror"
	"github.com/nao1215/webmirror/internal/model"
)

// Sink receives completed asset records. The crawl aggregator implements it.
type Sink interface {
	AddAsset(*model.AssetRecord)
}

// Downloader downloads referenced assets at most once per crawl. Enqueue
// is called by fetch workers as they extract references; Wait blocks until
// every accepted download has finished.
//
// Design decision: assets keep their own dedup keyspace instead of sharing
// the page frontier's. A URL that is both linked and referenced would
// otherwise be claimed by whichever side saw it first, making the mirror's
// contents timing-dependent. The guard runs both ways: URLs already
// admitted as pages are skipped here, and fetch workers skip URLs already
// claimed as assets (see Seen), so no URL ever yields both a page and an
// asset file.
type Downloader struct {
	fetcher       *fetch.Fetcher
	store         *mirror.Store
	sem           *semaphore.Weighted
	sink          Sink
	logger        *slog.Logger
	pageVisited   func(string) bool
	retryLimit    int
	backoff       fetch.Backoff
	timeout       time.Duration
	inspectImages bool

	ctx   context.Context
	group errgroup.Group

	mu   sync.Mutex
	seen map[string]struct{}
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithRetryLimit sets how many times a retryable failure is reattempted.
func WithRetryLimit(limit int) Option {
	return func(d *Downloader) {
		if limit >= 0 {
			d.retryLimit = limit
		}
	}
}

// WithBackoff sets the retry delay schedule.
func WithBackoff(b fetch.Backoff) Option {
	return func(d *Downloader) {
		d.backoff = b
	}
}

// WithTimeout sets the per-download request deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Downloader) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithImageInspection enables EXIF metadata notes on mirrored images.
func WithImageInspection(enabled bool) Option {
	return func(d *Downloader) {
		d.inspectImages = enabled
	}
}

// WithPageVisited supplies the predicate for URLs already claimed as pages.
func WithPageVisited(visited func(string) bool) Option {
	return func(d *Downloader) {
		d.pageVisited = visited
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// NewDownloader creates a Downloader. The semaphore is shared with the
// page fetch workers so that pages plus assets never exceed the crawl's
// network ceiling. Downloads stop accepting work once ctx is cancelled.
func NewDownloader(ctx context.Context, fetcher *fetch.Fetcher, store *mirror.Store, sem *semaphore.Weighted, sink Sink, opts ...Option) *Downloader {
	d := &Downloader{
		fetcher:     fetcher,
		store:       store,
		sem:         sem,
		sink:        sink,
		logger:      slog.Default(),
		pageVisited: func(string) bool { return false },
		retryLimit:  3,
		backoff:     fetch.NewBackoff(0, 0),
		timeout:     30 * time.Second,
		ctx:         ctx,
		seen:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue schedules one asset reference for download. It returns false
// when the URL was already claimed in this crawl, either as an asset or
// as a page.
func (d *Downloader) Enqueue(ref model.AssetRef) bool {
	if d.ctx.Err() != nil {
		return false
	}
	if d.pageVisited(ref.URL) {
		return false
	}
	if !d.claim(ref.URL) {
		return false
	}

	d.group.Go(func() error {
		d.download(ref)
		return nil
	})
	return true
}

// RecordDirect records a non-HTML response that arrived through the page
// path (a seed or link that turned out not to be a document). The body is
// written to the asset area and the URL is claimed in the asset keyspace
// so later references to it are skipped.
func (d *Downloader) RecordDirect(rawURL string, resp *fetch.Response) {
	if !d.claim(rawURL) {
		return
	}
	record := &model.AssetRecord{
		URL:        rawURL,
		Kind:       model.ClassifyAsset(resp.ContentType, rawURL),
		StatusCode: resp.StatusCode,
		Elapsed:    resp.Elapsed,
	}
	d.persist(record, resp.Body)
	if record.Kind == model.AssetCSS && !record.Failed() {
		d.enqueueStylesheetRefs(resp, rawURL)
	}
	d.sink.AddAsset(record)
}

// Wait blocks until all accepted downloads have completed.
func (d *Downloader) Wait() {
	d.group.Wait() //nolint:errcheck // download tasks never return errors
}

// Seen reports whether the URL has already been claimed in the asset
// keyspace. Fetch workers consult it before admitting a URL as a page, so
// a document first referenced as an asset (an iframe source, say) and
// later linked from an anchor is never recorded twice.
func (d *Downloader) Seen(rawURL string) bool {
	key := model.VisitedKey(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.seen[key]
	return ok
}

// claim marks a URL as seen in the asset keyspace, returning false if it
// was already claimed.
func (d *Downloader) claim(rawURL string) bool {
	key := model.VisitedKey(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// download runs the fetch-retry loop for one asset and always hands a
// record to the sink, success or failure.
func (d *Downloader) download(ref model.AssetRef) {
	record := &model.AssetRecord{URL: ref.URL, Kind: ref.Kind}
	defer d.sink.AddAsset(record)

	for attempt := 0; ; attempt++ {
		resp, err := d.fetchOnce(ref.URL)
		if err != nil {
			kind := model.ClassifyFetchError(err)
			if d.ctx.Err() == nil && kind.Retryable() && attempt < d.retryLimit {
				if fetch.Sleep(d.ctx, d.backoff.Delay(attempt)) == nil {
					continue
				}
			}
			record.Error = kind
			d.logger.Debug("asset download failed",
				slog.String("url", ref.URL), slog.String("error_kind", string(kind)))
			return
		}

		record.StatusCode = resp.StatusCode
		record.Elapsed = resp.Elapsed

		if kind := model.ClassifyStatus(resp.StatusCode); kind != model.ErrorKindNone {
			if d.statusRetryable(resp.StatusCode) && attempt < d.retryLimit {
				delay := d.backoff.Delay(attempt)
				if resp.StatusCode == http.StatusTooManyRequests {
					delay *= 4
				}
				if fetch.Sleep(d.ctx, delay) == nil {
					continue
				}
			}
			record.Error = kind
			d.logger.Debug("asset download failed",
				slog.String("url", ref.URL), slog.Int("status", resp.StatusCode))
			return
		}

		if kind := model.ClassifyAsset(resp.ContentType, ref.URL); kind != model.AssetOther || ref.Kind == "" {
			record.Kind = kind
		}
		d.persist(record, resp.Body)
		if record.Kind == model.AssetCSS && !record.Failed() {
			d.enqueueStylesheetRefs(resp, ref.URL)
		}
		return
	}
}

// cssURLPattern matches url(...) values in stylesheet bodies, with
// optional quoting and whitespace around the reference.
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

// enqueueStylesheetRefs schedules the sub-resources a stylesheet pulls in
// through url(...) values. Fonts and background images referenced this way
// never appear in the HTML, so the mirror would silently miss them without
// a pass over the CSS body. Discovered URLs go through the normal dedup
// path, so stylesheets importing each other cannot loop.
func (d *Downloader) enqueueStylesheetRefs(resp *fetch.Response, cssURL string) {
	baseURL := resp.FinalURL
	if baseURL == "" {
		baseURL = cssURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return
	}

	for _, match := range cssURLPattern.FindAllSubmatch(resp.Body, -1) {
		ref := strings.TrimSpace(string(match[1]))
		if ref == "" {
			continue
		}
		u, err := base.Parse(ref)
		if err != nil {
			continue
		}
		// Drops data: URIs and other non-fetchable schemes.
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		u.Fragment = ""
		abs := u.String()
		d.Enqueue(model.AssetRef{URL: abs, Kind: model.ClassifyAsset("", abs)})
	}
}

// statusRetryable mirrors the page retry policy: 5xx is retried, and 429
// gets a longer delay. Other 4xx statuses are definitive.
func (d *Downloader) statusRetryable(status int) bool {
	return model.StatusRetryable(status) || status == http.StatusTooManyRequests
}

// fetchOnce performs one bounded request under the shared network ceiling.
func (d *Downloader) fetchOnce(rawURL string) (*fetch.Response, error) {
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	reqCtx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	return d.fetcher.Fetch(reqCtx, rawURL)
}

// persist writes the body to the mirror and fills in the record's size,
// checksum, local path, and EXIF note.
func (d *Downloader) persist(record *model.AssetRecord, body []byte) {
	record.ByteSize = int64(len(body))
	record.Checksum = model.Checksum(body)

	path, err := d.store.WriteAsset(record.URL, record.Kind, body)
	if err != nil {
		record.Error = model.ErrorKindWrite
		d.logger.Warn("asset write failed",
			slog.String("url", record.URL), slog.String("error", err.Error()))
		return
	}
	record.LocalPath = path

	if d.inspectImages && record.Kind == model.AssetImage && inspect.CanCarryEXIF(record.URL) {
		record.ExifNote = inspect.EXIFNote(body)
	}
}

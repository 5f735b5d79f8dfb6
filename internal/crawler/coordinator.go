package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/download"
	"github.com/nao1215/webmirror/internal/fetch"
	"github.com/nao1215/webmirror/internal/mirror"
	"github.com/nao1215/webmirror/internal/model"
	"github.com/nao1215/webmirror/internal/robots"
)

// Coordinator errors.
var (
	// ErrCrawlAlreadyRun is returned when Run is called twice; a
	// Coordinator drives exactly one crawl.
	ErrCrawlAlreadyRun = errors.New("crawler: coordinator has already run")

	// ErrSeedRejected is returned when the start URL fails the frontier's
	// admission filters, typically an ignore pattern matching the seed.
	ErrSeedRejected = errors.New("crawler: start URL rejected by admission filters")
)

// State is the coordinator lifecycle phase.
type State int32

// Coordinator states. Transitions are one-way: Idle to Running, Running to
// Draining or Cancelling, and either of those to Terminated.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateCancelling
	StateTerminated
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCancelling:
		return "cancelling"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Coordinator owns a whole crawl: it seeds the frontier, runs the worker
// pool, enforces the page and depth bounds, and produces the final report.
// A Coordinator is single-use.
type Coordinator struct {
	cfg        *config.Config
	logger     *slog.Logger
	fetcher    *fetch.Fetcher
	renderer   fetch.Renderer
	policy     robots.Policy
	store      *mirror.Store
	frontier   *Frontier
	aggregator *Aggregator
	pacer      *Pacer
	downloader *download.Downloader
	sem        *semaphore.Weighted
	backoff    fetch.Backoff
	rate       *rateLedger

	state  atomic.Int32
	pageMu sync.Mutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithFetcher replaces the HTTP fetcher. Tests use this to point the
// crawl at an httptest server without going through proxy setup.
func WithFetcher(f *fetch.Fetcher) CoordinatorOption {
	return func(c *Coordinator) {
		c.fetcher = f
	}
}

// WithRenderer sets the rendering fallback for script-only pages.
func WithRenderer(r fetch.Renderer) CoordinatorOption {
	return func(c *Coordinator) {
		c.renderer = r
	}
}

// WithRobotsPolicy replaces the robots.txt policy.
func WithRobotsPolicy(p robots.Policy) CoordinatorOption {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// NewCoordinator validates the configuration, prepares the output
// directories, and assembles the crawl engine. The output root must be
// creatable and writable; failing that is a fatal precondition error.
func NewCoordinator(cfg *config.Config, opts ...CoordinatorOption) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		logger:  slog.Default(),
		backoff: fetch.NewBackoff(cfg.RetryBaseDelay, 30*time.Second),
		rate:    newRateLedger(cfg.RateLimitCeiling),
		sem:     semaphore.NewWeighted(int64(cfg.NetworkCeiling())),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.fetcher == nil {
		client, err := fetch.NewHTTPClient(cfg.ProxyAddress)
		if err != nil {
			return nil, err
		}
		fetchOpts := []fetch.FetcherOption{
			fetch.WithUserAgent(cfg.UserAgent),
			fetch.WithMaxBodySize(cfg.MaxBodySize),
		}
		if cfg.SiteConfigs != nil {
			fetchOpts = append(fetchOpts, fetch.WithSessionProvider(fetch.NewConfigSessionProvider(cfg.SiteConfigs)))
		}
		c.fetcher = fetch.NewFetcher(client, fetchOpts...)

		if cfg.RespectRobots && c.policy == nil {
			c.policy = robots.NewAgent(client, cfg.UserAgent)
		}
	}
	if c.policy == nil {
		c.policy = robots.AllowAll{}
	}
	if c.renderer == nil && cfg.RenderFallback {
		c.renderer = fetch.NewChromedpRenderer(
			fetch.WithRenderUserAgent(cfg.UserAgent),
			fetch.WithRenderTimeout(cfg.Timeout),
		)
	}

	store, err := mirror.NewStore(cfg.OutputDir, cfg.ContentAddressed)
	if err != nil {
		return nil, err
	}
	c.store = store

	site := config.SiteConfig{}
	delayOverrides := make(map[string]time.Duration)
	if cfg.SiteConfigs != nil {
		site = cfg.SiteConfigs.GetSiteConfig(cfg.StartHost())
		for host, sc := range cfg.SiteConfigs.Sites {
			if sc.DelayMS > 0 {
				delayOverrides[host] = time.Duration(sc.DelayMS) * time.Millisecond
			}
		}
	}

	maxDepth := cfg.MaxDepth
	if site.Depth > 0 {
		maxDepth = site.Depth
	}

	frontierOpts := []FrontierOption{
		WithMaxDepth(maxDepth),
		WithIgnorePatterns(site.IgnorePatterns),
		WithFollowPatterns(site.FollowPatterns),
	}
	if cfg.SameDomainOnly {
		frontierOpts = append(frontierOpts, WithSameDomainOnly(cfg.StartHost()))
	}
	c.frontier = NewFrontier(frontierOpts...)
	c.pacer = NewPacer(cfg.RequestDelay, delayOverrides)
	c.aggregator = NewAggregator(cfg.StartURL)

	return c, nil
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Events returns the progress event stream for the crawl.
func (c *Coordinator) Events() <-chan Event {
	return c.aggregator.Events()
}

// Run executes the crawl to completion and returns the final report.
// It terminates when the frontier drains, the page cap is reached, the
// context is cancelled, or the configured overall deadline expires. All
// in-flight work is settled before Run returns; the report always
// reflects a consistent final state.
func (c *Coordinator) Run(ctx context.Context) (*model.CrawlReport, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrCrawlAlreadyRun
	}

	if c.cfg.CrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CrawlTimeout)
		defer cancel()
	}
	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.downloader = download.NewDownloader(crawlCtx, c.fetcher, c.store, c.sem, c.aggregator,
		download.WithRetryLimit(c.cfg.RetryLimit),
		download.WithBackoff(c.backoff),
		download.WithTimeout(c.cfg.Timeout),
		download.WithImageInspection(c.cfg.InspectImages),
		download.WithPageVisited(c.frontier.Visited),
		download.WithLogger(c.logger),
	)

	if !c.frontier.Push(model.CrawlTask{URL: c.cfg.StartURL, Depth: 0}) {
		c.state.Store(int32(StateTerminated))
		return nil, ErrSeedRejected
	}

	// Cancellation watcher: flips the state and unblocks every worker.
	go func() {
		<-crawlCtx.Done()
		if c.transition(StateRunning, StateCancelling) || c.transition(StateDraining, StateCancelling) {
			c.frontier.Close()
		}
	}()

	c.logger.Info("crawl started",
		slog.String("start_url", c.cfg.StartURL),
		slog.Int("workers", c.cfg.WorkerCount),
		slog.Int("max_pages", c.cfg.MaxPages),
		slog.Int("max_depth", c.cfg.MaxDepth))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runWorker(crawlCtx)
		}()
	}
	wg.Wait()

	// Workers are gone; let in-flight asset downloads finish unless we
	// are cancelling, in which case their context is already dead.
	c.transition(StateRunning, StateDraining)
	c.downloader.Wait()

	cancelled := c.State() == StateCancelling || ctx.Err() != nil
	c.state.Store(int32(StateTerminated))

	report := c.aggregator.Report(cancelled)
	c.logger.Info("crawl finished",
		slog.Int("pages_succeeded", report.PagesSucceeded),
		slog.Int("pages_attempted", report.PagesAttempted),
		slog.Int("assets_succeeded", report.AssetsSucceeded),
		slog.Int64("total_bytes", report.TotalBytes),
		slog.Bool("cancelled", report.Cancelled))
	return report, nil
}

func (c *Coordinator) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// recordPage hands one page outcome to the aggregator, enforcing the page
// cap exactly. The cap check and the success count update happen under one
// lock, so concurrent workers can never push the success count past the
// cap. A successful result arriving after the cap is reached is discarded
// entirely and recordPage returns false.
func (c *Coordinator) recordPage(page *model.PageResult) bool {
	c.pageMu.Lock()

	if page.Failed() {
		c.aggregator.AddPage(page)
		c.pageMu.Unlock()
		return true
	}

	if c.cfg.MaxPages > 0 && c.aggregator.PagesSucceeded() >= c.cfg.MaxPages {
		c.pageMu.Unlock()
		c.frontier.Close()
		return false
	}
	c.aggregator.AddPage(page)
	reached := c.cfg.MaxPages > 0 && c.aggregator.PagesSucceeded() >= c.cfg.MaxPages
	c.pageMu.Unlock()

	if reached {
		c.transition(StateRunning, StateDraining)
		c.frontier.Close()
	}
	return true
}

package crawler

import (
	"sync"
	"time"

	"github.com/nao1215/webmirror/internal/model"
)

// EventKind identifies the type of a progress event.
type EventKind string

// Progress event kinds emitted while the crawl is running.
const (
	EventPage  EventKind = "page"
	EventAsset EventKind = "asset"
)

// Event is a single progress notification. Consumers that fall behind
// lose events rather than slowing the crawl down.
type Event struct {
	Kind            EventKind
	URL             string
	Err             model.ErrorKind
	PagesSucceeded  int
	AssetsSucceeded int
}

// Aggregator accumulates page and asset outcomes into a CrawlReport.
// All methods are safe for concurrent use; results are handed over by
// ownership transfer and never mutated afterward.
type Aggregator struct {
	mu      sync.Mutex
	started time.Time
	report  model.CrawlReport
	frozen  bool
	events  chan Event
}

// NewAggregator creates an aggregator for a crawl starting now.
func NewAggregator(startURL string) *Aggregator {
	return &Aggregator{
		started: time.Now(),
		report: model.CrawlReport{
			StartURL: startURL,
			Pages:    make([]*model.PageResult, 0),
			Assets:   make([]*model.AssetRecord, 0),
		},
		events: make(chan Event, 64),
	}
}

// Events returns the progress event stream. Events are dropped, not
// queued, when the channel is full.
func (a *Aggregator) Events() <-chan Event {
	return a.events
}

// AddPage records one page outcome, success or failure.
func (a *Aggregator) AddPage(page *model.PageResult) {
	page.ElapsedMS = page.Elapsed.Milliseconds()

	a.mu.Lock()
	if a.frozen {
		a.mu.Unlock()
		return
	}
	a.report.PagesAttempted++
	if !page.Failed() {
		a.report.PagesSucceeded++
		a.report.TotalBytes += page.ByteSize
	}
	a.report.Pages = append(a.report.Pages, page)
	a.publishLocked(Event{
		Kind:            EventPage,
		URL:             page.URL,
		Err:             page.Error,
		PagesSucceeded:  a.report.PagesSucceeded,
		AssetsSucceeded: a.report.AssetsSucceeded,
	})
	a.mu.Unlock()
}

// AddAsset records one asset outcome, success or failure.
func (a *Aggregator) AddAsset(asset *model.AssetRecord) {
	asset.ElapsedMS = asset.Elapsed.Milliseconds()

	a.mu.Lock()
	if a.frozen {
		a.mu.Unlock()
		return
	}
	a.report.AssetsAttempted++
	if !asset.Failed() {
		a.report.AssetsSucceeded++
		a.report.TotalBytes += asset.ByteSize
	}
	a.report.Assets = append(a.report.Assets, asset)
	a.publishLocked(Event{
		Kind:            EventAsset,
		URL:             asset.URL,
		Err:             asset.Error,
		PagesSucceeded:  a.report.PagesSucceeded,
		AssetsSucceeded: a.report.AssetsSucceeded,
	})
	a.mu.Unlock()
}

// PagesSucceeded returns the current count of successfully fetched pages.
func (a *Aggregator) PagesSucceeded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report.PagesSucceeded
}

// Report freezes the aggregator and returns the final report. Results
// arriving after the freeze are discarded.
func (a *Aggregator) Report(cancelled bool) *model.CrawlReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.frozen {
		a.frozen = true
		a.report.Cancelled = cancelled
		a.report.CompletedAt = time.Now()
		a.report.Duration = a.report.CompletedAt.Sub(a.started)
		a.report.DurationSeconds = a.report.Duration.Seconds()
		close(a.events)
	}

	report := a.report
	return &report
}

// publishLocked sends an event without blocking. Callers hold a.mu, which
// serializes sends against the close in Report.
func (a *Aggregator) publishLocked(ev Event) {
	select {
	case a.events <- ev:
	default:
	}
}

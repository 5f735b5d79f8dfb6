package model

import (
	"time"
)

// CrawlReport is the aggregate result of a whole crawl. It is built
// incrementally by the Aggregator and frozen once the crawl terminates.
//
// Design decision: The JSON field names below are a stable contract consumed
// by the reporting/export layer and must not change between releases.
type CrawlReport struct {
	// StartURL is the seed address the crawl began from.
	StartURL string `json:"start_url"`

	// PagesAttempted counts pages whose fetch outcome was recorded,
	// successes and failures alike.
	PagesAttempted int `json:"pages_attempted"`

	// PagesSucceeded counts successfully fetched pages. Never exceeds
	// the configured page cap.
	PagesSucceeded int `json:"pages_succeeded"`

	// AssetsAttempted counts asset downloads whose outcome was recorded.
	AssetsAttempted int `json:"assets_attempted"`

	// AssetsSucceeded counts successfully downloaded assets.
	AssetsSucceeded int `json:"assets_succeeded"`

	// TotalBytes is the sum of all page and asset body sizes.
	TotalBytes int64 `json:"total_bytes"`

	// Duration is the wall-clock time of the crawl.
	Duration time.Duration `json:"-"`

	// DurationSeconds mirrors Duration for stable JSON output.
	DurationSeconds float64 `json:"duration_seconds"`

	// Pages holds every recorded page outcome, in completion order.
	Pages []*PageResult `json:"pages"`

	// Assets holds every recorded asset outcome, in completion order.
	Assets []*AssetRecord `json:"assets"`

	// Cancelled indicates the crawl was stopped by cancellation or the
	// overall deadline rather than finishing naturally.
	Cancelled bool `json:"cancelled,omitempty"`

	// CompletedAt is when the crawl terminated.
	CompletedAt time.Time `json:"completed_at"`
}

// FailedPages returns the pages that ended in an error.
func (r *CrawlReport) FailedPages() []*PageResult {
	failed := make([]*PageResult, 0)
	for _, p := range r.Pages {
		if p.Failed() {
			failed = append(failed, p)
		}
	}
	return failed
}

// FailedAssets returns the assets that ended in an error.
func (r *CrawlReport) FailedAssets() []*AssetRecord {
	failed := make([]*AssetRecord, 0)
	for _, a := range r.Assets {
		if a.Failed() {
			failed = append(failed, a)
		}
	}
	return failed
}

package model

import (
	"net/url"
	"strings"
)

// CrawlTask is a unit of pending crawl work handed to fetch workers.
// Tasks are immutable once created; the Frontier owns their lifecycle.
type CrawlTask struct {
	// URL is the normalized absolute address to fetch.
	URL string

	// Depth is the number of link hops from the start URL.
	// The seed task has depth 0.
	Depth int

	// DiscoveredFrom is the URL of the page that linked to this task.
	// Empty for the seed task.
	DiscoveredFrom string
}

// VisitedKey normalizes a URL into the uniqueness key used by the visited
// set and the asset dedup set.
//
// Design decision: We normalize URLs because:
//  1. Same page can have different URL representations
//  2. Fragment (#anchor) doesn't change content
//  3. Empty path and "/" are equivalent for the root page
//
// Query strings are preserved: /search?q=a and /search?q=b are different
// pages. On a parse failure the raw string is returned so that even broken
// URLs still dedupe against themselves.
func VisitedKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// Host returns the lowercased host (including any non-default port) of the
// task's URL, or an empty string if the URL cannot be parsed.
func (t CrawlTask) Host() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// Package crawler implements the concurrent crawl engine: a deduplicating
// URL frontier, a pool of fetch workers with per-host pacing and retry, a
// pure HTML link/asset extractor, and the coordinator that wires them
// together and enforces the crawl bounds.
package crawler

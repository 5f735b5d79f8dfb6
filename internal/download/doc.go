// Package download fetches the sub-resources referenced by mirrored pages
// (stylesheets, scripts, images, fonts) with crawl-wide deduplication,
// bounded concurrency shared with the page fetchers, and the same retry
// policy pages get.
package download

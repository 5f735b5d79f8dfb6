// Package model defines the core data structures used throughout WebMirror.
//
// This package contains the following main types:
//   - CrawlTask: A unit of pending crawl work (URL, depth, origin)
//   - PageResult: The outcome of fetching and extracting one page
//   - AssetRecord: The outcome of downloading one referenced asset
//   - CrawlReport: The aggregate result of a whole crawl
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (crawler, download, report, database) need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model

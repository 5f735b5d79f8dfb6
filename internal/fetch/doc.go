// Package fetch provides HTTP fetching for the crawl engine.
//
// It builds the shared HTTP client (with optional SOCKS5 proxying for
// mirrors that go through Tor), performs individual GET fetches with
// compressed-body decoding and size caps, and defines the two capability
// interfaces injected into the worker pool: SessionProvider, which supplies
// per-host authentication headers, and Renderer, which produces rendered
// HTML for JavaScript-dependent pages.
package fetch

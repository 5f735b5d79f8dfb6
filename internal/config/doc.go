// Package config provides configuration structures and utilities for
// WebMirror. It defines the crawl bounds, worker pool sizing, politeness
// settings, output options, and the per-site YAML configuration file used
// to attach cookies and headers to authenticated crawls.
package config

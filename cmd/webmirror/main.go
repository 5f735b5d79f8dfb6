// Package main provides the entry point for the WebMirror CLI.
//
// WebMirror crawls a website starting from a seed URL and writes a local
// mirror of its pages and assets, recording each crawl in a history
// database for later comparison.
//
// Usage:
//
//	webmirror mirror <url>
//	webmirror history <url>
//	webmirror compare <url>
//
// See --help for all available options.
package main

// main is the entry point for WebMirror.
func main() {
	Execute()
}

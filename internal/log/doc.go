// Package log provides secure logging utilities for WebMirror.
//
// Authenticated crawls attach session cookies and authorization headers to
// outgoing requests, and those values must never end up in log output. The
// SecureHandler wraps any slog.Handler and masks attribute values whose key
// or shape indicates sensitive material before the record is written.
package log

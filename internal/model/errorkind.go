package model

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
)

// ErrorKind classifies a per-resource failure so that callers can decide on
// follow-up action. The zero value means "no error".
//
// Design decision: We use a string type rather than an int enum because the
// kind is serialized into reports and the database; a stable, readable wire
// form matters more than comparison speed here.
type ErrorKind string

// Error kinds recorded on PageResult and AssetRecord.
const (
	// ErrorKindNone means the resource was processed successfully.
	ErrorKindNone ErrorKind = ""

	// ErrorKindNetwork covers connection refused/reset and DNS failures.
	// Retryable.
	ErrorKindNetwork ErrorKind = "network_error"

	// ErrorKindTimeout covers request deadline expiry. Retryable.
	ErrorKindTimeout ErrorKind = "timeout_error"

	// ErrorKindRateLimited is HTTP 429. Retryable with longer backoff,
	// bounded by a per-host ceiling.
	ErrorKindRateLimited ErrorKind = "rate_limited"

	// ErrorKindHTTP covers other 4xx/5xx statuses. 5xx is retried a
	// limited number of times, 4xx is not retried.
	ErrorKindHTTP ErrorKind = "http_error"

	// ErrorKindParse means the content was malformed. Non-fatal:
	// extraction continues best-effort.
	ErrorKindParse ErrorKind = "parse_error"

	// ErrorKindWrite means the local filesystem write failed. Fatal to
	// the individual resource only.
	ErrorKindWrite ErrorKind = "write_error"
)

// Retryable reports whether a failure of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindTimeout, ErrorKindRateLimited:
		return true
	default:
		return false
	}
}

// ClassifyFetchError maps a transport-level error from an HTTP fetch to an
// ErrorKind. It never returns ErrorKindNone for a non-nil error.
func ClassifyFetchError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}

	// Deadline expiry can surface either as context.DeadlineExceeded or
	// as a net.Error with Timeout() set, depending on where it fired.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	return ErrorKindNetwork
}

// ClassifyStatus maps a non-success HTTP status code to an ErrorKind.
// Success statuses (2xx) return ErrorKindNone.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return ErrorKindNone
	case status == http.StatusTooManyRequests:
		return ErrorKindRateLimited
	default:
		return ErrorKindHTTP
	}
}

// StatusRetryable reports whether an HTTP error status may be retried.
// Only 5xx statuses qualify; 4xx (other than 429, which has its own
// requeue path) is a definitive answer from the server.
func StatusRetryable(status int) bool {
	return status >= 500 && status < 600
}

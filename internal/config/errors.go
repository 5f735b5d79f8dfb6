package config

import "errors"

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoStartURL is returned when no start URL is specified.
	ErrNoStartURL = errors.New("no start URL specified")

	// ErrInvalidStartURL is returned when the start URL is not an
	// absolute http or https address.
	ErrInvalidStartURL = errors.New("invalid start URL: must be absolute http or https")

	// ErrInvalidWorkerCount is returned when the worker count is outside 1-50.
	ErrInvalidWorkerCount = errors.New("invalid worker count: must be between 1 and 50")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRequestDelay is returned when the per-host delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidRequestDelay = errors.New("invalid request delay: must be non-negative")

	// ErrInvalidBounds is returned when max pages or max depth is negative.
	// Use 0 for unlimited.
	ErrInvalidBounds = errors.New("invalid bounds: max pages and max depth must be non-negative")

	// ErrInvalidRetryLimit is returned when the retry limit is negative.
	ErrInvalidRetryLimit = errors.New("invalid retry limit: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to apply the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)

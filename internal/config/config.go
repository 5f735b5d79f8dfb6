package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. These match the original WebMirror defaults
// where applicable and are tuned for polite crawling of ordinary websites.
const (
	// DefaultWorkerCount of 5 balances throughput with politeness.
	// Most sites tolerate five concurrent connections without noticing.
	DefaultWorkerCount = 5

	// MaxWorkerCount is the hard upper bound on concurrent workers.
	// More than 50 concurrent fetches against one site stops being a
	// mirror and starts being a load test.
	MaxWorkerCount = 50

	// DefaultTimeout is the per-request deadline. 30 seconds covers slow
	// servers without letting a single stuck connection stall a worker
	// for minutes.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxDepth of 0 means unlimited: crawl everything reachable
	// within the domain and page bounds.
	DefaultMaxDepth = 0

	// DefaultMaxPages of 0 means unlimited pages. The same-domain
	// restriction is the practical bound for most crawls.
	DefaultMaxPages = 0

	// DefaultRequestDelay is the per-host politeness delay between
	// requests. 100ms keeps the crawl fast while spacing out hits to a
	// single origin.
	DefaultRequestDelay = 100 * time.Millisecond

	// DefaultRetryLimit is the number of retries for transient failures
	// (timeouts, connection errors, 5xx) before recording a failure.
	DefaultRetryLimit = 3

	// DefaultRetryBaseDelay is the first retry backoff interval; it
	// doubles on each subsequent attempt.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultRateLimitCeiling is the per-host cumulative backoff budget
	// for HTTP 429 responses. Once a host has cost us this much waiting,
	// further rate-limited tasks are recorded as failed.
	DefaultRateLimitCeiling = 2 * time.Minute

	// DefaultMaxBodySize limits the response body size to read.
	// 10MB covers HTML pages and typical assets while preventing memory
	// exhaustion from unexpectedly large responses.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultOutputDir is the output root when none is specified.
	DefaultOutputDir = "website_mirror"

	// DefaultUserAgent identifies WebMirror in HTTP requests.
	// A descriptive User-Agent is good practice and lets operators
	// identify mirror traffic in their logs.
	DefaultUserAgent = "WebMirror/1.0 (+https://github.com/nao1215/webmirror)"

	// AppName is the application name used for XDG directory paths.
	AppName = "webmirror"
)

// Config holds all options for one crawl. It is populated from CLI flags
// and the optional config file, validated once, and treated as read-only
// for the duration of the crawl.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., BoundsConfig, PoliteConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant
// benefit.
type Config struct {
	// StartURL is the seed address. Must be absolute http or https.
	StartURL string

	// OutputDir is the output root. Pages are written under
	// OutputDir/pages and assets under OutputDir/assets.
	OutputDir string

	// MaxPages limits the total number of successfully crawled pages.
	// 0 means unlimited.
	MaxPages int

	// MaxDepth limits link hops from the start URL. 0 means unlimited.
	MaxDepth int

	// SameDomainOnly restricts the crawl to the start URL's host.
	SameDomainOnly bool

	// IncludeAssets enables downloading of referenced CSS, JavaScript,
	// images, and fonts alongside pages.
	IncludeAssets bool

	// WorkerCount is the number of concurrent fetch workers (1-50).
	WorkerCount int

	// MaxConcurrentRequests bounds total in-flight network operations
	// across page fetches and asset downloads. 0 means WorkerCount.
	MaxConcurrentRequests int

	// RequestDelay is the minimum interval between requests to the same
	// host. Workers hitting different hosts are not penalized by each
	// other's pacing.
	RequestDelay time.Duration

	// Timeout is the per-request deadline.
	Timeout time.Duration

	// CrawlTimeout is an optional wall-clock deadline for the whole
	// crawl. 0 means no overall deadline.
	CrawlTimeout time.Duration

	// RetryLimit is the number of retries for transient failures.
	RetryLimit int

	// RetryBaseDelay is the initial retry backoff; doubles per attempt.
	RetryBaseDelay time.Duration

	// RateLimitCeiling is the per-host cumulative 429 backoff budget.
	RateLimitCeiling time.Duration

	// MaxBodySize limits the response body size in bytes to read.
	MaxBodySize int64

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// ContentAddressed stores assets under a hash-derived path instead
	// of mirroring the URL path. Useful when mirroring sites with very
	// long or hostile URL paths.
	ContentAddressed bool

	// RespectRobots enables the robots.txt check point. Disallowed URLs
	// are skipped without being fetched.
	RespectRobots bool

	// InspectImages enables EXIF inspection of mirrored JPEG/TIFF
	// images, recording a privacy note on assets that carry GPS
	// positions or camera identifiers.
	InspectImages bool

	// RenderFallback enables the headless-browser rendering fallback
	// for pages whose plain fetch yields a near-empty, script-heavy
	// body.
	RenderFallback bool

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	// Required when mirroring .onion services through Tor.
	ProxyAddress string

	// ConfigFilePath is the path to the configuration file. If empty,
	// the tool searches for .webmirror in the current directory and
	// then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds per-site settings loaded from the config file.
	SiteConfigs *File

	// DBDir is the directory for the crawl history database. When set,
	// finished crawls are saved for the history and compare commands.
	DBDir string

	// SaveToDB indicates whether to save crawl results to the database.
	SaveToDB bool

	// JSONReport enables JSON report output instead of the
	// human-readable summary. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to this path instead of stdout.
	ReportFile string

	// Verbose enables slog.LevelDebug output.
	Verbose bool
}

// NewConfig creates a Config with default values. All fields are set to
// safe, sensible defaults; users override specific values after creation.
func NewConfig() *Config {
	return &Config{
		OutputDir:        DefaultOutputDir,
		MaxPages:         DefaultMaxPages,
		MaxDepth:         DefaultMaxDepth,
		SameDomainOnly:   true,
		IncludeAssets:    true,
		WorkerCount:      DefaultWorkerCount,
		RequestDelay:     DefaultRequestDelay,
		Timeout:          DefaultTimeout,
		RetryLimit:       DefaultRetryLimit,
		RetryBaseDelay:   DefaultRetryBaseDelay,
		RateLimitCeiling: DefaultRateLimitCeiling,
		MaxBodySize:      DefaultMaxBodySize,
		UserAgent:        DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for WebMirror.
// On Linux: ~/.local/share/webmirror
// On macOS: ~/Library/Application Support/webmirror
// On Windows: %LOCALAPPDATA%\webmirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for WebMirror.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns a specific
// error describing the first problem found.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawling begins.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return ErrNoStartURL
	}
	u, err := url.Parse(c.StartURL)
	if err != nil || u.Host == "" {
		return ErrInvalidStartURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidStartURL
	}

	if c.WorkerCount < 1 || c.WorkerCount > MaxWorkerCount {
		return ErrInvalidWorkerCount
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RequestDelay < 0 {
		return ErrInvalidRequestDelay
	}

	if c.MaxPages < 0 || c.MaxDepth < 0 {
		return ErrInvalidBounds
	}

	if c.RetryLimit < 0 {
		return ErrInvalidRetryLimit
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// StartHost returns the lowercased host of the start URL. Validate must
// have succeeded before calling this.
func (c *Config) StartHost() string {
	u, err := url.Parse(c.StartURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// NetworkCeiling returns the effective bound on concurrent network
// operations shared by page fetches and asset downloads.
func (c *Config) NetworkCeiling() int {
	if c.MaxConcurrentRequests > 0 {
		return c.MaxConcurrentRequests
	}
	return c.WorkerCount
}

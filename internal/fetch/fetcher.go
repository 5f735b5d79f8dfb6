package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Response is the outcome of a single successful HTTP exchange. "Successful"
// here means a response arrived; the status code may still be an error.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the media type portion of the Content-Type header,
	// lowercased, without parameters.
	ContentType string

	// Body is the (decompressed, size-capped) response body.
	Body []byte

	// Header contains all response headers.
	Header http.Header

	// FinalURL is the URL after following redirects.
	FinalURL string

	// Elapsed is how long the exchange took.
	Elapsed time.Duration
}

// IsHTML reports whether the response body is an HTML document.
func (r *Response) IsHTML() bool {
	return r.ContentType == "text/html" || r.ContentType == "application/xhtml+xml"
}

// Fetcher performs GET fetches with the crawl's standard request headers,
// per-host session headers, compressed-body decoding, and a body size cap.
// It is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	sessions    SessionProvider
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize caps the number of body bytes read per response.
// Larger bodies are truncated, not failed: a truncated page still yields
// links and a mirror file, which beats losing it entirely.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithSessionProvider attaches per-host authentication headers to requests.
func WithSessionProvider(p SessionProvider) FetcherOption {
	return func(f *Fetcher) {
		f.sessions = p
	}
}

// NewFetcher creates a Fetcher on top of the given HTTP client.
//
// Design decision: We require an external client because proxy
// configuration is handled by NewHTTPClient, and tests can substitute a
// client wired to an httptest server.
func NewFetcher(client *http.Client, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:      client,
		userAgent:   "WebMirror/1.0",
		maxBodySize: 10 * 1024 * 1024,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch performs a single GET of the URL, honoring the context deadline.
// The returned error is transport-level only; HTTP error statuses are
// reported through Response.StatusCode.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	if f.sessions != nil {
		for k, v := range f.sessions.HeadersFor(req.URL.Host) {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // Read errors surface via readBody

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		Body:        body,
		Header:      resp.Header,
		FinalURL:    finalURL,
		Elapsed:     time.Since(start),
	}, nil
}

// readBody decodes the response body according to Content-Encoding and
// applies the size cap.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close() //nolint:errcheck // Close error is irrelevant after full read
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close() //nolint:errcheck // Close error is irrelevant after full read
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// mediaType strips parameters and whitespace from a Content-Type header.
func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

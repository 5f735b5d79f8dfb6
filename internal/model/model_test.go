package model

import (
	"errors"
	"net/http"
	"testing"
)

// timeoutErr implements net.Error for classification tests.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestVisitedKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips fragment",
			in:   "http://example.com/page#section",
			want: "http://example.com/page",
		},
		{
			name: "lowercases scheme and host",
			in:   "HTTP://Example.COM/Page",
			want: "http://example.com/Page",
		},
		{
			name: "empty path becomes root",
			in:   "http://example.com",
			want: "http://example.com/",
		},
		{
			name: "query is preserved",
			in:   "http://example.com/search?q=Mixed",
			want: "http://example.com/search?q=Mixed",
		},
		{
			name: "path case is preserved",
			in:   "http://example.com/CaseSensitive",
			want: "http://example.com/CaseSensitive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := VisitedKey(tt.in); got != tt.want {
				t.Errorf("VisitedKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVisitedKeyCollapsesFragmentVariants(t *testing.T) {
	t.Parallel()

	a := VisitedKey("http://example.com/page#top")
	b := VisitedKey("http://example.com/page#bottom")
	if a != b {
		t.Errorf("fragment variants should collapse: %q vs %q", a, b)
	}
}

func TestClassifyFetchError(t *testing.T) {
	t.Parallel()

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		if got := ClassifyFetchError(nil); got != ErrorKindNone {
			t.Errorf("expected no error kind, got %v", got)
		}
	})

	t.Run("timeout via net.Error", func(t *testing.T) {
		t.Parallel()
		if got := ClassifyFetchError(timeoutErr{}); got != ErrorKindTimeout {
			t.Errorf("expected timeout, got %v", got)
		}
	})

	t.Run("connection failure", func(t *testing.T) {
		t.Parallel()
		if got := ClassifyFetchError(errors.New("connection refused")); got != ErrorKindNetwork {
			t.Errorf("expected network, got %v", got)
		}
	})
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusOK, ErrorKindNone},
		{http.StatusNoContent, ErrorKindNone},
		{http.StatusTooManyRequests, ErrorKindRateLimited},
		{http.StatusNotFound, ErrorKindHTTP},
		{http.StatusInternalServerError, ErrorKindHTTP},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusRetryable(t *testing.T) {
	t.Parallel()

	if StatusRetryable(http.StatusNotFound) {
		t.Error("404 must not be retryable")
	}
	if !StatusRetryable(http.StatusBadGateway) {
		t.Error("502 should be retryable")
	}
}

func TestErrorKindRetryable(t *testing.T) {
	t.Parallel()

	retryable := []ErrorKind{ErrorKindNetwork, ErrorKindTimeout, ErrorKindRateLimited}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%v should be retryable", k)
		}
	}
	for _, k := range []ErrorKind{ErrorKindNone, ErrorKindHTTP, ErrorKindParse, ErrorKindWrite} {
		if k.Retryable() {
			t.Errorf("%v should not be retryable", k)
		}
	}
}

func TestClassifyAsset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		url         string
		want        AssetKind
	}{
		{"css by content type", "text/css; charset=utf-8", "http://a/x", AssetCSS},
		{"css by extension", "", "http://a/style.css", AssetCSS},
		{"js by content type", "application/javascript", "http://a/x", AssetJavaScript},
		{"js by extension with query", "application/octet-stream", "http://a/app.js?v=2", AssetJavaScript},
		{"image by content type", "image/png", "http://a/x", AssetImage},
		{"font by extension", "", "http://a/font.woff2", AssetFont},
		{"html", "text/html", "http://a/x", AssetHTML},
		{"unknown", "application/octet-stream", "http://a/blob.bin", AssetOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyAsset(tt.contentType, tt.url); got != tt.want {
				t.Errorf("ClassifyAsset(%q, %q) = %v, want %v", tt.contentType, tt.url, got, tt.want)
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	if got := Checksum(nil); got != "" {
		t.Errorf("empty body should have empty checksum, got %q", got)
	}

	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	if a == "" || a != b {
		t.Errorf("checksum should be deterministic and non-empty: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestReportFailedFilters(t *testing.T) {
	t.Parallel()

	report := &CrawlReport{
		Pages: []*PageResult{
			{URL: "http://a/ok"},
			{URL: "http://a/bad", Error: ErrorKindHTTP},
		},
		Assets: []*AssetRecord{
			{URL: "http://a/s.css"},
			{URL: "http://a/x.js", Error: ErrorKindTimeout},
		},
	}

	if got := report.FailedPages(); len(got) != 1 || got[0].URL != "http://a/bad" {
		t.Errorf("unexpected failed pages: %+v", got)
	}
	if got := report.FailedAssets(); len(got) != 1 || got[0].URL != "http://a/x.js" {
		t.Errorf("unexpected failed assets: %+v", got)
	}
}

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// PageResult is the outcome of fetching one page and extracting its content.
// Workers create PageResults and hand them to the Aggregator by ownership
// transfer; no other component retains them afterward.
type PageResult struct {
	// URL is the normalized absolute address of the page.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Depth is the number of link hops from the start URL.
	Depth int `json:"depth"`

	// Title is the page title from the <title> tag, when present.
	Title string `json:"title,omitempty"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type,omitempty"`

	// Elapsed is how long the fetch took.
	Elapsed time.Duration `json:"-"`

	// ElapsedMS mirrors Elapsed in milliseconds for stable JSON output.
	ElapsedMS int64 `json:"elapsed_ms"`

	// Links is the ordered, in-page-deduplicated sequence of absolute
	// outbound link URLs extracted from the page.
	Links []string `json:"extracted_links,omitempty"`

	// Assets is the ordered, in-page-deduplicated sequence of absolute
	// asset references extracted from the page.
	Assets []AssetRef `json:"extracted_assets,omitempty"`

	// ByteSize is the size of the response body in bytes.
	ByteSize int64 `json:"byte_size"`

	// LocalPath is where the page was written under the output root.
	// Empty when the fetch or write failed.
	LocalPath string `json:"local_path,omitempty"`

	// Checksum is the hex SHA-256 of the raw body.
	Checksum string `json:"checksum,omitempty"`

	// Partial indicates the HTML was malformed and extraction ran
	// best-effort; whatever links and assets were recoverable are present.
	Partial bool `json:"partial,omitempty"`

	// Rendered indicates the body came from the rendering fallback
	// rather than the plain HTTP fetch.
	Rendered bool `json:"rendered,omitempty"`

	// Error classifies the failure, if any.
	Error ErrorKind `json:"error,omitempty"`
}

// AssetRef is an asset reference discovered on a page: the resolved absolute
// URL plus the kind inferred from the referencing tag.
type AssetRef struct {
	URL  string    `json:"url"`
	Kind AssetKind `json:"kind"`
}

// Failed reports whether the page fetch ended in an error.
func (p *PageResult) Failed() bool {
	return p.Error != ErrorKindNone
}

// Checksum computes the hex SHA-256 of a response body. Used for change
// detection when comparing crawl sessions.
func Checksum(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

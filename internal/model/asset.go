package model

import (
	"strings"
	"time"
)

// AssetKind classifies a non-HTML resource referenced by a page.
type AssetKind string

// Recognized asset kinds. Anything that doesn't match a known content type
// or file extension is AssetOther.
const (
	AssetHTML       AssetKind = "html"
	AssetCSS        AssetKind = "css"
	AssetJavaScript AssetKind = "javascript"
	AssetImage      AssetKind = "image"
	AssetFont       AssetKind = "font"
	AssetOther      AssetKind = "other"
)

// ClassifyAsset determines the asset kind from the Content-Type header and,
// when the header is missing or generic, from the URL's file extension.
//
// Design decision: Content-Type wins over the extension because servers are
// authoritative about what they returned; the extension is only a fallback
// for servers that send application/octet-stream or nothing at all.
func ClassifyAsset(contentType, rawURL string) AssetKind {
	ct := strings.ToLower(contentType)
	lower := strings.ToLower(rawURL)
	// Strip any query string before checking extensions.
	if i := strings.IndexByte(lower, '?'); i >= 0 {
		lower = lower[:i]
	}

	switch {
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"):
		return AssetHTML
	case strings.Contains(ct, "text/css"), strings.HasSuffix(lower, ".css"):
		return AssetCSS
	case strings.Contains(ct, "javascript"),
		strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".mjs"):
		return AssetJavaScript
	case strings.HasPrefix(ct, "image/"),
		hasAnySuffix(lower, ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico"):
		return AssetImage
	case strings.HasPrefix(ct, "font/"), strings.Contains(ct, "application/font"),
		hasAnySuffix(lower, ".woff", ".woff2", ".ttf", ".otf", ".eot"):
		return AssetFont
	default:
		return AssetOther
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// AssetRecord is the outcome of downloading a single referenced asset.
// Each distinct asset URL is downloaded at most once per crawl.
type AssetRecord struct {
	// URL is the absolute address of the asset.
	URL string `json:"url"`

	// Kind classifies the asset (css, javascript, image, font, ...).
	Kind AssetKind `json:"kind"`

	// StatusCode is the HTTP response status, zero when the request
	// never produced a response.
	StatusCode int `json:"status_code,omitempty"`

	// ByteSize is the size of the downloaded body in bytes.
	ByteSize int64 `json:"byte_size"`

	// LocalPath is where the asset was written under the output root.
	// Empty when the download failed.
	LocalPath string `json:"local_path,omitempty"`

	// Checksum is the hex SHA-256 of the downloaded bytes.
	Checksum string `json:"checksum,omitempty"`

	// Elapsed is how long the download took.
	Elapsed time.Duration `json:"-"`

	// ElapsedMS mirrors Elapsed in milliseconds for stable JSON output.
	ElapsedMS int64 `json:"elapsed_ms"`

	// Error classifies the failure, if any.
	Error ErrorKind `json:"error,omitempty"`

	// ExifNote is a short privacy note when a mirrored image carries
	// EXIF metadata worth knowing about (GPS position, camera serial).
	// Empty for non-images and clean images.
	ExifNote string `json:"exif_note,omitempty"`
}

// Failed reports whether the asset download ended in an error.
func (a *AssetRecord) Failed() bool {
	return a.Error != ErrorKindNone
}

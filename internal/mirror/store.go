package mirror

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/webmirror/internal/model"
)

// Subdirectories of the output root.
const (
	pagesDir  = "pages"
	assetsDir = "assets"
)

// maxSegmentLen caps a single path segment. Longer segments are truncated
// and suffixed with a short digest so they stay unique.
const maxSegmentLen = 120

// unsafeChars matches characters that are stripped from path segments.
// Windows forbids several of these outright; the rest just make shell
// handling of the mirror miserable.
var unsafeChars = regexp.MustCompile(`[<>:"\\|?*\x00-\x1f]`)

// Store writes mirrored resources under an output root.
// It is safe for concurrent use: the path-claim map guarantees that two
// URLs never race for the same file.
type Store struct {
	root             string
	contentAddressed bool

	mu      sync.Mutex
	claimed map[string]bool
}

// NewStore creates the output root (and its pages/ and assets/ subtrees)
// and verifies it is writable. An unwritable root is a fatal precondition:
// the caller should abort the crawl before any network work begins.
func NewStore(root string, contentAddressed bool) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, pagesDir), filepath.Join(root, assetsDir)} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	// Check writability up front rather than discovering it on the
	// first result, after network work has already been spent.
	check := filepath.Join(root, ".webmirror-write-check")
	if err := os.WriteFile(check, nil, 0600); err != nil {
		return nil, fmt.Errorf("output root is not writable: %w", err)
	}
	_ = os.Remove(check)

	return &Store{
		root:             root,
		contentAddressed: contentAddressed,
		claimed:          make(map[string]bool),
	}, nil
}

// Root returns the output root directory.
func (s *Store) Root() string {
	return s.root
}

// WritePage writes a fetched page body and returns the path it was written
// to, relative to the output root.
func (s *Store) WritePage(rawURL string, body []byte) (string, error) {
	rel := filepath.Join(pagesDir, urlPath(rawURL, ".html"))
	return s.write(rel, body)
}

// WriteAsset writes a downloaded asset body and returns the path it was
// written to, relative to the output root. In content-addressed mode the
// path is derived from a BLAKE2b digest of the body instead of the URL.
func (s *Store) WriteAsset(rawURL string, kind model.AssetKind, body []byte) (string, error) {
	var rel string
	if s.contentAddressed {
		sum := blake2b.Sum256(body)
		digest := hex.EncodeToString(sum[:])
		rel = filepath.Join(assetsDir, digest[:2], digest+extensionFor(rawURL, kind))
	} else {
		rel = filepath.Join(assetsDir, urlPath(rawURL, extensionFor(rawURL, kind)))
	}
	return s.write(rel, body)
}

// write claims a unique relative path, creates parent directories, and
// writes the body. Claiming happens under the mutex so concurrent writers
// for colliding paths each get their own file.
func (s *Store) write(rel string, body []byte) (string, error) {
	rel = s.claim(rel)

	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, body, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return rel, nil
}

// claim reserves a path, appending _1, _2, ... before the extension until
// an unclaimed one is found. Existing files on disk count as claimed so a
// crawl into a non-empty root never overwrites earlier output.
func (s *Store) claim(rel string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := rel
	for n := 1; ; n++ {
		if !s.claimed[candidate] && !fileExists(filepath.Join(s.root, candidate)) {
			s.claimed[candidate] = true
			return candidate
		}
		ext := filepath.Ext(rel)
		candidate = strings.TrimSuffix(rel, ext) + fmt.Sprintf("_%d", n) + ext
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// urlPath maps a URL to a relative file path: host/path, with index.html
// appended for directory URLs and the query folded into the filename.
func urlPath(rawURL, defaultExt string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Broken URLs still deserve a stable home.
		sum := blake2b.Sum256([]byte(rawURL))
		return "malformed_" + hex.EncodeToString(sum[:8]) + defaultExt
	}

	p := u.EscapedPath()
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	cleaned := make([]string, 0, len(segments)+1)
	cleaned = append(cleaned, sanitizeSegment(strings.ToLower(u.Host)))
	for _, seg := range segments {
		seg = sanitizeSegment(seg)
		if seg == "" {
			continue
		}
		cleaned = append(cleaned, seg)
	}

	rel := path.Join(cleaned...)

	// Fold the query into the filename so /page?a=1 and /page?a=2 map
	// to different files.
	if u.RawQuery != "" {
		ext := path.Ext(rel)
		rel = strings.TrimSuffix(rel, ext) + "_" + sanitizeSegment(u.RawQuery) + ext
	}

	if path.Ext(rel) == "" {
		rel += defaultExt
	}

	return filepath.FromSlash(rel)
}

// sanitizeSegment makes one path segment safe: traversal tokens and
// unsafe characters are removed, overlong segments are truncated with a
// short digest suffix to stay unique.
func sanitizeSegment(seg string) string {
	if seg == "." || seg == ".." {
		return ""
	}
	seg = unsafeChars.ReplaceAllString(seg, "_")
	if len(seg) > maxSegmentLen {
		sum := blake2b.Sum256([]byte(seg))
		seg = seg[:maxSegmentLen] + "_" + hex.EncodeToString(sum[:4])
	}
	return seg
}

// extensionFor picks a file extension for an asset: the URL's own
// extension wins, then a kind-based default.
func extensionFor(rawURL string, kind model.AssetKind) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if ext := path.Ext(u.EscapedPath()); ext != "" && len(ext) <= 8 {
			return ext
		}
	}

	switch kind {
	case model.AssetCSS:
		return ".css"
	case model.AssetJavaScript:
		return ".js"
	case model.AssetImage:
		return ".img"
	case model.AssetFont:
		return ".font"
	case model.AssetHTML:
		return ".html"
	default:
		return ".bin"
	}
}

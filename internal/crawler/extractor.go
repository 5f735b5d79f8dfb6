package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/webmirror/internal/model"
)

// ExtractResult holds everything the extractor pulls out of one HTML page.
type ExtractResult struct {
	// Title is the text of the first <title> element, or empty.
	Title string
	// Links are absolute page URLs found in anchor elements, fragment
	// stripped, deduplicated within the page, in document order.
	Links []string
	// Assets are sub-resource references (stylesheets, scripts, images,
	// fonts), deduplicated within the page, in document order.
	Assets []model.AssetRef
	// Partial is true when the document could not be fully parsed and
	// the result covers only the portion parsed before the failure.
	Partial bool
	// LikelyJSDependent is true when the page looks like an empty
	// client-side rendered shell: scripts present but almost no text
	// and no links.
	LikelyJSDependent bool
}

// Extract parses an HTML document and returns the links and asset
// references it contains, resolved against the page URL. It is a pure
// function of its inputs: no network access, no shared state.
//
// Relative URLs are resolved against pageURL (honoring a <base href>
// element when present), fragments are dropped, and references with a
// scheme other than http or https are discarded. Malformed markup is
// handled best effort and reported through ExtractResult.Partial rather
// than as an error.
func Extract(body []byte, contentType, pageURL string) (*ExtractResult, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}

	result := &ExtractResult{}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		reader = bytes.NewReader(body)
		result.Partial = true
	}

	doc, err := html.Parse(reader)
	if err != nil {
		result.Partial = true
		return result, nil
	}

	ex := &extraction{
		base:      base,
		result:    result,
		seenLinks: make(map[string]struct{}),
		seenRefs:  make(map[string]struct{}),
	}
	ex.walk(doc)

	result.LikelyJSDependent = ex.scriptCount > 0 &&
		len(result.Links) == 0 &&
		ex.textBytes < jsShellTextThreshold

	return result, nil
}

// jsShellTextThreshold is the visible-text size below which a page with
// scripts and no links is considered a client-side rendered shell.
const jsShellTextThreshold = 100

type extraction struct {
	base        *url.URL
	result      *ExtractResult
	seenLinks   map[string]struct{}
	seenRefs    map[string]struct{}
	scriptCount int
	textBytes   int
	inTitle     bool
	inScript    bool
	titleDone   bool
}

func (ex *extraction) walk(n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		ex.element(n)
	case html.TextNode:
		if ex.inTitle && !ex.titleDone {
			ex.result.Title = strings.TrimSpace(n.Data)
			ex.titleDone = true
		}
		if !ex.inScript {
			ex.textBytes += len(strings.TrimSpace(n.Data))
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ex.walk(c)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			ex.inTitle = false
		case "script", "style":
			ex.inScript = false
		}
	}
}

func (ex *extraction) element(n *html.Node) {
	switch n.Data {
	case "base":
		if href := attr(n, "href"); href != "" {
			if u, err := ex.base.Parse(href); err == nil {
				ex.base = u
			}
		}
	case "title":
		ex.inTitle = true
	case "a", "area":
		ex.addLink(attr(n, "href"))
	case "link":
		ex.linkElement(n)
	case "script":
		ex.scriptCount++
		ex.inScript = true
		ex.addAsset(attr(n, "src"), model.AssetJavaScript)
	case "style":
		ex.inScript = true
	case "img":
		ex.addAsset(attr(n, "src"), model.AssetImage)
		ex.addSrcset(attr(n, "srcset"))
	case "source":
		ex.addAsset(attr(n, "src"), model.AssetImage)
		ex.addSrcset(attr(n, "srcset"))
	case "iframe", "embed":
		ex.addAsset(attr(n, "src"), model.AssetHTML)
	case "object":
		ex.addAsset(attr(n, "data"), model.AssetOther)
	case "audio", "video", "track":
		ex.addAsset(attr(n, "src"), model.AssetOther)
	}
}

// linkElement maps <link> rel values to asset kinds. Unknown rel values
// are ignored rather than guessed at.
func (ex *extraction) linkElement(n *html.Node) {
	href := attr(n, "href")
	if href == "" {
		return
	}
	switch strings.ToLower(attr(n, "rel")) {
	case "stylesheet":
		ex.addAsset(href, model.AssetCSS)
	case "icon", "shortcut icon", "apple-touch-icon", "apple-touch-icon-precomposed":
		ex.addAsset(href, model.AssetImage)
	case "preload", "prefetch":
		switch strings.ToLower(attr(n, "as")) {
		case "font":
			ex.addAsset(href, model.AssetFont)
		case "style":
			ex.addAsset(href, model.AssetCSS)
		case "script":
			ex.addAsset(href, model.AssetJavaScript)
		case "image":
			ex.addAsset(href, model.AssetImage)
			ex.addSrcset(attr(n, "imagesrcset"))
		}
	}
}

// addSrcset extracts the candidate URLs from a srcset attribute value.
// Each comma-separated candidate is a URL optionally followed by a width
// or density descriptor.
func (ex *extraction) addSrcset(value string) {
	for _, candidate := range strings.Split(value, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		ex.addAsset(fields[0], model.AssetImage)
	}
}

func (ex *extraction) addLink(href string) {
	abs, ok := ex.resolve(href)
	if !ok {
		return
	}
	if _, seen := ex.seenLinks[abs]; seen {
		return
	}
	ex.seenLinks[abs] = struct{}{}
	ex.result.Links = append(ex.result.Links, abs)
}

func (ex *extraction) addAsset(ref string, kind model.AssetKind) {
	abs, ok := ex.resolve(ref)
	if !ok {
		return
	}
	if _, seen := ex.seenRefs[abs]; seen {
		return
	}
	ex.seenRefs[abs] = struct{}{}
	ex.result.Assets = append(ex.result.Assets, model.AssetRef{URL: abs, Kind: kind})
}

// resolve turns a raw reference into an absolute fragment-free URL, or
// reports false for empty, malformed, or non-http(s) references.
func (ex *extraction) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := ex.base.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

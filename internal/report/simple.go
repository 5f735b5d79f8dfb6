package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/webmirror/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose lists every crawled page, not just failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output listing every page and asset.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeFailures(&sb, report)
	w.writePrivacyNotes(&sb, report)
	if w.verbose {
		w.writePages(&sb, report)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         WEBMIRROR REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Start URL:      %s\n", report.StartURL))
	sb.WriteString(fmt.Sprintf("Completed:      %s\n", report.CompletedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:       %.1fs\n", report.DurationSeconds))

	if report.Cancelled {
		sb.WriteString("Status:         CANCELLED (partial results)\n")
	} else {
		sb.WriteString("Status:         Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the crawl counters section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Pages:   %d succeeded / %d attempted\n", report.PagesSucceeded, report.PagesAttempted))
	sb.WriteString(fmt.Sprintf("  Assets:  %d succeeded / %d attempted\n", report.AssetsSucceeded, report.AssetsAttempted))
	sb.WriteString(fmt.Sprintf("  Data:    %s\n", FormatBytes(report.TotalBytes)))
	sb.WriteString("\n")
}

// writeFailures lists the pages and assets that ended in an error.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.CrawlReport) {
	failedPages := report.FailedPages()
	failedAssets := report.FailedAssets()

	if len(failedPages) == 0 && len(failedAssets) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILURES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(failedPages) == 0 && len(failedAssets) == 0 {
		sb.WriteString("  No failures\n\n")
		return
	}

	for _, page := range failedPages {
		sb.WriteString(fmt.Sprintf("  [page]  %s (%s", page.URL, page.Error))
		if page.StatusCode != 0 {
			sb.WriteString(fmt.Sprintf(", HTTP %d", page.StatusCode))
		}
		sb.WriteString(")\n")
	}
	for _, asset := range failedAssets {
		sb.WriteString(fmt.Sprintf("  [asset] %s (%s", asset.URL, asset.Error))
		if asset.StatusCode != 0 {
			sb.WriteString(fmt.Sprintf(", HTTP %d", asset.StatusCode))
		}
		sb.WriteString(")\n")
	}
	sb.WriteString("\n")
}

// writePrivacyNotes lists mirrored images that carry sensitive EXIF data.
func (w *SimpleWriter) writePrivacyNotes(sb *strings.Builder, report *model.CrawlReport) {
	var flagged []*model.AssetRecord
	for _, asset := range report.Assets {
		if asset.ExifNote != "" {
			flagged = append(flagged, asset)
		}
	}
	if len(flagged) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("IMAGE PRIVACY NOTES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, asset := range flagged {
		sb.WriteString(fmt.Sprintf("  [!] %s\n      %s\n", asset.URL, asset.ExifNote))
	}
	sb.WriteString("\n")
}

// writePages lists every crawled page with status and size.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, page := range report.Pages {
		marker := "+"
		if page.Failed() {
			marker = "x"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %d %s (depth %d, %s)\n",
			marker, page.StatusCode, page.URL, page.Depth, FormatBytes(page.ByteSize)))
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by WebMirror\n")
	sb.WriteString("https://github.com/nao1215/webmirror\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

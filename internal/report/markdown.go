package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/webmirror/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeAssetBreakdown(md, report)
	w.writeFailures(md, report)
	w.writePrivacyNotes(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("WebMirror Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + report.StartURL + "`"},
			{"Completed", report.CompletedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", fmt.Sprintf("%.1fs", report.DurationSeconds)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.CrawlReport) string {
	if report.Cancelled {
		return "⚠️ Cancelled (partial results)"
	}
	return "✅ Complete"
}

// writeSummary writes the crawl counters section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Crawl Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Succeeded", "Attempted"},
		Rows: [][]string{
			{"Pages", strconv.Itoa(report.PagesSucceeded), strconv.Itoa(report.PagesAttempted)},
			{"Assets", strconv.Itoa(report.AssetsSucceeded), strconv.Itoa(report.AssetsAttempted)},
			{"Data", FormatBytes(report.TotalBytes), "-"},
		},
	})
	md.PlainText("")

	w.writeAlert(md, report)
}

// writeAlert writes an appropriate alert based on the failure counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	failed := len(report.FailedPages()) + len(report.FailedAssets())
	switch {
	case report.Cancelled:
		md.Warningf("The crawl was cancelled before finishing; the mirror is incomplete.")
	case failed > 0:
		md.Importantf("%d resource(s) could not be mirrored. See the failures section.", failed)
	default:
		md.Tip("Every discovered resource was mirrored successfully.")
	}
	md.PlainText("")
}

// writeAssetBreakdown writes a pie chart of downloaded asset kinds.
func (w *MarkdownWriter) writeAssetBreakdown(md *markdown.Markdown, report *model.CrawlReport) {
	counts := make(map[model.AssetKind]int)
	for _, asset := range report.Assets {
		if !asset.Failed() {
			counts[asset.Kind]++
		}
	}
	if len(counts) == 0 {
		return
	}

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Mirrored Asset Kinds"),
		piechart.WithShowData(true),
	)
	for _, kind := range kinds {
		chart.LabelAndIntValue(kind, uint64(counts[model.AssetKind(kind)])) //nolint:gosec // counts are small positives
	}

	md.H2("Asset Breakdown")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFailures writes a table of resources that ended in an error.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.CrawlReport) {
	failedPages := report.FailedPages()
	failedAssets := report.FailedAssets()

	md.H2("Failures")
	md.PlainText("")

	if len(failedPages) == 0 && len(failedAssets) == 0 {
		md.PlainText("No failures.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(failedPages)+len(failedAssets))
	for _, page := range failedPages {
		rows = append(rows, []string{"page", truncateString(page.URL, 60), string(page.Error), statusText(page.StatusCode)})
	}
	for _, asset := range failedAssets {
		rows = append(rows, []string{"asset", truncateString(asset.URL, 60), string(asset.Error), statusText(asset.StatusCode)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Type", "URL", "Error", "HTTP Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writePrivacyNotes writes the EXIF findings for mirrored images.
func (w *MarkdownWriter) writePrivacyNotes(md *markdown.Markdown, report *model.CrawlReport) {
	rows := make([][]string, 0)
	for _, asset := range report.Assets {
		if asset.ExifNote != "" {
			rows = append(rows, []string{truncateString(asset.URL, 60), asset.ExifNote})
		}
	}
	if len(rows) == 0 {
		return
	}

	md.H2("Image Privacy Notes")
	md.PlainText("")
	md.Cautionf("%d mirrored image(s) carry EXIF metadata that may identify people or places.", len(rows))
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Image", "Metadata"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [WebMirror](https://github.com/nao1215/webmirror)*")
}

func statusText(code int) string {
	if code == 0 {
		return "-"
	}
	return strconv.Itoa(code)
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

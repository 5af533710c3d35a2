package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pledge/internal/modules/weekly/domain"
	weeklyout "pledge/internal/modules/weekly/port/out"
	"pledge/internal/platform/markdown"
	"pledge/internal/platform/slug"
	"pledge/internal/platform/timefmt"
)

var reportBlock = markdown.Block{Name: "weekly"}

var bucketTitles = map[domain.Kind]string{
	domain.KindPromise:     "Promises",
	domain.KindTask:        "Tasks",
	domain.KindDistraction: "Distractions",
}

// MarkdownExporter writes a weekly note. Re-exporting the same week rewrites
// only the generated block and the report keys in the frontmatter, so notes
// written around the block survive.
type MarkdownExporter struct{}

var _ weeklyout.Exporter = MarkdownExporter{}

func NewMarkdownExporter() MarkdownExporter { return MarkdownExporter{} }

func (MarkdownExporter) Format() string { return "md" }

func (MarkdownExporter) Export(_ context.Context, report domain.WeekReport, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, reportFileName(report.Label, "md"))

	doc := markdown.Document{Meta: map[string]any{}, Body: fmt.Sprintf("# Weekly report %s\n", report.Label)}
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		doc, err = markdown.Parse(string(existing))
		if err != nil {
			return "", fmt.Errorf("parse existing report %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return "", fmt.Errorf("read existing report: %w", err)
	}

	totals := map[string]any{}
	for _, k := range domain.Kinds {
		view := report.Views.Get(k)
		if view == nil {
			continue
		}
		totals[string(k)] = map[string]any{
			"records":  len(view.Promises),
			"promised": view.TotalPromised,
			"spent":    view.TotalSpent,
		}
	}
	doc.Merge(map[string]any{
		"type":       "weekly_report",
		"week":       report.Label,
		"week_start": report.Report.WeekStart,
		"week_end":   report.Report.WeekEnd,
		"totals":     totals,
	})
	doc.Body = reportBlock.Replace(doc.Body, renderTables(report.Views))
	content, err := doc.Render()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func renderTables(views domain.Views) string {
	var b strings.Builder
	for i, k := range domain.Kinds {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", bucketTitles[k])
		view := views.Get(k)
		if view == nil {
			b.WriteString("_Nothing this week._\n")
			continue
		}
		b.WriteString("| Item | Promised | Spent |\n|---|---:|---:|\n")
		for _, id := range view.SortedIDs() {
			rec := view.Promises[id]
			fmt.Fprintf(&b, "| %s | %s | %s |\n", escapeCell(rec.Text), timefmt.Hours(rec.Promised()), timefmt.Hours(rec.Spent()))
		}
		fmt.Fprintf(&b, "| **Total** | %s | %s |\n", timefmt.Hours(view.TotalPromised), timefmt.Hours(view.TotalSpent))
	}
	return strings.TrimRight(b.String(), "\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func reportFileName(label, ext string) string {
	return slug.Make("weekly", label) + "." + ext
}

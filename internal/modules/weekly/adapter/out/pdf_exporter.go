package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"pledge/internal/modules/weekly/domain"
	weeklyout "pledge/internal/modules/weekly/port/out"
	"pledge/internal/platform/timefmt"
)

type PDFExporter struct{}

var _ weeklyout.Exporter = PDFExporter{}

func NewPDFExporter() PDFExporter { return PDFExporter{} }

func (PDFExporter) Format() string { return "pdf" }

func (PDFExporter) Export(_ context.Context, report domain.WeekReport, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, reportFileName(report.Label, "pdf"))

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Weekly report "+report.Label, true)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Weekly report "+report.Label)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("%s to %s", report.Report.WeekStart, report.Report.WeekEnd))
	pdf.Ln(12)

	for _, k := range domain.Kinds {
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 10, bucketTitles[k])
		pdf.Ln(9)
		view := report.Views.Get(k)
		if view == nil {
			pdf.SetFont("Arial", "I", 11)
			pdf.Cell(0, 8, "Nothing this week.")
			pdf.Ln(10)
			continue
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(110, 7, "Item", "B", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, "Promised", "B", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, "Spent", "B", 1, "R", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		for _, id := range view.SortedIDs() {
			rec := view.Promises[id]
			pdf.CellFormat(110, 7, tr(rec.Text), "", 0, "L", false, 0, "")
			pdf.CellFormat(35, 7, timefmt.Hours(rec.Promised()), "", 0, "R", false, 0, "")
			pdf.CellFormat(35, 7, timefmt.Hours(rec.Spent()), "", 1, "R", false, 0, "")
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(110, 7, "Total", "T", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, timefmt.Hours(view.TotalPromised), "T", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, timefmt.Hours(view.TotalSpent), "T", 1, "R", false, 0, "")
		pdf.Ln(6)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf report: %w", err)
	}
	return path, nil
}

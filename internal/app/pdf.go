package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// writeSummaryPDF renders the migration summary as a one-table PDF for
// reviewers who do not read JSON.
func writeSummaryPDF(s migrationSummary, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Migration summary", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Migration summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	model := s.Meta.Model
	if s.Meta.DryRun {
		model = "dry run (no optimizer)"
	}
	for _, line := range []string{
		"Run: " + s.Meta.RunID,
		"Generated: " + s.Meta.GeneratedAt.UTC().Format(time.RFC3339),
		"Optimizer: " + model,
		fmt.Sprintf("Sections: %d succeeded, %d failed, %d degraded", s.Totals.Succeeded, s.Totals.Failed, s.Totals.Degraded),
		fmt.Sprintf("Bytes: %d before, %d after", s.Totals.BytesBefore, s.Totals.BytesAfter),
	} {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{10, 60, 25, 25, 25, 45}
	header := []string{"#", "Section", "Status", "Before", "After", "Diagnostics"}
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, sec := range s.Sections {
		row := []string{
			fmt.Sprintf("%d", sec.Index),
			truncateCell(sec.ID, 34),
			sectionStatus(sec),
			fmt.Sprintf("%d", sec.BytesBefore),
			fmt.Sprintf("%d", sec.BytesAfter),
			diagnosticCounts(sec),
		}
		for i, c := range row {
			pdf.CellFormat(widths[i], 6, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.OutputFileAndClose(outPath)
}

func sectionStatus(s sectionSummary) string {
	switch {
	case !s.Succeeded:
		return "failed"
	case s.Degraded:
		return "degraded"
	}
	return "ok"
}

func diagnosticCounts(s sectionSummary) string {
	if len(s.Diagnostics) == 0 {
		return "-"
	}
	total := 0
	for _, n := range s.Diagnostics {
		total += n
	}
	return fmt.Sprintf("%d (%d kinds)", total, len(s.Diagnostics))
}

func truncateCell(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}

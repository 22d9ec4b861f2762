// Package report renders review analyses as PDF documents.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"vortex.app/relay/internal/model"
)

const ContentType = "application/pdf"

// Document is everything a report page shows.
type Document struct {
	Repo        string
	Subject     string // "pr#42" or "commit#abc"
	FileCount   int
	Model       string
	Analysis    json.RawMessage
	GeneratedAt time.Time
}

// Title is the heading of the first page.
func (d Document) Title() string {
	return "Analysis for " + d.Repo
}

// Render lays out the document on A4 pages. A structured analysis is rendered
// as summary plus findings; anything else is printed as indented JSON.
func Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Title(), true)
	pdf.SetCreator("vortex relay", true)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "BU", 20)
	pdf.MultiCell(0, 10, tr(doc.Title()), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	meta := []string{
		"Change: " + doc.Subject,
		fmt.Sprintf("Files reviewed: %d", doc.FileCount),
	}
	if doc.Model != "" {
		meta = append(meta, "Model: "+doc.Model)
	}
	if !doc.GeneratedAt.IsZero() {
		meta = append(meta, "Generated: "+doc.GeneratedAt.UTC().Format(time.RFC1123))
	}
	for _, line := range meta {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	pdf.Ln(4)

	if analysis, ok := structured(doc.Analysis); ok {
		renderAnalysis(pdf, tr, analysis)
	} else {
		pdf.SetFont("Courier", "", 9)
		pdf.MultiCell(0, 4.5, tr(indent(doc.Analysis)), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderAnalysis(pdf *fpdf.Fpdf, tr func(string) string, a model.ReviewAnalysis) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, "Summary", "", "L", false)
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, 6, tr(a.Summary), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, fmt.Sprintf("Findings (%d)", len(a.Findings)), "", "L", false)
	if len(a.Findings) == 0 {
		pdf.SetFont("Helvetica", "I", 12)
		pdf.MultiCell(0, 6, "No issues found.", "", "L", false)
		return
	}
	for i, f := range a.Findings {
		pdf.SetFont("Helvetica", "B", 11)
		heading := fmt.Sprintf("%d. [%s] %s", i+1, strings.ToUpper(orDefault(f.Severity, "info")), f.File)
		pdf.MultiCell(0, 6, tr(heading), "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 5.5, tr(f.Message), "", "L", false)
		if f.Suggestion != "" {
			pdf.SetFont("Helvetica", "I", 11)
			pdf.MultiCell(0, 5.5, tr("Suggestion: "+f.Suggestion), "", "L", false)
		}
		pdf.Ln(2)
	}
}

func structured(raw json.RawMessage) (model.ReviewAnalysis, bool) {
	var a model.ReviewAnalysis
	if err := json.Unmarshal(raw, &a); err != nil || a.Summary == "" {
		return model.ReviewAnalysis{}, false
	}
	return a, true
}

func indent(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

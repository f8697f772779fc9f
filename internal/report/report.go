// Package report renders adherence report data as a PDF document.
package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/gmsas95/medtrack/internal/adherence"
	"github.com/gmsas95/medtrack/internal/medication"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"

	pageMargin = 15.0
	lineHeight = 6.0
)

type rgb struct{ r, g, b int }

var (
	colorTaken  = rgb{46, 160, 67}
	colorMissed = rgb{218, 54, 51}
	colorEmpty  = rgb{200, 200, 200}
	colorHeader = rgb{33, 37, 41}
	colorMuted  = rgb{108, 117, 125}
	colorStripe = rgb{241, 243, 245}
)

const (
	DefaultTitle  = "Medication Adherence Report"
	DefaultFooter = "This report is generated from self-reported dose records. " +
		"It is not a clinical record and must not replace advice from a healthcare professional."
)

// Renderer turns ReportData into a PDF
type Renderer struct {
	title    string
	footer   string
	compress bool
}

// NewRenderer falls back to DefaultTitle and DefaultFooter for empty values;
// every report carries a disclaimer.
func NewRenderer(title, footer string) *Renderer {
	if title == "" {
		title = DefaultTitle
	}
	if footer == "" {
		footer = DefaultFooter
	}
	return &Renderer{title: title, footer: footer, compress: true}
}

// RenderBytes renders the report into memory
func (r *Renderer) RenderBytes(data *adherence.ReportData) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(data, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render writes the PDF to w. The document has a header, an adherence pie
// chart, a medications table, one detail block per medication and a
// disclaimer footer on every page.
func (r *Renderer) Render(data *adherence.ReportData, w io.Writer) error {
	if data == nil {
		return fmt.Errorf("report: no data to render")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle(r.title, true)
	pdf.SetCreator("medtrack", true)
	pdf.SetCreationDate(data.GeneratedAt)

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	footer := r.footer
	pdf.SetFooterFunc(func() {
		pdf.SetY(-20)
		setText(pdf, colorMuted)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(0, 4, tr(footer), "", "C", false)
		pdf.CellFormat(0, 4, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	r.header(pdf, tr, data)
	r.pieChart(pdf, data)
	r.medicationTable(pdf, tr, data)
	r.details(pdf, tr, data)

	if pdf.Err() {
		return fmt.Errorf("report: %w", pdf.Error())
	}
	return pdf.Output(w)
}

func setText(pdf *fpdf.Fpdf, c rgb) { pdf.SetTextColor(c.r, c.g, c.b) }
func setFill(pdf *fpdf.Fpdf, c rgb) { pdf.SetFillColor(c.r, c.g, c.b) }

func (r *Renderer) header(pdf *fpdf.Fpdf, tr func(string) string, data *adherence.ReportData) {
	setText(pdf, colorHeader)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(r.title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	setText(pdf, colorMuted)
	pdf.CellFormat(0, lineHeight, tr("Patient: "+data.UserID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, "Generated: "+data.GeneratedAt.Format(dateTimeLayout), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	setText(pdf, colorHeader)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, lineHeight+1,
		fmt.Sprintf("Overall adherence: %.1f%%  (%d taken, %d missed, %d recorded)",
			data.OverallRate, data.TakenDoses, data.MissedDoses, data.TotalDoses),
		"", 1, "L", false, 0, "")
	pdf.Ln(3)
}

// sector returns the polygon approximating a pie slice from start to end
// degrees, measured clockwise from 12 o'clock.
func sector(cx, cy, radius, start, end float64) []fpdf.PointType {
	pts := []fpdf.PointType{{X: cx, Y: cy}}
	const step = 2.0
	for a := start; ; a += step {
		if a > end {
			a = end
		}
		rad := (a - 90) * math.Pi / 180
		pts = append(pts, fpdf.PointType{X: cx + radius*math.Cos(rad), Y: cy + radius*math.Sin(rad)})
		if a >= end {
			break
		}
	}
	return pts
}

func (r *Renderer) slice(pdf *fpdf.Fpdf, cx, cy, radius, start, share float64, c rgb) float64 {
	if share <= 0 {
		return start
	}
	setFill(pdf, c)
	if share >= 100 {
		pdf.Circle(cx, cy, radius, "F")
		return start + 360
	}
	end := start + share*3.6
	pdf.Polygon(sector(cx, cy, radius, start, end), "F")
	return end
}

func (r *Renderer) pieChart(pdf *fpdf.Fpdf, data *adherence.ReportData) {
	const radius = 25.0
	top := pdf.GetY()
	cx := pageMargin + radius + 5
	cy := top + radius + 2

	if data.TotalDoses == 0 {
		setFill(pdf, colorEmpty)
		pdf.Circle(cx, cy, radius, "F")
	} else {
		angle := r.slice(pdf, cx, cy, radius, 0, data.TakenShare(), colorTaken)
		r.slice(pdf, cx, cy, radius, angle, data.MissedShare(), colorMissed)
	}

	legendX := cx + radius + 15
	pdf.SetFont("Helvetica", "", 10)
	setText(pdf, colorHeader)
	if data.TotalDoses == 0 {
		pdf.SetXY(legendX, cy-3)
		pdf.CellFormat(0, lineHeight, "No doses recorded yet", "", 0, "L", false, 0, "")
	} else {
		legend := []struct {
			label string
			share float64
			color rgb
		}{
			{"Taken", data.TakenShare(), colorTaken},
			{"Missed", data.MissedShare(), colorMissed},
		}
		for i, l := range legend {
			y := cy - 8 + float64(i)*10
			setFill(pdf, l.color)
			pdf.Rect(legendX, y+1, 4, 4, "F")
			pdf.SetXY(legendX+7, y)
			pdf.CellFormat(0, lineHeight, fmt.Sprintf("%s  %.1f%%", l.label, l.share), "", 0, "L", false, 0, "")
		}
	}

	pdf.SetXY(pageMargin, top+2*radius+8)
}

func formatEnd(end *time.Time) string {
	if end == nil {
		return "ongoing"
	}
	return end.Format(dateLayout)
}

func (r *Renderer) medicationTable(pdf *fpdf.Fpdf, tr func(string) string, data *adherence.ReportData) {
	pdf.SetFont("Helvetica", "B", 13)
	setText(pdf, colorHeader)
	pdf.CellFormat(0, 8, "Medications", "", 1, "L", false, 0, "")

	widths := []float64{50, 30, 40, 30, 30}
	headers := []string{"Name", "Dosage", "Frequency", "Start", "End"}

	pdf.SetFont("Helvetica", "B", 10)
	setFill(pdf, colorHeader)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, colorHeader)
	setFill(pdf, colorStripe)
	for i, m := range data.Medications {
		fill := i%2 == 1
		cells := []string{
			tr(m.Name),
			tr(m.Dosage),
			tr(m.Frequency),
			m.StartDate.Format(dateLayout),
			formatEnd(m.EndDate),
		}
		for j, c := range cells {
			pdf.CellFormat(widths[j], 6, truncate(pdf, c, widths[j]-2), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

// truncate shortens s with an ellipsis so it fits in width at the current font
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func (r *Renderer) details(pdf *fpdf.Fpdf, tr func(string) string, data *adherence.ReportData) {
	pdf.SetFont("Helvetica", "B", 13)
	setText(pdf, colorHeader)
	pdf.CellFormat(0, 8, "Details", "", 1, "L", false, 0, "")

	for _, m := range data.Medications {
		pdf.SetFont("Helvetica", "B", 11)
		setText(pdf, colorHeader)
		pdf.CellFormat(0, 7, tr(m.Name+" ("+m.Dosage+")"), "B", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, tr("Frequency: "+m.Frequency), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 5,
			fmt.Sprintf("Adherence: %.1f%%  (taken %d, missed %d)", m.Rate, m.Taken, m.Missed),
			"", 1, "L", false, 0, "")
		if m.Notes != nil && *m.Notes != "" {
			pdf.MultiCell(0, 5, tr("Notes: "+*m.Notes), "", "L", false)
		}

		if len(m.RecentHistory) == 0 {
			setText(pdf, colorMuted)
			pdf.CellFormat(0, 5, "No doses recorded.", "", 1, "L", false, 0, "")
		} else {
			pdf.CellFormat(0, 5, "Recent doses:", "", 1, "L", false, 0, "")
			for _, ev := range m.RecentHistory {
				pdf.SetX(pageMargin + 5)
				mark, c := "4", colorTaken // ZapfDingbats check mark
				if ev.Status != medication.DoseTaken {
					mark, c = "8", colorMissed // ZapfDingbats cross
				}
				setText(pdf, c)
				pdf.SetFont("ZapfDingbats", "", 9)
				pdf.CellFormat(5, 5, mark, "", 0, "L", false, 0, "")
				setText(pdf, colorHeader)
				pdf.SetFont("Helvetica", "", 9)
				pdf.CellFormat(0, 5, ev.Date.Format(dateTimeLayout)+"  "+string(ev.Status), "", 1, "L", false, 0, "")
			}
		}
		pdf.Ln(4)
	}
}

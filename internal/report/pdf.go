package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/dot11gate/internal/inspect"
)

// PDFOptions adjusts the rendered inspection report.
type PDFOptions struct {
	Lang        Language
	MaxRows     int
	MaxFindings int
	Now         func() time.Time
}

const (
	defaultMaxRows     = 25
	defaultMaxFindings = 200
	qrSizeMM           = 32
)

// SaveInspectionPDF renders rep into a PDF document at out. The capture digest
// is printed and embedded as a QR code.
func SaveInspectionPDF(rep inspect.Report, out string, opts PDFOptions) error {
	if opts.MaxRows <= 0 {
		opts.MaxRows = defaultMaxRows
	}
	if opts.MaxFindings <= 0 {
		opts.MaxFindings = defaultMaxFindings
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	tr := NewTranslator(opts.Lang)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(tr.T("title"), false)
	pdf.SetAuthor("dot11ctl", false)
	pdf.SetCreator("dot11ctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, tr, opts.Now())
	if err := addDigestQR(pdf, rep.Sha256); err != nil {
		return err
	}
	addSummarySection(pdf, tr, rep)
	addCountTable(pdf, tr, tr.T("kinds"), tr.T("kind"), rep.Kinds, opts.MaxRows)
	addCountTable(pdf, tr, tr.T("elements"), tr.T("element"), rep.Elements, opts.MaxRows)
	addRuleMatrixSection(pdf, tr, rep.RuleMatrix)
	addStationsSection(pdf, tr, rep.Stations, opts.MaxRows)
	addNetworksSection(pdf, tr, rep.Networks, opts.MaxRows)
	addFindingsSection(pdf, tr, rep.Findings, opts.MaxFindings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, tr Translator, now time.Time) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr.T("title"))
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 5, tr.Format("generated", now.UTC().Format(time.RFC3339)))
	pdf.Ln(8)
}

func addDigestQR(pdf *gofpdf.Fpdf, digest string) error {
	if digest == "" {
		return nil
	}
	png, err := DigestToQR(digest, 256)
	if err != nil {
		return fmt.Errorf("digest qr: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("digest-qr", pageW-right-qrSizeMM, 15, qrSizeMM, qrSizeMM, false, opts, 0, "")
	return nil
}

func addSummarySection(pdf *gofpdf.Fpdf, tr Translator, rep inspect.Report) {
	sectionHeader(pdf, tr.T("summary"))
	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: tr.T("input"), value: emptyFallback(rep.Input, "-")},
		{label: tr.T("format"), value: emptyFallback(rep.Format, "-")},
		{label: tr.T("sha256"), value: emptyFallback(rep.Sha256, "-")},
		{label: tr.T("frames"), value: strconv.Itoa(rep.Summary.Frames)},
		{label: tr.T("decoded"), value: strconv.Itoa(rep.Summary.Decoded)},
		{label: tr.T("malformed"), value: strconv.Itoa(rep.Summary.Malformed)},
		{label: tr.T("unrecognized"), value: strconv.Itoa(rep.Summary.Unrecognized)},
		{label: tr.T("diagnostics"), value: strconv.Itoa(rep.Summary.Diagnostics)},
		{label: tr.T("errors"), value: strconv.Itoa(rep.Summary.Errors)},
		{label: tr.T("warnings"), value: strconv.Itoa(rep.Summary.Warnings)},
		{label: tr.T("infos"), value: strconv.Itoa(rep.Summary.Infos)},
		{label: tr.T("overall"), value: passLabel(tr, rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 6, item.value, "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
	}
	pdf.Ln(4)
}

func addCountTable(pdf *gofpdf.Fpdf, tr Translator, title, column string, counts map[string]int, maxRows int) {
	sectionHeader(pdf, title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	widths := []float64{90, 30}
	tableHeader(pdf, widths, []string{column, tr.T("count")})
	for i, k := range keys {
		if i == maxRows {
			omitted(pdf, tr, len(keys)-maxRows)
			break
		}
		renderTableRow(pdf, widths, []string{k, strconv.Itoa(counts[k])}, 5)
	}
	pdf.Ln(4)
}

func addRuleMatrixSection(pdf *gofpdf.Fpdf, tr Translator, rows []inspect.RuleCount) {
	sectionHeader(pdf, tr.T("rule_matrix"))
	widths := []float64{70, 30, 30}
	tableHeader(pdf, widths, []string{tr.T("rule"), tr.T("severity"), tr.T("count")})
	for _, row := range rows {
		renderTableRow(pdf, widths, []string{row.RuleId, severityLabel(row.Severity), strconv.Itoa(row.Count)}, 5)
	}
	pdf.Ln(4)
}

func addStationsSection(pdf *gofpdf.Fpdf, tr Translator, rows []inspect.StationCount, maxRows int) {
	sectionHeader(pdf, tr.T("stations"))
	widths := []float64{45, 60, 30, 25}
	tableHeader(pdf, widths, []string{tr.T("station"), tr.T("name"), tr.T("role"), tr.T("frames")})
	for i, row := range rows {
		if i == maxRows {
			omitted(pdf, tr, len(rows)-maxRows)
			break
		}
		renderTableRow(pdf, widths, []string{row.MAC, row.Name, row.Role, strconv.Itoa(row.Frames)}, 5)
	}
	pdf.Ln(4)
}

func addNetworksSection(pdf *gofpdf.Fpdf, tr Translator, rows []inspect.NetworkSeen, maxRows int) {
	sectionHeader(pdf, tr.T("networks"))
	widths := []float64{60, 75, 25}
	tableHeader(pdf, widths, []string{tr.T("ssid"), tr.T("name"), tr.T("frames")})
	for i, row := range rows {
		if i == maxRows {
			omitted(pdf, tr, len(rows)-maxRows)
			break
		}
		renderTableRow(pdf, widths, []string{printable(row.SSID), row.Name, strconv.Itoa(row.Frames)}, 5)
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, tr Translator, findings []inspect.Diagnostic, max int) {
	sectionHeader(pdf, tr.T("findings"))
	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr.T("no_findings"), "", "L", false)
		return
	}
	for i, d := range findings {
		if i == max {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.MultiCell(0, 5, tr.Format("more_findings", len(findings)-max), "", "L", false)
			return
		}
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, printable(msg), "", "L", false)
		}
		if meta := findingMetadata(tr, d); meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}
		if len(d.Refs) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, tr.Format("refs", strings.Join(d.Refs, ", ")), "", "L", false)
		}
		pdf.Ln(2)
	}
}

func sectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
}

func tableHeader(pdf *gofpdf.Fpdf, widths []float64, headers []string) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
}

func omitted(pdf *gofpdf.Fpdf, tr Translator, n int) {
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, tr.Format("more_rows", n), "", "L", false)
	pdf.SetFont("Helvetica", "", 9)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if yStart+rowHeight > pageH-bottom {
		pdf.AddPage()
		xStart, yStart = pdf.GetX(), pdf.GetY()
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(tr Translator, pass bool) string {
	if pass {
		return tr.T("pass")
	}
	return tr.T("fail")
}

func severityLabel(sev inspect.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

// printable replaces bytes the core PDF fonts cannot show. SSIDs are
// arbitrary octets.
func printable(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			b.WriteRune('.')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func findingMetadata(tr Translator, d inspect.Diagnostic) string {
	parts := make([]string, 0, 4)
	if d.FrameIndex >= 0 {
		parts = append(parts, tr.Format("frame", d.FrameIndex))
	}
	if d.Kind != "" {
		parts = append(parts, d.Kind)
	}
	if d.Offset != "" {
		parts = append(parts, tr.Format("offset", d.Offset))
	}
	if d.TimestampUs != nil {
		parts = append(parts, time.UnixMicro(*d.TimestampUs).UTC().Format(time.RFC3339Nano))
	}
	return strings.Join(parts, " | ")
}

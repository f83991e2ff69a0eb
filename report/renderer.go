package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"

	"finsight-backend/models"
)

// Image is a pre-rendered chart carried into the report appendix
type Image struct {
	Filename string
	Base64   string
}

// Data aggregates everything the rendered report draws from
type Data struct {
	ConversationID string
	FileNames      []string
	Summary        string
	Metrics        *models.StructuredMetrics
	Anomalies      *models.AnomalyReport
	Images         []Image
}

var boldMarkPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)
var headerMarkPattern = regexp.MustCompile(`^#{1,6}\s+`)

// stripMarkdown flattens the markdown emphasis the model likes to emit
func stripMarkdown(text string) string {
	text = boldMarkPattern.ReplaceAllString(text, "$1")
	text = headerMarkPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Renderer produces the downloadable PDF report
type Renderer struct {
	log *zap.Logger
}

// NewRenderer creates a report renderer
func NewRenderer(log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{log: log}
}

// Render builds the report document. Section order is fixed: summary,
// risk assessment, recommendations, financial analysis.
func (r *Renderer) Render(data *Data) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)

	r.titlePage(pdf, data)
	r.summarySection(pdf, data.Summary)
	r.riskSection(pdf, data.Anomalies)
	r.recommendationsSection(pdf, data.Anomalies)
	r.financialSection(pdf, data)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) titlePage(pdf *fpdf.Fpdf, data *Data) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.Ln(40)
	pdf.CellFormat(0, 12, "Financial Analysis Report", "", 1, "C", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "CONFIDENTIAL", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, "Generated: "+time.Now().Format("January 2, 2006 15:04:05"), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, "Documents Analyzed: "+strings.Join(data.FileNames, ", "), "", 1, "C", false, 0, "")
}

func (r *Renderer) heading(pdf *fpdf.Fpdf, text string) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, text, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)
}

func (r *Renderer) subheading(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, text, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (r *Renderer) paragraph(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, stripMarkdown(text), "", "L", false)
	pdf.Ln(2)
}

func (r *Renderer) bullet(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetX(pdf.GetX() + 4)
	pdf.MultiCell(0, 6, "- "+stripMarkdown(text), "", "L", false)
}

func (r *Renderer) summarySection(pdf *fpdf.Fpdf, summary string) {
	r.heading(pdf, "1. Executive Summary")
	for _, line := range strings.Split(summary, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.paragraph(pdf, line)
	}
}

func (r *Renderer) riskSection(pdf *fpdf.Fpdf, anomalies *models.AnomalyReport) {
	r.heading(pdf, "2. Risk Assessment")
	if anomalies == nil {
		r.paragraph(pdf, "No anomaly analysis available.")
		return
	}

	r.subheading(pdf, "Risk Severity Distribution")
	dist := anomalies.AnalysisSummary.SeverityDistribution
	r.bullet(pdf, fmt.Sprintf("Critical Issues: %d", dist.Critical))
	r.bullet(pdf, fmt.Sprintf("High Severity Issues: %d", dist.High))
	r.bullet(pdf, fmt.Sprintf("Medium Severity Issues: %d", dist.Medium))
	r.bullet(pdf, fmt.Sprintf("Low Severity Issues: %d", dist.Low))
	pdf.Ln(4)

	if len(anomalies.Anomalies) == 0 {
		return
	}

	r.subheading(pdf, "Detailed Risk Findings")
	for _, a := range anomalies.Anomalies {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, fmt.Sprintf("%s RISK - %s Severity",
			strings.ToUpper(a.Type), strings.ToUpper(a.Severity)), "", "L", false)
		r.paragraph(pdf, "Description: "+a.Description)
		if len(a.Evidence.Excerpts) > 0 {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.MultiCell(0, 6, "Supporting Evidence:", "", "L", false)
			pdf.SetFont("Helvetica", "I", 10)
			for _, excerpt := range a.Evidence.Excerpts {
				pdf.SetX(pdf.GetX() + 6)
				pdf.MultiCell(0, 5, `"`+excerpt+`"`, "", "L", false)
			}
		}
		pdf.Ln(3)
	}
}

func (r *Renderer) recommendationsSection(pdf *fpdf.Fpdf, anomalies *models.AnomalyReport) {
	r.heading(pdf, "3. Strategic Recommendations")
	if anomalies == nil || len(anomalies.Anomalies) == 0 {
		r.paragraph(pdf, "No recommendations derived from this document set.")
		return
	}

	r.subheading(pdf, "High Priority Actions")
	for _, a := range anomalies.Anomalies {
		if a.Severity != "critical" {
			continue
		}
		r.bullet(pdf, fmt.Sprintf("Immediate Action Required: Address %s risk - %s", a.Type, a.Description))
	}
	pdf.Ln(4)

	r.subheading(pdf, "Additional Recommendations")
	for _, a := range anomalies.Anomalies {
		if a.Severity == "critical" {
			continue
		}
		r.bullet(pdf, fmt.Sprintf("%s Priority: %s", titleCase(a.Severity), a.Description))
	}
}

func (r *Renderer) financialSection(pdf *fpdf.Fpdf, data *Data) {
	r.heading(pdf, "4. Financial Analysis")

	if data.Metrics != nil && len(data.Metrics.FinancialMetrics) > 0 {
		r.subheading(pdf, "Extracted Financial Metrics")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(90, 7, "Entity", "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, "Value", "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, "Type", "1", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, m := range data.Metrics.FinancialMetrics {
			pdf.CellFormat(90, 7, m.Entity, "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 7, fmt.Sprintf("%d", m.Value), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 7, m.Type, "1", 1, "L", false, 0, "")
		}
		pdf.Ln(6)
	}

	for i, img := range data.Images {
		r.addImage(pdf, img, i+1)
	}
}

// addImage embeds one base64 chart. A bad payload is skipped so a single
// corrupt image cannot sink the whole report.
func (r *Renderer) addImage(pdf *fpdf.Fpdf, img Image, figure int) {
	decoded, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		r.log.Warn("skipping report image with invalid base64",
			zap.String("filename", img.Filename),
			zap.Error(err))
		return
	}

	name := fmt.Sprintf("figure-%d", figure)
	opts := fpdf.ImageOptions{ImageType: imageType(img.Filename), ReadDpi: true}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(decoded))
	if pdf.Err() {
		r.log.Warn("skipping undecodable report image",
			zap.String("filename", img.Filename),
			zap.String("error", pdf.Error().Error()))
		pdf.ClearError()
		return
	}

	pdf.ImageOptions(name, 15, -1, 180, 0, true, opts, 0, "")
	pdf.SetFont("Helvetica", "B", 10)
	caption := strings.TrimSuffix(strings.TrimSuffix(img.Filename, ".png"), ".jpg")
	pdf.CellFormat(0, 8, fmt.Sprintf("Figure %d: %s", figure, caption), "", 1, "C", false, 0, "")
	pdf.Ln(4)
}

func imageType(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "JPG"
	case strings.HasSuffix(lower, ".gif"):
		return "GIF"
	default:
		return "PNG"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

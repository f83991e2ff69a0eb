package report

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsight-backend/models"
)

func testData() *Data {
	return &Data{
		ConversationID: "conv-1",
		FileNames:      []string{"q4.pdf"},
		Summary:        "**Overview**\nRevenue grew sharply.\n\n## Highlights\n- Strong quarter",
		Metrics: &models.StructuredMetrics{
			FinancialMetrics: []models.FinancialMetric{
				{Entity: "Acme Corp", Value: 3900000000000, Type: "revenue"},
			},
		},
		Anomalies: &models.AnomalyReport{
			AnalysisSummary: models.AnalysisSummary{
				TotalAnomalies: 2,
				SeverityDistribution: models.SeverityDistribution{
					Critical: 1,
					Low:      1,
				},
			},
			Anomalies: []models.Anomaly{
				{
					ID:          "a-1",
					Description: "Revenue restated without explanation",
					Type:        "data",
					Severity:    "critical",
					Evidence:    models.AnomalyEvidence{Excerpts: []string{"restated to $4.2B"}},
				},
				{
					ID:          "a-2",
					Description: "Inconsistent date formats",
					Type:        "formatting",
					Severity:    "low",
				},
			},
		},
	}
}

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRenderProducesPDF(t *testing.T) {
	r := NewRenderer(zap.NewNop())

	pdf, err := r.Render(testData())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestRenderWithImages(t *testing.T) {
	r := NewRenderer(zap.NewNop())
	data := testData()
	data.Images = []Image{{Filename: "chart.png", Base64: pngBase64(t)}}

	pdf, err := r.Render(data)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
}

func TestRenderSkipsBadImages(t *testing.T) {
	r := NewRenderer(zap.NewNop())
	data := testData()
	data.Images = []Image{
		{Filename: "broken.png", Base64: "%%%not-base64%%%"},
		{Filename: "chart.png", Base64: pngBase64(t)},
	}

	// A corrupt image must not fail the report
	pdf, err := r.Render(data)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
}

func TestRenderWithoutAnomalies(t *testing.T) {
	r := NewRenderer(zap.NewNop())
	data := testData()
	data.Anomalies = nil
	data.Metrics = nil

	pdf, err := r.Render(data)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
}

func TestStripMarkdown(t *testing.T) {
	assert.Equal(t, "Critical Risk found", stripMarkdown("**Critical Risk** found"))
	assert.Equal(t, "Heading", stripMarkdown("## Heading"))
	assert.Equal(t, "plain", stripMarkdown("  plain  "))
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"finsight-backend/llm"
	"finsight-backend/models"

	"go.uber.org/zap"
)

const metricsPromptTemplate = `Extract structured data from the following text in JSON format. Focus on financial metrics such as revenues, expenses, assets, liabilities, profits, and any other relevant financial data.
Return **only valid JSON** with the following structure:
{
    "financial_metrics": [
        {
            "entity": "entity_name",
            "value": "numerical_value",
            "type": "metric_type"
        }
    ]
}

Metric types include "revenue", "expense", "asset", "liability", "profit", and similar categories.
Do not include any additional text or explanations. Only return valid JSON.

Text: %s`

// numericUnits maps magnitude words to multipliers. Order matters: the
// first unit found in the value string wins.
var numericUnits = []struct {
	name       string
	multiplier float64
}{
	{"trillion", 1e12},
	{"billion", 1e9},
	{"million", 1e6},
	{"thousand", 1e3},
}

// AnalysisService extracts structured financial metrics from document text
type AnalysisService struct {
	completer llm.Completer
	log       *zap.Logger
}

// AnalysisServiceOption is a functional option for AnalysisService
type AnalysisServiceOption func(*AnalysisService)

// AnalysisWithCompleter sets the completion client
func AnalysisWithCompleter(completer llm.Completer) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.completer = completer
	}
}

// AnalysisWithLogger sets the logger
func AnalysisWithLogger(log *zap.Logger) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.log = log
	}
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(opts ...AnalysisServiceOption) *AnalysisService {
	s := &AnalysisService{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// rawMetric mirrors the model output before numeric normalization; the
// value arrives as either a JSON number or a free-form string
type rawMetric struct {
	Entity string      `json:"entity"`
	Value  interface{} `json:"value"`
	Type   string      `json:"type"`
}

// ExtractMetrics runs structured extraction over text. A response that
// cannot be parsed as JSON degrades to an empty metrics list rather than
// an error, so one bad model response does not fail a whole report.
func (s *AnalysisService) ExtractMetrics(ctx context.Context, text string) (*models.StructuredMetrics, error) {
	prompt := fmt.Sprintf(metricsPromptTemplate, text)

	response, err := s.completer.Complete(ctx, prompt, 0)
	if err != nil {
		return nil, fmt.Errorf("metrics extraction failed: %w", err)
	}

	cleaned := llm.StripCodeFences(response)

	var parsed struct {
		FinancialMetrics []rawMetric `json:"financial_metrics"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		s.log.Warn("metrics response was not valid JSON, returning empty result",
			zap.Error(err),
			zap.String("response", truncateForLog(response, 500)))
		return &models.StructuredMetrics{FinancialMetrics: []models.FinancialMetric{}}, nil
	}

	metrics := make([]models.FinancialMetric, 0, len(parsed.FinancialMetrics))
	for _, raw := range parsed.FinancialMetrics {
		metrics = append(metrics, models.FinancialMetric{
			Entity: raw.Entity,
			Value:  parseNumericValue(raw.Value),
			Type:   raw.Type,
		})
	}

	return &models.StructuredMetrics{FinancialMetrics: metrics}, nil
}

// parseNumericValue normalizes a model-reported value to an integer.
// Strings like "3.9 trillion" or "$1,500,000" resolve through the unit
// table and separator stripping; anything unparseable resolves to 0 so
// downstream consumers always see a number.
func parseNumericValue(value interface{}) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		cleaned := strings.TrimSpace(v)
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		cleaned = strings.ReplaceAll(cleaned, "$", "")

		for _, unit := range numericUnits {
			if strings.Contains(cleaned, unit.name) {
				numberPart := strings.TrimSpace(strings.ReplaceAll(cleaned, unit.name, ""))
				f, err := strconv.ParseFloat(numberPart, 64)
				if err != nil {
					return 0
				}
				return int64(f * unit.multiplier)
			}
		}

		f, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
		if err != nil {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

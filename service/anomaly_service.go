package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"finsight-backend/llm"
	"finsight-backend/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoDocuments       = errors.New("no documents to analyze")
	ErrSizeLimitExceeded = errors.New("total document size exceeds model capacity")
	ErrMalformedResponse = errors.New("failed to parse model response")
)

const (
	// maxDocumentContextChars caps the framed document context handed to
	// the model. The check runs before any model call so oversized inputs
	// fail fast and spend nothing.
	maxDocumentContextChars = 900000

	anomalyTimeout     = 120 * time.Second
	anomalyTemperature = float32(0.1)
)

const anomalyPromptTemplate = `Analyze these documents comprehensively to detect:
1. Individual document anomalies
2. Cross-document inconsistencies
3. Statistical patterns across documents
4. Logical contradictions between documents
5. Temporal/geographical mismatches
6. Formatting/style anomalies

Consider these document relationships:
- Sequential documents (date ordered)
- Versioned documents
- Complementary/supplementary materials
- Potentially conflicting sources

Documents:
%s

Return findings in this JSON structure:
{
  "analysis_summary": {
    "total_anomalies": int,
    "cross_document_issues": int,
    "severity_distribution": {
      "critical": int,
      "high": int,
      "medium": int,
      "low": int
    }
  },
  "anomalies": [
    {
      "id": "unique-identifier",
      "description": "Detailed anomaly description",
      "type": "data|logic|temporal|formatting|statistical|context",
      "severity": "critical|high|medium|low",
      "affected_documents": [int],
      "evidence": {
        "excerpts": [str],
        "document_references": [int]
      },
      "cross_document": bool,
      "confidence_score": float
    }
  ]
}`

// AnomalyService runs cross-document anomaly detection over extracted text
type AnomalyService struct {
	completer llm.Completer
	log       *zap.Logger
}

// AnomalyServiceOption is a functional option for AnomalyService
type AnomalyServiceOption func(*AnomalyService)

// AnomalyWithCompleter sets the completion client
func AnomalyWithCompleter(completer llm.Completer) AnomalyServiceOption {
	return func(s *AnomalyService) {
		s.completer = completer
	}
}

// AnomalyWithLogger sets the logger
func AnomalyWithLogger(log *zap.Logger) AnomalyServiceOption {
	return func(s *AnomalyService) {
		s.log = log
	}
}

// NewAnomalyService creates a new anomaly service
func NewAnomalyService(opts ...AnomalyServiceOption) *AnomalyService {
	s := &AnomalyService{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// buildDocumentContext frames each document with index markers so the
// model can reference documents by position
func buildDocumentContext(texts []string) string {
	framed := make([]string, 0, len(texts))
	for i, text := range texts {
		framed = append(framed, fmt.Sprintf("--- DOCUMENT %d ---\n%s\n--- END DOCUMENT %d ---", i, text, i))
	}
	return strings.Join(framed, "\n\n")
}

// Detect analyzes the document set as a whole and returns a structured
// anomaly report. Unlike metrics extraction, a malformed model response
// here is a hard error: a silently empty anomaly report reads as a clean
// bill of health.
func (s *AnomalyService) Detect(ctx context.Context, texts []string) (*models.AnomalyReport, error) {
	if len(texts) == 0 {
		return nil, ErrNoDocuments
	}

	documentContext := buildDocumentContext(texts)
	if len(documentContext) > maxDocumentContextChars {
		return nil, ErrSizeLimitExceeded
	}

	ctx, cancel := context.WithTimeout(ctx, anomalyTimeout)
	defer cancel()

	prompt := fmt.Sprintf(anomalyPromptTemplate, documentContext)

	response, err := s.completer.Complete(ctx, prompt, anomalyTemperature)
	if err != nil {
		return nil, fmt.Errorf("anomaly detection failed: %w", err)
	}

	cleaned := llm.StripCodeFences(response)

	var report models.AnomalyReport
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		s.log.Error("anomaly response was not valid JSON",
			zap.Error(err),
			zap.String("response", truncateForLog(response, 500)))
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	for i := range report.Anomalies {
		if report.Anomalies[i].ID == "" {
			report.Anomalies[i].ID = uuid.New().String()
		}
	}

	s.log.Info("anomaly detection complete",
		zap.Int("documents", len(texts)),
		zap.Int("anomalies", len(report.Anomalies)),
		zap.Int("cross_document_issues", report.AnalysisSummary.CrossDocumentIssues))

	return &report, nil
}

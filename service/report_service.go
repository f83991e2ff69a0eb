package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finsight-backend/llm"
	"finsight-backend/models"
	"finsight-backend/report"
	"finsight-backend/storage"
)

const summaryPromptTemplate = `Create a professional financial analysis report with these sections:

1. Executive Summary
- Overview of findings
- Financial highlights
- Critical insights

2. Risk Areas
Based on anomaly data:
%s

3. Recommendations
- Action items (prioritized)
- Improvement areas
- Strategic initiatives

Format in clear language with bullet points. Be specific and data-driven.
Highlight important points using ** for emphasis (e.g., **Critical Risk**).`

// ReportService composes the full analysis report: it fans out to the
// metrics and anomaly pipelines, asks the model for an executive summary,
// renders the PDF and persists it next to the partitions.
type ReportService struct {
	analysis  *AnalysisService
	anomaly   *AnomalyService
	completer llm.Completer
	renderer  *report.Renderer
	store     storage.Storage
	log       *zap.Logger
}

// ReportServiceOption is a functional option for ReportService
type ReportServiceOption func(*ReportService)

// ReportWithAnalysisService sets the metrics extraction service
func ReportWithAnalysisService(s *AnalysisService) ReportServiceOption {
	return func(r *ReportService) {
		r.analysis = s
	}
}

// ReportWithAnomalyService sets the anomaly detection service
func ReportWithAnomalyService(s *AnomalyService) ReportServiceOption {
	return func(r *ReportService) {
		r.anomaly = s
	}
}

// ReportWithCompleter sets the completion client used for summaries
func ReportWithCompleter(c llm.Completer) ReportServiceOption {
	return func(r *ReportService) {
		r.completer = c
	}
}

// ReportWithRenderer sets the PDF renderer
func ReportWithRenderer(renderer *report.Renderer) ReportServiceOption {
	return func(r *ReportService) {
		r.renderer = renderer
	}
}

// ReportWithStorage sets the blob store reports are persisted to
func ReportWithStorage(store storage.Storage) ReportServiceOption {
	return func(r *ReportService) {
		r.store = store
	}
}

// ReportWithLogger sets the logger
func ReportWithLogger(log *zap.Logger) ReportServiceOption {
	return func(r *ReportService) {
		r.log = log
	}
}

// NewReportService creates a new report service
func NewReportService(opts ...ReportServiceOption) *ReportService {
	s := &ReportService{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateRequest carries the inputs for one report run
type GenerateRequest struct {
	ConversationID string
	FileNames      []string
	Texts          []string
	Images         []report.Image
}

// GenerateResult holds the rendered report and where it was stored
type GenerateResult struct {
	PDF        []byte
	StorageKey string
}

// Generate runs both analysis pipelines concurrently over the document
// set, then composes and persists the report. A failure in either
// pipeline fails the whole report; partial reports are worse than none.
func (s *ReportService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if len(req.Texts) == 0 {
		return nil, ErrNoDocuments
	}

	var (
		metrics   *models.StructuredMetrics
		anomalies *models.AnomalyReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		metrics, err = s.analysis.ExtractMetrics(gctx, strings.Join(req.Texts, "\n\n"))
		return err
	})
	g.Go(func() error {
		var err error
		anomalies, err = s.anomaly.Detect(gctx, req.Texts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary, err := s.generateSummary(ctx, anomalies)
	if err != nil {
		return nil, err
	}

	pdf, err := s.renderer.Render(&report.Data{
		ConversationID: req.ConversationID,
		FileNames:      req.FileNames,
		Summary:        summary,
		Metrics:        metrics,
		Anomalies:      anomalies,
		Images:         req.Images,
	})
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("reports/financial_report_%s.pdf", req.ConversationID)
	if err := s.store.Put(ctx, key, bytes.NewReader(pdf)); err != nil {
		return nil, fmt.Errorf("failed to persist report: %w", err)
	}

	s.log.Info("report generated",
		zap.String("conversation_id", req.ConversationID),
		zap.Int("documents", len(req.Texts)),
		zap.Int("bytes", len(pdf)))

	return &GenerateResult{PDF: pdf, StorageKey: key}, nil
}

func (s *ReportService) generateSummary(ctx context.Context, anomalies *models.AnomalyReport) (string, error) {
	anomalyJSON, err := json.MarshalIndent(anomalies, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode anomaly data: %w", err)
	}

	summary, err := s.completer.Complete(ctx, fmt.Sprintf(summaryPromptTemplate, anomalyJSON), 0)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return summary, nil
}

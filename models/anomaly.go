package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IntList decodes a JSON array whose elements may arrive as numbers or
// numeric strings (the completion adapter is not reliable about this).
// A non-coercible element is a hard decode failure, not a dropped entry.
type IntList []int

// UnmarshalJSON implements json.Unmarshaler
func (l *IntList) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			out = append(out, int(n))
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return fmt.Errorf("non-integer document reference %q", n)
			}
			out = append(out, i)
		default:
			return fmt.Errorf("non-integer document reference %v", v)
		}
	}
	*l = out
	return nil
}

// SeverityDistribution counts anomalies per severity tier
type SeverityDistribution struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// AnalysisSummary aggregates the anomaly findings
type AnalysisSummary struct {
	TotalAnomalies       int                  `json:"total_anomalies"`
	CrossDocumentIssues  int                  `json:"cross_document_issues"`
	SeverityDistribution SeverityDistribution `json:"severity_distribution"`
}

// AnomalyEvidence carries excerpts and the indexes of the documents they
// came from
type AnomalyEvidence struct {
	Excerpts           []string `json:"excerpts"`
	DocumentReferences IntList  `json:"document_references"`
}

// Anomaly is a single severity-classified finding
type Anomaly struct {
	ID                string          `json:"id"`
	Description       string          `json:"description"`
	Type              string          `json:"type"` // data|logic|temporal|formatting|statistical|context
	Severity          string          `json:"severity"` // critical|high|medium|low
	AffectedDocuments IntList         `json:"affected_documents"`
	Evidence          AnomalyEvidence `json:"evidence"`
	CrossDocument     bool            `json:"cross_document"`
	ConfidenceScore   float64         `json:"confidence_score"`
}

// AnomalyReport is the full verdict over a batch of documents
type AnomalyReport struct {
	AnalysisSummary AnalysisSummary `json:"analysis_summary"`
	Anomalies       []Anomaly       `json:"anomalies"`
}

package models

// FinancialMetric is one extracted metric. Value is always a normalized
// integer magnitude; unparseable values default to 0 rather than failing
// the extraction.
type FinancialMetric struct {
	Entity string `json:"entity"`
	Value  int64  `json:"value"`
	Type   string `json:"type"`
}

// StructuredMetrics is the typed result of the structured-extraction
// pipeline.
type StructuredMetrics struct {
	FinancialMetrics []FinancialMetric `json:"financial_metrics"`
}

package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor converts a document on disk into plain text. The production
// implementation reads PDFs; tests substitute a fake.
type Extractor interface {
	Extract(path string) (string, error)
}

// PDFExtractor extracts plain text from PDF files page by page.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads the PDF at path and returns its concatenated page text
func (e *PDFExtractor) Extract(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var builder strings.Builder
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	if _, err := io.Copy(&builder, reader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	return builder.String(), nil
}

package handlers

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"finsight-backend/extract"
)

// uploadedDocument pairs an uploaded filename with its extracted text
type uploadedDocument struct {
	Filename string
	Text     string
}

// errNotPDF rejects uploads that are not PDF files
type errNotPDF struct {
	filename string
}

func (e errNotPDF) Error() string {
	return fmt.Sprintf("only PDF files are allowed, got %q", e.filename)
}

// extractUploadedPDFs writes the multipart files to a temporary directory,
// extracts their text and cleans the directory up before returning. The
// temporary files never outlive the request.
func extractUploadedPDFs(c *gin.Context, extractor extract.Extractor, files []*multipart.FileHeader) ([]uploadedDocument, error) {
	tempDir, err := os.MkdirTemp("", "pdf-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	docs := make([]uploadedDocument, 0, len(files))
	for _, fileHeader := range files {
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
			return nil, errNotPDF{filename: fileHeader.Filename}
		}

		path := filepath.Join(tempDir, filepath.Base(fileHeader.Filename))
		if err := c.SaveUploadedFile(fileHeader, path); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", fileHeader.Filename, err)
		}

		text, err := extractor.Extract(path)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from %s: %w", fileHeader.Filename, err)
		}

		docs = append(docs, uploadedDocument{
			Filename: fileHeader.Filename,
			Text:     text,
		})
	}

	return docs, nil
}

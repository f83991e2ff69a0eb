package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"finsight-backend/extract"
	"finsight-backend/service"
)

// AnalysisHandler handles structured metrics extraction requests
type AnalysisHandler struct {
	analysisService *service.AnalysisService
	extractor       extract.Extractor
	log             *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analysisService *service.AnalysisService, extractor extract.Extractor, log *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		extractor:       extractor,
		log:             log,
	}
}

// StructuredJSON handles POST /api/analysis/structured-json. It accepts
// PDF uploads, raw text, or both; the extracted texts are concatenated
// into one extraction pass.
func (h *AnalysisHandler) StructuredJSON(c *gin.Context) {
	var texts []string

	if form, err := c.MultipartForm(); err == nil {
		files := form.File["files"]
		if len(files) > 0 {
			docs, err := extractUploadedPDFs(c, h.extractor, files)
			if err != nil {
				status := http.StatusInternalServerError
				code := "EXTRACTION_FAILED"
				var notPDF errNotPDF
				if errors.As(err, &notPDF) {
					status = http.StatusBadRequest
					code = "INVALID_FILE_TYPE"
				}
				c.JSON(status, gin.H{
					"success": false,
					"error": gin.H{
						"code":    code,
						"message": err.Error(),
					},
				})
				return
			}
			for _, doc := range docs {
				texts = append(texts, doc.Text)
			}
		}
	}

	if text := strings.TrimSpace(c.PostForm("text")); text != "" {
		texts = append(texts, text)
	}

	if len(texts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_INPUT",
				"message": "Provide PDF files, text, or both",
			},
		})
		return
	}

	metrics, err := h.analysisService.ExtractMetrics(c.Request.Context(), strings.Join(texts, "\n\n"))
	if err != nil {
		h.log.Error("metrics extraction failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "EXTRACTION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"finsight-backend/extract"
	"finsight-backend/service"
)

// AnomalyHandler handles cross-document anomaly detection requests
type AnomalyHandler struct {
	anomalyService *service.AnomalyService
	extractor      extract.Extractor
	log            *zap.Logger
}

// NewAnomalyHandler creates a new anomaly handler
func NewAnomalyHandler(anomalyService *service.AnomalyService, extractor extract.Extractor, log *zap.Logger) *AnomalyHandler {
	return &AnomalyHandler{
		anomalyService: anomalyService,
		extractor:      extractor,
		log:            log,
	}
}

// Detect handles POST /api/anomaly/detect
func (h *AnomalyHandler) Detect(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILES",
				"message": "At least one PDF file is required",
			},
		})
		return
	}

	docs, err := extractUploadedPDFs(c, h.extractor, form.File["files"])
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

	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Text)
	}

	report, err := h.anomalyService.Detect(c.Request.Context(), texts)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSizeLimitExceeded):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "SIZE_LIMIT_EXCEEDED",
					"message": "Total document size exceeds model capacity",
				},
			})
		case errors.Is(err, service.ErrMalformedResponse):
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MALFORMED_RESPONSE",
					"message": "Failed to parse model response",
				},
			})
		default:
			h.log.Error("anomaly detection failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DETECTION_FAILED",
					"message": err.Error(),
				},
			})
		}
		return
	}

	c.JSON(http.StatusOK, report)
}

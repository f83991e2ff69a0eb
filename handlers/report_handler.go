package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"finsight-backend/extract"
	"finsight-backend/report"
	"finsight-backend/service"
)

// ReportHandler handles full report generation requests
type ReportHandler struct {
	reportService *service.ReportService
	extractor     extract.Extractor
	log           *zap.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *service.ReportService, extractor extract.Extractor, log *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		extractor:     extractor,
		log:           log,
	}
}

// Generate handles POST /api/report/generate and streams the rendered
// PDF back as a download
func (h *ReportHandler) Generate(c *gin.Context) {
	conversationID := c.PostForm("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_CONVERSATION_ID",
				"message": "conversation_id is required",
			},
		})
		return
	}

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

	req := service.GenerateRequest{ConversationID: conversationID}
	for _, doc := range docs {
		req.FileNames = append(req.FileNames, doc.Filename)
		req.Texts = append(req.Texts, doc.Text)
	}
	names := form.Value["image_names"]
	for i, encoded := range form.Value["images"] {
		name := fmt.Sprintf("chart_%d.png", i+1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		req.Images = append(req.Images, report.Image{Filename: name, Base64: encoded})
	}

	result, err := h.reportService.Generate(c.Request.Context(), req)
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
		default:
			h.log.Error("report generation failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "REPORT_FAILED",
					"message": err.Error(),
				},
			})
		}
		return
	}

	filename := fmt.Sprintf("financial_report_%s.pdf", conversationID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", result.PDF)
}

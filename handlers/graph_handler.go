package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finsight-backend/extract"
	"finsight-backend/index"
	"finsight-backend/models"
)

// errConversationForbidden is returned when a conversation exists but
// belongs to a different user
var errConversationForbidden = errors.New("conversation does not belong to this user")

// GraphHandler handles document ingestion and retrieval queries
type GraphHandler struct {
	manager          *index.Manager
	extractor        extract.Extractor
	conversationRepo ConversationStore
	log              *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(manager *index.Manager, extractor extract.Extractor, conversationRepo ConversationStore, log *zap.Logger) *GraphHandler {
	return &GraphHandler{
		manager:          manager,
		extractor:        extractor,
		conversationRepo: conversationRepo,
		log:              log,
	}
}

// resolveConversation returns the conversation named by the form value,
// or creates a fresh one when no ID was supplied. A conversation owned by
// a different user fails with errConversationForbidden.
func (h *GraphHandler) resolveConversation(ctx context.Context, userID uuid.UUID, conversationIDStr, title string) (*models.Conversation, error) {
	if conversationIDStr != "" {
		conversationID, err := uuid.Parse(conversationIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid conversation_id format")
		}
		conversation, err := h.conversationRepo.GetByID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conversation.UserID != userID {
			return nil, errConversationForbidden
		}
		return conversation, nil
	}

	conversation := &models.Conversation{
		UserID: userID,
		Title:  title,
	}
	if err := h.conversationRepo.Create(ctx, conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// truncateTitle caps a conversation title at max runes. Cutting on a
// byte offset could split a multi-byte character and produce text
// Postgres rejects as invalid UTF-8.
func truncateTitle(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		s = string(runes[:max])
	}
	return strings.TrimSpace(s)
}

func respondConversationError(c *gin.Context, err error) {
	if errors.Is(err, errConversationForbidden) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "CONVERSATION_ERROR",
			"message": err.Error(),
		},
	})
}

// ProcessPDFs handles POST /api/graph/process-pdfs
func (h *GraphHandler) ProcessPDFs(c *gin.Context) {
	userIDStr := c.PostForm("user_id")
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_USER_ID",
				"message": "Invalid user_id format",
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
	files := form.File["files"]

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

	conversation, err := h.resolveConversation(c.Request.Context(), userID, c.PostForm("conversation_id"), docs[0].Filename)
	if err != nil {
		respondConversationError(c, err)
		return
	}

	key := index.Key{
		UserID:         userID.String(),
		ConversationID: conversation.ID.String(),
	}
	indexDocs := make([]index.Document, 0, len(docs))
	filenames := make([]string, 0, len(docs))
	for _, doc := range docs {
		indexDocs = append(indexDocs, index.Document{Filename: doc.Filename, Text: doc.Text})
		filenames = append(filenames, doc.Filename)
	}

	if _, err := h.manager.BuildOrMerge(c.Request.Context(), key, indexDocs); err != nil {
		h.log.Error("index build failed",
			zap.String("conversation_id", conversation.ID.String()),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROCESSING_FAILED",
				"message": fmt.Sprintf("Processing failed: %v", err),
			},
		})
		return
	}

	if err := h.conversationRepo.AppendPDFFiles(c.Request.Context(), conversation.ID, filenames); err != nil {
		h.log.Warn("failed to record uploaded filenames", zap.Error(err))
	}
	for _, filename := range filenames {
		message := &models.Message{
			ConversationID: conversation.ID,
			Sender:         models.SenderUser,
			Content:        filename,
			MessageType:    models.MessageTypeFile,
		}
		if err := h.conversationRepo.AppendMessage(c.Request.Context(), message); err != nil {
			h.log.Warn("failed to record file message", zap.Error(err))
		}
	}

	html, err := h.manager.GraphHTML(c.Request.Context(), key)
	if err != nil {
		h.log.Warn("graph snapshot unavailable", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "success",
		"message":            fmt.Sprintf("Processed %d document(s)", len(docs)),
		"conversation_id":    conversation.ID.String(),
		"visualization_html": string(html),
	})
}

// QueryRequest represents the request body for a retrieval query
type QueryRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query" binding:"required"`
}

// Query handles POST /api/graph/query
func (h *GraphHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_USER_ID",
				"message": "Invalid user_id format",
			},
		})
		return
	}

	conversation, err := h.resolveConversation(c.Request.Context(), userID, req.ConversationID, truncateTitle(req.Query, 80))
	if err != nil {
		respondConversationError(c, err)
		return
	}

	key := index.Key{
		UserID:         userID.String(),
		ConversationID: conversation.ID.String(),
	}

	answer, err := h.manager.Query(c.Request.Context(), key, req.Query)
	if err != nil {
		if errors.Is(err, index.ErrPartitionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NO_DOCUMENTS",
					"message": "No documents processed yet for this conversation",
				},
			})
			return
		}
		h.log.Error("query failed",
			zap.String("conversation_id", conversation.ID.String()),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "QUERY_FAILED",
				"message": fmt.Sprintf("Query failed: %v", err),
			},
		})
		return
	}

	userMessage := &models.Message{
		ConversationID: conversation.ID,
		Sender:         models.SenderUser,
		Content:        req.Query,
		MessageType:    models.MessageTypeText,
	}
	if err := h.conversationRepo.AppendMessage(c.Request.Context(), userMessage); err != nil {
		h.log.Warn("failed to record user message", zap.Error(err))
	}
	botMessage := &models.Message{
		ConversationID: conversation.ID,
		Sender:         models.SenderBot,
		Content:        answer,
		MessageType:    models.MessageTypeText,
	}
	if err := h.conversationRepo.AppendMessage(c.Request.Context(), botMessage); err != nil {
		h.log.Warn("failed to record bot message", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"response":        answer,
		"conversation_id": conversation.ID.String(),
	})
}

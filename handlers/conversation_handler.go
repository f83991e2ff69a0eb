package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"finsight-backend/models"
)

// ConversationStore is the subset of the conversation repository the
// handlers depend on
type ConversationStore interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
	AppendPDFFiles(ctx context.Context, id uuid.UUID, filenames []string) error
	AppendMessage(ctx context.Context, message *models.Message) error
	GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)
}

// ConversationHandler handles conversation history requests
type ConversationHandler struct {
	conversationRepo ConversationStore
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversationRepo ConversationStore) *ConversationHandler {
	return &ConversationHandler{conversationRepo: conversationRepo}
}

// List handles GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	userIDStr := c.Query("user_id")
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

	conversations, err := h.conversationRepo.ListByUserID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    conversations,
	})
}

// Get handles GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid conversation ID format",
			},
		})
		return
	}

	conversation, err := h.conversationRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Conversation not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LOOKUP_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	messages, err := h.conversationRepo.GetMessages(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MESSAGES_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	conversation.Messages = messages

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    conversation,
	})
}

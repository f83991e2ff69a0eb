package repository

import (
	"context"

	"finsight-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRepository handles database operations for conversations
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	query := `
		INSERT INTO conversations (user_id, title, pdf_files)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	if conversation.PDFFiles == nil {
		conversation.PDFFiles = []string{}
	}

	err := r.db.QueryRow(
		ctx, query,
		conversation.UserID,
		conversation.Title,
		conversation.PDFFiles,
	).Scan(&conversation.ID, &conversation.CreatedAt, &conversation.UpdatedAt)

	return err
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conversation := &models.Conversation{}
	query := `
		SELECT id, user_id, title, pdf_files, created_at, updated_at
		FROM conversations
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&conversation.ID,
		&conversation.UserID,
		&conversation.Title,
		&conversation.PDFFiles,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return conversation, nil
}

// ListByUserID retrieves all conversations for a user, newest first
func (r *ConversationRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	query := `
		SELECT id, user_id, title, pdf_files, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conversation := &models.Conversation{}
		err := rows.Scan(
			&conversation.ID,
			&conversation.UserID,
			&conversation.Title,
			&conversation.PDFFiles,
			&conversation.CreatedAt,
			&conversation.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}

	return conversations, rows.Err()
}

// AppendPDFFiles appends filenames to the conversation's file list
func (r *ConversationRepository) AppendPDFFiles(ctx context.Context, id uuid.UUID, filenames []string) error {
	query := `
		UPDATE conversations SET
			pdf_files = pdf_files || $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, filenames)
	return err
}

// UpdateTitle updates the conversation title
func (r *ConversationRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	query := `
		UPDATE conversations SET
			title = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, title)
	return err
}

// AppendMessage adds a message to a conversation and refreshes updated_at
func (r *ConversationRepository) AppendMessage(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender, content, message_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		message.ConversationID,
		message.Sender,
		message.Content,
		message.MessageType,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`,
		message.ConversationID)
	return err
}

// GetMessages retrieves all messages for a conversation in order
func (r *ConversationRepository) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender, content, message_type, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		message := &models.Message{}
		err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.Sender,
			&message.Content,
			&message.MessageType,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// Delete deletes a conversation and its messages
func (r *ConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM conversations WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

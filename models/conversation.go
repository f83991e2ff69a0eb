package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageSender identifies who produced a message
type MessageSender string

const (
	SenderUser MessageSender = "user"
	SenderBot  MessageSender = "bot"
)

// MessageType distinguishes chat text from file notifications
type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeFile MessageType = "file"
)

// Message represents a single chat turn. Messages are append-only and
// belong to exactly one conversation.
type Message struct {
	ID             uuid.UUID     `json:"id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	Sender         MessageSender `json:"sender"`
	Content        string        `json:"content"`
	MessageType    MessageType   `json:"message_type"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Conversation groups the chat history and processed-file metadata for one
// user. Its id, together with the user id, forms the partition key for the
// retrieval index.
type Conversation struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	PDFFiles  []string   `json:"pdf_files"`
	Messages  []*Message `json:"messages,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsight-backend/index"
	"finsight-backend/models"
	"finsight-backend/storage"
)

// fakeConversationStore keeps conversations in memory so handler flows can
// run without a database
type fakeConversationStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	messages      []*models.Message
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: map[uuid.UUID]*models.Conversation{}}
}

func (s *fakeConversationStore) Create(_ context.Context, conversation *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation.ID = uuid.New()
	s.conversations[conversation.ID] = conversation
	return nil
}

func (s *fakeConversationStore) GetByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return conversation, nil
}

func (s *fakeConversationStore) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Conversation
	for _, conversation := range s.conversations {
		if conversation.UserID == userID {
			out = append(out, conversation)
		}
	}
	return out, nil
}

func (s *fakeConversationStore) AppendPDFFiles(_ context.Context, id uuid.UUID, filenames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conversation.PDFFiles = append(conversation.PDFFiles, filenames...)
	return nil
}

func (s *fakeConversationStore) AppendMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message.ID = uuid.New()
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeConversationStore) GetMessages(_ context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.ConversationID == conversationID {
			out = append(out, message)
		}
	}
	return out, nil
}

func newQueryRouter(t *testing.T, store *fakeConversationStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	manager := index.NewManager(blobs, nil, nil, zap.NewNop())
	handler := NewGraphHandler(manager, nil, store, zap.NewNop())

	r := gin.New()
	r.POST("/api/graph/query", handler.Query)
	return r
}

func postQuery(t *testing.T, r *gin.Engine, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/graph/query", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short passes through", "revenue summary", "revenue summary"},
		{"long ascii capped", strings.Repeat("a", 100), strings.Repeat("a", 80)},
		{"multi-byte capped on rune boundary", strings.Repeat("€", 100), strings.Repeat("€", 80)},
		{"trailing space trimmed", strings.Repeat("b ", 50), strings.TrimSpace(strings.Repeat("b ", 40))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateTitle(tt.in, 80)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestQueryTitleStaysValidUTF8(t *testing.T) {
	store := newFakeConversationStore()
	r := newQueryRouter(t, store)

	w := postQuery(t, r, map[string]string{
		"user_id": uuid.NewString(),
		"query":   strings.Repeat("€", 90),
	})

	// No documents were processed, so the query itself 404s, but the
	// conversation has already been created with the derived title.
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, store.conversations, 1)
	for _, conversation := range store.conversations {
		assert.True(t, utf8.ValidString(conversation.Title))
		assert.Equal(t, 80, utf8.RuneCountInString(conversation.Title))
	}
}

func TestQueryRejectsForeignConversation(t *testing.T) {
	store := newFakeConversationStore()
	owner := &models.Conversation{UserID: uuid.New(), Title: "someone else's"}
	require.NoError(t, store.Create(context.Background(), owner))
	r := newQueryRouter(t, store)

	w := postQuery(t, r, map[string]string{
		"user_id":         uuid.NewString(),
		"conversation_id": owner.ID.String(),
		"query":           "what is the total revenue?",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
	assert.Empty(t, store.messages)
}

func TestQueryOwnConversationStillResolves(t *testing.T) {
	store := newFakeConversationStore()
	userID := uuid.New()
	conversation := &models.Conversation{UserID: userID, Title: "mine"}
	require.NoError(t, store.Create(context.Background(), conversation))
	r := newQueryRouter(t, store)

	w := postQuery(t, r, map[string]string{
		"user_id":         userID.String(),
		"conversation_id": conversation.ID.String(),
		"query":           "what is the total revenue?",
	})

	// Ownership passes; the empty partition is what 404s.
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NO_DOCUMENTS")
}

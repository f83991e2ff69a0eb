package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Completer sends a text prompt to the language model and returns raw text.
// The model is nondeterministic, fallible and latency-bearing; callers own
// the interpretation of the returned text.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
}

// Embedder converts text into an L2-normalized vector.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

var (
	ErrGenerationFailed = errors.New("failed to generate content")
	ErrEmbeddingFailed  = errors.New("failed to generate embedding")
	ErrPromptBlocked    = errors.New("prompt blocked by model safety settings")
)

const (
	defaultGenerationModel = "gemini-2.0-flash"
	defaultEmbeddingModel  = "embedding-001"
	maxRetries             = 3
	initialBackoff         = time.Second
)

// GeminiClient implements Completer and Embedder against the Gemini API.
type GeminiClient struct {
	client          *genai.Client
	generationModel string
	embeddingModel  string
	log             *zap.Logger
}

// NewGeminiClient creates a Gemini-backed adapter. The API key is read from
// GEMINI_API_KEY.
func NewGeminiClient(ctx context.Context, log *zap.Logger) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Warn("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	generationModel := os.Getenv("GEMINI_GENERATION_MODEL")
	if generationModel == "" {
		generationModel = defaultGenerationModel
	}
	embeddingModel := os.Getenv("GEMINI_EMBEDDING_MODEL")
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}

	return &GeminiClient{
		client:          client,
		generationModel: generationModel,
		embeddingModel:  embeddingModel,
		log:             log,
	}, nil
}

// Close releases the underlying client
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Complete sends a prompt and returns the concatenated candidate text,
// retrying transient failures with exponential backoff.
func (g *GeminiClient) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	model := g.client.GenerativeModel(g.generationModel)
	model.SetTemperature(temperature)

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			if !retryable(err) {
				return "", fmt.Errorf("generation request rejected: %w", err)
			}
			lastErr = err
			continue
		}

		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("%w: %s", ErrPromptBlocked, resp.PromptFeedback.BlockReason)
		}
		if len(resp.Candidates) == 0 {
			lastErr = errors.New("model returned no candidates")
			continue
		}

		text := candidateText(resp, g.log)
		if text == "" {
			lastErr = errors.New("model returned empty content")
			continue
		}
		return text, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w after %d attempts: %v", ErrGenerationFailed, maxRetries, lastErr)
	}
	return "", ErrGenerationFailed
}

// EmbedDocument embeds text for indexing
func (g *GeminiClient) EmbedDocument(ctx context.Context, text string) ([]float64, error) {
	return g.embed(ctx, text, genai.TaskTypeRetrievalDocument)
}

// EmbedQuery embeds text for retrieval queries
func (g *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return g.embed(ctx, text, genai.TaskTypeRetrievalQuery)
}

func (g *GeminiClient) embed(ctx context.Context, text string, taskType genai.TaskType) ([]float64, error) {
	model := g.client.EmbeddingModel(g.embeddingModel)
	model.TaskType = taskType

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			if !retryable(err) {
				return nil, fmt.Errorf("embedding request rejected: %w", err)
			}
			lastErr = err
			continue
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			lastErr = errors.New("model returned empty embedding")
			continue
		}

		embedding := make([]float64, len(resp.Embedding.Values))
		for i, v := range resp.Embedding.Values {
			embedding[i] = float64(v)
		}
		return Normalize(embedding), nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrEmbeddingFailed, maxRetries, lastErr)
	}
	return nil, ErrEmbeddingFailed
}

// retryable reports whether an API error is worth another attempt.
// Client errors (bad request, bad credentials) never are.
func retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 403:
			return false
		}
	}
	return true
}

func candidateText(resp *genai.GenerateContentResponse, log *zap.Logger) string {
	var out string
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			log.Warn("candidate finished abnormally",
				zap.Int("candidate", i),
				zap.String("finish_reason", candidate.FinishReason.String()))
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}

// Normalize scales an embedding to unit L2 norm in place and returns the
// same slice. A zero vector is returned unchanged.
func Normalize(embedding []float64) []float64 {
	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}
	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding
}

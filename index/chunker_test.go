package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkTextEmpty(t *testing.T) {
	assert.Empty(t, ChunkText("", 512))
	assert.Empty(t, ChunkText("   \n\t  ", 512))
}

func TestChunkTextShortInput(t *testing.T) {
	chunks := ChunkText("a short document", 512)
	assert.Equal(t, []string{"a short document"}, chunks)
}

func TestChunkTextSplitsOnWhitespace(t *testing.T) {
	text := strings.Repeat("word ", 300)
	chunks := ChunkText(text, 100)

	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 100)
		// Snapping to whitespace must never split a word
		for _, word := range strings.Fields(chunk) {
			assert.Equal(t, "word", word)
		}
	}
}

func TestChunkTextPreservesContent(t *testing.T) {
	text := strings.Repeat("alpha beta gamma ", 200)
	chunks := ChunkText(text, 128)

	joined := strings.Join(chunks, " ")
	assert.Equal(t, strings.Fields(text), strings.Fields(joined))
}

func TestChunkTextUnbreakableRun(t *testing.T) {
	// A run longer than the chunk size with no whitespace still makes progress
	text := strings.Repeat("x", 1000)
	chunks := ChunkText(text, 100)

	assert.Equal(t, 10, len(chunks))
	for _, chunk := range chunks {
		assert.Equal(t, 100, len(chunk))
	}
}

package index

import (
	"strings"
	"unicode"
)

// DefaultChunkSize is the fixed chunk size applied uniformly at build time
const DefaultChunkSize = 512

// ChunkText splits text into chunks of at most size runes, snapping the cut
// to the last whitespace run inside the window so words stay intact. Empty
// input yields no chunks.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			cut := end
			for cut > start && !unicode.IsSpace(runes[cut]) {
				cut--
			}
			// No whitespace in the window, split mid-word
			if cut > start {
				end = cut
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end
	}
	return chunks
}

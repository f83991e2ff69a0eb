package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	v := []float64{3, 4}
	got := Normalize(v)

	assert.InDelta(t, 0.6, got[0], 1e-9)
	assert.InDelta(t, 0.8, got[1], 1e-9)
	// Normalization happens in place; callers share the backing array.
	assert.Equal(t, v, got)
	assert.InDelta(t, 0.6, v[0], 1e-9)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float64{0, 0, 0}
	assert.Equal(t, []float64{0, 0, 0}, Normalize(v))
}

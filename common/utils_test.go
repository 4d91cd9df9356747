package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))
}

func TestMergeSpans(t *testing.T) {
	spans := []Span{{10, 12}, {0, 4}, {4, 6}, {11, 15}, {20, 20}, {30, 31}}
	merged := MergeSpans(spans)
	assert.Equal(t, []Span{{0, 6}, {10, 15}, {30, 31}}, merged)
	assert.Empty(t, MergeSpans(nil))
}

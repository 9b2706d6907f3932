package embedding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"mira/internal/model"
)

func TestChunkSemantic_ShortContentIsSingleChunk(t *testing.T) {
	chunks := ChunkSemantic("a short message")
	assert.Equal(t, []string{"a short message"}, chunks)
}

func TestChunkSemantic_LongContentSplitsWithOverlap(t *testing.T) {
	paragraph := strings.Repeat("This is a sentence about Go concurrency patterns. ", 80)
	chunks := ChunkSemantic(paragraph)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), semanticTargetChars+semanticOverlapChars+50)
	}
}

func TestChunkSemantic_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, ChunkSemantic("   "))
}

func TestChunkForHead_Code_UsesWholeElementsUnchunked(t *testing.T) {
	elements := []string{"func A() {}", "func B() {}"}
	chunks := ChunkForHead(model.HeadCode, "ignored", elements)
	assert.Equal(t, elements, chunks)
}

func TestChunkForHead_Summary_OneChunk(t *testing.T) {
	chunks := ChunkForHead(model.HeadSummary, "the rolling summary text", nil)
	assert.Equal(t, []string{"the rolling summary text"}, chunks)
}

func TestChunkForHead_Recent_NoChunking(t *testing.T) {
	long := strings.Repeat("x", semanticTargetChars*3)
	chunks := ChunkForHead(model.HeadRecent, long, nil)
	assert.Equal(t, []string{long}, chunks)
}

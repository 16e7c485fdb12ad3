package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerSplitsLongPage(t *testing.T) {
	chunker, err := NewChunker(100, 20, nil)
	require.NoError(t, err)

	sentence := "The quick brown fox jumps over the lazy dog. "
	text := strings.Repeat(sentence, 10)

	chunks, warnings := chunker.Chunk("doc-1", []Page{{Number: 1, Text: text}})
	require.Empty(t, warnings)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, "doc-1", chunk.DocumentID)
		assert.Equal(t, i, chunk.Ordinal)
		assert.Equal(t, 1, chunk.Page)
		assert.LessOrEqual(t, len([]rune(chunk.Content)), 100)
		assert.NotEmpty(t, chunk.Content)
	}
}

func TestChunkerIsDeterministic(t *testing.T) {
	chunker, err := NewChunker(80, 10, nil)
	require.NoError(t, err)

	pages := []Page{{Number: 1, Text: strings.Repeat("alpha beta gamma delta. ", 12)}}

	first, _ := chunker.Chunk("doc-1", pages)
	second, _ := chunker.Chunk("doc-1", pages)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].StartChar, second[i].StartChar)
		assert.Equal(t, first[i].EndChar, second[i].EndChar)
	}
}

func TestChunkerDoesNotCrossPageBoundaries(t *testing.T) {
	chunker, err := NewChunker(1000, 200, nil)
	require.NoError(t, err)

	pages := []Page{
		{Number: 1, Text: "First page content."},
		{Number: 2, Text: "Second page content."},
	}

	chunks, warnings := chunker.Chunk("doc-1", pages)
	require.Empty(t, warnings)
	require.Len(t, chunks, 2)

	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
	// ページをまたいでもOrdinalは連続する
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, 1, chunks[1].Ordinal)
}

func TestChunkerWarnsOnEmptyPages(t *testing.T) {
	chunker, err := NewChunker(1000, 200, nil)
	require.NoError(t, err)

	pages := []Page{
		{Number: 1, Text: "Some text."},
		{Number: 2, Text: "   \n\t  "},
		{Number: 3, Text: "More text."},
	}

	chunks, warnings := chunker.Chunk("doc-1", pages)
	require.Len(t, chunks, 2)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "page 2")
}

func TestChunkerOverlapWithinPage(t *testing.T) {
	chunker, err := NewChunker(50, 10, nil)
	require.NoError(t, err)

	text := strings.Repeat("abcde fghij ", 20)
	chunks, _ := chunker.Chunk("doc-1", []Page{{Number: 1, Text: text}})
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		// 後続チャンクは前チャンクの末尾側から始まる
		assert.Less(t, chunks[i].StartChar, chunks[i-1].EndChar)
		assert.Greater(t, chunks[i].StartChar, chunks[i-1].StartChar)
	}
}

func TestChunkerOffsetsIndexCollapsedPageText(t *testing.T) {
	chunker, err := NewChunker(50, 10, nil)
	require.NoError(t, err)

	raw := "  The quick\n\tbrown fox.   " + strings.Repeat("Jumps over the lazy dog. ", 8)
	chunks, _ := chunker.Chunk("doc-1", []Page{{Number: 1, Text: raw}})
	require.Greater(t, len(chunks), 1)

	// オフセットは正規化後のページテキストに対するrune位置
	collapsed := []rune(CollapseWhitespace(raw))
	for _, chunk := range chunks {
		require.GreaterOrEqual(t, chunk.StartChar, 0)
		require.LessOrEqual(t, chunk.EndChar, len(collapsed))
		assert.Equal(t, string(collapsed[chunk.StartChar:chunk.EndChar]), chunk.Content)
	}
}

func TestChunkerCountsTokens(t *testing.T) {
	chunker, err := NewChunker(1000, 200, fieldsCounter{})
	require.NoError(t, err)

	chunks, _ := chunker.Chunk("doc-1", []Page{{Number: 1, Text: "one two three"}})
	require.Len(t, chunks, 1)
	assert.Equal(t, 3, chunks[0].TokenCount)
}

func TestNewChunkerRejectsOverlapLargerThanSize(t *testing.T) {
	_, err := NewChunker(100, 100, nil)
	require.Error(t, err)
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\tb   c  "))
	assert.Equal(t, "", CollapseWhitespace("   "))
}

type fieldsCounter struct{}

func (fieldsCounter) Count(text string) int {
	return len(strings.Fields(text))
}

package search

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/core/document"
)

type stubDocumentGetter struct {
	docs  map[string]*document.Document
	calls int
}

func (g *stubDocumentGetter) GetDocument(_ context.Context, id string) (mo.Option[*document.Document], error) {
	g.calls++
	if doc, ok := g.docs[id]; ok {
		return mo.Some(doc), nil
	}
	return mo.None[*document.Document](), nil
}

func TestResolver_Resolve(t *testing.T) {
	getter := &stubDocumentGetter{docs: map[string]*document.Document{
		"doc1": {ID: "doc1", Title: "User Manual"},
	}}
	resolver := NewResolver(getter)

	results := []*ScoredResult{
		{ChunkID: uuid.New(), DocumentID: "doc1", Ordinal: 2, Page: 5, Content: "first  passage\n text", SemanticScore: 0.8, TFIDFScore: 0.4, KeywordScore: 0.5, FusedScore: 0.9},
		{ChunkID: uuid.New(), DocumentID: "doc1", Ordinal: 3, Page: 5, Content: "second passage", FusedScore: 0.8},
	}

	citations, err := resolver.Resolve(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, citations, 2)

	assert.Equal(t, "User Manual", citations[0].DocumentTitle)
	assert.Equal(t, 5, citations[0].Page)
	assert.Equal(t, 2, citations[0].Ordinal)
	assert.Equal(t, "first passage text", citations[0].Preview)
	assert.Equal(t, 0.8, citations[0].SemanticScore)
	assert.Equal(t, 0.4, citations[0].TFIDFScore)
	assert.Equal(t, 0.5, citations[0].KeywordScore)
	assert.Equal(t, 0.9, citations[0].Score)

	// 順序は入力順のまま
	assert.Equal(t, 3, citations[1].Ordinal)

	// 同一ドキュメントの参照はキャッシュされる
	assert.Equal(t, 1, getter.calls)
}

func TestResolver_ResolveDropsDeletedDocuments(t *testing.T) {
	getter := &stubDocumentGetter{docs: map[string]*document.Document{
		"doc1": {ID: "doc1", Title: "Kept"},
	}}
	resolver := NewResolver(getter)

	results := []*ScoredResult{
		{ChunkID: uuid.New(), DocumentID: "gone", Ordinal: 0, Content: "dangling"},
		{ChunkID: uuid.New(), DocumentID: "doc1", Ordinal: 1, Content: "kept"},
	}

	citations, err := resolver.Resolve(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, citations, 1)
	assert.Equal(t, "doc1", citations[0].DocumentID)
}

func TestPreview(t *testing.T) {
	t.Run("short content is returned collapsed", func(t *testing.T) {
		assert.Equal(t, "a b c", Preview("a\n  b\tc"))
	})

	t.Run("long content is truncated", func(t *testing.T) {
		long := strings.Repeat("あ", PreviewLength+50)
		preview := Preview(long)
		assert.Equal(t, PreviewLength+3, len([]rune(preview)))
		assert.True(t, strings.HasSuffix(preview, "..."))
	})
}

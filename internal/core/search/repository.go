package search

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/document"
	"github.com/docquery/docquery/internal/core/index"
)

// VectorSearcher はベクトル近傍検索のポート
type VectorSearcher interface {
	// SearchSimilar はクエリベクトルに近いチャンクをスコア降順で返す。
	// modelが一致するEmbeddingのみを対象にする。
	// documentIDsがnilでなければその範囲内に限定する。
	SearchSimilar(ctx context.Context, queryVector []float32, model string, documentIDs []string, limit int) ([]*VectorHit, error)
}

// LexicalScorer は字句スコアリングのポート
type LexicalScorer interface {
	ScoreChunks(query string, chunkIDs []uuid.UUID) []index.ChunkScores
}

// Embedder はクエリのEmbedding生成インターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// DocumentGetter は引用解決に使うドキュメント参照のポート
type DocumentGetter interface {
	GetDocument(ctx context.Context, id string) (mo.Option[*document.Document], error)
}

package search

import (
	"github.com/google/uuid"
)

// ScoredResult は融合スコア付きの検索結果を表す
type ScoredResult struct {
	ChunkID    uuid.UUID `json:"chunkID"`
	DocumentID string    `json:"documentID"`
	Ordinal    int       `json:"ordinal"`
	Page       int       `json:"page"`
	Content    string    `json:"content"`

	// 各シグナルの内訳と融合後のスコア
	SemanticScore float64 `json:"semanticScore"`
	TFIDFScore    float64 `json:"tfidfScore"`
	KeywordScore  float64 `json:"keywordScore"`
	FusedScore    float64 `json:"fusedScore"`
}

// Citation は回答の根拠として提示する引用を表す。
// スコアは融合値に加えて各シグナルの内訳も保持する。
type Citation struct {
	DocumentID    string  `json:"documentID"`
	DocumentTitle string  `json:"documentTitle"`
	Page          int     `json:"page"`
	Ordinal       int     `json:"ordinal"`
	Preview       string  `json:"preview"`
	SemanticScore float64 `json:"semanticScore"`
	TFIDFScore    float64 `json:"tfidfScore"`
	KeywordScore  float64 `json:"keywordScore"`
	Score         float64 `json:"score"`
}

// VectorHit はベクトル近傍検索の1件を表す
type VectorHit struct {
	ChunkID    uuid.UUID
	DocumentID string
	Ordinal    int
	Page       int
	Content    string
	Score      float64 // コサイン類似度
}

// Weights は各シグナルの融合重み
type Weights struct {
	Semantic float64
	TFIDF    float64
	Keyword  float64
}

// DefaultWeights は既定の融合重みを返す
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, TFIDF: 0.3, Keyword: 0.1}
}

// SearchParams は検索パラメータを表す
type SearchParams struct {
	Query string

	// DocumentIDs は検索範囲。nilは全ドキュメント、空スライスは空集合を意味する。
	DocumentIDs []string

	Limit int
}

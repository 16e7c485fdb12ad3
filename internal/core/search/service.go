package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"
)

const (
	// DefaultCandidatePool は融合スコアリングの対象にするベクトル近傍候補数
	DefaultCandidatePool = 50

	// DefaultLimit は返却する結果数の上限
	DefaultLimit = 10
)

// Service はハイブリッド検索のビジネスロジックを提供する
type Service struct {
	vectors       VectorSearcher
	lexical       LexicalScorer
	embedder      Embedder
	weights       Weights
	candidatePool int
	logger        *slog.Logger
}

// ServiceOption はServiceの動作を調整する
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithWeights は融合重みを設定する
func WithWeights(w Weights) ServiceOption {
	return func(s *Service) {
		s.weights = w
	}
}

// WithCandidatePool はベクトル候補数を設定する
func WithCandidatePool(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.candidatePool = n
		}
	}
}

// NewService は新しいServiceを作成する
func NewService(vectors VectorSearcher, lexical LexicalScorer, embedder Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		vectors:       vectors,
		lexical:       lexical,
		embedder:      embedder,
		weights:       DefaultWeights(),
		candidatePool: DefaultCandidatePool,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search はベクトル検索と字句スコアを融合して結果を返す。
// 結果は融合スコア降順、同点時は (documentID, ordinal) 昇順で安定に並ぶ。
func (s *Service) Search(ctx context.Context, params SearchParams) ([]*ScoredResult, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	// 空の検索範囲が明示された場合は検索せず空を返す
	if params.DocumentIDs != nil && len(params.DocumentIDs) == 0 {
		return []*ScoredResult{}, nil
	}

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	queryVector, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.vectors.SearchSimilar(ctx, queryVector, s.embedder.ModelName(), params.DocumentIDs, s.candidatePool)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return []*ScoredResult{}, nil
	}

	results := s.fuse(params.Query, hits)

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Ordinal < b.Ordinal
	})

	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug("hybrid search completed",
		slog.String("query", params.Query),
		slog.Int("candidates", len(hits)),
		slog.Int("results", len(results)),
	)

	return results, nil
}

// fuse は候補ごとに字句スコアを取得し、重み付き和で融合スコアを計算する
func (s *Service) fuse(query string, hits []*VectorHit) []*ScoredResult {
	chunkIDs := make([]uuid.UUID, len(hits))
	for i, hit := range hits {
		chunkIDs[i] = hit.ChunkID
	}
	lexScores := s.lexical.ScoreChunks(query, chunkIDs)

	results := make([]*ScoredResult, len(hits))
	for i, hit := range hits {
		lex := lexScores[i]
		// コサイン類似度は [-1,1] を取りうるため、融合前に [0,1] へ丸める
		semantic := clamp01(hit.Score)
		results[i] = &ScoredResult{
			ChunkID:       hit.ChunkID,
			DocumentID:    hit.DocumentID,
			Ordinal:       hit.Ordinal,
			Page:          hit.Page,
			Content:       hit.Content,
			SemanticScore: semantic,
			TFIDFScore:    lex.TFIDF,
			KeywordScore:  lex.Keyword,
			FusedScore: s.weights.Semantic*semantic +
				s.weights.TFIDF*lex.TFIDF +
				s.weights.Keyword*lex.Keyword,
		}
	}
	return results
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

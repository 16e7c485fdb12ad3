package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docquery/docquery/internal/core/document"
)

// PreviewLength は引用プレビューの最大文字数
const PreviewLength = 200

// Resolver は検索結果を提示用の引用に解決する
type Resolver struct {
	docs   DocumentGetter
	logger *slog.Logger
}

// ResolverOption はResolverの動作を調整する
type ResolverOption func(*Resolver)

// WithResolverLogger はロガーを設定する
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver は新しいResolverを作成する
func NewResolver(docs DocumentGetter, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		docs:   docs,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve は検索結果に出典情報を付けて引用に変換する。
// 参照先のドキュメントが既に削除されている結果は黙って除外する。
// 引用の順序は入力の順序を保つ。
func (r *Resolver) Resolve(ctx context.Context, results []*ScoredResult) ([]Citation, error) {
	// 同一ドキュメントを何度も引く場合が多いため呼び出し内でキャッシュする
	titles := make(map[string]*string)

	citations := make([]Citation, 0, len(results))
	for _, result := range results {
		title, cached := titles[result.DocumentID]
		if !cached {
			title = nil
			opt, err := r.docs.GetDocument(ctx, result.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve document %s: %w", result.DocumentID, err)
			}
			if doc, ok := opt.Get(); ok {
				title = &doc.Title
			}
			titles[result.DocumentID] = title
		}
		if title == nil {
			r.logger.Warn("dropping citation for deleted document",
				slog.String("documentID", result.DocumentID),
			)
			continue
		}

		citations = append(citations, Citation{
			DocumentID:    result.DocumentID,
			DocumentTitle: *title,
			Page:          result.Page,
			Ordinal:       result.Ordinal,
			Preview:       Preview(result.Content),
			SemanticScore: result.SemanticScore,
			TFIDFScore:    result.TFIDFScore,
			KeywordScore:  result.KeywordScore,
			Score:         result.FusedScore,
		})
	}
	return citations, nil
}

// Preview は引用表示用にテキストを正規化して切り詰める
func Preview(content string) string {
	collapsed := document.CollapseWhitespace(content)
	runes := []rune(collapsed)
	if len(runes) <= PreviewLength {
		return collapsed
	}
	return string(runes[:PreviewLength]) + "..."
}

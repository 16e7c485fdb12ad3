package document

import (
	"context"
	"time"

	"github.com/samber/mo"
)

// Repository はドキュメント集約の永続化ポート。
// テスト時のモック用に消費者側で定義する。
type Repository interface {
	// GetDocument はIDでドキュメントを取得する
	GetDocument(ctx context.Context, id string) (mo.Option[*Document], error)

	// ListDocuments は全ドキュメントを取り込み日時の降順で返す
	ListDocuments(ctx context.Context) ([]*Document, error)

	// CreateDocument はドキュメント・チャンク・Embeddingを単一トランザクションで保存する。
	// チャンクとベクトルは同数でなければならず、途中失敗時はすべてロールバックされる
	// （孤児チャンク・孤児ベクトルを残さない）。
	CreateDocument(ctx context.Context, doc *Document, chunks []*Chunk, vectors [][]float32, embeddingModel string) error

	// DeleteDocument はドキュメントと派生データ（チャンク・Embedding）を
	// 単一トランザクションで削除する。存在しない場合は ErrNotFound を返す。
	DeleteDocument(ctx context.Context, id string) error

	// ListChunksByDocument はドキュメントのチャンクをOrdinal昇順で返す
	ListChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)

	// ListAllChunks は全ドキュメントのチャンクを返す（字句インデックスの再構築用）
	ListAllChunks(ctx context.Context) ([]*Chunk, error)

	// UpdateSummary はキャッシュ済み要約を更新する
	UpdateSummary(ctx context.Context, id string, summary string, generatedAt time.Time) error
}

// Embedder はテキストのEmbedding生成ポート
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingをまとめて生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName はEmbeddingモデルの識別子を返す。
	// ベクトルにはこの識別子が刻印され、検索時のモデル不一致を検出する。
	ModelName() string

	// MaxBatchSize は1回のAPI呼び出しで処理できる最大テキスト数を返す
	MaxBatchSize() int
}

// LexicalIndexer は取り込み・削除に追随するインメモリ字句インデックスのポート
type LexicalIndexer interface {
	IndexDocument(documentID string, chunks []*Chunk)
	RemoveDocument(documentID string)
}

// Generator は要約生成に使うテキスト生成ポート
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

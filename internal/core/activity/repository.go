package activity

import (
	"context"

	"github.com/docquery/docquery/internal/core/document"
)

// Repository はお気に入りと検索履歴の永続化ポート
type Repository interface {
	// AddFavorite はお気に入りを登録する。登録済みなら何もしない。
	AddFavorite(ctx context.Context, callerID, documentID string) error

	// RemoveFavorite はお気に入りを解除する。未登録なら何もしない。
	RemoveFavorite(ctx context.Context, callerID, documentID string) error

	// ListFavoriteDocuments はお気に入り登録済みのドキュメントを登録日時の降順で返す
	ListFavoriteDocuments(ctx context.Context, callerID string) ([]*document.Document, error)

	// IsFavorite はお気に入り登録の有無を返す
	IsFavorite(ctx context.Context, callerID, documentID string) (bool, error)

	// RecordSearch は検索履歴を1件追加する
	RecordSearch(ctx context.Context, record *SearchRecord) error

	// ListSearchHistory は検索履歴を新しい順に最大limit件返す
	ListSearchHistory(ctx context.Context, callerID string, limit int) ([]*SearchRecord, error)

	// ClearSearchHistory は呼び出し元の検索履歴を全件削除する
	ClearSearchHistory(ctx context.Context, callerID string) error
}

package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/search"
)

// Repository は会話の永続化を担うインターフェース
type Repository interface {
	// GetConversation は会話を取得する
	GetConversation(ctx context.Context, id uuid.UUID) (mo.Option[*Conversation], error)

	// ListConversations は呼び出し元の会話を更新日時の降順で返す
	ListConversations(ctx context.Context, callerID string) ([]*Conversation, error)

	// CreateConversation は新しい会話を作成する
	CreateConversation(ctx context.Context, conv *Conversation) error

	// DeleteConversation は会話とそのメッセージを削除する
	DeleteConversation(ctx context.Context, id uuid.UUID) error

	// ListMessages は会話の全メッセージを時系列順で返す
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)

	// ListRecentMessages は会話の直近limit件を時系列順で返す
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Message, error)

	// AppendTurn はユーザー発話とアシスタント応答を1トランザクションで追記する。
	// 同一会話への同時追記は直列化される。
	AppendTurn(ctx context.Context, conversationID uuid.UUID, userMsg, assistantMsg *Message) error
}

// Searcher はハイブリッド検索のポート
type Searcher interface {
	Search(ctx context.Context, params search.SearchParams) ([]*search.ScoredResult, error)
}

// CitationResolver は検索結果を引用に解決するポート
type CitationResolver interface {
	Resolve(ctx context.Context, results []*search.ScoredResult) ([]search.Citation, error)
}

// Generator は回答生成のインターフェース
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

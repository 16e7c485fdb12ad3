package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/search"
)

// Role はメッセージの発話者を表す
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnState は1ターンの処理状態を表す。
// 遷移は received → retrieving → grounding → generating → completed で、
// どの処理状態からも failed に落ちうる。
type TurnState string

const (
	TurnReceived   TurnState = "received"
	TurnRetrieving TurnState = "retrieving"
	TurnGrounding  TurnState = "grounding"
	TurnGenerating TurnState = "generating"
	TurnCompleted  TurnState = "completed"
	TurnFailed     TurnState = "failed"
)

var turnTransitions = map[TurnState][]TurnState{
	TurnReceived:   {TurnRetrieving, TurnFailed},
	TurnRetrieving: {TurnGrounding, TurnFailed},
	TurnGrounding:  {TurnGenerating, TurnFailed},
	TurnGenerating: {TurnCompleted, TurnFailed},
}

// CanTransition は状態遷移が許可されているかを返す
func (s TurnState) CanTransition(next TurnState) bool {
	for _, allowed := range turnTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal は終端状態かどうかを返す
func (s TurnState) IsTerminal() bool {
	return s == TurnCompleted || s == TurnFailed
}

// Conversation は一連の質問応答のまとまりを表す
type Conversation struct {
	ID          uuid.UUID `json:"id"`
	CallerID    string    `json:"callerID"`
	Title       string    `json:"title"`
	DocumentIDs []string  `json:"documentIDs,omitempty"` // 検索範囲。nilは全ドキュメント。
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message は会話内の1メッセージを表す
type Message struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID uuid.UUID         `json:"conversationID"`
	Role           Role              `json:"role"`
	Content        string            `json:"content"`
	Citations      []search.Citation `json:"citations,omitempty"` // assistantのみ
	CreatedAt      time.Time         `json:"createdAt"`
}

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	// CallerID が空の場合は匿名扱いとなり、会話は永続化されない
	CallerID string

	// ConversationID が指定された場合は既存会話の続きとして処理する
	ConversationID mo.Option[uuid.UUID]

	Query string

	// DocumentIDs は検索範囲。nilは会話の範囲（新規会話なら全ドキュメント）を使う。
	DocumentIDs []string
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	ConversationID mo.Option[uuid.UUID] `json:"conversationID,omitempty"`
	Answer         string               `json:"answer"`
	Citations      []search.Citation    `json:"citations"`

	// State は最終的なターン状態。回答生成に失敗して代替文を返した場合も
	// ターンとしては completed になり、failed には落とさない。
	// その場合は Degraded で区別する。
	State TurnState `json:"state"`

	// Degraded は回答生成に失敗して代替文を返したことを示す
	Degraded bool `json:"degraded,omitempty"`
}

// GroundedPassage はプロンプトに埋め込む引用付きの本文
type GroundedPassage struct {
	Citation search.Citation
	Content  string
}

package chat

import (
	"fmt"
	"strings"
)

// DefaultPromptTokenBudget はプロンプト全体のトークン上限の既定値
const DefaultPromptTokenBudget = 8000

// TokenCounter はテキストのトークン数を数えるインターフェース
type TokenCounter interface {
	Count(text string) int
}

// PromptBuilder は出典付きの回答生成プロンプトを構築する
type PromptBuilder struct {
	counter TokenCounter
	budget  int
}

// NewPromptBuilder は新しいPromptBuilderを作成する
func NewPromptBuilder(counter TokenCounter, budget int) *PromptBuilder {
	if budget <= 0 {
		budget = DefaultPromptTokenBudget
	}
	return &PromptBuilder{counter: counter, budget: budget}
}

// Build は質問・会話履歴・根拠本文からプロンプトを組み立てる。
// 出典の番号（Source N）は引用の並び順と一致させる。
// トークン上限を超える場合は古い履歴から順に落とす。
func (b *PromptBuilder) Build(query string, history []*Message, passages []GroundedPassage) string {
	base := b.render(query, nil, passages)
	baseTokens := b.counter.Count(base)

	// 履歴は新しい側から詰められるだけ詰める
	kept := make([]*Message, 0, len(history))
	remaining := b.budget - baseTokens
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.counter.Count(history[i].Content)
		if cost > remaining {
			break
		}
		remaining -= cost
		kept = append(kept, history[i])
	}
	// 時系列順に戻す
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	return b.render(query, kept, passages)
}

func (b *PromptBuilder) render(query string, history []*Message, passages []GroundedPassage) string {
	var sb strings.Builder

	sb.WriteString("あなたは登録済みドキュメントに基づいて回答するアシスタントです。\n")
	sb.WriteString("以下の出典情報のみを根拠として、ユーザーの質問に正確かつ簡潔に回答してください。\n\n")

	sb.WriteString("## 回答のガイドライン\n")
	sb.WriteString("- 出典に含まれる情報のみを使用して回答してください\n")
	sb.WriteString("- 根拠にした出典を [Source N] の形式で文中に明示してください\n")
	sb.WriteString("- 出典から答えられない場合は、推測せずにその旨を述べてください\n\n")

	sb.WriteString("## 出典\n")
	if len(passages) > 0 {
		for i, passage := range passages {
			sb.WriteString(fmt.Sprintf("### [Source %d] %s (p.%d)\n",
				i+1, passage.Citation.DocumentTitle, passage.Citation.Page))
			sb.WriteString(passage.Content)
			sb.WriteString("\n\n")
		}
	} else {
		sb.WriteString("(該当する出典はありません)\n\n")
	}

	if len(history) > 0 {
		sb.WriteString("## これまでの会話\n")
		for _, msg := range history {
			switch msg.Role {
			case RoleUser:
				sb.WriteString("ユーザー: ")
			case RoleAssistant:
				sb.WriteString("アシスタント: ")
			}
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## ユーザーの質問\n")
	sb.WriteString(query)
	sb.WriteString("\n\n## 回答\n")

	return sb.String()
}

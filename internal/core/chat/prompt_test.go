package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docquery/docquery/internal/core/search"
)

func TestPromptBuilder_SourceNumbersFollowCitationOrder(t *testing.T) {
	builder := NewPromptBuilder(wordCounter{}, 0)

	passages := []GroundedPassage{
		{Citation: search.Citation{DocumentTitle: "First Doc", Page: 3}, Content: "first content"},
		{Citation: search.Citation{DocumentTitle: "Second Doc", Page: 7}, Content: "second content"},
	}

	prompt := builder.Build("question", nil, passages)

	first := strings.Index(prompt, "[Source 1] First Doc (p.3)")
	second := strings.Index(prompt, "[Source 2] Second Doc (p.7)")
	assert.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
	assert.Contains(t, prompt, "first content")
	assert.Contains(t, prompt, "second content")
}

func TestPromptBuilder_NoPassages(t *testing.T) {
	builder := NewPromptBuilder(wordCounter{}, 0)

	prompt := builder.Build("question", nil, nil)
	assert.Contains(t, prompt, "該当する出典はありません")
	assert.Contains(t, prompt, "question")
}

func TestPromptBuilder_DropsOldestHistoryOverBudget(t *testing.T) {
	// 出典や定型文を除いた残り予算が小さくなるよう上限を絞る
	builder := NewPromptBuilder(wordCounter{}, 120)

	old := &Message{Role: RoleUser, Content: strings.Repeat("old ", 200)}
	recent := &Message{Role: RoleAssistant, Content: "recent reply"}

	prompt := builder.Build("question", []*Message{old, recent}, nil)

	assert.NotContains(t, prompt, "old old")
	assert.Contains(t, prompt, "recent reply")
}

func TestPromptBuilder_KeepsHistoryWithinBudget(t *testing.T) {
	builder := NewPromptBuilder(wordCounter{}, 0)

	history := []*Message{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
	}

	prompt := builder.Build("second question", history, nil)

	assert.Contains(t, prompt, "ユーザー: first question")
	assert.Contains(t, prompt, "アシスタント: first answer")
}

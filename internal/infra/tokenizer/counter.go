// Package tokenizer はLLM向けのトークン数カウントを提供する
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding はOpenAI系モデルで使うエンコーディング名
const DefaultEncoding = "cl100k_base"

// Counter はtiktokenベースのトークンカウンタ
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は新しい Counter を作成する
func NewCounter() (*Counter, error) {
	encoding, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding: %w", err)
	}
	return &Counter{encoding: encoding}, nil
}

// Count はテキストのトークン数を返す
func (c *Counter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// ApproxCounter は辞書のダウンロードができない環境向けの概算カウンタ。
// 空白区切りの語数で代用する。
type ApproxCounter struct{}

// Count はテキストの概算トークン数を返す
func (ApproxCounter) Count(text string) int {
	return len(strings.Fields(text))
}

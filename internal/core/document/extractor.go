package document

import "context"

// Extractor はPDFバイト列からページ別テキストを抽出するポート。
// テキストを持たないページは Text を空文字列として返し、エラーにはしない。
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Extracted, error)
}

// TokenCounter はテキストのトークン数を数えるポート
type TokenCounter interface {
	Count(text string) int
}

package document

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	// DefaultChunkSize はチャンクの最大文字数
	DefaultChunkSize = 1000
	// DefaultChunkOverlap は同一ページ内での前チャンクとのオーバーラップ文字数
	DefaultChunkOverlap = 200
)

// Chunker はページ別テキストをオーバーラップ付きのチャンク列に分割する。
// チャンクがページ境界をまたぐことはなく、ページ先頭のチャンクに
// 前ページからの強制オーバーラップは発生しない。
// 同一の入力と設定に対して常に同一のチャンク境界を生成する。
type Chunker struct {
	maxChars int
	overlap  int
	counter  TokenCounter
}

// NewChunker は新しいChunkerを作成する。counter は nil でもよい。
func NewChunker(maxChars, overlap int, counter TokenCounter) (*Chunker, error) {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= maxChars {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, maxChars)
	}
	return &Chunker{maxChars: maxChars, overlap: overlap, counter: counter}, nil
}

// Chunk はドキュメント全ページをチャンク化する。
// テキストのないページはチャンクを生成せず、ページ番号を警告として返す。
func (c *Chunker) Chunk(documentID string, pages []Page) ([]*Chunk, []string) {
	var chunks []*Chunk
	var warnings []string

	ordinal := 0
	for _, page := range pages {
		text := CollapseWhitespace(page.Text)
		if text == "" {
			warnings = append(warnings, fmt.Sprintf("page %d has no extractable text", page.Number))
			continue
		}

		for _, span := range c.splitPage([]rune(text)) {
			content := string(span.text)
			chunk := &Chunk{
				ID:         uuid.New(),
				DocumentID: documentID,
				Ordinal:    ordinal,
				Page:       page.Number,
				StartChar:  span.start,
				EndChar:    span.end,
				Content:    content,
			}
			if c.counter != nil {
				chunk.TokenCount = c.counter.Count(content)
			}
			chunks = append(chunks, chunk)
			ordinal++
		}
	}

	return chunks, warnings
}

// pageSpan はページ内の1チャンク分の文字範囲
type pageSpan struct {
	start int
	end   int
	text  []rune
}

// splitPage は1ページ分のテキストをオーバーラップ付きで分割する。
// 分割位置は可能な限り文境界、次いで語境界に合わせる。
func (c *Chunker) splitPage(runes []rune) []pageSpan {
	var spans []pageSpan

	start := 0
	for start < len(runes) {
		end := start + c.maxChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = start + c.cutPoint(runes[start:end])
		}

		spans = append(spans, pageSpan{start: start, end: end, text: runes[start:end]})

		if end == len(runes) {
			break
		}

		next := end - c.overlap
		// オーバーラップで前進しなくなる場合は重なりなしで続行する
		if next <= start {
			next = end
		}
		start = next
	}

	return spans
}

// cutPoint はウィンドウ内の分割位置を返す。後半に文末があればそこで、
// なければ最後の空白で切り、どちらも無ければウィンドウ全体を使う。
func (c *Chunker) cutPoint(window []rune) int {
	minCut := len(window) / 2

	lastSentence := -1
	lastSpace := -1
	for i, r := range window {
		switch {
		case isSentenceEnd(r):
			// 文末記号の直後で切る
			if i+1 > minCut {
				lastSentence = i + 1
			}
		case unicode.IsSpace(r):
			if i > minCut {
				lastSpace = i
			}
		}
	}

	if lastSentence > 0 {
		return lastSentence
	}
	if lastSpace > 0 {
		return lastSpace
	}
	return len(window)
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// CollapseWhitespace は連続する空白を1つのスペースに正規化する。
// チャンク境界と引用プレビューの双方で同じ正規化を使う。
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

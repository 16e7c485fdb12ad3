package document

import (
	"time"

	"github.com/google/uuid"
)

// Document は取り込み済みのPDFドキュメントを表す。
// IDはファイル内容のMD5ハッシュで、同一内容の二重取り込みを防ぐ。
// 取り込み後は要約の再生成と削除を除いて不変。
type Document struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Filename           string     `json:"filename"`
	PageCount          int        `json:"pageCount"`
	Summary            *string    `json:"summary,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summaryGeneratedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// Chunk はドキュメントのテキストを分割した検索の最小単位を表す。
// 同一ドキュメント内で Ordinal は連続かつ単調増加、Page は非減少となる。
// 取り込み時に一度だけ作成され、ドキュメント削除時にのみ破棄される。
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID string    `json:"documentID"`
	Ordinal    int       `json:"ordinal"`
	Page       int       `json:"page"`
	// StartChar / EndChar は CollapseWhitespace 適用後のページテキストに対する
	// rune単位のオフセット。抽出直後の生テキストの位置ではないため、
	// 範囲を参照する側も同じ正規化を通すこと。
	StartChar int `json:"startChar"`
	EndChar   int `json:"endChar"`
	Content    string    `json:"content"`
	TokenCount int       `json:"tokenCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Page は抽出されたテキストの1ページ分を表す。
// Text が空のページ（スキャン画像など）は取り込みで警告となるがエラーにはならない。
type Page struct {
	Number int
	Text   string
}

// Extracted はPDFから抽出されたページ別テキストとメタデータを表す
type Extracted struct {
	Title string
	Pages []Page
}

// IngestReport は1ドキュメントの取り込み結果を表す。
// バッチ取り込みではドキュメントごとに独立して報告され、
// 1件の失敗が他のドキュメントの取り込みを中断することはない。
type IngestReport struct {
	DocumentID string
	Filename   string
	PageCount  int
	ChunkCount int
	Warnings   []string
	Err        error
}

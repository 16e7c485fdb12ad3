// Package pdftext はPDFからページ単位のテキストを取り出す
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/docquery/docquery/internal/core/document"
)

// Extractor はPDFのテキスト抽出実装
type Extractor struct{}

// NewExtractor は新しい Extractor を作成する
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract はPDFバイト列を解析してページごとのテキストとタイトルを返す。
// 壊れたPDFはエラーを返す。テキストの無いページは空文字列のまま含める。
func (e *Extractor) Extract(ctx context.Context, data []byte) (extracted *document.Extracted, err error) {
	// パーサーは不正な入力でpanicすることがある
	defer func() {
		if r := recover(); r != nil {
			extracted = nil
			err = fmt.Errorf("%w: %v", document.ErrInvalidFile, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrInvalidFile, err)
	}

	numPages := reader.NumPage()
	pages := make([]document.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			content, err := page.GetPlainText(nil)
			if err == nil {
				text = content
			}
		}
		pages = append(pages, document.Page{Number: i, Text: text})
	}

	return &document.Extracted{
		Title: metadataTitle(reader),
		Pages: pages,
	}, nil
}

// metadataTitle はPDFメタデータからタイトルを取り出す。無ければ空文字列。
func metadataTitle(reader *pdf.Reader) string {
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return ""
	}
	title := info.Key("Title")
	if title.IsNull() {
		return ""
	}
	return strings.TrimSpace(title.Text())
}

package document

import "errors"

var (
	// ErrNotFound はドキュメントが存在しない場合のエラー
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate は同一内容のドキュメントが既に取り込まれている場合のエラー
	ErrDuplicate = errors.New("document already ingested")

	// ErrInvalidFile はPDFとして受理できないファイルの場合のエラー
	ErrInvalidFile = errors.New("invalid document file")

	// ErrNoText は全ページからテキストが抽出できなかった場合のエラー
	ErrNoText = errors.New("no extractable text in document")
)

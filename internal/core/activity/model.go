// Package activity はドキュメントのお気に入りと検索履歴を扱う
package activity

import (
	"time"

	"github.com/google/uuid"
)

// Favorite は呼び出し元によるドキュメントのお気に入り登録を表す
type Favorite struct {
	CallerID   string    `json:"callerID"`
	DocumentID string    `json:"documentID"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SearchRecord は検索履歴の1件を表す
type SearchRecord struct {
	ID           uuid.UUID `json:"id"`
	CallerID     string    `json:"callerID"`
	Query        string    `json:"query"`
	ResultsCount int       `json:"resultsCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

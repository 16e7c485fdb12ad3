package activity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/document"
)

// DefaultHistoryLimit は検索履歴取得時の既定の件数
const DefaultHistoryLimit = 50

// DocumentGetter はお気に入り対象の存在確認に使うポート
type DocumentGetter interface {
	GetDocument(ctx context.Context, id string) (mo.Option[*document.Document], error)
}

// Service はお気に入りと検索履歴のビジネスロジックを提供する
type Service struct {
	repo   Repository
	docs   DocumentGetter
	logger *slog.Logger
}

// ServiceOption はServiceの動作を調整する
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, docs DocumentGetter, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		docs:   docs,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFavorite はドキュメントをお気に入りに登録する。
// 存在しないドキュメントは document.ErrNotFound を返す。
func (s *Service) AddFavorite(ctx context.Context, callerID, documentID string) error {
	if callerID == "" {
		return fmt.Errorf("callerID is required")
	}

	opt, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to check document: %w", err)
	}
	if opt.IsAbsent() {
		return document.ErrNotFound
	}

	if err := s.repo.AddFavorite(ctx, callerID, documentID); err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	s.logger.Info("favorite added",
		slog.String("callerID", callerID),
		slog.String("documentID", documentID),
	)
	return nil
}

// RemoveFavorite はお気に入りを解除する
func (s *Service) RemoveFavorite(ctx context.Context, callerID, documentID string) error {
	if callerID == "" {
		return fmt.Errorf("callerID is required")
	}
	if err := s.repo.RemoveFavorite(ctx, callerID, documentID); err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// ListFavorites はお気に入り登録済みのドキュメントを返す
func (s *Service) ListFavorites(ctx context.Context, callerID string) ([]*document.Document, error) {
	if callerID == "" {
		return []*document.Document{}, nil
	}
	docs, err := s.repo.ListFavoriteDocuments(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return docs, nil
}

// RecordSearch は検索履歴を記録する。匿名呼び出しは記録しない。
func (s *Service) RecordSearch(ctx context.Context, callerID, query string, resultsCount int) error {
	if callerID == "" || query == "" {
		return nil
	}
	record := &SearchRecord{
		ID:           uuid.New(),
		CallerID:     callerID,
		Query:        query,
		ResultsCount: resultsCount,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.RecordSearch(ctx, record); err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

// ListSearchHistory は検索履歴を新しい順に返す
func (s *Service) ListSearchHistory(ctx context.Context, callerID string, limit int) ([]*SearchRecord, error) {
	if callerID == "" {
		return []*SearchRecord{}, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := s.repo.ListSearchHistory(ctx, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	return records, nil
}

// ClearSearchHistory は検索履歴を全件削除する
func (s *Service) ClearSearchHistory(ctx context.Context, callerID string) error {
	if callerID == "" {
		return nil
	}
	if err := s.repo.ClearSearchHistory(ctx, callerID); err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	return nil
}

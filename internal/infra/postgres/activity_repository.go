package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docquery/docquery/internal/core/activity"
	"github.com/docquery/docquery/internal/core/document"
)

// ActivityRepository は activity.Repository を実装する
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository は新しい ActivityRepository を作成します
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{pool: db.Pool}
}

var _ activity.Repository = (*ActivityRepository)(nil)

func (r *ActivityRepository) AddFavorite(ctx context.Context, callerID, documentID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO favorites (caller_id, document_id)
		VALUES ($1, $2)
		ON CONFLICT (caller_id, document_id) DO NOTHING
	`, callerID, documentID)
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

func (r *ActivityRepository) RemoveFavorite(ctx context.Context, callerID, documentID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM favorites WHERE caller_id = $1 AND document_id = $2
	`, callerID, documentID)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

func (r *ActivityRepository) ListFavoriteDocuments(ctx context.Context, callerID string) ([]*document.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.title, d.filename, d.page_count, d.summary, d.summary_generated_at, d.created_at
		FROM favorites f
		JOIN documents d ON d.id = f.document_id
		WHERE f.caller_id = $1
		ORDER BY f.created_at DESC
	`, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (r *ActivityRepository) IsFavorite(ctx context.Context, callerID, documentID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM favorites WHERE caller_id = $1 AND document_id = $2)
	`, callerID, documentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	return exists, nil
}

func (r *ActivityRepository) RecordSearch(ctx context.Context, record *activity.SearchRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO search_history (id, caller_id, query, results_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		UUIDToPgtype(record.ID),
		record.CallerID,
		record.Query,
		record.ResultsCount,
		TimeToPgtype(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

func (r *ActivityRepository) ListSearchHistory(ctx context.Context, callerID string, limit int) ([]*activity.SearchRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, caller_id, query, results_count, created_at
		FROM search_history
		WHERE caller_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	defer rows.Close()

	records := make([]*activity.SearchRecord, 0)
	for rows.Next() {
		var record activity.SearchRecord
		if err := rows.Scan(&record.ID, &record.CallerID, &record.Query, &record.ResultsCount, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search record: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search history: %w", err)
	}
	return records, nil
}

func (r *ActivityRepository) ClearSearchHistory(ctx context.Context, callerID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM search_history WHERE caller_id = $1`, callerID)
	if err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/document"
	"github.com/docquery/docquery/internal/core/search"
)

// DocumentRepository は document.Repository と search.VectorSearcher を実装する
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository は新しい DocumentRepository を作成します
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{pool: db.Pool}
}

// コンパイル時の型チェック
var (
	_ document.Repository   = (*DocumentRepository)(nil)
	_ search.VectorSearcher = (*DocumentRepository)(nil)
	_ search.DocumentGetter = (*DocumentRepository)(nil)
)

func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (mo.Option[*document.Document], error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, filename, page_count, summary, summary_generated_at, created_at
		FROM documents
		WHERE id = $1
	`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*document.Document](), nil
		}
		return mo.None[*document.Document](), fmt.Errorf("failed to get document: %w", err)
	}
	return mo.Some(doc), nil
}

func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*document.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, filename, page_count, summary, summary_generated_at, created_at
		FROM documents
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// CreateDocument はドキュメント・チャンク・Embeddingを単一トランザクションで保存する。
// 同一ドキュメントIDへの同時取り込みはアドバイザリロックで直列化する。
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *document.Document, chunks []*document.Chunk, vectors [][]float32, embeddingModel string) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := acquireAdvisoryLock(ctx, tx, generateLockID("document", doc.ID)); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, title, filename, page_count, summary, summary_generated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		doc.ID,
		doc.Title,
		doc.Filename,
		doc.PageCount,
		StringPtrToPgtext(doc.Summary),
		TimePtrToPgtype(doc.SummaryGeneratedAt),
		TimeToPgtype(doc.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return document.ErrDuplicate
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	batch := &pgx.Batch{}
	for i, chunk := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, document_id, ordinal, page, start_char, end_char, content, token_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			UUIDToPgtype(chunk.ID),
			chunk.DocumentID,
			chunk.Ordinal,
			chunk.Page,
			chunk.StartChar,
			chunk.EndChar,
			chunk.Content,
			chunk.TokenCount,
		)
		batch.Queue(`
			INSERT INTO embeddings (chunk_id, embedding, model)
			VALUES ($1, $2, $3)
		`,
			UUIDToPgtype(chunk.ID),
			pgvector.NewVector(vectors[i]),
			embeddingModel,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	// chunks/embeddings はFKのON DELETE CASCADEで同時に消える
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) ListChunksByDocument(ctx context.Context, documentID string) ([]*document.Chunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, ordinal, page, start_char, end_char, content, token_count, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

func (r *DocumentRepository) ListAllChunks(ctx context.Context) ([]*document.Chunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, ordinal, page, start_char, end_char, content, token_count, created_at
		FROM chunks
		ORDER BY document_id, ordinal
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

func (r *DocumentRepository) UpdateSummary(ctx context.Context, id string, summary string, generatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET summary = $2, summary_generated_at = $3
		WHERE id = $1
	`, id, summary, TimeToPgtype(generatedAt))
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return document.ErrNotFound
	}
	return nil
}

// SearchSimilar はコサイン類似度によるベクトル近傍検索を実行する。
// Embeddingモデルが一致するベクトルのみを対象にする。
// コサイン類似度は負になりうるため、スコアは0で切り上げて [0,1] に収める。
func (r *DocumentRepository) SearchSimilar(ctx context.Context, queryVector []float32, model string, documentIDs []string, limit int) ([]*search.VectorHit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.ordinal, c.page, c.content,
		       GREATEST(0, 1 - (e.embedding <=> $1)) AS score
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE e.model = $2
		  AND ($3::text[] IS NULL OR c.document_id = ANY($3))
		ORDER BY e.embedding <=> $1
		LIMIT $4
	`, pgvector.NewVector(queryVector), model, documentIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search query failed: %w", err)
	}
	defer rows.Close()

	var hits []*search.VectorHit
	for rows.Next() {
		var (
			chunkID uuid.UUID
			hit     search.VectorHit
		)
		if err := rows.Scan(&chunkID, &hit.DocumentID, &hit.Ordinal, &hit.Page, &hit.Content, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		hit.ChunkID = chunkID
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

func scanDocument(row pgx.Row) (*document.Document, error) {
	var (
		doc         document.Document
		summary     *string
		generatedAt *time.Time
		createdAt   time.Time
	)
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Filename, &doc.PageCount, &summary, &generatedAt, &createdAt); err != nil {
		return nil, err
	}
	doc.Summary = summary
	doc.SummaryGeneratedAt = generatedAt
	doc.CreatedAt = createdAt
	return &doc, nil
}

func collectDocuments(rows pgx.Rows) ([]*document.Document, error) {
	docs := make([]*document.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

func collectChunks(rows pgx.Rows) ([]*document.Chunk, error) {
	chunks := make([]*document.Chunk, 0)
	for rows.Next() {
		var chunk document.Chunk
		if err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ordinal,
			&chunk.Page,
			&chunk.StartChar,
			&chunk.EndChar,
			&chunk.Content,
			&chunk.TokenCount,
			&chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package document

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// MaxFileSize は受け付けるPDFの最大サイズ
	MaxFileSize = 10 * 1024 * 1024

	// DefaultIngestWorkers はバッチ取り込みの並行ドキュメント数。
	// 1ドキュメント内は抽出→チャンク→Embedding→保存の逐次パイプラインで処理する。
	DefaultIngestWorkers = 4

	// SummaryMaxLength は生成する要約の最大文字数
	SummaryMaxLength = 1000

	// summarySourceLimit は要約プロンプトに入れる本文の最大文字数
	summarySourceLimit = 4000

	// summaryFallback は要約生成に失敗した場合の代替メッセージ
	summaryFallback = "現在要約を生成できません。時間をおいて再度お試しください。"
)

// Service はドキュメント取り込みと管理のユースケースを提供する
type Service struct {
	repo      Repository
	extractor Extractor
	chunker   *Chunker
	embedder  Embedder
	lexical   LexicalIndexer
	generator Generator
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSummaryGenerator は要約生成用のGeneratorを設定する
func WithSummaryGenerator(generator Generator) ServiceOption {
	return func(s *Service) {
		s.generator = generator
	}
}

// NewService は新しいServiceを作成する
func NewService(
	repo Repository,
	extractor Extractor,
	chunker *Chunker,
	embedder Embedder,
	lexical LexicalIndexer,
	opts ...ServiceOption,
) *Service {
	svc := &Service{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		lexical:   lexical,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Ingest は1件のPDFを取り込み、チャンクとEmbeddingを索引化する。
// 同一内容（同一ハッシュ）のドキュメントが既に存在する場合は ErrDuplicate を返す。
func (s *Service) Ingest(ctx context.Context, data []byte, filename string) (*IngestReport, error) {
	if err := validatePDF(data); err != nil {
		return nil, err
	}

	id := hashBytes(data)
	report := &IngestReport{DocumentID: id, Filename: filename}

	existing, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate document: %w", err)
	}
	if existing.IsPresent() {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	extracted, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	title := strings.TrimSpace(extracted.Title)
	if title == "" {
		title = titleFromFilename(filename)
	}

	doc := &Document{
		ID:        id,
		Title:     title,
		Filename:  filename,
		PageCount: len(extracted.Pages),
		CreatedAt: time.Now(),
	}
	report.PageCount = doc.PageCount

	chunks, warnings := s.chunker.Chunk(id, extracted.Pages)
	report.Warnings = warnings
	for _, w := range warnings {
		s.logger.Warn("page skipped during ingestion", "documentID", id, "warning", w)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, filename)
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	// チャンクとベクトルは単一トランザクションで保存される（孤児を残さない）
	if err := s.repo.CreateDocument(ctx, doc, chunks, vectors, s.embedder.ModelName()); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	// 字句インデックスはコミット後に更新する
	s.lexical.IndexDocument(id, chunks)

	report.ChunkCount = len(chunks)
	s.logger.Info("document ingested",
		"documentID", id,
		"filename", filename,
		"pages", doc.PageCount,
		"chunks", len(chunks),
	)

	return report, nil
}

// BatchFile はバッチ取り込みの1ファイル分の入力
type BatchFile struct {
	Name string
	Data []byte
}

// IngestBatch は複数のPDFを並行して取り込む。
// ドキュメントごとの結果は独立しており、一部の失敗は他を中断しない。
func (s *Service) IngestBatch(ctx context.Context, files []BatchFile, workers int) []*IngestReport {
	if workers <= 0 {
		workers = DefaultIngestWorkers
	}

	fileChan := make(chan int, len(files))
	reports := make([]*IngestReport, len(files))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range fileChan {
				select {
				case <-ctx.Done():
					reports[i] = &IngestReport{Filename: files[i].Name, Err: ctx.Err()}
					continue
				default:
				}

				report, err := s.Ingest(ctx, files[i].Data, files[i].Name)
				if err != nil {
					s.logger.Warn("document ingestion failed",
						"filename", files[i].Name,
						"error", err,
					)
					report = &IngestReport{Filename: files[i].Name, Err: err}
				}
				reports[i] = report
			}
		}()
	}

	for i := range files {
		fileChan <- i
	}
	close(fileChan)
	wg.Wait()

	return reports
}

// Get はIDでドキュメントを取得する
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	opt, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc, ok := opt.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

// List は全ドキュメントを返す
func (s *Service) List(ctx context.Context) ([]*Document, error) {
	docs, err := s.repo.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Delete はドキュメントと派生データを削除し、字句インデックスからも取り除く
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.lexical.RemoveDocument(id)
	s.logger.Info("document deleted", "documentID", id)
	return nil
}

// Summarize はドキュメントの要約を返す。キャッシュ済みの要約があれば再利用し、
// force 指定時のみ再生成する。生成失敗は代替メッセージとして返し、エラーにしない。
func (s *Service) Summarize(ctx context.Context, id string, force bool) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if doc.Summary != nil && *doc.Summary != "" && !force {
		return *doc.Summary, nil
	}

	if s.generator == nil {
		return "", fmt.Errorf("summary generator is not configured")
	}

	chunks, err := s.repo.ListChunksByDocument(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load chunks for summary: %w", err)
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoText, id)
	}

	summary, err := s.generator.Generate(ctx, buildSummaryPrompt(doc.Title, chunks))
	if err != nil {
		s.logger.Warn("summary generation failed", "documentID", id, "error", err)
		return summaryFallback, nil
	}

	summary = strings.TrimSpace(summary)
	if len([]rune(summary)) > SummaryMaxLength {
		summary = string([]rune(summary)[:SummaryMaxLength]) + "..."
	}

	if err := s.repo.UpdateSummary(ctx, id, summary, time.Now()); err != nil {
		return "", fmt.Errorf("failed to store summary: %w", err)
	}

	return summary, nil
}

// embedChunks はチャンク本文を埋め込みに変換する。Embedderの最大バッチ数を超えないよう分割する。
func (s *Service) embedChunks(ctx context.Context, chunks []*Chunk) ([][]float32, error) {
	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Content)
		}

		batch, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func buildSummaryPrompt(title string, chunks []*Chunk) string {
	var sb strings.Builder
	sb.WriteString("以下のドキュメントの要点を簡潔にまとめてください。\n")
	sb.WriteString(fmt.Sprintf("要約は%d文字以内とし、主要な論点を漏らさないでください。\n\n", SummaryMaxLength))
	if title != "" {
		sb.WriteString(fmt.Sprintf("ドキュメント: %s\n\n", title))
	}
	sb.WriteString("本文:\n")

	written := 0
	for _, chunk := range chunks {
		text := []rune(chunk.Content)
		remaining := summarySourceLimit - written
		if remaining <= 0 {
			break
		}
		if len(text) > remaining {
			text = text[:remaining]
		}
		sb.WriteString(string(text))
		sb.WriteString(" ")
		written += len(text)
	}

	return sb.String()
}

func validatePDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidFile)
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidFile, MaxFileSize)
	}
	if !strings.HasPrefix(string(data[:minInt(len(data), 5)]), "%PDF-") {
		return fmt.Errorf("%w: not a PDF file", ErrInvalidFile)
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

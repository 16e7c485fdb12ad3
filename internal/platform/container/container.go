// Package container はアプリケーションの依存関係を束ねる
package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docquery/docquery/internal/core/activity"
	"github.com/docquery/docquery/internal/core/chat"
	"github.com/docquery/docquery/internal/core/document"
	"github.com/docquery/docquery/internal/core/index"
	"github.com/docquery/docquery/internal/core/search"
	"github.com/docquery/docquery/internal/infra/openai"
	"github.com/docquery/docquery/internal/infra/pdftext"
	"github.com/docquery/docquery/internal/infra/postgres"
	"github.com/docquery/docquery/internal/infra/tokenizer"
	"github.com/docquery/docquery/internal/platform/config"
)

// ServiceContainer は配線済みのサービス群を保持する
type ServiceContainer struct {
	DocumentService *document.Service
	SearchService   *search.Service
	Resolver        *search.Resolver
	ChatService     *chat.Service
	ActivityService *activity.Service
	LexicalIndex    *index.LexicalIndex

	logger *slog.Logger
	db     *postgres.DB
}

// Embedder は取り込み（バッチ）と検索（単発）の両方で使うEmbeddingクライアント
type Embedder interface {
	document.Embedder
	search.Embedder
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  Embedder
	generator chat.Generator
	extractor document.Extractor
	counter   chat.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerGenerator は回答生成クライアントを差し替える
func WithContainerGenerator(generator chat.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// WithContainerExtractor はPDFテキスト抽出を差し替える
func WithContainerExtractor(extractor document.Extractor) ContainerOption {
	return func(opts *containerOptions) {
		opts.extractor = extractor
	}
}

// WithContainerTokenCounter はトークンカウンタを差し替える
func WithContainerTokenCounter(counter chat.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.counter = counter
	}
}

// NewContainer は設定からコンテナを生成し、字句インデックスを再構築する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	c, err := NewContainerWithDB(ctx, cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存のDB接続を受け取りコンテナを生成する
func NewContainerWithDB(ctx context.Context, cfg *config.Config, db *postgres.DB, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		embedder = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
	}

	// 回答生成クライアント (OpenAI)
	generator := options.generator
	if generator == nil {
		g, err := openai.NewGenerator(cfg.OpenAI.APIKey, openai.WithChatModel(cfg.OpenAI.LLMModel))
		if err != nil {
			return nil, fmt.Errorf("generator initialization failed: %w", err)
		}
		generator = g
	}

	// TokenCounter (tiktoken)
	counter := options.counter
	if counter == nil {
		c, err := tokenizer.NewCounter()
		if err != nil {
			return nil, fmt.Errorf("token counter initialization failed: %w", err)
		}
		counter = c
	}

	// PDF抽出
	extractor := options.extractor
	if extractor == nil {
		extractor = pdftext.NewExtractor()
	}

	// Repository (PostgreSQL)
	docRepo := postgres.NewDocumentRepository(db)
	chatRepo := postgres.NewChatRepository(db)
	activityRepo := postgres.NewActivityRepository(db)

	// 字句インデックスは起動時にDBから再構築する
	lexical := index.NewLexicalIndex()
	if err := lexical.Rebuild(ctx, docRepo); err != nil {
		return nil, fmt.Errorf("lexical index rebuild failed: %w", err)
	}
	logger.Info("lexical index rebuilt", slog.Int("chunks", lexical.ChunkCount()))

	chunker, err := document.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, counter)
	if err != nil {
		return nil, fmt.Errorf("chunker initialization failed: %w", err)
	}

	documentService := document.NewService(
		docRepo,
		extractor,
		chunker,
		embedder,
		lexical,
		document.WithServiceLogger(logger),
		document.WithSummaryGenerator(generator),
	)

	searchService := search.NewService(
		docRepo,
		lexical,
		embedder,
		search.WithServiceLogger(logger),
		search.WithWeights(search.Weights{
			Semantic: cfg.Retrieval.SemanticWeight,
			TFIDF:    cfg.Retrieval.TFIDFWeight,
			Keyword:  cfg.Retrieval.KeywordWeight,
		}),
		search.WithCandidatePool(cfg.Retrieval.CandidatePool),
	)

	resolver := search.NewResolver(docRepo, search.WithResolverLogger(logger))

	chatService := chat.NewService(
		chatRepo,
		searchService,
		resolver,
		generator,
		chat.NewPromptBuilder(counter, chat.DefaultPromptTokenBudget),
		chat.WithServiceLogger(logger),
	)

	activityService := activity.NewService(activityRepo, docRepo, activity.WithServiceLogger(logger))

	return &ServiceContainer{
		DocumentService: documentService,
		SearchService:   searchService,
		Resolver:        resolver,
		ChatService:     chatService,
		ActivityService: activityService,
		LexicalIndex:    lexical,
		logger:          logger,
		db:              db,
	}, nil
}

// Close は保持しているリソースを解放する
func (c *ServiceContainer) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

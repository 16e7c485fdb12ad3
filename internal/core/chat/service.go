package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/search"
)

const (
	// DefaultTopK はプロンプトに埋め込む出典の最大数
	DefaultTopK = 5

	// HistoryWindow はプロンプトに含める直近メッセージ数
	HistoryWindow = 10

	// TitleMaxLength は会話タイトルの最大文字数
	TitleMaxLength = 80
)

// degradedAnswer は回答生成に失敗した際の代替文
const degradedAnswer = "申し訳ありません。回答の生成に失敗しました。関連する出典のみ提示しますので、しばらくしてから再度お試しください。"

// Service は出典付き質問応答のビジネスロジックを提供する
type Service struct {
	repo      Repository
	searcher  Searcher
	citations CitationResolver
	generator Generator
	prompts   *PromptBuilder
	topK      int
	logger    *slog.Logger
}

// ServiceOption はServiceの動作を調整する
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTopK は出典数の上限を設定する
func WithTopK(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewService は新しいServiceを作成する
func NewService(
	repo Repository,
	searcher Searcher,
	citations CitationResolver,
	generator Generator,
	prompts *PromptBuilder,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		repo:      repo,
		searcher:  searcher,
		citations: citations,
		generator: generator,
		prompts:   prompts,
		topK:      DefaultTopK,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask は質問に対して出典付きの回答を生成する。
// 会話が指定されていれば履歴を踏まえ、ターンを1トランザクションで追記する。
// 回答生成に失敗した場合はターンを失敗にはせず、代替文と出典を返す。
func (s *Service) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	state := TurnReceived
	logger := s.logger.With(slog.String("callerID", params.CallerID))

	// 会話の解決と所有者チェック
	var conv *Conversation
	if convID, ok := params.ConversationID.Get(); ok {
		opt, err := s.repo.GetConversation(ctx, convID)
		if err != nil {
			return nil, fmt.Errorf("failed to get conversation: %w", err)
		}
		existing, found := opt.Get()
		if !found {
			return nil, ErrConversationNotFound
		}
		if existing.CallerID != params.CallerID {
			return nil, ErrUnauthorized
		}
		conv = existing
		logger = logger.With(slog.String("conversationID", convID.String()))
	}

	scope := params.DocumentIDs
	if scope == nil && conv != nil {
		scope = conv.DocumentIDs
	}

	var history []*Message
	if conv != nil {
		var err error
		history, err = s.repo.ListRecentMessages(ctx, conv.ID, HistoryWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}

	// 検索
	state = s.advance(logger, state, TurnRetrieving)
	results, err := s.searcher.Search(ctx, search.SearchParams{
		Query:       params.Query,
		DocumentIDs: scope,
		Limit:       s.topK,
	})
	if err != nil {
		s.advance(logger, state, TurnFailed)
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// 引用解決
	state = s.advance(logger, state, TurnGrounding)
	citations, err := s.citations.Resolve(ctx, results)
	if err != nil {
		s.advance(logger, state, TurnFailed)
		return nil, fmt.Errorf("citation resolution failed: %w", err)
	}
	passages := pairPassages(results, citations)

	// 回答生成
	state = s.advance(logger, state, TurnGenerating)
	prompt := s.prompts.Build(params.Query, history, passages)

	degraded := false
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Warn("answer generation failed, returning degraded answer", slog.String("error", err.Error()))
		answer = degradedAnswer
		degraded = true
	}

	result := &AskResult{
		Answer:    answer,
		Citations: citations,
		Degraded:  degraded,
	}

	// 匿名呼び出しは永続化しない
	if params.CallerID != "" {
		conv, err = s.persistTurn(ctx, conv, params, answer, citations)
		if err != nil {
			s.advance(logger, state, TurnFailed)
			return nil, err
		}
		result.ConversationID = mo.Some(conv.ID)
	}

	state = s.advance(logger, state, TurnCompleted)
	result.State = state

	logger.Info("ask completed",
		slog.Int("citations", len(citations)),
		slog.Bool("degraded", degraded),
	)
	return result, nil
}

// persistTurn は必要なら会話を作成し、今回のターンを追記する
func (s *Service) persistTurn(ctx context.Context, conv *Conversation, params AskParams, answer string, citations []search.Citation) (*Conversation, error) {
	now := time.Now()

	if conv == nil {
		conv = &Conversation{
			ID:          uuid.New(),
			CallerID:    params.CallerID,
			Title:       titleFromQuery(params.Query),
			DocumentIDs: params.DocumentIDs,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	userMsg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        params.Query,
		CreatedAt:      now,
	}
	assistantMsg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        answer,
		Citations:      citations,
		CreatedAt:      now,
	}
	if err := s.repo.AppendTurn(ctx, conv.ID, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to append turn: %w", err)
	}
	return conv, nil
}

// advance は状態遷移を検証しつつログに残す
func (s *Service) advance(logger *slog.Logger, from, to TurnState) TurnState {
	if !from.CanTransition(to) {
		// 遷移表に無い遷移は実装の不整合なので失敗扱いにする
		logger.Error("invalid turn transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return TurnFailed
	}
	logger.Debug("turn state changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return to
}

// ListConversations は呼び出し元の会話一覧を返す
func (s *Service) ListConversations(ctx context.Context, callerID string) ([]*Conversation, error) {
	if callerID == "" {
		return []*Conversation{}, nil
	}
	convs, err := s.repo.ListConversations(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// GetConversation は会話とその全メッセージを返す
func (s *Service) GetConversation(ctx context.Context, callerID string, id uuid.UUID) (*Conversation, []*Message, error) {
	conv, err := s.authorize(ctx, callerID, id)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return conv, messages, nil
}

// DeleteConversation は会話を削除する
func (s *Service) DeleteConversation(ctx context.Context, callerID string, id uuid.UUID) error {
	if _, err := s.authorize(ctx, callerID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	s.logger.Info("conversation deleted", slog.String("conversationID", id.String()))
	return nil
}

func (s *Service) authorize(ctx context.Context, callerID string, id uuid.UUID) (*Conversation, error) {
	opt, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv, found := opt.Get()
	if !found {
		return nil, ErrConversationNotFound
	}
	if conv.CallerID != callerID {
		return nil, ErrUnauthorized
	}
	return conv, nil
}

// pairPassages は引用と元の検索結果を突き合わせて本文付きの出典を作る。
// 引用解決で除外された結果は読み飛ばす。
func pairPassages(results []*search.ScoredResult, citations []search.Citation) []GroundedPassage {
	passages := make([]GroundedPassage, 0, len(citations))
	ri := 0
	for _, citation := range citations {
		for ri < len(results) {
			result := results[ri]
			ri++
			if result.DocumentID == citation.DocumentID && result.Ordinal == citation.Ordinal {
				passages = append(passages, GroundedPassage{Citation: citation, Content: result.Content})
				break
			}
		}
	}
	return passages
}

// titleFromQuery は最初の質問文から会話タイトルを作る
func titleFromQuery(query string) string {
	runes := []rune(query)
	if len(runes) <= TitleMaxLength {
		return query
	}
	return string(runes[:TitleMaxLength])
}

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/core/search"
)

type stubRepo struct {
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]*Message
	appendErr     error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]*Message),
	}
}

func (r *stubRepo) GetConversation(_ context.Context, id uuid.UUID) (mo.Option[*Conversation], error) {
	if conv, ok := r.conversations[id]; ok {
		return mo.Some(conv), nil
	}
	return mo.None[*Conversation](), nil
}

func (r *stubRepo) ListConversations(_ context.Context, callerID string) ([]*Conversation, error) {
	var out []*Conversation
	for _, conv := range r.conversations {
		if conv.CallerID == callerID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (r *stubRepo) CreateConversation(_ context.Context, conv *Conversation) error {
	r.conversations[conv.ID] = conv
	return nil
}

func (r *stubRepo) DeleteConversation(_ context.Context, id uuid.UUID) error {
	delete(r.conversations, id)
	delete(r.messages, id)
	return nil
}

func (r *stubRepo) ListMessages(_ context.Context, conversationID uuid.UUID) ([]*Message, error) {
	return r.messages[conversationID], nil
}

func (r *stubRepo) ListRecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]*Message, error) {
	msgs := r.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (r *stubRepo) AppendTurn(_ context.Context, conversationID uuid.UUID, userMsg, assistantMsg *Message) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.messages[conversationID] = append(r.messages[conversationID], userMsg, assistantMsg)
	return nil
}

type stubSearcher struct {
	results   []*search.ScoredResult
	err       error
	lastLimit int
	lastScope []string
}

func (s *stubSearcher) Search(_ context.Context, params search.SearchParams) ([]*search.ScoredResult, error) {
	s.lastLimit = params.Limit
	s.lastScope = params.DocumentIDs
	return s.results, s.err
}

type stubResolver struct {
	citations []search.Citation
	err       error
}

func (r *stubResolver) Resolve(_ context.Context, _ []*search.ScoredResult) ([]search.Citation, error) {
	return r.citations, r.err
}

type stubGenerator struct {
	answer     string
	err        error
	lastPrompt string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.lastPrompt = prompt
	return g.answer, g.err
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func newTestService(repo Repository, searcher Searcher, resolver CitationResolver, generator Generator) *Service {
	return NewService(repo, searcher, resolver, generator, NewPromptBuilder(wordCounter{}, 0))
}

func sampleResults() []*search.ScoredResult {
	return []*search.ScoredResult{
		{ChunkID: uuid.New(), DocumentID: "doc1", Ordinal: 0, Page: 1, Content: "relevant passage", FusedScore: 0.9},
	}
}

func sampleCitations() []search.Citation {
	return []search.Citation{
		{DocumentID: "doc1", DocumentTitle: "Manual", Page: 1, Ordinal: 0, Preview: "relevant passage", Score: 0.9},
	}
}

func TestService_AskCreatesConversation(t *testing.T) {
	repo := newStubRepo()
	searcher := &stubSearcher{results: sampleResults()}
	generator := &stubGenerator{answer: "the answer [Source 1]"}
	svc := newTestService(repo, searcher, &stubResolver{citations: sampleCitations()}, generator)

	result, err := svc.Ask(context.Background(), AskParams{
		CallerID: "alice",
		Query:    "what does the manual say?",
	})
	require.NoError(t, err)

	assert.Equal(t, "the answer [Source 1]", result.Answer)
	assert.Equal(t, TurnCompleted, result.State)
	assert.False(t, result.Degraded)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, DefaultTopK, searcher.lastLimit)

	convID, ok := result.ConversationID.Get()
	require.True(t, ok)
	conv := repo.conversations[convID]
	require.NotNil(t, conv)
	assert.Equal(t, "alice", conv.CallerID)
	assert.Equal(t, "what does the manual say?", conv.Title)

	msgs := repo.messages[convID]
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Citations, 1)

	// プロンプトには出典本文と質問が含まれる
	assert.Contains(t, generator.lastPrompt, "[Source 1] Manual (p.1)")
	assert.Contains(t, generator.lastPrompt, "relevant passage")
}

func TestService_AskContinuesConversation(t *testing.T) {
	repo := newStubRepo()
	convID := uuid.New()
	repo.conversations[convID] = &Conversation{
		ID:          convID,
		CallerID:    "alice",
		DocumentIDs: []string{"doc1"},
	}
	repo.messages[convID] = []*Message{
		{ConversationID: convID, Role: RoleUser, Content: "earlier question"},
		{ConversationID: convID, Role: RoleAssistant, Content: "earlier answer"},
	}

	searcher := &stubSearcher{results: sampleResults()}
	generator := &stubGenerator{answer: "followup answer"}
	svc := newTestService(repo, searcher, &stubResolver{citations: sampleCitations()}, generator)

	result, err := svc.Ask(context.Background(), AskParams{
		CallerID:       "alice",
		ConversationID: mo.Some(convID),
		Query:          "and then?",
	})
	require.NoError(t, err)

	// 会話の検索範囲が引き継がれる
	assert.Equal(t, []string{"doc1"}, searcher.lastScope)

	// 履歴がプロンプトに含まれる
	assert.Contains(t, generator.lastPrompt, "earlier question")
	assert.Contains(t, generator.lastPrompt, "earlier answer")

	got, _ := result.ConversationID.Get()
	assert.Equal(t, convID, got)
	assert.Len(t, repo.messages[convID], 4)
}

func TestService_AskRejectsForeignConversation(t *testing.T) {
	repo := newStubRepo()
	convID := uuid.New()
	repo.conversations[convID] = &Conversation{ID: convID, CallerID: "alice"}

	svc := newTestService(repo, &stubSearcher{}, &stubResolver{}, &stubGenerator{})

	_, err := svc.Ask(context.Background(), AskParams{
		CallerID:       "mallory",
		ConversationID: mo.Some(convID),
		Query:          "q",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestService_AskUnknownConversation(t *testing.T) {
	svc := newTestService(newStubRepo(), &stubSearcher{}, &stubResolver{}, &stubGenerator{})

	_, err := svc.Ask(context.Background(), AskParams{
		CallerID:       "alice",
		ConversationID: mo.Some(uuid.New()),
		Query:          "q",
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestService_AskAnonymousIsNotPersisted(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubSearcher{results: sampleResults()}, &stubResolver{citations: sampleCitations()}, &stubGenerator{answer: "answer"})

	result, err := svc.Ask(context.Background(), AskParams{Query: "q"})
	require.NoError(t, err)

	assert.True(t, result.ConversationID.IsAbsent())
	assert.Empty(t, repo.conversations)
}

func TestService_AskDegradedOnGenerationFailure(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo,
		&stubSearcher{results: sampleResults()},
		&stubResolver{citations: sampleCitations()},
		&stubGenerator{err: errors.New("model overloaded")},
	)

	result, err := svc.Ask(context.Background(), AskParams{CallerID: "alice", Query: "q"})
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, TurnCompleted, result.State)
	assert.NotEmpty(t, result.Answer)
	assert.Len(t, result.Citations, 1)

	// 代替文もターンとして記録される
	convID, ok := result.ConversationID.Get()
	require.True(t, ok)
	msgs := repo.messages[convID]
	require.Len(t, msgs, 2)
	assert.Equal(t, result.Answer, msgs[1].Content)
}

func TestService_AskFailsOnRetrievalError(t *testing.T) {
	svc := newTestService(newStubRepo(), &stubSearcher{err: errors.New("db down")}, &stubResolver{}, &stubGenerator{})

	_, err := svc.Ask(context.Background(), AskParams{Query: "q"})
	assert.ErrorContains(t, err, "retrieval failed")
}

func TestService_AskValidatesQuery(t *testing.T) {
	svc := newTestService(newStubRepo(), &stubSearcher{}, &stubResolver{}, &stubGenerator{})

	_, err := svc.Ask(context.Background(), AskParams{CallerID: "alice"})
	assert.Error(t, err)
}

func TestService_ConversationOwnership(t *testing.T) {
	repo := newStubRepo()
	convID := uuid.New()
	repo.conversations[convID] = &Conversation{ID: convID, CallerID: "alice"}

	svc := newTestService(repo, &stubSearcher{}, &stubResolver{}, &stubGenerator{})

	t.Run("owner can read", func(t *testing.T) {
		conv, _, err := svc.GetConversation(context.Background(), "alice", convID)
		require.NoError(t, err)
		assert.Equal(t, convID, conv.ID)
	})

	t.Run("other caller cannot read", func(t *testing.T) {
		_, _, err := svc.GetConversation(context.Background(), "mallory", convID)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("other caller cannot delete", func(t *testing.T) {
		err := svc.DeleteConversation(context.Background(), "mallory", convID)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("owner can delete", func(t *testing.T) {
		err := svc.DeleteConversation(context.Background(), "alice", convID)
		require.NoError(t, err)
		_, _, err = svc.GetConversation(context.Background(), "alice", convID)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestTitleFromQuery(t *testing.T) {
	short := "short question"
	assert.Equal(t, short, titleFromQuery(short))

	long := strings.Repeat("あ", TitleMaxLength+10)
	title := titleFromQuery(long)
	assert.Equal(t, TitleMaxLength, len([]rune(title)))
}

func TestTurnStateTransitions(t *testing.T) {
	assert.True(t, TurnReceived.CanTransition(TurnRetrieving))
	assert.True(t, TurnRetrieving.CanTransition(TurnGrounding))
	assert.True(t, TurnGrounding.CanTransition(TurnGenerating))
	assert.True(t, TurnGenerating.CanTransition(TurnCompleted))
	assert.True(t, TurnRetrieving.CanTransition(TurnFailed))

	assert.False(t, TurnReceived.CanTransition(TurnCompleted))
	assert.False(t, TurnCompleted.CanTransition(TurnRetrieving))
	assert.False(t, TurnFailed.CanTransition(TurnRetrieving))

	assert.True(t, TurnCompleted.IsTerminal())
	assert.True(t, TurnFailed.IsTerminal())
	assert.False(t, TurnGenerating.IsTerminal())
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/core/activity"
	"github.com/docquery/docquery/internal/core/chat"
	"github.com/docquery/docquery/internal/core/document"
	"github.com/docquery/docquery/internal/core/search"
)

type stubDocuments struct {
	docs      map[string]*document.Document
	ingestErr error
}

func (s *stubDocuments) Ingest(_ context.Context, data []byte, filename string) (*document.IngestReport, error) {
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	return &document.IngestReport{DocumentID: "new-doc", Filename: filename, ChunkCount: 3}, nil
}

func (s *stubDocuments) Get(_ context.Context, id string) (*document.Document, error) {
	if doc, ok := s.docs[id]; ok {
		return doc, nil
	}
	return nil, document.ErrNotFound
}

func (s *stubDocuments) List(_ context.Context) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (s *stubDocuments) Delete(_ context.Context, id string) error {
	if _, ok := s.docs[id]; !ok {
		return document.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *stubDocuments) Summarize(_ context.Context, id string, _ bool) (string, error) {
	if _, ok := s.docs[id]; !ok {
		return "", document.ErrNotFound
	}
	return "the summary", nil
}

type stubSearch struct {
	results []*search.ScoredResult
	lastQ   string
}

func (s *stubSearch) Search(_ context.Context, params search.SearchParams) ([]*search.ScoredResult, error) {
	s.lastQ = params.Query
	return s.results, nil
}

type stubAPIResolver struct{}

func (stubAPIResolver) Resolve(_ context.Context, results []*search.ScoredResult) ([]search.Citation, error) {
	citations := make([]search.Citation, 0, len(results))
	for _, r := range results {
		citations = append(citations, search.Citation{
			DocumentID: r.DocumentID, Ordinal: r.Ordinal, Page: r.Page, Score: r.FusedScore,
		})
	}
	return citations, nil
}

type stubChat struct {
	result     *chat.AskResult
	err        error
	lastParams chat.AskParams
}

func (s *stubChat) Ask(_ context.Context, params chat.AskParams) (*chat.AskResult, error) {
	s.lastParams = params
	return s.result, s.err
}

func (s *stubChat) ListConversations(_ context.Context, _ string) ([]*chat.Conversation, error) {
	return []*chat.Conversation{}, nil
}

func (s *stubChat) GetConversation(_ context.Context, callerID string, _ uuid.UUID) (*chat.Conversation, []*chat.Message, error) {
	if callerID != "alice" {
		return nil, nil, chat.ErrUnauthorized
	}
	return &chat.Conversation{CallerID: callerID}, []*chat.Message{}, nil
}

func (s *stubChat) DeleteConversation(_ context.Context, callerID string, _ uuid.UUID) error {
	if callerID != "alice" {
		return chat.ErrUnauthorized
	}
	return nil
}

type stubActivity struct {
	recorded []string
}

func (s *stubActivity) AddFavorite(_ context.Context, _, documentID string) error {
	if documentID == "missing" {
		return document.ErrNotFound
	}
	return nil
}

func (s *stubActivity) RemoveFavorite(_ context.Context, _, _ string) error { return nil }

func (s *stubActivity) ListFavorites(_ context.Context, _ string) ([]*document.Document, error) {
	return []*document.Document{}, nil
}

func (s *stubActivity) RecordSearch(_ context.Context, _, query string, _ int) error {
	s.recorded = append(s.recorded, query)
	return nil
}

func (s *stubActivity) ListSearchHistory(_ context.Context, _ string, _ int) ([]*activity.SearchRecord, error) {
	return []*activity.SearchRecord{}, nil
}

func (s *stubActivity) ClearSearchHistory(_ context.Context, _ string) error { return nil }

func newTestServer(t *testing.T) (*Server, *stubChat, *stubActivity) {
	t.Helper()
	chats := &stubChat{result: &chat.AskResult{Answer: "answer", State: chat.TurnCompleted}}
	acts := &stubActivity{}
	handler := NewHandler(
		&stubDocuments{docs: map[string]*document.Document{"doc1": {ID: "doc1", Title: "Doc"}}},
		&stubSearch{results: []*search.ScoredResult{{DocumentID: "doc1", FusedScore: 0.9}}},
		stubAPIResolver{},
		chats,
		acts,
	)
	server := NewServer(handler, map[string]string{"secret-token": "alice"}, 0)
	return server, chats, acts
}

func doRequest(server *Server, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestParseTokens(t *testing.T) {
	tokens := ParseTokens("t1:alice, t2:bob,,broken,:empty")
	assert.Equal(t, map[string]string{"t1": "alice", "t2": "bob"}, tokens)
}

func TestIdentityMiddleware(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("anonymous access passes", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/documents", "", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/documents", "wrong", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token passes", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/conversations", "secret-token", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("identified route requires auth", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/conversations", "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUploadDocumentSizeBounds(t *testing.T) {
	server, _, _ := newTestServer(t)

	upload := func(size int) *httptest.ResponseRecorder {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, _ := writer.CreateFormFile("file", "test.pdf")
		_, _ = part.Write(bytes.Repeat([]byte("a"), size))
		writer.Close()
		return doRequest(server, http.MethodPost, "/api/documents", "", body, writer.FormDataContentType())
	}

	t.Run("too small is rejected", func(t *testing.T) {
		rec := upload(10)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid size is ingested", func(t *testing.T) {
		rec := upload(MinUploadSize)
		require.Equal(t, http.StatusCreated, rec.Code)

		var report document.IngestReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "new-doc", report.DocumentID)
	})

	t.Run("missing file field", func(t *testing.T) {
		rec := doRequest(server, http.MethodPost, "/api/documents", "", nil, "multipart/form-data")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSearchEndpoint(t *testing.T) {
	server, _, acts := newTestServer(t)

	t.Run("missing query", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/search", "", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns citations and records history", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/search?q=hello", "secret-token", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Results []search.Citation `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "doc1", resp.Results[0].DocumentID)
		assert.Contains(t, acts.recorded, "hello")
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/search?q=hello&limit=abc", "", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAskEndpoint(t *testing.T) {
	server, chats, _ := newTestServer(t)

	t.Run("happy path passes caller and scope", func(t *testing.T) {
		body := bytes.NewBufferString(`{"query":"what?","documentIDs":["doc1"]}`)
		rec := doRequest(server, http.MethodPost, "/api/ask", "secret-token", body, "application/json")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", chats.lastParams.CallerID)
		assert.Equal(t, []string{"doc1"}, chats.lastParams.DocumentIDs)
	})

	t.Run("missing query", func(t *testing.T) {
		body := bytes.NewBufferString(`{}`)
		rec := doRequest(server, http.MethodPost, "/api/ask", "", body, "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed conversation id", func(t *testing.T) {
		body := bytes.NewBufferString(`{"query":"q","conversationID":"not-a-uuid"}`)
		rec := doRequest(server, http.MethodPost, "/api/ask", "", body, "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestErrorMapping(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(server, http.MethodGet, "/api/documents/unknown", "", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("favorite for missing document", func(t *testing.T) {
		rec := doRequest(server, http.MethodPut, "/api/documents/missing/favorite", "secret-token", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("summary", func(t *testing.T) {
		rec := doRequest(server, http.MethodPost, "/api/documents/doc1/summary", "", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "the summary"))
	})
}

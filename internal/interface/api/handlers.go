package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/activity"
	"github.com/docquery/docquery/internal/core/chat"
	"github.com/docquery/docquery/internal/core/document"
	"github.com/docquery/docquery/internal/core/search"
)

// MinUploadSize は受け付けるPDFの最小サイズ。
// 極端に小さいファイルは抽出対象のテキストを持たない。
const MinUploadSize = 100 * 1024

// DocumentService はドキュメント操作のポート
type DocumentService interface {
	Ingest(ctx context.Context, data []byte, filename string) (*document.IngestReport, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	Delete(ctx context.Context, id string) error
	Summarize(ctx context.Context, id string, force bool) (string, error)
}

// SearchService はハイブリッド検索のポート
type SearchService interface {
	Search(ctx context.Context, params search.SearchParams) ([]*search.ScoredResult, error)
}

// CitationResolver は検索結果の引用解決のポート
type CitationResolver interface {
	Resolve(ctx context.Context, results []*search.ScoredResult) ([]search.Citation, error)
}

// ChatService は質問応答と会話操作のポート
type ChatService interface {
	Ask(ctx context.Context, params chat.AskParams) (*chat.AskResult, error)
	ListConversations(ctx context.Context, callerID string) ([]*chat.Conversation, error)
	GetConversation(ctx context.Context, callerID string, id uuid.UUID) (*chat.Conversation, []*chat.Message, error)
	DeleteConversation(ctx context.Context, callerID string, id uuid.UUID) error
}

// ActivityService はお気に入りと検索履歴のポート
type ActivityService interface {
	AddFavorite(ctx context.Context, callerID, documentID string) error
	RemoveFavorite(ctx context.Context, callerID, documentID string) error
	ListFavorites(ctx context.Context, callerID string) ([]*document.Document, error)
	RecordSearch(ctx context.Context, callerID, query string, resultsCount int) error
	ListSearchHistory(ctx context.Context, callerID string, limit int) ([]*activity.SearchRecord, error)
	ClearSearchHistory(ctx context.Context, callerID string) error
}

// Handler はHTTP APIのリクエスト処理を担う
type Handler struct {
	documents DocumentService
	searcher  SearchService
	citations CitationResolver
	chats     ChatService
	activity  ActivityService
}

// NewHandler は新しい Handler を作成する
func NewHandler(
	documents DocumentService,
	searcher SearchService,
	citations CitationResolver,
	chats ChatService,
	activitySvc ActivityService,
) *Handler {
	return &Handler{
		documents: documents,
		searcher:  searcher,
		citations: citations,
		chats:     chats,
		activity:  activitySvc,
	}
}

// UploadDocument はPDFを受け取って取り込む
func (h *Handler) UploadDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if header.Size < MinUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is too small to contain extractable text"})
		return
	}
	if header.Size > document.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds the maximum allowed size"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	report, err := h.documents.Ingest(c.Request.Context(), data, header.Filename)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// ListDocuments はドキュメント一覧を返す
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// GetDocument はドキュメント1件を返す
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteDocument はドキュメントを削除する
func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SummarizeDocument は要約を返す（未生成なら生成してキャッシュする）
func (h *Handler) SummarizeDocument(c *gin.Context) {
	force := c.Query("force") == "true"
	summary, err := h.documents.Summarize(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// Search はハイブリッド検索を実行する
func (h *Handler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	var documentIDs []string
	if raw := c.Query("documentIDs"); raw != "" {
		documentIDs = strings.Split(raw, ",")
	}

	results, err := h.searcher.Search(c.Request.Context(), search.SearchParams{
		Query:       query,
		DocumentIDs: documentIDs,
		Limit:       limit,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	citations, err := h.citations.Resolve(c.Request.Context(), results)
	if err != nil {
		h.renderError(c, err)
		return
	}

	// 履歴の記録失敗で検索を失敗させない
	_ = h.activity.RecordSearch(c.Request.Context(), callerID(c), query, len(citations))

	c.JSON(http.StatusOK, gin.H{"results": citations})
}

type askRequest struct {
	Query          string   `json:"query" binding:"required"`
	ConversationID *string  `json:"conversationID"`
	DocumentIDs    []string `json:"documentIDs"`
}

// Ask は出典付きの質問応答を実行する
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	params := chat.AskParams{
		CallerID:    callerID(c),
		Query:       req.Query,
		DocumentIDs: req.DocumentIDs,
	}
	if req.ConversationID != nil {
		convID, err := uuid.Parse(*req.ConversationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationID must be a valid UUID"})
			return
		}
		params.ConversationID = mo.Some(convID)
	}

	result, err := h.chats.Ask(c.Request.Context(), params)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListConversations は呼び出し元の会話一覧を返す
func (h *Handler) ListConversations(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	convs, err := h.chats.ListConversations(c.Request.Context(), caller)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetConversation は会話とメッセージ履歴を返す
func (h *Handler) GetConversation(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id must be a valid UUID"})
		return
	}

	conv, messages, err := h.chats.GetConversation(c.Request.Context(), caller, id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

// DeleteConversation は会話を削除する
func (h *Handler) DeleteConversation(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id must be a valid UUID"})
		return
	}

	if err := h.chats.DeleteConversation(c.Request.Context(), caller, id); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddFavorite はドキュメントをお気に入りに登録する
func (h *Handler) AddFavorite(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := h.activity.AddFavorite(c.Request.Context(), caller, c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveFavorite はお気に入りを解除する
func (h *Handler) RemoveFavorite(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := h.activity.RemoveFavorite(c.Request.Context(), caller, c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListFavorites はお気に入りのドキュメント一覧を返す
func (h *Handler) ListFavorites(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	docs, err := h.activity.ListFavorites(c.Request.Context(), caller)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// ListSearchHistory は検索履歴を返す
func (h *Handler) ListSearchHistory(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	records, err := h.activity.ListSearchHistory(c.Request.Context(), caller, limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// ClearSearchHistory は検索履歴を全件削除する
func (h *Handler) ClearSearchHistory(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := h.activity.ClearSearchHistory(c.Request.Context(), caller); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// renderError はドメインエラーをHTTPステータスに対応づける
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound), errors.Is(err, chat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, document.ErrInvalidFile), errors.Is(err, document.ErrNoText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

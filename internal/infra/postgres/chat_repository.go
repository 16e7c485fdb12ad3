package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/docquery/docquery/internal/core/chat"
	"github.com/docquery/docquery/internal/core/search"
)

// ChatRepository は chat.Repository を実装する
type ChatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository は新しい ChatRepository を作成します
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{pool: db.Pool}
}

var _ chat.Repository = (*ChatRepository)(nil)

func (r *ChatRepository) GetConversation(ctx context.Context, id uuid.UUID) (mo.Option[*chat.Conversation], error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, caller_id, title, document_ids, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, UUIDToPgtype(id))

	conv, err := scanConversation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return mo.None[*chat.Conversation](), nil
		}
		return mo.None[*chat.Conversation](), fmt.Errorf("failed to get conversation: %w", err)
	}
	return mo.Some(conv), nil
}

func (r *ChatRepository) ListConversations(ctx context.Context, callerID string) ([]*chat.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, caller_id, title, document_ids, created_at, updated_at
		FROM conversations
		WHERE caller_id = $1
		ORDER BY updated_at DESC
	`, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]*chat.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}
	return convs, nil
}

func (r *ChatRepository) CreateConversation(ctx context.Context, conv *chat.Conversation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, caller_id, title, document_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		UUIDToPgtype(conv.ID),
		conv.CallerID,
		conv.Title,
		JSONBFromStringSlice(conv.DocumentIDs),
		TimeToPgtype(conv.CreatedAt),
		TimeToPgtype(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r *ChatRepository) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	// messages はFKのON DELETE CASCADEで同時に消える
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*chat.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, citations, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`, UUIDToPgtype(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *ChatRepository) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*chat.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, citations, created_at
		FROM (
			SELECT id, conversation_id, role, content, citations, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`, UUIDToPgtype(conversationID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// AppendTurn はユーザー発話とアシスタント応答を1トランザクションで追記する。
// 同一会話への同時追記はアドバイザリロックで直列化する。
func (r *ChatRepository) AppendTurn(ctx context.Context, conversationID uuid.UUID, userMsg, assistantMsg *chat.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := acquireAdvisoryLock(ctx, tx, generateLockID("conversation", conversationID.String())); err != nil {
		return err
	}

	for _, msg := range []*chat.Message{userMsg, assistantMsg} {
		citations, err := marshalCitations(msg.Citations)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, citations, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			UUIDToPgtype(msg.ID),
			UUIDToPgtype(conversationID),
			string(msg.Role),
			msg.Content,
			citations,
			TimeToPgtype(msg.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET updated_at = $2 WHERE id = $1
	`, UUIDToPgtype(conversationID), TimeToPgtype(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*chat.Conversation, error) {
	var (
		conv        chat.Conversation
		title       *string
		documentIDs []byte
	)
	if err := row.Scan(&conv.ID, &conv.CallerID, &title, &documentIDs, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	if title != nil {
		conv.Title = *title
	}
	conv.DocumentIDs = StringSliceFromJSONB(documentIDs)
	return &conv, nil
}

func collectMessages(rows pgx.Rows) ([]*chat.Message, error) {
	messages := make([]*chat.Message, 0)
	for rows.Next() {
		var (
			msg       chat.Message
			role      string
			citations []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &citations, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &msg.Citations); err != nil {
				return nil, fmt.Errorf("failed to decode citations: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

func marshalCitations(citations []search.Citation) ([]byte, error) {
	if citations == nil {
		citations = []search.Citation{}
	}
	b, err := json.Marshal(citations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode citations: %w", err)
	}
	return b, nil
}

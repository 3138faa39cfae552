// Package store implements the durable session store: chats, messages,
// stream handles, benefits plans, user profiles, and documents.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrChatNotFound = errors.New("chat not found")

type Chat struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Title      string    `json:"title"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Message struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls json.RawMessage `json:"toolCalls,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type ChatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, visibility, created_at FROM chats WHERE id = $1`,
		chatID,
	).Scan(&chat.ID, &chat.UserID, &title, &chat.Visibility, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrChatNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("get chat: %w", err)
	}
	chat.Title = title.String
	return chat, nil
}

func (s *ChatStore) SaveChat(ctx context.Context, chatID, userID, title, visibility string) error {
	if visibility == "" {
		visibility = "private"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, visibility) VALUES ($1, $2, $3, $4)`,
		chatID, userID, title, visibility,
	)
	if err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func (s *ChatStore) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stream_handles WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete stream handles: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrChatNotFound
	}
	return tx.Commit()
}

// ListMessages returns a chat's full transcript in insertion order. The id
// tiebreak keeps messages written in the same transaction stable.
func (s *ChatStore) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, COALESCE(tool_calls, 'null'), created_at
		 FROM messages
		 WHERE chat_id = $1
		 ORDER BY created_at ASC, id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.ToolCalls, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages rows: %w", err)
	}
	return messages, nil
}

// AppendMessages writes a batch of messages as one logical append. Either
// the whole batch lands or none of it does.
func (s *ChatStore) AppendMessages(ctx context.Context, chatID string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range messages {
		toolCalls := m.ToolCalls
		if len(toolCalls) == 0 {
			toolCalls = json.RawMessage("null")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, role, content, tool_calls)
			 VALUES ($1, $2, $3, $4, $5)`,
			m.ID, chatID, m.Role, m.Content, []byte(toolCalls),
		); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return tx.Commit()
}

// CreateStreamHandle records a new stream id for a chat so interrupted
// deliveries can be resumed later.
func (s *ChatStore) CreateStreamHandle(ctx context.Context, streamID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_handles (id, chat_id) VALUES ($1, $2)`,
		streamID, chatID,
	)
	if err != nil {
		return fmt.Errorf("create stream handle: %w", err)
	}
	return nil
}

// LatestStreamID returns the most recent stream id for a chat.
func (s *ChatStore) LatestStreamID(ctx context.Context, chatID string) (string, error) {
	var streamID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM stream_handles WHERE chat_id = $1 ORDER BY created_at DESC LIMIT 1`,
		chatID,
	).Scan(&streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest stream id: %w", err)
	}
	return streamID, nil
}

// AssociateChatWithTenant links a chat to a tenant. Re-association of the
// same pair is a no-op so retried generations stay idempotent.
func (s *ChatStore) AssociateChatWithTenant(ctx context.Context, chatID, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_chats (tenant_id, chat_id)
		 VALUES ($1, $2)
		 ON CONFLICT (tenant_id, chat_id) DO NOTHING`,
		tenantID, chatID,
	)
	if err != nil {
		return fmt.Errorf("associate chat with tenant: %w", err)
	}
	return nil
}

// MessageCountSince counts user-authored messages across a user's chats in
// a trailing window. Used for rate limiting before a model call.
func (s *ChatStore) MessageCountSince(ctx context.Context, userID string, window time.Duration) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(m.id)
		 FROM messages m
		 JOIN chats c ON m.chat_id = c.id
		 WHERE c.user_id = $1 AND m.role = 'user' AND m.created_at >= $2`,
		userID, time.Now().Add(-window),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("message count since: %w", err)
	}
	return count, nil
}

// ListChatsByUser returns a user's chats, most recently created first.
func (s *ChatStore) ListChatsByUser(ctx context.Context, userID string, limit int) ([]Chat, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, visibility, created_at
		 FROM chats
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		var title sql.NullString
		if err := rows.Scan(&chat.ID, &chat.UserID, &title, &chat.Visibility, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chat.Title = title.String
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats rows: %w", err)
	}
	return chats, nil
}

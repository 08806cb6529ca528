// Package store persists conversations and their turns in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conversation is one chat thread owned by a user.
type Conversation struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	IsArchived    bool      `json:"is_archived"`
	IsPinned      bool      `json:"is_pinned"`
	TotalMessages int       `json:"total_messages"`
	AIModel       string    `json:"ai_model"`
}

// Turn is one message inside a conversation.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	TokensUsed     int       `json:"tokens_used"`
	Model          string    `json:"model,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
	IsEdited       bool      `json:"is_edited"`
	IsRegenerated  bool      `json:"is_regenerated"`
}

var ErrNotFound = errors.New("not found")

// ConversationStore is the persistence surface the service manager needs.
type ConversationStore interface {
	Create(ctx context.Context, userID, title, model string) (*Conversation, error)
	Get(ctx context.Context, userID string, id int64) (*Conversation, error)
	List(ctx context.Context, userID string, limit int) ([]Conversation, error)
	Delete(ctx context.Context, userID string, id int64) error
	AppendTurn(ctx context.Context, turn *Turn) (*Turn, error)
	RecentTurns(ctx context.Context, conversationID int64, n int) ([]Turn, error)
}

// PGConversationStore implements ConversationStore on pgx.
type PGConversationStore struct {
	db *pgxpool.Pool
}

func NewPGConversationStore(db *pgxpool.Pool) *PGConversationStore {
	return &PGConversationStore{db: db}
}

func (s *PGConversationStore) Create(ctx context.Context, userID, title, model string) (*Conversation, error) {
	c := &Conversation{UserID: userID, Title: title, AIModel: model}
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (user_id, title, ai_model)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, userID, title, model).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

func (s *PGConversationStore) Get(ctx context.Context, userID string, id int64) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, title, created_at, updated_at,
		       is_archived, is_pinned, total_messages, ai_model
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(
		&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt,
		&c.IsArchived, &c.IsPinned, &c.TotalMessages, &c.AIModel,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return &c, nil
}

func (s *PGConversationStore) List(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, title, created_at, updated_at,
		       is_archived, is_pinned, total_messages, ai_model
		FROM conversations
		WHERE user_id = $1 AND NOT is_archived
		ORDER BY is_pinned DESC, updated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt,
			&c.IsArchived, &c.IsPinned, &c.TotalMessages, &c.AIModel,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGConversationStore) Delete(ctx context.Context, userID string, id int64) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM conversations WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTurn inserts a turn and bumps the conversation's counters in one
// transaction so total_messages never drifts from the turn rows.
func (s *PGConversationStore) AppendTurn(ctx context.Context, turn *Turn) (*Turn, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO turns (conversation_id, role, content, tokens_used, model, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, timestamp
	`, turn.ConversationID, turn.Role, turn.Content, turn.TokensUsed, turn.Model, turn.ResponseTimeMs,
	).Scan(&turn.ID, &turn.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET total_messages = total_messages + 1, updated_at = NOW()
		WHERE id = $1
	`, turn.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("bump conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return turn, nil
}

// RecentTurns returns the newest n turns in chronological order.
func (s *PGConversationStore) RecentTurns(ctx context.Context, conversationID int64, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, timestamp,
		       tokens_used, COALESCE(model, ''), COALESCE(response_time_ms, 0),
		       is_edited, is_regenerated
		FROM turns
		WHERE conversation_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(
			&t.ID, &t.ConversationID, &t.Role, &t.Content, &t.Timestamp,
			&t.TokensUsed, &t.Model, &t.ResponseTimeMs, &t.IsEdited, &t.IsRegenerated,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Flip newest-first to oldest-first for prompt assembly.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

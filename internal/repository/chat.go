package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maritime-tutor/backend/internal/model"
)

// ChatRepo persists chat sessions and their append-only message history.
type ChatRepo struct {
	pool *pgxpool.Pool
}

// NewChatRepo creates a ChatRepo.
func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

// UpsertSession creates the session row if it doesn't exist yet. Sessions
// are created on first message of a session id, per the turn orchestrator.
func (r *ChatRepo) UpsertSession(ctx context.Context, sessionID, userID string) (*model.ChatSession, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (session_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET session_id = chat_sessions.session_id
		RETURNING session_id, user_id, user_name, created_at`,
		sessionID, userID, time.Now().UTC())

	var s model.ChatSession
	if err := row.Scan(&s.ID, &s.UserID, &s.DisplayName, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("repository.Chat.UpsertSession: %w", err)
	}
	return &s, nil
}

// AppendMessage inserts one message into the session's append-only history.
func (r *ChatRepo) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, is_blocked, block_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.IsBlocked, msg.BlockReason, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.Chat.AppendMessage: %w", err)
	}
	return nil
}

// LoadRecentMessages returns up to limit most recent non-blocked messages in
// chronological order — the only history source used to build the next
// prompt. Blocked messages remain in persistence for audit but are never
// returned here.
func (r *ChatRepo) LoadRecentMessages(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, role, content, is_blocked, block_reason, created_at
		FROM chat_messages
		WHERE session_id = $1 AND is_blocked = false
		ORDER BY created_at DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository.Chat.LoadRecentMessages: %w", err)
	}
	defer rows.Close()

	var messages []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.IsBlocked, &m.BlockReason, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.Chat.LoadRecentMessages: scan: %w", err)
		}
		m.Role = model.MessageRole(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to chronological order (query was newest-first for LIMIT)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListHistory returns a paginated, blocked-excluded view of a user's
// messages across all their sessions, newest first.
func (r *ChatRepo) ListHistory(ctx context.Context, userID string, limit, offset int) ([]model.ChatMessage, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM chat_messages m
		JOIN chat_sessions s ON m.session_id = s.session_id
		WHERE s.user_id = $1 AND m.is_blocked = false`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.Chat.ListHistory: count: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.session_id, m.role, m.content, m.is_blocked, m.block_reason, m.created_at
		FROM chat_messages m
		JOIN chat_sessions s ON m.session_id = s.session_id
		WHERE s.user_id = $1 AND m.is_blocked = false
		ORDER BY m.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.Chat.ListHistory: query: %w", err)
	}
	defer rows.Close()

	var messages []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.IsBlocked, &m.BlockReason, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("repository.Chat.ListHistory: scan: %w", err)
		}
		m.Role = model.MessageRole(role)
		messages = append(messages, m)
	}
	return messages, total, rows.Err()
}

// PurgeUser deletes all sessions (and, via cascade, messages) for a user.
func (r *ChatRepo) PurgeUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("repository.Chat.PurgeUser: %w", err)
	}
	return nil
}


package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studypal/internal/types"
)

// ChatRepo persists conversation transcripts for signed-in accounts.
// Anonymous chats are never stored.
type ChatRepo struct {
	db DBTX
}

// NewChatRepo creates a new ChatRepo backed by the given database connection
// (pool or transaction).
func NewChatRepo(db DBTX) *ChatRepo {
	return &ChatRepo{db: db}
}

// Create inserts a new chat. The ID is generated if unset.
func (r *ChatRepo) Create(ctx context.Context, chat *types.Chat) error {
	if chat.ID == "" {
		chat.ID = "chat_" + uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO chats (id, account_id, title, subject, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		chat.ID,
		chat.AccountID,
		chat.Title,
		chat.Subject,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create chat", err)
	}
	return nil
}

// GetOwned retrieves a chat only if it belongs to the given account. The
// ownership check lives in the query so a handler cannot forget it.
func (r *ChatRepo) GetOwned(ctx context.Context, chatID, accountID string) (*types.Chat, error) {
	var chat types.Chat
	err := r.db.QueryRow(ctx,
		`SELECT c.id, c.account_id, c.title, c.subject, c.created_at, c.updated_at
		 FROM chats c
		 WHERE c.id = $1 AND c.account_id = $2`,
		chatID,
		accountID,
	).Scan(
		&chat.ID,
		&chat.AccountID,
		&chat.Title,
		&chat.Subject,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundChat, "chat not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve chat", err)
	}
	return &chat, nil
}

// ListByAccount returns the account's chats, most recently updated first.
func (r *ChatRepo) ListByAccount(ctx context.Context, accountID string) ([]types.Chat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.account_id, c.title, c.subject, c.created_at, c.updated_at
		 FROM chats c
		 WHERE c.account_id = $1
		 ORDER BY c.updated_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list chats", err)
	}
	defer rows.Close()

	chats := []types.Chat{}
	for rows.Next() {
		var c types.Chat
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Title, &c.Subject, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan chat row", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate chat rows", err)
	}
	return chats, nil
}

// AddMessage appends one transcript entry and bumps the chat's updated_at.
func (r *ChatRepo) AddMessage(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = "msg_" + uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender, content, mode, subject, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		msg.ID,
		msg.ChatID,
		msg.Sender,
		msg.Content,
		msg.Mode,
		msg.Subject,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store message", err)
	}

	_, err = r.db.Exec(ctx,
		`UPDATE chats SET updated_at = NOW() WHERE id = $1`,
		msg.ChatID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to touch chat", err)
	}
	return nil
}

// ListMessages returns a chat's transcript in chronological order.
func (r *ChatRepo) ListMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT m.id, m.chat_id, m.sender, m.content, m.mode, m.subject, m.created_at
		 FROM messages m
		 WHERE m.chat_id = $1
		 ORDER BY m.created_at ASC`,
		chatID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list messages", err)
	}
	defer rows.Close()

	msgs := []types.Message{}
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Content, &m.Mode, &m.Subject, &m.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan message row", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate message rows", err)
	}
	return msgs, nil
}

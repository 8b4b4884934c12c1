package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studypal/internal/types"
)

func TestChatRepo_Create_GeneratesID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewChatRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	chat := &types.Chat{AccountID: "acct_1", Title: "Thermodynamics revision"}
	err := repo.Create(context.Background(), chat)
	require.NoError(t, err)
	assert.Contains(t, chat.ID, "chat_")
}

func TestChatRepo_GetOwned_WrongOwnerNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewChatRepo(db)

	// The ownership filter is in the WHERE clause, so another account's
	// chat id behaves exactly like a missing chat.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetOwned(context.Background(), "chat_1", "acct_other")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundChat, appErr.Code)
}

func TestChatRepo_AddMessage_TouchesChat(t *testing.T) {
	db := new(mockDBTX)
	repo := NewChatRepo(db)

	// Two Execs: the message insert and the chat updated_at bump.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Twice()

	msg := &types.Message{ChatID: "chat_1", Sender: types.SenderUser, Content: "explain entropy"}
	err := repo.AddMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Contains(t, msg.ID, "msg_")
	db.AssertExpectations(t)
}

func TestChatRepo_ListMessages_ChronologicalScan(t *testing.T) {
	db := new(mockDBTX)
	repo := NewChatRepo(db)

	now := time.Now().UTC()
	rows := newMockRows([][]any{
		{"msg_1", "chat_1", types.SenderUser, "explain entropy", "explain", "physics", now.Add(-time.Minute)},
		{"msg_2", "chat_1", types.SenderAI, "Entropy measures disorder...", "explain", "physics", now},
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	msgs, err := repo.ListMessages(context.Background(), "chat_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.SenderUser, msgs[0].Sender)
	assert.Equal(t, types.SenderAI, msgs[1].Sender)
}

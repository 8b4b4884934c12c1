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

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- SubscriptionRepo Tests ---

func TestSubscriptionRepo_GetByAccount_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	now := time.Now().UTC()
	expires := now.Add(20 * 24 * time.Hour)
	plan := "monthly"

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "acct_1"
				*dest[1].(*types.SubscriptionStatus) = types.SubStatusActive
				*dest[2].(**string) = &plan
				*dest[3].(**time.Time) = &expires
				*dest[4].(*int) = 3
				*dest[5].(*time.Time) = now
				*dest[6].(*time.Time) = now
				return nil
			},
		})

	sub, err := repo.GetByAccount(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusActive, sub.Status)
	assert.Equal(t, types.PlanMonthly, sub.Plan)
	assert.Equal(t, 3, sub.MessagesUsed)
	require.NotNil(t, sub.ExpiresAt)
	assert.True(t, sub.EntitledAt(now))
}

func TestSubscriptionRepo_GetByAccount_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByAccount(context.Background(), "acct_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSubscriptionRepo_EnsureDefault_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.EnsureDefault(context.Background(), "acct_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepo_EnsureDefault_ExistingRowUntouched(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	// ON CONFLICT DO NOTHING reports zero rows for an existing account.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	err := repo.EnsureDefault(context.Background(), "acct_existing")
	require.NoError(t, err)
}

func TestSubscriptionRepo_Activate_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Activate(context.Background(), "acct_1", types.PlanLifetime, types.LifetimeExpiry)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepo_Activate_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Activate(context.Background(), "acct_1", types.PlanMonthly, time.Now().Add(types.MonthlyDuration))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepo_Cancel_UnknownAccountIsNoop(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Cancel(context.Background(), "acct_unknown")
	require.NoError(t, err)
}

func TestSubscriptionRepo_IncrementMessagesUsed_Allowed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*int) = 7
				return nil
			},
		})

	used, ok, err := repo.IncrementMessagesUsed(context.Background(), "acct_1", 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, used)
}

func TestSubscriptionRepo_IncrementMessagesUsed_LimitReached(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	// The conditional UPDATE matches no row once messages_used >= limit.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	used, ok, err := repo.IncrementMessagesUsed(context.Background(), "acct_1", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, used)
}

func TestSubscriptionRepo_IncrementMessagesUsed_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("timeout")})

	_, _, err := repo.IncrementMessagesUsed(context.Background(), "acct_1", 10)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepo_RefundMessage_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.RefundMessage(context.Background(), "acct_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

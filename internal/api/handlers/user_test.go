package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studypal/internal/types"
)

type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) Upsert(ctx context.Context, acct *types.Account) error {
	args := m.Called(ctx, acct)
	return args.Error(0)
}

func (m *mockAccounts) GetByID(ctx context.Context, id string) (*types.Account, error) {
	args := m.Called(ctx, id)
	if a, ok := args.Get(0).(*types.Account); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSubReader struct {
	mock.Mock
}

func (m *mockSubReader) GetByAccount(ctx context.Context, accountID string) (*types.Subscription, error) {
	args := m.Called(ctx, accountID)
	if s, ok := args.Get(0).(*types.Subscription); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubReader) EnsureDefault(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func userRequest(method, body string, id types.Identity) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/v1/user", nil)
	} else {
		req = httptest.NewRequest(method, "/v1/user", strings.NewReader(body))
	}
	return req.WithContext(types.WithIdentity(req.Context(), id))
}

func TestHandleSaveProfile_CreatesDefaultSubscription(t *testing.T) {
	accounts := &mockAccounts{}
	accounts.On("Upsert", mock.Anything, mock.MatchedBy(func(a *types.Account) bool {
		return a.ID == "acct_1" && a.Email == "maria@uni.example" && a.Year == 2
	})).Return(nil)

	subs := &mockSubReader{}
	subs.On("EnsureDefault", mock.Anything, "acct_1").Return(nil)
	subs.On("GetByAccount", mock.Anything, "acct_1").
		Return(&types.Subscription{AccountID: "acct_1", Status: types.SubStatusFree, MessagesUsed: 3}, nil)

	h := NewUserHandler(accounts, subs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := `{"email":"maria@uni.example","country":"PT","university":"U Lisboa","course":"Biology","year":2}`
	w := httptest.NewRecorder()
	h.HandleSaveProfile(w, userRequest(http.MethodPut, body, types.AccountIdentity("acct_1")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subscription_status":"free"`)
	assert.Contains(t, w.Body.String(), `"messages_used":3`)
	accounts.AssertExpectations(t)
	subs.AssertExpectations(t)
}

func TestHandleSaveProfile_InvalidEmailRejected(t *testing.T) {
	accounts := &mockAccounts{}
	h := NewUserHandler(accounts, &mockSubReader{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := httptest.NewRecorder()
	h.HandleSaveProfile(w, userRequest(http.MethodPut, `{"email":"not-an-email"}`, types.AccountIdentity("acct_1")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	accounts.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestHandleSaveProfile_RequiresAccount(t *testing.T) {
	h := NewUserHandler(&mockAccounts{}, &mockSubReader{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := httptest.NewRecorder()
	h.HandleSaveProfile(w, userRequest(http.MethodPut, `{"email":"a@b.example"}`, types.AnonymousIdentity("1.2.3.4")))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleGetProfile_ActiveSubscriber(t *testing.T) {
	expires := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	accounts := &mockAccounts{}
	accounts.On("GetByID", mock.Anything, "acct_1").
		Return(&types.Account{ID: "acct_1", Email: "maria@uni.example"}, nil)

	subs := &mockSubReader{}
	subs.On("GetByAccount", mock.Anything, "acct_1").
		Return(&types.Subscription{
			AccountID: "acct_1",
			Status:    types.SubStatusActive,
			Plan:      types.PlanMonthly,
			ExpiresAt: &expires,
		}, nil)

	h := NewUserHandler(accounts, subs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := httptest.NewRecorder()
	h.HandleGetProfile(w, userRequest(http.MethodGet, "", types.AccountIdentity("acct_1")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subscription_status":"active"`)
	assert.Contains(t, w.Body.String(), `"plan":"monthly"`)
	assert.Contains(t, w.Body.String(), "2026-09-15")
}

func TestHandleGetProfile_MissingSubscriptionReadsAsFree(t *testing.T) {
	accounts := &mockAccounts{}
	accounts.On("GetByID", mock.Anything, "acct_1").
		Return(&types.Account{ID: "acct_1", Email: "maria@uni.example"}, nil)

	subs := &mockSubReader{}
	subs.On("GetByAccount", mock.Anything, "acct_1").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for account", nil))

	h := NewUserHandler(accounts, subs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := httptest.NewRecorder()
	h.HandleGetProfile(w, userRequest(http.MethodGet, "", types.AccountIdentity("acct_1")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subscription_status":"free"`)
	assert.Contains(t, w.Body.String(), `"messages_used":0`)
}

func TestHandleGetProfile_UnknownAccountIs404(t *testing.T) {
	accounts := &mockAccounts{}
	accounts.On("GetByID", mock.Anything, "acct_ghost").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil))

	h := NewUserHandler(accounts, &mockSubReader{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := httptest.NewRecorder()
	h.HandleGetProfile(w, userRequest(http.MethodGet, "", types.AccountIdentity("acct_ghost")))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studypal/internal/types"
)

func TestJSON_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/user", nil)

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"status": "free"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"status":"free"}}`, w.Body.String())
}

func TestError_AppErrorMapsStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req_1"))

	Error(w, r, types.NewAppError(types.ErrCodeQuotaExceededFreeTier, "free tier message limit reached; upgrade to continue", nil))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeQuotaExceededFreeTier), resp.Error.Code)
	assert.Equal(t, "req_1", resp.Error.RequestID)
}

func TestError_GenericErrorIsOpaque500(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/user", nil)

	Error(w, r, errors.New("pq: connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestDecodeJSON_Valid(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"hi"}`))

	var dst struct {
		Message string `json:"message"`
	}
	require.NoError(t, DecodeJSON(w, r, &dst))
	assert.Equal(t, "hi", dst.Message)
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"hi","admin":true}`))

	var dst struct {
		Message string `json:"message"`
	}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
}

func TestDecodeJSON_RejectsEmptyBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(""))

	var dst struct{}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "must not be empty")
}

func TestDecodeJSON_RejectsMultipleValues(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"a"}{"message":"b"}`))

	var dst struct {
		Message string `json:"message"`
	}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single JSON object")
}

package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studypal/internal/types"
)

func TestDodoClient_CreatePaymentLink_Success(t *testing.T) {
	var captured dodoPaymentReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer dodo_key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dodoPaymentResp{
			PaymentID:   "dodo_pay_1",
			PaymentLink: "https://checkout.dodopayments.com/pay/dodo_pay_1",
		})
	}))
	defer srv.Close()

	client := NewDodoClient(srv.URL, types.SecretString("dodo_key"))
	link, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		ProductID:   "pdt_studypal_monthly",
		AccountID:   "acct_1",
		Plan:        types.PlanMonthly,
		AmountCents: 200,
		Currency:    "USD",
		ReturnURL:   "https://app.studypal.example/billing/done",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.dodopayments.com/pay/dodo_pay_1", link)

	// Metadata is what ties the eventual webhook back to the account.
	assert.Equal(t, "acct_1", captured.Metadata["account_id"])
	assert.Equal(t, "monthly", captured.Metadata["plan_id"])
	require.Len(t, captured.ProductCart, 1)
	assert.Equal(t, "pdt_studypal_monthly", captured.ProductCart[0].ProductID)
}

func TestDodoClient_CreatePaymentLink_MissingLinkInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"payment_id":"dodo_pay_1"}`))
	}))
	defer srv.Close()

	client := NewDodoClient(srv.URL, types.SecretString("dodo_key"))
	_, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		ProductID: "pdt_studypal_monthly",
		AccountID: "acct_1",
		Plan:      types.PlanMonthly,
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamPayments, appErr.Code)
}

func TestDodoClient_CreatePaymentLink_ServerErrorAfterRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewDodoClient(srv.URL, types.SecretString("dodo_key"),
		WithSleepFunc(func(time.Duration) {}))
	_, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		ProductID: "pdt_studypal_monthly",
		AccountID: "acct_1",
		Plan:      types.PlanMonthly,
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamPayments, appErr.Code)
	assert.Equal(t, 502, appErr.HTTPStatus())
	// Initial attempt plus the policy's retries.
	assert.Equal(t, 1+DefaultRetryPolicy().MaxRetries, calls)
}

package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"studypal/internal/types"
)

// DodoClient creates hosted payment links at DodoPayments. The link carries
// the account id and plan id in metadata, which the provider echoes back in
// the webhook so the lifecycle can attribute the payment.
type DodoClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
}

// NewDodoClient creates a DodoClient against the given API base URL.
func NewDodoClient(baseURL string, apiKey types.SecretString, opts ...BaseClientOption) *DodoClient {
	return &DodoClient{
		base: NewBaseClient(
			&http.Client{Timeout: 15 * time.Second},
			"dodo-payments",
			DefaultRetryPolicy(),
			types.ErrCodeUpstreamPayments,
			opts...,
		),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// PaymentLinkRequest describes one checkout to create.
type PaymentLinkRequest struct {
	ProductID   string
	AccountID   string
	Plan        types.Plan
	AmountCents int64
	Currency    string
	ReturnURL   string
}

type dodoPaymentReq struct {
	ProductCart []dodoCartItem    `json:"product_cart"`
	Metadata    map[string]string `json:"metadata"`
	ReturnURL   string            `json:"return_url,omitempty"`
	PaymentLink bool              `json:"payment_link"`
}

type dodoCartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Amount    int64  `json:"amount,omitempty"`
}

type dodoPaymentResp struct {
	PaymentID   string `json:"payment_id"`
	PaymentLink string `json:"payment_link"`
}

// CreatePaymentLink creates a hosted checkout and returns its URL.
func (c *DodoClient) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (string, error) {
	body, err := json.Marshal(dodoPaymentReq{
		ProductCart: []dodoCartItem{{
			ProductID: req.ProductID,
			Quantity:  1,
			Amount:    req.AmountCents,
		}},
		Metadata: map[string]string{
			"account_id": req.AccountID,
			"plan_id":    string(req.Plan),
		},
		ReturnURL:   req.ReturnURL,
		PaymentLink: true,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode payment request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build payment request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", types.NewAppError(types.ErrCodeUpstreamPayments,
			fmt.Sprintf("payment provider returned %d", resp.StatusCode), nil)
	}

	var parsed dodoPaymentResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPayments,
			"failed to decode payment provider response", err)
	}
	if parsed.PaymentLink == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamPayments,
			"payment provider response missing payment link", nil)
	}
	return parsed.PaymentLink, nil
}

// This file implements the checkout and payment-history endpoints. Checkout
// creates a hosted payment link at the provider; the account id rides in the
// link metadata so the webhook can attribute the payment later.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studypal/internal/billing"
	"studypal/internal/core"
	"studypal/internal/external"
	"studypal/internal/types"
)

// PaymentLinkCreator is the provider call the billing handler needs.
type PaymentLinkCreator interface {
	CreatePaymentLink(ctx context.Context, req external.PaymentLinkRequest) (string, error)
}

// PaymentHistory lists recorded payments for an account.
type PaymentHistory interface {
	ListByAccount(ctx context.Context, accountID string) ([]types.PaymentRecord, error)
}

// BillingHandler serves checkout creation and payment history.
type BillingHandler struct {
	catalog  billing.PlanCatalog
	provider PaymentLinkCreator
	payments PaymentHistory
	// returnURL is where the provider sends the buyer after checkout.
	returnURL string
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler with the given dependencies.
func NewBillingHandler(
	catalog billing.PlanCatalog,
	provider PaymentLinkCreator,
	payments PaymentHistory,
	returnURL string,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		catalog:   catalog,
		provider:  provider,
		payments:  payments,
		returnURL: returnURL,
		logger:    logger,
	}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/create", h.HandleCreatePayment)
	r.Get("/billing/payments", h.HandleListPayments)
}

type createPaymentRequest struct {
	Plan      string `json:"plan"`
	PromoCode string `json:"promo_code,omitempty"`
}

type createPaymentResponse struct {
	PaymentURL  string `json:"payment_url"`
	Plan        string `json:"plan"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// HandleCreatePayment serves POST /v1/payments/create.
func (h *BillingHandler) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := types.GetIdentity(r.Context())
	if !ok || id.Kind != types.IdentityAccount {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"sign in to purchase a plan", nil))
		return
	}

	var req createPaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	details, ok := h.catalog.Get(types.Plan(req.Plan))
	if !ok {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlan,
			"unknown plan", nil, map[string]any{"plan": req.Plan}))
		return
	}

	amount := billing.DiscountedAmount(details.AmountCents, h.catalog.Discount(req.PromoCode))
	if amount != details.AmountCents {
		h.logger.InfoContext(r.Context(), "promo code applied",
			"account_id", id.Key,
			"plan", req.Plan,
			"amount_cents", amount,
		)
	}

	link, err := h.provider.CreatePaymentLink(r.Context(), external.PaymentLinkRequest{
		ProductID:   details.ProviderProductID,
		AccountID:   id.Key,
		Plan:        details.ID,
		AmountCents: amount,
		Currency:    details.Currency,
		ReturnURL:   h.returnURL + "/payment/complete",
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: createPaymentResponse{
		PaymentURL:  link,
		Plan:        string(details.ID),
		AmountCents: amount,
		Currency:    details.Currency,
	}})
}

// HandleListPayments serves GET /v1/billing/payments.
func (h *BillingHandler) HandleListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := types.GetIdentity(r.Context())
	if !ok || id.Kind != types.IdentityAccount {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"sign in to view payment history", nil))
		return
	}

	records, err := h.payments.ListByAccount(r.Context(), id.Key)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: records})
}

// Package handlers contains the HTTP handler implementations for the
// StudyPal API.
//
// This file implements the payment provider webhook intake. The endpoint is
// NOT behind identity middleware; authenticity comes from verifying the
// provider's HMAC signature over the raw body.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studypal/internal/billing"
	"studypal/internal/core"
	"studypal/internal/external"
	"studypal/internal/types"
)

// maxWebhookBodySize caps provider payloads at 64 KB. Real events are a few
// hundred bytes; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// EventApplier is the slice of the subscription lifecycle the intake needs.
type EventApplier interface {
	Apply(ctx context.Context, ev billing.Event) error
}

// WebhookHandler receives DodoPayments events and feeds them to the
// lifecycle state machine.
//
// Acknowledgement policy: the provider retries anything that is not 2xx, so
// the handler acks (200) everything it will never be able to process
// (malformed payloads, unknown event types) and only returns 5xx when a
// retry could actually succeed, i.e. when the ledger was unavailable.
type WebhookHandler struct {
	verifier  external.WebhookVerifier
	lifecycle EventApplier
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler with the given dependencies.
func NewWebhookHandler(verifier external.WebhookVerifier, lifecycle EventApplier, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{verifier: verifier, lifecycle: lifecycle, logger: logger}
}

// RegisterRoutes mounts the provider intake endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/dodo", h.Handle)
}

// dodoEvent is the provider's wire format. The account id travels in
// metadata, placed there by the payment-link creation call.
type dodoEvent struct {
	Type string `json:"type"`
	Data struct {
		PaymentID string `json:"payment_id"`
		ID        string `json:"id"`
		Amount    int64  `json:"total_amount"`
		Currency  string `json:"currency"`
		Metadata  struct {
			AccountID string `json:"account_id"`
			UserID    string `json:"user_id"`
			PlanID    string `json:"plan_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// Handle processes one provider delivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to read request body", err))
		return
	}

	// Header name differs across provider versions.
	sig := r.Header.Get("Dodo-Signature")
	if sig == "" {
		sig = r.Header.Get("X-Dodo-Signature")
	}
	if err := h.verifier.Verify(payload, sig); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, err)
		return
	}

	var ev dodoEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		// Unparseable but authentic. A retry would deliver the same
		// bytes, so ack and keep the payload in the logs.
		h.logger.ErrorContext(r.Context(), "malformed webhook payload acknowledged",
			"error", err,
			"payload_size", len(payload),
		)
		h.ack(w, r)
		return
	}

	accountID := ev.Data.Metadata.AccountID
	if accountID == "" {
		accountID = ev.Data.Metadata.UserID
	}
	paymentID := ev.Data.PaymentID
	if paymentID == "" {
		paymentID = ev.Data.ID
	}

	err = h.lifecycle.Apply(r.Context(), billing.Event{
		Type:              ev.Type,
		ProviderPaymentID: paymentID,
		AccountID:         accountID,
		Plan:              types.Plan(ev.Data.Metadata.PlanID),
		Amount:            ev.Data.Amount,
		Currency:          ev.Data.Currency,
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeMalformedEvent {
			h.logger.ErrorContext(r.Context(), "malformed webhook event acknowledged",
				"error", err,
				"type", ev.Type,
			)
			h.ack(w, r)
			return
		}
		// Ledger unavailable: a provider retry can succeed later.
		h.logger.ErrorContext(r.Context(), "webhook processing failed, requesting redelivery",
			"error", err,
			"type", ev.Type,
		)
		core.Error(w, r, err)
		return
	}

	h.ack(w, r)
}

func (h *WebhookHandler) ack(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

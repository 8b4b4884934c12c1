// This file implements the profile endpoints. Saving a profile is what
// creates the default free-tier subscription row; the GET combines profile
// and entitlement state for the web client's account page.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"studypal/internal/core"
	"studypal/internal/types"
)

// AccountStore is the profile persistence the user handler needs.
type AccountStore interface {
	Upsert(ctx context.Context, acct *types.Account) error
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// SubscriptionReader combines the reads and the default-row write the user
// handler needs from the subscription ledger.
type SubscriptionReader interface {
	GetByAccount(ctx context.Context, accountID string) (*types.Subscription, error)
	EnsureDefault(ctx context.Context, accountID string) error
}

// UserHandler serves the profile endpoints.
type UserHandler struct {
	accounts AccountStore
	subs     SubscriptionReader
	validate *validator.Validate
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler with the given dependencies.
func NewUserHandler(accounts AccountStore, subs SubscriptionReader, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		accounts: accounts,
		subs:     subs,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the profile endpoints.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Put("/user", h.HandleSaveProfile)
	r.Get("/user", h.HandleGetProfile)
}

type profileRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Country    string `json:"country,omitempty" validate:"max=100"`
	University string `json:"university,omitempty" validate:"max=200"`
	Course     string `json:"course,omitempty" validate:"max=200"`
	Year       int    `json:"year,omitempty" validate:"min=0,max=10"`
}

type profileResponse struct {
	Email              string                   `json:"email"`
	Country            string                   `json:"country,omitempty"`
	University         string                   `json:"university,omitempty"`
	Course             string                   `json:"course,omitempty"`
	Year               int                      `json:"year,omitempty"`
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status"`
	Plan               types.Plan               `json:"plan,omitempty"`
	ExpiresAt          *time.Time               `json:"expires_at,omitempty"`
	MessagesUsed       int                      `json:"messages_used"`
}

// HandleSaveProfile serves PUT /v1/user. Saving a profile also ensures the
// default free subscription exists, which is how accounts enter the ledger.
func (h *UserHandler) HandleSaveProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := types.GetIdentity(r.Context())
	if !ok || id.Kind != types.IdentityAccount {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"sign in to save a profile", nil))
		return
	}

	var req profileRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"invalid profile fields", err))
		return
	}

	acct := &types.Account{
		ID:         id.Key,
		Email:      req.Email,
		Country:    req.Country,
		University: req.University,
		Course:     req.Course,
		Year:       req.Year,
	}
	if err := h.accounts.Upsert(r.Context(), acct); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.subs.EnsureDefault(r.Context(), id.Key); err != nil {
		core.Error(w, r, err)
		return
	}

	h.respondProfile(w, r, id.Key, acct)
}

// HandleGetProfile serves GET /v1/user.
func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := types.GetIdentity(r.Context())
	if !ok || id.Kind != types.IdentityAccount {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"sign in to view your profile", nil))
		return
	}

	acct, err := h.accounts.GetByID(r.Context(), id.Key)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.respondProfile(w, r, id.Key, acct)
}

// respondProfile assembles the combined profile + entitlement view. An
// account without a subscription row reads as free tier with zero usage.
func (h *UserHandler) respondProfile(w http.ResponseWriter, r *http.Request, accountID string, acct *types.Account) {
	resp := profileResponse{
		Email:              acct.Email,
		Country:            acct.Country,
		University:         acct.University,
		Course:             acct.Course,
		Year:               acct.Year,
		SubscriptionStatus: types.SubStatusFree,
	}

	sub, err := h.subs.GetByAccount(r.Context(), accountID)
	if err == nil {
		resp.SubscriptionStatus = sub.Status
		resp.Plan = sub.Plan
		resp.ExpiresAt = sub.ExpiresAt
		resp.MessagesUsed = sub.MessagesUsed
	} else {
		h.logger.Warn("subscription lookup failed, reporting free tier",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

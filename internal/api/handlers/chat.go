// This file implements the chat endpoint: the metered path through the
// product. Authorization (quota charge) happens before the completion call;
// persistence only applies to signed-in accounts.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studypal/internal/core"
	"studypal/internal/external"
	"studypal/internal/metering"
	"studypal/internal/types"
)

// Authorizer charges one unit of the caller's allowance, or denies.
type Authorizer interface {
	Authorize(ctx context.Context, id types.Identity) (*metering.Grant, error)
	Refund(ctx context.Context, grant *metering.Grant)
}

// TranscriptStore persists chats for signed-in accounts.
type TranscriptStore interface {
	Create(ctx context.Context, chat *types.Chat) error
	GetOwned(ctx context.Context, chatID, accountID string) (*types.Chat, error)
	ListByAccount(ctx context.Context, accountID string) ([]types.Chat, error)
	AddMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, chatID string) ([]types.Message, error)
}

// ChatHandler serves chat turns and transcript reads.
type ChatHandler struct {
	limiter    Authorizer
	completion external.CompletionClient
	chats      TranscriptStore
	// refundOnFailure returns the charged unit when the completion call
	// fails. Off by default: quota is charged on attempt.
	refundOnFailure bool
	logger          *slog.Logger
}

// NewChatHandler creates a ChatHandler with the given dependencies.
func NewChatHandler(
	limiter Authorizer,
	completion external.CompletionClient,
	chats TranscriptStore,
	refundOnFailure bool,
	logger *slog.Logger,
) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		limiter:         limiter,
		completion:      completion,
		chats:           chats,
		refundOnFailure: refundOnFailure,
		logger:          logger,
	}
}

// RegisterRoutes mounts the chat endpoints.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
	r.Get("/chats", h.HandleListChats)
	r.Get("/chats/{chatID}/messages", h.HandleListMessages)
}

type chatRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty"`
	Subject string `json:"subject,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	ChatID    string `json:"chat_id,omitempty"`
	Unlimited bool   `json:"unlimited"`
	Remaining int    `json:"remaining"`
}

// HandleChat serves POST /v1/chat.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Message == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"message is required", nil))
		return
	}

	id, ok := types.GetIdentity(r.Context())
	if !ok {
		// Identity middleware always runs ahead of this handler; a
		// missing identity is a wiring bug, not a client error.
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"caller identity not resolved", nil))
		return
	}

	grant, err := h.limiter.Authorize(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	reply, err := h.completion.Generate(r.Context(), external.CompletionRequest{
		Message: req.Message,
		Mode:    req.Mode,
		Subject: req.Subject,
	})
	if err != nil {
		if h.refundOnFailure {
			h.limiter.Refund(r.Context(), grant)
		}
		core.Error(w, r, err)
		return
	}

	resp := chatResponse{
		Reply:     reply,
		Unlimited: grant.Unlimited,
		Remaining: grant.Remaining,
	}

	if id.Kind == types.IdentityAccount {
		resp.ChatID = h.persistTurn(r.Context(), id.Key, req, reply)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// persistTurn stores the user message and the reply. Persistence failures
// are logged, not surfaced: the student already has their answer, and a
// hole in the transcript beats a failed chat.
func (h *ChatHandler) persistTurn(ctx context.Context, accountID string, req chatRequest, reply string) string {
	chatID := req.ChatID
	if chatID != "" {
		if _, err := h.chats.GetOwned(ctx, chatID, accountID); err != nil {
			h.logger.Warn("chat lookup failed, starting a new chat",
				slog.String("chat_id", chatID),
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
			chatID = ""
		}
	}
	if chatID == "" {
		chat := &types.Chat{
			AccountID: accountID,
			Title:     truncateTitle(req.Message),
			Subject:   req.Subject,
		}
		if err := h.chats.Create(ctx, chat); err != nil {
			h.logger.Warn("failed to create chat",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
			return ""
		}
		chatID = chat.ID
	}

	for _, m := range []*types.Message{
		{ChatID: chatID, Sender: types.SenderUser, Content: req.Message, Mode: req.Mode, Subject: req.Subject},
		{ChatID: chatID, Sender: types.SenderAI, Content: reply, Mode: req.Mode, Subject: req.Subject},
	} {
		if err := h.chats.AddMessage(ctx, m); err != nil {
			h.logger.Warn("failed to store message",
				slog.String("chat_id", chatID),
				slog.String("error", err.Error()),
			)
			return chatID
		}
	}
	return chatID
}

// truncateTitle derives a chat title from the first message.
func truncateTitle(message string) string {
	const maxTitle = 60
	if len(message) <= maxTitle {
		return message
	}
	return message[:maxTitle] + "..."
}

// HandleListChats serves GET /v1/chats.
func (h *ChatHandler) HandleListChats(w http.ResponseWriter, r *http.Request) {
	id, ok := types.GetIdentity(r.Context())
	if !ok || id.Kind != types.IdentityAccount {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"sign in to view chat history", nil))
		return
	}

	chats, err := h.chats.ListByAccount(r.Context(), id.Key)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: chats})
}

// HandleListMessages serves GET /v1/chats/{chatID}/messages.
func (h *ChatHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := types.GetIdentity(r.Context())
	if !ok || id.Kind != types.IdentityAccount {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"sign in to view chat history", nil))
		return
	}

	chatID := chi.URLParam(r, "chatID")
	if _, err := h.chats.GetOwned(r.Context(), chatID, id.Key); err != nil {
		core.Error(w, r, err)
		return
	}

	msgs, err := h.chats.ListMessages(r.Context(), chatID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: msgs})
}

// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prepwise/mock-interview/internal/middleware"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/internal/service"
	"github.com/prepwise/mock-interview/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/conversations/create. It answers 201 for a
// new conversation and 200 when the open one is reused.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateConversationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, created, err := h.service.Create(ctx, userID, req.SessionID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, model.ConversationResponse{Conversation: conv})
}

// ListMine handles GET /api/v1/conversations/my-conversations
func (h *ConversationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	convs, err := h.service.ListMine(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListConversationsResponse{Conversations: convs})
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.Get(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ConversationResponse{Conversation: conv})
}

// Complete handles POST /api/v1/conversations/{id}/complete
func (h *ConversationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req model.CompleteConversationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.Complete(ctx, middleware.GetUserID(ctx), conversationID, req.FinalFeedback, req.Duration)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ConversationResponse{Conversation: conv})
}

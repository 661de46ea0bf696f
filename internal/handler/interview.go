package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prepwise/mock-interview/internal/middleware"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/internal/service"
	"github.com/prepwise/mock-interview/pkg/logger"
)

// InterviewHandler exposes the server-driven interview flow, where the
// stored log is the only history used for prompts.
type InterviewHandler struct {
	service *service.InterviewService
	logger  *logger.Logger
}

// NewInterviewHandler creates a new interview handler.
func NewInterviewHandler(svc *service.InterviewService, log *logger.Logger) *InterviewHandler {
	return &InterviewHandler{service: svc, logger: log}
}

// Start handles POST /api/v1/conversations/{id}/start
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, msg, err := h.service.Start(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.AppendMessageResponse{Conversation: conv, NewMessage: msg})
}

// Advance handles POST /api/v1/conversations/{id}/advance
func (h *InterviewHandler) Advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req model.AdvanceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateText("userResponse", req.UserResponse); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, msg, err := h.service.Advance(ctx, middleware.GetUserID(ctx), conversationID, req.UserResponse)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.AppendMessageResponse{Conversation: conv, NewMessage: msg})
}

// Finish handles POST /api/v1/conversations/{id}/finish. The body is optional.
func (h *InterviewHandler) Finish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req model.FinishRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.Finish(ctx, middleware.GetUserID(ctx), conversationID, req.Duration)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ConversationResponse{Conversation: conv})
}

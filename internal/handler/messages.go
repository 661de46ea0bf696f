package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prepwise/mock-interview/internal/middleware"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/internal/service"
	"github.com/prepwise/mock-interview/pkg/logger"
)

// MessageHandler handles client-driven message appends.
type MessageHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.ConversationService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// Append handles POST /api/v1/conversations/{id}/message
func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req model.AppendMessageRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateText("message", req.Message); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	msg := req.ToMessage()
	conv, err := h.service.AppendMessage(ctx, middleware.GetUserID(ctx), conversationID, msg)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.AppendMessageResponse{
		Conversation: conv,
		NewMessage:   &msg,
	})
}

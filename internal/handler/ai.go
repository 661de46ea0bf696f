package handler

import (
	"net/http"

	"github.com/prepwise/mock-interview/internal/generation"
	"github.com/prepwise/mock-interview/internal/middleware"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/internal/prompt"
	"github.com/prepwise/mock-interview/pkg/logger"
)

// AIHandler serves the stateless generation endpoints. The client supplies
// the history and nothing is stored.
type AIHandler struct {
	generator *generation.Generator
	logger    *logger.Logger
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(gen *generation.Generator, log *logger.Logger) *AIHandler {
	return &AIHandler{generator: gen, logger: log}
}

type conversationRequest struct {
	prompt.Params
	ConversationHistory []model.Message `json:"conversationHistory"`
	UserResponse        string          `json:"userResponse"`
}

type questionsRequest struct {
	prompt.Params
	NumberOfQuestions int `json:"numberOfQuestions"`
}

type explanationRequest struct {
	Question string `json:"question"`
}

// StartConversation handles POST /api/v1/ai/start-conversation
func (h *AIHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	res, err := h.generator.Start(r.Context(), req.Params)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ContinueConversation handles POST /api/v1/ai/continue-conversation
func (h *AIHandler) ContinueConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if err := middleware.ValidateText("userResponse", req.UserResponse); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	res, err := h.generator.Continue(r.Context(), req.Params, req.ConversationHistory, req.UserResponse)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EndConversation handles POST /api/v1/ai/end-conversation
func (h *AIHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	res, err := h.generator.End(r.Context(), req.Params, req.ConversationHistory)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateQuestions handles POST /api/v1/ai/generate-questions
func (h *AIHandler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	res, err := h.generator.Questions(r.Context(), req.Params, req.NumberOfQuestions)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateExplanation handles POST /api/v1/ai/generate-explanation
func (h *AIHandler) GenerateExplanation(w http.ResponseWriter, r *http.Request) {
	var req explanationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	res, err := h.generator.Explain(r.Context(), req.Question)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

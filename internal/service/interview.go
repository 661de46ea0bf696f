package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/generation"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/internal/prompt"
	"github.com/prepwise/mock-interview/pkg/logger"
)

// InterviewService drives a conversation through its phases:
// not started (empty log), active, completed. Each transition asks the
// generator for the interviewer's turn and only writes once it succeeds,
// guarded on the log length it generated from. A request that loses a race
// fails with apperr.ErrConversationChanged and writes nothing.
type InterviewService struct {
	conversations *ConversationService
	generator     *generation.Generator
	logger        *logger.Logger
	now           func() time.Time
}

// NewInterviewService creates a new interview service.
func NewInterviewService(conversations *ConversationService, generator *generation.Generator, log *logger.Logger) *InterviewService {
	return &InterviewService{
		conversations: conversations,
		generator:     generator,
		logger:        log.Named("interview"),
		now:           time.Now,
	}
}

// Create opens or resumes the interview for a session.
func (s *InterviewService) Create(ctx context.Context, userID, sessionID string) (*model.Conversation, bool, error) {
	return s.conversations.Create(ctx, userID, sessionID)
}

// Start asks for the opening question and appends it.
func (s *InterviewService) Start(ctx context.Context, userID, conversationID string) (conv *model.Conversation, msg *model.Message, err error) {
	ctx, span := s.conversations.startSpan(ctx, "interview.start", userID, conversationID)
	defer func() { endSpan(span, err) }()

	conv, params, err := s.load(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if len(conv.Messages) > 0 {
		return nil, nil, apperr.Validation("interview has already started")
	}

	res, err := s.generator.Start(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	opening := model.NewInterviewerMessage(res.Message, "", res.QuestionType, res.Difficulty)
	if conv, err = s.conversations.append(ctx, conversationID, 0, opening); err != nil {
		return nil, nil, err
	}

	s.logger.WithConversation(userID, conversationID).Info("interview started",
		zap.String("question_type", string(res.QuestionType)),
	)
	return conv, conv.LastMessage(), nil
}

// Advance records the candidate's answer together with the interviewer's
// reply. The prompt is built from the stored log, and both messages are
// appended in one write after generation succeeds.
func (s *InterviewService) Advance(ctx context.Context, userID, conversationID, userResponse string) (conv *model.Conversation, msg *model.Message, err error) {
	ctx, span := s.conversations.startSpan(ctx, "interview.advance", userID, conversationID)
	defer func() { endSpan(span, err) }()

	userResponse = strings.TrimSpace(userResponse)
	if userResponse == "" {
		return nil, nil, apperr.Validation("userResponse is required")
	}

	conv, params, err := s.load(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if len(conv.Messages) == 0 {
		return nil, nil, apperr.Validation("interview has not started")
	}

	res, err := s.generator.Continue(ctx, params, conv.Messages, userResponse)
	if err != nil {
		return nil, nil, err
	}

	answer := model.NewCandidateMessage(userResponse)
	reply := model.NewInterviewerMessage(res.Message, res.Feedback, res.QuestionType, res.Difficulty)
	if conv, err = s.conversations.append(ctx, conversationID, len(conv.Messages), answer, reply); err != nil {
		return nil, nil, err
	}

	return conv, conv.LastMessage(), nil
}

// Finish asks for the closing evaluation and completes the conversation.
// A non-positive duration is replaced by the time since the interview began.
func (s *InterviewService) Finish(ctx context.Context, userID, conversationID string, duration float64) (conv *model.Conversation, err error) {
	ctx, span := s.conversations.startSpan(ctx, "interview.finish", userID, conversationID)
	defer func() { endSpan(span, err) }()

	conv, params, err := s.load(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if len(conv.Messages) == 0 {
		return nil, apperr.Validation("interview has not started")
	}

	res, err := s.generator.End(ctx, params, conv.Messages)
	if err != nil {
		return nil, err
	}

	if duration <= 0 {
		duration = s.now().Sub(conv.StartedAt).Seconds()
	}
	closing := model.NewInterviewerMessage(res.Message, "", "", "")
	evaluated := len(conv.Messages)

	return s.conversations.complete(ctx, conversationID, model.Completion{
		FinalFeedback: res.FinalFeedback(),
		Duration:      duration,
		Closing:       &closing,
		ExpectedLen:   &evaluated,
	})
}

// load fetches an owned, non-terminal conversation and its prompt parameters.
func (s *InterviewService) load(ctx context.Context, userID, conversationID string) (*model.Conversation, prompt.Params, error) {
	conv, err := s.conversations.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, prompt.Params{}, err
	}
	if conv.Status.IsTerminal() {
		return nil, prompt.Params{}, apperr.ErrConversationCompleted
	}

	sess, err := s.conversations.session(ctx, userID, conv.SessionID)
	if err != nil {
		return nil, prompt.Params{}, err
	}
	return conv, prompt.ParamsFromSession(sess), nil
}

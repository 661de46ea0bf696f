// Package service holds the conversation business logic: ownership checks,
// validation, the interview state machine and event publishing.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/model"
	natsclient "github.com/prepwise/mock-interview/internal/nats"
	"github.com/prepwise/mock-interview/internal/store"
	"github.com/prepwise/mock-interview/pkg/logger"
	"github.com/prepwise/mock-interview/pkg/metrics"
	"github.com/prepwise/mock-interview/pkg/tracing"
)

// ConversationService handles conversation operations on behalf of a user.
type ConversationService struct {
	conversations store.ConversationStore
	sessions      store.SessionStore
	bus           natsclient.Bus
	logger        *logger.Logger
	tracer        trace.Tracer
}

// NewConversationService creates a new conversation service. bus may be nil.
func NewConversationService(
	conversations store.ConversationStore,
	sessions store.SessionStore,
	bus natsclient.Bus,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		sessions:      sessions,
		bus:           bus,
		logger:        log.Named("conversations"),
		tracer:        tracing.Tracer("github.com/prepwise/mock-interview/internal/service"),
	}
}

// Create returns the user's open conversation for the session, creating it
// if needed. created reports whether a new conversation was made.
func (s *ConversationService) Create(ctx context.Context, userID, sessionID string) (conv *model.Conversation, created bool, err error) {
	ctx, span := s.startSpan(ctx, "conversation.create", userID, "")
	defer func() { endSpan(span, err) }()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, apperr.Validation("sessionId is required")
	}

	if _, err := s.session(ctx, userID, sessionID); err != nil {
		return nil, false, err
	}

	conv, created, err = s.conversations.CreateOrReuse(ctx, sessionID, userID)
	if err != nil {
		return nil, false, err
	}

	if created {
		metrics.ConversationsCreatedTotal.Inc()
		s.publish(ctx, conv, model.EventConversationCreated)
		s.logger.WithConversation(userID, conv.ID).Info("conversation created",
			zap.String("session_id", sessionID),
		)
	}

	return conv, created, nil
}

// AppendMessage validates msg and appends it to the user's conversation.
func (s *ConversationService) AppendMessage(ctx context.Context, userID, conversationID string, msg model.Message) (conv *model.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "conversation.append", userID, conversationID)
	defer func() { endSpan(span, err) }()

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	return s.append(ctx, conversationID, model.AnyLength, msg)
}

// Complete stores the final evaluation and makes the conversation terminal.
func (s *ConversationService) Complete(ctx context.Context, userID, conversationID string, feedback *model.FinalFeedback, duration float64) (conv *model.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "conversation.complete", userID, conversationID)
	defer func() { endSpan(span, err) }()

	if feedback == nil {
		return nil, apperr.Validation("finalFeedback is required")
	}
	if duration < 0 {
		return nil, apperr.Validation("duration must not be negative")
	}

	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	return s.complete(ctx, conversationID, model.Completion{
		FinalFeedback: *feedback,
		Duration:      duration,
	})
}

// Get returns a conversation the user owns.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, apperr.ErrNotAuthorized
	}
	return conv, nil
}

// ListMine returns the user's conversations, newest first.
func (s *ConversationService) ListMine(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.conversations.ListByUser(ctx, userID)
}

// session loads a session and checks it belongs to userID. Sessions with
// no recorded owner are readable by anyone.
func (s *ConversationService) session(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != "" && sess.UserID != userID {
		return nil, apperr.ErrNotAuthorized
	}
	return sess, nil
}

// append writes msgs; expectedLen guards against a log that moved since the
// caller read it.
func (s *ConversationService) append(ctx context.Context, conversationID string, expectedLen int, msgs ...model.Message) (*model.Conversation, error) {
	conv, err := s.conversations.AppendMessages(ctx, conversationID, expectedLen, msgs...)
	if err != nil {
		return nil, err
	}

	senders := make([]string, len(msgs))
	for i, m := range msgs {
		senders[i] = string(m.Sender)
	}
	metrics.RecordMessages(senders...)
	s.publish(ctx, conv, model.EventMessageAppended, msgs...)

	return conv, nil
}

func (s *ConversationService) complete(ctx context.Context, conversationID string, c model.Completion) (*model.Conversation, error) {
	conv, err := s.conversations.MarkCompleted(ctx, conversationID, c)
	if err != nil {
		return nil, err
	}

	metrics.ConversationsCompletedTotal.Inc()
	if c.Closing != nil {
		metrics.RecordMessages(string(c.Closing.Sender))
		s.publish(ctx, conv, model.EventConversationCompleted, *c.Closing)
	} else {
		s.publish(ctx, conv, model.EventConversationCompleted)
	}

	s.logger.WithConversation(conv.UserID, conv.ID).Info("conversation completed",
		zap.Int("messages", len(conv.Messages)),
	)
	return conv, nil
}

// publish emits an event after a successful mutation. Failures are logged
// and counted; the mutation already happened.
func (s *ConversationService) publish(ctx context.Context, conv *model.Conversation, typ model.EventType, msgs ...model.Message) {
	if s.bus == nil {
		return
	}

	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Type:           typ,
		Status:         conv.Status,
		Messages:       msgs,
		MessageCount:   len(conv.Messages),
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(typ), "error").Inc()
		s.logger.WithConversation(conv.UserID, conv.ID).Warn("failed to publish event",
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(typ), "ok").Inc()
}

func (s *ConversationService) startSpan(ctx context.Context, name, userID, conversationID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("user.id", userID))
	if conversationID != "" {
		span.SetAttributes(attribute.String("conversation.id", conversationID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

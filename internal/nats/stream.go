package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/pkg/logger"
)

const (
	// StreamName is the JetStream stream holding interview events.
	StreamName = "INTERVIEWS"

	// SubjectPrefix is the first token of every interview subject.
	SubjectPrefix = "interview"
)

// Bus publishes conversation events and delivers them to live subscribers.
type Bus interface {
	Publish(ctx context.Context, event *model.ConversationEvent) error
	// Subscribe calls fn for every event on the conversation published
	// after the call. The returned func stops delivery.
	Subscribe(ctx context.Context, userID, conversationID string, fn func(model.ConversationEvent)) (stop func(), err error)
	Healthy(ctx context.Context) error
}

// StreamManager is the JetStream-backed Bus.
type StreamManager struct {
	client *Client
	logger *logger.Logger
}

var _ Bus = (*StreamManager)(nil)

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, log *logger.Logger) *StreamManager {
	return &StreamManager{client: client, logger: log.Named("stream")}
}

// EnsureStream creates or updates the interviews stream.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	_, err := m.client.JetStream().CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Mock interview conversation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(userID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, token(userID), token(conversationID), token(string(eventType)))
}

// ConversationFilter matches every event of one conversation.
func ConversationFilter(userID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, token(userID), token(conversationID))
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publish writes the event to JetStream.
func (m *StreamManager) Publish(ctx context.Context, event *model.ConversationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := EventSubject(event.UserID, event.ConversationID, event.Type)
	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	m.logger.Debug("event published",
		zap.String("subject", subject),
		zap.Uint64("sequence", ack.Sequence),
	)
	return nil
}

// Subscribe attaches an ordered consumer that delivers new events only.
func (m *StreamManager) Subscribe(ctx context.Context, userID, conversationID string, fn func(model.ConversationEvent)) (func(), error) {
	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(userID, conversationID)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var event model.ConversationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			m.logger.Warn("dropping undecodable event",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			return
		}
		fn(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	return cc.Stop, nil
}

// Healthy reports whether the connection is up.
func (m *StreamManager) Healthy(ctx context.Context) error {
	if !m.client.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventConversationCreated   EventType = "conversation.created"
	EventMessageAppended       EventType = "message.appended"
	EventConversationCompleted EventType = "conversation.completed"
)

// ConversationEvent is published after every conversation mutation.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Type           EventType `json:"type"`
	Status         Status    `json:"status"`
	Messages       []Message `json:"messages,omitempty"`
	// MessageCount is the log length after the mutation.
	MessageCount   int       `json:"messageCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ReplayCompleteEvent marks the end of the stored-message replay on a stream.
type ReplayCompleteEvent struct {
	MessageCount int  `json:"messageCount"`
	Live         bool `json:"live"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

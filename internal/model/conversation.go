// Package model defines data structures for the mock interview service.
package model

import (
	"time"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// FinalFeedback is the evaluation stored when an interview completes.
type FinalFeedback struct {
	OverallFeedback    string   `json:"overallFeedback" bson:"overallFeedback"`
	Strengths          []string `json:"strengths" bson:"strengths"`
	Improvements       []string `json:"improvements" bson:"improvements"`
	Score              string   `json:"score" bson:"score"`
	RecommendedActions []string `json:"recommendedActions" bson:"recommendedActions"`
}

// Conversation is one conversational interview owned by a (session, user) pair.
type Conversation struct {
	ID            string         `json:"id" bson:"_id"`
	SessionID     string         `json:"sessionId" bson:"sessionId"`
	UserID        string         `json:"userId" bson:"userId"`
	Status        Status         `json:"status" bson:"status"`
	Messages      []Message      `json:"messages" bson:"messages"`
	FinalFeedback *FinalFeedback `json:"finalFeedback,omitempty" bson:"finalFeedback,omitempty"`
	Duration      *float64       `json:"duration,omitempty" bson:"duration,omitempty"`
	StartedAt     time.Time      `json:"startedAt" bson:"startedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if c.FinalFeedback != nil {
		fb := *c.FinalFeedback
		fb.Strengths = append([]string(nil), c.FinalFeedback.Strengths...)
		fb.Improvements = append([]string(nil), c.FinalFeedback.Improvements...)
		fb.RecommendedActions = append([]string(nil), c.FinalFeedback.RecommendedActions...)
		out.FinalFeedback = &fb
	}
	if c.Duration != nil {
		d := *c.Duration
		out.Duration = &d
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// LastMessage returns the most recent message, or nil for an empty log.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	m := c.Messages[len(c.Messages)-1]
	return &m
}

// AnyLength skips the message-count guard on a store write.
const AnyLength = -1

// Completion carries everything written when a conversation completes.
type Completion struct {
	FinalFeedback FinalFeedback
	Duration      float64
	Closing       *Message
	// ExpectedLen, when set, makes the write fail unless the log holds
	// exactly that many messages.
	ExpectedLen *int
}

// CreateConversationRequest is the request to create or resume a conversation.
type CreateConversationRequest struct {
	SessionID string `json:"sessionId"`
}

// CompleteConversationRequest is the request to complete a conversation.
type CompleteConversationRequest struct {
	FinalFeedback *FinalFeedback `json:"finalFeedback"`
	Duration      float64        `json:"duration"`
}

// FinishRequest is the optional body for the server-driven finish call.
type FinishRequest struct {
	Duration float64 `json:"duration,omitempty"`
}

// ConversationResponse wraps a single conversation.
type ConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

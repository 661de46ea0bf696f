package model

import (
	"strings"
	"time"

	"github.com/prepwise/mock-interview/internal/apperr"
)

// Sender identifies who produced a conversation message.
type Sender string

const (
	SenderInterviewer Sender = "interviewer"
	SenderCandidate   Sender = "candidate"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderInterviewer || s == SenderCandidate
}

// QuestionType classifies an interviewer message.
type QuestionType string

const (
	QuestionIntroduction  QuestionType = "introduction"
	QuestionTechnical     QuestionType = "technical"
	QuestionBehavioral    QuestionType = "behavioral"
	QuestionFollowUp      QuestionType = "follow-up"
	QuestionClarification QuestionType = "clarification"
)

// Valid reports whether q is empty or a known question type.
func (q QuestionType) Valid() bool {
	switch q {
	case "", QuestionIntroduction, QuestionTechnical, QuestionBehavioral, QuestionFollowUp, QuestionClarification:
		return true
	}
	return false
}

// Difficulty grades an interviewer question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is empty or a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Message is one entry in a conversation log. Messages are never modified
// after they are appended.
type Message struct {
	Sender       Sender       `json:"sender" bson:"sender"`
	Text         string       `json:"message" bson:"message"`
	Timestamp    time.Time    `json:"timestamp" bson:"timestamp"`
	Feedback     string       `json:"feedback,omitempty" bson:"feedback,omitempty"`
	QuestionType QuestionType `json:"questionType,omitempty" bson:"questionType,omitempty"`
	Difficulty   Difficulty   `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

// Validate checks the sender, text and optional enums.
func (m *Message) Validate() error {
	if !m.Sender.Valid() {
		return apperr.Validation("sender must be one of interviewer, candidate")
	}
	if strings.TrimSpace(m.Text) == "" {
		return apperr.Validation("message is required")
	}
	if !m.QuestionType.Valid() {
		return apperr.Validation("invalid questionType %q", m.QuestionType)
	}
	if !m.Difficulty.Valid() {
		return apperr.Validation("invalid difficulty %q", m.Difficulty)
	}
	return nil
}

// NewInterviewerMessage creates an interviewer message stamped with now.
func NewInterviewerMessage(text, feedback string, qt QuestionType, d Difficulty) Message {
	return Message{
		Sender:       SenderInterviewer,
		Text:         text,
		Timestamp:    time.Now().UTC(),
		Feedback:     feedback,
		QuestionType: qt,
		Difficulty:   d,
	}
}

// NewCandidateMessage creates a candidate message stamped with now.
func NewCandidateMessage(text string) Message {
	return Message{
		Sender:    SenderCandidate,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// AppendMessageRequest is the request to append a message to a conversation.
type AppendMessageRequest struct {
	Sender       Sender       `json:"sender"`
	Message      string       `json:"message"`
	Feedback     string       `json:"feedback,omitempty"`
	QuestionType QuestionType `json:"questionType,omitempty"`
	Difficulty   Difficulty   `json:"difficulty,omitempty"`
}

// ToMessage converts the request into a timestamped message.
func (r *AppendMessageRequest) ToMessage() Message {
	return Message{
		Sender:       r.Sender,
		Text:         r.Message,
		Timestamp:    time.Now().UTC(),
		Feedback:     r.Feedback,
		QuestionType: r.QuestionType,
		Difficulty:   r.Difficulty,
	}
}

// AppendMessageResponse is the response after appending a message.
type AppendMessageResponse struct {
	Conversation *Conversation `json:"conversation"`
	NewMessage   *Message      `json:"newMessage"`
}

// AdvanceRequest carries the candidate's answer for the server-driven flow.
type AdvanceRequest struct {
	UserResponse string `json:"userResponse"`
}

package middleware

import (
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/prepwise/mock-interview/internal/apperr"
)

// MaxTextLength caps any message or utterance accepted over HTTP.
const MaxTextLength = 20000

// ValidateText checks a free-text field such as a message or an answer.
func ValidateText(field, content string) error {
	if len(content) > MaxTextLength {
		return apperr.Validation("%s exceeds maximum length", field)
	}
	if !utf8.ValidString(content) {
		return apperr.Validation("%s must be valid UTF-8", field)
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("invalid conversation ID format")
	}
	return nil
}

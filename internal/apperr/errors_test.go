package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      Validation("role is required"),
			expected: "role is required",
		},
		{
			name:     "with cause",
			err:      Upstream(errors.New("connection refused"), "generation request failed"),
			expected: "generation request failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("x"), KindValidation},
		{"wrapped not found", fmt.Errorf("load: %w", ErrConversationNotFound), KindNotFound},
		{"malformed", Malformed(errors.New("bad"), "decode"), KindMalformed},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinelMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("append: %w", ErrConversationCompleted)
	if !errors.Is(err, ErrConversationCompleted) {
		t.Fatal("expected errors.Is to match ErrConversationCompleted")
	}
	if errors.Is(err, ErrConversationNotFound) {
		t.Fatal("did not expect match with ErrConversationNotFound")
	}
}

func TestUpstreamAndMalformedAreDistinct(t *testing.T) {
	up := Upstream(errors.New("timeout"), "generation request failed")
	bad := Malformed(errors.New("invalid character"), "generation returned invalid JSON")

	if !up.Retryable() {
		t.Error("upstream errors should be retryable")
	}
	if bad.Retryable() {
		t.Error("malformed errors should not be retryable")
	}
	if KindOf(up) == KindOf(bad) {
		t.Error("upstream and malformed must be distinguishable")
	}
	if IsClientError(up) || IsClientError(bad) {
		t.Error("upstream and malformed are server errors")
	}
	if !IsClientError(ErrNotAuthorized) {
		t.Error("authorization is a client error")
	}
}

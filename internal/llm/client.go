// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Format is the shape a reply must take.
type Format string

const (
	FormatText   Format = ""
	FormatObject Format = "json_object"
	FormatArray  Format = "json_array"
)

// opening returns the first character a reply in this format starts with.
func (f Format) opening() string {
	switch f {
	case FormatObject:
		return "{"
	case FormatArray:
		return "["
	}
	return ""
}

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	Format      Format
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserPrompt wraps a single prompt string as a one-message conversation.
func UserPrompt(prompt string) []ChatMessage {
	return []ChatMessage{{Role: "user", Content: prompt}}
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Truncated reports whether the provider stopped at the token limit.
func (r *CompletionResponse) Truncated() bool {
	switch r.StopReason {
	case "max_tokens", "length":
		return true
	}
	return false
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderLangChain Provider = "langchain"
)

// ParseProvider returns the provider named by s.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderAnthropic, ProviderOpenAI, ProviderLangChain:
		return p, nil
	}
	return "", fmt.Errorf("unknown LLM provider %q", s)
}

// Options configures provider construction.
type Options struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Model    string
}

// NewClient creates a new LLM client based on provider.
func NewClient(opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey)
	case ProviderOpenAI:
		return NewOpenAIClient(opts.APIKey, opts.BaseURL)
	case ProviderLangChain:
		return NewLangChainClient(opts.BaseURL, opts.APIKey, opts.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}

package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient talks to any OpenAI-compatible endpoint (Ollama, vLLM,
// LiteLLM) through langchaingo.
type LangChainClient struct {
	llm   llms.Model
	model string
}

// NewLangChainClient creates a client for an OpenAI-compatible base URL.
func NewLangChainClient(baseURL, token, model string) (*LangChainClient, error) {
	if baseURL == "" {
		return nil, errors.New("LLM base URL is required for the langchain provider")
	}
	if model == "" {
		return nil, errors.New("LLM model is required for the langchain provider")
	}
	if token == "" {
		// Local servers ignore the token but the client refuses an empty one.
		token = "unused"
	}

	l, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}

	return &LangChainClient{llm: l, model: model}, nil
}

// Name returns the provider name.
func (c *LangChainClient) Name() string {
	return string(ProviderLangChain)
}

// Models returns the single configured model.
func (c *LangChainClient) Models() []string {
	return []string{c.model}
}

// Complete flattens the messages into one prompt and generates a reply.
func (c *LangChainClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	parts := make([]string, 0, len(req.Messages)+1)
	if req.System != "" {
		parts = append(parts, req.System)
	}
	for _, msg := range req.Messages {
		parts = append(parts, msg.Content)
	}

	opts := []llms.CallOption{llms.WithModel(model)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.Format == FormatObject {
		opts = append(opts, llms.WithJSONMode())
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, c.llm, strings.Join(parts, "\n\n"), opts...)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(completion) == "" {
		return nil, ErrEmptyCompletion
	}

	return &CompletionResponse{
		Content:   completion,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

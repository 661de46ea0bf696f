// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/prepwise/mock-interview/internal/llm"
)

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted outcome: either Content or Err.
type Reply struct {
	Content string
	Err     error
	// Block makes the call wait for context cancellation before returning.
	Block bool
}

// Stub replays scripted replies in order and records every prompt it saw.
type Stub struct {
	mu       sync.Mutex
	replies  []Reply
	prompts  []string
	requests []llm.CompletionRequest
}

var _ llm.Client = (*Stub)(nil)

// New creates a stub that answers with the given contents in order.
func New(contents ...string) *Stub {
	s := &Stub{}
	for _, c := range contents {
		s.replies = append(s.replies, Reply{Content: c})
	}
	return s
}

// Push appends scripted replies.
func (s *Stub) Push(replies ...Reply) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
	return s
}

// Prompts returns every prompt received so far.
func (s *Stub) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Requests returns a copy of every request received so far.
func (s *Stub) Requests() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.CompletionRequest(nil), s.requests...)
}

// Calls returns the number of Complete calls.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Complete pops the next scripted reply.
func (s *Stub) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	var text string
	for _, m := range req.Messages {
		text += m.Content
	}
	s.prompts = append(s.prompts, text)
	s.requests = append(s.requests, *req)
	if len(s.replies) == 0 {
		s.mu.Unlock()
		return nil, ErrExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	s.mu.Unlock()

	if r.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.CompletionResponse{
		Content:   r.Content,
		Model:     req.Model,
		TokensIn:  len(text) / 4,
		TokensOut: len(r.Content) / 4,
	}, nil
}

// Name returns the provider name.
func (s *Stub) Name() string {
	return "stub"
}

// Models returns the stub model list.
func (s *Stub) Models() []string {
	return []string{"stub-model"}
}

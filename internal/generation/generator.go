// Package generation sends prompts to the generation service and decodes its
// JSON replies into typed per-phase results.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/llm"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/internal/prompt"
	"github.com/prepwise/mock-interview/pkg/logger"
	"github.com/prepwise/mock-interview/pkg/metrics"
	"github.com/prepwise/mock-interview/pkg/tracing"
)

// Operation names used for metrics and spans besides the three phases.
const (
	OpQuestions   = "questions"
	OpExplanation = "explanation"
)

const systemInstruction = "You are an experienced technical interviewer. Reply with a single JSON value and nothing else."

// formatFor returns the reply shape an operation expects.
func formatFor(op string) llm.Format {
	if op == OpQuestions {
		return llm.FormatArray
	}
	return llm.FormatObject
}

// Config controls every generation call.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Generator is the single gateway to the generation service. It holds no
// per-request state and is safe for concurrent use.
type Generator struct {
	client llm.Client
	cfg    Config
	logger *logger.Logger
	tracer trace.Tracer
}

// New creates a generator. client may be nil, in which case every call
// fails with an upstream error.
func New(client llm.Client, cfg Config, log *logger.Logger) *Generator {
	return &Generator{
		client: client,
		cfg:    cfg,
		logger: log.Named("generation"),
		tracer: tracing.Tracer("github.com/prepwise/mock-interview/internal/generation"),
	}
}

// Available reports whether a provider is configured.
func (g *Generator) Available() bool {
	return g.client != nil
}

// Generate sends promptText and returns the normalized JSON payload.
func (g *Generator) Generate(ctx context.Context, op, promptText string) (json.RawMessage, error) {
	ctx, span := g.tracer.Start(ctx, "generation."+op)
	defer span.End()

	if g.client == nil {
		err := apperr.Upstream(nil, "generation service is not configured")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("llm.provider", g.client.Name()),
		attribute.String("llm.model", g.cfg.Model),
		attribute.Int("prompt.bytes", len(promptText)),
	)

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.Complete(callCtx, &llm.CompletionRequest{
		Model:       g.cfg.Model,
		System:      systemInstruction,
		Messages:    llm.UserPrompt(promptText),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Format:      formatFor(op),
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, llm.ErrEmptyCompletion) {
			malErr := apperr.Malformed(err, "generation returned an empty reply")
			metrics.RecordGeneration(op, "", "malformed", elapsed, 0, 0)
			span.SetStatus(codes.Error, malErr.Message)
			g.logger.Warn("generation returned an empty reply",
				zap.String("op", op),
				zap.String("provider", g.client.Name()),
			)
			return nil, malErr
		}

		var upErr *apperr.Error
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			upErr = apperr.Upstream(err, "generation request timed out after %s", g.cfg.Timeout)
		} else {
			upErr = apperr.Upstream(err, "generation request failed")
		}
		metrics.RecordGeneration(op, "", "upstream_error", elapsed, 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, upErr.Message)
		g.logger.Warn("generation request failed",
			zap.String("op", op),
			zap.String("provider", g.client.Name()),
			zap.Float64("elapsed_s", elapsed),
			zap.Error(err),
		)
		return nil, upErr
	}

	cleaned := Normalize(resp.Content)
	if !json.Valid([]byte(cleaned)) {
		malErr := apperr.Malformed(errors.New("normalized output is not valid JSON"), "generation returned malformed output")
		metrics.RecordGeneration(op, resp.Model, "malformed", elapsed, resp.TokensIn, resp.TokensOut)
		span.SetStatus(codes.Error, malErr.Message)
		g.logger.Warn("generation returned malformed output",
			zap.String("op", op),
			zap.Int("bytes", len(resp.Content)),
			zap.String("stop_reason", resp.StopReason),
			zap.Bool("truncated", resp.Truncated()),
		)
		return nil, malErr
	}

	metrics.RecordGeneration(op, resp.Model, "success", elapsed, resp.TokensIn, resp.TokensOut)
	span.SetAttributes(
		attribute.Int("llm.tokens_in", resp.TokensIn),
		attribute.Int("llm.tokens_out", resp.TokensOut),
	)
	g.logger.Debug("generation completed",
		zap.String("op", op),
		zap.String("model", resp.Model),
		zap.Int64("latency_ms", resp.LatencyMs),
	)

	return json.RawMessage(cleaned), nil
}

// Start runs the start phase.
func (g *Generator) Start(ctx context.Context, p prompt.Params) (*StartResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	w, err := g.interviewer(ctx, prompt.PhaseStart, prompt.Conversational(prompt.PhaseStart, p, nil, ""))
	if err != nil {
		return nil, err
	}
	return &StartResult{
		Message:         w.Message,
		QuestionType:    model.QuestionType(w.QuestionType),
		Difficulty:      model.Difficulty(w.Difficulty),
		ExpectsResponse: true,
	}, nil
}

// Continue runs the continue phase on history plus the candidate's latest answer.
func (g *Generator) Continue(ctx context.Context, p prompt.Params, history []model.Message, userResponse string) (*ContinueResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userResponse) == "" {
		return nil, apperr.Validation("userResponse is required")
	}
	text := prompt.Conversational(prompt.PhaseContinue, p, history, userResponse)
	w, err := g.interviewer(ctx, prompt.PhaseContinue, text)
	if err != nil {
		return nil, err
	}
	return &ContinueResult{
		Message:         w.Message,
		Feedback:        w.Feedback,
		QuestionType:    model.QuestionType(w.QuestionType),
		Difficulty:      model.Difficulty(w.Difficulty),
		ExpectsResponse: true,
	}, nil
}

// End runs the end phase on the full history.
func (g *Generator) End(ctx context.Context, p prompt.Params, history []model.Message) (*EndResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, apperr.Validation("conversationHistory is required")
	}
	w, err := g.interviewer(ctx, prompt.PhaseEnd, prompt.Conversational(prompt.PhaseEnd, p, history, ""))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(w.OverallFeedback) == "" {
		return nil, apperr.Malformed(nil, "end phase reply is missing overallFeedback")
	}
	return &EndResult{
		Message:            w.Message,
		OverallFeedback:    w.OverallFeedback,
		Strengths:          nonNil(w.Strengths),
		Improvements:       nonNil(w.Improvements),
		Score:              string(w.Score),
		RecommendedActions: nonNil(w.Recommended),
		ExpectsResponse:    false,
	}, nil
}

// Questions generates n question/answer pairs.
func (g *Generator) Questions(ctx context.Context, p prompt.Params, n int) ([]QuestionAnswer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, apperr.Validation("numberOfQuestions must be positive")
	}
	raw, err := g.Generate(ctx, OpQuestions, prompt.QuestionAnswer(p, n))
	if err != nil {
		return nil, err
	}
	var out []QuestionAnswer
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Malformed(err, "question reply is not a list of question/answer pairs")
	}
	for i, qa := range out {
		if strings.TrimSpace(qa.Question) == "" {
			return nil, apperr.Malformed(nil, "question %d is empty", i)
		}
	}
	return out, nil
}

// Explain generates a concept explanation for question.
func (g *Generator) Explain(ctx context.Context, question string) (*Explanation, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Validation("question is required")
	}
	raw, err := g.Generate(ctx, OpExplanation, prompt.ConceptExplanation(question))
	if err != nil {
		return nil, err
	}
	var out Explanation
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Malformed(err, "explanation reply has the wrong shape")
	}
	if strings.TrimSpace(out.Explanation) == "" {
		return nil, apperr.Malformed(nil, "explanation reply is missing explanation")
	}
	return &out, nil
}

// interviewer generates and decodes one interviewer turn, enforcing the
// fields every phase shares.
func (g *Generator) interviewer(ctx context.Context, phase prompt.Phase, text string) (*interviewerWire, error) {
	raw, err := g.Generate(ctx, string(phase), text)
	if err != nil {
		return nil, err
	}

	var w interviewerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, apperr.Malformed(err, "%s phase reply has the wrong shape", phase)
	}

	if strings.TrimSpace(w.Message) == "" {
		return nil, apperr.Malformed(nil, "%s phase reply is missing message", phase)
	}
	w.QuestionType = normalizeEnum(w.QuestionType)
	w.Difficulty = normalizeEnum(w.Difficulty)
	if !model.QuestionType(w.QuestionType).Valid() {
		return nil, apperr.Malformed(nil, "%s phase reply has unknown questionType %q", phase, w.QuestionType)
	}
	if !model.Difficulty(w.Difficulty).Valid() {
		return nil, apperr.Malformed(nil, "%s phase reply has unknown difficulty %q", phase, w.Difficulty)
	}

	expects := phase != prompt.PhaseEnd
	if w.ExpectsResponse != nil && *w.ExpectsResponse != expects {
		return nil, apperr.Malformed(nil, "%s phase reply has expectsResponse=%t", phase, *w.ExpectsResponse)
	}

	return &w, nil
}

package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prepwise/mock-interview/internal/generation"
	"github.com/prepwise/mock-interview/internal/middleware"
	natsclient "github.com/prepwise/mock-interview/internal/nats"
	"github.com/prepwise/mock-interview/internal/service"
	"github.com/prepwise/mock-interview/pkg/logger"
)

// RouterConfig carries everything the router wires together.
type RouterConfig struct {
	Logger        *logger.Logger
	Conversations *service.ConversationService
	Interview     *service.InterviewService
	Generator     *generation.Generator
	Store         Pinger
	Bus           natsclient.Bus

	JWTSecret           string
	CORSOrigins         []string
	RateLimitRequests   int
	RateLimitWindow     time.Duration
	AIRateLimitRequests int
}

// NewRouter builds the HTTP handler for the whole API.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger

	healthHandler := NewHealthHandler(cfg.Store, cfg.Bus)
	conversationHandler := NewConversationHandler(cfg.Conversations, log)
	messageHandler := NewMessageHandler(cfg.Conversations, log)
	interviewHandler := NewInterviewHandler(cfg.Interview, log)
	aiHandler := NewAIHandler(cfg.Generator, log)
	streamHandler := NewStreamHandler(cfg.Conversations, cfg.Bus, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.IPRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/create", conversationHandler.Create)
			r.Get("/my-conversations", conversationHandler.ListMine)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/message", messageHandler.Append)
				r.Post("/complete", conversationHandler.Complete)

				r.Post("/start", interviewHandler.Start)
				r.Post("/advance", interviewHandler.Advance)
				r.Post("/finish", interviewHandler.Finish)

				r.Get("/stream", streamHandler.Stream)
			})
		})

		r.Route("/ai", func(r chi.Router) {
			if cfg.AIRateLimitRequests > 0 {
				r.Use(middleware.UserRateLimit(cfg.AIRateLimitRequests, cfg.RateLimitWindow))
			}
			r.Post("/start-conversation", aiHandler.StartConversation)
			r.Post("/continue-conversation", aiHandler.ContinueConversation)
			r.Post("/end-conversation", aiHandler.EndConversation)
			r.Post("/generate-questions", aiHandler.GenerateQuestions)
			r.Post("/generate-explanation", aiHandler.GenerateExplanation)
		})
	})

	return r
}

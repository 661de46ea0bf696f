// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/config"
	"github.com/prepwise/mock-interview/internal/generation"
	"github.com/prepwise/mock-interview/internal/handler"
	"github.com/prepwise/mock-interview/internal/llm"
	natsclient "github.com/prepwise/mock-interview/internal/nats"
	"github.com/prepwise/mock-interview/internal/service"
	"github.com/prepwise/mock-interview/internal/store"
	"github.com/prepwise/mock-interview/pkg/logger"
	"github.com/prepwise/mock-interview/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mock-interview: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server",
		zap.String("env", cfg.Env),
		zap.String("store", string(cfg.StoreDriver)),
	)

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "mock-interview", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := store.Open(ctx, cfg.StoreConfig(), log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}()

	var bus natsclient.Bus
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient, log)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("ensure stream: %w", err)
		}
		bus = streamManager
	} else {
		log.Info("NATS_URL not set, using in-process event bus")
		bus = natsclient.NewLocalBus()
	}

	var llmClient llm.Client
	if opts, ok := cfg.LLMOptions(); ok {
		llmClient, err = llm.NewClient(opts)
		if err != nil {
			log.Warn("failed to create LLM client, generation disabled",
				zap.String("provider", string(opts.Provider)),
				zap.Error(err),
			)
			llmClient = nil
		} else {
			log.Info("LLM client ready", zap.String("provider", string(opts.Provider)))
		}
	} else {
		log.Warn("no LLM provider configured, generation disabled")
	}

	generator := generation.New(llmClient, generation.Config{
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	}, log)

	conversationSvc := service.NewConversationService(st, st, bus, log)
	interviewSvc := service.NewInterviewService(conversationSvc, generator, log)

	router := handler.NewRouter(handler.RouterConfig{
		Logger:              log,
		Conversations:       conversationSvc,
		Interview:           interviewSvc,
		Generator:           generator,
		Store:               st,
		Bus:                 bus,
		JWTSecret:           cfg.JWTSecret,
		CORSOrigins:         cfg.CORSOrigins,
		RateLimitRequests:   cfg.RateLimitRequests,
		RateLimitWindow:     cfg.RateLimitWindow,
		AIRateLimitRequests: cfg.AIRateLimitRequests,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

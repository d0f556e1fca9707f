// Package main is the entry point for the Slack feature-request bot.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/bot"
	"github.com/featureforge/slack-linear-bot/internal/config"
	"github.com/featureforge/slack-linear-bot/internal/handler"
	"github.com/featureforge/slack-linear-bot/internal/linear"
	"github.com/featureforge/slack-linear-bot/internal/llm"
	"github.com/featureforge/slack-linear-bot/internal/middleware"
	"github.com/featureforge/slack-linear-bot/internal/service"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
	"github.com/featureforge/slack-linear-bot/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting slack-linear bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "slack-linear-bot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Initialize Linear client and resolve the priority label ids once at
	// startup. A failed lookup degrades to unlabeled tickets, not a crash.
	linearClient, err := linear.NewClient(cfg.LinearAPIKey, log)
	if err != nil {
		log.Error("failed to create Linear client", zap.Error(err))
		os.Exit(1)
	}
	labels, err := linear.FetchPriorityLabels(ctx, linearClient, cfg.LinearTeamID, log)
	if err != nil {
		log.Warn("failed to fetch priority labels, tickets will be unlabeled", zap.Error(err))
		labels = &linear.PriorityLabels{}
	}

	// Initialize LLM client, Anthropic preferred
	provider, apiKey := llm.ProviderAnthropic, cfg.AnthropicAPIKey
	if apiKey == "" {
		provider, apiKey = llm.ProviderOpenAI, cfg.OpenAIAPIKey
	}
	llmClient, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	// Initialize Slack client and services
	slackClient, err := bot.NewSlackClient(cfg.SlackBotToken, cfg.SlackAppToken, false)
	if err != nil {
		log.Error("failed to create Slack client", zap.Error(err))
		os.Exit(1)
	}

	threadSvc := service.NewThreadService(slackClient, log)
	analysisSvc := service.NewAnalysisService(llmClient, log)
	ticketSvc := service.NewTicketService(linearClient, labels, log)

	b := bot.New(slackClient, threadSvc, analysisSvc, ticketSvc, cfg.LinearTeamID, log)

	// Operational HTTP server: health, readiness, metrics
	healthHandler := handler.NewHealthHandler(b)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("operational server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("operational server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Run the Socket Mode loop until a shutdown signal arrives
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("socket mode loop failed", zap.Error(err))
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("stopped")
}

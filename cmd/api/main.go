// Package main is the entry point for the catalog assistant API server.
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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zuora-seed/catalog-assistant/internal/chat"
	"github.com/zuora-seed/catalog-assistant/internal/config"
	"github.com/zuora-seed/catalog-assistant/internal/handler"
	"github.com/zuora-seed/catalog-assistant/internal/middleware"
	natsclient "github.com/zuora-seed/catalog-assistant/internal/nats"
	"github.com/zuora-seed/catalog-assistant/internal/store"
	"github.com/zuora-seed/catalog-assistant/internal/workspace"
	"github.com/zuora-seed/catalog-assistant/internal/zuora"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
	"github.com/zuora-seed/catalog-assistant/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "catalog-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Open the conversation store
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Connect the event feed when configured. The feed is advisory; the
	// service runs without it.
	var nc *natsclient.Client
	var events *natsclient.EventPublisher
	if cfg.NATSURL != "" {
		nc, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer nc.Close()

		events, err = natsclient.NewEventPublisher(ctx, nc, log)
		if err != nil {
			log.Error("failed to set up event feed", zap.Error(err))
			os.Exit(1)
		}
	}

	// Pick the chat backend: the persona chat service when configured, an
	// LLM provider otherwise.
	var responder chat.Responder
	if cfg.ChatURL != "" {
		responder = chat.NewRemoteResponder(cfg.ChatURL, cfg.RemoteTimeout)
	} else {
		apiKey := cfg.AnthropicAPIKey
		if chat.Provider(cfg.AssistantProvider) == chat.ProviderOpenAI {
			apiKey = cfg.OpenAIAPIKey
		}
		responder, err = chat.NewLLMResponder(chat.Provider(cfg.AssistantProvider), apiKey)
		if err != nil {
			log.Error("no chat backend available", zap.Error(err))
			os.Exit(1)
		}
	}
	log.Info("chat backend selected", zap.String("backend", responder.Name()))

	// Initialize workspaces
	workspaces := workspace.NewManager(workspace.Deps{
		Store:     st,
		Responder: responder,
		Tokens:    zuora.NewTokenClient(cfg.TokenURL, cfg.RemoteTimeout),
		Executor:  zuora.NewExecutorClient(cfg.ExecutorURL, cfg.RemoteTimeout),
		Events:    events,
		Logger:    log,
		Persona:   cfg.ChatPersona,
	})

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(nc)
	connectionHandler := handler.NewConnectionHandler(workspaces, log)
	conversationHandler := handler.NewConversationHandler(workspaces, log)
	messageHandler := handler.NewMessageHandler(workspaces, log)
	stepsHandler := handler.NewStepsHandler(workspaces, log)
	executeHandler := handler.NewExecuteHandler(workspaces, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Connection
		r.Route("/connection", func(r chi.Router) {
			r.Get("/", connectionHandler.Get)
			r.Post("/", connectionHandler.Connect)
			r.Delete("/", connectionHandler.Disconnect)
		})

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/", conversationHandler.Create)
			r.Get("/active", conversationHandler.Active)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/select", conversationHandler.Select)
				r.Delete("/", conversationHandler.Delete)
			})
		})

		// Chat turns and quick actions
		r.Post("/messages", messageHandler.Send)
		r.Post("/actions/{kind}", messageHandler.StartAction)
		r.Get("/flows/completed", messageHandler.CompletedFlows)

		// Staged payload steps
		r.Route("/steps", func(r chi.Router) {
			r.Get("/", stepsHandler.List)
			r.Post("/draft", stepsHandler.Draft)
			r.Put("/{id}", stepsHandler.Edit)
			r.Post("/{id}/toggle", stepsHandler.Toggle)
		})

		// Execution
		// Submissions mutate the billing catalog; a valid token alone is not
		// enough.
		r.With(middleware.RequireScope(middleware.ScopeExecute)).Post("/execute", executeHandler.Execute)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("server stopped")
}

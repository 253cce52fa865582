// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/agent"
	"github.com/reddiedev/tenext-app/internal/config"
	"github.com/reddiedev/tenext-app/internal/handler"
	"github.com/reddiedev/tenext-app/internal/llm"
	"github.com/reddiedev/tenext-app/internal/lock"
	natsclient "github.com/reddiedev/tenext-app/internal/nats"
	"github.com/reddiedev/tenext-app/internal/service"
	"github.com/reddiedev/tenext-app/internal/store"
	"github.com/reddiedev/tenext-app/pkg/logger"
	"github.com/reddiedev/tenext-app/pkg/tracing"
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

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "tenext-app", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	connectCtx, cancelConnect := context.WithTimeout(ctx, 10*time.Second)
	natsClient, err := natsclient.Connect(connectCtx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
		Name:     "tenext-api",
	}, log)
	cancelConnect()
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	// Ensure JetStream stream exists
	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Fatal("failed to ensure stream", zap.Error(err))
	}

	// Open the database
	db, err := store.Open(store.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Debug:           cfg.DBDebug,
	})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	health := handler.NewHealthHandler().
		AddCheck("nats", handler.ConnCheck(natsClient)).
		AddCheck("database", handler.PingCheck(db))

	// Session lock
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		redisLock, err := lock.NewRedis(ctx, cfg.RedisURL, cfg.SessionLockTTL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisLock.Close()
		locker = redisLock
		health.AddCheck("redis", handler.PingCheck(redisLock))
		log.Info("using redis session lock")
	}

	adminSvc := service.NewAdminService(db, llm.SupportPrompt, log)

	// Development relay
	var relayHandler *handler.RelayHandler
	if cfg.RelayEnabled {
		apiKey, baseURL, model := cfg.LLMAccount()
		llmClient, err := llm.NewClient(llm.Config{
			Provider: llm.Provider(cfg.LLMProvider),
			APIKey:   apiKey,
			BaseURL:  baseURL,
			Model:    model,
		})
		if err != nil {
			log.Fatal("failed to create LLM client", zap.Error(err))
		}
		relayHandler = handler.NewRelayHandler(llmClient, log).UsePrompts(adminSvc)
		log.Info("agent relay enabled", zap.String("provider", llmClient.Name()))
	}

	// Initialize services
	threadSvc := service.NewThreadService(db, log)
	chatSvc := service.NewChatService(service.ChatConfig{
		Threads:       threadSvc,
		Messages:      db,
		Publisher:     streamManager,
		Backend:       agent.NewClient(cfg.AgentBackendURL),
		Locker:        locker,
		AgentName:     cfg.AgentDisplayName,
		ReadSize:      cfg.StreamReadSize,
		StreamTimeout: cfg.StreamTimeout,
		RecordTimeout: cfg.RecordTimeout,
		Logger:        log,
	})

	// Create router
	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Health:            health,
		Threads:           handler.NewThreadHandler(threadSvc, log),
		Messages:          handler.NewMessageHandler(chatSvc, log),
		Events:            handler.NewEventsHandler(chatSvc, streamManager, log),
		Admin:             handler.NewAdminHandler(adminSvc, log),
		Relay:             relayHandler,
		Logger:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("agent_backend", cfg.AgentBackendURL),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Let detached agent streams and pending writes finish.
	chatSvc.Close()

	log.Info("server stopped")
}

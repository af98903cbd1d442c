package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-backend/internal/config"
	"chat-backend/internal/database"
	"chat-backend/internal/handlers"
	"chat-backend/internal/middleware"
	"chat-backend/internal/repository"
	"chat-backend/internal/router"
	"chat-backend/internal/services"
	"chat-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Chat Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("✗ Invalid configuration: %v", err)
	}
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Transcript Store ────
	var (
		store  services.TranscriptStore
		owners services.OwnerDirectory = repository.ClaimsOwnerDirectory{}
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()
		log.Println("✓ PostgreSQL connected")

		if err := database.RunMigrations(pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Println("✓ Database migrations applied")

		store = repository.NewTranscriptRepo(pool)
		owners = repository.NewUserRepo(pool)
	case config.StoreBolt:
		boltRepo, err := repository.NewBoltTranscriptRepo(cfg.BoltPath)
		if err != nil {
			log.Fatalf("✗ Bolt store failed to open: %v", err)
		}
		defer boltRepo.Close()
		store = boltRepo
		log.Printf("✓ Bolt store opened at %s", cfg.BoltPath)
	default:
		store = repository.NewMemoryTranscriptRepo()
		log.Println("✓ In-memory store initialized (transcripts are lost on restart)")
	}

	// ──── Step 3: Initialize Redis Clients (optional) ────
	var (
		notifier services.TranscriptNotifier
		wsHub    *websocket.Hub
	)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	if cfg.RedisURL != "" {
		redisClients, err := database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClients.Close()
		log.Println("✓ Redis connected")

		store = repository.NewCachedTranscriptRepo(store, redisClients.Cache, time.Duration(cfg.TranscriptCacheTTLSec)*time.Second)
		notifier = services.NewTranscriptPublisher(redisClients.Cache)
		wsHub = websocket.NewHub(redisClients.PubSub, jwtAuth)
		log.Println("✓ Transcript cache and WebSocket hub started")
	}

	// ──── Step 4: Initialize Completion Client ────
	timeout := time.Duration(cfg.CompletionTimeoutSec) * time.Second
	var completer services.Completer
	switch cfg.CompletionProvider {
	case config.ProviderOpenAI:
		completer = services.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, timeout)
		log.Printf("✓ OpenAI client initialized (%s)", cfg.OpenAIModel)
	default:
		gemini, err := services.NewGeminiCompleter(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, timeout)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer gemini.Close()
		completer = gemini
		log.Printf("✓ Gemini client initialized (%s)", cfg.GeminiModel)
	}

	// ──── Initialize Services & Handlers ────
	conversationService := services.NewConversationService(owners, store, completer, notifier, cfg.MaxPromptTokens)
	chatHandler := handlers.NewChatHandler(conversationService)
	chatLimiter := middleware.NewRateLimiter(cfg.ChatRequestsPerMinute, time.Minute)

	// ──── Step 5: Start HTTP Server ────
	r := router.New(jwtAuth, chatHandler, wsHub, cfg.FrontendURL, chatLimiter)

	// WriteTimeout must outlast a full completion round trip.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("✗ Shutdown error: %v", err)
		}
	}()

	log.Printf("✓ Chat Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	if wsHub != nil {
		log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)
	}

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-done
}

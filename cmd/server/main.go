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

	"chatgate-backend/internal/classifier"
	"chatgate-backend/internal/config"
	"chatgate-backend/internal/database"
	"chatgate-backend/internal/handlers"
	"chatgate-backend/internal/images"
	"chatgate-backend/internal/llm"
	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/moderation"
	"chatgate-backend/internal/question"
	"chatgate-backend/internal/rag"
	"chatgate-backend/internal/ratelimit"
	"chatgate-backend/internal/router"
	"chatgate-backend/internal/tools"
)

func main() {
	log.Println("🚀 Starting ChatGate Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Redis (rate-limit counters) ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 3: Initialize Provider Clients ────
	llmClient := llm.NewClient(60 * time.Second)
	llmRouter := llm.NewRouter(llm.RouterConfig{
		MistralBaseURL:    cfg.MistralBaseURL,
		MistralAPIKey:     cfg.MistralAPIKey,
		DeepSeekBaseURL:   cfg.DeepSeekBaseURL,
		DeepSeekAPIKey:    cfg.DeepSeekAPIKey,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		AppReferer:        cfg.AppReferer,
	})
	log.Println("✓ Provider router initialized")

	// ──── Step 4: Initialize Pipeline Components ────
	limiter := ratelimit.New(redisClient, map[ratelimit.Capability]int{
		ratelimit.CapabilityChat:           cfg.ChatRateLimit,
		ratelimit.CapabilityChatPro:        cfg.ChatProRateLimit,
		ratelimit.CapabilityPluginDetector: cfg.DetectorRateLimit,
	}, time.Duration(cfg.RateLimitWindowMins)*time.Minute)

	questionGen := question.NewGenerator(llmClient, llmRouter, cfg.StandaloneQuestionModel)
	augmentor := rag.NewAugmentor(cfg.RAGEndpoint, cfg.RAGAPIKey, cfg.RAGMinMessageLength, questionGen)
	if augmentor.Enabled() {
		log.Println("✓ RAG augmentor enabled")
	} else {
		log.Println("  RAG augmentor disabled (endpoint not configured)")
	}

	gate := moderation.NewGate(
		cfg.OpenAIBaseURL,
		cfg.OpenAIAPIKey,
		cfg.ModerationThreshold,
		time.Duration(cfg.ModerationTimeoutSecs)*time.Second,
	)
	if gate.Enabled() {
		log.Println("✓ Moderation gate enabled")
	} else {
		log.Println("  Moderation gate disabled (no API key)")
	}

	detector := classifier.New(llmClient, llmRouter, cfg.StandaloneQuestionModel, cfg.DetectorMaxMessageLength)
	webSearch := tools.NewWebSearch(cfg.WebSearchEndpoint, cfg.WebSearchAPIKey)
	enricher := images.NewEnricher()

	// ──── Step 5: Initialize Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	chatHandler := handlers.NewChatHandler(cfg, limiter, augmentor, gate, llmRouter, llmClient, webSearch)
	detectionHandler := handlers.NewDetectionHandler(cfg, limiter, detector, enricher)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(jwtAuth, chatHandler, detectionHandler, cfg.FrontendURL)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Streaming responses have no write deadline; lifetime is bounded by
		// the request context.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ ChatGate Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

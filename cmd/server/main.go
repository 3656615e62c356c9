package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localchat/ragchat/internal/api"
	"github.com/localchat/ragchat/internal/config"
	"github.com/localchat/ragchat/internal/core"
	"github.com/localchat/ragchat/internal/extract"
	"github.com/localchat/ragchat/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("Invalid configuration: %v", e)
		}
		os.Exit(1)
	}
	if cfg.Debug() {
		log.Println("Service starting in DEBUG mode")
	}

	ctx := context.Background()

	// Initialize session store
	sessions, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer sessions.Close()

	embedder, closeEmbedder, err := newEmbedder(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}
	defer closeEmbedder()

	llmService := core.NewLLMService(cfg.LLM)

	ragService := core.NewRAGService(embedder, llmService, core.RAGOptions{
		MaxChars:     cfg.RAG.MaxChars,
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		TopK:         cfg.RAG.TopK,
		Temperature:  cfg.RAG.Temperature,
		Debug:        cfg.Debug(),
	})
	chatService := core.NewChatService(llmService, cfg.Chat.Temperature)

	apiHandler := api.NewAPIHandler(chatService, ragService, sessions, extract.Extractor{MaxBytes: cfg.Documents.MaxBytes})
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // streaming routes clear their own deadline
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s (model server %s). Press Ctrl+C to quit.", serverAddr, cfg.LLM.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}

// newEmbedder builds the embedding client for the configured provider. The
// returned func releases it.
func newEmbedder(ctx context.Context, cfg config.LLMConfig) (core.Embedder, func(), error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		g, err := core.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case config.ProviderOllama:
		o, err := core.NewOllamaEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return o, func() {}, nil
	}
	return core.NewHTTPEmbedder(core.HTTPEmbedderConfig{
		BaseURL:   cfg.EmbeddingBaseURL,
		Model:     cfg.EmbeddingModel,
		RateLimit: cfg.EmbeddingRateLimit,
		Timeout:   time.Duration(cfg.EmbeddingTimeoutSecs) * time.Second,
	}), func() {}, nil
}

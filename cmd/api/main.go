package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aurilabs/auri/internal/api"
	"github.com/aurilabs/auri/internal/config"
	"github.com/aurilabs/auri/internal/db"
	"github.com/aurilabs/auri/internal/pipeline"
	"github.com/aurilabs/auri/internal/queue"
	"github.com/aurilabs/auri/internal/services"
	"github.com/aurilabs/auri/internal/storage"
	"github.com/aurilabs/auri/internal/voices"
	"github.com/aurilabs/auri/internal/worker"
)

func main() {
	log.Println("Starting Auri API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Create API handler
	handler := api.NewHandler(database, q, stor, cfg.FrontendURL)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		// Story-text provider — Gemini preferred, OpenAI as fallback
		var textModel services.TextModel
		if cfg.GeminiKey != "" {
			gemini, err := services.NewGeminiService(context.Background(), cfg.GeminiKey)
			if err != nil {
				log.Fatalf("Failed to initialize Gemini: %v", err)
			}
			textModel = gemini
			log.Println("Story-text provider: Gemini")
		} else {
			textModel = services.NewOpenAIService(cfg.OpenAIKey)
			log.Println("Story-text provider: OpenAI (fallback)")
		}

		speech := services.NewElevenLabsService(cfg.ElevenLabsKey)

		catalog, err := voices.LoadCatalog(cfg.VoicesPath)
		if err != nil {
			log.Fatalf("Failed to load voice catalog: %v", err)
		}
		assigner := voices.NewAssigner(catalog)
		log.Printf("Loaded voice catalog: %d languages", len(catalog))

		mailer := services.NewResendService(cfg.ResendKey, cfg.EmailFrom, cfg.EmailSendingOff || cfg.ResendKey == "")

		generator := pipeline.NewStoryGenerator(textModel, cfg.PromptsDir)
		synth := pipeline.NewSynthesizer(speech)
		p := pipeline.New(database, stor, generator, synth, assigner, q, cfg.FrontendURL)

		w := worker.New(database, q, p, mailer, cfg.DailyCronHourUTC)

		// Start worker in background
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

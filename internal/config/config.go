package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	FrontendURL        string // Base URL used when building lesson/confirmation links in emails

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase storage (lesson audio)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Gemini (preferred story-text model)
	GeminiKey string

	// OpenAI (fallback story-text model — used when GEMINI_API_KEY is not set)
	OpenAIKey string

	// ElevenLabs (speech synthesis)
	ElevenLabsKey string

	// Resend (transactional email)
	ResendKey       string
	EmailFrom       string
	EmailSendingOff bool // suppress outgoing mail (dev mode)

	// Content assets
	PromptsDir string // directory holding story_generation/core.md and levels/*.md
	VoicesPath string // voices.json catalog

	// Worker
	MaxConcurrentJobs int
	DailyCronHourUTC  int // hour of day (UTC) the daily lesson fan-out runs
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:3000"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "auri-audio"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ResendKey:             getEnv("RESEND_API_KEY", ""),
		EmailFrom:             getEnv("EMAIL_FROM", "Auri <lessons@auri.app>"),
		EmailSendingOff:       getEnvBool("EMAIL_SENDING_OFF", false),
		PromptsDir:            getEnv("PROMPTS_DIR", "assets/prompts"),
		VoicesPath:            getEnv("VOICES_PATH", "assets/voices.json"),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 5),
		DailyCronHourUTC:      getEnvInt("DAILY_CRON_HOUR_UTC", 0),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// At least one text-generation provider must be configured
	if cfg.GeminiKey == "" && cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("either GEMINI_API_KEY or OPENAI_API_KEY is required for story generation")
	}

	if cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required for speech synthesis")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	if cfg.DailyCronHourUTC < 0 || cfg.DailyCronHourUTC > 23 {
		return nil, fmt.Errorf("DAILY_CRON_HOUR_UTC must be between 0 and 23")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

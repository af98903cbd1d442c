package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
	StoreMemory   = "memory"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	// Server
	Port string
	Env  string

	// JWT
	JWTSecret string

	// Transcript storage
	StoreBackend  string
	DatabaseURL   string
	MigrationsDir string
	BoltPath      string

	// Redis (optional)
	RedisURL              string
	TranscriptCacheTTLSec int

	// Completion provider
	CompletionProvider    string
	CompletionTimeoutSec  int
	MaxPromptTokens       int
	GeminiAPIKey          string
	GeminiModel           string
	GeminiConcurrentReqs  int
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIBaseURL         string
	ChatRequestsPerMinute int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		Env:                   getEnvOrDefault("ENV", "development"),
		JWTSecret:             mustGetEnv("JWT_SECRET"),
		StoreBackend:          getEnvOrDefault("STORE_BACKEND", StorePostgres),
		DatabaseURL:           getEnvOrDefault("DATABASE_URL", ""),
		MigrationsDir:         getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		BoltPath:              getEnvOrDefault("BOLT_PATH", "./data/transcripts.db"),
		RedisURL:              getEnvOrDefault("REDIS_URL", ""),
		TranscriptCacheTTLSec: getEnvAsIntOrDefault("TRANSCRIPT_CACHE_TTL_SECONDS", 600),
		CompletionProvider:    getEnvOrDefault("COMPLETION_PROVIDER", ProviderGemini),
		CompletionTimeoutSec:  getEnvAsIntOrDefault("COMPLETION_TIMEOUT_SECONDS", 60),
		MaxPromptTokens:       getEnvAsIntOrDefault("MAX_PROMPT_TOKENS", 0),
		GeminiAPIKey:          getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:           getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiConcurrentReqs:  getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		OpenAIAPIKey:          getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:         getEnvOrDefault("OPENAI_BASE_URL", ""),
		ChatRequestsPerMinute: getEnvAsIntOrDefault("CHAT_REQUESTS_PER_MINUTE", 20),
		FrontendURL:           getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// Validate checks the settings that depend on each other.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", StorePostgres)
		}
	case StoreBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required when STORE_BACKEND=%s", StoreBolt)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.CompletionProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when COMPLETION_PROVIDER=%s", ProviderGemini)
		}
		if c.GeminiConcurrentReqs < 1 {
			return fmt.Errorf("GEMINI_CONCURRENT_REQUESTS must be at least 1")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when COMPLETION_PROVIDER=%s", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("unknown COMPLETION_PROVIDER %q", c.CompletionProvider)
	}

	if c.CompletionTimeoutSec < 1 {
		return fmt.Errorf("COMPLETION_TIMEOUT_SECONDS must be at least 1")
	}
	if c.MaxPromptTokens < 0 {
		return fmt.Errorf("MAX_PROMPT_TOKENS cannot be negative")
	}
	return nil
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// Package config loads process-wide configuration once at startup.
//
// The Config struct is built in main() and passed explicitly into each
// component's constructor. Nothing in the codebase reads environment
// variables after Load returns — that keeps components testable (tests
// construct Config literals) and makes every knob discoverable here.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string

	// JWT
	JWTSecret    string
	JWTIssuer    string
	JWTExpiresIn time.Duration

	// Model provider
	AnthropicAPIKey string
	AnthropicAPIURL string
	AnthropicModel  string

	// Job orchestration
	CompletionTimeout time.Duration
	WorkerCount       int
	QueueSize         int

	// TestUserID, when non-empty, lets /api/v1/process_query/{user_id}
	// be called without a bearer token for exactly that user id.
	// Intended for local development and smoke tests only.
	TestUserID string
}

// Load reads configuration from a .env file (if present) and the
// environment. Required keys return an error rather than defaulting —
// a server signing tokens with an empty secret is worse than one that
// refuses to start.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	cfg := Config{
		Port:              getEnvAsInt("PORT", 8080),
		DBPath:            getEnv("DB_PATH", "data/relay.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "llm-relay"),
		JWTExpiresIn:      getEnvAsDuration("JWT_EXPIRES_IN", 15*time.Minute),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicAPIURL:   getEnv("ANTHROPIC_API_URL", "https://api.anthropic.com/v1/messages"),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		CompletionTimeout: getEnvAsDuration("COMPLETION_TIMEOUT", 60*time.Second),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 4),
		QueueSize:         getEnvAsInt("QUEUE_SIZE", 64),
		TestUserID:        getEnv("TEST_USER_ID", ""),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return Config{}, fmt.Errorf("config: ANTHROPIC_API_KEY is required")
	}
	if cfg.WorkerCount < 1 {
		return Config{}, fmt.Errorf("config: WORKER_COUNT must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.QueueSize < 1 {
		return Config{}, fmt.Errorf("config: QUEUE_SIZE must be at least 1, got %d", cfg.QueueSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration syntax ("90s", "15m") and, for
// compatibility with deployments that set plain integers, bare seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

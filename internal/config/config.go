package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the AgentDesk API server.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Telemetry TelemetryConfig
	Retention RetentionConfig
}

type DatabaseConfig struct {
	// URL enables the PostgreSQL store when set. Empty means the
	// in-memory store with JSON snapshot persistence.
	URL            string
	MaxConnections int
	// PgvectorURL enables the pgvector document index. Falls back to
	// the embedded in-memory index when empty.
	PgvectorURL string
}

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type LLMConfig struct {
	// OllamaURL is the base URL of the local Ollama instance.
	OllamaURL      string
	DefaultModel   string
	EmbeddingModel string
	// DemoMode forces canned agent responses without calling Ollama.
	// Also triggered automatically when Ollama is unreachable.
	DemoMode bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type RetentionConfig struct {
	// ExecutionTTL controls how long completed/failed executions are kept.
	ExecutionTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AGENTDESK_PORT", 8080),
		Version: envStr("AGENTDESK_VERSION", "1.0.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
			PgvectorURL:    envStr("AGENTDESK_PGVECTOR_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:   envStr("AGENTDESK_JWT_SECRET", "dev-secret-change-me"),
			TokenExpiry: envDuration("AGENTDESK_TOKEN_EXPIRY", 24*time.Hour),
		},
		LLM: LLMConfig{
			OllamaURL:      envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
			DefaultModel:   envStr("AGENTDESK_DEFAULT_MODEL", "llama3.2"),
			EmbeddingModel: envStr("AGENTDESK_EMBEDDING_MODEL", "nomic-embed-text"),
			DemoMode:       envBool("AGENTDESK_DEMO_MODE", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agentdesk-api"),
		},
		Retention: RetentionConfig{
			ExecutionTTL: envDuration("AGENTDESK_EXECUTION_TTL", 30*24*time.Hour),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

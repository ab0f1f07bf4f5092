package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/fictag/internal/recommend"
)

// Vocabulary source kinds
const (
	VocabularySourceCSV      = "csv"
	VocabularySourcePostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	ServerPort         string
	FrontendURL        string
	EnableHSTS         bool
	AIProvider         string
	AIAPIKey           string
	AIModel            string
	AIBaseURL          string
	VocabularySource   string
	VocabularyCSVPath  string
	DatabaseURL        string
	RedisURL           string
	VocabularyCacheTTL time.Duration
	RabbitMQURL        string
	RabbitMQPrefetch   int
	RateLimit          string
	ResubmitPolicy     recommend.Policy
	RequestTimeout     time.Duration
	ServerDebugMode    bool
	OTELEnabled        bool
	OTELEndpoint       string
}

// providerKeyEnv maps a provider to the vendor-specific key variable used
// when AI_API_KEY is unset.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:         getEnvBool("ENABLE_HSTS", false),
		AIProvider:         strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		AIModel:            getEnv("AI_MODEL", ""),
		AIBaseURL:          getEnv("AI_BASE_URL", ""),
		VocabularySource:   strings.ToLower(getEnv("VOCABULARY_SOURCE", VocabularySourceCSV)),
		VocabularyCSVPath:  getEnv("VOCABULARY_CSV_PATH", "data/vocabulary.csv"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		VocabularyCacheTTL: getEnvDuration("VOCABULARY_CACHE_TTL", 5*time.Minute),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:   getEnvInt("RABBITMQ_PREFETCH", 1),
		RateLimit:          getEnv("RATE_LIMIT", "60-M"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 120*time.Second),
		ServerDebugMode:    getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	cfg.AIAPIKey = getEnv("AI_API_KEY", "")
	if cfg.AIAPIKey == "" {
		if key, ok := providerKeyEnv[cfg.AIProvider]; ok {
			cfg.AIAPIKey = getEnv(key, "")
		}
	}

	policy, err := recommend.ParsePolicy(getEnv("RESUBMIT_POLICY", ""))
	if err != nil {
		return nil, fmt.Errorf("RESUBMIT_POLICY: %w", err)
	}
	cfg.ResubmitPolicy = policy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks combinations that Load cannot default its way out of
func (c *Config) Validate() error {
	switch c.VocabularySource {
	case VocabularySourceCSV:
		if c.VocabularyCSVPath == "" {
			return fmt.Errorf("VOCABULARY_CSV_PATH is required when VOCABULARY_SOURCE is %q", VocabularySourceCSV)
		}
	case VocabularySourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when VOCABULARY_SOURCE is %q", VocabularySourcePostgres)
		}
	default:
		return fmt.Errorf("unsupported VOCABULARY_SOURCE %q (want %q or %q)", c.VocabularySource, VocabularySourceCSV, VocabularySourcePostgres)
	}

	if c.RabbitMQPrefetch < 1 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be at least 1, got %d", c.RabbitMQPrefetch)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	return nil
}

// AsyncEnabled reports whether submissions can be queued
func (c *Config) AsyncEnabled() bool {
	return c.RabbitMQURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

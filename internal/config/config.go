// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Database settings
	DBDriver          string
	DBDSN             string
	DBMaxIdleConns    int
	DBMaxOpenConns    int
	DBConnMaxLifetime time.Duration
	DBDebug           bool

	// Session lock; empty RedisURL means an in-process lock.
	RedisURL       string
	SessionLockTTL time.Duration

	// Agent backend
	AgentBackendURL  string
	AgentDisplayName string
	StreamReadSize   int
	StreamTimeout    time.Duration
	RecordTimeout    time.Duration

	// Development relay
	RelayEnabled     bool
	LLMProvider      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	port := getEnv("PORT", "8080")

	return &Config{
		// Server
		ServerPort:         port,
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		AllowedOrigins:     getListEnv("CORS_ALLOWED_ORIGINS"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Database
		DBDriver:          getEnv("DB_DRIVER", "sqlite"),
		DBDSN:             getEnv("DB_DSN", "tenext.db"),
		DBMaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
		DBMaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 20),
		DBConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		DBDebug:           getBoolEnv("DB_DEBUG", false),

		// Lock
		RedisURL:       getEnv("REDIS_URL", ""),
		SessionLockTTL: getDurationEnv("SESSION_LOCK_TTL", 5*time.Minute),

		// Agent
		AgentBackendURL:  getEnv("AGENT_BACKEND_URL", "http://localhost:"+port),
		AgentDisplayName: getEnv("AGENT_DISPLAY_NAME", "Agent"),
		StreamReadSize:   getIntEnv("STREAM_READ_SIZE", 4096),
		StreamTimeout:    getDurationEnv("STREAM_TIMEOUT", 2*time.Minute),
		RecordTimeout:    getDurationEnv("RECORD_TIMEOUT", 5*time.Second),

		// Relay
		RelayEnabled:     getBoolEnv("RELAY_ENABLED", false),
		LLMProvider:      getEnv("LLM_PROVIDER", "echo"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// LLMAccount returns the api key, base url and model of the configured
// relay provider.
func (c *Config) LLMAccount() (apiKey, baseURL, model string) {
	if c.LLMProvider == "anthropic" {
		return c.AnthropicAPIKey, c.AnthropicBaseURL, c.AnthropicModel
	}
	return c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAIModel
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"event-registration/internal/services/gateway/credo"
	"event-registration/internal/services/gateway/flutterwave"
	"event-registration/internal/services/gateway/paystack"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string
	PublicURL   string
	FrontendURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Gateway configuration
	DefaultGateway  string
	Currency        string
	ReferencePrefix string
	GatewayTimeout  time.Duration
	Flutterwave     flutterwave.Config
	Paystack        paystack.Config
	Credo           credo.Config

	// Payment workflow
	CorrelationTTL time.Duration
	ReaperSchedule string
	StaleAfter     time.Duration

	// Security
	AdminTokenHash     string
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

// LoadConfig reads the environment. A .env file in the working directory is
// loaded first when present; variables already set win over it.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	gatewayTimeout := getEnvAsDuration("GATEWAY_TIMEOUT", "15s")

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8090"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "event-registration-server"),

		// Gateways
		DefaultGateway:  getEnv("DEFAULT_GATEWAY", "paystack"),
		Currency:        getEnv("CURRENCY", "NGN"),
		ReferencePrefix: getEnv("REFERENCE_PREFIX", "EVT"),
		GatewayTimeout:  gatewayTimeout,
		Flutterwave: flutterwave.Config{
			BaseURL:    getEnv("FLUTTERWAVE_BASE_URL", flutterwave.DefaultBaseURL),
			SecretKey:  getEnv("FLUTTERWAVE_SECRET_KEY", ""),
			SecretHash: getEnv("FLUTTERWAVE_SECRET_HASH", ""),
			Timeout:    gatewayTimeout,
		},
		Paystack: paystack.Config{
			BaseURL:   getEnv("PAYSTACK_BASE_URL", paystack.DefaultBaseURL),
			SecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
			Timeout:   gatewayTimeout,
		},
		Credo: credo.Config{
			BaseURL:      getEnv("CREDO_BASE_URL", credo.DefaultBaseURL),
			PublicKey:    getEnv("CREDO_PUBLIC_KEY", ""),
			SecretKey:    getEnv("CREDO_SECRET_KEY", ""),
			WebhookToken: getEnv("CREDO_WEBHOOK_TOKEN", ""),
			BusinessCode: getEnv("CREDO_BUSINESS_CODE", ""),
			Timeout:      gatewayTimeout,
		},

		// Payment workflow
		CorrelationTTL: getEnvAsDuration("CORRELATION_TTL", "3m"),
		ReaperSchedule: getEnv("REAPER_SCHEDULE", "0 0 * * *"),
		StaleAfter:     getEnvAsDuration("STALE_AFTER", "24h"),

		// Security
		AdminTokenHash:     getEnv("ADMIN_TOKEN_HASH", ""),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	QueueBuffer    int

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret     string
	CORSAllowedOrigins string

	// Liveness challenge-response settings.
	LivenessTTL       time.Duration
	LivenessRetention time.Duration
	LivenessSweep     time.Duration
	AllowVirtualized  bool

	// Challenge issuance rate limiting, per client IP. Zero disables it.
	IssueRateLimit float64
	IssueRateBurst int

	// Policy threshold overrides. Zero means use the built-in default.
	VideoDeepfakeThreshold float64
	AudioDeepfakeThreshold float64

	IntegrityTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		QueueBuffer:    getEnvAsInt("QUEUE_BUFFER", 128),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		LivenessTTL:       getEnvAsDuration("LIVENESS_TTL", 400*time.Second),
		LivenessRetention: getEnvAsDuration("LIVENESS_RETENTION", time.Hour),
		LivenessSweep:     getEnvAsDuration("LIVENESS_SWEEP_INTERVAL", 30*time.Second),
		AllowVirtualized:  getEnvAsBool("LIVENESS_ALLOW_VIRTUALIZED", false),

		IssueRateLimit: getEnvAsFloat("LIVENESS_ISSUE_RATE", 2),
		IssueRateBurst: getEnvAsInt("LIVENESS_ISSUE_BURST", 10),

		VideoDeepfakeThreshold: getEnvAsFloat("VIDEO_DEEPFAKE_THRESHOLD", 0),
		AudioDeepfakeThreshold: getEnvAsFloat("AUDIO_DEEPFAKE_THRESHOLD", 0),

		IntegrityTimeout: getEnvAsDuration("INTEGRITY_TIMEOUT", 30*time.Second),
	}
}

// Validate rejects configurations the service cannot safely run with.
// A bad configuration is a startup failure, never a silent fallback.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: PORT cannot be empty")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("config: WORKER_COUNT must be at least 1, got %d", c.WorkerCount)
	}
	if c.LivenessTTL <= 0 {
		return fmt.Errorf("config: LIVENESS_TTL must be positive, got %s", c.LivenessTTL)
	}
	if c.LivenessRetention < 0 {
		return fmt.Errorf("config: LIVENESS_RETENTION cannot be negative, got %s", c.LivenessRetention)
	}
	if c.IssueRateLimit < 0 {
		return fmt.Errorf("config: LIVENESS_ISSUE_RATE cannot be negative, got %g", c.IssueRateLimit)
	}
	if c.IssueRateLimit > 0 && c.IssueRateBurst < 1 {
		return fmt.Errorf("config: LIVENESS_ISSUE_BURST must be at least 1, got %d", c.IssueRateBurst)
	}
	if err := validateThreshold("VIDEO_DEEPFAKE_THRESHOLD", c.VideoDeepfakeThreshold); err != nil {
		return err
	}
	if err := validateThreshold("AUDIO_DEEPFAKE_THRESHOLD", c.AudioDeepfakeThreshold); err != nil {
		return err
	}
	if !c.UseMemoryQueue && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required when USE_MEMORY_QUEUE=false")
	}
	return nil
}

func validateThreshold(name string, v float64) error {
	if v == 0 {
		return nil
	}
	if v <= 0 || v >= 1 {
		return fmt.Errorf("config: %s must be in (0,1), got %g", name, v)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

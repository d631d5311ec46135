package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Normalize NormalizeConfig
	Cache     CacheConfig
	LLM       LLMConfig
	Retry     RetryConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
}

// NormalizeConfig holds image normalization configuration
type NormalizeConfig struct {
	MaxDimension int
	JPEGQuality  int
	StagingDir   string
}

// CacheConfig holds extraction cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// LLMConfig holds extraction model configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// RetryConfig holds retry/backoff configuration for transient failures
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 50)) << 20,
		},
		Normalize: NormalizeConfig{
			MaxDimension: getEnvAsInt("IMAGE_MAX_DIMENSION", 1600),
			JPEGQuality:  getEnvAsInt("IMAGE_JPEG_QUALITY", 80),
			StagingDir:   getEnv("STAGING_DIR", os.TempDir()),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
			Multiplier:  2,
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidRequest)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidRequest)
	}
	if c.Normalize.MaxDimension <= 0 {
		return NewAppError("CONFIG_ERROR", "IMAGE_MAX_DIMENSION must be positive", ErrInvalidRequest)
	}
	if c.Normalize.JPEGQuality < 1 || c.Normalize.JPEGQuality > 100 {
		return NewAppError("CONFIG_ERROR", "IMAGE_JPEG_QUALITY must be in 1..100", ErrInvalidRequest)
	}
	return nil
}

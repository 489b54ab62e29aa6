package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server        ServerConfig
	Log           LogConfig
	Elasticsearch ElasticsearchConfig
	Ingest        IngestConfig
	Redis         RedisConfig
}

type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type ElasticsearchConfig struct {
	Addresses  []string
	Username   string
	Password   string
	MaxRetries int
}

// IngestConfig bounds the background submission pipeline
type IngestConfig struct {
	QueueSize    int
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBodyBytes int64
}

// RedisConfig is optional; an empty URL keeps submission status in memory
type RedisConfig struct {
	URL           string
	SubmissionTTL time.Duration
}

// Load reads configuration from the environment, after merging in a .env
// file when one is present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found")
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8000"),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:  getEnvList("ELASTICSEARCH_URL", []string{"http://elasticsearch:9200"}),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
		},
		Ingest: IngestConfig{
			QueueSize:    getEnvInt("INGEST_QUEUE_SIZE", 1024),
			Workers:      getEnvInt("INGEST_WORKERS", 4),
			MaxAttempts:  getEnvInt("INGEST_MAX_ATTEMPTS", 3),
			RetryBackoff: getEnvDuration("INGEST_RETRY_BACKOFF", time.Second),
			MaxBodyBytes: int64(getEnvInt("INGEST_MAX_BODY_BYTES", 10<<20)),
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", ""),
			SubmissionTTL: getEnvDuration("SUBMISSION_TTL", 24*time.Hour),
		},
	}
}

// Validate checks the values that would otherwise stall the ingest pipeline
func (c *Config) Validate() error {
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must be positive, got %d", c.Ingest.QueueSize)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.MaxAttempts <= 0 {
		return fmt.Errorf("INGEST_MAX_ATTEMPTS must be positive, got %d", c.Ingest.MaxAttempts)
	}
	if c.Ingest.MaxBodyBytes <= 0 {
		return fmt.Errorf("INGEST_MAX_BODY_BYTES must be positive, got %d", c.Ingest.MaxBodyBytes)
	}
	if c.Redis.SubmissionTTL <= 0 {
		return fmt.Errorf("SUBMISSION_TTL must be positive, got %s", c.Redis.SubmissionTTL)
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("ELASTICSEARCH_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Package config assembles runtime configuration from the environment so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is everything the audit service needs to start.
type Config struct {
	Addr          string
	JWTSigningKey string

	DatabaseURL string
	Redis       RedisConfig

	Kafka KafkaConfig

	IdentityBaseURL    string
	PermissionCacheTTL time.Duration

	ExportDir     string
	ExportWorkers int

	// Bcrypt hash of the shared secret co-located modules present on the
	// synchronous ingest endpoint.
	IngestSecretHash string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

// FromEnv builds the config from environment variables, with development
// defaults for everything but secrets.
func FromEnv() Config {
	return Config{
		Addr:          envOr("AUDIT_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},

		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "audit.events"),
			Group:   envOr("KAFKA_CONSUMER_GROUP", "audit-service"),
		},

		IdentityBaseURL:    envOr("IDENTITY_BASE_URL", "http://localhost:8081"),
		PermissionCacheTTL: envDuration("PERMISSION_CACHE_TTL", 2*time.Minute),

		ExportDir:     envOr("EXPORT_DIR", os.TempDir()),
		ExportWorkers: envInt("EXPORT_WORKERS", 2),

		IngestSecretHash: os.Getenv("INGEST_SECRET_HASH"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

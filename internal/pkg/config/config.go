// Package config loads service configuration from the environment. A local
// .env file is honoured when present; in clusters the variables come from the
// deployment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects the deployment shape of the saga.
type Mode string

const (
	// ModeChoreography: each step service routes through the shared definition.
	ModeChoreography Mode = "choreography"
	// ModeOrchestration: step services reply to the orchestrator's topic.
	ModeOrchestration Mode = "orchestration"
)

// Config holds everything a service binary needs.
type Config struct {
	ServiceName  string
	KafkaBrokers []string
	GroupID      string
	DatabaseURL  string
	RedisAddr    string
	HTTPAddr     string
	Mode         Mode
	CacheTTL     time.Duration
}

// Load reads the environment for the given service. Only DATABASE_URL is
// required; everything else has a local-dev default.
func Load(serviceName string) (Config, error) {
	// Missing .env is fine: env vars may already be set by the deployment.
	_ = godotenv.Load()

	cfg := Config{
		ServiceName:  getEnv("OTEL_SERVICE_NAME", serviceName),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		GroupID:      getEnv("KAFKA_GROUP_ID", serviceName),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		HTTPAddr:     ":" + getEnv("PORT", "8080"),
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	switch m := Mode(getEnv("SAGA_MODE", string(ModeChoreography))); m {
	case ModeChoreography, ModeOrchestration:
		cfg.Mode = m
	default:
		return Config{}, fmt.Errorf("config: unknown SAGA_MODE %q", m)
	}

	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = ttl

	return cfg, nil
}

// RequireDatabase errors when DATABASE_URL was not set. Called by the
// services that own tables; the orchestrator runs without one.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

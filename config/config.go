package config

import (
	"fmt"
	"os"
	"time"
)

// Config carries every tunable the service reads from the environment.
type Config struct {
	Addr        string
	DatabaseURL string
	JWTSecret   string

	// AgentTimeout bounds each individual agent run; AnalyzeTimeout bounds the
	// whole orchestration. SyncWait is how long the analyze endpoint waits for
	// a terminal session before answering 202.
	AgentTimeout   time.Duration
	AnalyzeTimeout time.Duration
	SyncWait       time.Duration

	LogLevel  string
	LogPretty bool
}

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Addr:           envOr("ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AgentTimeout:   5 * time.Second,
		AnalyzeTimeout: 10 * time.Second,
		SyncWait:       3 * time.Second,
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogPretty:      os.Getenv("LOG_PRETTY") == "true",
	}

	var err error
	if cfg.AgentTimeout, err = durationOr("AGENT_TIMEOUT", cfg.AgentTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AnalyzeTimeout, err = durationOr("ANALYZE_TIMEOUT", cfg.AnalyzeTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SyncWait, err = durationOr("SYNC_WAIT", cfg.SyncWait); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	if cfg.AgentTimeout > cfg.AnalyzeTimeout {
		return Config{}, fmt.Errorf("config: AGENT_TIMEOUT must not exceed ANALYZE_TIMEOUT")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

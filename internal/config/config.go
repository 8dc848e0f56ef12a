// Package config loads server configuration from the environment with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	Port string `yaml:"port"`

	// SurrealDB connection (durable job records)
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Provider credentials
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	ReplicateToken string `yaml:"replicate_token"`
	BedrockRegion  string `yaml:"bedrock_region"`

	// Polling adapter tuning. Zero PollTimeout means poll forever, which
	// matches the historical behavior; set it in production.
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`

	// Queue tuning. Zero MaxConcurrency means unbounded dispatch.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables. If SYM_CONFIG_FILE
// points at a YAML file, its values are applied first and the environment
// overrides them.
func Load() (Config, error) {
	cfg := Config{
		Port:               "4000",
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "sym",
		SurrealDBDatabase:  "app",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",
		PollInterval:       2 * time.Second,
		LogFile:            "/tmp/sym-server.log",
	}

	if path := os.Getenv("SYM_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.SurrealDBURL = getEnv("SURREALDB_URL", cfg.SurrealDBURL)
	cfg.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", cfg.SurrealDBNamespace)
	cfg.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", cfg.SurrealDBDatabase)
	cfg.SurrealDBUser = getEnv("SURREALDB_USER", cfg.SurrealDBUser)
	cfg.SurrealDBPass = getEnv("SURREALDB_PASS", cfg.SurrealDBPass)
	cfg.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", cfg.SurrealDBAuthLevel)

	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.ReplicateToken = getEnv("REPLICATE_API_TOKEN", cfg.ReplicateToken)
	cfg.BedrockRegion = getEnv("BEDROCK_REGION", cfg.BedrockRegion)

	if v := os.Getenv("SYM_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse SYM_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("SYM_POLL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse SYM_POLL_TIMEOUT: %w", err)
		}
		cfg.PollTimeout = d
	}
	if v := os.Getenv("SYM_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse SYM_MAX_CONCURRENCY: %w", err)
		}
		cfg.MaxConcurrency = n
	}

	cfg.LogFile = getEnv("SYM_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = parseLogLevel(getEnv("SYM_LOG_LEVEL", "INFO"))

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package config loads server configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	RPC       RPCConfig
	Verify    VerifyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
	MaxBodySizeMB  int
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// AuthConfig holds API key settings. No hashes leaves the API open.
type AuthConfig struct {
	// APIKeyHashes are hex SHA-256 hashes of accepted keys
	APIKeyHashes []string
}

// RateLimitConfig holds rate limiting settings for the verify endpoint
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	Port    int // 0 serves /metrics on the main listener
}

// RPCConfig holds chain access settings
type RPCConfig struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	// URLs overrides chain RPC endpoints, keyed by lower-case chain name
	URLs map[string]string
	// AllowRequestURLs lets submitted suites choose the endpoint of chains
	// without an override
	AllowRequestURLs bool
}

// VerifyConfig bounds verification runs submitted to the server
type VerifyConfig struct {
	Concurrency  int
	MaxContracts int
	RunTimeout   time.Duration
}

// URLFor returns the override for chain, or fallback
func (c RPCConfig) URLFor(chain, fallback string) string {
	if u, ok := c.URLs[strings.ToLower(chain)]; ok && u != "" {
		return u
	}
	return fallback
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 300),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 300),
			MaxBodySizeMB:  getEnvInt("SERVER_MAX_BODY_SIZE_MB", 50),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/integrity-verifier.db"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			APIKeyHashes: getEnvList("API_KEY_HASHES"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 30),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 5),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 0),
		},
		RPC: RPCConfig{
			RequestsPerSecond: getEnvFloat("RPC_REQUESTS_PER_SECOND", 10),
			Burst:             getEnvInt("RPC_BURST", 10),
			Timeout:           getEnvDuration("RPC_TIMEOUT", 30*time.Second),
			URLs:              rpcURLs(os.Environ()),
			AllowRequestURLs:  getEnvBool("RPC_ALLOW_REQUEST_URLS", false),
		},
		Verify: VerifyConfig{
			Concurrency:  getEnvInt("VERIFY_CONCURRENCY", 4),
			MaxContracts: getEnvInt("VERIFY_MAX_CONTRACTS", 100),
			RunTimeout:   getEnvDuration("VERIFY_RUN_TIMEOUT", 5*time.Minute),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

// rpcURLs collects RPC_URL_<CHAIN> variables. RPC_URL_LINEA_MAINNET maps to linea-mainnet.
func rpcURLs(environ []string) map[string]string {
	const prefix = "RPC_URL_"
	urls := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
			continue
		}
		chain := strings.ToLower(strings.ReplaceAll(key[len(prefix):], "_", "-"))
		urls[chain] = value
	}
	return urls
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

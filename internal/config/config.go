// Package config loads configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Config holds all strata configuration.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (empty disables the listener)
	MetricsAddr string

	// Sync
	SyncWorkers   int
	SyncQueueSize int
	DeleteMissing bool

	// S3 backends (applies to every s3: storage string)
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// HTTP mirror backends
	HTTPInfoCacheSeconds int
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		LogLevel:             envOr("STRATA_LOG_LEVEL", "info"),
		LogFormat:            envOr("STRATA_LOG_FORMAT", "console"),
		MetricsAddr:          envOr("STRATA_METRICS_ADDR", ""),
		SyncWorkers:          envInt("STRATA_SYNC_WORKERS", 0),
		SyncQueueSize:        envInt("STRATA_SYNC_QUEUE_SIZE", 1000),
		DeleteMissing:        envBool("STRATA_SYNC_DELETE_MISSING", false),
		S3Endpoint:           envOr("STRATA_S3_ENDPOINT", ""),
		S3AccessKey:          envOr("STRATA_S3_ACCESS_KEY", ""),
		S3SecretKey:          envOr("STRATA_S3_SECRET_KEY", ""),
		S3Region:             envOr("STRATA_S3_REGION", "us-east-1"),
		HTTPInfoCacheSeconds: envInt("STRATA_HTTP_INFO_CACHE_SECONDS", 30),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

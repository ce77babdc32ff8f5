// Package config loads application configuration from the environment.
// Narrow per-concern interfaces are defined here so modules can declare
// exactly which settings they depend on.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Config Interfaces (for dependency injection)
// =============================================================================

// ReportingDBConfig provides connection settings for the reporting database.
type ReportingDBConfig interface {
	GetReportingDatabaseURL() string
}

// SourceDBConfig provides connection settings for the upstream MES databases.
type SourceDBConfig interface {
	// GetSourceDatabaseURL returns the DSN for a source tag ("cs" or "sz").
	GetSourceDatabaseURL(tag string) string
	// GetSourceTags returns the known source tags in processing order.
	GetSourceTags() []string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for the asynq scheduler/worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SyncConfig provides settings for the reconciliation engine and supervisor.
type SyncConfig interface {
	GetSyncLookbackDays() int
	GetSyncMaxDuration() time.Duration
	GetSyncCompletedRetention() time.Duration
	// GetSourceQueryRate bounds per-run quantity fetches per second against
	// the production MES databases. Zero disables throttling.
	GetSourceQueryRate() float64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	PMDatabaseURL          string
	CSDatabaseURL          string
	SZDatabaseURL          string
	CORSAllowAll           bool
	CORSOrigins            []string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	SyncLookbackDays       int
	SyncMaxDuration        time.Duration
	SyncCompletedRetention time.Duration
	SourceQueryRate        float64
}

// Load reads configuration from the environment (and a .env file if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "true"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":6000"),
		PMDatabaseURL:          getEnv("PM_DATABASE_URL", ""),
		CSDatabaseURL:          getEnv("CS_DATABASE_URL", ""),
		SZDatabaseURL:          getEnv("SZ_DATABASE_URL", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:       getIntEnv("ASYNQ_CONCURRENCY", 5),
		SyncLookbackDays:       getIntEnv("SYNC_LOOKBACK_DAYS", 7),
		SyncMaxDuration:        mustDuration(getEnv("SYNC_MAX_DURATION", "2m")),
		SyncCompletedRetention: mustDuration(getEnv("SYNC_COMPLETED_RETENTION", "10m")),
		SourceQueryRate:        getFloatEnv("SOURCE_QUERY_RATE", 0),
	}

	if cfg.PMDatabaseURL == "" {
		return nil, fmt.Errorf("PM_DATABASE_URL is required")
	}
	if cfg.CSDatabaseURL == "" || cfg.SZDatabaseURL == "" {
		return nil, fmt.Errorf("CS_DATABASE_URL and SZ_DATABASE_URL are required")
	}
	if cfg.SyncLookbackDays < 1 || cfg.SyncLookbackDays > 31 {
		return nil, fmt.Errorf("SYNC_LOOKBACK_DAYS must be between 1 and 31")
	}
	if cfg.SyncMaxDuration <= 0 {
		return nil, fmt.Errorf("SYNC_MAX_DURATION must be a positive duration")
	}

	return cfg, nil
}

// ReportingDBConfig implementation
func (c *Config) GetReportingDatabaseURL() string { return c.PMDatabaseURL }

// SourceDBConfig implementation
func (c *Config) GetSourceDatabaseURL(tag string) string {
	switch tag {
	case "cs":
		return c.CSDatabaseURL
	case "sz":
		return c.SZDatabaseURL
	default:
		return ""
	}
}

func (c *Config) GetSourceTags() []string { return []string{"cs", "sz"} }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// SyncConfig implementation
func (c *Config) GetSyncLookbackDays() int                 { return c.SyncLookbackDays }
func (c *Config) GetSyncMaxDuration() time.Duration        { return c.SyncMaxDuration }
func (c *Config) GetSyncCompletedRetention() time.Duration { return c.SyncCompletedRetention }
func (c *Config) GetSourceQueryRate() float64              { return c.SourceQueryRate }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(val), "%d", &n); err != nil {
		return fallback
	}
	return n
}

func getFloatEnv(key string, fallback float64) float64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var f float64
	if _, err := fmt.Sscanf(strings.TrimSpace(val), "%g", &f); err != nil {
		return fallback
	}
	return f
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

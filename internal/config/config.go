package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAggregationInterval  = 10 * time.Minute
	DefaultAggregationBatchSize = 10000
	DefaultLeaseTTL             = 5 * time.Minute
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	Environment string

	AdminUser     string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	// AggregationInterval is the cadence of the recurring aggregation job.
	AggregationInterval time.Duration

	// AggregationBatchSize bounds how many unprocessed raw events a single
	// cycle folds into counters.
	AggregationBatchSize int

	// AggregationSkipOverlap makes the scheduler skip a firing while the
	// previous cycle is still running. Overlapping cycles are allowed by default.
	AggregationSkipOverlap bool

	// RedisURL enables the cross-replica cycle lease. Empty disables it.
	RedisURL string
	LeaseTTL time.Duration

	// InternalTenant is used for self-tracking the requests served by this
	// instance. If empty, self-tracking is disabled.
	InternalTenant string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		Environment:          getenv("APP_ENV", "development"),
		AdminUser:            getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:        getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:          os.Getenv("APP_DATABASE_URL"),
		ListenAddr:           getenv("APP_LISTEN_ADDR", ":8080"),
		AggregationInterval:  DefaultAggregationInterval,
		AggregationBatchSize: DefaultAggregationBatchSize,
		RedisURL:             strings.TrimSpace(os.Getenv("APP_REDIS_URL")),
		LeaseTTL:             DefaultLeaseTTL,
		InternalTenant:       getenv("APP_INTERNAL_TENANT", ""),
	}

	if v := os.Getenv("APP_AGGREGATION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AggregationInterval = d
		}
	}

	if v := os.Getenv("APP_AGGREGATION_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AggregationBatchSize = n
		}
	}

	if v := os.Getenv("APP_AGGREGATION_SKIP_OVERLAP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AggregationSkipOverlap = b
		}
	}

	if v := os.Getenv("APP_LEASE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.LeaseTTL = d
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

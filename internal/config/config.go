package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/amaumene/harvestarr/internal/models"
)

const (
	MinConcurrentTransfers = 1
	MaxConcurrentTransfers = 10
)

// Config holds all application configuration
type Config struct {
	// Upstream lookup
	LookupBaseURL      string
	LookupBearerToken  string  // Passed through verbatim, optional
	LookupRatePerSec   float64 // Lookups per second (0 disables limiting)
	ResolveCacheTTL    time.Duration
	DefaultQualityTier models.QualityTier

	// Transfers
	MaxConcurrentTransfers int
	SaveLocation           string
	TransferTimeout        time.Duration

	// History
	HistoryMax int

	// Durable jobs
	JobMaxAttempts   int
	JobSweepSchedule string // cron schedule, e.g. "@every 30s"

	// Server
	ServerPort string

	// Paths
	DatabaseFile string // $CONFIG_DIR/harvestarr.db

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("LOOKUP_BASE_URL", "https://api.twitter.com/1.1")
	v.SetDefault("LOOKUP_RATE_PER_SECOND", 2.0)
	v.SetDefault("RESOLVE_CACHE_MINUTES", 10)
	v.SetDefault("QUALITY_TIER", string(models.QualityHigh))
	v.SetDefault("MAX_CONCURRENT_TRANSFERS", 3)
	v.SetDefault("TRANSFER_TIMEOUT_SECONDS", 120)
	v.SetDefault("HISTORY_MAX", 100)
	v.SetDefault("JOB_MAX_ATTEMPTS", 5)
	v.SetDefault("JOB_SWEEP_SCHEDULE", "@every 30s")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir, err := resolveDir(v.GetString("CONFIG_DIR"), filepath.Join(homeDir, ".config", "harvestarr"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve CONFIG_DIR: %w", err)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	saveLocation, err := resolveDir(v.GetString("SAVE_LOCATION"), filepath.Join(homeDir, "Downloads", "harvestarr"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve SAVE_LOCATION: %w", err)
	}

	tier, ok := models.ParseQualityTier(v.GetString("QUALITY_TIER"))
	if !ok {
		return nil, fmt.Errorf("QUALITY_TIER must be one of low, medium, high (got %q)", v.GetString("QUALITY_TIER"))
	}

	config := &Config{
		LookupBaseURL:      v.GetString("LOOKUP_BASE_URL"),
		LookupBearerToken:  v.GetString("LOOKUP_BEARER_TOKEN"),
		LookupRatePerSec:   v.GetFloat64("LOOKUP_RATE_PER_SECOND"),
		ResolveCacheTTL:    time.Duration(v.GetInt("RESOLVE_CACHE_MINUTES")) * time.Minute,
		DefaultQualityTier: tier,

		MaxConcurrentTransfers: ClampConcurrency(v.GetInt("MAX_CONCURRENT_TRANSFERS")),
		SaveLocation:           saveLocation,
		TransferTimeout:        time.Duration(v.GetInt("TRANSFER_TIMEOUT_SECONDS")) * time.Second,

		HistoryMax: v.GetInt("HISTORY_MAX"),

		JobMaxAttempts:   v.GetInt("JOB_MAX_ATTEMPTS"),
		JobSweepSchedule: v.GetString("JOB_SWEEP_SCHEDULE"),

		ServerPort: v.GetString("SERVER_PORT"),

		DatabaseFile: filepath.Join(configDir, "harvestarr.db"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	// Validate required fields
	if config.LookupBaseURL == "" {
		return nil, fmt.Errorf("LOOKUP_BASE_URL is required")
	}
	if config.HistoryMax <= 0 {
		return nil, fmt.Errorf("HISTORY_MAX must be positive")
	}
	if config.TransferTimeout <= 0 {
		return nil, fmt.Errorf("TRANSFER_TIMEOUT_SECONDS must be positive")
	}
	if config.JobMaxAttempts <= 0 {
		return nil, fmt.Errorf("JOB_MAX_ATTEMPTS must be positive")
	}

	return config, nil
}

// ClampConcurrency keeps a concurrency budget within the supported range
func ClampConcurrency(n int) int {
	if n < MinConcurrentTransfers {
		return MinConcurrentTransfers
	}
	if n > MaxConcurrentTransfers {
		return MaxConcurrentTransfers
	}
	return n
}

// resolveDir returns dir as an absolute path, or fallback when dir is empty
func resolveDir(dir, fallback string) (string, error) {
	if dir == "" {
		return fallback, nil
	}
	return filepath.Abs(dir)
}

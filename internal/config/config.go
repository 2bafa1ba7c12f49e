package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string

	// Discord
	DiscordToken string

	// Storage
	DataDir      string
	DefaultsFile string // per-deployment option default overrides, hot-reloaded

	// Reconciliation
	ReconcileInterval time.Duration
	RetentionDays     int
	AutosaveCron      string // standard five-field cron expression

	// Platform REST rate limits (requests per second)
	GlobalRateLimit   float64
	PerGuildRateLimit float64
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DiscordToken: getEnv("DISCORD_TOKEN", ""),

		DataDir:      dataDir,
		DefaultsFile: getEnv("DEFAULTS_FILE", filepath.Join(dataDir, "defaults.yaml")),

		ReconcileInterval: getDurationEnv("RECONCILE_INTERVAL", time.Second),
		RetentionDays:     getIntEnv("RETENTION_DAYS", 30),
		AutosaveCron:      getEnv("AUTOSAVE_CRON", "0 * * * *"),

		GlobalRateLimit:   getFloatEnv("GLOBAL_RATE_LIMIT", 25),
		PerGuildRateLimit: getFloatEnv("PER_GUILD_RATE_LIMIT", 5),
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.ReconcileInterval < 100*time.Millisecond {
		return fmt.Errorf("RECONCILE_INTERVAL %v is below the 100ms floor", c.ReconcileInterval)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1, got %d", c.RetentionDays)
	}
	if _, err := cron.ParseStandard(c.AutosaveCron); err != nil {
		return fmt.Errorf("AUTOSAVE_CRON %q is not a valid cron expression: %w", c.AutosaveCron, err)
	}
	if c.GlobalRateLimit <= 0 || c.PerGuildRateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// Retention returns the member-record retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

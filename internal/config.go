package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	DestRoot        string
	Workers         int
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	MaxRetries      int
	UserAgent       string
	RegistryFile    string
	ProxyURL        string
	RateLimit       string // human-readable, e.g. "2M"
	DryRun          bool

	// Logging configuration
	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// MaxWorkers caps the optional download worker pool
const MaxWorkers = 8

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DestRoot:        "courses",
		Workers:         1,
		RequestTimeout:  30 * time.Second,
		DownloadTimeout: 2 * time.Hour,
		MaxRetries:      2,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",

		// Logging defaults
		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr only
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if dest := os.Getenv("JCDL_DEST"); dest != "" {
		c.DestRoot = dest
	}

	if workers := os.Getenv("JCDL_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 && w <= MaxWorkers {
			c.Workers = w
		}
	}

	if timeout := os.Getenv("JCDL_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t > 0 {
			c.RequestTimeout = time.Duration(t) * time.Second
		}
	}

	if timeout := os.Getenv("JCDL_DOWNLOAD_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			c.DownloadTimeout = d
		}
	}

	if proxy := os.Getenv("JCDL_PROXY"); proxy != "" {
		c.ProxyURL = proxy
	}

	if rate := os.Getenv("JCDL_RATE_LIMIT"); rate != "" {
		c.RateLimit = rate
	}

	if registry := os.Getenv("JCDL_REGISTRY"); registry != "" {
		c.RegistryFile = registry
	}

	// Load logging configuration from environment
	if logLevel := os.Getenv("JCDL_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}

	if debug := os.Getenv("JCDL_DEBUG"); debug != "" {
		c.EnableDebug = debug == "true" || debug == "1"
	}

	if quiet := os.Getenv("JCDL_QUIET"); quiet != "" {
		c.QuietMode = quiet == "true" || quiet == "1"
	}

	if logFile := os.Getenv("JCDL_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.DestRoot == "" {
		return fmt.Errorf("destination root cannot be empty")
	}

	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("invalid workers: %d (must be 1-%d)", c.Workers, MaxWorkers)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout: %v (must be > 0)", c.RequestTimeout)
	}

	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("invalid download timeout: %v (must be > 0)", c.DownloadTimeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d (must be >= 0)", c.MaxRetries)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

package internal

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DestRoot != "courses" {
		t.Errorf("Expected dest courses, got %s", config.DestRoot)
	}
	if config.Workers != 1 {
		t.Errorf("Expected 1 worker, got %d", config.Workers)
	}
	if err := config.ValidateConfig(); err != nil {
		t.Errorf("Default config should be valid, got %v", err)
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("JCDL_DEST", "/srv/videos")
	t.Setenv("JCDL_WORKERS", "4")
	t.Setenv("JCDL_TIMEOUT", "10")
	t.Setenv("JCDL_DOWNLOAD_TIMEOUT", "90m")
	t.Setenv("JCDL_PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("JCDL_RATE_LIMIT", "2M")
	t.Setenv("JCDL_REGISTRY", "courses.json5")
	t.Setenv("JCDL_DEBUG", "1")
	t.Setenv("JCDL_QUIET", "true")
	t.Setenv("JCDL_LOG_LEVEL", "warn")
	t.Setenv("JCDL_LOG_FILE", "run.log")

	config := DefaultConfig()
	config.LoadFromEnv()

	if config.DestRoot != "/srv/videos" {
		t.Errorf("Expected dest /srv/videos, got %s", config.DestRoot)
	}
	if config.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", config.Workers)
	}
	if config.RequestTimeout != 10*time.Second {
		t.Errorf("Expected 10s request timeout, got %v", config.RequestTimeout)
	}
	if config.DownloadTimeout != 90*time.Minute {
		t.Errorf("Expected 90m download timeout, got %v", config.DownloadTimeout)
	}
	if config.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Errorf("Expected proxy from env, got %s", config.ProxyURL)
	}
	if config.RateLimit != "2M" {
		t.Errorf("Expected rate limit 2M, got %s", config.RateLimit)
	}
	if config.RegistryFile != "courses.json5" {
		t.Errorf("Expected registry file, got %s", config.RegistryFile)
	}
	if !config.EnableDebug || !config.QuietMode {
		t.Error("Expected debug and quiet to be enabled")
	}
	if config.LogLevel != "warn" || config.LogFile != "run.log" {
		t.Errorf("Expected log settings from env, got %s / %s", config.LogLevel, config.LogFile)
	}
}

func TestConfig_LoadFromEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("JCDL_WORKERS", "99")
	t.Setenv("JCDL_TIMEOUT", "-3")
	t.Setenv("JCDL_DOWNLOAD_TIMEOUT", "soon")

	config := DefaultConfig()
	config.LoadFromEnv()

	defaults := DefaultConfig()
	if config.Workers != defaults.Workers {
		t.Errorf("Expected default workers, got %d", config.Workers)
	}
	if config.RequestTimeout != defaults.RequestTimeout {
		t.Errorf("Expected default timeout, got %v", config.RequestTimeout)
	}
	if config.DownloadTimeout != defaults.DownloadTimeout {
		t.Errorf("Expected default download timeout, got %v", config.DownloadTimeout)
	}
}

func TestConfig_ValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty dest", func(c *Config) { c.DestRoot = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"too many workers", func(c *Config) { c.Workers = MaxWorkers + 1 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"zero download timeout", func(c *Config) { c.DownloadTimeout = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			if err := config.ValidateConfig(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("JCDL_EMAIL", "gopher@example.com")

	if got := GetEnvWithDefault("JCDL_EMAIL", "x"); got != "gopher@example.com" {
		t.Errorf("Expected env value, got %s", got)
	}
	if got := GetEnvWithDefault("JCDL_UNSET_FOR_TEST", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %s", got)
	}
}

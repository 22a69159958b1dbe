package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the governance service.
type Config struct {
	ListenAddress   string                     `yaml:"listen"`
	RuntimeConfig   string                     `yaml:"runtime_config"`
	DataDir         string                     `yaml:"data_dir"`
	Environment     string                     `yaml:"environment"`
	ShutdownTimeout time.Duration              `yaml:"shutdown_timeout"`
	EventBuffer     int                        `yaml:"event_buffer"`
	Auth            AuthConfig                 `yaml:"auth"`
	RateLimits      map[string]RateLimitConfig `yaml:"rate_limits"`
	CORS            CORSConfig                 `yaml:"cors"`
	Logging         LoggingConfig              `yaml:"logging"`
	Telemetry       TelemetryConfig            `yaml:"telemetry"`
}

// AuthConfig controls bearer token verification. The secret may be given
// inline or read from the environment variable named by HMACSecretEnv.
type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

// Secret resolves the HMAC secret, preferring the environment.
func (a AuthConfig) Secret() string {
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(a.HMACSecret)
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	LogRequests bool   `yaml:"log_requests"`
}

type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Headers     string  `yaml:"headers"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func defaults() Config {
	return Config{
		ListenAddress:   ":8080",
		ShutdownTimeout: 5 * time.Second,
		EventBuffer:     128,
		RateLimits: map[string]RateLimitConfig{
			"read":  {RequestsPerMinute: 600, Burst: 60},
			"write": {RequestsPerMinute: 60, Burst: 10},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML configuration from disk.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 128
	}
	if strings.TrimSpace(cfg.RuntimeConfig) == "" {
		return cfg, fmt.Errorf("runtime_config is required")
	}
	if cfg.Auth.Enabled && cfg.Auth.Secret() == "" {
		return cfg, fmt.Errorf("auth.hmac_secret or auth.hmac_secret_env is required when auth is enabled")
	}
	for name, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return cfg, fmt.Errorf("rate_limits.%s must not be negative", name)
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return cfg, fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return cfg, nil
}

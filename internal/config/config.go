// Package config defines the relay's runtime settings, their defaults, and how
// they are loaded from a YAML file, a .env file, and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the per-connection inbound message rate limit.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config holds the server configuration.
type Config struct {
	Port            string          `yaml:"port"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	MaxMessageSize  int64           `yaml:"max_message_size"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Log             LogConfig       `yaml:"log"`
	Metrics         MetricsConfig   `yaml:"metrics"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
}

const (
	defaultPort            = ":3043"
	defaultMaxMessageSize  = 4096
	defaultRatePerSecond   = 20
	defaultRateBurst       = 40
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultMetricsPath     = "/metrics"
	defaultShutdownTimeout = 10 * time.Second
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
	reservedPaths   = []string{"/", "/ws", "/test"}
)

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	return &Config{
		Port:           defaultPort,
		AllowedOrigins: []string{"*"},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: defaultRatePerSecond,
			Burst:             defaultRateBurst,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Load builds the configuration from defaults, then the YAML file at path (if
// path is not empty), then the .env file at envFile (if it exists), then the
// process environment. The result is sanitized and validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg.ApplyEnv()
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML document at path onto cfg. ${VAR} references are
// expanded from the environment first.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables. Values that fail to
// parse leave the current setting untouched.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseList(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.MaxMessageSize = parsePositiveInt64(maxSize, c.MaxMessageSize)
	}

	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		c.RateLimit.Enabled = parseBool(enabled, c.RateLimit.Enabled)
	}

	if rps := os.Getenv("RATE_LIMIT_RPS"); rps != "" {
		c.RateLimit.MessagesPerSecond = parsePositiveFloat(rps, c.RateLimit.MessagesPerSecond)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		c.RateLimit.Burst = parsePositiveInt(burst, c.RateLimit.Burst)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(level))
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = strings.ToLower(strings.TrimSpace(format))
	}

	if enabled := os.Getenv("METRICS_ENABLED"); enabled != "" {
		c.Metrics.Enabled = parseBool(enabled, c.Metrics.Enabled)
	}

	if path := os.Getenv("METRICS_PATH"); path != "" {
		c.Metrics.Path = path
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		c.ShutdownTimeout = parseDuration(timeout, c.ShutdownTimeout)
	}
}

// sanitize replaces zero or negative values with defaults.
func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.RateLimit.MessagesPerSecond <= 0 {
		c.RateLimit.MessagesPerSecond = defaultRatePerSecond
	}

	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultRateBurst
	}

	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}

	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	origins := c.AllowedOrigins[:0]
	for _, origin := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.AllowedOrigins = origins
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if !contains(validLogLevels, c.Log.Level) {
		problems = append(problems, fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	if !contains(validLogFormats, c.Log.Format) {
		problems = append(problems, fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		problems = append(problems, "metrics path must start with /")
	}

	if c.Metrics.Enabled && contains(reservedPaths, c.Metrics.Path) {
		problems = append(problems, fmt.Sprintf("metrics path %s is reserved", c.Metrics.Path))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePositiveInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parsePositiveInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parsePositiveFloat(value string, defaultValue float64) float64 {
	if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func contains(values []string, item string) bool {
	for _, v := range values {
		if v == item {
			return true
		}
	}
	return false
}

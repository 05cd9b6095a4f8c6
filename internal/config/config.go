/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables
// and an optional YAML file.
type Config struct {
	Environment string `yaml:"environment"`
	HTTPBind    string `yaml:"http_bind"`
	HTTPPort    int    `yaml:"http_port"`

	DBBackend DatabaseBackend `yaml:"db_backend"`
	DBDSN     string          `yaml:"db_dsn"`

	// SilentOutput drives the engine from a wall clock instead of the sound card.
	SilentOutput bool `yaml:"silent_output"`

	MusicDir     string `yaml:"music_dir"`
	ArtworkDir   string `yaml:"artwork_dir"`
	WatchLibrary bool   `yaml:"watch_library"`

	// Playback tuning
	PollInterval      time.Duration `yaml:"poll_interval"`
	LoadTimeout       time.Duration `yaml:"load_timeout"`
	PersistDebounce   time.Duration `yaml:"persist_debounce"`
	DefaultLoopCount  int           `yaml:"default_loop_count"`
	DefaultFallbackMs int           `yaml:"default_fallback_ms"`

	// Remote control
	JWTSigningKey string `yaml:"jwt_signing_key"`
	NATSURL       string `yaml:"nats_url"`
	NATSSubject   string `yaml:"nats_subject"`

	// Now-playing sinks
	RedisAddr            string `yaml:"redis_addr"`
	RedisPassword        string `yaml:"redis_password"`
	RedisDB              int    `yaml:"redis_db"`
	NotificationsEnabled bool   `yaml:"notifications_enabled"`

	// Tracing configuration
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
}

// Load reads environment variables, applies defaults, overlays the YAML file
// named by SQUAREWAVE_CONFIG when present, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SQUAREWAVE_ENV", "development"),
		HTTPBind:    getEnv("SQUAREWAVE_HTTP_BIND", "127.0.0.1"),
		HTTPPort:    getEnvInt("SQUAREWAVE_HTTP_PORT", 8420),

		DBBackend: DatabaseBackend(getEnv("SQUAREWAVE_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("SQUAREWAVE_DB_DSN", "squarewave.db"),

		SilentOutput: getEnvBool("SQUAREWAVE_SILENT_OUTPUT", false),

		MusicDir:     getEnv("SQUAREWAVE_MUSIC_DIR", "./music"),
		ArtworkDir:   getEnv("SQUAREWAVE_ARTWORK_DIR", "./artwork"),
		WatchLibrary: getEnvBool("SQUAREWAVE_WATCH_LIBRARY", false),

		PollInterval:      getEnvDuration("SQUAREWAVE_POLL_INTERVAL", 500*time.Millisecond),
		LoadTimeout:       getEnvDuration("SQUAREWAVE_LOAD_TIMEOUT", 5*time.Second),
		PersistDebounce:   getEnvDuration("SQUAREWAVE_PERSIST_DEBOUNCE", time.Second),
		DefaultLoopCount:  getEnvInt("SQUAREWAVE_LOOP_COUNT", 2),
		DefaultFallbackMs: getEnvInt("SQUAREWAVE_FALLBACK_LENGTH_MS", 150000),

		JWTSigningKey: getEnv("SQUAREWAVE_JWT_SIGNING_KEY", ""),
		NATSURL:       getEnv("SQUAREWAVE_NATS_URL", ""),
		NATSSubject:   getEnv("SQUAREWAVE_NATS_SUBJECT", "squarewave.remote"),

		RedisAddr:            getEnv("SQUAREWAVE_REDIS_ADDR", ""),
		RedisPassword:        getEnv("SQUAREWAVE_REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("SQUAREWAVE_REDIS_DB", 0),
		NotificationsEnabled: getEnvBool("SQUAREWAVE_NOTIFICATIONS", false),

		TracingEnabled:    getEnvBool("SQUAREWAVE_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SQUAREWAVE_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SQUAREWAVE_TRACING_SAMPLE_RATE", 1.0),
	}

	if path := os.Getenv("SQUAREWAVE_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile applies values from a YAML file; keys absent from the file keep
// their environment or default value.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("SQUAREWAVE_DB_DSN must be provided")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("load timeout must be positive, got %s", c.LoadTimeout)
	}
	if c.DefaultLoopCount < 1 {
		return fmt.Errorf("loop count must be at least 1, got %d", c.DefaultLoopCount)
	}
	if c.DefaultFallbackMs <= 0 {
		return fmt.Errorf("fallback track length must be positive, got %d", c.DefaultFallbackMs)
	}
	if strings.EqualFold(c.Environment, "production") && c.HTTPBind != "127.0.0.1" && c.JWTSigningKey == "" {
		return fmt.Errorf("SQUAREWAVE_JWT_SIGNING_KEY is required when the remote API listens beyond loopback in production")
	}
	return nil
}

// HTTPAddr returns the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("750ms") or a bare integer in milliseconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

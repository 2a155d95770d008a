// Package config provides configuration loading for outreachd.
//
// Configuration precedence (highest to lowest): environment variables,
// YAML config file, hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete outreachd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Cache         CacheConfig         `koanf:"cache"`
	Events        EventsConfig        `koanf:"events"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageConfig holds document store configuration.
type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in-process, which is only useful for tests.
	Path string `koanf:"path"`
}

// CacheConfig holds the context cache configuration.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	MaxEntries int           `koanf:"max_entries"`
	TTL        time.Duration `koanf:"ttl"`
}

// EventsConfig holds notification bus configuration.
type EventsConfig struct {
	// Embedded runs an in-process NATS server instead of dialing URL.
	Embedded bool   `koanf:"embedded"`
	URL      string `koanf:"url"`
}

// PipelineConfig holds pipeline runner configuration.
type PipelineConfig struct {
	MarkRetries int `koanf:"mark_retries"`

	// GeneratorURL is the base URL of the external generation engine.
	GeneratorURL     string        `koanf:"generator_url"`
	GeneratorTimeout time.Duration `koanf:"generator_timeout"`
}

// ObservabilityConfig holds logging and telemetry configuration.
type ObservabilityConfig struct {
	ServiceName     string `koanf:"service_name"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9180,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path: "outreachd.db",
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 1024,
			TTL:        300 * time.Second,
		},
		Events: EventsConfig{
			Embedded: true,
			URL:      "nats://localhost:4222",
		},
		Pipeline: PipelineConfig{
			MarkRetries:      3,
			GeneratorURL:     "http://localhost:9181",
			GeneratorTimeout: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServiceName:     "outreachd",
			LogLevel:        "info",
			LogFormat:       "json",
			EnableTelemetry: false,
			OTLPEndpoint:    "localhost:4317",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Storage.Path == "" {
		return errors.New("storage path is required")
	}
	if c.Cache.Enabled {
		if c.Cache.MaxEntries <= 0 {
			return errors.New("cache max_entries must be positive when the cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return errors.New("cache ttl must be positive when the cache is enabled")
		}
	}
	if c.Pipeline.MarkRetries < 1 {
		return errors.New("pipeline mark_retries must be at least 1")
	}
	if c.Pipeline.GeneratorURL == "" {
		return errors.New("pipeline generator_url is required")
	}
	if !c.Events.Embedded && c.Events.URL == "" {
		return errors.New("events url is required when not using the embedded server")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q (must be json or console)", c.Observability.LogFormat)
	}
	return nil
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "outreachd.db", cfg.Storage.Path)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Events.Embedded)
	assert.Equal(t, 3, cfg.Pipeline.MarkRetries)
	assert.Equal(t, "outreachd", cfg.Observability.ServiceName)
	assert.False(t, cfg.Observability.EnableTelemetry)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "empty storage path",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage path",
		},
		{
			name:    "cache enabled with zero entries",
			mutate:  func(c *Config) { c.Cache.MaxEntries = 0 },
			wantErr: "max_entries",
		},
		{
			name:    "cache enabled with zero ttl",
			mutate:  func(c *Config) { c.Cache.TTL = 0 },
			wantErr: "ttl",
		},
		{
			name: "cache disabled skips cache checks",
			mutate: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.MaxEntries = 0
				c.Cache.TTL = 0
			},
		},
		{
			name:    "zero mark retries",
			mutate:  func(c *Config) { c.Pipeline.MarkRetries = 0 },
			wantErr: "mark_retries",
		},
		{
			name:    "missing generator url",
			mutate:  func(c *Config) { c.Pipeline.GeneratorURL = "" },
			wantErr: "generator_url",
		},
		{
			name: "external events without url",
			mutate: func(c *Config) {
				c.Events.Embedded = false
				c.Events.URL = ""
			},
			wantErr: "events url",
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Observability.EnableTelemetry = true
				c.Observability.ServiceName = ""
			},
			wantErr: "service name",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Observability.LogFormat = "xml" },
			wantErr: "log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

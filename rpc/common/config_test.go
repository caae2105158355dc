package common

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/vKV/lib/db"
)

func TestDefaultServerConfig(t *testing.T) {
	config := DefaultServerConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}

	opts, err := config.Storage.ToDBOptions()
	if err != nil {
		t.Fatalf("ToDBOptions failed: %v", err)
	}
	if opts.CacheSizeBytes != 64<<20 || opts.Durability != db.DurabilityFull ||
		opts.CheckpointInterval != 30*time.Second || opts.MaxSegmentBytes != 60<<20 {
		t.Errorf("unexpected backend options: %+v", opts)
	}

	out := config.String()
	for _, want := range []string{"STORE SERVER", "ADMIN SERVER", "STORAGE", "tcp://0.0.0.0:6666", "pebble"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() is missing %q", want)
		}
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *ServerConfig)
	}{
		{"empty endpoint", func(c *ServerConfig) { c.Transport.Endpoint = "" }},
		{"no workers", func(c *ServerConfig) { c.Pool.MaxWorkers = 0 }},
		{"core above max", func(c *ServerConfig) { c.Pool.CoreWorkers = c.Pool.MaxWorkers + 1 }},
		{"admin pool", func(c *ServerConfig) { c.AdminPool.MaxWorkers = 0 }},
		{"engine", func(c *ServerConfig) { c.Storage.Engine = "bolt" }},
		{"durability", func(c *ServerConfig) { c.Storage.Durability = "sometimes" }},
		{"negative cache", func(c *ServerConfig) { c.Storage.CacheSizeMB = -1 }},
		{"log level", func(c *ServerConfig) { c.LogLevel = "verbose" }},
		{"max request", func(c *ServerConfig) { c.MaxRequestBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultServerConfig()
			tt.modify(&config)
			if err := config.Validate(); err == nil {
				t.Errorf("expected Validate to fail")
			}
		})
	}

	// a disabled admin endpoint ignores the admin pool
	config := DefaultServerConfig()
	config.Admin.Endpoint = ""
	config.AdminPool.MaxWorkers = 0
	if err := config.Validate(); err != nil {
		t.Errorf("expected disabled admin pool to be ignored, got %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "ERROR"} {
		if _, err := ParseLogLevel(level); err != nil {
			t.Errorf("ParseLogLevel(%s) failed: %v", level, err)
		}
	}
	if _, err := ParseLogLevel("trace"); err == nil {
		t.Errorf("expected ParseLogLevel(trace) to fail")
	}
}

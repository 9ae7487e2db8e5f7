package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is standalone",
			check:  func(c *Config) bool { return c.Mode == "standalone" },
			expect: "standalone",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default data dir",
			check:  func(c *Config) bool { return c.DataDir == "./data" },
			expect: "./data",
		},
		{
			name:   "default ring buffer size",
			check:  func(c *Config) bool { return c.RingBufferSize == 5000 },
			expect: "5000",
		},
		{
			name:   "default failure threshold",
			check:  func(c *Config) bool { return c.FailureThreshold == 5 },
			expect: "5",
		},
		{
			name:   "default offline data failure threshold",
			check:  func(c *Config) bool { return c.OfflineDataFailureThreshold == 3 },
			expect: "3",
		},
		{
			name:   "default issue tracker capacity",
			check:  func(c *Config) bool { return c.IssueTrackerCapacity == 100 },
			expect: "100",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "standalone mode is not connected",
			check:  func(c *Config) bool { return !c.Connected() },
			expect: "false",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestConnectedMode(t *testing.T) {
	t.Setenv("VECTORAIZ_MODE", "connected")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Connected() {
		t.Errorf("expected Connected() to be true when VECTORAIZ_MODE=connected")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VECTORAIZ_PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %d: %v", len(cfg.CORSAllowedOrigins), cfg.CORSAllowedOrigins)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:   "http",
			HTTPPort:    8080,
			MetricsPort: 9090,
		},
		Sandbox: SandboxConfig{
			Backend:          "docker",
			Image:            "judgebox-sandbox:latest",
			Workdir:          "/sandbox/temp",
			CompileBudgetSec: 5,
			GuardBandSec:     4,
			KeepaliveSec:     300,
			PidsLimit:        64,
			DefaultTimeSec:   2,
			MaxTimeSec:       30,
			DefaultMemoryMB:  256,
			MaxMemoryMB:      2048,
			MaxOutputBytes:   1 << 20,
		},
		Safety: SafetyConfig{Mode: "pattern"},
		Languages: map[string]Language{
			"python": {RunCmd: "python3 {source}"},
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	tests := []struct {
		name    string
		mutate  func(c *Config)
		message string
	}{
		{"InvalidServerTransport", func(c *Config) { c.Server.Transport = "invalid" }, "invalid server.transport"},
		{"NegativeMetricsPort", func(c *Config) { c.Server.MetricsPort = -1 }, "server.metrics_port"},
		{"UnsupportedBackend", func(c *Config) { c.Sandbox.Backend = "local" }, "unsupported sandbox.backend"},
		{"EmptyImage", func(c *Config) { c.Sandbox.Image = "" }, "sandbox.image"},
		{"RelativeWorkdir", func(c *Config) { c.Sandbox.Workdir = "sandbox" }, "sandbox.workdir"},
		{"ZeroCompileBudget", func(c *Config) { c.Sandbox.CompileBudgetSec = 0 }, "sandbox.compile_budget_sec must be positive"},
		{"ZeroGuardBand", func(c *Config) { c.Sandbox.GuardBandSec = 0 }, "sandbox.guard_band_sec must be positive"},
		{"DefaultTimeAboveMax", func(c *Config) { c.Sandbox.DefaultTimeSec = 60 }, "sandbox.default_time_sec"},
		{"ZeroDefaultMemory", func(c *Config) { c.Sandbox.DefaultMemoryMB = 0 }, "sandbox.default_memory_mb"},
		{"ZeroMaxOutput", func(c *Config) { c.Sandbox.MaxOutputBytes = 0 }, "sandbox.max_output_bytes must be positive"},
		{"ShortKeepalive", func(c *Config) { c.Sandbox.KeepaliveSec = 10 }, "sandbox.keepalive_sec"},
		{"InvalidSafetyMode", func(c *Config) { c.Safety.Mode = "ast" }, "invalid safety.mode"},
		{"EmptyRunCmd", func(c *Config) { c.Languages["c"] = Language{CompileCmd: "gcc {source}"} }, "languages.c.run_cmd"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNewFromFile(t *testing.T) {
	t.Run("DefaultsFillMissingKeys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "sandbox:\n  backend: podman\n  guard_band_sec: 6\nlogging:\n  mode: development\n  level: debug\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := NewFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, "podman", cfg.Sandbox.Backend)
		assert.Equal(t, "/sandbox/temp", cfg.Sandbox.Workdir)
		assert.Equal(t, "stdio", cfg.Server.Transport)
		assert.Equal(t, 6*time.Second, cfg.GuardBand())
		assert.Equal(t, 5*time.Second, cfg.CompileBudget())
		assert.Equal(t, "pattern", cfg.Safety.Mode)
		assert.Equal(t, "gcc {source} -o {binary}", cfg.Languages["c"].CompileCmd)
		assert.Equal(t, "python3 {source}", cfg.Languages["python"].RunCmd)
		assert.Equal(t, int64(8<<20), cfg.Sandbox.MaxOutputBytes)
	})

	t.Run("InvalidValuesRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("safety:\n  mode: unknown\n"), 0600))

		_, err := NewFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation error")
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("JUDGEBOX_SANDBOX_BACKEND", "docker-api")

		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  transport: http\n"), 0600))

		cfg, err := NewFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "docker-api", cfg.Sandbox.Backend)
		assert.Equal(t, "http", cfg.Server.Transport)
	})
}

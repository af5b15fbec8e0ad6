package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Safety    SafetyConfig        `mapstructure:"safety"`
	Languages map[string]Language `mapstructure:"languages"`
	Logging   LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport   string `mapstructure:"transport"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// SandboxConfig holds the execution sandbox configuration
type SandboxConfig struct {
	Backend          string  `mapstructure:"backend"`
	Image            string  `mapstructure:"image"`
	RecipeFile       string  `mapstructure:"recipe_file"`
	Workdir          string  `mapstructure:"workdir"`
	CompileBudgetSec float64 `mapstructure:"compile_budget_sec"`
	GuardBandSec     float64 `mapstructure:"guard_band_sec"`
	KeepaliveSec     int     `mapstructure:"keepalive_sec"`
	PidsLimit        int64   `mapstructure:"pids_limit"`
	User             string  `mapstructure:"user"`
	NetworkEnabled   bool    `mapstructure:"network_enabled"`
	DefaultTimeSec   float64 `mapstructure:"default_time_sec"`
	MaxTimeSec       float64 `mapstructure:"max_time_sec"`
	DefaultMemoryMB  int     `mapstructure:"default_memory_mb"`
	MaxMemoryMB      int     `mapstructure:"max_memory_mb"`
	MaxOutputBytes   int64   `mapstructure:"max_output_bytes"`
	ProvisionOnStart bool    `mapstructure:"provision_on_start"`
}

// SafetyConfig selects the static source check applied before execution
type SafetyConfig struct {
	Mode          string              `mapstructure:"mode"`
	ExtraPatterns map[string][]string `mapstructure:"extra_patterns"`
}

// Language holds the command templates of one language profile.
// Placeholders {source} and {binary} are substituted per argument.
type Language struct {
	CompileCmd string `mapstructure:"compile_cmd"`
	RunCmd     string `mapstructure:"run_cmd"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

// NewFromFile loads the configuration from an explicit YAML file
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("JUDGEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.image", "judgebox-sandbox:latest")
	v.SetDefault("sandbox.recipe_file", "")
	v.SetDefault("sandbox.workdir", "/sandbox/temp")
	v.SetDefault("sandbox.compile_budget_sec", 5)
	v.SetDefault("sandbox.guard_band_sec", 4)
	v.SetDefault("sandbox.keepalive_sec", 300)
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.user", "")
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.default_time_sec", 2)
	v.SetDefault("sandbox.max_time_sec", 30)
	v.SetDefault("sandbox.default_memory_mb", 256)
	v.SetDefault("sandbox.max_memory_mb", 2048)
	v.SetDefault("sandbox.max_output_bytes", 8*1024*1024)
	v.SetDefault("sandbox.provision_on_start", false)

	v.SetDefault("safety.mode", "pattern")

	v.SetDefault("languages.python.run_cmd", "python3 {source}")
	v.SetDefault("languages.c.compile_cmd", "gcc {source} -o {binary}")
	v.SetDefault("languages.c.run_cmd", "./{binary}")
	v.SetDefault("languages.c++.compile_cmd", "g++ {source} -o {binary}")
	v.SetDefault("languages.c++.run_cmd", "./{binary}")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // Flat list of independent checks
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.MetricsPort < 0 {
		return fmt.Errorf("server.metrics_port must not be negative, got: %d", c.Server.MetricsPort)
	}

	supportedBackends := map[string]bool{
		"docker":     true,
		"podman":     true,
		"docker-api": true,
	}
	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image must not be empty")
	}

	if !strings.HasPrefix(c.Sandbox.Workdir, "/") {
		return fmt.Errorf("sandbox.workdir must be an absolute path, got: %q", c.Sandbox.Workdir)
	}

	if c.Sandbox.CompileBudgetSec <= 0 {
		return fmt.Errorf("sandbox.compile_budget_sec must be positive, got: %v", c.Sandbox.CompileBudgetSec)
	}

	if c.Sandbox.GuardBandSec <= 0 {
		return fmt.Errorf("sandbox.guard_band_sec must be positive, got: %v", c.Sandbox.GuardBandSec)
	}

	if c.Sandbox.DefaultTimeSec <= 0 || c.Sandbox.MaxTimeSec < c.Sandbox.DefaultTimeSec {
		return fmt.Errorf("sandbox.default_time_sec must be positive and not exceed sandbox.max_time_sec")
	}

	if c.Sandbox.DefaultMemoryMB <= 0 || c.Sandbox.MaxMemoryMB < c.Sandbox.DefaultMemoryMB {
		return fmt.Errorf("sandbox.default_memory_mb must be positive and not exceed sandbox.max_memory_mb")
	}

	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be positive, got: %d", c.Sandbox.MaxOutputBytes)
	}

	minKeepalive := c.Sandbox.CompileBudgetSec + c.Sandbox.MaxTimeSec + c.Sandbox.GuardBandSec
	if float64(c.Sandbox.KeepaliveSec) < minKeepalive {
		return fmt.Errorf("sandbox.keepalive_sec must cover compile budget, max time and guard band (>= %v), got: %d",
			minKeepalive, c.Sandbox.KeepaliveSec)
	}

	switch c.Safety.Mode {
	case "pattern", "lexical", "none":
	default:
		return fmt.Errorf("invalid safety.mode: %s, must be 'pattern', 'lexical' or 'none'", c.Safety.Mode)
	}

	for name, lang := range c.Languages {
		if strings.TrimSpace(lang.RunCmd) == "" {
			return fmt.Errorf("languages.%s.run_cmd must not be empty", name)
		}
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// CompileBudget returns the fixed compile budget as a duration
func (c *Config) CompileBudget() time.Duration {
	return secondsToDuration(c.Sandbox.CompileBudgetSec)
}

// GuardBand returns the host-side guard band as a duration
func (c *Config) GuardBand() time.Duration {
	return secondsToDuration(c.Sandbox.GuardBandSec)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Package config handles loading and validating the detlab.toml configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Config is the top-level configuration.
type Config struct {
	Paths   PathsConfig   `toml:"paths"`
	Testing TestingConfig `toml:"testing"`
	Output  OutputConfig  `toml:"output"`
	Logging LoggingConfig `toml:"logging"`
}

// PathsConfig points at the content trees a run consumes.
type PathsConfig struct {
	// Detections is the spec tree walked for *.yml / *.yaml files.
	Detections string `toml:"detections"`
	// Schemas optionally holds log type schema files for validation.
	Schemas string `toml:"schemas"`
	// Samples optionally holds per-log-type benchmark event files,
	// one subdirectory per log type.
	Samples string `toml:"samples"`
}

// TestingConfig tunes test execution.
type TestingConfig struct {
	MinimumTests int `toml:"minimum_tests"`
	// Filters are KEY=VALUE[,VALUE...] clauses applied before running.
	Filters   []string `toml:"filters"`
	TestNames []string `toml:"test_names"`
	// HookTimeoutMS bounds a single hook invocation (0 disables).
	HookTimeoutMS int `toml:"hook_timeout_ms"`
}

// OutputConfig configures report output.
type OutputConfig struct {
	Format string `toml:"format"` // text or json
	Dir    string `toml:"dir"`
}

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

// Load reads a detlab.toml file and returns a validated Config. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Paths: PathsConfig{
			Detections: "detections",
		},
		Testing: TestingConfig{
			MinimumTests:  1,
			HookTimeoutMS: 5000,
		},
		Output: OutputConfig{
			Format: "text",
			Dir:    "output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	// Environment variable overrides
	if dir := os.Getenv("DETLAB_DETECTIONS"); dir != "" {
		cfg.Paths.Detections = dir
	}
	if dir := os.Getenv("DETLAB_OUTPUT_DIR"); dir != "" {
		cfg.Output.Dir = dir
	}
	if level := os.Getenv("DETLAB_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	c.Output.Format = strings.ToLower(c.Output.Format)
	switch c.Output.Format {
	case "text", "json":
		// valid
	case "":
		c.Output.Format = "text"
	default:
		return fmt.Errorf("unsupported output.format: %q", c.Output.Format)
	}

	c.Logging.Format = strings.ToLower(c.Logging.Format)
	switch c.Logging.Format {
	case "console", "json":
		// valid
	case "":
		c.Logging.Format = "console"
	default:
		return fmt.Errorf("unsupported logging.format: %q", c.Logging.Format)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("unsupported logging.level: %q", c.Logging.Level)
	}

	if c.Testing.MinimumTests < 0 {
		return fmt.Errorf("testing.minimum_tests must not be negative")
	}
	if c.Testing.HookTimeoutMS < 0 {
		return fmt.Errorf("testing.hook_timeout_ms must not be negative")
	}
	if c.Paths.Detections == "" {
		return fmt.Errorf("paths.detections is required")
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}

	return nil
}

// HookTimeout returns the per-hook watchdog duration.
func (c *Config) HookTimeout() time.Duration {
	return time.Duration(c.Testing.HookTimeoutMS) * time.Millisecond
}

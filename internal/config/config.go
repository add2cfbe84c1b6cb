package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "closedfn.yaml"

// Config holds all closedfn configuration.
type Config struct {
	// Host build settings
	Build BuildConfig `yaml:"build"`

	// Module resolution shared by the host build and every nested build
	Resolve ResolveConfig `yaml:"resolve"`

	// Capture checker and satellite emit settings
	Compiler CompilerConfig `yaml:"compiler"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ResolveConfig configures module resolution.
type ResolveConfig struct {
	// NodePaths are extra directories searched for bare imports (node_modules style).
	NodePaths []string `yaml:"node_paths"`

	// Extensions tried, in order, when an import omits one.
	Extensions []string `yaml:"extensions"`
}

// CompilerConfig configures the satellite compile pass.
type CompilerConfig struct {
	// Tsconfig is an explicit tsconfig.json; empty means search upward from the module.
	Tsconfig string `yaml:"tsconfig"`

	// Globals are extra names the capture checker accepts as ambient.
	Globals []string `yaml:"globals"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			Mode:        ModeProduction,
			Outfile:     "dist/bundle.js",
			GlobalName:  "closedfnResult",
			Target:      "es2017",
			Format:      "iife",
			Concurrency: 0,
			SourceKinds: []string{".ts", ".tsx", ".mts", ".cts"},
		},
		Resolve: ResolveConfig{
			NodePaths:  []string{"node_modules"},
			Extensions: []string{".ts", ".tsx", ".js", ".mjs", ".cjs", ".json"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("CLOSEDFN_MODE"); mode != "" {
		c.Build.Mode = Mode(mode)
	}
	if out := os.Getenv("CLOSEDFN_OUTFILE"); out != "" {
		c.Build.Outfile = out
	}
	if dir := os.Getenv("CLOSEDFN_TEMP_DIR"); dir != "" {
		c.Build.TempDir = dir
	}
	if n := os.Getenv("CLOSEDFN_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Build.Concurrency = v
		}
	}
	if debug := os.Getenv("CLOSEDFN_DEBUG"); debug != "" {
		c.Logging.DebugMode = debug == "1" || debug == "true"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Build.Mode.Valid() {
		return fmt.Errorf("invalid build mode: %q (valid: %v)", c.Build.Mode, ValidModes)
	}
	switch c.Build.Format {
	case "iife", "cjs", "esm":
	default:
		return fmt.Errorf("invalid output format: %q (valid: iife, cjs, esm)", c.Build.Format)
	}
	if c.Build.Concurrency < 0 {
		return fmt.Errorf("build.concurrency must be >= 0, got %d", c.Build.Concurrency)
	}
	if len(c.Build.SourceKinds) == 0 {
		return fmt.Errorf("build.source_kinds must list at least one extension")
	}
	return nil
}

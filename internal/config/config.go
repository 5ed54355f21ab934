package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects what `flowtrace build` writes.
type OutputFormat string

const (
	OutputFlowchart OutputFormat = "flowchart"
	OutputJSON      OutputFormat = "json"
	OutputMsgpack   OutputFormat = "msgpack"
)

// Config holds all configuration for flowtrace
type Config struct {
	// StepLimit bounds each condition evaluation
	StepLimit int `yaml:"step_limit" env:"FLOWTRACE_STEP_LIMIT"`

	// DedupeEdges drops repeated edge lines from diagrams
	DedupeEdges bool `yaml:"dedupe_edges" env:"FLOWTRACE_DEDUPE_EDGES"`

	// OutputFormat is the default format of `flowtrace build`
	OutputFormat OutputFormat `yaml:"output_format" env:"FLOWTRACE_OUTPUT_FORMAT"`

	// Rendered diagram cache
	CacheEnabled    bool   `yaml:"cache_enabled" env:"FLOWTRACE_CACHE_ENABLED"`
	CachePath       string `yaml:"cache_path" env:"FLOWTRACE_CACHE_PATH"`
	CacheMaxEntries int    `yaml:"cache_max_entries" env:"FLOWTRACE_CACHE_MAX_ENTRIES"`

	// Logging
	Verbose bool `yaml:"verbose" env:"FLOWTRACE_VERBOSE"`
	LogJSON bool `yaml:"log_json" env:"FLOWTRACE_LOG_JSON"`
}

// DefaultStepLimit is the evaluation bound used when none is configured.
const DefaultStepLimit = 100000

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StepLimit:       DefaultStepLimit,
		DedupeEdges:     false,
		OutputFormat:    OutputFlowchart,
		CacheEnabled:    true,
		CachePath:       defaultCachePath(),
		CacheMaxEntries: 256,
		Verbose:         false,
		LogJSON:         false,
	}
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".flowtrace", "cache.msgpack")
	}
	return filepath.Join(home, ".flowtrace", "cache.msgpack")
}

// GlobalConfigFilePath returns the global config file path (~/.flowtrace/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ProjectConfigFilePath()
	}
	return filepath.Join(home, ".flowtrace", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.flowtrace/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".flowtrace", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.flowtrace/config.yaml)
// 3. Global config (~/.flowtrace/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		if err := mergeFile(cfg, path, true); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeFile(cfg, path, false); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies FLOWTRACE_* environment variables. A variable
// that is set but unreadable is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("FLOWTRACE_STEP_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLOWTRACE_STEP_LIMIT: %w", err)
		}
		cfg.StepLimit = n
	}
	if v := os.Getenv("FLOWTRACE_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(strings.ToLower(v))
	}
	if v := os.Getenv("FLOWTRACE_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("FLOWTRACE_CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLOWTRACE_CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.CacheMaxEntries = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"FLOWTRACE_DEDUPE_EDGES", &cfg.DedupeEdges},
		{"FLOWTRACE_CACHE_ENABLED", &cfg.CacheEnabled},
		{"FLOWTRACE_VERBOSE", &cfg.Verbose},
		{"FLOWTRACE_LOG_JSON", &cfg.LogJSON},
	}
	for _, b := range bools {
		if v := os.Getenv(b.name); v != "" {
			*b.dst = parseBool(v)
		}
	}
	return nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.StepLimit <= 0 {
		return fmt.Errorf("step_limit must be positive")
	}

	switch c.OutputFormat {
	case OutputFlowchart, OutputJSON, OutputMsgpack:
	default:
		return fmt.Errorf("invalid output_format: %s (must be 'flowchart', 'json' or 'msgpack')", c.OutputFormat)
	}

	if c.CacheEnabled {
		if c.CachePath == "" {
			return fmt.Errorf("cache_path is required when cache_enabled is true")
		}
		if c.CacheMaxEntries <= 0 {
			return fmt.Errorf("cache_max_entries must be positive")
		}
	}
	return nil
}

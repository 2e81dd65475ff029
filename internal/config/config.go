package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-flow-query/internal/log"
)

// UnknownCallPolicy names how calls to functions without a body or library
// summary are treated by the data-flow pass.
type UnknownCallPolicy string

const (
	PolicyConservative UnknownCallPolicy = "conservative"
	PolicyPure         UnknownCallPolicy = "pure"
)

// Dir is the name of the per-project and per-user configuration directory.
const Dir = ".gfq"

// Config holds all configuration for go-flow-query
type Config struct {
	// Workers bounds the translation units analyzed at once. Zero means
	// one per CPU.
	Workers int `yaml:"workers" env:"GFQ_WORKERS"`

	// FunctionWorkers bounds the functions of one call-graph level analyzed
	// at once inside a unit.
	FunctionWorkers int `yaml:"function_workers" env:"GFQ_FUNCTION_WORKERS"`

	// Fixpoint limits
	MaxIterationsPerBlock int `yaml:"max_iterations_per_block" env:"GFQ_MAX_ITERATIONS_PER_BLOCK"`
	ValueSetLimit         int `yaml:"value_set_limit" env:"GFQ_VALUE_SET_LIMIT"`

	// InferUnresolved synthesizes declarations for calls nothing matches.
	InferUnresolved bool `yaml:"infer_unresolved" env:"GFQ_INFER_UNRESOLVED"`

	UnknownCallPolicy UnknownCallPolicy `yaml:"unknown_call_policy" env:"GFQ_UNKNOWN_CALL_POLICY"`

	// SummaryFiles lists YAML files with data-flow summaries of library
	// functions, loaded on top of the built-in libc summaries.
	SummaryFiles []string `yaml:"summary_files" env:"GFQ_SUMMARY_FILES"`

	// SummaryCache is the path of the persistent function summary cache.
	// Empty disables the cache.
	SummaryCache string `yaml:"summary_cache" env:"GFQ_SUMMARY_CACHE"`
	CacheEntries int    `yaml:"cache_entries" env:"GFQ_CACHE_ENTRIES"`

	// Include and Exclude are glob patterns over paths relative to the
	// scanned root.
	Include []string `yaml:"include" env:"GFQ_INCLUDE"`
	Exclude []string `yaml:"exclude" env:"GFQ_EXCLUDE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"GFQ_LOG_LEVEL"`
	JSONLogs bool   `yaml:"json_logs" env:"GFQ_JSON_LOGS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:               0,
		FunctionWorkers:       4,
		MaxIterationsPerBlock: 20,
		ValueSetLimit:         8,
		InferUnresolved:       true,
		UnknownCallPolicy:     PolicyConservative,
		SummaryCache:          filepath.Join(Dir, "summaries.msgpack"),
		CacheEntries:          50000,
		LogLevel:              "info",
		JSONLogs:              false,
	}
}

// globalConfigFilePath returns the global config file path (~/.gfq/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(Dir, "config.yaml")
	}
	return filepath.Join(home, Dir, "config.yaml")
}

// ProjectConfigPath returns the project-level config file path under root.
func ProjectConfigPath(root string) string {
	return filepath.Join(root, Dir, "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (<root>/.gfq/config.yaml)
// 3. Global config (~/.gfq/config.yaml)
// 4. Defaults
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), ProjectConfigPath(root)} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
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

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
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

// applyEnvOverrides applies environment variable overrides to the config.
// Malformed numbers and booleans are errors rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"GFQ_WORKERS", &cfg.Workers},
		{"GFQ_FUNCTION_WORKERS", &cfg.FunctionWorkers},
		{"GFQ_MAX_ITERATIONS_PER_BLOCK", &cfg.MaxIterationsPerBlock},
		{"GFQ_VALUE_SET_LIMIT", &cfg.ValueSetLimit},
		{"GFQ_CACHE_ENTRIES", &cfg.CacheEntries},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			i, err := parseInt(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = i
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"GFQ_INFER_UNRESOLVED", &cfg.InferUnresolved},
		{"GFQ_JSON_LOGS", &cfg.JSONLogs},
	}
	for _, e := range bools {
		if v := os.Getenv(e.key); v != "" {
			b, err := parseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = b
		}
	}

	if v := os.Getenv("GFQ_UNKNOWN_CALL_POLICY"); v != "" {
		cfg.UnknownCallPolicy = UnknownCallPolicy(v)
	}
	if v, ok := os.LookupEnv("GFQ_SUMMARY_CACHE"); ok {
		cfg.SummaryCache = v
	}
	if v := os.Getenv("GFQ_SUMMARY_FILES"); v != "" {
		cfg.SummaryFiles = splitList(v)
	}
	if v := os.Getenv("GFQ_INCLUDE"); v != "" {
		cfg.Include = splitList(v)
	}
	if v := os.Getenv("GFQ_EXCLUDE"); v != "" {
		cfg.Exclude = splitList(v)
	}
	if v := os.Getenv("GFQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.FunctionWorkers < 0 {
		return fmt.Errorf("function_workers must be non-negative")
	}
	if c.MaxIterationsPerBlock <= 0 {
		return fmt.Errorf("max_iterations_per_block must be positive")
	}
	if c.ValueSetLimit <= 0 {
		return fmt.Errorf("value_set_limit must be positive")
	}
	if c.CacheEntries < 0 {
		return fmt.Errorf("cache_entries must be non-negative")
	}

	switch c.UnknownCallPolicy {
	case PolicyConservative, PolicyPure:
	default:
		return fmt.Errorf("invalid unknown_call_policy: %s (must be 'conservative' or 'pure')", c.UnknownCallPolicy)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	return nil
}

// Level returns the configured log level.
func (c *Config) Level() log.Level {
	l, _ := log.ParseLevel(c.LogLevel)
	return l
}

// splitList splits a comma or path-list separated environment value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == os.PathListSeparator }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseInt attempts to parse a string as int
func parseInt(s string) (int, error) {
	var i int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &i); err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return i, nil
}

// parseBool accepts the usual spellings of a boolean flag.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

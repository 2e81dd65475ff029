package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/l3aro/go-flow-query/internal/log"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Workers", cfg.Workers, 0},
		{"FunctionWorkers", cfg.FunctionWorkers, 4},
		{"MaxIterationsPerBlock", cfg.MaxIterationsPerBlock, 20},
		{"ValueSetLimit", cfg.ValueSetLimit, 8},
		{"InferUnresolved", cfg.InferUnresolved, true},
		{"UnknownCallPolicy", cfg.UnknownCallPolicy, PolicyConservative},
		{"SummaryCache", cfg.SummaryCache, filepath.Join(".gfq", "summaries.msgpack")},
		{"CacheEntries", cfg.CacheEntries, 50000},
		{"LogLevel", cfg.LogLevel, "info"},
		{"JSONLogs", cfg.JSONLogs, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:   "pure policy",
			mutate: func(c *Config) { c.UnknownCallPolicy = PolicyPure },
		},
		{
			name:        "negative workers",
			mutate:      func(c *Config) { c.Workers = -1 },
			wantErr:     true,
			errContains: "workers must be non-negative",
		},
		{
			name:        "zero iterations",
			mutate:      func(c *Config) { c.MaxIterationsPerBlock = 0 },
			wantErr:     true,
			errContains: "max_iterations_per_block must be positive",
		},
		{
			name:        "zero value set limit",
			mutate:      func(c *Config) { c.ValueSetLimit = 0 },
			wantErr:     true,
			errContains: "value_set_limit must be positive",
		},
		{
			name:        "negative cache entries",
			mutate:      func(c *Config) { c.CacheEntries = -5 },
			wantErr:     true,
			errContains: "cache_entries must be non-negative",
		},
		{
			name:        "unknown policy",
			mutate:      func(c *Config) { c.UnknownCallPolicy = "optimistic" },
			wantErr:     true,
			errContains: "invalid unknown_call_policy",
		},
		{
			name:        "unknown log level",
			mutate:      func(c *Config) { c.LogLevel = "loud" },
			wantErr:     true,
			errContains: "invalid log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		checkCfg    func(*testing.T, *Config)
		wantErr     bool
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
workers: 3
max_iterations_per_block: 40
value_set_limit: 4
infer_unresolved: false
unknown_call_policy: pure
summary_files:
  - libs/openssl.yaml
summary_cache: ""
include:
  - "src/**"
exclude:
  - "**/third_party/**"
log_level: debug
json_logs: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 3 {
					t.Errorf("Workers = %v, want 3", cfg.Workers)
				}
				if cfg.MaxIterationsPerBlock != 40 {
					t.Errorf("MaxIterationsPerBlock = %v, want 40", cfg.MaxIterationsPerBlock)
				}
				if cfg.ValueSetLimit != 4 {
					t.Errorf("ValueSetLimit = %v, want 4", cfg.ValueSetLimit)
				}
				if cfg.InferUnresolved {
					t.Errorf("InferUnresolved = true, want false")
				}
				if cfg.UnknownCallPolicy != PolicyPure {
					t.Errorf("UnknownCallPolicy = %v, want pure", cfg.UnknownCallPolicy)
				}
				if !reflect.DeepEqual(cfg.SummaryFiles, []string{"libs/openssl.yaml"}) {
					t.Errorf("SummaryFiles = %v", cfg.SummaryFiles)
				}
				if cfg.SummaryCache != "" {
					t.Errorf("SummaryCache = %q, want empty", cfg.SummaryCache)
				}
				if !reflect.DeepEqual(cfg.Exclude, []string{"**/third_party/**"}) {
					t.Errorf("Exclude = %v", cfg.Exclude)
				}
				if cfg.Level() != log.DebugLevel {
					t.Errorf("Level() = %v, want DEBUG", cfg.Level())
				}
				if !cfg.JSONLogs {
					t.Errorf("JSONLogs = false, want true")
				}
			},
		},
		{
			name:       "partial config keeps defaults",
			configYAML: "workers: 2\n",
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.ValueSetLimit != 8 {
					t.Errorf("ValueSetLimit = %v, want default 8", cfg.ValueSetLimit)
				}
				if !cfg.InferUnresolved {
					t.Errorf("InferUnresolved = false, want default true")
				}
			},
		},
		{
			name:       "env overrides file",
			configYAML: "workers: 2\nunknown_call_policy: conservative\n",
			envVars: map[string]string{
				"GFQ_WORKERS":             "6",
				"GFQ_UNKNOWN_CALL_POLICY": "pure",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 6 {
					t.Errorf("Workers = %v, want 6", cfg.Workers)
				}
				if cfg.UnknownCallPolicy != PolicyPure {
					t.Errorf("UnknownCallPolicy = %v, want pure", cfg.UnknownCallPolicy)
				}
			},
		},
		{
			name:        "invalid yaml",
			configYAML:  "workers: [1, 2\n",
			wantErr:     true,
			errContains: "failed to parse config file",
		},
		{
			name:        "invalid value",
			configYAML:  "unknown_call_policy: maybe\n",
			wantErr:     true,
			errContains: "invalid unknown_call_policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := LoadFromFile(path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error containing %q, got nil", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			tt.checkCfg(t, cfg)
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("LoadFromFile(missing) error = %v", err)
	}
}

func TestLoadProjectConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() without files failed: %v", err)
	}
	if cfg.Workers != 0 {
		t.Errorf("Workers = %v, want default 0", cfg.Workers)
	}

	project := DefaultConfig()
	project.Workers = 5
	project.Exclude = []string{"build/**"}
	if err := project.Save(ProjectConfigPath(root)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	cfg, err = Load(root)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %v, want 5", cfg.Workers)
	}
	if !reflect.DeepEqual(cfg.Exclude, []string{"build/**"}) {
		t.Errorf("Exclude = %v, want [build/**]", cfg.Exclude)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
		wantErr bool
	}{
		{
			name:    "ints",
			envVars: map[string]string{"GFQ_VALUE_SET_LIMIT": "12", "GFQ_MAX_ITERATIONS_PER_BLOCK": "7"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.ValueSetLimit != 12 || cfg.MaxIterationsPerBlock != 7 {
					t.Errorf("got limit %d, iterations %d", cfg.ValueSetLimit, cfg.MaxIterationsPerBlock)
				}
			},
		},
		{
			name:    "bools",
			envVars: map[string]string{"GFQ_INFER_UNRESOLVED": "no", "GFQ_JSON_LOGS": "1"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.InferUnresolved || !cfg.JSONLogs {
					t.Errorf("got infer %v, json %v", cfg.InferUnresolved, cfg.JSONLogs)
				}
			},
		},
		{
			name:    "lists",
			envVars: map[string]string{"GFQ_EXCLUDE": "vendor/**, build/**", "GFQ_SUMMARY_FILES": "a.yaml"},
			check: func(t *testing.T, cfg *Config) {
				if !reflect.DeepEqual(cfg.Exclude, []string{"vendor/**", "build/**"}) {
					t.Errorf("Exclude = %v", cfg.Exclude)
				}
				if !reflect.DeepEqual(cfg.SummaryFiles, []string{"a.yaml"}) {
					t.Errorf("SummaryFiles = %v", cfg.SummaryFiles)
				}
			},
		},
		{
			name:    "empty summary cache disables it",
			envVars: map[string]string{"GFQ_SUMMARY_CACHE": ""},
			check: func(t *testing.T, cfg *Config) {
				if cfg.SummaryCache != "" {
					t.Errorf("SummaryCache = %q, want empty", cfg.SummaryCache)
				}
			},
		},
		{
			name:    "malformed int",
			envVars: map[string]string{"GFQ_WORKERS": "many"},
			wantErr: true,
		},
		{
			name:    "malformed bool",
			envVars: map[string]string{"GFQ_JSON_LOGS": "sometimes"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			err := applyEnvOverrides(cfg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestConfigSaveCreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dirs", "config.yaml")

	cfg := DefaultConfig()
	cfg.UnknownCallPolicy = PolicyPure
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() failed to create parent dirs: %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if loaded.UnknownCallPolicy != PolicyPure {
		t.Errorf("UnknownCallPolicy mismatch: got %s, want pure", loaded.UnknownCallPolicy)
	}
}

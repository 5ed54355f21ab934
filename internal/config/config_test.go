package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"StepLimit", cfg.StepLimit, DefaultStepLimit},
		{"DedupeEdges", cfg.DedupeEdges, false},
		{"OutputFormat", cfg.OutputFormat, OutputFlowchart},
		{"CacheEnabled", cfg.CacheEnabled, true},
		{"CacheMaxEntries", cfg.CacheMaxEntries, 256},
		{"Verbose", cfg.Verbose, false},
		{"LogJSON", cfg.LogJSON, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if !strings.HasSuffix(cfg.CachePath, filepath.Join(".flowtrace", "cache.msgpack")) {
		t.Errorf("CachePath = %s, want it under .flowtrace", cfg.CachePath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() does not validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:        "zero step limit",
			mutate:      func(c *Config) { c.StepLimit = 0 },
			errContains: "step_limit",
		},
		{
			name:        "unknown output format",
			mutate:      func(c *Config) { c.OutputFormat = "svg" },
			errContains: "invalid output_format",
		},
		{
			name:        "cache without path",
			mutate:      func(c *Config) { c.CachePath = "" },
			errContains: "cache_path",
		},
		{
			name:        "cache without capacity",
			mutate:      func(c *Config) { c.CacheMaxEntries = 0 },
			errContains: "cache_max_entries",
		},
		{
			name: "disabled cache ignores its settings",
			mutate: func(c *Config) {
				c.CacheEnabled = false
				c.CachePath = ""
				c.CacheMaxEntries = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.errContains)
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
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
step_limit: 500
dedupe_edges: true
output_format: json
cache_enabled: false
verbose: true
log_json: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.StepLimit != 500 {
					t.Errorf("StepLimit = %v, want 500", cfg.StepLimit)
				}
				if !cfg.DedupeEdges {
					t.Errorf("DedupeEdges = false, want true")
				}
				if cfg.OutputFormat != OutputJSON {
					t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, OutputJSON)
				}
				if cfg.CacheEnabled {
					t.Errorf("CacheEnabled = true, want false")
				}
				if !cfg.Verbose || !cfg.LogJSON {
					t.Errorf("Verbose/LogJSON = %v/%v, want true/true", cfg.Verbose, cfg.LogJSON)
				}
			},
		},
		{
			name:       "partial config keeps defaults",
			configYAML: "dedupe_edges: true\n",
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.StepLimit != DefaultStepLimit {
					t.Errorf("StepLimit = %v, want %v", cfg.StepLimit, DefaultStepLimit)
				}
				if cfg.OutputFormat != OutputFlowchart {
					t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, OutputFlowchart)
				}
			},
		},
		{
			name:       "env overrides file",
			configYAML: "step_limit: 500\noutput_format: json\n",
			envVars: map[string]string{
				"FLOWTRACE_STEP_LIMIT":    "42",
				"FLOWTRACE_OUTPUT_FORMAT": "MSGPACK",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.StepLimit != 42 {
					t.Errorf("StepLimit = %v, want 42", cfg.StepLimit)
				}
				if cfg.OutputFormat != OutputMsgpack {
					t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, OutputMsgpack)
				}
			},
		},
		{
			name:        "invalid yaml",
			configYAML:  "step_limit: [1\n",
			errContains: "failed to parse config file",
		},
		{
			name:        "invalid values",
			configYAML:  "step_limit: -1\n",
			errContains: "step_limit must be positive",
		},
		{
			name:        "unreadable env value",
			configYAML:  "verbose: false\n",
			envVars:     map[string]string{"FLOWTRACE_CACHE_MAX_ENTRIES": "lots"},
			errContains: "FLOWTRACE_CACHE_MAX_ENTRIES",
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
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("LoadFromFile() error = %v, want it to contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromFile() unexpected error: %v", err)
			}
			tt.checkCfg(t, cfg)
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("LoadFromFile() error = %v, want a read error", err)
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(project); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	global := "step_limit: 10\ndedupe_edges: true\n"
	if err := os.MkdirAll(filepath.Join(home, ".flowtrace"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".flowtrace", "config.yaml"), []byte(global), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(".flowtrace", 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ProjectConfigFilePath(), []byte("step_limit: 20\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StepLimit != 20 {
		t.Errorf("StepLimit = %d, want 20 from the project file", cfg.StepLimit)
	}
	if !cfg.DedupeEdges {
		t.Errorf("DedupeEdges = false, want true from the global file")
	}
}

func TestLoad_NoFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("FLOWTRACE_VERBOSE", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.Verbose {
		t.Errorf("Verbose = false, want true from FLOWTRACE_VERBOSE")
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"true": true, "1": true, "YES": true, "on": true, "false": false, "0": false, "nope": false} {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "dirs", "config.yaml")

	cfg := DefaultConfig()
	cfg.StepLimit = 777
	cfg.OutputFormat = OutputMsgpack
	cfg.CachePath = "/tmp/flowtrace-cache.msgpack"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", *loaded, *cfg)
	}
}

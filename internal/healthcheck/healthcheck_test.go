package healthcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-flow-query/internal/config"
	"github.com/l3aro/go-flow-query/pkg/cache"
	"github.com/l3aro/go-flow-query/pkg/dfg"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SummaryCache = filepath.Join(t.TempDir(), "summaries.msgpack")

	result, err := Check(cfg, "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Failed() {
		t.Errorf("Check() reported a failure: %+v", result.Components())
	}
	if len(result.Grammars) != 2 {
		t.Fatalf("Grammars = %d, want 2", len(result.Grammars))
	}
	for _, g := range result.Grammars {
		if g.Status != StatusReady {
			t.Errorf("%s status = %q (%s)", g.Name, g.Status, g.Error)
		}
	}
	if result.Library.Status != StatusReady {
		t.Errorf("Library.Status = %q, want ready", result.Library.Status)
	}
	if result.Cache.Status != StatusReady {
		t.Errorf("Cache.Status = %q, want ready", result.Cache.Status)
	}
	if len(result.Components()) != 4 {
		t.Errorf("Components() = %d, want 4", len(result.Components()))
	}
}

func TestCheckLibraryErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("functions: [{name: f, returns: bogus}]"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		files []string
	}{
		{"missing file", []string{filepath.Join(dir, "missing.yaml")}},
		{"malformed file", []string{bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.SummaryCache = ""
			cfg.SummaryFiles = tt.files

			result, err := Check(cfg, "")
			if err != nil {
				t.Fatalf("Check() failed: %v", err)
			}
			if result.Library.Status != StatusError {
				t.Errorf("Library.Status = %q, want error", result.Library.Status)
			}
			if !result.Failed() {
				t.Error("Failed() = false, want true")
			}
		})
	}
}

func TestCheckCache(t *testing.T) {
	dir := t.TempDir()

	populated := filepath.Join(dir, "ok.msgpack")
	sc, err := cache.OpenSummaryCache(populated, cache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Put("f|abc", &dfg.PortableSummary{Function: "f"}); err != nil {
		t.Fatal(err)
	}
	if err := sc.Flush(); err != nil {
		t.Fatal(err)
	}

	corrupt := filepath.Join(dir, "corrupt.msgpack")
	if err := os.WriteFile(corrupt, []byte("not msgpack"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		status string
	}{
		{"disabled", "", StatusDisabled},
		{"not created", filepath.Join(dir, "new.msgpack"), StatusReady},
		{"populated", populated, StatusReady},
		{"corrupt", corrupt, StatusWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkCache(tt.path, 100)
			if got.Status != tt.status {
				t.Errorf("checkCache(%q).Status = %q, want %q (%s)", tt.path, got.Status, tt.status, got.Error)
			}
		})
	}

	if got := checkCache(populated, 100); got.Detail != populated+" (1 summaries)" {
		t.Errorf("Detail = %q", got.Detail)
	}
}

func TestScopeFromPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	globalPath := ""
	if home != "" {
		globalPath = filepath.Join(home, config.Dir, "config.yaml")
	}

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"empty path", "", ""},
		{"global path", globalPath, "global"},
		{"project path", "/project/.gfq/config.yaml", "project"},
		{"relative project path", ".gfq/config.yaml", "project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.path == "" && tt.name != "empty path" {
				t.Skip("no home directory")
			}
			result := scopeFromPath(tt.path)
			if result != tt.expected {
				t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

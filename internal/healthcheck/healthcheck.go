package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/l3aro/go-flow-query/internal/config"
	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/cache"
	"github.com/l3aro/go-flow-query/pkg/dfg"
	"github.com/l3aro/go-flow-query/pkg/frontend"
)

// Status values of a component.
const (
	StatusReady    = "ready"
	StatusDisabled = "disabled"
	StatusWarning  = "warning"
	StatusError    = "error"
)

// ComponentStatus represents the health of one part of the analysis setup.
type ComponentStatus struct {
	Name   string
	Status string // "ready", "disabled", "warning", "error"
	Detail string
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	ConfigPath  string
	ConfigScope string // "global", "project" or "" for defaults
	Grammars    []ComponentStatus
	Library     ComponentStatus
	Cache       ComponentStatus
}

// Failed reports whether any component is in error.
func (r *HealthCheckResult) Failed() bool {
	for _, c := range r.Components() {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// Components returns every checked component in display order.
func (r *HealthCheckResult) Components() []ComponentStatus {
	out := append([]ComponentStatus(nil), r.Grammars...)
	return append(out, r.Library, r.Cache)
}

// Check performs a health check against the given config. configPath is the
// config file in effect, empty when only defaults apply.
func Check(cfg *config.Config, configPath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		ConfigPath:  configPath,
		ConfigScope: scopeFromPath(configPath),
	}
	result.Grammars = []ComponentStatus{
		checkGrammar(frontend.C, "int probe(int x) { return x + 1; }"),
		checkGrammar(frontend.CPP, "namespace n { struct S { virtual int f() const; }; }"),
	}
	result.Library = checkLibrary(cfg.SummaryFiles)
	result.Cache = checkCache(cfg.SummaryCache, cfg.CacheEntries)
	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, config.Dir)
		if strings.HasPrefix(path, globalDir+string(filepath.Separator)) {
			return "global"
		}
	}

	return "project"
}

// checkGrammar parses a small snippet to make sure the grammar is linked in
// and lowers without errors.
func checkGrammar(lang frontend.Language, src string) ComponentStatus {
	status := ComponentStatus{Name: string(lang) + " grammar"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	tu, err := frontend.New(log.Discard()).Parse(ctx, "probe", lang, []byte(src))
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	if len(tu.Decls) == 0 {
		status.Status = StatusError
		status.Error = "probe produced no declarations"
		return status
	}
	status.Status = StatusReady
	return status
}

// checkLibrary loads the built-in summaries plus the configured files.
func checkLibrary(files []string) ComponentStatus {
	status := ComponentStatus{Name: "library summaries"}

	lib, err := dfg.LoadLibrary(files...)
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	status.Detail = fmt.Sprintf("%d functions from %d extra files", lib.Len(), len(files))
	return status
}

// checkCache opens the summary cache read-only. A corrupt file is a warning
// since the analysis rebuilds it.
func checkCache(path string, entries int) ComponentStatus {
	status := ComponentStatus{Name: "summary cache"}

	if path == "" {
		status.Status = StatusDisabled
		return status
	}

	c, err := cache.OpenSummaryCache(path, cache.Options{MaxEntries: entries})
	if err != nil {
		status.Status = StatusWarning
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	if _, err := os.Stat(path); os.IsNotExist(err) {
		status.Detail = fmt.Sprintf("%s (not created yet)", path)
	} else {
		status.Detail = fmt.Sprintf("%s (%d summaries)", path, c.Len())
	}
	return status
}

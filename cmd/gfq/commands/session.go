package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flow-query/internal/config"
	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/internal/scanner"
	"github.com/l3aro/go-flow-query/pkg/analysis"
	"github.com/l3aro/go-flow-query/pkg/cache"
	"github.com/l3aro/go-flow-query/pkg/dfg"
	"github.com/l3aro/go-flow-query/pkg/frontend"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

// session is everything one command needs to run an analysis over a path.
type session struct {
	root     string
	cfg      *config.Config
	logger   log.Logger
	files    []scanner.FileInfo
	cache    *cache.SummaryCache
	analyzer *analysis.Analyzer
}

// openSession loads configuration for the project containing path, applies
// command-line overrides and scans path for translation units.
func openSession(cmd *cobra.Command, path string) (*session, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	root := absPath
	if !info.IsDir() {
		root = findProjectRoot(filepath.Dir(absPath))
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	logger := log.New(log.LoggerConfig{
		Level:      cfg.Level(),
		JSONOutput: cfg.JSONLogs,
		Output:     os.Stderr,
	})
	log.SetDefault(logger)

	opts := scanner.DefaultOptions()
	opts.Include = cfg.Include
	opts.Exclude = cfg.Exclude
	files, err := scanner.New(opts).Scan(absPath)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no C or C++ sources found in %s", path)
	}

	lib, err := dfg.LoadLibrary(cfg.SummaryFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading library summaries: %w", err)
	}

	s := &session{root: root, cfg: cfg, logger: logger, files: files}

	acfg := analysis.Config{
		Workers:               cfg.Workers,
		FunctionWorkers:       cfg.FunctionWorkers,
		MaxIterationsPerBlock: cfg.MaxIterationsPerBlock,
		ValueSetLimit:         cfg.ValueSetLimit,
		DisableInference:      !cfg.InferUnresolved,
		UnknownCallPolicy:     dfg.UnknownCallPolicy(cfg.UnknownCallPolicy),
		Library:               lib,
	}
	if cfg.SummaryCache != "" {
		cachePath := cfg.SummaryCache
		if !filepath.IsAbs(cachePath) {
			cachePath = filepath.Join(root, cachePath)
		}
		c, err := cache.OpenSummaryCache(cachePath, cache.Options{MaxEntries: cfg.CacheEntries})
		if err != nil {
			logger.Warn("summary cache unreadable, starting empty", "path", cachePath, "error", err)
		}
		s.cache = c
		acfg.Cache = c
	}

	s.analyzer = analysis.New(acfg, logger, analysis.WithParser(frontend.New(logger)))
	return s, nil
}

// run analyzes the scanned files. It stops early on an interrupt; units
// finished by then are still reported.
func (s *session) run() (*analysis.Result, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s.logger.Debug("analyzing", "root", s.root, "files", len(s.files))
	result, err := s.analyzer.AnalyzeFiles(ctx, scanner.Paths(s.files))
	if result == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("analysis interrupted", "error", err)
	}
	s.close()
	return result, nil
}

// analyzeFile runs a session over the project holding filePath and returns
// the result for that one file.
func analyzeFile(cmd *cobra.Command, filePath string) (*session, *analysis.UnitResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("path is a directory, expected a file: %s", filePath)
	}

	s, err := openSession(cmd, filePath)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.run()
	if err != nil {
		return nil, nil, fmt.Errorf("analyzing: %w", err)
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving path: %w", err)
	}
	unit := result.Unit(absPath)
	if unit == nil {
		return nil, nil, fmt.Errorf("no analysis result for %s", filePath)
	}
	if unit.Err != nil {
		return nil, nil, fmt.Errorf("analyzing %s: %w", filePath, unit.Err)
	}
	return s, unit, nil
}

// matchFunctions returns the definitions in unit named name.
func matchFunctions(unit *analysis.UnitResult, name string) ([]*scope.Declaration, error) {
	var matched []*scope.Declaration
	for _, fn := range unit.Table.Functions() {
		if declMatches(fn, name) {
			matched = append(matched, fn)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("function %q not found in %s", name, unit.File)
	}
	return matched, nil
}

// close persists the summary cache.
func (s *session) close() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Flush(); err != nil {
		s.logger.Warn("failed to write summary cache", "path", s.cache.Path(), "error", err)
		return
	}
	st := s.cache.Stats()
	s.logger.Debug("summary cache", "entries", st.Entries, "hits", st.Hits, "misses", st.Misses)
}

// applyFlagOverrides applies persistent flags that were set explicitly.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("json-logs") {
		cfg.JSONLogs, _ = flags.GetBool("json-logs")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// findProjectRoot walks up from dir to the nearest directory holding a
// config directory or a VCS root. Without either, dir itself is the root.
func findProjectRoot(dir string) string {
	for d := dir; ; {
		for _, marker := range []string{config.Dir, ".git"} {
			if _, err := os.Stat(filepath.Join(d, marker)); err == nil {
				return d
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return dir
		}
		d = parent
	}
}

// relPath renders file relative to the session root when possible.
func (s *session) relPath(file string) string {
	if rel, err := filepath.Rel(s.root, file); err == nil && !filepath.IsAbs(rel) && rel != "" && rel[0] != '.' {
		return filepath.ToSlash(rel)
	}
	return file
}

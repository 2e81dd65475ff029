// Package analysis runs the three passes over a set of translation units.
// Units are analyzed in parallel and in isolation: each gets its own scope
// tree, type resolver and data-flow state, and only the inference manager is
// shared. Once every unit is done their tables and call graphs are merged.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/internal/metrics"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/dfg"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/inference"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/typeres"
)

// Diagnostic is a recoverable problem found in one unit.
type Diagnostic = diag.Diagnostic

// Unit is one translation unit to analyze.
type Unit struct {
	File string
	TU   *ast.TranslationUnit
}

// Parser turns a source file into a translation unit.
type Parser interface {
	ParseFile(ctx context.Context, path string) (*ast.TranslationUnit, error)
}

// Config tunes a run. Zero values select the defaults.
type Config struct {
	// Workers bounds the units analyzed concurrently.
	Workers int
	// FunctionWorkers bounds the functions of one call-graph level analyzed
	// concurrently inside a unit.
	FunctionWorkers       int
	MaxIterationsPerBlock int
	ValueSetLimit         int
	// DisableInference stops the call resolver from synthesizing
	// declarations for unresolved calls.
	DisableInference bool
	UnknownCallPolicy dfg.UnknownCallPolicy
	Library           *dfg.Library
	Cache             dfg.SummaryCache
}

// UnitResult is the outcome of one unit. When Err is set the passes that
// completed before the failure are still filled in.
type UnitResult struct {
	File        string
	Table       *scope.Table
	Types       *typeres.Resolver
	Resolution  *callgraph.Resolution
	Dataflow    *dfg.Result
	Diagnostics []Diagnostic
	Err         error
	Duration    time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID string
	// Units holds one result per input, in input order.
	Units []*UnitResult
	// Table is the union of the declaration tables of all units that got
	// past scope construction. The unit tables share their scopes with it.
	Table *scope.Table
	// Graph is the union of the unit call graphs, with calls to prototypes
	// linked to definitions found in other units.
	Graph    *callgraph.Graph
	Index    *callgraph.ProjectIndex
	Inferred []*scope.Declaration
	Linked   int
}

// Diagnostics returns the diagnostics of every unit, in unit order.
func (r *Result) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, u := range r.Units {
		out = append(out, u.Diagnostics...)
	}
	return out
}

// Failed returns the units whose analysis did not complete.
func (r *Result) Failed() []*UnitResult {
	var out []*UnitResult
	for _, u := range r.Units {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// Unit returns the result for file, or nil.
func (r *Result) Unit(file string) *UnitResult {
	for _, u := range r.Units {
		if u.File == file {
			return u
		}
	}
	return nil
}

// Analyzer runs analyses. It holds no per-run state and may be reused.
type Analyzer struct {
	cfg    Config
	logger log.Logger
	parser Parser
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithParser sets the parser used by AnalyzeFiles.
func WithParser(p Parser) Option {
	return func(a *Analyzer) { a.parser = p }
}

// New creates an analyzer.
func New(cfg Config, logger log.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.FunctionWorkers <= 0 {
		cfg.FunctionWorkers = 4
	}
	if cfg.UnknownCallPolicy == "" {
		cfg.UnknownCallPolicy = dfg.PolicyConservative
	}
	a := &Analyzer{cfg: cfg, logger: logger}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AnalyzeFiles parses and analyzes the files at paths. A file that fails to
// parse yields a failed unit; the others are analyzed normally.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string) (*Result, error) {
	if a.parser == nil {
		return nil, fmt.Errorf("analyze files: no parser configured")
	}
	units := make([]Unit, len(paths))
	for i, p := range paths {
		units[i] = Unit{File: p}
	}
	return a.Analyze(ctx, units)
}

// Analyze runs the three passes over units. A unit that fails or is
// cancelled records its error in its UnitResult and does not affect the
// other units. The returned error is the context error, if any.
func (a *Analyzer) Analyze(ctx context.Context, units []Unit) (*Result, error) {
	runID := uuid.NewString()
	logger := a.logger.With("run", runID)
	start := time.Now()

	infer := inference.NewManager(logger)
	results := make([]*UnitResult, len(units))

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, u := range units {
		g.Go(func() error {
			results[i] = a.runUnit(ctx, u, infer, logger)
			return nil
		})
	}
	_ = g.Wait()

	out := &Result{
		RunID:    runID,
		Units:    results,
		Inferred: infer.All(),
	}
	a.merge(out)

	failed := len(out.Failed())
	logger.Info("analysis done",
		"units", len(units),
		"failed", failed,
		"inferred", len(out.Inferred),
		"linked", out.Linked,
		"duration", time.Since(start).Round(time.Millisecond).String())
	return out, ctx.Err()
}

// runUnit runs the passes of one unit. A panic inside a pass is turned into
// the unit's error.
func (a *Analyzer) runUnit(ctx context.Context, u Unit, infer *inference.Manager, logger log.Logger) (ur *UnitResult) {
	start := time.Now()
	ur = &UnitResult{File: u.File}
	diags := diag.NewCollector()
	logger = logger.With("file", u.File)

	defer func() {
		if r := recover(); r != nil {
			ur.Err = fmt.Errorf("analyze %s: panic: %v", u.File, r)
			logger.Error("unit panicked", "error", r, "stack", string(debug.Stack()))
		}
		if ur.Err != nil {
			diags.Report(diag.UnitFailure, ast.Span{File: u.File}, "%v", ur.Err)
		}
		ur.Diagnostics = diags.All()
		ur.Duration = time.Since(start)
		metrics.UnitsAnalyzed.WithLabelValues(outcome(ur.Err)).Inc()
		for _, d := range ur.Diagnostics {
			logger.Warn("diagnostic", "kind", string(d.Kind), "message", d.Message, "at", d.Span.String())
		}
	}()

	if err := ctx.Err(); err != nil {
		ur.Err = err
		return ur
	}

	tu := u.TU
	if tu == nil {
		if a.parser == nil {
			ur.Err = fmt.Errorf("analyze %s: no translation unit", u.File)
			return ur
		}
		parsed, err := a.parser.ParseFile(ctx, u.File)
		if err != nil {
			ur.Err = fmt.Errorf("parse %s: %w", u.File, err)
			return ur
		}
		tu = parsed
	}
	if tu.File == "" {
		tu.File = u.File
	}

	passStart := time.Now()
	ur.Table = scope.Build(tu)
	metrics.PassDuration.WithLabelValues("scope").Observe(time.Since(passStart).Seconds())
	logger.Debug("scope tree built", "declarations", len(ur.Table.Declarations()))

	if err := ctx.Err(); err != nil {
		ur.Err = err
		return ur
	}

	ur.Types = typeres.New(ur.Table, infer, diags, logger)
	var opts []callgraph.Option
	if a.cfg.DisableInference {
		opts = append(opts, callgraph.WithInference(false))
	}
	passStart = time.Now()
	res, err := callgraph.NewResolver(ur.Types, infer, diags, logger, opts...).Resolve(ctx)
	metrics.PassDuration.WithLabelValues("resolve").Observe(time.Since(passStart).Seconds())
	ur.Resolution = res
	if err != nil {
		ur.Err = fmt.Errorf("resolve %s: %w", u.File, err)
		return ur
	}

	engine := dfg.NewEngine(ur.Types, res, diags, logger, a.engineOptions()...)
	ur.Dataflow, err = engine.Run(ctx)
	if err != nil {
		ur.Err = fmt.Errorf("dataflow %s: %w", u.File, err)
	}
	return ur
}

func (a *Analyzer) engineOptions() []dfg.Option {
	opts := []dfg.Option{
		dfg.WithWorkers(a.cfg.FunctionWorkers),
		dfg.WithMaxIterationsPerBlock(a.cfg.MaxIterationsPerBlock),
		dfg.WithValueSetLimit(a.cfg.ValueSetLimit),
		dfg.WithUnknownCallPolicy(a.cfg.UnknownCallPolicy),
		dfg.WithLibrary(a.cfg.Library),
	}
	if a.cfg.Cache != nil {
		opts = append(opts, dfg.WithCache(a.cfg.Cache))
	}
	return opts
}

// merge unions the unit tables and call graphs into the run result and
// links calls across units.
func (a *Analyzer) merge(out *Result) {
	out.Table = scope.NewTable("")
	out.Graph = callgraph.NewGraph()
	out.Index = callgraph.NewProjectIndex()

	for _, u := range out.Units {
		if u.Table != nil {
			out.Index.AddTable(u.Table)
		}
	}
	for _, u := range out.Units {
		if u.Table != nil {
			out.Table.Merge(u.Table)
		}
		if u.Resolution != nil {
			out.Graph.Merge(u.Resolution.Graph)
		}
	}
	out.Linked = out.Index.Link(out.Graph)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isContextErr(err):
		return "cancelled"
	default:
		return "failed"
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

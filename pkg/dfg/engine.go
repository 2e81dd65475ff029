// Package dfg implements pass 3: a flow-sensitive, field-sensitive points-to
// and value analysis per function, joined by set union over the CFG and
// composed across calls through memoized function summaries.
package dfg

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/internal/metrics"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/typeres"
)

// UnknownCallPolicy decides what a call to a function without body or
// library summary does to its arguments.
type UnknownCallPolicy string

const (
	// PolicyConservative assumes the callee may overwrite every pointee of
	// its pointer arguments with external data.
	PolicyConservative UnknownCallPolicy = "conservative"
	// PolicyPure assumes the callee has no memory effects.
	PolicyPure UnknownCallPolicy = "pure"
)

// DefaultMaxIterationsPerBlock bounds block visits per function at this
// multiple of the CFG block count.
const DefaultMaxIterationsPerBlock = 20

// SummaryCache persists summaries across runs. Keys combine the function's
// qualified signature with a hash of its body.
type SummaryCache interface {
	Get(key string) (*PortableSummary, error)
	Put(key string, s *PortableSummary) error
}

// PortableSummary is the part of a summary that outlives one run: the slot
// effects, which do not mention locations.
type PortableSummary struct {
	Function        string        `msgpack:"function"`
	Receiver        *ParamEffect  `msgpack:"receiver,omitempty"`
	Params          []ParamEffect `msgpack:"params"`
	ReturnsExternal bool          `msgpack:"returns_external"`
	Conservative    bool          `msgpack:"conservative"`
	Approximate     bool          `msgpack:"approximate"`
}

// Engine runs the data-flow pass over one resolved unit.
type Engine struct {
	tr     *typeres.Resolver
	table  *scope.Table
	res    *callgraph.Resolution
	diags  *diag.Collector
	logger log.Logger

	locs      *Locations
	summaries *SummaryStore
	lib       *Library
	cache     SummaryCache

	maxIterPerBlock int
	valueLimit      int
	policy          UnknownCallPolicy
	workers         int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterationsPerBlock sets the fixpoint cap multiplier.
func WithMaxIterationsPerBlock(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterPerBlock = n
		}
	}
}

// WithValueSetLimit sets the size at which value sets become unknown.
func WithValueSetLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.valueLimit = n
		}
	}
}

// WithUnknownCallPolicy sets the treatment of calls to unknown functions.
func WithUnknownCallPolicy(p UnknownCallPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLibrary replaces the embedded library summaries.
func WithLibrary(lib *Library) Option {
	return func(e *Engine) {
		if lib != nil {
			e.lib = lib
		}
	}
}

// WithWorkers bounds the functions analyzed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCache enables the persistent summary cache.
func WithCache(c SummaryCache) Option {
	return func(e *Engine) { e.cache = c }
}

// NewEngine creates the data-flow pass for a unit resolved by pass 2.
func NewEngine(tr *typeres.Resolver, res *callgraph.Resolution, diags *diag.Collector, logger log.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	if diags == nil {
		diags = diag.NewCollector()
	}
	e := &Engine{
		tr:              tr,
		table:           tr.Table(),
		res:             res,
		diags:           diags,
		logger:          logger,
		locs:            NewLocations(),
		summaries:       NewSummaryStore(),
		lib:             DefaultLibrary(),
		maxIterPerBlock: DefaultMaxIterationsPerBlock,
		valueLimit:      DefaultValueSetLimit,
		policy:          PolicyConservative,
		workers:         4,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result is the output of the data-flow pass for one unit.
type Result struct {
	Functions map[*scope.Declaration]*FunctionResult
	Summaries *SummaryStore
	Locations *Locations
	// Order lists the analyzed functions in declaration order.
	Order []*scope.Declaration
}

// Function returns the result for fn, or nil.
func (r *Result) Function(fn *scope.Declaration) *FunctionResult {
	return r.Functions[fn]
}

// AliasSetOf returns the alias set computed for e in whichever function
// contains it.
func (r *Result) AliasSetOf(e ast.Expr) (AliasSet, bool) {
	for _, fn := range r.Order {
		if s, ok := r.Functions[fn].Exprs[e]; ok {
			return s, true
		}
	}
	return AliasSet{}, false
}

// ValuesOf returns the value set computed for e.
func (r *Result) ValuesOf(e ast.Expr) (ValueSet, bool) {
	for _, fn := range r.Order {
		if v, ok := r.Functions[fn].Values[e]; ok {
			return v, true
		}
	}
	return ValueSet{}, false
}

// IndirectTargets returns the functions an indirect call may reach and
// whether the callee may also be external code.
func (r *Result) IndirectTargets(call *ast.CallExpr) ([]*scope.Declaration, bool) {
	for _, fn := range r.Order {
		fr := r.Functions[fn]
		targets, ok := fr.IndirectTargets[call]
		if ok || fr.External[call] {
			return targets, fr.External[call]
		}
	}
	return nil, false
}

// Run analyzes every function with a body, bottom-up over the call graph.
// Functions of one level run concurrently. Cancellation is checked between
// functions; a cancelled run returns the context error and the functions
// finished so far.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.PassDuration.WithLabelValues("dataflow").Observe(time.Since(start).Seconds())
	}()

	fns := e.table.Functions()
	// types are resolved lazily; settle them before workers share them
	for _, fn := range fns {
		e.tr.DeclType(fn)
	}
	result := &Result{
		Functions: make(map[*scope.Declaration]*FunctionResult, len(fns)),
		Summaries: e.summaries,
		Locations: e.locs,
	}
	sched := buildSchedule(fns, func(fn *scope.Declaration) []*scope.Declaration {
		return dependencies(e.res, e.table, fn)
	})

	for level, group := range sched.levels {
		if err := ctx.Err(); err != nil {
			e.finish(result, fns)
			return result, err
		}
		out := make([]*FunctionResult, len(group))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for i, fn := range group {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = e.analyze(fn, level)
				return nil
			})
		}
		err := g.Wait()
		for i, fn := range group {
			fr := out[i]
			if fr == nil {
				continue
			}
			result.Functions[fn] = fr
			e.summaries.Publish(fn, fr.Summary, level)
			e.addIndirectEdges(fn, fr)
		}
		if err != nil {
			e.finish(result, fns)
			return result, err
		}
	}
	e.finish(result, fns)
	e.logger.Debug("dataflow done", "file", e.table.File, "functions", len(result.Order), "levels", len(sched.levels), "locations", e.locs.Len())
	return result, nil
}

func (e *Engine) finish(result *Result, fns []*scope.Declaration) {
	for _, fn := range fns {
		if _, ok := result.Functions[fn]; ok {
			result.Order = append(result.Order, fn)
		}
	}
}

// addIndirectEdges records the targets found for indirect calls in the call
// graph, one edge per target.
func (e *Engine) addIndirectEdges(fn *scope.Declaration, fr *FunctionResult) {
	for _, call := range fr.indirectOrder {
		for _, t := range fr.IndirectTargets[call] {
			e.res.Graph.AddEdge(callgraph.Edge{
				Caller: fn,
				Callee: t,
				Site:   call,
				Kind:   callgraph.IndirectCall,
				Span:   call.Span(),
			})
		}
	}
}

// analyze computes the result of one function, consulting the summary cache
// first.
func (e *Engine) analyze(fn *scope.Declaration, level int) *FunctionResult {
	key := ""
	if e.cache != nil {
		key = e.cacheKey(fn)
	}
	if key != "" {
		if ps, err := e.cache.Get(key); err == nil && ps != nil {
			metrics.SummaryCache.WithLabelValues("hit").Inc()
			return &FunctionResult{
				Func:            fn,
				Summary:         ps.summary(fn),
				Cached:          true,
				Exprs:           map[ast.Expr]AliasSet{},
				Values:          map[ast.Expr]ValueSet{},
				IndirectTargets: map[*ast.CallExpr][]*scope.Declaration{},
				External:        map[*ast.CallExpr]bool{},
			}
		}
		metrics.SummaryCache.WithLabelValues("miss").Inc()
	}

	fr := newAnalyzer(e, fn, level).run()
	if key != "" {
		if err := e.cache.Put(key, fr.Summary.Portable()); err != nil {
			e.logger.Warn("summary cache write failed", "function", fn.String(), "error", err)
		}
	}
	return fr
}

// cacheKey identifies a function body across runs.
func (e *Engine) cacheKey(fn *scope.Declaration) string {
	h, err := hashstructure.Hash(fn.Body, hashstructure.FormatV2, nil)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s%s#%x/%s/%d", fn.QualifiedName, fn.Signature(), h, e.policy, e.valueLimit)
}

// Portable strips the location-specific parts of s.
func (s *Summary) Portable() *PortableSummary {
	return &PortableSummary{
		Function:        s.Func.String(),
		Receiver:        s.Receiver,
		Params:          s.Params,
		ReturnsExternal: s.Returns.Pts.External,
		Conservative:    s.Conservative,
		Approximate:     s.Approximate,
	}
}

func (p *PortableSummary) summary(fn *scope.Declaration) *Summary {
	s := &Summary{
		Func:         fn,
		Receiver:     p.Receiver,
		Params:       p.Params,
		Conservative: p.Conservative,
		Approximate:  p.Approximate,
		effectsOnly:  true,
	}
	if p.ReturnsExternal {
		s.Returns.Pts = ExternalSet()
	}
	return s
}

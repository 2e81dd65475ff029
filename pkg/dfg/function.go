package dfg

import (
	"github.com/l3aro/go-flow-query/internal/metrics"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/cfg"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// FunctionResult is the outcome of analyzing one function.
type FunctionResult struct {
	Func *scope.Declaration
	CFG  *cfg.CFGInfo
	// DefUse holds the def-use chains of the function's locals.
	DefUse *DFGInfo
	// Exprs and Values hold, for every evaluated expression, the union of
	// its alias and value sets over all program points it occurs at.
	Exprs  map[ast.Expr]AliasSet
	Values map[ast.Expr]ValueSet
	// IndirectTargets lists the functions a call through a pointer may
	// reach; External marks calls that may also reach external code.
	IndirectTargets map[*ast.CallExpr][]*scope.Declaration
	External        map[*ast.CallExpr]bool
	Summary         *Summary
	// Approximate is set when the fixpoint hit the iteration cap.
	Approximate bool
	Iterations  int
	// Cached is set when the summary came from the summary cache and the
	// body was not analyzed.
	Cached bool

	indirectOrder []*ast.CallExpr
	exit          *State
}

// ExitContent returns what loc holds when the function returns.
func (fr *FunctionResult) ExitContent(loc uint32) (Content, bool) {
	if fr.exit == nil {
		return Content{}, false
	}
	return fr.exit.get(loc)
}

type analyzer struct {
	e      *Engine
	fn     *scope.Declaration
	level  int
	params map[*scope.Declaration]int
	// method is the method whose `this` the body sees: fn itself or, for
	// lambdas, the enclosing method.
	method    *scope.Declaration
	byValue   map[*scope.Declaration]bool
	rangeVars map[*ast.VarDecl]ast.Expr
	refResult bool

	out *FunctionResult
	ret Content
}

func newAnalyzer(e *Engine, fn *scope.Declaration, level int) *analyzer {
	a := &analyzer{
		e:         e,
		fn:        fn,
		level:     level,
		params:    paramIndex(fn),
		byValue:   make(map[*scope.Declaration]bool),
		rangeVars: make(map[*ast.VarDecl]ast.Expr),
		out: &FunctionResult{
			Func:            fn,
			Exprs:           make(map[ast.Expr]AliasSet),
			Values:          make(map[ast.Expr]ValueSet),
			IndirectTargets: make(map[*ast.CallExpr][]*scope.Declaration),
			External:        make(map[*ast.CallExpr]bool),
		},
	}
	a.method = enclosingMethod(fn)
	if fn.Lambda != nil {
		for _, c := range e.res.Captures[fn.Lambda] {
			if c.Decl != nil && !c.ByRef {
				a.byValue[c.Decl] = true
			}
		}
	}
	e.tr.DeclType(fn)
	a.refResult = isReference(fn.Result)
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.LambdaExpr:
			return false
		case *ast.ForStmt:
			if x.Range == nil {
				break
			}
			if ds, ok := x.Init.(*ast.DeclStmt); ok {
				for _, d := range ds.Decls {
					if v, ok := d.(*ast.VarDecl); ok {
						a.rangeVars[v] = x.Range
					}
				}
			}
		}
		return true
	})
	return a
}

// enclosingMethod returns the non-static method whose `this` is visible in
// fn, looking through lambdas.
func enclosingMethod(fn *scope.Declaration) *scope.Declaration {
	for cur := fn; cur != nil; {
		if cur.Kind == scope.Method && !cur.Static {
			return cur
		}
		if cur.Lambda == nil || cur.Scope == nil {
			return nil
		}
		fs := cur.Scope.EnclosingFunction()
		if fs == nil {
			return nil
		}
		cur = fs.Owner
	}
	return nil
}

func isReference(t types.Type) bool {
	_, ok := types.StripConst(t).(*types.Reference)
	return ok
}

func (a *analyzer) limit() int { return a.e.valueLimit }

// run computes the fixpoint over the function's CFG with a work list in
// reverse postorder. Block entry states only grow, by union with the exit
// states of predecessors, so the iteration is monotone; the cap bounds it
// when the location space grows with the iterations.
func (a *analyzer) run() *FunctionResult {
	info := cfg.Build(a.fn.QualifiedName, a.fn.Body)
	a.out.CFG = info

	order := info.ReversePostorder()
	pos := make(map[int]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	in := make(map[int]*State, len(info.Blocks))
	in[info.EntryBlockID] = a.entryState()
	pending := map[int]bool{info.EntryBlockID: true}

	limit := a.e.maxIterPerBlock * len(info.Blocks)
	visits := 0
	diverged := false
	for len(pending) > 0 {
		b := -1
		for id := range pending {
			if b < 0 || pos[id] < pos[b] {
				b = id
			}
		}
		if visits >= limit {
			diverged = true
			break
		}
		delete(pending, b)
		visits++

		st := in[b].clone()
		a.transfer(info.Blocks[b], st)
		for _, succ := range info.Blocks[b].Successors {
			if _, ok := pos[succ]; !ok {
				continue
			}
			if in[succ] == nil {
				in[succ] = st.clone()
				pending[succ] = true
			} else if a.join(in[succ], st) {
				pending[succ] = true
			}
		}
	}

	a.out.Iterations = visits
	metrics.FixpointIterations.Observe(float64(visits))
	if diverged {
		a.out.Approximate = true
		metrics.DivergentFunctions.Inc()
		a.e.diags.Report(diag.FixpointDivergence, a.fn.Node.Span(),
			"fixpoint of %s exceeded %d block visits; results are approximate", a.fn.String(), limit)
		a.e.logger.Warn("fixpoint cap reached", "function", a.fn.String(), "visits", visits)
		for k, s := range a.out.Exprs {
			s.Approximate = true
			a.out.Exprs[k] = s
		}
	}

	exit := in[info.ExitBlockID]
	if exit == nil {
		exit = newState()
	}
	a.out.exit = exit
	a.out.DefUse = NewReachingDefsAnalyzer(a.e.res, a.e.table, a.fn).Analyze(info)
	a.out.Summary = a.summarize(exit, diverged)
	return a.out
}

func (a *analyzer) entryState() *State {
	st := newState()
	for _, p := range a.fn.Params {
		d := p.Decl
		if d == nil {
			continue
		}
		loc := a.e.locs.Var(d)
		c := Content{Vals: SymValue(d)}
		if !a.isScalar(d) {
			c.Pts = NewAliasSet(a.e.locs.Deref(loc))
		}
		st.set(loc, c)
	}
	if hasReceiver(a.fn) {
		this := a.e.locs.This(a.fn)
		st.set(this, Content{Pts: NewAliasSet(a.e.locs.Deref(this))})
	}
	return st
}

func (a *analyzer) transfer(b *cfg.CFGBlock, st *State) {
	for _, n := range b.Nodes {
		switch x := n.(type) {
		case *ast.VarDecl:
			a.declare(st, x)
		case *ast.ReturnStmt:
			a.returns(st, x)
		case ast.Expr:
			a.rval(st, x)
		}
	}
}

func (a *analyzer) returns(st *State, r *ast.ReturnStmt) {
	if r.X == nil {
		return
	}
	var c Content
	if a.refResult {
		lv, _ := a.lval(st, r.X)
		c = Content{Pts: lv.Clone()}
	} else {
		c = a.rval(st, r.X).Clone()
	}
	a.ret.Union(c, a.limit())
}

// join merges src into dst and reports whether dst grew. A location written
// on only one side joins with its default on the other.
func (a *analyzer) join(dst, src *State) bool {
	changed := false
	for _, k := range src.keys() {
		sc, _ := src.get(k)
		dc, ok := dst.get(k)
		if !ok {
			dc = a.defaultContent(k)
			dc.Union(sc, a.limit())
			dst.set(k, dc)
			changed = true
			continue
		}
		if dc.Union(sc, a.limit()) {
			dst.set(k, dc)
			changed = true
		}
	}
	for _, k := range dst.keys() {
		if _, ok := src.get(k); ok {
			continue
		}
		dc, _ := dst.get(k)
		if dc.Union(a.defaultContent(k), a.limit()) {
			dst.set(k, dc)
			changed = true
		}
	}
	return changed
}

// isLocal reports whether d is storage of this invocation of fn: its
// parameters and non-static locals.
func (a *analyzer) isLocal(d *scope.Declaration) bool {
	return isLocalOf(d, a.fn)
}

func (a *analyzer) isScalar(d *scope.Declaration) bool {
	t := a.e.tr.Canonical(a.e.tr.DeclType(d))
	_, ok := types.StripConst(t).(*types.Primitive)
	return ok
}

func (a *analyzer) symbolic(id uint32) Content {
	return Content{Pts: NewAliasSet(a.e.locs.Deref(id)), Vals: UnknownValue()}
}

// defaultContent is what a location holds before this function writes it.
// Storage reached from outside (globals, parameter targets, captured
// variables) holds an unknown object of its own; locals start empty.
func (a *analyzer) defaultContent(id uint32) Content {
	locs := a.e.locs
	loc := locs.Get(id)
	base := loc
	for base.Kind == LocField || base.Kind == LocDeref {
		if base.Kind == LocDeref {
			return a.symbolic(id)
		}
		base = locs.Get(base.Parent)
	}
	switch base.Kind {
	case LocVar:
		d := base.Decl
		if a.isLocal(d) {
			if d.IsParam && base != loc {
				return a.symbolic(id)
			}
			return Content{}
		}
		if base == loc && a.isScalar(d) {
			return Content{Vals: UnknownValue()}
		}
		return a.symbolic(id)
	case LocThis:
		return a.symbolic(id)
	}
	return Content{}
}

func (a *analyzer) load(st *State, id uint32) Content {
	if c, ok := st.get(id); ok {
		return c
	}
	return a.defaultContent(id)
}

// loadFrom returns the union of the contents of every location in set.
// Reading through an external pointer yields external data.
func (a *analyzer) loadFrom(st *State, set AliasSet) Content {
	var out Content
	for _, id := range set.IDs() {
		out.Union(a.load(st, id), a.limit())
	}
	if set.External {
		out.Union(Content{Pts: ExternalSet(), Vals: UnknownValue()}, a.limit())
	}
	if set.Approximate {
		out = out.withApproximate()
	}
	return out
}

// concrete reports whether a location stands for a single object, so that a
// store to it may replace the old content.
func (a *analyzer) concrete(id uint32) bool {
	locs := a.e.locs
	for loc := locs.Get(id); ; loc = locs.Get(loc.Parent) {
		switch loc.Kind {
		case LocHeap, LocString, LocFunc:
			return false
		case LocField, LocDeref:
			continue
		}
		return true
	}
}

// store writes val to every location of targets. A single concrete target is
// overwritten; otherwise each target keeps its old content too.
func (a *analyzer) store(st *State, targets AliasSet, val Content, weak bool) {
	ids := targets.IDs()
	strong := !weak && !targets.External && len(ids) == 1 && a.concrete(ids[0])
	for _, id := range ids {
		if strong {
			st.set(id, val.Clone())
			continue
		}
		cur := a.load(st, id).Clone()
		cur.Union(val, a.limit())
		st.set(id, cur)
	}
}

// summarize builds the function summary from the exit state: the returned
// content and every written location that outlives the call.
func (a *analyzer) summarize(exit *State, approximate bool) *Summary {
	s := &Summary{Func: a.fn, Returns: a.ret, Approximate: approximate}
	for _, k := range exit.keys() {
		if a.outlives(k) {
			c, _ := exit.get(k)
			s.Stores = append(s.Stores, Store{Target: k, Value: c})
		}
	}
	deriveEffects(a.e.locs, s)
	return s
}

// outlives reports whether a write to id is visible to the caller.
func (a *analyzer) outlives(id uint32) bool {
	locs := a.e.locs
	loc := locs.Get(id)
	for loc.Kind == LocField {
		loc = locs.Get(loc.Parent)
	}
	switch loc.Kind {
	case LocDeref, LocHeap:
		return true
	case LocVar:
		if a.isLocal(loc.Decl) || a.byValue[loc.Decl] {
			return false
		}
		return true
	}
	return false
}

// record notes the content of e at the current program point.
func (a *analyzer) record(e ast.Expr, c Content) {
	if !c.Pts.IsEmpty() {
		s := a.out.Exprs[e]
		s = s.Clone()
		s.Union(c.Pts)
		a.out.Exprs[e] = s
	}
	if !c.Vals.IsEmpty() {
		v := a.out.Values[e].Clone()
		v.Union(c.Vals, a.limit())
		a.out.Values[e] = v
	}
}

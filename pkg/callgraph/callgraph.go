// Package callgraph resolves names, expression types and call targets over a
// unit's function bodies (pass 2). Each call site is resolved to a static
// target by overload selection, annotated as a virtual dispatch, deferred to
// the data-flow pass as an indirect call, or synthesized by inference.
package callgraph

import (
	"sort"
	"sync"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// CallKind classifies how a call site was resolved.
type CallKind string

const (
	// StaticCall is a call bound to one declaration by overload selection.
	StaticCall CallKind = "static"
	// VirtualCall is a static edge to a virtual method; the runtime target
	// may be any overrider.
	VirtualCall CallKind = "virtual"
	// IndirectCall goes through a pointer, a field or a callable object and
	// is resolved by the points-to pass.
	IndirectCall CallKind = "indirect"
	// ConstructCall is a functional cast or constructor call `T(args)`.
	ConstructCall CallKind = "construct"
	// InferredCall is bound to a synthesized declaration.
	InferredCall CallKind = "inferred"
	// UnresolvedCall resolves to nothing, for instance a method call on a
	// receiver whose record is unknown.
	UnresolvedCall CallKind = "unresolved"
)

// CallSite is the resolution of one call expression.
type CallSite struct {
	Call   *ast.CallExpr
	Caller *scope.Declaration
	Scope  *scope.Scope
	Kind   CallKind
	// Target is the statically selected declaration: the chosen overload,
	// the template instance, the inferred declaration or, for
	// constructions, the record or its constructor.
	Target *scope.Declaration
	// Dynamic marks virtual dispatch. Overriders lists the methods the
	// call may reach at run time besides Target.
	Dynamic    bool
	Overriders []*scope.Declaration
	// Tied holds the candidates that tied with Target when the choice fell
	// back to declaration order.
	Tied     []*scope.Declaration
	ArgTypes []types.Type
	// Receiver is the object expression of a member call.
	Receiver ast.Expr
}

// Edge is one caller to callee edge of the call graph.
type Edge struct {
	Caller  *scope.Declaration
	Callee  *scope.Declaration
	Site    *ast.CallExpr
	Kind    CallKind
	Dynamic bool
	Span    ast.Span
}

// Unresolved describes a call with no target.
type Unresolved struct {
	Caller string
	Callee string
	Span   ast.Span
	Reason string
}

// Stats summarizes a graph.
type Stats struct {
	Sites      int
	Edges      int
	Static     int
	Virtual    int
	Indirect   int
	Construct  int
	Inferred   int
	Unresolved int
	Ambiguous  int
}

// Graph is the call graph of one unit, or of a merged run. Indirect edges are
// added by the points-to pass after resolution.
type Graph struct {
	mu         sync.RWMutex
	sites      []*CallSite
	edges      []Edge
	unresolved []Unresolved
	callees    map[*scope.Declaration][]int
	callers    map[*scope.Declaration][]int
	seen       map[edgeKey]bool
}

type edgeKey struct {
	caller, callee *scope.Declaration
	site           *ast.CallExpr
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		callees: make(map[*scope.Declaration][]int),
		callers: make(map[*scope.Declaration][]int),
		seen:    make(map[edgeKey]bool),
	}
}

// AddSite records a resolved call site and its static edge.
func (g *Graph) AddSite(site *CallSite) {
	g.mu.Lock()
	g.sites = append(g.sites, site)
	g.mu.Unlock()

	switch {
	case site.Target != nil && site.Kind != IndirectCall:
		g.AddEdge(Edge{
			Caller:  site.Caller,
			Callee:  site.Target,
			Site:    site.Call,
			Kind:    site.Kind,
			Dynamic: site.Dynamic,
			Span:    site.Call.Span(),
		})
	case site.Kind == UnresolvedCall:
		caller := "<global>"
		if site.Caller != nil {
			caller = site.Caller.QualifiedName
		}
		g.mu.Lock()
		g.unresolved = append(g.unresolved, Unresolved{
			Caller: caller,
			Callee: ast.ExprString(site.Call.Fun),
			Span:   site.Call.Span(),
			Reason: "receiver record is unknown",
		})
		g.mu.Unlock()
	}
}

// AddEdge adds an edge unless an identical one exists.
func (g *Graph) AddEdge(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := edgeKey{e.Caller, e.Callee, e.Site}
	if g.seen[k] {
		return
	}
	g.seen[k] = true
	g.edges = append(g.edges, e)
	idx := len(g.edges) - 1
	g.callees[e.Caller] = append(g.callees[e.Caller], idx)
	g.callers[e.Callee] = append(g.callers[e.Callee], idx)
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Sites returns the call sites in resolution order.
func (g *Graph) Sites() []*CallSite {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*CallSite, len(g.sites))
	copy(out, g.sites)
	return out
}

// UnresolvedCalls returns the calls that resolved to nothing.
func (g *Graph) UnresolvedCalls() []Unresolved {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Unresolved, len(g.unresolved))
	copy(out, g.unresolved)
	return out
}

// Callees returns the distinct declarations called from fn, ordered by
// declaration order.
func (g *Graph) Callees(fn *scope.Declaration) []*scope.Declaration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.callees[fn], func(e Edge) *scope.Declaration { return e.Callee })
}

// Callers returns the distinct declarations calling fn.
func (g *Graph) Callers(fn *scope.Declaration) []*scope.Declaration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.callers[fn], func(e Edge) *scope.Declaration { return e.Caller })
}

func (g *Graph) collect(idx []int, pick func(Edge) *scope.Declaration) []*scope.Declaration {
	seen := make(map[*scope.Declaration]bool)
	var out []*scope.Declaration
	for _, i := range idx {
		d := pick(g.edges[i])
		if d == nil || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Merge appends the sites, edges and unresolved calls of other.
func (g *Graph) Merge(other *Graph) {
	if other == nil || other == g {
		return
	}
	for _, e := range other.Edges() {
		g.AddEdge(e)
	}
	other.mu.RLock()
	sites := append([]*CallSite(nil), other.sites...)
	unresolved := append([]Unresolved(nil), other.unresolved...)
	other.mu.RUnlock()
	g.mu.Lock()
	g.sites = append(g.sites, sites...)
	g.unresolved = append(g.unresolved, unresolved...)
	g.mu.Unlock()
}

// Stats counts sites by kind.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{Sites: len(g.sites), Edges: len(g.edges)}
	for _, site := range g.sites {
		switch site.Kind {
		case StaticCall:
			s.Static++
		case VirtualCall:
			s.Virtual++
		case IndirectCall:
			s.Indirect++
		case ConstructCall:
			s.Construct++
		case InferredCall:
			s.Inferred++
		case UnresolvedCall:
			s.Unresolved++
		}
		if len(site.Tied) > 0 {
			s.Ambiguous++
		}
	}
	return s
}

// Resolution is the output of pass 2 for one unit.
type Resolution struct {
	// Calls maps each call expression to its resolution.
	Calls map[*ast.CallExpr]*CallSite
	// Refs maps identifiers, member expressions and lambdas to the
	// declarations they denote. Overloaded names map to the whole set.
	Refs map[ast.Expr][]*scope.Declaration
	// Types holds the type computed for every expression.
	Types map[ast.Expr]types.Type
	// Captures lists the outer variables a lambda captures.
	Captures map[*ast.LambdaExpr][]Capture
	Graph    *Graph
}

// Capture is one resolved lambda capture.
type Capture struct {
	Decl  *scope.Declaration
	ByRef bool
}

func newResolution() *Resolution {
	return &Resolution{
		Calls:    make(map[*ast.CallExpr]*CallSite),
		Refs:     make(map[ast.Expr][]*scope.Declaration),
		Types:    make(map[ast.Expr]types.Type),
		Captures: make(map[*ast.LambdaExpr][]Capture),
		Graph:    NewGraph(),
	}
}

// Ref returns the single declaration an expression denotes, or nil when it
// denotes nothing or an overload set of more than one member.
func (r *Resolution) Ref(e ast.Expr) *scope.Declaration {
	set := r.Refs[e]
	if len(set) != 1 {
		return nil
	}
	return set[0]
}

// TypeOf returns the computed type of e, Unknown when none was recorded.
func (r *Resolution) TypeOf(e ast.Expr) types.Type {
	if t, ok := r.Types[e]; ok && t != nil {
		return t
	}
	return &types.Unknown{}
}

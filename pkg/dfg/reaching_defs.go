package dfg

import (
	"container/list"
	"sort"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/cfg"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

// ReachingDefsAnalyzer computes def-use chains for the locals of a function
// with the classic reaching definitions problem over its CFG. Uses through
// pointers are the business of the points-to pass; this analysis only sees
// names.
type ReachingDefsAnalyzer struct {
	res   *callgraph.Resolution
	table *scope.Table
	fn    *scope.Declaration
	// rangeVar marks loop variables of range-based for, defined without an
	// initializer.
	rangeVar map[*ast.VarDecl]bool

	refs []VarRef
	// defs lists the indexes into refs of definitions and updates; a
	// definition ID is a position in defs.
	defs      []int
	blockGen  map[int]map[int]struct{}
	blockKill map[int]map[*scope.Declaration]struct{}
}

// NewReachingDefsAnalyzer creates the analyzer for fn.
func NewReachingDefsAnalyzer(res *callgraph.Resolution, table *scope.Table, fn *scope.Declaration) *ReachingDefsAnalyzer {
	return &ReachingDefsAnalyzer{
		res:       res,
		table:     table,
		fn:        fn,
		rangeVar:  make(map[*ast.VarDecl]bool),
		blockGen:  make(map[int]map[int]struct{}),
		blockKill: make(map[int]map[*scope.Declaration]struct{}),
	}
}

// Analyze returns the def-use chains of fn over info.
func (r *ReachingDefsAnalyzer) Analyze(info *cfg.CFGInfo) *DFGInfo {
	out := &DFGInfo{
		FunctionName: r.fn.QualifiedName,
		Variables:    make(map[string][]VarRef),
	}
	if info == nil || len(info.Blocks) == 0 {
		return out
	}
	ast.Inspect(r.fn.Body, func(n ast.Node) bool {
		if f, ok := n.(*ast.ForStmt); ok && f.Range != nil {
			if ds, ok := f.Init.(*ast.DeclStmt); ok {
				for _, d := range ds.Decls {
					if v, ok := d.(*ast.VarDecl); ok {
						r.rangeVar[v] = true
					}
				}
			}
		}
		_, lambda := n.(*ast.LambdaExpr)
		return !lambda
	})
	r.collect(info)
	in := r.solve(info)
	out.VarRefs = r.refs
	out.DataflowEdges = r.buildDefUseChains(info, in)
	for _, ref := range r.refs {
		out.Variables[ref.Name] = append(out.Variables[ref.Name], ref)
	}
	return out
}

// collect records the references of every block in evaluation order and
// builds the gen and kill sets. Parameters are defined at the entry.
func (r *ReachingDefsAnalyzer) collect(info *cfg.CFGInfo) {
	for _, p := range r.fn.Params {
		if p.Decl == nil || p.Decl.Node == nil {
			continue
		}
		sp := p.Decl.Node.Span()
		r.add(VarRef{Name: p.Name, RefType: RefTypeDefinition, Line: sp.StartLine, Column: sp.StartCol, Decl: p.Decl, block: info.EntryBlockID})
	}
	for _, b := range info.Blocks {
		for _, n := range b.Nodes {
			r.node(b.ID, n)
		}
	}
	for i, ref := range r.refs {
		if ref.RefType == RefTypeUse {
			continue
		}
		gen := r.blockGen[ref.block]
		kill := r.blockKill[ref.block]
		if gen == nil {
			gen = make(map[int]struct{})
			kill = make(map[*scope.Declaration]struct{})
			r.blockGen[ref.block] = gen
			r.blockKill[ref.block] = kill
		}
		// a later definition in the block replaces the earlier one
		for id := range gen {
			if r.refs[r.defs[id]].Decl == ref.Decl {
				delete(gen, id)
			}
		}
		gen[r.defID(i)] = struct{}{}
		kill[ref.Decl] = struct{}{}
	}
}

func (r *ReachingDefsAnalyzer) add(ref VarRef) {
	if ref.RefType != RefTypeUse {
		r.defs = append(r.defs, len(r.refs))
	}
	r.refs = append(r.refs, ref)
}

func (r *ReachingDefsAnalyzer) defID(refIndex int) int {
	return sort.SearchInts(r.defs, refIndex)
}

// local returns the local variable e names, nil for anything else.
func (r *ReachingDefsAnalyzer) local(e ast.Expr) *scope.Declaration {
	id, ok := e.(*ast.Ident)
	if !ok {
		return nil
	}
	d := r.res.Ref(id)
	if !isLocalOf(d, r.fn) {
		return nil
	}
	return d
}

func (r *ReachingDefsAnalyzer) ref(block int, d *scope.Declaration, n ast.Node, kind RefType) {
	sp := n.Span()
	r.add(VarRef{Name: d.Name, RefType: kind, Line: sp.StartLine, Column: sp.StartCol, Decl: d, block: block})
}

func (r *ReachingDefsAnalyzer) node(block int, n ast.Node) {
	switch x := n.(type) {
	case nil:
	case *ast.VarDecl:
		if x.Init != nil {
			r.node(block, x.Init)
		}
		if decl := r.declOf(x); decl != nil && (x.Init != nil || r.rangeVar[x]) {
			r.ref(block, decl, x, RefTypeDefinition)
		}
	case *ast.AssignExpr:
		r.node(block, x.Rhs)
		if d := r.local(x.Lhs); d != nil {
			if x.Op == "=" {
				r.ref(block, d, x.Lhs, RefTypeDefinition)
			} else {
				r.ref(block, d, x.Lhs, RefTypeUse)
				r.ref(block, d, x.Lhs, RefTypeUpdate)
			}
			return
		}
		r.node(block, x.Lhs)
	case *ast.UnaryExpr:
		if x.Op == "++" || x.Op == "--" {
			if d := r.local(x.X); d != nil {
				r.ref(block, d, x.X, RefTypeUse)
				r.ref(block, d, x.X, RefTypeUpdate)
				return
			}
		}
		r.node(block, x.X)
	case *ast.Ident:
		if d := r.local(x); d != nil {
			r.ref(block, d, x, RefTypeUse)
		}
	case *ast.LambdaExpr:
	default:
		for _, c := range ast.Children(n) {
			r.node(block, c)
		}
	}
}

func (r *ReachingDefsAnalyzer) declOf(v *ast.VarDecl) *scope.Declaration {
	d := r.table.DeclOf(v)
	if !isLocalOf(d, r.fn) {
		return nil
	}
	return d
}

// solve runs the worklist algorithm and returns the definitions reaching
// the entry of each block.
func (r *ReachingDefsAnalyzer) solve(info *cfg.CFGInfo) map[int]map[int]struct{} {
	in := make(map[int]map[int]struct{}, len(info.Blocks))
	out := make(map[int]map[int]struct{}, len(info.Blocks))
	for _, b := range info.Blocks {
		in[b.ID] = make(map[int]struct{})
		out[b.ID] = make(map[int]struct{})
	}

	worklist := list.New()
	queued := make(map[int]bool, len(info.Blocks))
	for _, id := range info.ReversePostorder() {
		worklist.PushBack(id)
		queued[id] = true
	}
	for worklist.Len() > 0 {
		id := worklist.Remove(worklist.Front()).(int)
		queued[id] = false
		b := info.Blocks[id]

		reach := make(map[int]struct{})
		for _, p := range b.Predecessors {
			for d := range out[p] {
				reach[d] = struct{}{}
			}
		}
		in[id] = reach
		next := r.computeOut(reach, id)
		if setsEqual(next, out[id]) {
			continue
		}
		out[id] = next
		for _, s := range b.Successors {
			if !queued[s] {
				worklist.PushBack(s)
				queued[s] = true
			}
		}
	}
	return in
}

// computeOut computes out[block] = gen[block] U (in[block] - kill[block]).
func (r *ReachingDefsAnalyzer) computeOut(inSet map[int]struct{}, block int) map[int]struct{} {
	outSet := make(map[int]struct{}, len(inSet))
	for d := range r.blockGen[block] {
		outSet[d] = struct{}{}
	}
	kill := r.blockKill[block]
	for d := range inSet {
		if _, killed := kill[r.refs[r.defs[d]].Decl]; !killed {
			outSet[d] = struct{}{}
		}
	}
	return outSet
}

func setsEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// buildDefUseChains replays each block from its entry set, connecting every
// use to the definitions of its variable reaching that point.
func (r *ReachingDefsAnalyzer) buildDefUseChains(info *cfg.CFGInfo, in map[int]map[int]struct{}) []DataflowEdge {
	byBlock := make(map[int][]int)
	for i, ref := range r.refs {
		byBlock[ref.block] = append(byBlock[ref.block], i)
	}
	var edges []DataflowEdge
	for _, b := range info.Blocks {
		current := make(map[*scope.Declaration][]int)
		for d := range in[b.ID] {
			decl := r.refs[r.defs[d]].Decl
			current[decl] = append(current[decl], r.defs[d])
		}
		for _, i := range byBlock[b.ID] {
			ref := r.refs[i]
			if ref.RefType != RefTypeUse {
				current[ref.Decl] = []int{i}
				continue
			}
			defs := append([]int(nil), current[ref.Decl]...)
			sort.Ints(defs)
			for _, di := range defs {
				edges = append(edges, DataflowEdge{DefRef: r.refs[di], UseRef: ref, VarName: ref.Name})
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.UseRef.Line != b.UseRef.Line {
			return a.UseRef.Line < b.UseRef.Line
		}
		if a.UseRef.Column != b.UseRef.Column {
			return a.UseRef.Column < b.UseRef.Column
		}
		return a.DefRef.Line < b.DefRef.Line
	})
	return edges
}

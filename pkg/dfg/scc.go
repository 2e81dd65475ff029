package dfg

import (
	"sort"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

// schedule orders functions bottom-up: every function sits one level above
// the highest level of the functions it depends on. Members of one strongly
// connected component share a level, so recursive calls inside it see no
// summary and fall back to the conservative one.
type schedule struct {
	levels    [][]*scope.Declaration
	recursive map[*scope.Declaration]bool
}

// summaryOwner maps a call target to the declaration whose summary it uses:
// template instances share the summary of their template.
func summaryOwner(d *scope.Declaration) *scope.Declaration {
	if d != nil && d.Template != nil && d.IsCallable() {
		return d.Template
	}
	return d
}

// dependencies lists the functions whose summaries fn may apply: direct and
// virtual call targets, functions whose address is taken, lambdas defined
// in the body and functions named by string literals (dynamic symbols).
func dependencies(res *callgraph.Resolution, table *scope.Table, fn *scope.Declaration) []*scope.Declaration {
	var out []*scope.Declaration
	seen := make(map[*scope.Declaration]bool)
	add := func(d *scope.Declaration) {
		d = summaryOwner(d)
		if d == nil || !d.IsCallable() || d.Body == nil || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.CallExpr:
			if site := res.Calls[x]; site != nil {
				add(site.Target)
				for _, o := range site.Overriders {
					add(o)
				}
			}
		case *ast.Ident:
			for _, d := range res.Refs[x] {
				add(d)
			}
		case *ast.MemberExpr:
			for _, d := range res.Refs[x] {
				add(d)
			}
		case *ast.NewExpr:
			add(res.Ref(x))
		case *ast.LambdaExpr:
			add(res.Ref(x))
			return false
		case *ast.Literal:
			if x.Kind == ast.StringLit {
				for _, d := range table.Qualified(x.Value) {
					add(d)
				}
			}
		}
		return true
	})
	return out
}

// buildSchedule computes strongly connected components with Tarjan's
// algorithm and assigns levels. fns fixes the iteration order, so the
// schedule is deterministic.
func buildSchedule(fns []*scope.Declaration, deps func(*scope.Declaration) []*scope.Declaration) schedule {
	inSet := make(map[*scope.Declaration]bool, len(fns))
	for _, fn := range fns {
		inSet[fn] = true
	}
	succ := make(map[*scope.Declaration][]*scope.Declaration, len(fns))
	for _, fn := range fns {
		for _, d := range deps(fn) {
			if inSet[d] {
				succ[fn] = append(succ[fn], d)
			}
		}
	}

	var (
		index   = make(map[*scope.Declaration]int)
		low     = make(map[*scope.Declaration]int)
		onStack = make(map[*scope.Declaration]bool)
		stack   []*scope.Declaration
		next    int
		comps   [][]*scope.Declaration
		compOf  = make(map[*scope.Declaration]int)
	)
	var connect func(v *scope.Declaration)
	connect = func(v *scope.Declaration) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range succ[v] {
			if _, ok := index[w]; !ok {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		var comp []*scope.Declaration
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			compOf[w] = len(comps)
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		comps = append(comps, comp)
	}
	for _, fn := range fns {
		if _, ok := index[fn]; !ok {
			connect(fn)
		}
	}

	// Tarjan emits components callees first.
	sched := schedule{recursive: make(map[*scope.Declaration]bool)}
	compLevel := make([]int, len(comps))
	for ci, comp := range comps {
		lvl := 0
		for _, v := range comp {
			for _, w := range succ[v] {
				if cw := compOf[w]; cw != ci {
					lvl = max(lvl, compLevel[cw]+1)
				} else {
					sched.recursive[v] = true
				}
			}
		}
		compLevel[ci] = lvl
	}
	order := make(map[*scope.Declaration]int, len(fns))
	for i, fn := range fns {
		order[fn] = i
	}
	for ci, comp := range comps {
		lvl := compLevel[ci]
		for len(sched.levels) <= lvl {
			sched.levels = append(sched.levels, nil)
		}
		sched.levels[lvl] = append(sched.levels[lvl], comp...)
	}
	for _, group := range sched.levels {
		sortByOrder(group, order)
	}
	return sched
}

func sortByOrder(fns []*scope.Declaration, order map[*scope.Declaration]int) {
	sort.Slice(fns, func(i, j int) bool { return order[fns[i]] < order[fns[j]] })
}

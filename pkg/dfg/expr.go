package dfg

import (
	"strings"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/typeres"
	"github.com/l3aro/go-flow-query/pkg/types"
)

func (a *analyzer) typeOf(e ast.Expr) types.Type {
	return a.e.tr.Canonical(a.e.res.TypeOf(e))
}

func (a *analyzer) declType(d *scope.Declaration) types.Type {
	return a.e.tr.Canonical(a.e.tr.DeclType(d))
}

// recordOf returns the record declaration of a record-valued type, nil for
// pointers and non-records.
func (a *analyzer) recordOf(t types.Type) *scope.Declaration {
	rt := types.RecordOf(t)
	if rt == nil || rt.Inferred {
		return nil
	}
	d := a.e.tr.RecordDecl(rt)
	if d == nil || d.Members == nil {
		return nil
	}
	return d
}

// valueRecord is recordOf for types that hold the record itself, not a
// reference to it.
func (a *analyzer) valueRecord(t types.Type) *scope.Declaration {
	if isReference(t) {
		return nil
	}
	return a.recordOf(t)
}

// isFunctionPointer reports whether values of t designate functions, in
// which case & and * leave them unchanged.
func isFunctionPointer(t types.Type) bool {
	t = types.StripConst(types.StripReference(t))
	if p, ok := t.(*types.Pointer); ok {
		t = types.StripConst(p.Elem)
	}
	_, ok := t.(*types.FunctionPointer)
	return ok
}

func isArray(t types.Type) bool {
	_, ok := types.StripConst(types.StripReference(t)).(*types.Array)
	return ok
}

// rval evaluates e for its value and records the result.
func (a *analyzer) rval(st *State, e ast.Expr) Content {
	if e == nil {
		return Content{}
	}
	c := a.eval(st, e)
	a.record(e, c)
	return c
}

func (a *analyzer) eval(st *State, e ast.Expr) Content {
	locs := a.e.locs
	switch x := e.(type) {
	case *ast.Ident:
		return a.ident(st, x)
	case *ast.Literal:
		return a.literal(x)
	case *ast.ThisExpr:
		if a.method == nil {
			return Content{}
		}
		return a.load(st, locs.This(a.method))
	case *ast.UnaryExpr:
		return a.unary(st, x)
	case *ast.BinaryExpr:
		return a.binary(st, x)
	case *ast.AssignExpr:
		return a.assign(st, x)
	case *ast.SubscriptExpr:
		lv, _ := a.lval(st, x)
		return a.loadFrom(st, lv)
	case *ast.MemberExpr:
		if m := a.e.res.Ref(x); m != nil && m.IsCallable() {
			a.memberBase(st, x)
			return Content{Pts: NewAliasSet(locs.Func(m))}
		}
		lv, _ := a.lval(st, x)
		if isArray(a.typeOf(x)) {
			return Content{Pts: lv.Clone()}
		}
		return a.loadFrom(st, lv)
	case *ast.CastExpr:
		return a.rval(st, x.X)
	case *ast.NewExpr:
		return a.newExpr(st, x)
	case *ast.ConditionalExpr:
		a.rval(st, x.Cond)
		c := a.rval(st, x.Then).Clone()
		c.Union(a.rval(st, x.Else), a.limit())
		return c
	case *ast.InitListExpr:
		var c Content
		for _, el := range x.Elems {
			c.Union(a.rval(st, el), a.limit())
		}
		return c
	case *ast.LambdaExpr:
		if d := a.e.res.Ref(x); d != nil {
			return Content{Pts: NewAliasSet(locs.Func(d))}
		}
		return Content{}
	case *ast.CallExpr:
		c := a.call(st, x)
		if a.returnsReference(x) {
			return a.loadFrom(st, c.Pts)
		}
		return c
	}
	return Content{Vals: UnknownValue()}
}

func (a *analyzer) ident(st *State, x *ast.Ident) Content {
	locs := a.e.locs
	d := a.e.res.Ref(x)
	if d == nil {
		// an overloaded function name designates every overload
		var c Content
		for _, o := range a.e.res.Refs[x] {
			if o.IsCallable() {
				c.Pts.Add(locs.Func(o))
			}
		}
		return c
	}
	switch {
	case d.IsCallable():
		return Content{Pts: NewAliasSet(locs.Func(d))}
	case d.Kind != scope.Variable:
		return Content{}
	}
	if d.IsConst && d.Init != nil && !a.isLocal(d) && a.isScalar(d) {
		if v, ok := a.e.tr.EvalConst(d.Scope, d.Init, nil); ok {
			return Content{Vals: ConstValue(v)}
		}
	}
	lv, _ := a.lval(st, x)
	if isArray(a.declType(d)) {
		// arrays decay to a pointer to their (single) element location
		return Content{Pts: lv.Clone()}
	}
	return a.loadFrom(st, lv)
}

func (a *analyzer) literal(x *ast.Literal) Content {
	switch x.Kind {
	case ast.StringLit:
		return Content{Pts: NewAliasSet(a.e.locs.String(x))}
	case ast.FloatLit:
		return Content{Vals: UnknownValue()}
	}
	if v, ok := a.e.tr.EvalConst(a.fn.Members, x, nil); ok {
		return Content{Vals: ConstValue(v)}
	}
	return Content{Vals: UnknownValue()}
}

// lval returns the locations e designates. weak is set when a store through
// the result may not replace the old content, as for array elements.
func (a *analyzer) lval(st *State, e ast.Expr) (AliasSet, bool) {
	locs := a.e.locs
	switch x := e.(type) {
	case *ast.Ident:
		d := a.e.res.Ref(x)
		if d == nil {
			return AliasSet{}, false
		}
		if d.IsCallable() {
			return NewAliasSet(locs.Func(d)), false
		}
		if d.Kind != scope.Variable {
			return AliasSet{}, false
		}
		if d.IsField && !d.Static {
			return a.thisField(st, d.Name), false
		}
		v := locs.Var(d)
		if isReference(a.declType(d)) {
			return a.load(st, v).Pts.Clone(), false
		}
		return NewAliasSet(v), false
	case *ast.UnaryExpr:
		if x.Op == "*" {
			if isFunctionPointer(a.typeOf(x.X)) {
				return a.lval(st, x.X)
			}
			return a.rval(st, x.X).Pts.Clone(), false
		}
	case *ast.MemberExpr:
		return a.memberLval(st, x)
	case *ast.SubscriptExpr:
		var lv AliasSet
		if isArray(a.typeOf(x.X)) {
			lv, _ = a.lval(st, x.X)
		} else {
			lv = a.rval(st, x.X).Pts.Clone()
		}
		a.rval(st, x.Index)
		return lv, true
	case *ast.CastExpr:
		return a.lval(st, x.X)
	case *ast.ConditionalExpr:
		a.rval(st, x.Cond)
		l1, _ := a.lval(st, x.Then)
		l2, _ := a.lval(st, x.Else)
		out := l1.Clone()
		out.Union(l2)
		return out, true
	case *ast.BinaryExpr:
		if x.Op == "," {
			a.rval(st, x.X)
			return a.lval(st, x.Y)
		}
	case *ast.AssignExpr:
		a.assign(st, x)
		return a.lval(st, x.Lhs)
	case *ast.CallExpr:
		c := a.call(st, x)
		if a.returnsReference(x) {
			return c.Pts.Clone(), c.Pts.Len() > 1
		}
	}
	return AliasSet{}, false
}

// thisField returns field name of the object `this` points to.
func (a *analyzer) thisField(st *State, name string) AliasSet {
	if a.method == nil {
		return AliasSet{}
	}
	obj := a.load(st, a.e.locs.This(a.method)).Pts
	return a.project(obj, name)
}

// project maps every object of set to its field name.
func (a *analyzer) project(set AliasSet, name string) AliasSet {
	out := AliasSet{External: set.External, Approximate: set.Approximate}
	for _, id := range set.IDs() {
		out.Add(a.e.locs.Field(id, name))
	}
	return out
}

// memberBase returns the objects the left side of a member access denotes.
func (a *analyzer) memberBase(st *State, x *ast.MemberExpr) AliasSet {
	if x.Arrow {
		return a.rval(st, x.X).Pts
	}
	lv, _ := a.lval(st, x.X)
	return lv
}

func (a *analyzer) memberLval(st *State, x *ast.MemberExpr) (AliasSet, bool) {
	m := a.e.res.Ref(x)
	if m != nil && m.Kind == scope.Variable && m.Static {
		a.memberBase(st, x)
		return NewAliasSet(a.e.locs.Var(m)), false
	}
	fields := a.project(a.memberBase(st, x), x.Name)
	if m != nil && isReference(a.declType(m)) {
		return a.loadFrom(st, fields).Pts.Clone(), false
	}
	return fields, false
}

func (a *analyzer) unary(st *State, x *ast.UnaryExpr) Content {
	switch x.Op {
	case "&":
		if _, ok := types.StripConst(a.typeOf(x.X)).(*types.FunctionPointer); ok {
			return a.rval(st, x.X)
		}
		lv, _ := a.lval(st, x.X)
		return Content{Pts: lv.Clone()}
	case "*":
		if isFunctionPointer(a.typeOf(x.X)) {
			return a.rval(st, x.X)
		}
		lv, _ := a.lval(st, x)
		return a.loadFrom(st, lv)
	case "++", "--":
		cur := a.rval(st, x.X).Clone()
		lv, weak := a.lval(st, x.X)
		delta := int64(1)
		if x.Op == "--" {
			delta = -1
		}
		next := Content{
			Pts:  cur.Pts.Clone(),
			Vals: cur.Vals.Map(ConstValue(delta), a.limit(), func(v, d int64) (int64, bool) { return v + d, true }),
		}
		a.store(st, lv, next, weak)
		if x.Postfix {
			return cur
		}
		return next
	case "-", "~", "!", "+":
		c := a.rval(st, x.X)
		op := x.Op
		return Content{Vals: c.Vals.Map(ConstValue(0), a.limit(), func(v, _ int64) (int64, bool) {
			switch op {
			case "-":
				return -v, true
			case "~":
				return ^v, true
			case "!":
				if v == 0 {
					return 1, true
				}
				return 0, true
			}
			return v, true
		})}
	case "sizeof":
		if v, ok := a.e.tr.EvalConst(a.fn.Members, x, nil); ok {
			return Content{Vals: ConstValue(v)}
		}
		return Content{Vals: UnknownValue()}
	case "delete":
		a.rval(st, x.X)
		return Content{}
	}
	return a.rval(st, x.X)
}

func (a *analyzer) binary(st *State, x *ast.BinaryExpr) Content {
	if x.Op == "," {
		a.rval(st, x.X)
		return a.rval(st, x.Y)
	}
	l := a.rval(st, x.X)
	r := a.rval(st, x.Y)
	if x.Op == "+" || x.Op == "-" {
		lp, rp := !l.Pts.IsEmpty(), !r.Pts.IsEmpty()
		switch {
		case lp && rp && x.Op == "-":
			return Content{Vals: UnknownValue()}
		case lp:
			return Content{Pts: l.Pts.Clone()}
		case rp && x.Op == "+":
			return Content{Pts: r.Pts.Clone()}
		}
	}
	op := x.Op
	return Content{Vals: l.Vals.Map(r.Vals, a.limit(), func(p, q int64) (int64, bool) {
		return typeres.BinaryConst(op, p, q)
	})}
}

func (a *analyzer) assign(st *State, x *ast.AssignExpr) Content {
	if x.Op == "=" {
		if rec := a.recordOf(a.typeOf(x.Lhs)); rec != nil {
			dst, weak := a.lval(st, x.Lhs)
			a.initRecordFrom(st, dst, rec, x.Rhs, weak)
			return Content{}
		}
		v := a.rval(st, x.Rhs).Clone()
		lv, weak := a.lval(st, x.Lhs)
		a.store(st, lv, v, weak)
		return v
	}
	cur := a.rval(st, x.Lhs)
	r := a.rval(st, x.Rhs)
	op := strings.TrimSuffix(x.Op, "=")
	next := Content{Vals: cur.Vals.Map(r.Vals, a.limit(), func(p, q int64) (int64, bool) {
		return typeres.BinaryConst(op, p, q)
	})}
	if op == "+" || op == "-" {
		next.Pts = cur.Pts.Clone()
	}
	lv, weak := a.lval(st, x.Lhs)
	a.store(st, lv, next, weak)
	return next
}

// declare initializes a local variable.
func (a *analyzer) declare(st *State, v *ast.VarDecl) {
	d := a.e.table.DeclOf(v)
	if d == nil {
		return
	}
	loc := a.e.locs.Var(d)
	t := a.declType(d)
	target := NewAliasSet(loc)
	weak := d.Static

	if rng, ok := a.rangeVars[v]; ok {
		a.declareRangeVar(st, loc, t, rng)
		return
	}
	switch {
	case isReference(t):
		if v.Init == nil {
			return
		}
		lv, _ := a.lval(st, v.Init)
		st.set(loc, Content{Pts: lv.Clone()})
	case isArray(t):
		if !weak {
			st.set(loc, Content{})
		}
		list, ok := v.Init.(*ast.InitListExpr)
		if !ok {
			if v.Init != nil {
				a.store(st, target, a.rval(st, v.Init), true)
			}
			return
		}
		elemRec := a.recordOf(types.Pointee(t))
		for _, el := range list.Elems {
			if elemRec != nil {
				a.initRecordFrom(st, target, elemRec, el, true)
			} else {
				a.store(st, target, a.rval(st, el), true)
			}
		}
	case a.recordOf(t) != nil:
		if v.Init != nil {
			a.initRecordFrom(st, target, a.recordOf(t), v.Init, weak)
		}
	default:
		if v.Init == nil {
			if !weak {
				st.set(loc, Content{})
			}
			return
		}
		a.store(st, target, a.rval(st, v.Init), weak)
	}
}

// declareRangeVar binds the variable of a range-based for loop to the
// elements of the range. Arrays keep all elements in one location.
func (a *analyzer) declareRangeVar(st *State, loc uint32, t types.Type, rng ast.Expr) {
	rt := a.typeOf(rng)
	var elems AliasSet
	switch {
	case isArray(rt):
		elems, _ = a.lval(st, rng)
	case types.Pointee(rt) != nil:
		elems = a.rval(st, rng).Pts.Clone()
	default:
		a.rval(st, rng)
		st.set(loc, Content{Pts: ExternalSet(), Vals: UnknownValue()})
		return
	}
	if isReference(t) {
		st.set(loc, Content{Pts: elems})
		return
	}
	st.set(loc, a.loadFrom(st, elems).Clone())
}

// initRecordFrom fills the fields of the records in dst from init: a
// braced list (positional or designated), another record object, or a
// constructor call.
func (a *analyzer) initRecordFrom(st *State, dst AliasSet, rec *scope.Declaration, init ast.Expr, weak bool) {
	switch x := init.(type) {
	case *ast.InitListExpr:
		fields := recordFields(rec)
		next := 0
		for i, el := range x.Elems {
			var f *scope.Declaration
			if i < len(x.Designators) && x.Designators[i] != "" {
				for j, cand := range fields {
					if cand.Name == x.Designators[i] {
						f, next = cand, j+1
						break
					}
				}
			} else if next < len(fields) {
				f = fields[next]
				next++
			}
			if f == nil {
				a.rval(st, el)
				continue
			}
			fdst := a.project(dst, f.Name)
			if sub := a.valueRecord(a.declType(f)); sub != nil {
				a.initRecordFrom(st, fdst, sub, el, weak)
				continue
			}
			a.store(st, fdst, a.rval(st, el), weak)
		}
	case *ast.CallExpr:
		if site := a.e.res.Calls[x]; site != nil && site.Target != nil && site.Target.IsCallable() {
			if site.Kind == callgraph.ConstructCall {
				a.construct(st, x, site.Target, dst)
				return
			}
		}
		a.rval(st, x)
	default:
		src, _ := a.lval(st, init)
		if src.IsEmpty() {
			a.rval(st, init)
			return
		}
		a.copyRecord(st, dst, src, rec, weak, 0)
	}
}

// copyRecord copies every field of src into dst, recursing into nested
// records.
func (a *analyzer) copyRecord(st *State, dst, src AliasSet, rec *scope.Declaration, weak bool, depth int) {
	if depth > maxDepth {
		return
	}
	for _, f := range recordFields(rec) {
		fd, fs := a.project(dst, f.Name), a.project(src, f.Name)
		if sub := a.valueRecord(a.declType(f)); sub != nil {
			a.copyRecord(st, fd, fs, sub, weak, depth+1)
			continue
		}
		a.store(st, fd, a.loadFrom(st, fs), weak)
	}
}

// recordFields lists the non-static fields of rec and its bases in
// declaration order, bases first.
func recordFields(rec *scope.Declaration) []*scope.Declaration {
	var out []*scope.Declaration
	visited := make(map[*scope.Declaration]bool)
	var walk func(r *scope.Declaration)
	walk = func(r *scope.Declaration) {
		if r == nil || visited[r] || r.Members == nil {
			return
		}
		visited[r] = true
		for _, b := range r.Bases {
			walk(b)
		}
		for _, name := range r.Members.Names() {
			for _, d := range r.Members.Local(name) {
				if d.Kind == scope.Variable && d.IsField {
					out = append(out, d)
				}
			}
		}
	}
	walk(rec)
	return out
}

func (a *analyzer) newExpr(st *State, x *ast.NewExpr) Content {
	heap := NewAliasSet(a.e.locs.Heap(x))
	ctor := a.e.res.Ref(x)
	switch {
	case ctor != nil && ctor.IsCallable():
		a.applyTargets(st, x, []*scope.Declaration{ctor}, heap, x.Args)
	case len(x.Args) == 1:
		a.store(st, heap, a.rval(st, x.Args[0]), true)
	default:
		for _, arg := range x.Args {
			a.rval(st, arg)
		}
	}
	return Content{Pts: heap}
}

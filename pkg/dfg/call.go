package dfg

import (
	"sort"
	"strings"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// argValue is one evaluated argument: its value and, for arguments bound to
// references or passed as records by value, the object it designates.
type argValue struct {
	val Content
	obj AliasSet
}

func (v argValue) pointees() AliasSet {
	if !v.obj.IsEmpty() {
		return v.obj
	}
	return v.val.Pts
}

// call evaluates a call expression and returns the content of its result.
// For functions returning references the result points to the referenced
// objects.
func (a *analyzer) call(st *State, x *ast.CallExpr) Content {
	site := a.e.res.Calls[x]
	if site == nil {
		a.rval(st, x.Fun)
		return a.evalUnknown(st, x.Args)
	}
	switch site.Kind {
	case callgraph.IndirectCall:
		if site.Target != nil && site.Target.IsCallable() {
			// operator() of a callable object
			return a.applyTargets(st, x, []*scope.Declaration{site.Target}, a.receiver(st, x, site), x.Args)
		}
		return a.indirect(st, x)
	case callgraph.UnresolvedCall:
		if m, ok := x.Fun.(*ast.MemberExpr); ok {
			a.memberBase(st, m)
		}
		return a.evalUnknown(st, x.Args)
	case callgraph.ConstructCall:
		if site.Target != nil && site.Target.IsCallable() {
			// a temporary: its fields are not tracked
			a.applyTargets(st, x, []*scope.Declaration{site.Target}, AliasSet{}, x.Args)
			return Content{}
		}
		var c Content
		for _, arg := range x.Args {
			c = a.rval(st, arg)
		}
		if len(x.Args) == 1 {
			return c
		}
		return Content{}
	}
	if site.Target == nil {
		return a.evalUnknown(st, x.Args)
	}
	targets := []*scope.Declaration{site.Target}
	if site.Dynamic {
		targets = append(targets, site.Overriders...)
	}
	return a.applyTargets(st, x, targets, a.receiver(st, x, site), x.Args)
}

func (a *analyzer) evalUnknown(st *State, args []ast.Expr) Content {
	for _, arg := range args {
		a.rval(st, arg)
	}
	return Content{Vals: UnknownValue()}
}

// construct runs constructor ctor on the objects of dst.
func (a *analyzer) construct(st *State, x *ast.CallExpr, ctor *scope.Declaration, dst AliasSet) {
	a.applyTargets(st, x, []*scope.Declaration{ctor}, dst, x.Args)
}

// receiver returns the objects `this` points to in the callee.
func (a *analyzer) receiver(st *State, x *ast.CallExpr, site *callgraph.CallSite) AliasSet {
	if m, ok := x.Fun.(*ast.MemberExpr); ok {
		base := a.memberBase(st, m)
		if !hasReceiver(site.Target) {
			return AliasSet{}
		}
		return base
	}
	if !hasReceiver(site.Target) {
		return AliasSet{}
	}
	if id, ok := x.Fun.(*ast.Ident); ok {
		if d := a.e.res.Ref(id); d != nil && d.Kind == scope.Variable {
			lv, _ := a.lval(st, id)
			return lv
		}
	}
	if a.method == nil {
		return AliasSet{}
	}
	return a.load(st, a.e.locs.This(a.method)).Pts
}

// returnsReference reports whether the call yields a reference.
func (a *analyzer) returnsReference(x *ast.CallExpr) bool {
	site := a.e.res.Calls[x]
	if site == nil || site.Target == nil || !site.Target.IsCallable() {
		return false
	}
	if site.Kind == callgraph.ConstructCall || site.Kind == callgraph.UnresolvedCall {
		return false
	}
	a.e.tr.DeclType(site.Target)
	return isReference(site.Target.Result)
}

// indirect resolves a call through a function pointer with the function
// locations the callee expression may hold.
func (a *analyzer) indirect(st *State, x *ast.CallExpr) Content {
	callee := a.rval(st, x.Fun)
	var targets []*scope.Declaration
	for _, id := range callee.Pts.IDs() {
		if loc := a.e.locs.Get(id); loc.Kind == LocFunc && loc.Decl != nil {
			targets = append(targets, loc.Decl)
		}
	}
	external := callee.Pts.External || len(targets) == 0
	a.noteIndirect(x, targets, external)

	if len(targets) == 0 {
		args := a.evalArgs(st, nil, x.Args)
		return a.applyUnknown(st, args)
	}
	c := a.applyTargets(st, x, targets, AliasSet{}, x.Args)
	if external {
		c.Pts.External = true
		c.Vals.Unknown = true
	}
	return c
}

func (a *analyzer) noteIndirect(x *ast.CallExpr, targets []*scope.Declaration, external bool) {
	cur, seen := a.out.IndirectTargets[x]
	if !seen && !a.out.External[x] {
		a.out.indirectOrder = append(a.out.indirectOrder, x)
	}
	for _, t := range targets {
		dup := false
		for _, c := range cur {
			if c == t {
				dup = true
				break
			}
		}
		if !dup {
			cur = append(cur, t)
		}
	}
	sort.SliceStable(cur, func(i, j int) bool { return cur[i].Seq < cur[j].Seq })
	a.out.IndirectTargets[x] = cur
	if external {
		a.out.External[x] = true
	}
}

// evalArgs evaluates the arguments of a call to fn. Reference parameters
// bind the designated object; record parameters passed by value also
// remember the source object.
func (a *analyzer) evalArgs(st *State, fn *scope.Declaration, args []ast.Expr) []argValue {
	out := make([]argValue, len(args))
	for i, arg := range args {
		var pt types.Type
		if fn != nil && i < len(fn.Params) {
			pt = a.e.tr.Canonical(fn.Params[i].Type)
		}
		switch {
		case pt != nil && isReference(pt):
			lv, _ := a.lval(st, arg)
			out[i] = argValue{val: Content{Pts: lv.Clone()}, obj: lv.Clone()}
		case pt != nil && a.recordOf(pt) != nil:
			lv, _ := a.lval(st, arg)
			if lv.IsEmpty() {
				out[i] = argValue{val: a.rval(st, arg).Clone()}
			} else {
				out[i] = argValue{obj: lv.Clone()}
			}
		default:
			out[i] = argValue{val: a.rval(st, arg).Clone()}
		}
	}
	return out
}

// applyTargets applies the summaries of every possible callee and joins the
// outcomes. With more than one callee no store replaces old content.
func (a *analyzer) applyTargets(st *State, site ast.Node, targets []*scope.Declaration, recv AliasSet, args []ast.Expr) Content {
	if len(targets) == 0 {
		return a.evalUnknown(st, args)
	}
	e := a.e
	e.tr.DeclType(targets[0])
	argv := a.evalArgs(st, targets[0], args)
	weak := len(targets) > 1
	pre := st
	if weak {
		pre = st.clone()
	}
	var out Content
	for _, t := range targets {
		if lf, ok := a.libraryFor(t); ok {
			out.Union(a.applyLibrary(st, site, lf, argv), a.limit())
			continue
		}
		sum := a.summaryFor(t)
		if sum == nil {
			out.Union(a.applyUnknown(st, argv), a.limit())
			continue
		}
		out.Union(a.applySummary(st, pre, sum, recv, argv, weak), a.limit())
	}
	return out
}

func (a *analyzer) libraryFor(t *scope.Declaration) (*LibraryFunction, bool) {
	if t.Body != nil || t.Lambda != nil {
		return nil, false
	}
	if lf, ok := a.e.lib.Lookup(t.QualifiedName); ok {
		return lf, true
	}
	return a.e.lib.Lookup(t.Name)
}

// summaryFor returns the summary a call to t applies: the published one when
// t was analyzed at a lower level, the conservative one for functions still
// under analysis (recursion), nil for functions without a body.
func (a *analyzer) summaryFor(t *scope.Declaration) *Summary {
	owner := summaryOwner(t)
	if s, ok := a.e.summaries.before(owner, a.level); ok {
		return s
	}
	if owner.Body != nil {
		return ConservativeSummary(owner)
	}
	return nil
}

// applyUnknown models a call to a function with no body and no library
// summary under the configured policy.
func (a *analyzer) applyUnknown(st *State, argv []argValue) Content {
	out := Content{Pts: ExternalSet(), Vals: UnknownValue()}
	if a.e.policy == PolicyPure {
		return out
	}
	ext := Content{Pts: ExternalSet(), Vals: UnknownValue()}
	for _, v := range argv {
		p := v.pointees()
		if p.IsEmpty() {
			continue
		}
		a.store(st, p, ext, true)
		out.Pts.Union(p)
	}
	return out
}

// applySummary applies sum at a call site. pre is the caller state before
// the call; every store is computed from it and then written to st.
func (a *analyzer) applySummary(st, pre *State, sum *Summary, recv AliasSet, argv []argValue, weak bool) Content {
	if sum.Conservative || sum.effectsOnly {
		return a.applyEffects(st, sum, recv, argv)
	}
	sub := &substitution{a: a, st: pre, fn: sum.Func, recv: recv, argv: argv, params: paramIndex(sum.Func), memo: make(map[uint32]AliasSet)}
	type write struct {
		targets AliasSet
		val     Content
	}
	writes := make([]write, 0, len(sum.Stores))
	for _, s := range sum.Stores {
		targets := sub.set(NewAliasSet(s.Target))
		if targets.IsEmpty() {
			continue
		}
		writes = append(writes, write{targets: targets, val: sub.content(s.Value)})
	}
	for _, w := range writes {
		a.store(st, w.targets, w.val, weak)
	}
	ret := sub.content(sum.Returns)
	if sum.Approximate {
		ret = ret.withApproximate()
	}
	return ret
}

// slotPointees returns the caller objects behind slot i.
func slotPointees(recv AliasSet, argv []argValue, i int) AliasSet {
	if i == ReceiverSlot {
		return recv
	}
	if i < 0 || i >= len(argv) {
		return AliasSet{}
	}
	return argv[i].pointees()
}

// applyEffects applies the slot effects of a summary that carries no
// stores: written slots receive external data and the pointers of the slots
// they may alias.
func (a *analyzer) applyEffects(st *State, sum *Summary, recv AliasSet, argv []argValue) Content {
	slots := make([]*ParamEffect, 0, len(sum.Params)+1)
	if sum.Receiver != nil {
		slots = append(slots, sum.Receiver)
	}
	for i := range sum.Params {
		slots = append(slots, &sum.Params[i])
	}
	var out Content
	if sum.Returns.Pts.External || sum.Conservative {
		out = Content{Pts: ExternalSet(), Vals: UnknownValue()}
	} else {
		out = Content{Vals: UnknownValue()}
	}
	ext := Content{Pts: ExternalSet(), Vals: UnknownValue()}
	for _, eff := range slots {
		p := slotPointees(recv, argv, eff.Index)
		if eff.MayWrite && !p.IsEmpty() {
			val := ext.Clone()
			for _, j := range eff.Aliases {
				val.Pts.Union(slotPointees(recv, argv, j))
			}
			a.store(st, p, val, true)
		}
		if eff.FlowsToReturn {
			out.Pts.Union(p)
		}
	}
	if sum.Approximate {
		out = out.withApproximate()
	}
	return out
}

// applyLibrary applies a library summary.
func (a *analyzer) applyLibrary(st *State, site ast.Node, lf *LibraryFunction, argv []argValue) Content {
	arg := func(i int) argValue {
		if i < 0 || i >= len(argv) {
			return argValue{}
		}
		return argv[i]
	}
	var ret Content
	switch lf.Returns {
	case ReturnHeap:
		if site != nil {
			ret.Pts = NewAliasSet(a.e.locs.Heap(site))
		}
	case ReturnExternal:
		ret = Content{Pts: ExternalSet(), Vals: UnknownValue()}
	case ReturnNone, "":
		ret = Content{Vals: UnknownValue()}
	default:
		if i, ok := argIndex(lf.Returns); ok {
			ret = arg(i).val.Clone()
		}
	}
	if lf.DynamicSymbolArg != nil {
		ret = a.dynamicSymbol(st, arg(*lf.DynamicSymbolArg).val)
	}
	if lf.Pure {
		return ret
	}
	for _, eff := range lf.Effects {
		switch {
		case eff.Copy != nil:
			from, _ := argIndex(eff.Copy.From)
			src := a.loadFrom(st, arg(from).val.Pts).Clone()
			var dst AliasSet
			if eff.Copy.To == "ret" {
				dst = ret.Pts
			} else if i, ok := argIndex(eff.Copy.To); ok {
				dst = arg(i).val.Pts
			}
			a.store(st, dst, src, true)
		case eff.WriteExternal != nil:
			i, _ := argIndex(eff.WriteExternal.To)
			a.store(st, arg(i).val.Pts, Content{Pts: ExternalSet(), Vals: UnknownValue()}, true)
		}
	}
	return ret
}

// dynamicSymbol resolves a symbol looked up by name at run time. A constant
// name of a function visible here yields that function; anything else is
// external code.
func (a *analyzer) dynamicSymbol(st *State, name Content) Content {
	external := Content{Pts: ExternalSet(), Vals: UnknownValue()}
	ids := name.Pts.IDs()
	if len(ids) != 1 || name.Pts.External {
		return external
	}
	loc := a.e.locs.Get(ids[0])
	lit, ok := loc.Site.(*ast.Literal)
	if loc.Kind != LocString || !ok {
		return external
	}
	sym := strings.Trim(lit.Value, `"`)
	var found *scope.Declaration
	if a.fn.Members != nil {
		_, decls := a.fn.Members.Lookup(sym)
		for _, d := range decls {
			if d.IsCallable() {
				found = d
				break
			}
		}
	}
	if found == nil {
		for _, d := range a.e.table.Qualified(sym) {
			if d.IsCallable() {
				found = d
				break
			}
		}
	}
	if found == nil {
		return external
	}
	return Content{Pts: NewAliasSet(a.e.locs.Func(found))}
}

// substitution rewrites callee locations into caller locations.
type substitution struct {
	a      *analyzer
	st     *State
	fn     *scope.Declaration
	recv   AliasSet
	argv   []argValue
	params map[*scope.Declaration]int
	memo   map[uint32]AliasSet
}

func (s *substitution) set(in AliasSet) AliasSet {
	out := AliasSet{External: in.External, Approximate: in.Approximate}
	for _, id := range in.IDs() {
		out.Union(s.loc(id))
	}
	return out
}

func (s *substitution) loc(id uint32) AliasSet {
	if r, ok := s.memo[id]; ok {
		return r
	}
	// cycles cannot occur: parents always have smaller depth
	r := s.compute(id)
	s.memo[id] = r
	return r
}

func (s *substitution) compute(id uint32) AliasSet {
	a := s.a
	locs := a.e.locs
	loc := locs.Get(id)
	switch loc.Kind {
	case LocVar:
		if i, ok := s.params[loc.Decl]; ok {
			if i < len(s.argv) {
				return s.argv[i].obj.Clone()
			}
			return AliasSet{}
		}
		if isLocalOf(loc.Decl, s.fn) {
			return AliasSet{}
		}
		return NewAliasSet(id)
	case LocThis:
		return AliasSet{}
	case LocDeref:
		parent := locs.Get(loc.Parent)
		if parent.Kind == LocVar {
			if i, ok := s.params[parent.Decl]; ok {
				if i < len(s.argv) {
					return s.argv[i].val.Pts.Clone()
				}
				return AliasSet{}
			}
		}
		if parent.Kind == LocThis && parent.Decl == s.fn {
			return s.recv.Clone()
		}
		return a.loadFrom(s.st, s.loc(loc.Parent)).Pts.Clone()
	case LocField:
		return a.project(s.loc(loc.Parent), loc.Field)
	}
	return NewAliasSet(id)
}

func (s *substitution) content(c Content) Content {
	out := Content{Pts: s.set(c.Pts), Vals: ValueSet{Unknown: c.Vals.Unknown}}
	out.Vals.Consts = append(out.Vals.Consts, c.Vals.Consts...)
	for _, d := range c.Vals.Syms {
		i, ok := s.params[d]
		if !ok || i >= len(s.argv) {
			out.Vals.Unknown = true
			continue
		}
		out.Vals.Union(s.argv[i].val.Vals, s.a.limit())
	}
	if out.Vals.Unknown {
		out.Vals = UnknownValue()
	}
	return out
}

// isLocalOf reports whether d is a parameter or non-static local of fn.
func isLocalOf(d, fn *scope.Declaration) bool {
	if d == nil || d.Kind != scope.Variable || d.Static || d.IsField || d.Scope == nil {
		return false
	}
	if d.Scope.Kind != scope.Block && d.Scope.Kind != scope.FunctionScope {
		return false
	}
	f := d.Scope.EnclosingFunction()
	return f != nil && f.Owner == fn
}

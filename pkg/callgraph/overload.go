package callgraph

import (
	"sort"

	"github.com/l3aro/go-flow-query/internal/metrics"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// call resolves a call expression and returns its result type.
func (w *walker) call(s *scope.Scope, c *ast.CallExpr) types.Type {
	site := &CallSite{Call: c, Caller: w.fn, Scope: s}
	var result types.Type

	switch fun := c.Fun.(type) {
	case *ast.Ident:
		site.ArgTypes = w.args(s, c.Args)
		result = w.identCall(s, fun, site)
	case *ast.MemberExpr:
		site.Receiver = fun.X
		rec, known := w.receiver(s, fun)
		site.ArgTypes = w.args(s, c.Args)
		result = w.memberCall(fun, rec, known, site)
	default:
		ft := w.expr(s, c.Fun)
		site.ArgTypes = w.args(s, c.Args)
		site.Kind = IndirectCall
		result = resultOf(ft)
	}

	if site.Target != nil && site.Target.Kind == scope.Method && site.Target.Virtual && site.Kind == StaticCall {
		site.Kind = VirtualCall
		site.Dynamic = true
		site.Overriders = w.r.tr.Overriders(site.Target)
	}
	w.r.res.Calls[c] = site
	w.r.res.Graph.AddSite(site)
	metrics.CallsResolved.WithLabelValues(string(site.Kind)).Inc()
	if result == nil {
		result = &types.Unknown{}
	}
	return result
}

// resultOf returns the result type of calling a value of type t.
func resultOf(t types.Type) types.Type {
	switch x := types.StripConst(types.StripReference(t)).(type) {
	case *types.FunctionPointer:
		return x.Result
	case *types.Pointer:
		if fp, ok := types.StripConst(x.Elem).(*types.FunctionPointer); ok {
			return fp.Result
		}
	}
	return &types.Unknown{}
}

func (w *walker) explicitArgs(s *scope.Scope, c *ast.CallExpr) []types.Type {
	if len(c.TemplateArgs) == 0 {
		return nil
	}
	return w.r.tr.TemplateArgs(s, c.TemplateArgs, w.seq)
}

func (w *walker) identCall(s *scope.Scope, fun *ast.Ident, site *CallSite) types.Type {
	c := site.Call
	if !fun.IsQualified() {
		if p, ok := types.LookupBuiltin(fun.Name); ok {
			// functional cast to a builtin type
			site.Kind = ConstructCall
			w.r.res.Types[fun] = p
			return p
		}
	}

	level, decls := s.LookupQualified(fun.Qualifier, fun.Name, w.lookupOpts()...)
	if len(decls) == 0 {
		w.r.res.Types[fun] = &types.Unknown{Name: fun.Name}
		return w.inferFree(s, fun, nil, site)
	}
	w.r.res.Refs[fun] = decls

	first := decls[0]
	switch {
	case first.Kind == scope.Variable:
		ft := w.valueType(first)
		w.r.res.Types[fun] = ft
		site.Kind = IndirectCall
		if rec := w.knownRecord(ft); rec != nil {
			// callable object: operator() is a member call
			if op := w.pickMember(rec, "operator()", site); op != nil {
				return op
			}
		}
		return resultOf(ft)
	case first.IsType():
		t := w.r.tr.Canonical(w.r.tr.DeclType(first))
		w.r.res.Types[fun] = t
		site.Kind = ConstructCall
		site.Target = first
		if rec := w.knownRecord(t); rec != nil {
			site.Target = rec
			if ctor := w.constructor(rec, site.ArgTypes); ctor != nil {
				site.Target = ctor
			}
		}
		return t
	}

	w.r.res.Types[fun] = w.valueType(first)
	best, ok := w.selectOverload(decls, site, w.explicitArgs(s, c), c.ExplicitTemplate, nil)
	if ok {
		site.Kind = StaticCall
		if best.Inferred {
			site.Kind = InferredCall
		}
		site.Target = best
		return w.resultType(best, nil)
	}
	return w.inferFree(s, fun, level, site)
}

// inferFree synthesizes a function for a plain or qualified call with no
// viable candidate. level is the scope where the failed overload set was
// found, nil when the name was not found at all.
func (w *walker) inferFree(s *scope.Scope, fun *ast.Ident, level *scope.Scope, site *CallSite) types.Type {
	target := level
	if target == nil {
		target = w.r.tr.InferScopePath(s, fun.Qualifier)
	}
	if target.Kind == scope.Block || target.Kind == scope.FunctionScope {
		target = target.EnclosingNamespace()
	}
	if target.Kind == scope.RecordScope {
		if target.Owner == nil || target.Owner.Inferred {
			site.Kind = UnresolvedCall
			return &types.Unknown{Name: fun.Name}
		}
		return w.inferMember(target.Owner, fun.Name, site)
	}
	if !w.r.inferUnresolved {
		site.Kind = UnresolvedCall
		w.r.diags.Report(diag.UnresolvedSymbol, site.Call.Span(), "no viable function for call to %s%s", ast.ExprString(fun), types.Signature(inferredParams(site.ArgTypes), false))
		return &types.Unknown{Name: fun.Name}
	}
	d := w.r.infer.InferFunction(target, fun.Name, inferredParams(site.ArgTypes), nil)
	w.r.res.Refs[fun] = append(w.r.res.Refs[fun], d)
	w.r.diags.Report(diag.UnresolvedSymbol, site.Call.Span(), "no viable function for call to %s, inferred %s", ast.ExprString(fun), d.String())
	site.Kind = InferredCall
	site.Target = d
	return d.Result
}

func (w *walker) memberCall(fun *ast.MemberExpr, rec *scope.Declaration, known bool, site *CallSite) types.Type {
	if !known {
		// nothing is fabricated on a record that is itself unknown
		site.Kind = UnresolvedCall
		w.r.res.Types[fun] = &types.Unknown{Name: fun.Name}
		return &types.Unknown{Name: fun.Name}
	}
	members := scope.CollectMembers(rec, fun.Name)
	if len(members) > 0 {
		w.r.res.Refs[fun] = members
		w.r.res.Types[fun] = w.memberType(rec, members[0])
		if !members[0].IsCallable() {
			site.Kind = IndirectCall
			return resultOf(w.memberType(rec, members[0]))
		}
	}
	if r := w.pickMember(rec, fun.Name, site); r != nil {
		return r
	}
	return w.inferMember(rec, fun.Name, site)
}

// pickMember selects among the methods name of rec and fills site on
// success. It returns nil when nothing is viable.
func (w *walker) pickMember(rec *scope.Declaration, name string, site *CallSite) types.Type {
	members := scope.CollectMembers(rec, name)
	if len(members) == 0 {
		return nil
	}
	var subst []types.Type
	if rec.Template != nil {
		subst = rec.TemplateArgs
	}
	c := site.Call
	best, ok := w.selectOverload(members, site, w.explicitArgs(site.Scope, c), c.ExplicitTemplate, subst)
	if !ok {
		return nil
	}
	site.Kind = StaticCall
	if best.Inferred {
		site.Kind = InferredCall
	}
	site.Target = best
	return w.resultType(best, subst)
}

func (w *walker) inferMember(rec *scope.Declaration, name string, site *CallSite) types.Type {
	if rec.Inferred || rec.Members == nil || !w.r.inferUnresolved {
		site.Kind = UnresolvedCall
		return &types.Unknown{Name: name}
	}
	d := w.r.infer.InferMethod(rec.Members, name, inferredParams(site.ArgTypes), nil)
	w.r.diags.Report(diag.UnresolvedSymbol, site.Call.Span(), "no viable method %s::%s, inferred %s", rec.QualifiedName, name, d.String())
	site.Kind = InferredCall
	site.Target = d
	return d.Result
}

func (w *walker) resultType(d *scope.Declaration, subst []types.Type) types.Type {
	w.r.tr.DeclType(d)
	t := d.Result
	if t == nil {
		return &types.Unknown{}
	}
	if subst != nil {
		t = types.Substitute(t, subst)
	}
	return w.r.tr.Canonical(t)
}

// constructor selects the constructor of rec matching args, nil when the
// record declares none or none is viable.
func (w *walker) constructor(rec *scope.Declaration, args []types.Type) *scope.Declaration {
	if rec.Members == nil {
		return nil
	}
	name := rec.Name
	if rec.Template != nil {
		name = rec.Template.Name
	}
	ctors := rec.Members.Local(name)
	if len(ctors) == 0 {
		return nil
	}
	site := &CallSite{ArgTypes: args}
	var subst []types.Type
	if rec.Template != nil {
		subst = rec.TemplateArgs
	}
	best, ok := w.selectOverload(ctors, site, nil, false, subst)
	if !ok {
		return nil
	}
	return best
}

// inferredParams shapes the parameter list of an inferred declaration after
// the argument types: by-value adjustments, arrays decay to pointers.
func inferredParams(args []types.Type) []types.Type {
	out := make([]types.Type, len(args))
	for i, a := range args {
		out[i] = decayPointer(a)
		if out[i] == nil {
			out[i] = &types.Unknown{}
		}
	}
	return out
}

type candidate struct {
	decl     *scope.Declaration
	worst    types.Rank
	sum      int
	template bool
}

func (a candidate) better(b candidate) bool {
	if a.worst != b.worst {
		return a.worst < b.worst
	}
	if a.sum != b.sum {
		return a.sum < b.sum
	}
	if a.template != b.template {
		return !a.template
	}
	return a.decl.Seq < b.decl.Seq
}

func (a candidate) ties(b candidate) bool {
	return a.worst == b.worst && a.sum == b.sum && a.template == b.template
}

// selectOverload filters decls by arity, deduces and instantiates templates,
// ranks every argument and returns the best candidate. A non-template
// candidate beats a template with the same ranks. With template-id syntax
// viable templates are preferred, and when none is viable the non-template
// overloads are considered instead. Remaining ties go to the earliest
// declaration and are reported.
func (w *walker) selectOverload(decls []*scope.Declaration, site *CallSite, explicit []types.Type, explicitSyntax bool, subst []types.Type) (*scope.Declaration, bool) {
	var viable []candidate
	for _, d := range decls {
		if !d.IsCallable() || !d.AcceptsArgs(len(site.ArgTypes)) {
			continue
		}
		target := d
		isTemplate := d.IsTemplate()
		if isTemplate {
			args, ok := w.r.tr.Deduce(d, explicit, site.ArgTypes)
			if !ok {
				continue
			}
			inst, err := w.r.tr.Instantiate(d, args)
			if err != nil {
				continue
			}
			target = inst
		}
		cand, ok := w.rank(target, site.ArgTypes, subst)
		if !ok {
			continue
		}
		cand.template = isTemplate
		viable = append(viable, cand)
	}
	if len(viable) == 0 {
		return nil, false
	}

	if explicitSyntax {
		var templates []candidate
		for _, c := range viable {
			if c.template {
				templates = append(templates, c)
			}
		}
		if len(templates) > 0 {
			viable = templates
		}
	}

	sort.SliceStable(viable, func(i, j int) bool { return viable[i].better(viable[j]) })
	best := viable[0]
	var tied []*scope.Declaration
	for _, c := range viable[1:] {
		if best.ties(c) {
			tied = append(tied, c.decl)
		}
	}
	if len(tied) > 0 {
		site.Tied = tied
		metrics.AmbiguousOverloads.Inc()
		span := ast.Span{}
		if site.Call != nil {
			span = site.Call.Span()
		}
		w.r.diags.Report(diag.AmbiguousOverload, span, "ambiguous call to %s%s, chose %s", best.decl.QualifiedName, types.Signature(site.ArgTypes, false), best.decl.String())
		w.r.logger.Warn("ambiguous overload", "target", best.decl.String(), "candidates", len(tied)+1)
	}
	return best.decl, true
}

// rank scores one candidate; false when an argument does not convert.
func (w *walker) rank(d *scope.Declaration, args []types.Type, subst []types.Type) (candidate, bool) {
	w.r.tr.DeclType(d)
	cand := candidate{decl: d}
	for i, a := range args {
		r := types.RankFallback
		if i < len(d.Params) {
			pt := d.Params[i].Type
			if subst != nil {
				pt = types.Substitute(pt, subst)
			}
			r = w.r.conv.Rank(w.r.tr.Canonical(pt), w.r.tr.Canonical(a))
		}
		if r == types.RankNone {
			return cand, false
		}
		if r > cand.worst {
			cand.worst = r
		}
		cand.sum += int(r)
	}
	return cand, true
}

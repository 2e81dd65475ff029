package callgraph

import (
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// expr computes and records the type of e, resolving the names and calls in
// it. Lambda bodies are walked separately as functions of their own.
func (w *walker) expr(s *scope.Scope, e ast.Expr) types.Type {
	if e == nil {
		return &types.Unknown{}
	}
	t := w.typeExpr(s, e)
	if t == nil {
		t = &types.Unknown{}
	}
	w.r.res.Types[e] = t
	return t
}

func (w *walker) typeExpr(s *scope.Scope, e ast.Expr) types.Type {
	tr := w.r.tr
	switch x := e.(type) {
	case *ast.Ident:
		return w.ident(s, x)
	case *ast.Literal:
		return types.LiteralType(x)
	case *ast.CallExpr:
		return w.call(s, x)
	case *ast.MemberExpr:
		return w.member(s, x)
	case *ast.UnaryExpr:
		return w.unary(s, x)
	case *ast.BinaryExpr:
		return w.binary(s, x)
	case *ast.AssignExpr:
		lt := w.expr(s, x.Lhs)
		w.expr(s, x.Rhs)
		return lt
	case *ast.SubscriptExpr:
		t := w.expr(s, x.X)
		w.expr(s, x.Index)
		if el := types.Pointee(t); el != nil {
			return el
		}
		return &types.Unknown{}
	case *ast.CastExpr:
		w.expr(s, x.X)
		return tr.Canonical(tr.ResolveRefAt(s, x.Type, w.seq))
	case *ast.NewExpr:
		t := tr.Canonical(tr.ResolveRefAt(s, x.Type, w.seq))
		args := w.args(s, x.Args)
		if rec := w.knownRecord(t); rec != nil {
			if ctor := w.constructor(rec, args); ctor != nil {
				w.r.res.Refs[x] = []*scope.Declaration{ctor}
			}
		}
		return &types.Pointer{Elem: t}
	case *ast.ConditionalExpr:
		w.expr(s, x.Cond)
		a := w.expr(s, x.Then)
		b := w.expr(s, x.Else)
		if types.IsArithmetic(a) && types.IsArithmetic(b) {
			return types.CommonArithmetic(a, b)
		}
		if types.IsUnknown(a) {
			return b
		}
		return a
	case *ast.InitListExpr:
		for _, el := range x.Elems {
			w.expr(s, el)
		}
		return &types.Unknown{Name: "{...}"}
	case *ast.LambdaExpr:
		return w.lambda(s, x)
	case *ast.ThisExpr:
		if w.this == nil {
			return &types.Unknown{Name: "this"}
		}
		return &types.Pointer{Elem: tr.DeclType(w.this)}
	}
	return &types.Unknown{}
}

func (w *walker) args(s *scope.Scope, args []ast.Expr) []types.Type {
	out := make([]types.Type, len(args))
	for i, a := range args {
		out[i] = w.expr(s, a)
	}
	return out
}

func (w *walker) ident(s *scope.Scope, x *ast.Ident) types.Type {
	_, decls := s.LookupQualified(x.Qualifier, x.Name, w.lookupOpts()...)
	if len(decls) == 0 {
		w.r.diags.Report(diag.UnresolvedSymbol, x.Span(), "unresolved name %s", ast.ExprString(x))
		return &types.Unknown{Name: x.Name}
	}
	w.r.res.Refs[x] = decls
	return w.valueType(decls[0])
}

// valueType is the type of an expression naming d. References denote their
// referent.
func (w *walker) valueType(d *scope.Declaration) types.Type {
	t := w.r.tr.Canonical(w.r.tr.DeclType(d))
	if d.Kind == scope.Variable {
		return types.StripReference(t)
	}
	return t
}

// receiver returns the record of a member expression's object, or false when
// the object's record is unknown or inferred.
func (w *walker) receiver(s *scope.Scope, x *ast.MemberExpr) (*scope.Declaration, bool) {
	bt := w.expr(s, x.X)
	if x.Arrow {
		bt = types.Pointee(bt)
	}
	rec := w.knownRecord(bt)
	return rec, rec != nil
}

// knownRecord returns the declaration of the record type t, nil when t is not
// a record or is a record nothing declares.
func (w *walker) knownRecord(t types.Type) *scope.Declaration {
	rt := types.RecordOf(t)
	if rt == nil || rt.Inferred {
		return nil
	}
	d := w.r.table.RecordDecl(rt.String())
	if d == nil || d.Inferred {
		return nil
	}
	return d
}

func (w *walker) member(s *scope.Scope, x *ast.MemberExpr) types.Type {
	rec, ok := w.receiver(s, x)
	if !ok {
		return &types.Unknown{Name: x.Name}
	}
	members := scope.CollectMembers(rec, x.Name)
	if len(members) == 0 {
		return &types.Unknown{Name: x.Name}
	}
	w.r.res.Refs[x] = members
	return w.memberType(rec, members[0])
}

// memberType is the type of member m accessed through rec, with template
// parameters of an instantiated record replaced by its arguments.
func (w *walker) memberType(rec, m *scope.Declaration) types.Type {
	t := w.valueType(m)
	if rec.Template != nil {
		t = w.r.tr.Canonical(types.Substitute(t, rec.TemplateArgs))
	}
	return t
}

func (w *walker) unary(s *scope.Scope, x *ast.UnaryExpr) types.Type {
	if x.Op == "sizeof" {
		// unevaluated operand, possibly a type name
		return types.ULong
	}
	t := w.expr(s, x.X)
	switch x.Op {
	case "&":
		if fp, ok := t.(*types.FunctionPointer); ok {
			return fp
		}
		return &types.Pointer{Elem: t}
	case "*":
		if fp, ok := t.(*types.FunctionPointer); ok {
			return fp
		}
		if el := types.Pointee(t); el != nil {
			return el
		}
		return &types.Unknown{}
	case "!":
		return types.Bool
	case "-", "+", "~":
		if types.IsArithmetic(t) {
			return types.Promote(t)
		}
		return t
	case "delete":
		return types.Void
	}
	return t
}

func (w *walker) binary(s *scope.Scope, x *ast.BinaryExpr) types.Type {
	a := w.expr(s, x.X)
	b := w.expr(s, x.Y)
	switch x.Op {
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
		return types.Bool
	case ",":
		return b
	case "<<", ">>":
		if types.IsArithmetic(a) {
			return types.Promote(a)
		}
		return a
	case "+", "-":
		pa, pb := types.Pointee(a) != nil, types.Pointee(b) != nil
		switch {
		case pa && pb && x.Op == "-":
			return types.Long
		case pa:
			return decayPointer(a)
		case pb && x.Op == "+":
			return decayPointer(b)
		}
	}
	if types.IsArithmetic(a) && types.IsArithmetic(b) {
		return types.CommonArithmetic(a, b)
	}
	return a
}

func decayPointer(t types.Type) types.Type {
	t = types.StripConst(types.StripReference(t))
	if arr, ok := t.(*types.Array); ok {
		return &types.Pointer{Elem: arr.Elem}
	}
	return t
}

func (w *walker) lambda(s *scope.Scope, x *ast.LambdaExpr) types.Type {
	d := w.r.table.DeclOf(x)
	if d == nil {
		return &types.Unknown{Name: "lambda"}
	}
	w.r.res.Refs[x] = []*scope.Declaration{d}
	var caps []Capture
	for _, c := range x.Captures {
		if c.Name == "this" {
			continue
		}
		if c.Name == "" {
			// default capture mode
			caps = append(caps, Capture{ByRef: c.ByRef})
			continue
		}
		_, decls := s.Lookup(c.Name, w.lookupOpts()...)
		if len(decls) == 0 || decls[0].Kind != scope.Variable {
			w.r.diags.Report(diag.UnresolvedSymbol, x.Span(), "unresolved capture %s", c.Name)
			continue
		}
		caps = append(caps, Capture{Decl: decls[0], ByRef: c.ByRef})
	}
	w.r.res.Captures[x] = caps
	return w.r.tr.Canonical(w.r.tr.DeclType(d))
}

package typeres

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// paramScope is the scope holding a template's parameters.
func paramScope(tmpl *scope.Declaration) *scope.Scope {
	if tmpl.Members != nil {
		return tmpl.Members
	}
	return tmpl.Scope
}

// bindArgs completes explicit template arguments with the declared defaults.
// Defaults are evaluated left to right so a default can use any earlier
// parameter, explicit or defaulted.
func (r *Resolver) bindArgs(tmpl *scope.Declaration, args []types.Type) ([]types.Type, error) {
	params := tmpl.TemplateParams
	packed := len(params) > 0 && params[len(params)-1].Pack
	if len(args) > len(params) && !packed {
		return nil, fmt.Errorf("%s takes %d template arguments, got %d: %w", tmpl.QualifiedName, len(params), len(args), ErrTemplateArgs)
	}
	bound := make([]types.Type, len(params))
	for i := range params {
		if i < len(args) && args[i] != nil {
			bound[i] = r.Canonical(args[i])
		}
	}
	ps := paramScope(tmpl)
	for i, p := range params {
		if bound[i] != nil {
			continue
		}
		switch {
		case p.Pack:
			bound[i] = &types.Unknown{Name: p.Name + "..."}
		case p.DefaultType != nil:
			bound[i] = r.Canonical(types.Substitute(r.ResolveRef(ps, p.DefaultType), bound))
		case p.DefaultValue != nil:
			v, ok := r.EvalConst(ps, p.DefaultValue, bound)
			if !ok {
				return nil, fmt.Errorf("default of %s in %s is not a constant: %w", p.Name, tmpl.QualifiedName, ErrTemplateArgs)
			}
			bound[i] = &types.Constant{Value: v}
		default:
			return nil, fmt.Errorf("no argument for %s in %s: %w", p.Name, tmpl.QualifiedName, ErrTemplateArgs)
		}
	}
	return bound, nil
}

// Instantiate returns the instantiation of a function or record template for
// the given arguments. Missing trailing arguments take their defaults.
// Instantiations are memoized: equal argument lists yield the identical
// declaration.
func (r *Resolver) Instantiate(tmpl *scope.Declaration, args []types.Type) (*scope.Declaration, error) {
	if !tmpl.IsTemplate() {
		return tmpl, nil
	}
	bound, err := r.bindArgs(tmpl, args)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d<%s>", tmpl.Seq, typeList(bound))

	r.mu.Lock()
	if inst, ok := r.instances[key]; ok {
		r.mu.Unlock()
		return inst, nil
	}
	r.mu.Unlock()

	var inst *scope.Declaration
	switch tmpl.Kind {
	case scope.Record:
		inst = r.instantiateRecord(tmpl, bound)
	case scope.Function, scope.Method:
		inst = r.instantiateFunction(tmpl, bound)
	default:
		return nil, fmt.Errorf("%s is not a function or record template: %w", tmpl.QualifiedName, ErrTemplateArgs)
	}

	r.mu.Lock()
	if existing, ok := r.instances[key]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.instances[key] = inst
	r.mu.Unlock()

	r.table.RegisterInstance(inst)
	r.logger.Debug("instantiated template", "template", tmpl.QualifiedName, "instance", inst.String())
	return inst, nil
}

func (r *Resolver) instantiateRecord(tmpl *scope.Declaration, args []types.Type) *scope.Declaration {
	name := tmpl.Name + "<" + typeList(args) + ">"
	q := tmpl.QualifiedName + "<" + typeList(args) + ">"
	r.ResolveBases(tmpl)
	inst := &scope.Declaration{
		Kind:          scope.Record,
		Name:          name,
		QualifiedName: q,
		Scope:         tmpl.Scope,
		Node:          tmpl.Node,
		Tag:           tmpl.Tag,
		Members:       tmpl.Members,
		Bases:         tmpl.Bases,
		Template:      tmpl,
		TemplateArgs:  args,
		Type:          &types.Record{Name: name, QualifiedName: q},
	}
	inst.TemplateParams = tmpl.TemplateParams
	return inst
}

func (r *Resolver) instantiateFunction(tmpl *scope.Declaration, args []types.Type) *scope.Declaration {
	r.DeclType(tmpl)
	inst := &scope.Declaration{
		Kind:          tmpl.Kind,
		Name:          tmpl.Name,
		QualifiedName: tmpl.QualifiedName + "<" + typeList(args) + ">",
		Scope:         tmpl.Scope,
		Node:          tmpl.Node,
		Variadic:      tmpl.Variadic,
		Virtual:       tmpl.Virtual,
		Static:        tmpl.Static,
		Body:          tmpl.Body,
		BodySeq:       tmpl.BodySeq,
		Members:       tmpl.Members,
		ResultRef:     tmpl.ResultRef,
		Template:      tmpl,
		TemplateArgs:  args,
	}
	inst.TemplateParams = tmpl.TemplateParams
	fp := &types.FunctionPointer{Variadic: tmpl.Variadic}
	for _, p := range tmpl.Params {
		pt := r.Canonical(types.Substitute(p.Type, args))
		inst.Params = append(inst.Params, &scope.Param{Name: p.Name, TypeRef: p.TypeRef, Type: pt, Default: p.Default, Decl: p.Decl})
		fp.Params = append(fp.Params, pt)
	}
	inst.Result = r.Canonical(types.Substitute(tmpl.Result, args))
	fp.Result = inst.Result
	inst.Type = fp
	return inst
}

// Deduce infers template arguments of a function template from explicit
// arguments and call argument types. It reports false when a parameter can
// be neither deduced nor defaulted, or when two arguments deduce different
// types for one parameter.
func (r *Resolver) Deduce(tmpl *scope.Declaration, explicit []types.Type, argTypes []types.Type) ([]types.Type, bool) {
	r.DeclType(tmpl)
	params := tmpl.TemplateParams
	if len(explicit) > len(params) && (len(params) == 0 || !params[len(params)-1].Pack) {
		return nil, false
	}
	bound := make([]types.Type, len(params))
	for i := range explicit {
		if i < len(bound) {
			bound[i] = r.Canonical(explicit[i])
		}
	}
	for i, p := range tmpl.Params {
		if i >= len(argTypes) {
			break
		}
		if p.Type == nil || !types.HasTemplateParam(p.Type) {
			continue
		}
		pt := p.Type
		at := r.Canonical(argTypes[i])
		if _, ref := pt.(*types.Reference); !ref {
			at = decay(at)
		}
		if !unify(pt, at, bound, len(explicit)) {
			return nil, false
		}
	}
	for i, p := range params {
		if bound[i] == nil && !p.HasDefault() && !p.Pack {
			return nil, false
		}
	}
	// defaults fill the rest
	full, err := r.bindArgs(tmpl, bound)
	if err != nil {
		return nil, false
	}
	return full, true
}

// decay applies by-value argument adjustments: references, top-level const
// and array-to-pointer.
func decay(t types.Type) types.Type {
	t = types.StripConst(types.StripReference(t))
	if a, ok := t.(*types.Array); ok {
		return &types.Pointer{Elem: a.Elem}
	}
	return t
}

// unify matches a parameter type against an argument type, binding template
// parameters. Parameters below fixed were given explicitly and are not
// deduced; the argument converts to them.
func unify(param, arg types.Type, bound []types.Type, fixed int) bool {
	switch p := param.(type) {
	case *types.TemplateParam:
		if p.Index >= len(bound) || p.Index < fixed {
			return true
		}
		if bound[p.Index] == nil {
			bound[p.Index] = arg
			return true
		}
		return types.Equal(bound[p.Index], arg)
	case *types.Reference:
		return unify(p.Elem, types.StripReference(arg), bound, fixed)
	case *types.Const:
		return unify(p.Elem, types.StripConst(arg), bound, fixed)
	case *types.Pointer:
		switch a := types.StripConst(arg).(type) {
		case *types.Pointer:
			return unify(p.Elem, a.Elem, bound, fixed)
		case *types.Array:
			return unify(p.Elem, a.Elem, bound, fixed)
		}
		return false
	case *types.Array:
		if a, ok := types.StripConst(arg).(*types.Array); ok {
			return unify(p.Elem, a.Elem, bound, fixed)
		}
		return false
	case *types.FunctionPointer:
		a, ok := types.StripConst(arg).(*types.FunctionPointer)
		if !ok || len(a.Params) != len(p.Params) {
			return false
		}
		for i := range p.Params {
			if !unify(p.Params[i], a.Params[i], bound, fixed) {
				return false
			}
		}
		if p.Result != nil && a.Result != nil {
			return unify(p.Result, a.Result, bound, fixed)
		}
		return true
	}
	// non-dependent parts are checked by overload ranking
	return true
}

// EvalConst evaluates an integral constant expression as seen from s. Names
// of value template parameters take their value from args; const variables
// with constant initializers are folded.
func (r *Resolver) EvalConst(s *scope.Scope, e ast.Expr, args []types.Type) (int64, bool) {
	return r.evalConst(s, e, args, 0)
}

const maxConstDepth = 32

func (r *Resolver) evalConst(s *scope.Scope, e ast.Expr, args []types.Type, depth int) (int64, bool) {
	if depth > maxConstDepth || e == nil {
		return 0, false
	}
	switch x := e.(type) {
	case *ast.Literal:
		switch x.Kind {
		case ast.IntLit:
			digits := strings.TrimRight(x.Value, "uUlL")
			v, ok := types.ParseInteger(digits)
			return int64(v), ok
		case ast.CharLit:
			return charValue(x.Value)
		case ast.BoolLit:
			if x.Value == "true" {
				return 1, true
			}
			return 0, true
		case ast.NullLit:
			return 0, true
		}
		return 0, false
	case *ast.Ident:
		_, decls := s.LookupQualified(x.Qualifier, x.Name)
		for _, d := range decls {
			switch {
			case d.Kind == scope.TemplateParameter:
				tp, ok := d.Type.(*types.TemplateParam)
				if !ok || tp.Index >= len(args) {
					return 0, false
				}
				if c, ok := args[tp.Index].(*types.Constant); ok {
					return c.Value, true
				}
				return 0, false
			case d.Kind == scope.Variable && d.IsConst && d.Init != nil:
				ds := d.Scope
				if ds == nil {
					ds = s
				}
				return r.evalConst(ds, d.Init, nil, depth+1)
			case d.Kind == scope.Variable && d.IsConst:
				// enumerators without an explicit value are not folded
				return 0, false
			}
		}
		return 0, false
	case *ast.UnaryExpr:
		if x.Op == "sizeof" {
			return r.sizeOf(s, x.X)
		}
		v, ok := r.evalConst(s, x.X, args, depth+1)
		if !ok {
			return 0, false
		}
		switch x.Op {
		case "-":
			return -v, true
		case "+":
			return v, true
		case "~":
			return ^v, true
		case "!":
			return boolInt(v == 0), true
		}
		return 0, false
	case *ast.BinaryExpr:
		a, ok := r.evalConst(s, x.X, args, depth+1)
		if !ok {
			return 0, false
		}
		b, ok := r.evalConst(s, x.Y, args, depth+1)
		if !ok {
			return 0, false
		}
		return binaryConst(x.Op, a, b)
	case *ast.ConditionalExpr:
		c, ok := r.evalConst(s, x.Cond, args, depth+1)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return r.evalConst(s, x.Then, args, depth+1)
		}
		return r.evalConst(s, x.Else, args, depth+1)
	case *ast.CastExpr:
		return r.evalConst(s, x.X, args, depth+1)
	}
	return 0, false
}

// BinaryConst folds a binary operator over two integer constants.
func BinaryConst(op string, a, b int64) (int64, bool) { return binaryConst(op, a, b) }

func binaryConst(op string, a, b int64) (int64, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case "%":
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case "<<":
		if b < 0 || b > 63 {
			return 0, false
		}
		return a << uint(b), true
	case ">>":
		if b < 0 || b > 63 {
			return 0, false
		}
		return a >> uint(b), true
	case "&":
		return a & b, true
	case "|":
		return a | b, true
	case "^":
		return a ^ b, true
	case "&&":
		return boolInt(a != 0 && b != 0), true
	case "||":
		return boolInt(a != 0 || b != 0), true
	case "==":
		return boolInt(a == b), true
	case "!=":
		return boolInt(a != b), true
	case "<":
		return boolInt(a < b), true
	case "<=":
		return boolInt(a <= b), true
	case ">":
		return boolInt(a > b), true
	case ">=":
		return boolInt(a >= b), true
	}
	return 0, false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func charValue(lit string) (int64, bool) {
	s := strings.Trim(lit, "'")
	if s == "" {
		return 0, false
	}
	if s[0] != '\\' {
		return int64([]rune(s)[0]), true
	}
	if len(s) < 2 {
		return 0, false
	}
	switch s[1] {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		return 0, true
	case '\\':
		return '\\', true
	case '\'':
		return '\'', true
	}
	return 0, false
}

var primitiveSizes = map[string]int64{
	"bool": 1, "char": 1, "signed char": 1, "unsigned char": 1,
	"short": 2, "unsigned short": 2, "wchar_t": 4,
	"int": 4, "unsigned int": 4, "float": 4,
	"long": 8, "unsigned long": 8, "long long": 8, "unsigned long long": 8,
	"double": 8, "long double": 16,
}

// sizeOf folds sizeof over builtin types and pointers, assuming LP64.
func (r *Resolver) sizeOf(s *scope.Scope, e ast.Expr) (int64, bool) {
	id, ok := e.(*ast.Ident)
	if !ok {
		return 0, false
	}
	var t types.Type
	if p, ok := types.LookupBuiltin(id.Name); ok && !id.IsQualified() {
		t = p
	} else {
		_, decls := s.LookupQualified(id.Qualifier, id.Name)
		if len(decls) == 0 {
			return 0, false
		}
		t = r.Canonical(r.DeclType(decls[0]))
	}
	switch x := types.StripConst(t).(type) {
	case *types.Primitive:
		n, ok := primitiveSizes[x.Name]
		return n, ok
	case *types.Pointer, *types.FunctionPointer:
		return 8, true
	}
	return 0, false
}

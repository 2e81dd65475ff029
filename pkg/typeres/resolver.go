// Package typeres resolves written types to semantic types: names through the
// scope tree, typedef chains to canonical types, and templates to memoized
// instantiations.
package typeres

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/inference"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// ErrCyclicAlias is returned when an alias chain refers back to itself.
var ErrCyclicAlias = errors.New("cyclic alias chain")

// ErrTemplateArgs is returned when a template cannot be instantiated with the
// supplied arguments.
var ErrTemplateArgs = errors.New("template arguments do not match parameters")

// Resolver resolves types for one unit.
type Resolver struct {
	table  *scope.Table
	infer  *inference.Manager
	diags  *diag.Collector
	logger log.Logger

	mu        sync.Mutex
	instances map[string]*scope.Declaration
	canonical map[*types.Alias]types.Type
	cyclic    map[*types.Alias]bool
	basesDone map[*scope.Declaration]bool
}

// New creates a resolver for the unit owning table.
func New(table *scope.Table, infer *inference.Manager, diags *diag.Collector, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	if diags == nil {
		diags = diag.NewCollector()
	}
	return &Resolver{
		table:     table,
		infer:     infer,
		diags:     diags,
		logger:    logger,
		instances: make(map[string]*scope.Declaration),
		canonical: make(map[*types.Alias]types.Type),
		cyclic:    make(map[*types.Alias]bool),
	}
}

// Table returns the unit's declaration table.
func (r *Resolver) Table() *scope.Table { return r.table }

// ResolveRef turns a written type into a semantic type as seen from s.
// Names that do not resolve become inferred records.
func (r *Resolver) ResolveRef(s *scope.Scope, ref *ast.TypeRef) types.Type {
	return r.resolveRef(s, ref, nil)
}

// ResolveRefAt is ResolveRef restricted to locals declared before seq.
func (r *Resolver) ResolveRefAt(s *scope.Scope, ref *ast.TypeRef, seq int64) types.Type {
	return r.resolveRef(s, ref, []scope.LookupOption{scope.VisibleBefore(seq)})
}

func (r *Resolver) resolveRef(s *scope.Scope, ref *ast.TypeRef, opts []scope.LookupOption) types.Type {
	if ref == nil {
		return types.Void
	}
	var t types.Type
	switch ref.Kind {
	case ast.TypeNamed:
		t = r.resolveNamed(s, ref, opts)
	case ast.TypePointer:
		t = &types.Pointer{Elem: r.resolveRef(s, ref.Elem, opts)}
	case ast.TypeReference:
		t = &types.Reference{Elem: r.resolveRef(s, ref.Elem, opts)}
	case ast.TypeArray:
		t = &types.Array{Elem: r.resolveRef(s, ref.Elem, opts), Size: ref.Size}
	case ast.TypeFunc:
		fp := &types.FunctionPointer{Result: r.resolveRef(s, ref.Elem, opts), Variadic: ref.Variadic}
		for _, p := range ref.Params {
			fp.Params = append(fp.Params, r.resolveRef(s, p, opts))
		}
		t = fp
	default:
		t = &types.Unknown{}
	}
	if ref.Const {
		if _, already := t.(*types.Const); !already {
			t = &types.Const{Elem: t}
		}
	}
	return t
}

func (r *Resolver) resolveNamed(s *scope.Scope, ref *ast.TypeRef, opts []scope.LookupOption) types.Type {
	if len(ref.Name) == 0 {
		return &types.Unknown{}
	}
	if len(ref.Name) == 1 {
		if p, ok := types.LookupBuiltin(ref.Name[0]); ok {
			return p
		}
		if ref.Name[0] == "auto" || ref.Name[0] == "decltype(auto)" {
			return &types.Unknown{Name: "auto"}
		}
	}
	path, name := ref.Name[:len(ref.Name)-1], ref.Name[len(ref.Name)-1]

	d, shadowed := r.lookupType(s, path, name, ref, opts)
	if shadowed {
		r.diags.Report(diag.UnresolvedSymbol, ast.Span{File: r.table.File}, "%s does not name a type here", strings.Join(ref.Name, "::"))
		return &types.Unknown{Name: strings.Join(ref.Name, "::")}
	}
	if d == nil {
		return r.inferType(s, path, name, ref)
	}

	switch d.Kind {
	case scope.Record:
		if len(ref.Args) > 0 && d.IsTemplate() {
			inst, err := r.Instantiate(d, r.templateArgs(s, ref.Args, opts))
			if err != nil {
				r.logger.Debug("record template instantiation failed", "template", d.QualifiedName, "error", err)
				return r.DeclType(d)
			}
			return inst.Type
		}
		return r.DeclType(d)
	case scope.TypedefAlias:
		if d.TemplateParams != nil && d.Members != nil {
			args, err := r.bindArgs(d, r.templateArgs(s, ref.Args, opts))
			if err != nil {
				r.logger.Debug("alias template arguments rejected", "alias", d.QualifiedName, "error", err)
				return &types.Unknown{Name: d.QualifiedName}
			}
			target := r.ResolveRef(d.Members, d.TypeRef)
			return types.AliasOf(d.Name, d.QualifiedName+"<"+typeList(args)+">", types.Substitute(target, args))
		}
		return r.DeclType(d)
	case scope.TemplateParameter:
		return d.Type
	}
	return &types.Unknown{Name: name}
}

// lookupType finds the declaration a type name denotes. The nearest level
// holding the name wins, whatever the kind of its declarations. Two cases
// still reach a type behind non-type declarations at that level: an
// elaborated specifier (struct stat next to stat()) and a class name inside
// its own scope, where the constructors share the name. The second result
// reports a name hidden by non-type declarations.
func (r *Resolver) lookupType(s *scope.Scope, path []string, name string, ref *ast.TypeRef, opts []scope.LookupOption) (*scope.Declaration, bool) {
	_, decls := s.LookupQualified(path, name, opts...)
	for _, d := range decls {
		if d.IsType() {
			return d, false
		}
	}
	if len(decls) == 0 {
		return nil, false
	}
	if ref.Tag == "" && !allConstructors(decls) {
		return nil, true
	}
	typed := append(append([]scope.LookupOption{}, opts...), scope.Matching((*scope.Declaration).IsType))
	_, decls = s.LookupQualified(path, name, typed...)
	for _, d := range decls {
		if d.IsType() {
			return d, false
		}
	}
	return nil, false
}

func allConstructors(decls []*scope.Declaration) bool {
	for _, d := range decls {
		owner := d.Scope
		if !d.IsCallable() || owner == nil || owner.Kind != scope.RecordScope || owner.Owner == nil || owner.Owner.Name != d.Name {
			return false
		}
	}
	return true
}

func (r *Resolver) inferType(s *scope.Scope, path []string, name string, ref *ast.TypeRef) types.Type {
	if r.infer == nil {
		return &types.Unknown{Name: strings.Join(ref.Name, "::")}
	}
	target := r.InferScopePath(s, path)
	d := r.infer.InferRecord(target, name)
	r.diags.Report(diag.UnresolvedSymbol, ast.Span{File: r.table.File}, "unknown type %s, inferred record %s", strings.Join(ref.Name, "::"), d.QualifiedName)
	return d.Type
}

// InferScopePath resolves a qualifier path, inferring namespaces for the
// components that do not exist. An empty path yields the enclosing namespace
// of s.
func (r *Resolver) InferScopePath(s *scope.Scope, path []string) *scope.Scope {
	if len(path) == 0 {
		return s.EnclosingNamespace()
	}
	if found := s.ResolveScopePath(path); found != nil {
		return found
	}
	cur := s.EnclosingNamespace()
	if path[0] == "" {
		cur = s.Root()
		path = path[1:]
	} else if first := s.ResolveScopeName(path[0]); first != nil {
		cur = first
		path = path[1:]
	} else {
		cur = s.Root()
	}
	for _, comp := range path {
		if next := cur.ResolveScopePath([]string{comp}); next != nil && next.Parent() == cur {
			cur = next
			continue
		}
		if r.infer == nil {
			return cur
		}
		cur = r.infer.InferNamespace(cur, comp)
	}
	return cur
}

func (r *Resolver) templateArgs(s *scope.Scope, args []ast.TemplateArg, opts []scope.LookupOption) []types.Type {
	out := make([]types.Type, len(args))
	for i, a := range args {
		if a.Type != nil {
			out[i] = r.resolveRef(s, a.Type, opts)
			continue
		}
		if v, ok := r.EvalConst(s, a.Value, nil); ok {
			out[i] = &types.Constant{Value: v}
		} else {
			out[i] = &types.Unknown{Name: ast.ExprString(a.Value)}
		}
	}
	return out
}

// TemplateArgs resolves the explicit template arguments of a call.
func (r *Resolver) TemplateArgs(s *scope.Scope, args []ast.TemplateArg, seq int64) []types.Type {
	return r.templateArgs(s, args, []scope.LookupOption{scope.VisibleBefore(seq)})
}

// DeclType returns the semantic type of a declaration, resolving it on first
// use. Typedefs get a lazily resolved alias so chains and cycles are only
// followed on demand.
func (r *Resolver) DeclType(d *scope.Declaration) types.Type {
	if d.Type != nil {
		return d.Type
	}
	s := d.Scope
	if s == nil {
		s = r.table.Global
	}
	var t types.Type
	switch d.Kind {
	case scope.Variable:
		if d.TypeRef == nil {
			t = &types.Unknown{}
		} else {
			t = r.ResolveRefAt(s, d.TypeRef, d.Seq-1)
		}
	case scope.Record:
		t = &types.Record{Name: d.Name, QualifiedName: d.QualifiedName, Inferred: d.Inferred}
	case scope.TypedefAlias:
		decl := d
		t = types.NewAlias(d.Name, d.QualifiedName, func() types.Type {
			if decl.Members != nil {
				return r.ResolveRef(decl.Members, decl.TypeRef)
			}
			return r.ResolveRefAt(decl.Scope, decl.TypeRef, decl.Seq-1)
		})
	case scope.Function, scope.Method:
		t = r.signature(d)
	case scope.TemplateParameter:
		t = &types.TemplateParam{Name: d.Name}
	default:
		t = &types.Unknown{Name: d.Name}
	}
	d.Type = t
	return t
}

func (r *Resolver) signature(d *scope.Declaration) types.Type {
	s := d.Members
	if s == nil {
		s = d.Scope
	}
	fp := &types.FunctionPointer{Variadic: d.Variadic}
	for _, p := range d.Params {
		if p.Type == nil {
			if p.TypeRef != nil {
				p.Type = r.ResolveRef(s, p.TypeRef)
			} else {
				p.Type = &types.Unknown{}
			}
		}
		fp.Params = append(fp.Params, p.Type)
		if p.Decl != nil && p.Decl.Type == nil {
			p.Decl.Type = p.Type
		}
	}
	if d.Result == nil {
		if d.ResultRef != nil {
			d.Result = r.ResolveRef(s, d.ResultRef)
		} else if d.Lambda != nil {
			d.Result = &types.Unknown{Name: "auto"}
		} else {
			d.Result = types.Void
		}
	}
	fp.Result = d.Result
	return fp
}

// ResolveDecls types every declaration of the table. It runs at the start of
// the resolution pass so later lookups compare resolved signatures.
func (r *Resolver) ResolveDecls() {
	for _, d := range r.table.Declarations() {
		r.DeclType(d)
	}
}

// ResolveAlias follows an alias chain to the first non-alias type. A chain
// that revisits an alias is reported once and resolves to types.Opaque.
func (r *Resolver) ResolveAlias(t types.Type) (types.Type, error) {
	seen := make(map[*types.Alias]bool)
	for {
		a, ok := t.(*types.Alias)
		if !ok {
			return t, nil
		}
		if seen[a] {
			r.reportCycle(a)
			return types.Opaque, fmt.Errorf("resolving %s: %w", a.String(), ErrCyclicAlias)
		}
		seen[a] = true
		t = a.Target()
	}
}

func (r *Resolver) reportCycle(a *types.Alias) {
	r.mu.Lock()
	first := !r.cyclic[a]
	r.cyclic[a] = true
	r.mu.Unlock()
	if first {
		r.diags.Report(diag.CyclicAlias, ast.Span{File: r.table.File}, "alias %s refers to itself", a.String())
		r.logger.Warn("cyclic alias", "alias", a.String())
	}
}

// Canonical resolves aliases everywhere inside t: under pointers, references,
// arrays, const and function pointer signatures.
func (r *Resolver) Canonical(t types.Type) types.Type {
	return r.canon(t, nil)
}

func (r *Resolver) canon(t types.Type, stack []*types.Alias) types.Type {
	switch x := t.(type) {
	case nil:
		return &types.Unknown{}
	case *types.Alias:
		r.mu.Lock()
		c, ok := r.canonical[x]
		r.mu.Unlock()
		if ok {
			return c
		}
		for _, s := range stack {
			if s == x {
				r.reportCycle(x)
				return types.Opaque
			}
		}
		c = r.canon(x.Target(), append(stack, x))
		r.mu.Lock()
		if r.cyclic[x] {
			c = types.Opaque
		}
		r.canonical[x] = c
		r.mu.Unlock()
		return c
	case *types.Pointer:
		return &types.Pointer{Elem: r.canon(x.Elem, stack)}
	case *types.Reference:
		return &types.Reference{Elem: r.canon(x.Elem, stack)}
	case *types.Array:
		return &types.Array{Elem: r.canon(x.Elem, stack), Size: x.Size}
	case *types.Const:
		inner := r.canon(x.Elem, stack)
		if _, ok := inner.(*types.Const); ok {
			return inner
		}
		return &types.Const{Elem: inner}
	case *types.FunctionPointer:
		fp := &types.FunctionPointer{Variadic: x.Variadic}
		for _, p := range x.Params {
			fp.Params = append(fp.Params, r.canon(p, stack))
		}
		if x.Result != nil {
			fp.Result = r.canon(x.Result, stack)
		}
		return fp
	}
	return t
}

// IsDerived reports whether the record named derived has base among its
// transitive bases.
func (r *Resolver) IsDerived(derived, base string) bool {
	d := r.table.RecordDecl(derived)
	if d == nil {
		return false
	}
	visited := make(map[*scope.Declaration]bool)
	var walk func(x *scope.Declaration) bool
	walk = func(x *scope.Declaration) bool {
		if x == nil || visited[x] {
			return false
		}
		visited[x] = true
		for _, b := range x.Bases {
			if b.QualifiedName == base || walk(b) {
				return true
			}
		}
		return false
	}
	return walk(d)
}

// Converter returns a conversion ranker aware of the unit's class hierarchy.
func (r *Resolver) Converter() types.Converter {
	return types.Converter{IsDerived: r.IsDerived}
}

// RecordDecl returns the declaration behind a record type.
func (r *Resolver) RecordDecl(t *types.Record) *scope.Declaration {
	if t == nil {
		return nil
	}
	return r.table.RecordDecl(t.String())
}

func typeList(ts []types.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		if t == nil {
			parts[i] = "?"
			continue
		}
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

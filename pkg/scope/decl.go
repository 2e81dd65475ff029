package scope

import (
	"strings"
	"sync/atomic"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// DeclKind is the variant of a Declaration.
type DeclKind int

const (
	Variable DeclKind = iota
	Function
	Method
	Record
	TypedefAlias
	NamespaceAlias
	TemplateParameter
	NamespaceDecl
)

func (k DeclKind) String() string {
	switch k {
	case Variable:
		return "variable"
	case Function:
		return "function"
	case Method:
		return "method"
	case Record:
		return "record"
	case TypedefAlias:
		return "typedef"
	case NamespaceAlias:
		return "namespace_alias"
	case TemplateParameter:
		return "template_param"
	case NamespaceDecl:
		return "namespace"
	}
	return "unknown"
}

var seqCounter atomic.Int64

// nextSeq hands out declaration order numbers. They are monotonic within a
// unit because each unit is declared by a single goroutine.
func nextSeq() int64 { return seqCounter.Add(1) }

// NextSeq reserves a sequence number, used to remember the point in
// declaration order reached by a walk.
func NextSeq() int64 { return nextSeq() }

// Param is one parameter of a function or method.
type Param struct {
	Name    string
	TypeRef *ast.TypeRef
	Type    types.Type
	Default ast.Expr
	// Decl is the parameter variable declared in the function scope.
	Decl *Declaration
}

// HasDefault reports whether the parameter has a default argument.
func (p *Param) HasDefault() bool { return p.Default != nil }

// Declaration is a named entity declared in a scope. Which fields are
// meaningful depends on Kind.
type Declaration struct {
	Kind          DeclKind
	Name          string
	QualifiedName string
	Scope         *Scope
	Node          ast.Node
	Seq           int64

	// TypeRef is the declared type as written; Type is filled in by the type
	// resolver. For functions Type is the function pointer type of the
	// signature, for records a *types.Record, for typedefs a *types.Alias.
	TypeRef *ast.TypeRef
	Type    types.Type

	// Variables.
	IsParam bool
	IsField bool
	IsConst bool
	Static  bool
	Init    ast.Expr

	// Functions and methods.
	Params    []*Param
	Variadic  bool
	Virtual   bool
	Override  bool
	Overrides *Declaration
	ResultRef *ast.TypeRef
	Result    types.Type
	Body      *ast.CompoundStmt
	Lambda    *ast.LambdaExpr
	// BodySeq is the sequence number reached after the parameters were
	// declared; the body starts seeing locals from here.
	BodySeq int64

	// Records and functions: the member or function scope. Alias templates
	// keep their parameter scope here.
	Members *Scope
	Tag     string
	Bases   []*Declaration
	// BaseRefs are the base clause entries, resolved to Bases by pass 2.
	BaseRefs []ast.BaseSpec

	// Templates.
	TemplateParams []*ast.TemplateParam
	Template       *Declaration
	TemplateArgs   []types.Type

	// Namespace aliases.
	AliasPath []string
	aliasTo   atomic.Pointer[Scope]
	resolving atomic.Bool

	Inferred bool
}

// IsCallable reports whether the declaration is a function or method.
func (d *Declaration) IsCallable() bool {
	return d.Kind == Function || d.Kind == Method
}

// IsTemplate reports whether the declaration is an uninstantiated template.
func (d *Declaration) IsTemplate() bool {
	return d.TemplateParams != nil && d.Template == nil
}

// IsType reports whether the declaration names a type.
func (d *Declaration) IsType() bool {
	return d.Kind == Record || d.Kind == TypedefAlias || d.Kind == TemplateParameter
}

// HasBody reports whether the function has a definition.
func (d *Declaration) HasBody() bool { return d.Body != nil }

// RequiredParams counts the parameters without a default argument.
func (d *Declaration) RequiredParams() int {
	n := 0
	for _, p := range d.Params {
		if !p.HasDefault() {
			n++
		}
	}
	return n
}

// AcceptsArgs reports whether a call with n arguments passes the arity
// filter: required <= n <= total, or unbounded when variadic.
func (d *Declaration) AcceptsArgs(n int) bool {
	if n < d.RequiredParams() {
		return false
	}
	return d.Variadic || n <= len(d.Params)
}

// Signature renders the parameter list. Resolved types are preferred; the
// written form is used before pass 2 has run.
func (d *Declaration) Signature() string {
	parts := make([]string, 0, len(d.Params)+1)
	for _, p := range d.Params {
		switch {
		case p.Type != nil:
			parts = append(parts, p.Type.String())
		case p.TypeRef != nil:
			parts = append(parts, p.TypeRef.String())
		default:
			parts = append(parts, "?")
		}
	}
	if d.Variadic {
		parts = append(parts, "...")
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// WrittenSignature renders the parameter list as written in source. Two
// declarations of one function agree on it even before types are resolved.
func (d *Declaration) WrittenSignature() string {
	parts := make([]string, 0, len(d.Params)+1)
	for _, p := range d.Params {
		if p.TypeRef != nil {
			parts = append(parts, p.TypeRef.String())
		} else if p.Type != nil {
			parts = append(parts, p.Type.String())
		}
	}
	if d.Variadic {
		parts = append(parts, "...")
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// String renders the declaration for diagnostics and output.
func (d *Declaration) String() string {
	name := d.QualifiedName
	if name == "" {
		name = d.Name
	}
	if d.IsCallable() {
		return name + d.Signature()
	}
	return name
}

// AliasTarget returns the scope a namespace alias denotes, resolving its path
// on first use.
func (d *Declaration) AliasTarget() *Scope {
	if t := d.aliasTo.Load(); t != nil {
		return t
	}
	if d.Scope == nil || len(d.AliasPath) == 0 {
		return nil
	}
	// a self-referential alias chain resolves to nothing
	if !d.resolving.CompareAndSwap(false, true) {
		return nil
	}
	defer d.resolving.Store(false)
	t := d.Scope.ResolveScopePath(d.AliasPath)
	if t != nil {
		d.aliasTo.Store(t)
	}
	return t
}

// SetAliasTarget binds a namespace alias to its target scope.
func (d *Declaration) SetAliasTarget(s *Scope) { d.aliasTo.Store(s) }

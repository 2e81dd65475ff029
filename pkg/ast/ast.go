// Package ast defines the language-neutral syntax tree consumed by the analysis core.
// Front ends (see pkg/frontend) lower C and C++ parse trees into these nodes; the
// resolver and data-flow passes never look at source text again.
package ast

import (
	"fmt"
	"strings"
)

// Span is the source range covered by a node. Lines and columns are 1-based.
type Span struct {
	File      string `json:"file,omitempty"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

func (s Span) String() string {
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.StartLine, s.StartCol)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.StartLine, s.StartCol)
}

// Node is implemented by every declaration, statement and expression.
type Node interface {
	Span() Span
}

// Base carries the source range and is embedded in every node.
type Base struct {
	Loc Span
}

// Span returns the node's source range.
func (b Base) Span() Span { return b.Loc }

// Decl is a declaration node.
type Decl interface {
	Node
	declNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// ---------------------------------------------------------------------------
// Types

// TypeKind discriminates the shapes a TypeRef can take.
type TypeKind int

const (
	TypeNamed TypeKind = iota
	TypePointer
	TypeReference
	TypeArray
	TypeFunc
)

// TypeRef is a syntactic type as written in source. It is resolved to a
// semantic type by the type resolver.
type TypeRef struct {
	Kind TypeKind
	// Name is the qualified path of a named type, e.g. {"std", "string"}.
	// Builtins are a single element such as "unsigned int".
	Name  []string
	Args  []TemplateArg
	Const bool
	// Tag is the elaborated-type keyword (struct, class, union or enum)
	// when the type was written with one.
	Tag string
	// Elem is the pointee, referent or element type. For TypeFunc it is the result.
	Elem     *TypeRef
	Params   []*TypeRef
	Variadic bool
	// Size is the declared array length, -1 when absent or not constant.
	Size int
}

// TemplateArg is one argument of a template-id. Exactly one of Type and Value is set.
type TemplateArg struct {
	Type  *TypeRef
	Value Expr
}

// Named builds a TypeRef for a (possibly qualified) type name.
func Named(path ...string) *TypeRef {
	return &TypeRef{Kind: TypeNamed, Name: path}
}

// PointerTo builds a pointer TypeRef.
func PointerTo(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: TypePointer, Elem: elem}
}

// ReferenceTo builds an lvalue reference TypeRef.
func ReferenceTo(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: TypeReference, Elem: elem}
}

// ArrayOf builds an array TypeRef; size -1 means unknown.
func ArrayOf(elem *TypeRef, size int) *TypeRef {
	return &TypeRef{Kind: TypeArray, Elem: elem, Size: size}
}

// FuncOf builds a function TypeRef with the given result and parameters.
func FuncOf(result *TypeRef, params ...*TypeRef) *TypeRef {
	return &TypeRef{Kind: TypeFunc, Elem: result, Params: params}
}

// WithConst returns a copy of t marked const.
func (t *TypeRef) WithConst() *TypeRef {
	c := *t
	c.Const = true
	return &c
}

// String renders the type in a compact C-like notation. It is used for
// signatures, so two TypeRefs that print the same are treated as the same
// parameter type when matching out-of-line definitions and overrides.
func (t *TypeRef) String() string {
	if t == nil {
		return "void"
	}
	var s string
	switch t.Kind {
	case TypeNamed:
		s = strings.Join(t.Name, "::")
		if len(t.Args) > 0 {
			args := make([]string, len(t.Args))
			for i, a := range t.Args {
				if a.Type != nil {
					args[i] = a.Type.String()
				} else {
					args[i] = ExprString(a.Value)
				}
			}
			s += "<" + strings.Join(args, ",") + ">"
		}
	case TypePointer:
		s = t.Elem.String() + "*"
	case TypeReference:
		s = t.Elem.String() + "&"
	case TypeArray:
		if t.Size >= 0 {
			s = fmt.Sprintf("%s[%d]", t.Elem.String(), t.Size)
		} else {
			s = t.Elem.String() + "[]"
		}
	case TypeFunc:
		ps := make([]string, len(t.Params))
		for i, p := range t.Params {
			ps[i] = p.String()
		}
		if t.Variadic {
			ps = append(ps, "...")
		}
		s = fmt.Sprintf("%s(*)(%s)", t.Elem.String(), strings.Join(ps, ","))
	}
	if t.Const {
		s = "const " + s
	}
	return s
}

// ---------------------------------------------------------------------------
// Declarations

// TranslationUnit is the root of one parsed source file.
type TranslationUnit struct {
	Base
	File  string
	Decls []Decl
}

// NamespaceDecl is `namespace Name { ... }`. Name is empty for anonymous namespaces.
type NamespaceDecl struct {
	Base
	Name  string
	Decls []Decl
}

// NamespaceAliasDecl is `namespace Name = Target;`.
type NamespaceAliasDecl struct {
	Base
	Name   string
	Target []string
}

// UsingNamespaceDecl is `using namespace Path;`.
type UsingNamespaceDecl struct {
	Base
	Path []string
}

// BaseSpec is one entry of a record's base clause.
type BaseSpec struct {
	Type    *TypeRef
	Virtual bool
	Access  string
}

// RecordDecl is a struct, class or union. A nil Members with Forward set is a
// forward declaration.
type RecordDecl struct {
	Base
	Tag            string // struct, class or union
	Name           string
	Bases          []BaseSpec
	Members        []Decl
	TemplateParams []*TemplateParam
	Forward        bool
}

// EnumDecl declares an enumeration; enumerators become int constants.
type EnumDecl struct {
	Base
	Name        string
	Enumerators []*Enumerator
}

// Enumerator is one named enum value.
type Enumerator struct {
	Base
	Name  string
	Value Expr
}

// ParamDecl is a function or lambda parameter.
type ParamDecl struct {
	Base
	Name    string
	Type    *TypeRef
	Default Expr
}

// FunctionDecl is a function, method, constructor or prototype.
type FunctionDecl struct {
	Base
	Name string
	// Qualifier holds the scope path of an out-of-line definition: `A::f` has {"A"}.
	Qualifier      []string
	Result         *TypeRef
	Params         []*ParamDecl
	Variadic       bool
	Virtual        bool
	Override       bool
	Static         bool
	Const          bool
	Body           *CompoundStmt
	TemplateParams []*TemplateParam
}

// IsTemplate reports whether the function is declared with a template header.
func (f *FunctionDecl) IsTemplate() bool { return f.TemplateParams != nil }

// VarDecl declares a variable or a record field.
type VarDecl struct {
	Base
	Name   string
	Type   *TypeRef
	Init   Expr
	Static bool
}

// TypedefDecl covers both `typedef T Name;` and `using Name = T;`.
type TypedefDecl struct {
	Base
	Name           string
	Type           *TypeRef
	TemplateParams []*TemplateParam
}

// TemplateParamKind separates type parameters from non-type parameters.
type TemplateParamKind int

const (
	TemplateTypeParam TemplateParamKind = iota
	TemplateValueParam
)

// TemplateParam is one parameter of a template header. Defaults may refer to
// earlier parameters of the same list.
type TemplateParam struct {
	Base
	Name         string
	Kind         TemplateParamKind
	ValueType    *TypeRef
	DefaultType  *TypeRef
	DefaultValue Expr
	Pack         bool
}

// HasDefault reports whether the parameter declares a default argument.
func (p *TemplateParam) HasDefault() bool {
	return p.DefaultType != nil || p.DefaultValue != nil
}

func (*NamespaceDecl) declNode()      {}
func (*NamespaceAliasDecl) declNode() {}
func (*UsingNamespaceDecl) declNode() {}
func (*RecordDecl) declNode()         {}
func (*EnumDecl) declNode()           {}
func (*FunctionDecl) declNode()       {}
func (*VarDecl) declNode()            {}
func (*TypedefDecl) declNode()        {}

// ---------------------------------------------------------------------------
// Statements

// CompoundStmt is a braced block.
type CompoundStmt struct {
	Base
	List []Stmt
}

// DeclStmt wraps local declarations.
type DeclStmt struct {
	Base
	Decls []Decl
}

// ExprStmt is an expression evaluated for its effects.
type ExprStmt struct {
	Base
	X Expr
}

// IfStmt is `if (Init; Cond) Then else Else`. Init is a condition declaration.
type IfStmt struct {
	Base
	Init Stmt
	Cond Expr
	Then Stmt
	Else Stmt
}

// ForStmt covers classic and range-based for loops. For range loops Range is
// set and Init declares the loop variable.
type ForStmt struct {
	Base
	Init  Stmt
	Cond  Expr
	Post  Expr
	Range Expr
	Body  Stmt
}

// WhileStmt is `while (Cond) Body`.
type WhileStmt struct {
	Base
	Init Stmt
	Cond Expr
	Body Stmt
}

// DoStmt is `do Body while (Cond);`.
type DoStmt struct {
	Base
	Body Stmt
	Cond Expr
}

// SwitchStmt is `switch (Cond) { case ...: }`.
type SwitchStmt struct {
	Base
	Init  Stmt
	Cond  Expr
	Cases []*CaseClause
}

// CaseClause is one case label with the statements that follow it. Values is
// nil for the default label.
type CaseClause struct {
	Base
	Values []Expr
	Body   []Stmt
}

// ReturnStmt is `return X;`; X may be nil.
type ReturnStmt struct {
	Base
	X Expr
}

// BreakStmt is `break;`.
type BreakStmt struct{ Base }

// ContinueStmt is `continue;`.
type ContinueStmt struct{ Base }

// LabeledStmt is `Label: Stmt`.
type LabeledStmt struct {
	Base
	Label string
	Stmt  Stmt
}

// GotoStmt is `goto Label;`.
type GotoStmt struct {
	Base
	Label string
}

func (*CompoundStmt) stmtNode() {}
func (*DeclStmt) stmtNode()     {}
func (*ExprStmt) stmtNode()     {}
func (*IfStmt) stmtNode()       {}
func (*ForStmt) stmtNode()      {}
func (*WhileStmt) stmtNode()    {}
func (*DoStmt) stmtNode()       {}
func (*SwitchStmt) stmtNode()   {}
func (*ReturnStmt) stmtNode()   {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*LabeledStmt) stmtNode()  {}
func (*GotoStmt) stmtNode()     {}

// ---------------------------------------------------------------------------
// Expressions

// Ident is a (possibly qualified) name. A leading empty qualifier element
// denotes the global namespace (`::f`).
type Ident struct {
	Base
	Qualifier []string
	Name      string
}

// IsQualified reports whether the name carries a scope path.
func (id *Ident) IsQualified() bool { return len(id.Qualifier) > 0 }

// LitKind is the kind of a literal.
type LitKind int

const (
	IntLit LitKind = iota
	FloatLit
	CharLit
	StringLit
	BoolLit
	NullLit
)

// Literal is a constant as written. Value holds the literal text; string
// literals hold their unquoted contents.
type Literal struct {
	Base
	Kind  LitKind
	Value string
}

// CallExpr is `Fun<TemplateArgs>(Args)`.
type CallExpr struct {
	Base
	Fun          Expr
	Args         []Expr
	TemplateArgs []TemplateArg
	// ExplicitTemplate is set when the call used template-id syntax, even an
	// empty one such as `f<>(...)`.
	ExplicitTemplate bool
}

// MemberExpr is `X.Name` or `X->Name`.
type MemberExpr struct {
	Base
	X     Expr
	Name  string
	Arrow bool
}

// UnaryExpr is a prefix or postfix operator. Op is one of
// & * - + ! ~ ++ -- sizeof delete.
type UnaryExpr struct {
	Base
	Op      string
	X       Expr
	Postfix bool
}

// BinaryExpr is `X Op Y`, including the comma operator.
type BinaryExpr struct {
	Base
	Op string
	X  Expr
	Y  Expr
}

// AssignExpr is `Lhs Op Rhs` where Op is = or a compound assignment.
type AssignExpr struct {
	Base
	Op  string
	Lhs Expr
	Rhs Expr
}

// SubscriptExpr is `X[Index]`.
type SubscriptExpr struct {
	Base
	X     Expr
	Index Expr
}

// CastExpr is a C-style or named cast.
type CastExpr struct {
	Base
	Type *TypeRef
	X    Expr
}

// NewExpr is `new Type(Args)` or `new Type[n]`.
type NewExpr struct {
	Base
	Type  *TypeRef
	Args  []Expr
	Array bool
}

// ConditionalExpr is `Cond ? Then : Else`.
type ConditionalExpr struct {
	Base
	Cond Expr
	Then Expr
	Else Expr
}

// InitListExpr is a braced initializer. Designators is parallel to Elems and
// holds the field name of `.f = v` entries, "" for positional ones.
type InitListExpr struct {
	Base
	Elems       []Expr
	Designators []string
}

// Capture is one entry of a lambda capture list. A default capture has an
// empty Name.
type Capture struct {
	Name  string
	ByRef bool
}

// LambdaExpr is a C++ lambda.
type LambdaExpr struct {
	Base
	Captures []Capture
	Params   []*ParamDecl
	Result   *TypeRef
	Body     *CompoundStmt
}

// ThisExpr is `this`.
type ThisExpr struct{ Base }

func (*Ident) exprNode()           {}
func (*Literal) exprNode()         {}
func (*CallExpr) exprNode()        {}
func (*MemberExpr) exprNode()      {}
func (*UnaryExpr) exprNode()       {}
func (*BinaryExpr) exprNode()      {}
func (*AssignExpr) exprNode()      {}
func (*SubscriptExpr) exprNode()   {}
func (*CastExpr) exprNode()        {}
func (*NewExpr) exprNode()         {}
func (*ConditionalExpr) exprNode() {}
func (*InitListExpr) exprNode()    {}
func (*LambdaExpr) exprNode()      {}
func (*ThisExpr) exprNode()        {}

// ExprString renders an expression for diagnostics and CLI output.
func ExprString(e Expr) string {
	switch x := e.(type) {
	case nil:
		return ""
	case *Ident:
		if len(x.Qualifier) > 0 {
			return strings.Join(x.Qualifier, "::") + "::" + x.Name
		}
		return x.Name
	case *Literal:
		switch x.Kind {
		case StringLit:
			return fmt.Sprintf("%q", x.Value)
		case CharLit:
			return "'" + x.Value + "'"
		}
		return x.Value
	case *CallExpr:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = ExprString(a)
		}
		fun := ExprString(x.Fun)
		if x.ExplicitTemplate {
			targs := make([]string, len(x.TemplateArgs))
			for i, a := range x.TemplateArgs {
				if a.Type != nil {
					targs[i] = a.Type.String()
				} else {
					targs[i] = ExprString(a.Value)
				}
			}
			fun += "<" + strings.Join(targs, ",") + ">"
		}
		return fun + "(" + strings.Join(args, ", ") + ")"
	case *MemberExpr:
		if x.Arrow {
			return ExprString(x.X) + "->" + x.Name
		}
		return ExprString(x.X) + "." + x.Name
	case *UnaryExpr:
		if x.Postfix {
			return ExprString(x.X) + x.Op
		}
		if x.Op == "sizeof" || x.Op == "delete" {
			return x.Op + " " + ExprString(x.X)
		}
		return x.Op + ExprString(x.X)
	case *BinaryExpr:
		return ExprString(x.X) + " " + x.Op + " " + ExprString(x.Y)
	case *AssignExpr:
		return ExprString(x.Lhs) + " " + x.Op + " " + ExprString(x.Rhs)
	case *SubscriptExpr:
		return ExprString(x.X) + "[" + ExprString(x.Index) + "]"
	case *CastExpr:
		return "(" + x.Type.String() + ")" + ExprString(x.X)
	case *NewExpr:
		return "new " + x.Type.String()
	case *ConditionalExpr:
		return ExprString(x.Cond) + " ? " + ExprString(x.Then) + " : " + ExprString(x.Else)
	case *InitListExpr:
		elems := make([]string, len(x.Elems))
		for i, el := range x.Elems {
			if i < len(x.Designators) && x.Designators[i] != "" {
				elems[i] = "." + x.Designators[i] + " = " + ExprString(el)
			} else {
				elems[i] = ExprString(el)
			}
		}
		return "{" + strings.Join(elems, ", ") + "}"
	case *LambdaExpr:
		return "[](...){...}"
	case *ThisExpr:
		return "this"
	}
	return "?"
}

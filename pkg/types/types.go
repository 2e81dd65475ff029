// Package types defines the semantic type model used by the resolver and the
// data-flow engine: primitives, records, pointers, references, arrays,
// function pointers and lazily resolved aliases.
package types

import (
	"fmt"
	"strings"
	"sync"
)

// Type is a semantic type.
type Type interface {
	String() string
	isType()
}

// Primitive is a builtin arithmetic or void type. Names are canonical, e.g.
// "unsigned int", "long long", "double".
type Primitive struct {
	Name string
}

// Record is a struct, class or union, identified by its qualified name.
// Template instantiations carry their argument list in the name (Box<int>).
type Record struct {
	Name          string
	QualifiedName string
	// Inferred marks records synthesized for names that never resolved.
	Inferred bool
}

// Pointer is Elem*.
type Pointer struct {
	Elem Type
}

// Reference is Elem&.
type Reference struct {
	Elem Type
}

// Array is Elem[Size]; Size is -1 when unknown.
type Array struct {
	Elem Type
	Size int
}

// FunctionPointer is the type of a function designator or pointer to function.
type FunctionPointer struct {
	Params   []Type
	Result   Type
	Variadic bool
}

// Const is a const-qualified type.
type Const struct {
	Elem Type
}

// TemplateParam is a placeholder for a template parameter inside a template's
// declarations. Index is its position in the parameter list.
type TemplateParam struct {
	Name  string
	Index int
}

// Constant is the value of a non-type template argument.
type Constant struct {
	Value int64
}

// Unknown is a type whose name could not be resolved or an expression whose
// type is not tracked.
type Unknown struct {
	Name string
}

type opaque struct{}

// Opaque is returned when resolution of a type fails fatally, for instance a
// cyclic alias chain. It is never equal to any other type.
var Opaque Type = opaque{}

// Alias is a typedef or alias-declaration. Its target is resolved lazily on
// first use and memoized.
type Alias struct {
	Name          string
	QualifiedName string

	once    sync.Once
	resolve func() Type
	target  Type
}

// NewAlias creates an alias whose target is computed by resolve on first
// access. resolve must not call Target on the alias being created.
func NewAlias(name, qualified string, resolve func() Type) *Alias {
	return &Alias{Name: name, QualifiedName: qualified, resolve: resolve}
}

// AliasOf creates an alias with an already known target.
func AliasOf(name, qualified string, target Type) *Alias {
	a := &Alias{Name: name, QualifiedName: qualified, target: target}
	a.once.Do(func() {})
	return a
}

// Target returns the aliased type, one level deep.
func (a *Alias) Target() Type {
	a.once.Do(func() {
		if a.resolve != nil {
			a.target = a.resolve()
		}
		if a.target == nil {
			a.target = &Unknown{Name: a.Name}
		}
	})
	return a.target
}

func (*Primitive) isType()       {}
func (*Record) isType()          {}
func (*Pointer) isType()         {}
func (*Reference) isType()       {}
func (*Array) isType()           {}
func (*FunctionPointer) isType() {}
func (*Const) isType()           {}
func (*TemplateParam) isType()   {}
func (*Constant) isType()        {}
func (*Unknown) isType()         {}
func (*Alias) isType()           {}
func (opaque) isType()           {}

func (p *Primitive) String() string { return p.Name }
func (r *Record) String() string {
	if r.QualifiedName != "" {
		return r.QualifiedName
	}
	return r.Name
}
func (p *Pointer) String() string   { return p.Elem.String() + "*" }
func (r *Reference) String() string { return r.Elem.String() + "&" }
func (a *Array) String() string {
	if a.Size >= 0 {
		return fmt.Sprintf("%s[%d]", a.Elem.String(), a.Size)
	}
	return a.Elem.String() + "[]"
}
func (f *FunctionPointer) String() string {
	ps := make([]string, len(f.Params))
	for i, p := range f.Params {
		ps[i] = p.String()
	}
	if f.Variadic {
		ps = append(ps, "...")
	}
	res := "void"
	if f.Result != nil {
		res = f.Result.String()
	}
	return fmt.Sprintf("%s(*)(%s)", res, strings.Join(ps, ","))
}
func (c *Const) String() string         { return "const " + c.Elem.String() }
func (t *TemplateParam) String() string { return t.Name }
func (c *Constant) String() string      { return fmt.Sprintf("%d", c.Value) }
func (u *Unknown) String() string {
	if u.Name == "" {
		return "?"
	}
	return u.Name
}
func (a *Alias) String() string {
	if a.QualifiedName != "" {
		return a.QualifiedName
	}
	return a.Name
}
func (opaque) String() string { return "<opaque>" }

// Builtin primitives.
var (
	Void       = &Primitive{Name: "void"}
	Bool       = &Primitive{Name: "bool"}
	Char       = &Primitive{Name: "char"}
	SChar      = &Primitive{Name: "signed char"}
	UChar      = &Primitive{Name: "unsigned char"}
	WChar      = &Primitive{Name: "wchar_t"}
	Short      = &Primitive{Name: "short"}
	UShort     = &Primitive{Name: "unsigned short"}
	Int        = &Primitive{Name: "int"}
	UInt       = &Primitive{Name: "unsigned int"}
	Long       = &Primitive{Name: "long"}
	ULong      = &Primitive{Name: "unsigned long"}
	LongLong   = &Primitive{Name: "long long"}
	ULongLong  = &Primitive{Name: "unsigned long long"}
	Float      = &Primitive{Name: "float"}
	Double     = &Primitive{Name: "double"}
	LongDouble = &Primitive{Name: "long double"}
	NullPtr    = &Primitive{Name: "nullptr_t"}
)

var builtins = map[string]*Primitive{}

// canonical spellings of multi-word builtins
var builtinSpellings = map[string]string{
	"signed":                 "int",
	"signed int":             "int",
	"unsigned":               "unsigned int",
	"short int":              "short",
	"signed short":           "short",
	"signed short int":       "short",
	"short unsigned":         "unsigned short",
	"unsigned short int":     "unsigned short",
	"long int":               "long",
	"signed long":            "long",
	"signed long int":        "long",
	"unsigned long int":      "unsigned long",
	"long unsigned":          "unsigned long",
	"long long int":          "long long",
	"signed long long":       "long long",
	"signed long long int":   "long long",
	"unsigned long long int": "unsigned long long",
	"_Bool":                  "bool",
	"size_t":                 "unsigned long",
	"ssize_t":                "long",
	"ptrdiff_t":              "long",
	"intptr_t":               "long",
	"uintptr_t":              "unsigned long",
	"int8_t":                 "signed char",
	"uint8_t":                "unsigned char",
	"int16_t":                "short",
	"uint16_t":               "unsigned short",
	"int32_t":                "int",
	"uint32_t":               "unsigned int",
	"int64_t":                "long",
	"uint64_t":               "unsigned long",
	"std::nullptr_t":         "nullptr_t",
}

func init() {
	for _, p := range []*Primitive{Void, Bool, Char, SChar, UChar, WChar, Short, UShort, Int, UInt,
		Long, ULong, LongLong, ULongLong, Float, Double, LongDouble, NullPtr} {
		builtins[p.Name] = p
	}
}

// LookupBuiltin returns the primitive spelled name, normalizing whitespace and
// common multi-word or fixed-width spellings.
func LookupBuiltin(name string) (*Primitive, bool) {
	name = strings.Join(strings.Fields(name), " ")
	if canon, ok := builtinSpellings[name]; ok {
		name = canon
	}
	p, ok := builtins[name]
	return p, ok
}

// IsBuiltinName reports whether name spells a builtin type.
func IsBuiltinName(name string) bool {
	_, ok := LookupBuiltin(name)
	return ok
}

// StripConst removes a top-level const qualifier.
func StripConst(t Type) Type {
	for {
		c, ok := t.(*Const)
		if !ok {
			return t
		}
		t = c.Elem
	}
}

// StripReference removes a top-level reference.
func StripReference(t Type) Type {
	if r, ok := t.(*Reference); ok {
		return r.Elem
	}
	return t
}

// IsConst reports whether t is const-qualified at the top level.
func IsConst(t Type) bool {
	_, ok := t.(*Const)
	return ok
}

// IsUnknown reports whether t carries no usable type information.
func IsUnknown(t Type) bool {
	switch x := t.(type) {
	case nil:
		return true
	case *Unknown:
		return true
	case *Record:
		return x.Inferred
	case opaque:
		return true
	}
	return false
}

// IsPointerLike reports whether values of t hold addresses: pointers, arrays,
// references and function pointers.
func IsPointerLike(t Type) bool {
	switch StripConst(t).(type) {
	case *Pointer, *Array, *Reference, *FunctionPointer:
		return true
	}
	return false
}

// Pointee returns the element type of a pointer or array, or nil.
func Pointee(t Type) Type {
	switch x := StripConst(StripReference(StripConst(t))).(type) {
	case *Pointer:
		return x.Elem
	case *Array:
		return x.Elem
	}
	return nil
}

// RecordOf returns the record a value of type t denotes, looking through
// const and references. It does not look through pointers.
func RecordOf(t Type) *Record {
	r, _ := StripConst(StripReference(StripConst(t))).(*Record)
	return r
}

// Equal reports structural equality. Both types must already be canonical:
// aliases are compared by name only.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch x := a.(type) {
	case *Primitive:
		y, ok := b.(*Primitive)
		return ok && x.Name == y.Name
	case *Record:
		y, ok := b.(*Record)
		return ok && x.String() == y.String()
	case *Pointer:
		y, ok := b.(*Pointer)
		return ok && Equal(x.Elem, y.Elem)
	case *Reference:
		y, ok := b.(*Reference)
		return ok && Equal(x.Elem, y.Elem)
	case *Array:
		y, ok := b.(*Array)
		return ok && Equal(x.Elem, y.Elem) && (x.Size == y.Size || x.Size < 0 || y.Size < 0)
	case *FunctionPointer:
		y, ok := b.(*FunctionPointer)
		if !ok || len(x.Params) != len(y.Params) || x.Variadic != y.Variadic {
			return false
		}
		for i := range x.Params {
			if !Equal(x.Params[i], y.Params[i]) {
				return false
			}
		}
		return Equal(orVoid(x.Result), orVoid(y.Result))
	case *Const:
		y, ok := b.(*Const)
		return ok && Equal(x.Elem, y.Elem)
	case *TemplateParam:
		y, ok := b.(*TemplateParam)
		return ok && x.Index == y.Index && x.Name == y.Name
	case *Constant:
		y, ok := b.(*Constant)
		return ok && x.Value == y.Value
	case *Unknown:
		y, ok := b.(*Unknown)
		return ok && x.Name == y.Name
	case *Alias:
		y, ok := b.(*Alias)
		return ok && x.String() == y.String()
	}
	return false
}

func orVoid(t Type) Type {
	if t == nil {
		return Void
	}
	return t
}

// Signature renders a parameter list, e.g. "(int,const char*)".
func Signature(params []Type, variadic bool) string {
	ps := make([]string, 0, len(params)+1)
	for _, p := range params {
		if p == nil {
			ps = append(ps, "?")
			continue
		}
		ps = append(ps, p.String())
	}
	if variadic {
		ps = append(ps, "...")
	}
	return "(" + strings.Join(ps, ",") + ")"
}

// Substitute replaces template parameter placeholders in t with the bound
// arguments. Unbound placeholders are left in place.
func Substitute(t Type, args []Type) Type {
	switch x := t.(type) {
	case *TemplateParam:
		if x.Index < len(args) && args[x.Index] != nil {
			return args[x.Index]
		}
		return x
	case *Pointer:
		return &Pointer{Elem: Substitute(x.Elem, args)}
	case *Reference:
		return &Reference{Elem: Substitute(x.Elem, args)}
	case *Array:
		return &Array{Elem: Substitute(x.Elem, args), Size: x.Size}
	case *Const:
		return &Const{Elem: Substitute(x.Elem, args)}
	case *FunctionPointer:
		ps := make([]Type, len(x.Params))
		for i, p := range x.Params {
			ps[i] = Substitute(p, args)
		}
		var res Type
		if x.Result != nil {
			res = Substitute(x.Result, args)
		}
		return &FunctionPointer{Params: ps, Result: res, Variadic: x.Variadic}
	}
	return t
}

// HasTemplateParam reports whether t mentions a template parameter.
func HasTemplateParam(t Type) bool {
	switch x := t.(type) {
	case *TemplateParam:
		return true
	case *Pointer:
		return HasTemplateParam(x.Elem)
	case *Reference:
		return HasTemplateParam(x.Elem)
	case *Array:
		return HasTemplateParam(x.Elem)
	case *Const:
		return HasTemplateParam(x.Elem)
	case *FunctionPointer:
		for _, p := range x.Params {
			if HasTemplateParam(p) {
				return true
			}
		}
		return x.Result != nil && HasTemplateParam(x.Result)
	}
	return false
}

package types

import "strings"

// Rank orders implicit conversions from an argument type to a parameter type.
// Lower is better.
type Rank int

const (
	RankExact Rank = iota
	RankQualification
	RankPromotion
	RankConversion
	RankFallback
	// RankNone means no implicit conversion exists; the candidate is not viable.
	RankNone
)

func (r Rank) String() string {
	switch r {
	case RankExact:
		return "exact"
	case RankQualification:
		return "qualification"
	case RankPromotion:
		return "promotion"
	case RankConversion:
		return "conversion"
	case RankFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Converter ranks conversions between canonical types. IsDerived, when set,
// reports whether the record named derived has base among its bases
// (transitively) and enables derived-to-base conversions.
type Converter struct {
	IsDerived func(derived, base string) bool
}

var integralRank = map[string]int{
	"bool":               1,
	"char":               2,
	"signed char":        2,
	"unsigned char":      2,
	"wchar_t":            3,
	"short":              3,
	"unsigned short":     3,
	"int":                4,
	"unsigned int":       4,
	"long":               5,
	"unsigned long":      5,
	"long long":          6,
	"unsigned long long": 6,
}

var floatingRank = map[string]int{
	"float":       1,
	"double":      2,
	"long double": 3,
}

// IsIntegral reports whether t is a builtin integral type.
func IsIntegral(t Type) bool {
	p, ok := StripConst(t).(*Primitive)
	if !ok {
		return false
	}
	_, ok = integralRank[p.Name]
	return ok
}

// IsFloating reports whether t is a builtin floating type.
func IsFloating(t Type) bool {
	p, ok := StripConst(t).(*Primitive)
	if !ok {
		return false
	}
	_, ok = floatingRank[p.Name]
	return ok
}

// IsArithmetic reports whether t is integral or floating.
func IsArithmetic(t Type) bool {
	return IsIntegral(t) || IsFloating(t)
}

// Promote applies integral promotion: types narrower than int become int.
func Promote(t Type) Type {
	p, ok := StripConst(t).(*Primitive)
	if !ok {
		return t
	}
	if r, ok := integralRank[p.Name]; ok && r < integralRank["int"] {
		return Int
	}
	return p
}

// CommonArithmetic returns the usual arithmetic conversion of two operand types.
func CommonArithmetic(a, b Type) Type {
	a, b = Promote(StripConst(a)), Promote(StripConst(b))
	pa, okA := a.(*Primitive)
	pb, okB := b.(*Primitive)
	if !okA || !okB {
		if okA {
			return pa
		}
		return b
	}
	fa, fb := floatingRank[pa.Name], floatingRank[pb.Name]
	switch {
	case fa > 0 || fb > 0:
		if fa >= fb {
			return pa
		}
		return pb
	}
	ra, rb := integralRank[pa.Name], integralRank[pb.Name]
	if ra > rb {
		return pa
	}
	if rb > ra {
		return pb
	}
	if strings.HasPrefix(pb.Name, "unsigned") {
		return pb
	}
	return pa
}

// Rank computes the conversion rank of passing an argument of type arg to a
// parameter of type param. Both types must be canonical.
func (c Converter) Rank(param, arg Type) Rank {
	if param == nil || arg == nil {
		return RankFallback
	}
	if _, ok := param.(*TemplateParam); ok {
		return RankFallback
	}
	if IsUnknown(param) || IsUnknown(arg) {
		return RankFallback
	}

	// Reference binding ranks like initialization of the referent; adding
	// const to the referent is a qualification adjustment.
	if ref, ok := param.(*Reference); ok {
		target := ref.Elem
		a := StripReference(arg)
		if IsConst(target) && !IsConst(a) {
			r := c.Rank(StripConst(target), a)
			if r == RankExact {
				return RankQualification
			}
			return r
		}
		if !IsConst(target) && IsConst(a) {
			return RankNone
		}
		return c.Rank(StripConst(target), StripConst(a))
	}

	// Top-level cv-qualifiers of by-value parameters do not participate.
	p := StripConst(param)
	a := StripConst(StripReference(arg))

	if Equal(p, a) {
		return RankExact
	}

	switch pt := p.(type) {
	case *Primitive:
		ap, ok := a.(*Primitive)
		if !ok {
			if pt.Name == "bool" {
				// pointer to bool
				if _, isPtr := a.(*Pointer); isPtr {
					return RankConversion
				}
			}
			return RankNone
		}
		return arithmeticRank(pt, ap)
	case *Pointer:
		return c.pointerRank(pt, a)
	case *FunctionPointer:
		switch at := a.(type) {
		case *Pointer:
			if fp, ok := at.Elem.(*FunctionPointer); ok && Equal(pt, fp) {
				return RankExact
			}
		case *Primitive:
			if at == NullPtr {
				return RankConversion
			}
		}
		return RankNone
	case *Record:
		if ar, ok := a.(*Record); ok {
			if c.IsDerived != nil && c.IsDerived(ar.String(), pt.String()) {
				return RankConversion
			}
		}
		return RankNone
	case *Array:
		if aa, ok := a.(*Array); ok && Equal(StripConst(pt.Elem), StripConst(aa.Elem)) {
			return RankExact
		}
		return RankNone
	}
	return RankNone
}

func arithmeticRank(p, a *Primitive) Rank {
	if p == NullPtr || a == NullPtr {
		return RankNone
	}
	if p.Name == "void" || a.Name == "void" {
		return RankNone
	}
	_, pi := integralRank[p.Name]
	_, pf := floatingRank[p.Name]
	_, ai := integralRank[a.Name]
	_, af := floatingRank[a.Name]
	if !(pi || pf) || !(ai || af) {
		return RankNone
	}
	if p.Name == "int" && ai && integralRank[a.Name] < integralRank["int"] {
		return RankPromotion
	}
	if p.Name == "double" && a.Name == "float" {
		return RankPromotion
	}
	return RankConversion
}

func (c Converter) pointerRank(p *Pointer, a Type) Rank {
	var elem Type
	switch at := a.(type) {
	case *Pointer:
		elem = at.Elem
	case *Array:
		// array-to-pointer decay is an exact-match conversion
		elem = at.Elem
	case *FunctionPointer:
		if fp, ok := p.Elem.(*FunctionPointer); ok && Equal(fp, at) {
			return RankExact
		}
		return RankNone
	case *Primitive:
		if at == NullPtr {
			return RankConversion
		}
		return RankNone
	default:
		return RankNone
	}

	pe := p.Elem
	if IsUnknown(StripConst(pe)) || IsUnknown(StripConst(elem)) {
		return RankFallback
	}
	if Equal(pe, elem) {
		return RankExact
	}
	if IsConst(pe) && Equal(StripConst(pe), StripConst(elem)) {
		return RankQualification
	}
	if !IsConst(pe) && IsConst(elem) {
		return RankNone
	}
	if prim, ok := StripConst(pe).(*Primitive); ok && prim.Name == "void" {
		return RankConversion
	}
	pr, okP := StripConst(pe).(*Record)
	ar, okA := StripConst(elem).(*Record)
	if okP && okA && c.IsDerived != nil && c.IsDerived(ar.String(), pr.String()) {
		return RankConversion
	}
	return RankNone
}

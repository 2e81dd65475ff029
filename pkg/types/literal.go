package types

import (
	"math"
	"strconv"
	"strings"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

// LiteralType returns the type of a literal. Integer literals take the first
// of int, long, long long (or their unsigned forms when suffixed or when only
// an unsigned type can hold a hex/octal value) that can represent the value.
func LiteralType(lit *ast.Literal) Type {
	switch lit.Kind {
	case ast.IntLit:
		return IntegerLiteralType(lit.Value)
	case ast.FloatLit:
		v := strings.ToLower(lit.Value)
		switch {
		case strings.HasSuffix(v, "f") && !strings.HasPrefix(v, "0x"):
			return Float
		case strings.HasSuffix(v, "l"):
			return LongDouble
		}
		return Double
	case ast.CharLit:
		if strings.HasPrefix(lit.Value, "L") {
			return WChar
		}
		return Char
	case ast.StringLit:
		return &Array{Elem: &Const{Elem: Char}, Size: len(lit.Value) + 1}
	case ast.BoolLit:
		return Bool
	case ast.NullLit:
		return NullPtr
	}
	return &Unknown{}
}

// IntegerLiteralType infers the type of an integer literal from its suffix
// and magnitude.
func IntegerLiteralType(text string) Type {
	digits, unsigned, longs := splitIntegerSuffix(text)
	v, ok := ParseInteger(digits)
	decimal := !(strings.HasPrefix(digits, "0") && len(digits) > 1)

	candidates := []*Primitive{Int, Long, LongLong}
	if longs == 1 {
		candidates = []*Primitive{Long, LongLong}
	} else if longs == 2 {
		candidates = []*Primitive{LongLong}
	}
	if !ok {
		// too large for uint64 parsing: widest type
		if unsigned {
			return ULongLong
		}
		return LongLong
	}
	for _, c := range candidates {
		signedMax, unsignedMax := limits(c)
		if unsigned {
			if v <= unsignedMax {
				return unsignedOf(c)
			}
			continue
		}
		if v <= signedMax {
			return c
		}
		if !decimal && v <= unsignedMax {
			return unsignedOf(c)
		}
	}
	if unsigned || !decimal {
		return ULongLong
	}
	return LongLong
}

// ParseInteger parses an integer literal body (no suffix) in C syntax:
// decimal, 0x hex, 0b binary or leading-zero octal. Digit separators are
// accepted.
func ParseInteger(s string) (uint64, bool) {
	s = strings.ReplaceAll(s, "'", "")
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		base, s = 2, s[2:]
	case len(s) > 1 && s[0] == '0':
		base, s = 8, s[1:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func splitIntegerSuffix(text string) (digits string, unsigned bool, longs int) {
	i := len(text)
	for i > 0 {
		c := text[i-1]
		if c == 'u' || c == 'U' || c == 'l' || c == 'L' || c == 'z' || c == 'Z' {
			i--
			continue
		}
		break
	}
	suffix := strings.ToLower(text[i:])
	unsigned = strings.Contains(suffix, "u")
	longs = strings.Count(suffix, "l")
	if strings.Contains(suffix, "z") {
		longs = 1
	}
	return text[:i], unsigned, longs
}

func limits(p *Primitive) (signedMax, unsignedMax uint64) {
	switch p {
	case Int:
		return math.MaxInt32, math.MaxUint32
	default:
		return math.MaxInt64, math.MaxUint64
	}
}

func unsignedOf(p *Primitive) *Primitive {
	switch p {
	case Int:
		return UInt
	case Long:
		return ULong
	case LongLong:
		return ULongLong
	}
	return p
}

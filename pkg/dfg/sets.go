package dfg

import (
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/l3aro/go-flow-query/pkg/scope"
)

// AliasSet is the set of locations a pointer-valued expression may point
// to. External stands for storage outside the analyzed program. Approximate
// is set when the set comes from a function whose fixpoint was cut off.
type AliasSet struct {
	locs        *roaring.Bitmap
	External    bool
	Approximate bool
}

// NewAliasSet returns a set holding ids.
func NewAliasSet(ids ...uint32) AliasSet {
	s := AliasSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// ExternalSet returns the set holding only external storage.
func ExternalSet() AliasSet { return AliasSet{External: true} }

// Add inserts id.
func (s *AliasSet) Add(id uint32) {
	if s.locs == nil {
		s.locs = roaring.New()
	}
	s.locs.Add(id)
}

// Contains reports whether id is in the set.
func (s AliasSet) Contains(id uint32) bool {
	return s.locs != nil && s.locs.Contains(id)
}

// Len returns the number of locations, not counting External.
func (s AliasSet) Len() int {
	if s.locs == nil {
		return 0
	}
	return int(s.locs.GetCardinality())
}

// IsEmpty reports whether the set holds nothing, not even External.
func (s AliasSet) IsEmpty() bool { return s.Len() == 0 && !s.External }

// IDs returns the locations in ascending order.
func (s AliasSet) IDs() []uint32 {
	if s.locs == nil {
		return nil
	}
	return s.locs.ToArray()
}

// Single returns the only location of a set with exactly one location and no
// external member.
func (s AliasSet) Single() (uint32, bool) {
	if s.External || s.Len() != 1 {
		return 0, false
	}
	return s.locs.Minimum(), true
}

// Clone returns an independent copy. Assignment copies sets so later
// updates of the source never show through the target.
func (s AliasSet) Clone() AliasSet {
	out := AliasSet{External: s.External, Approximate: s.Approximate}
	if s.locs != nil && !s.locs.IsEmpty() {
		out.locs = s.locs.Clone()
	}
	return out
}

// Union adds every member of o and reports whether s grew.
func (s *AliasSet) Union(o AliasSet) bool {
	changed := false
	if o.External && !s.External {
		s.External = true
		changed = true
	}
	if o.Approximate && !s.Approximate {
		s.Approximate = true
		changed = true
	}
	if o.locs == nil || o.locs.IsEmpty() {
		return changed
	}
	if s.locs == nil {
		s.locs = o.locs.Clone()
		return true
	}
	before := s.locs.GetCardinality()
	s.locs.Or(o.locs)
	return changed || s.locs.GetCardinality() != before
}

// Equal reports whether both sets hold the same members.
func (s AliasSet) Equal(o AliasSet) bool {
	if s.External != o.External || s.Len() != o.Len() {
		return false
	}
	if s.Len() == 0 {
		return true
	}
	return s.locs.Equals(o.locs)
}

// Render prints the set using names from locs, e.g. "{a, b, <external>}".
func (s AliasSet) Render(locs *Locations) string {
	var parts []string
	for _, id := range s.IDs() {
		parts = append(parts, locs.Name(id))
	}
	sort.Strings(parts)
	if s.External {
		parts = append(parts, "<external>")
	}
	out := "{" + strings.Join(parts, ", ") + "}"
	if s.Approximate {
		out += "~"
	}
	return out
}

// DefaultValueSetLimit bounds the constants a ValueSet tracks before it
// degrades to unknown.
const DefaultValueSetLimit = 8

// ValueSet is the set of scalar values an expression may take: integer
// constants plus symbolic values of parameters. Unknown means any value.
type ValueSet struct {
	Consts  []int64
	Syms    []*scope.Declaration
	Unknown bool
}

// ConstValue returns the set holding only v.
func ConstValue(v int64) ValueSet { return ValueSet{Consts: []int64{v}} }

// SymValue returns the set holding the entry value of parameter d.
func SymValue(d *scope.Declaration) ValueSet { return ValueSet{Syms: []*scope.Declaration{d}} }

// UnknownValue returns the set of any value.
func UnknownValue() ValueSet { return ValueSet{Unknown: true} }

// IsEmpty reports whether no value was recorded.
func (v ValueSet) IsEmpty() bool { return !v.Unknown && len(v.Consts) == 0 && len(v.Syms) == 0 }

// Const returns the value of a singleton constant set.
func (v ValueSet) Const() (int64, bool) {
	if v.Unknown || len(v.Syms) > 0 || len(v.Consts) != 1 {
		return 0, false
	}
	return v.Consts[0], true
}

// Clone returns an independent copy.
func (v ValueSet) Clone() ValueSet {
	return ValueSet{
		Consts:  append([]int64(nil), v.Consts...),
		Syms:    append([]*scope.Declaration(nil), v.Syms...),
		Unknown: v.Unknown,
	}
}

// Union adds the members of o, degrading to unknown past limit entries. It
// reports whether v grew.
func (v *ValueSet) Union(o ValueSet, limit int) bool {
	if v.Unknown {
		return false
	}
	if o.Unknown {
		*v = UnknownValue()
		return true
	}
	changed := false
	for _, c := range o.Consts {
		i := sort.Search(len(v.Consts), func(i int) bool { return v.Consts[i] >= c })
		if i < len(v.Consts) && v.Consts[i] == c {
			continue
		}
		v.Consts = append(v.Consts, 0)
		copy(v.Consts[i+1:], v.Consts[i:])
		v.Consts[i] = c
		changed = true
	}
	for _, s := range o.Syms {
		if !containsDecl(v.Syms, s) {
			v.Syms = append(v.Syms, s)
			sort.Slice(v.Syms, func(i, j int) bool { return v.Syms[i].Seq < v.Syms[j].Seq })
			changed = true
		}
	}
	if limit > 0 && len(v.Consts)+len(v.Syms) > limit {
		*v = UnknownValue()
		return true
	}
	return changed
}

// Equal reports whether both sets hold the same members.
func (v ValueSet) Equal(o ValueSet) bool {
	if v.Unknown || o.Unknown {
		return v.Unknown == o.Unknown
	}
	if len(v.Consts) != len(o.Consts) || len(v.Syms) != len(o.Syms) {
		return false
	}
	for i := range v.Consts {
		if v.Consts[i] != o.Consts[i] {
			return false
		}
	}
	for i := range v.Syms {
		if v.Syms[i] != o.Syms[i] {
			return false
		}
	}
	return true
}

// Map applies a binary operator to every pair of constants. Symbolic
// operands make the result unknown.
func (v ValueSet) Map(o ValueSet, limit int, op func(a, b int64) (int64, bool)) ValueSet {
	if v.Unknown || o.Unknown || len(v.Syms) > 0 || len(o.Syms) > 0 || len(v.Consts) == 0 || len(o.Consts) == 0 {
		return UnknownValue()
	}
	var out ValueSet
	for _, a := range v.Consts {
		for _, b := range o.Consts {
			r, ok := op(a, b)
			if !ok {
				return UnknownValue()
			}
			out.Union(ConstValue(r), limit)
			if out.Unknown {
				return out
			}
		}
	}
	return out
}

func (v ValueSet) String() string {
	if v.Unknown {
		return "{?}"
	}
	var parts []string
	for _, c := range v.Consts {
		parts = append(parts, strconv.FormatInt(c, 10))
	}
	for _, s := range v.Syms {
		parts = append(parts, "$"+s.Name)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func containsDecl(list []*scope.Declaration, d *scope.Declaration) bool {
	for _, x := range list {
		if x == d {
			return true
		}
	}
	return false
}

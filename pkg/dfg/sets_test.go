package dfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

func TestAliasSet_CloneIsIndependent(t *testing.T) {
	a := NewAliasSet(1, 2)
	b := a.Clone()
	b.Add(3)

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 3, b.Len())
	assert.False(t, a.Contains(3))
}

func TestAliasSet_Union(t *testing.T) {
	var s AliasSet
	assert.True(t, s.IsEmpty())

	assert.True(t, s.Union(NewAliasSet(4)))
	assert.False(t, s.Union(NewAliasSet(4)))
	assert.True(t, s.Union(ExternalSet()))
	assert.Equal(t, []uint32{4}, s.IDs())
	assert.True(t, s.External)

	_, single := s.Single()
	assert.False(t, single, "external members make a set ambiguous")
}

func TestValueSet_UnionDegradesPastLimit(t *testing.T) {
	var v ValueSet
	for i := int64(0); i < 3; i++ {
		v.Union(ConstValue(i), 3)
	}
	assert.Equal(t, "{0, 1, 2}", v.String())

	assert.True(t, v.Union(ConstValue(9), 3))
	assert.True(t, v.Unknown)
	assert.False(t, v.Union(ConstValue(10), 3))
}

func TestValueSet_Map(t *testing.T) {
	add := func(a, b int64) (int64, bool) { return a + b, true }
	div := func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}
	p := &scope.Declaration{Kind: scope.Variable, Name: "n"}

	tests := []struct {
		name string
		a, b ValueSet
		op   func(a, b int64) (int64, bool)
		want string
	}{
		{"pairwise", ValueSet{Consts: []int64{1, 2}}, ConstValue(10), add, "{11, 12}"},
		{"collapsing results", ValueSet{Consts: []int64{1, 2}}, ValueSet{Consts: []int64{2, 1}}, add, "{2, 3, 4}"},
		{"symbolic operand", SymValue(p), ConstValue(1), add, "{?}"},
		{"undefined operation", ConstValue(1), ConstValue(0), div, "{?}"},
		{"empty operand", ValueSet{}, ConstValue(1), add, "{?}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Map(tt.b, DefaultValueSetLimit, tt.op).String())
		})
	}
}

func TestLocations_Interning(t *testing.T) {
	locs := NewLocations()
	d := &scope.Declaration{Kind: scope.Variable, Name: "s"}

	v := locs.Var(d)
	assert.Equal(t, v, locs.Var(d))

	f := locs.Field(v, "next")
	assert.Equal(t, f, locs.Field(v, "next"))
	assert.Equal(t, "s.next", locs.Name(f))

	p := locs.Deref(f)
	assert.Equal(t, "*s.next", locs.Name(p))
	assert.Equal(t, LocVar, locs.Root(p).Kind)

	site := &ast.NewExpr{}
	assert.Equal(t, locs.Heap(site), locs.Heap(site))
	assert.NotEqual(t, locs.Heap(site), locs.Heap(&ast.NewExpr{}))
}

func TestLocations_FieldChainsAreBounded(t *testing.T) {
	locs := NewLocations()
	d := &scope.Declaration{Kind: scope.Variable, Name: "list"}

	cur := locs.Var(d)
	seen := map[uint32]bool{}
	for i := 0; i < 50; i++ {
		cur = locs.Deref(locs.Field(cur, "next"))
		seen[cur] = true
	}
	require.Less(t, len(seen), 50, "recursive structures must map to finitely many locations")
}

func TestState_Keys(t *testing.T) {
	st := newState()
	st.set(9, Content{})
	st.set(2, Content{Pts: NewAliasSet(1)})
	st.set(5, Content{})
	assert.Equal(t, []uint32{2, 5, 9}, st.keys())

	cl := st.clone()
	c, _ := cl.get(2)
	c.Pts.Add(7)
	orig, _ := st.get(2)
	assert.False(t, orig.Pts.Contains(7))
}

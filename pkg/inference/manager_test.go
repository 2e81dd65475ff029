package inference

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

func TestInferFunctionIsIdempotent(t *testing.T) {
	m := NewManager(log.Discard())
	global := scope.NewTable("t.cpp").Global

	first := m.InferFunction(global, "frob", []types.Type{types.Int}, nil)
	second := m.InferFunction(global, "frob", []types.Type{types.Int}, nil)

	assert.Same(t, first, second)
	assert.True(t, first.Inferred)
	assert.Equal(t, scope.Function, first.Kind)
	assert.Equal(t, "frob", first.QualifiedName)
	require.Len(t, first.Params, 1)
	assert.Equal(t, "arg0", first.Params[0].Name)
	assert.True(t, global.Contains(first))
	assert.Equal(t, 1, m.Len())
}

func TestInferFunctionDistinctSignatures(t *testing.T) {
	m := NewManager(log.Discard())
	global := scope.NewTable("t.cpp").Global

	a := m.InferFunction(global, "frob", []types.Type{types.Int}, nil)
	b := m.InferFunction(global, "frob", []types.Type{types.Double}, nil)
	c := m.InferFunction(global, "frob", nil, types.Void)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, m.Len())

	_, decls := global.Lookup("frob")
	assert.Len(t, decls, 3)

	got, ok := m.Lookup(Key{Name: "frob", Signature: "(double)"})
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = m.Lookup(Key{Name: "frob", Signature: "(char)"})
	assert.False(t, ok)
}

func TestInferFunctionConcurrent(t *testing.T) {
	m := NewManager(log.Discard())

	// Each unit has its own table; the registry hands every one of them the
	// same declaration and declares it in each unit's scope.
	const units = 16
	tables := make([]*scope.Table, units)
	for i := range tables {
		tables[i] = scope.NewTable("u.c")
	}

	results := make([]*scope.Declaration, units)
	var wg sync.WaitGroup
	for i := 0; i < units; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.InferFunction(tables[i].Global, "missing", []types.Type{types.Int, types.Int}, nil)
		}(i)
	}
	wg.Wait()

	for i := 1; i < units; i++ {
		assert.Same(t, results[0], results[i])
	}
	for _, tbl := range tables {
		assert.True(t, tbl.Global.Contains(results[0]))
	}
	assert.Equal(t, 1, m.Len())
}

func TestInferMethod(t *testing.T) {
	m := NewManager(log.Discard())
	global := scope.NewTable("t.cpp").Global

	rec := m.InferRecord(global, "Widget")
	require.NotNil(t, rec.Members)

	meth := m.InferMethod(rec.Members, "draw", nil, nil)
	assert.Equal(t, scope.Method, meth.Kind)
	assert.Equal(t, "Widget::draw", meth.QualifiedName)
	assert.True(t, meth.Inferred)
	assert.Same(t, meth, m.InferMethod(rec.Members, "draw", nil, nil))
}

func TestInferRecord(t *testing.T) {
	m := NewManager(log.Discard())
	global := scope.NewTable("t.cpp").Global

	d := m.InferRecord(global, "Opaque")
	assert.Equal(t, scope.Record, d.Kind)
	assert.True(t, d.Inferred)

	rec, ok := d.Type.(*types.Record)
	require.True(t, ok)
	assert.True(t, rec.Inferred)
	assert.Equal(t, "Opaque", rec.QualifiedName)
	assert.True(t, types.IsUnknown(rec))

	assert.Same(t, d, m.InferRecord(global, "Opaque"))
}

func TestInferNamespace(t *testing.T) {
	m := NewManager(log.Discard())
	global := scope.NewTable("t.cpp").Global

	existing := global.OpenNamespace("net", nil)
	assert.Same(t, existing, m.InferNamespace(global, "net"))
	assert.Equal(t, 0, m.Len())

	ns := m.InferNamespace(global, "gfx")
	require.NotNil(t, ns)
	assert.True(t, ns.Inferred)
	assert.Same(t, ns, global.Namespace("gfx"))
	assert.Same(t, ns, m.InferNamespace(global, "gfx"))
	assert.Equal(t, 1, m.Len())

	fn := m.InferFunction(ns, "init", nil, nil)
	assert.Equal(t, "gfx::init", fn.QualifiedName)
}

func TestAllKeepsCreationOrder(t *testing.T) {
	m := NewManager(nil)
	global := scope.NewTable("t.cpp").Global

	a := m.InferFunction(global, "b", nil, nil)
	b := m.InferRecord(global, "A")
	c := m.InferFunction(global, "a", nil, nil)

	all := m.All()
	require.Len(t, all, 3)
	assert.Same(t, a, all[0])
	assert.Same(t, b, all[1])
	assert.Same(t, c, all[2])
}

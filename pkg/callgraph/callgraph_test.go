package callgraph

import (
	"context"
	"testing"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/typeres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decl(name string, seq int64) *scope.Declaration {
	return &scope.Declaration{Kind: scope.Function, Name: name, QualifiedName: name, Seq: seq}
}

func TestGraph_AddEdgeDeduplicates(t *testing.T) {
	g := NewGraph()
	a, b, c := decl("a", 1), decl("b", 2), decl("c", 3)
	site := &ast.CallExpr{}

	g.AddEdge(Edge{Caller: a, Callee: c, Site: site, Kind: StaticCall})
	g.AddEdge(Edge{Caller: a, Callee: c, Site: site, Kind: StaticCall})
	g.AddEdge(Edge{Caller: a, Callee: b, Site: &ast.CallExpr{}, Kind: IndirectCall})

	assert.Len(t, g.Edges(), 2)
	// callees come back in declaration order
	assert.Equal(t, []*scope.Declaration{b, c}, g.Callees(a))
	assert.Equal(t, []*scope.Declaration{a}, g.Callers(c))
	assert.Empty(t, g.Callers(a))
}

func TestGraph_AddSite(t *testing.T) {
	tests := []struct {
		name       string
		site       *CallSite
		edges      int
		unresolved int
	}{
		{"static", &CallSite{Kind: StaticCall, Target: decl("f", 1)}, 1, 0},
		{"indirect has no static edge", &CallSite{Kind: IndirectCall}, 0, 0},
		{"unresolved", &CallSite{Kind: UnresolvedCall}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			tt.site.Call = &ast.CallExpr{Fun: &ast.Ident{Name: "f"}}
			tt.site.Caller = decl("main", 0)
			g.AddSite(tt.site)
			assert.Len(t, g.Sites(), 1)
			assert.Len(t, g.Edges(), tt.edges)
			assert.Len(t, g.UnresolvedCalls(), tt.unresolved)
		})
	}
}

func TestGraph_MergeAndStats(t *testing.T) {
	a, b := NewGraph(), NewGraph()
	a.AddSite(&CallSite{Call: &ast.CallExpr{}, Caller: decl("x", 1), Kind: StaticCall, Target: decl("y", 2)})
	b.AddSite(&CallSite{Call: &ast.CallExpr{}, Caller: decl("z", 3), Kind: VirtualCall, Dynamic: true, Target: decl("w", 4)})
	b.AddSite(&CallSite{Call: &ast.CallExpr{}, Kind: InferredCall, Target: decl("v", 5)})

	a.Merge(b)
	a.Merge(a)

	st := a.Stats()
	assert.Equal(t, 3, st.Sites)
	assert.Equal(t, 3, st.Edges)
	assert.Equal(t, 1, st.Static)
	assert.Equal(t, 1, st.Virtual)
	assert.Equal(t, 1, st.Inferred)
}

func unitResolution(t *testing.T, file string, decls ...ast.Decl) (*scope.Table, *Resolution) {
	t.Helper()
	table := scope.Build(&ast.TranslationUnit{File: file, Decls: decls})
	tr := typeres.New(table, nil, nil, log.Discard())
	res, err := NewResolver(tr, nil, nil, log.Discard()).Resolve(context.Background())
	require.NoError(t, err)
	return table, res
}

func TestProjectIndex_LinksPrototypesToDefinitions(t *testing.T) {
	work := call(id("work"), intLit("1"))
	_, resA := unitResolution(t, "a.cpp",
		proto("work", param("n", ast.Named("int"))),
		def("main", nil, stmt(work)),
	)
	tableB, _ := unitResolution(t, "b.cpp",
		def("work", []*ast.ParamDecl{param("n", ast.Named("int"))}),
		def("other", nil),
	)

	idx := NewProjectIndex()
	idx.AddTable(tableB)

	entry, ok := idx.Lookup("work", "(int)")
	require.True(t, ok)
	assert.Equal(t, "b.cpp", entry.File)
	assert.Equal(t, []string{"other()", "work(int)"}, idx.FunctionsInFile("b.cpp"))

	prototype := resA.Calls[work].Target
	require.NotNil(t, prototype)
	assert.Nil(t, prototype.Body)
	assert.Same(t, entry.Decl, idx.Definition(prototype))

	assert.Equal(t, 1, idx.Link(resA.Graph))
	assert.Equal(t, 0, idx.Link(resA.Graph))
	callees := resA.Graph.Callees(resA.Calls[work].Caller)
	assert.Contains(t, callees, entry.Decl)

	st := idx.Stats()
	assert.Equal(t, 2, st.TotalFunctions)
	assert.Equal(t, 1, st.TotalFiles)
	assert.Equal(t, 1, st.Linked)
}

func TestProjectIndex_InferredMatchesOnlyDefinition(t *testing.T) {
	tableB, _ := unitResolution(t, "b.cpp",
		def("helper", []*ast.ParamDecl{param("p", ast.PointerTo(ast.Named("char")))}),
	)
	idx := NewProjectIndex()
	idx.AddTable(tableB)

	inferred := &scope.Declaration{Kind: scope.Function, Name: "helper", QualifiedName: "helper", Inferred: true}
	assert.NotSame(t, inferred, idx.Definition(inferred))

	notInferred := &scope.Declaration{Kind: scope.Function, Name: "helper", QualifiedName: "helper"}
	assert.Same(t, notInferred, idx.Definition(notInferred))
}

package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/cache"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

func id(name string) *ast.Ident { return &ast.Ident{Name: name} }

func intLit(v string) *ast.Literal { return &ast.Literal{Kind: ast.IntLit, Value: v} }

func call(fun ast.Expr, args ...ast.Expr) *ast.CallExpr { return &ast.CallExpr{Fun: fun, Args: args} }

func stmt(e ast.Expr) *ast.ExprStmt { return &ast.ExprStmt{X: e} }

func param(name string, typ *ast.TypeRef) *ast.ParamDecl { return &ast.ParamDecl{Name: name, Type: typ} }

func local(name string, typ *ast.TypeRef, init ast.Expr) *ast.DeclStmt {
	return &ast.DeclStmt{Decls: []ast.Decl{&ast.VarDecl{Name: name, Type: typ, Init: init}}}
}

func def(name string, ps []*ast.ParamDecl, body ...ast.Stmt) *ast.FunctionDecl {
	return &ast.FunctionDecl{Name: name, Result: ast.Named("void"), Params: ps, Body: &ast.CompoundStmt{List: body}}
}

func proto(name string, ps ...*ast.ParamDecl) *ast.FunctionDecl {
	return &ast.FunctionDecl{Name: name, Result: ast.Named("void"), Params: ps}
}

func unit(file string, decls ...ast.Decl) Unit {
	return Unit{File: file, TU: &ast.TranslationUnit{File: file, Decls: decls}}
}

var intPtr = ast.PointerTo(ast.Named("int"))

// definition returns the function named name with a body in table.
func definition(t *testing.T, table *scope.Table, name string) *scope.Declaration {
	t.Helper()
	for _, d := range table.Qualified(name) {
		if d.Body != nil {
			return d
		}
	}
	t.Fatalf("no definition of %s", name)
	return nil
}

type fakeParser struct {
	units map[string]*ast.TranslationUnit
}

func (p *fakeParser) ParseFile(_ context.Context, path string) (*ast.TranslationUnit, error) {
	if path == "panic.cpp" {
		panic("parser bug")
	}
	tu, ok := p.units[path]
	if !ok {
		return nil, errors.New("syntax error")
	}
	return tu, nil
}

func TestAnalyze_LinksCallsAcrossUnits(t *testing.T) {
	a := unit("a.cpp",
		def("target", []*ast.ParamDecl{param("p", intPtr)}),
		def("helper", []*ast.ParamDecl{param("a", ast.Named("int")), param("b", ast.Named("int"))}),
	)
	b := unit("b.cpp",
		proto("target", param("p", intPtr)),
		def("caller", nil,
			local("x", ast.Named("int"), nil),
			stmt(call(id("target"), &ast.UnaryExpr{Op: "&", X: id("x")})),
			stmt(call(id("helper"), intLit("1"), intLit("2"))),
		),
	)

	r, err := New(Config{Workers: 2}, log.Discard()).Analyze(context.Background(), []Unit{a, b})
	require.NoError(t, err)
	assert.Empty(t, r.Failed())
	assert.NotEmpty(t, r.RunID)
	require.Len(t, r.Units, 2)
	assert.Equal(t, "a.cpp", r.Units[0].File)

	target := definition(t, r.Unit("a.cpp").Table, "target")
	helper := definition(t, r.Unit("a.cpp").Table, "helper")
	caller := definition(t, r.Unit("b.cpp").Table, "caller")

	// one edge to the prototype, one to the inferred helper
	assert.Equal(t, 2, r.Linked)
	callees := r.Graph.Callees(caller)
	assert.Contains(t, callees, target)
	assert.Contains(t, callees, helper)

	require.Len(t, r.Inferred, 1)
	assert.Equal(t, "helper", r.Inferred[0].Name)
	assert.Len(t, r.Unit("b.cpp").Table.Global.Local("helper"), 1, "inferred helper is declared in the calling unit")

	// the merged table sees both units
	assert.NotEmpty(t, r.Table.Qualified("target"))
	assert.NotEmpty(t, r.Table.Qualified("caller"))
	assert.Equal(t, 3, r.Index.Stats().TotalFunctions)
}

func TestAnalyze_InferenceSharedAcrossUnits(t *testing.T) {
	first := unit("one.cpp", def("f", nil, stmt(call(id("innerTarget"), intLit("1"), intLit("2"), intLit("3")))))
	second := unit("two.cpp", def("g", nil, stmt(call(id("innerTarget"), intLit("4"), intLit("5"), intLit("6")))))

	r, err := New(Config{}, log.Discard()).Analyze(context.Background(), []Unit{first, second})
	require.NoError(t, err)

	require.Len(t, r.Inferred, 1)
	assert.Equal(t, "innerTarget(int,int,int)", r.Inferred[0].String())

	one := r.Unit("one.cpp").Resolution
	two := r.Unit("two.cpp").Resolution
	var targets []*scope.Declaration
	for _, site := range one.Graph.Sites() {
		targets = append(targets, site.Target)
	}
	for _, site := range two.Graph.Sites() {
		targets = append(targets, site.Target)
	}
	require.Len(t, targets, 2)
	assert.Same(t, targets[0], targets[1])
}

func TestAnalyze_FailingUnitDoesNotAffectSiblings(t *testing.T) {
	good := &ast.TranslationUnit{File: "good.cpp", Decls: []ast.Decl{def("ok", nil)}}
	an := New(Config{Workers: 3}, log.Discard(), WithParser(&fakeParser{units: map[string]*ast.TranslationUnit{"good.cpp": good}}))

	r, err := an.AnalyzeFiles(context.Background(), []string{"bad.cpp", "good.cpp", "panic.cpp"})
	require.NoError(t, err)
	require.Len(t, r.Units, 3)

	bad := r.Unit("bad.cpp")
	require.Error(t, bad.Err)
	assert.Contains(t, bad.Err.Error(), "syntax error")
	require.NotEmpty(t, bad.Diagnostics)
	assert.Equal(t, diag.UnitFailure, bad.Diagnostics[0].Kind)

	crashed := r.Unit("panic.cpp")
	require.Error(t, crashed.Err)
	assert.Contains(t, crashed.Err.Error(), "parser bug")

	ok := r.Unit("good.cpp")
	require.NoError(t, ok.Err)
	require.NotNil(t, ok.Dataflow)
	assert.NotNil(t, ok.Dataflow.Function(definition(t, ok.Table, "ok")))
	assert.Len(t, r.Failed(), 2)
}

func TestAnalyze_NoParser(t *testing.T) {
	_, err := New(Config{}, log.Discard()).AnalyzeFiles(context.Background(), []string{"a.cpp"})
	assert.Error(t, err)

	r, err := New(Config{}, log.Discard()).Analyze(context.Background(), []Unit{{File: "a.cpp"}})
	require.NoError(t, err)
	assert.Error(t, r.Units[0].Err)
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(Config{}, log.Discard()).Analyze(ctx, []Unit{unit("a.cpp", def("f", nil))})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, r.Units, 1)
	assert.ErrorIs(t, r.Units[0].Err, context.Canceled)
	assert.Nil(t, r.Units[0].Table)
}

func TestAnalyze_SummaryCacheReusedAcrossRuns(t *testing.T) {
	tu := unit("a.cpp",
		def("store", []*ast.ParamDecl{param("p", intPtr)},
			stmt(&ast.AssignExpr{Op: "=", Lhs: &ast.UnaryExpr{Op: "*", X: id("p")}, Rhs: intLit("1")}),
		),
	)
	c := cache.NewSummaryCache(cache.Options{})
	an := New(Config{Cache: c}, log.Discard())

	first, err := an.Analyze(context.Background(), []Unit{tu})
	require.NoError(t, err)
	u := first.Unit("a.cpp")
	fr := u.Dataflow.Function(definition(t, u.Table, "store"))
	require.NotNil(t, fr)
	assert.False(t, fr.Cached)
	assert.Equal(t, 1, c.Len())

	second, err := an.Analyze(context.Background(), []Unit{tu})
	require.NoError(t, err)
	u = second.Unit("a.cpp")
	fr = u.Dataflow.Function(definition(t, u.Table, "store"))
	require.NotNil(t, fr)
	assert.True(t, fr.Cached)
	require.NotNil(t, fr.Summary.Effect(0))
	assert.True(t, fr.Summary.Effect(0).MayWrite)
}

package analysis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/analysis"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/frontend"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

const program = `
#include <dlfcn.h>

struct Base {
  int calc(int i) { return i; }
};

struct Overloaded : Base {
  double calc(double d) { return d; }
};

void innerTarget();
void innerTarget(int a, int b);
void innerTarget(int a, const char *s);
void *dlsym(void *handle, const char *name);

void myfunc(int v) {}
void println(int v) {}

void run(int c, void *lib) {
  int i;
  {
    short s2 = i;
  }

  Overloaded overloaded;
  overloaded.calc(1);
  overloaded.calc(1.1);

  innerTarget(1, 2, 3);
  innerTarget(4, 5, 6);

  int b;
  if (c) {
    b = 1;
  } else {
    b = 2;
  }
  println(b);

  void (*fp)(int) = dlsym(lib, "myfunc");
  fp(1);
}
`

func analyzeSource(t *testing.T, files map[string]string) *analysis.Result {
	t.Helper()
	p := frontend.New(log.Discard())
	var units []analysis.Unit
	for name, src := range files {
		tu, err := p.Parse(context.Background(), name, frontend.CPP, []byte(src))
		require.NoError(t, err)
		units = append(units, analysis.Unit{File: name, TU: tu})
	}
	r, err := analysis.New(analysis.Config{Workers: 2}, log.Discard()).Analyze(context.Background(), units)
	require.NoError(t, err)
	require.Empty(t, r.Failed())
	return r
}

func findNode[T ast.Node](t *testing.T, root ast.Node, match func(T) bool) []T {
	t.Helper()
	var out []T
	ast.Inspect(root, func(n ast.Node) bool {
		if x, ok := n.(T); ok && match(x) {
			out = append(out, x)
		}
		return true
	})
	require.NotEmpty(t, out)
	return out
}

func callsTo(t *testing.T, root ast.Node, fun string) []*ast.CallExpr {
	t.Helper()
	return findNode(t, root, func(c *ast.CallExpr) bool { return ast.ExprString(c.Fun) == fun })
}

func TestSource_ResolvesProgram(t *testing.T) {
	r := analyzeSource(t, map[string]string{"main.cpp": program})
	u := r.Unit("main.cpp")
	require.NotNil(t, u)

	var run *scope.Declaration
	for _, d := range u.Table.Qualified("run") {
		if d.Body != nil {
			run = d
		}
	}
	require.NotNil(t, run)
	body := run.Body

	t.Run("outer variable without value", func(t *testing.T) {
		s2 := findNode(t, body, func(v *ast.VarDecl) bool { return v.Name == "s2" })[0]
		ref := u.Resolution.Ref(s2.Init)
		require.NotNil(t, ref)
		assert.Equal(t, "i", ref.Name)
		for _, d := range u.Diagnostics {
			if d.Kind == diag.UnresolvedSymbol {
				assert.NotContains(t, d.Message, " i")
			}
		}
	})

	t.Run("overloads by literal kind", func(t *testing.T) {
		calls := callsTo(t, body, "overloaded.calc")
		require.Len(t, calls, 2)
		assert.Equal(t, "Base::calc(int)", u.Resolution.Calls[calls[0]].Target.String())
		assert.Equal(t, "Overloaded::calc(double)", u.Resolution.Calls[calls[1]].Target.String())
	})

	t.Run("inferred declaration reused", func(t *testing.T) {
		calls := callsTo(t, body, "innerTarget")
		require.Len(t, calls, 2)
		first, second := u.Resolution.Calls[calls[0]], u.Resolution.Calls[calls[1]]
		assert.Equal(t, callgraph.InferredCall, first.Kind)
		assert.Equal(t, "innerTarget(int,int,int)", first.Target.String())
		assert.Same(t, first.Target, second.Target)
		require.Len(t, r.Inferred, 1)
	})

	t.Run("value set joins branches", func(t *testing.T) {
		call := callsTo(t, body, "println")[0]
		vals, ok := u.Dataflow.ValuesOf(call.Args[0])
		require.True(t, ok)
		assert.Equal(t, "{1, 2}", vals.String())
	})

	t.Run("dynamic symbol names a local function", func(t *testing.T) {
		call := callsTo(t, body, "fp")[0]
		targets, external := u.Dataflow.IndirectTargets(call)
		require.Len(t, targets, 1)
		assert.Equal(t, "myfunc", targets[0].Name)
		assert.False(t, external)
	})
}

func TestSource_LinksAcrossFiles(t *testing.T) {
	r := analyzeSource(t, map[string]string{
		"lib.cpp":  "int twice(int x) { return x * 2; }\n",
		"main.cpp": "int twice(int x);\nint main() { return twice(21); }\n",
	})
	assert.Equal(t, 1, r.Linked)

	var main *scope.Declaration
	for _, d := range r.Table.Qualified("main") {
		main = d
	}
	require.NotNil(t, main)
	callees := r.Graph.Callees(main)
	require.NotEmpty(t, callees)

	var defined bool
	for _, c := range callees {
		if c.Name == "twice" && c.Body != nil {
			defined = true
		}
	}
	assert.True(t, defined, "call through the prototype reaches the definition in lib.cpp")
}

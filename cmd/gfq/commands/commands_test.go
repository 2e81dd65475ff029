package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libSource = `
int add(int a, int b) { return a + b; }
`

const mainSource = `
int add(int a, int b);
static void hello(int x) {}

int main(void) {
	int *p;
	int v = 1;
	p = &v;
	void (*fp)(int) = hello;
	fp(*p);
	return add(v, 2);
}
`

func writeProject(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".gfq"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib.c"), []byte(libSource), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.c"), []byte(mainSource), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# notes"), 0644))
	return root
}

func TestAnalyzeOutput(t *testing.T) {
	root := writeProject(t)

	s, err := openSession(analyzeCmd, root)
	require.NoError(t, err)
	require.Len(t, s.files, 2)

	result, err := s.run()
	require.NoError(t, err)
	require.Empty(t, result.Failed())

	out := buildAnalyzeOutput(s, result)
	assert.Equal(t, root, out.RootDir)
	require.Len(t, out.Units, 2)
	assert.Equal(t, "lib.c", out.Units[0].File)
	assert.Equal(t, "main.c", out.Units[1].File)
	assert.Equal(t, 2, out.Units[1].Functions)
	assert.Equal(t, 1, out.Linked)

	assert.FileExists(t, filepath.Join(root, ".gfq", "summaries.msgpack"))
}

func TestCallGraphOutput(t *testing.T) {
	root := writeProject(t)

	s, err := openSession(callsCmd, root)
	require.NoError(t, err)
	result, err := s.run()
	require.NoError(t, err)

	out := buildCallGraphOutput(s, result, "", "")
	var callees []string
	for _, e := range out.Edges {
		if e.Caller == "main()" {
			callees = append(callees, e.Callee+"/"+e.Kind)
		}
	}
	assert.Contains(t, callees, "hello(int)/indirect")
	assert.Contains(t, callees, "add(int,int)/static")

	indirect := buildCallGraphOutput(s, result, "indirect", "")
	require.Len(t, indirect.Edges, 1)
	assert.Equal(t, "hello(int)", indirect.Edges[0].Callee)
	assert.Equal(t, "main.c", indirect.Edges[0].File)

	none := buildCallGraphOutput(s, result, "", "nothing")
	assert.Empty(t, none.Edges)
}

func TestPointsToOutput(t *testing.T) {
	root := writeProject(t)
	file := filepath.Join(root, "main.c")

	s, err := openSession(pointsToCmd, file)
	require.NoError(t, err)
	require.Len(t, s.files, 1)
	assert.Equal(t, root, s.root)

	result, err := s.run()
	require.NoError(t, err)
	unit := result.Unit(file)
	require.NotNil(t, unit)

	out, err := buildPointsToOutput(s, unit, "main", false)
	require.NoError(t, err)
	require.Len(t, out.Functions, 1)
	fn := out.Functions[0]
	assert.Equal(t, "main()", fn.Function)

	pointsTo := map[string]string{}
	for _, f := range fn.Facts {
		if f.PointsTo != "" {
			pointsTo[f.Expr] = f.PointsTo
		}
	}
	assert.Equal(t, "{v}", pointsTo["p"])

	require.Len(t, fn.Indirect, 1)
	assert.Equal(t, []string{"hello(int)"}, fn.Indirect[0].Targets)

	_, err = buildPointsToOutput(s, unit, "missing", false)
	assert.Error(t, err)
}

func TestDFGOutput(t *testing.T) {
	root := writeProject(t)

	s, unit, err := analyzeFile(dfgCmd, filepath.Join(root, "main.c"))
	require.NoError(t, err)
	assert.Equal(t, "main.c", s.relPath(unit.File))

	infos, err := buildDFGOutput(unit, "main")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	info := infos[0]
	assert.Equal(t, "main", info.FunctionName)
	assert.Contains(t, info.Variables, "p")
	assert.Contains(t, info.Variables, "v")
	assert.Contains(t, info.Variables, "fp")

	edges := map[string]bool{}
	for _, e := range info.DataflowEdges {
		edges[fmt.Sprintf("%s:%d->%d", e.VarName, e.DefRef.Line, e.UseRef.Line)] = true
	}
	assert.True(t, edges["v:7->8"], "address taken after the initializer")
	assert.True(t, edges["v:7->11"])
	assert.True(t, edges["p:8->10"])
	assert.True(t, edges["fp:9->10"])

	_, err = buildDFGOutput(unit, "missing")
	assert.Error(t, err)

	_, _, err = analyzeFile(dfgCmd, root)
	assert.ErrorContains(t, err, "directory")
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "net")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".gfq"), 0755))

	assert.Equal(t, root, findProjectRoot(nested))
	assert.Equal(t, root, findProjectRoot(root))
}

func TestSplitCommaList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"src/**", []string{"src/**"}},
		{" a , b,,c ", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitCommaList(tt.in), tt.in)
	}
}

func TestValidateNonNegative(t *testing.T) {
	assert.NoError(t, validateNonNegative("0"))
	assert.NoError(t, validateNonNegative(" 8 "))
	assert.Error(t, validateNonNegative("-1"))
	assert.Error(t, validateNonNegative("many"))
}

package diag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

func span(file string, line, col int) ast.Span {
	return ast.Span{File: file, StartLine: line, StartCol: col, EndLine: line, EndCol: col + 1}
}

func TestReportDeduplicates(t *testing.T) {
	c := NewCollector()
	c.Report(UnresolvedSymbol, span("a.c", 3, 1), "no declaration of %s", "frob")
	c.Report(UnresolvedSymbol, span("a.c", 3, 1), "no declaration of %s", "frob")
	c.Report(UnresolvedSymbol, span("a.c", 3, 1), "no declaration of %s", "frab")

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "no declaration of frab", all[0].Message)
	assert.Equal(t, 2, c.Count(UnresolvedSymbol))
	assert.Equal(t, 0, c.Count(CyclicAlias))
}

func TestAllOrdering(t *testing.T) {
	c := NewCollector()
	c.Report(FixpointDivergence, span("b.c", 1, 1), "loop")
	c.Report(UnresolvedSymbol, span("a.c", 9, 4), "x")
	c.Report(CyclicAlias, span("a.c", 9, 4), "T")
	c.Report(AmbiguousOverload, span("a.c", 2, 7), "f")
	c.Report(UnitFailure, span("a.c", 2, 3), "boom")

	var got []Kind
	for _, d := range c.All() {
		got = append(got, d.Kind)
	}
	assert.Equal(t, []Kind{UnitFailure, AmbiguousOverload, CyclicAlias, UnresolvedSymbol, FixpointDivergence}, got)
}

func TestConcurrentReport(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Report(AmbiguousOverload, span("a.c", i, 1), "call to f")
			c.Report(AmbiguousOverload, span("a.c", i, 1), "call to f")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, c.Count(AmbiguousOverload))
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Kind: CyclicAlias, Message: "A refers to itself", Span: span("t.h", 4, 9)}
	assert.Equal(t, "t.h:4:9: cyclic_alias: A refers to itself", d.String())
}

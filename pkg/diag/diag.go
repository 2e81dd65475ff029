// Package diag collects the recoverable problems reported while analyzing a
// unit. None of them aborts analysis; they are surfaced alongside results.
package diag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

// Kind classifies a diagnostic.
type Kind string

const (
	// UnresolvedSymbol is recovered by synthesizing an inferred declaration.
	UnresolvedSymbol Kind = "unresolved_symbol"
	// AmbiguousOverload is recovered by picking the earliest declaration.
	AmbiguousOverload Kind = "ambiguous_overload"
	// CyclicAlias makes the affected type opaque.
	CyclicAlias Kind = "cyclic_alias"
	// FixpointDivergence freezes a function's state at the iteration cap.
	FixpointDivergence Kind = "fixpoint_divergence"
	// UnitFailure records a unit that could not be analyzed at all.
	UnitFailure Kind = "unit_failure"
)

// Diagnostic is one reported problem.
type Diagnostic struct {
	Kind    Kind     `json:"kind"`
	Message string   `json:"message"`
	Span    ast.Span `json:"span"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Kind, d.Message)
}

// Collector accumulates diagnostics from concurrent producers.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
	seen  map[string]bool
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]bool)}
}

// Report records a diagnostic. Identical diagnostics are kept once.
func (c *Collector) Report(kind Kind, span ast.Span, format string, args ...interface{}) {
	d := Diagnostic{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)}
	key := d.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.items = append(c.items, d)
}

// All returns the diagnostics ordered by position then kind.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Span, out[j].Span
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.StartCol != b.StartCol {
			return a.StartCol < b.StartCol
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Count returns the number of diagnostics of the given kind.
func (c *Collector) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

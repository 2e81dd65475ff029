package callgraph

import (
	"sort"
	"sync"

	"github.com/l3aro/go-flow-query/pkg/scope"
)

// FunctionEntry is one function definition in the index.
type FunctionEntry struct {
	// QualifiedName is the scope-qualified name, e.g. "net::Socket::send".
	QualifiedName string
	// Signature is the parameter list, e.g. "(int,const char*)".
	Signature string
	// File is the unit the definition belongs to.
	File string
	Line int
	Decl *scope.Declaration
}

// IndexStats holds statistics about the index.
type IndexStats struct {
	TotalFunctions int
	TotalFiles     int
	Linked         int
}

// ProjectIndex maps qualified function signatures to their definitions across
// the units of a run. Calls bound to a prototype or an inferred declaration
// in one unit are linked to the body defined in another.
//
// The index is safe for concurrent use.
type ProjectIndex struct {
	mu sync.RWMutex

	// entries is keyed by qualified name plus signature.
	entries map[string]FunctionEntry
	// byName maps a qualified name to every signature defined under it.
	byName map[string][]string
	// fileToFunctions maps a unit to the keys it defines.
	fileToFunctions map[string][]string
	linked          int
}

// NewProjectIndex creates an empty index.
func NewProjectIndex() *ProjectIndex {
	return &ProjectIndex{
		entries:         make(map[string]FunctionEntry),
		byName:          make(map[string][]string),
		fileToFunctions: make(map[string][]string),
	}
}

func indexKey(qualified, signature string) string {
	return qualified + signature
}

// AddTable indexes every function of table that has a body. The first
// definition of a signature wins; later duplicates are ignored.
func (idx *ProjectIndex) AddTable(table *scope.Table) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, fn := range table.Functions() {
		if fn.Body == nil || fn.Inferred || fn.Lambda != nil {
			continue
		}
		sig := fn.Signature()
		key := indexKey(fn.QualifiedName, sig)
		if _, ok := idx.entries[key]; ok {
			continue
		}
		e := FunctionEntry{
			QualifiedName: fn.QualifiedName,
			Signature:     sig,
			File:          table.File,
			Decl:          fn,
		}
		if fn.Node != nil {
			e.Line = fn.Node.Span().StartLine
		}
		idx.entries[key] = e
		idx.byName[fn.QualifiedName] = append(idx.byName[fn.QualifiedName], sig)
		idx.fileToFunctions[table.File] = append(idx.fileToFunctions[table.File], key)
	}
}

// Lookup returns the definition of qualified with the given signature.
func (idx *ProjectIndex) Lookup(qualified, signature string) (FunctionEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[indexKey(qualified, signature)]
	return e, ok
}

// Definition returns the indexed definition matching d, or d itself when d
// has a body or nothing matches. An inferred declaration matches a definition
// with the same signature, or the only definition of its name.
func (idx *ProjectIndex) Definition(d *scope.Declaration) *scope.Declaration {
	if d == nil || d.Body != nil || !d.IsCallable() {
		return d
	}
	if e, ok := idx.Lookup(d.QualifiedName, d.Signature()); ok {
		return e.Decl
	}
	if !d.Inferred {
		return d
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	sigs := idx.byName[d.QualifiedName]
	if len(sigs) != 1 {
		return d
	}
	return idx.entries[indexKey(d.QualifiedName, sigs[0])].Decl
}

// FunctionsInFile returns the qualified signatures defined in file, sorted.
func (idx *ProjectIndex) FunctionsInFile(file string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := append([]string(nil), idx.fileToFunctions[file]...)
	sort.Strings(out)
	return out
}

// Link adds, for every edge of g whose callee is a bodiless declaration, an
// edge of the same kind to the callee's definition. It returns the number of
// edges added.
func (idx *ProjectIndex) Link(g *Graph) int {
	n := 0
	for _, e := range g.Edges() {
		def := idx.Definition(e.Callee)
		if def == e.Callee {
			continue
		}
		before := len(g.Edges())
		e.Callee = def
		g.AddEdge(e)
		if len(g.Edges()) > before {
			n++
		}
	}
	idx.mu.Lock()
	idx.linked += n
	idx.mu.Unlock()
	return n
}

// Stats returns statistics about the index.
func (idx *ProjectIndex) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return IndexStats{
		TotalFunctions: len(idx.entries),
		TotalFiles:     len(idx.fileToFunctions),
		Linked:         idx.linked,
	}
}

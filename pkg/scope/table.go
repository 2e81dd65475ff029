package scope

import (
	"sort"
	"strconv"
	"sync"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

// Table is the declaration table of one analysis unit: the scope tree rooted
// at Global plus indexes from qualified names and AST nodes to declarations.
// A table is private to its unit until Merge.
type Table struct {
	File   string
	Global *Scope

	mu         sync.RWMutex
	qualified  map[string][]*Declaration
	nodeDecls  map[ast.Node]*Declaration
	nodeScopes map[ast.Node]*Scope
	records    map[string]*Declaration
	functions  []*Declaration
	all        []*Declaration
	lambdas    int
}

// NewTable creates an empty table with a global scope.
func NewTable(file string) *Table {
	t := &Table{
		File:       file,
		qualified:  make(map[string][]*Declaration),
		nodeDecls:  make(map[ast.Node]*Declaration),
		nodeScopes: make(map[ast.Node]*Scope),
		records:    make(map[string]*Declaration),
	}
	t.Global = newScope(nil, Global, "", nil, t)
	return t
}

// OpenScope creates a child scope of parent and associates it with node.
func (t *Table) OpenScope(parent *Scope, kind Kind, name string, node ast.Node) *Scope {
	s := newScope(parent, kind, name, node, t)
	if node != nil {
		t.mu.Lock()
		t.nodeScopes[node] = s
		t.mu.Unlock()
	}
	return s
}

// BindScope associates node with an existing scope.
func (t *Table) BindScope(node ast.Node, s *Scope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeScopes[node] = s
}

// ScopeOf returns the scope opened for node, or nil.
func (t *Table) ScopeOf(node ast.Node) *Scope {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodeScopes[node]
}

// BindDecl associates node with the declaration it produced.
func (t *Table) BindDecl(node ast.Node, d *Declaration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeDecls[node] = d
}

// DeclOf returns the declaration produced by node, or nil.
func (t *Table) DeclOf(node ast.Node) *Declaration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodeDecls[node]
}

func (t *Table) index(d *Declaration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.qualified[d.QualifiedName] {
		if existing == d {
			return
		}
	}
	t.qualified[d.QualifiedName] = append(t.qualified[d.QualifiedName], d)
	t.all = append(t.all, d)
	if d.Kind == Record {
		if prev, ok := t.records[d.QualifiedName]; !ok || (prev.Members == nil && d.Members != nil) {
			t.records[d.QualifiedName] = d
		}
	}
}

// RegisterInstance indexes a declaration that lives outside any overload set,
// such as a template instantiation or a lambda.
func (t *Table) RegisterInstance(d *Declaration) {
	if d.Seq == 0 {
		d.Seq = nextSeq()
	}
	t.index(d)
}

// AddFunction records a function with a body for the data-flow pass.
func (t *Table) AddFunction(d *Declaration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.functions {
		if f == d {
			return
		}
	}
	t.functions = append(t.functions, d)
}

// NextLambdaName returns a unique name for an anonymous function.
func (t *Table) NextLambdaName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lambdas++
	return "lambda#" + strconv.Itoa(t.lambdas)
}

// Qualified returns every declaration with the given qualified name.
func (t *Table) Qualified(name string) []*Declaration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.qualified[name]
	out := make([]*Declaration, len(set))
	copy(out, set)
	return out
}

// RecordDecl returns the record declaration with the given qualified name,
// preferring a definition over a forward declaration.
func (t *Table) RecordDecl(qualified string) *Declaration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[qualified]
}

// Functions returns the functions with bodies in declaration order.
func (t *Table) Functions() []*Declaration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Declaration, len(t.functions))
	copy(out, t.functions)
	return out
}

// Declarations returns every indexed declaration in declaration order.
func (t *Table) Declarations() []*Declaration {
	t.mu.RLock()
	out := make([]*Declaration, len(t.all))
	copy(out, t.all)
	t.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Merge unions other into t. Declarations sharing a qualified name are
// unioned by identity, never replaced, and namespaces with the same
// qualified name are unified. other must not be used afterwards.
func (t *Table) Merge(other *Table) {
	if other == nil || other == t {
		return
	}
	mergeScope(t.Global, other.Global, t)

	other.mu.RLock()
	qualified := other.qualified
	nodeDecls := other.nodeDecls
	nodeScopes := other.nodeScopes
	functions := other.functions
	other.mu.RUnlock()

	for _, set := range qualified {
		for _, d := range set {
			t.index(d)
		}
	}

	t.mu.Lock()
	for n, d := range nodeDecls {
		t.nodeDecls[n] = d
	}
	for n, s := range nodeScopes {
		t.nodeScopes[n] = s
	}
	t.mu.Unlock()
	for _, f := range functions {
		t.AddFunction(f)
	}
}

func mergeScope(dst, src *Scope, t *Table) {
	for _, name := range src.Names() {
		for _, d := range src.Local(name) {
			if !dst.Contains(d) {
				dst.mu.Lock()
				if len(dst.symbols[name]) == 0 {
					dst.names = append(dst.names, name)
				}
				dst.symbols[name] = append(dst.symbols[name], d)
				dst.mu.Unlock()
			}
		}
	}

	src.mu.RLock()
	namespaces := make(map[string]*Scope, len(src.namespaces))
	for k, v := range src.namespaces {
		namespaces[k] = v
	}
	usings := append([]*Scope(nil), src.usings...)
	children := append([]*Scope(nil), src.children...)
	src.mu.RUnlock()

	// stable order for deterministic trees
	keys := make([]string, 0, len(namespaces))
	for k := range namespaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, name := range keys {
		ns := namespaces[name]
		if existing := dst.Namespace(name); existing != nil {
			mergeScope(existing, ns, t)
			continue
		}
		reparent(ns, dst, t)
		dst.mu.Lock()
		dst.namespaces[name] = ns
		dst.mu.Unlock()
	}
	for _, c := range children {
		if c.Kind == Namespace {
			continue
		}
		reparent(c, dst, t)
	}
	for _, u := range usings {
		dst.AddUsing(u)
	}
}

func reparent(s, parent *Scope, t *Table) {
	s.parent = parent
	parent.mu.Lock()
	parent.children = append(parent.children, s)
	parent.mu.Unlock()
	retable(s, t)
}

func retable(s *Scope, t *Table) {
	s.table = t
	for _, c := range s.Children() {
		retable(c, t)
	}
}

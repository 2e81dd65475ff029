package dfg

import (
	"fmt"
	"sync"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

// LocKind classifies abstract memory locations.
type LocKind uint8

const (
	// LocVar is the storage of a variable, parameter or static field.
	LocVar LocKind = iota
	// LocField is a field of another location.
	LocField
	// LocDeref is the unknown object a location points to on entry: the
	// target of a parameter, a global pointer or `this`.
	LocDeref
	// LocHeap is every object allocated at one site.
	LocHeap
	// LocFunc is the code of a function; pointers to it are call targets.
	LocFunc
	// LocThis is the implicit `this` pointer of a method.
	LocThis
	// LocString is the storage of a string literal.
	LocString
)

func (k LocKind) String() string {
	switch k {
	case LocVar:
		return "var"
	case LocField:
		return "field"
	case LocDeref:
		return "deref"
	case LocHeap:
		return "heap"
	case LocFunc:
		return "func"
	case LocThis:
		return "this"
	case LocString:
		return "string"
	}
	return "?"
}

// Location is one abstract memory location. Arrays are not split: all
// elements share the location of the array.
type Location struct {
	ID     uint32
	Kind   LocKind
	Decl   *scope.Declaration
	Parent uint32
	Field  string
	Site   ast.Node
	// Text is the contents of a string literal.
	Text  string
	depth int
}

// maxDepth bounds field and deref chains so that loops walking linked
// structures (p = p->next) see finitely many locations.
const maxDepth = 4

type locKey struct {
	kind   LocKind
	decl   *scope.Declaration
	parent uint32
	field  string
	site   ast.Node
}

// Locations interns the locations of one unit. IDs are dense and stable for
// the lifetime of the table. It is safe for concurrent use.
type Locations struct {
	mu    sync.RWMutex
	byKey map[locKey]uint32
	list  []*Location
}

// NewLocations creates an empty table.
func NewLocations() *Locations {
	return &Locations{byKey: make(map[locKey]uint32)}
}

func (l *Locations) intern(k locKey, build func(id uint32) *Location) uint32 {
	l.mu.RLock()
	id, ok := l.byKey[k]
	l.mu.RUnlock()
	if ok {
		return id
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.byKey[k]; ok {
		return id
	}
	id = uint32(len(l.list))
	loc := build(id)
	loc.ID = id
	l.list = append(l.list, loc)
	l.byKey[k] = id
	return id
}

// Get returns the location with the given ID.
func (l *Locations) Get(id uint32) *Location {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.list[id]
}

// Len returns the number of interned locations.
func (l *Locations) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.list)
}

// Var returns the storage of d.
func (l *Locations) Var(d *scope.Declaration) uint32 {
	return l.intern(locKey{kind: LocVar, decl: d}, func(uint32) *Location {
		return &Location{Kind: LocVar, Decl: d}
	})
}

// This returns the `this` pointer of method fn.
func (l *Locations) This(fn *scope.Declaration) uint32 {
	return l.intern(locKey{kind: LocThis, decl: fn}, func(uint32) *Location {
		return &Location{Kind: LocThis, Decl: fn}
	})
}

// Func returns the code location of fn.
func (l *Locations) Func(fn *scope.Declaration) uint32 {
	return l.intern(locKey{kind: LocFunc, decl: fn}, func(uint32) *Location {
		return &Location{Kind: LocFunc, Decl: fn}
	})
}

// Heap returns the abstract object allocated at site.
func (l *Locations) Heap(site ast.Node) uint32 {
	return l.intern(locKey{kind: LocHeap, site: site}, func(uint32) *Location {
		return &Location{Kind: LocHeap, Site: site}
	})
}

// String returns the storage of a string literal.
func (l *Locations) String(lit *ast.Literal) uint32 {
	return l.intern(locKey{kind: LocString, site: lit}, func(uint32) *Location {
		return &Location{Kind: LocString, Site: lit, Text: lit.Value}
	})
}

// Field returns field name of parent. A field of a field with the same name,
// or a chain deeper than the limit, collapses onto parent.
func (l *Locations) Field(parent uint32, name string) uint32 {
	p := l.Get(parent)
	if p.depth >= maxDepth || (p.Kind == LocField && p.Field == name) {
		return parent
	}
	return l.intern(locKey{kind: LocField, parent: parent, field: name}, func(uint32) *Location {
		return &Location{Kind: LocField, Parent: parent, Field: name, depth: p.depth + 1}
	})
}

// Deref returns the unknown object parent points to on entry.
func (l *Locations) Deref(parent uint32) uint32 {
	p := l.Get(parent)
	if p.depth >= maxDepth {
		return parent
	}
	return l.intern(locKey{kind: LocDeref, parent: parent}, func(uint32) *Location {
		return &Location{Kind: LocDeref, Parent: parent, depth: p.depth + 1}
	})
}

// Root follows field and deref parents up to the base location.
func (l *Locations) Root(id uint32) *Location {
	loc := l.Get(id)
	for loc.Kind == LocField || loc.Kind == LocDeref {
		loc = l.Get(loc.Parent)
	}
	return loc
}

// Name renders a location, e.g. "*p", "s.next", "heap@12:3".
func (l *Locations) Name(id uint32) string {
	loc := l.Get(id)
	switch loc.Kind {
	case LocVar:
		return loc.Decl.Name
	case LocThis:
		return "this"
	case LocFunc:
		return loc.Decl.String()
	case LocField:
		return l.Name(loc.Parent) + "." + loc.Field
	case LocDeref:
		return "*" + l.Name(loc.Parent)
	case LocHeap:
		return "heap@" + loc.Site.Span().String()
	case LocString:
		return fmt.Sprintf("%q", loc.Text)
	}
	return fmt.Sprintf("loc%d", id)
}

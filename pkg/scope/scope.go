// Package scope implements the scope tree and declaration table built by the
// declaration pass. Scopes map simple names to ordered overload sets; lookup
// walks outward and stops at the first level that knows the name.
package scope

import (
	"strings"
	"sync"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

// Kind is the kind of a scope.
type Kind int

const (
	Global Kind = iota
	Namespace
	RecordScope
	FunctionScope
	Block
)

func (k Kind) String() string {
	switch k {
	case Global:
		return "global"
	case Namespace:
		return "namespace"
	case RecordScope:
		return "record"
	case FunctionScope:
		return "function"
	case Block:
		return "block"
	}
	return "unknown"
}

// Scope is one node of the scope tree.
type Scope struct {
	Kind Kind
	Name string
	Node ast.Node
	// Owner is the record or function declaration that owns a record or
	// function scope.
	Owner *Declaration
	// Inferred marks namespaces synthesized for unresolved qualifiers.
	Inferred bool

	parent *Scope
	table  *Table

	mu         sync.RWMutex
	symbols    map[string][]*Declaration
	names      []string
	namespaces map[string]*Scope
	usings     []*Scope
	children   []*Scope
}

func newScope(parent *Scope, kind Kind, name string, node ast.Node, t *Table) *Scope {
	s := &Scope{
		Kind:       kind,
		Name:       name,
		Node:       node,
		parent:     parent,
		table:      t,
		symbols:    make(map[string][]*Declaration),
		namespaces: make(map[string]*Scope),
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return s
}

// Parent returns the enclosing scope, nil for the global scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Table returns the declaration table the scope belongs to.
func (s *Scope) Table() *Table { return s.table }

// Children returns the nested scopes in creation order.
func (s *Scope) Children() []*Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Scope, len(s.children))
	copy(out, s.children)
	return out
}

// QualifiedName joins the names of the scope and its named ancestors.
func (s *Scope) QualifiedName() string {
	var parts []string
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Kind == Block || cur.Name == "" {
			continue
		}
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::")
}

// Qualify returns the qualified name of name declared in s.
func (s *Scope) Qualify(name string) string {
	q := s.QualifiedName()
	if q == "" {
		return name
	}
	return q + "::" + name
}

// EnclosingNamespace returns the nearest namespace or global scope.
func (s *Scope) EnclosingNamespace() *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Kind == Namespace || cur.Kind == Global {
			return cur
		}
	}
	return s
}

// EnclosingFunction returns the nearest function scope, or nil.
func (s *Scope) EnclosingFunction() *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Kind == FunctionScope {
			return cur
		}
	}
	return nil
}

// Declare appends d to the overload set for its name. Existing declarations
// are never replaced. Declaring the same declaration twice is a no-op.
func (s *Scope) Declare(d *Declaration) {
	if d.Scope == nil {
		d.Scope = s
	}
	if d.QualifiedName == "" {
		d.QualifiedName = s.Qualify(d.Name)
	}
	if d.Seq == 0 {
		d.Seq = nextSeq()
	}

	s.mu.Lock()
	set := s.symbols[d.Name]
	for _, existing := range set {
		if existing == d {
			s.mu.Unlock()
			return
		}
	}
	if len(set) == 0 {
		s.names = append(s.names, d.Name)
	}
	s.symbols[d.Name] = append(set, d)
	s.mu.Unlock()

	if s.table != nil {
		s.table.index(d)
	}
}

// Contains reports whether d is in this scope's overload set for its name.
func (s *Scope) Contains(d *Declaration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.symbols[d.Name] {
		if existing == d {
			return true
		}
	}
	return false
}

// Names returns the declared names in first-declaration order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Local returns the overload set for name declared directly in s.
func (s *Scope) Local(name string) []*Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.symbols[name]
	out := make([]*Declaration, len(set))
	copy(out, set)
	return out
}

// Namespace returns the nested namespace scope called name, or nil.
func (s *Scope) Namespace(name string) *Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespaces[name]
}

// OpenNamespace returns the nested namespace called name, creating it on
// first use. Reopened namespaces share one scope.
func (s *Scope) OpenNamespace(name string, node ast.Node) *Scope {
	s.mu.Lock()
	if ns, ok := s.namespaces[name]; ok {
		s.mu.Unlock()
		return ns
	}
	s.mu.Unlock()

	ns := newScope(s, Namespace, name, node, s.table)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.namespaces[name]; ok {
		return existing
	}
	s.namespaces[name] = ns
	return ns
}

// AddUsing makes the declarations of target visible from s as if declared in
// s, below s's own declarations.
func (s *Scope) AddUsing(target *Scope) {
	if target == nil || target == s {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.usings {
		if u == target {
			return
		}
	}
	s.usings = append(s.usings, target)
}

// LookupOption configures a lookup.
type LookupOption func(*lookupConfig)

type lookupConfig struct {
	before    int64
	hasBefore bool
	filter    func(*Declaration) bool
}

// VisibleBefore hides local declarations (function and block scopes)
// declared after the given sequence number. It models the point of
// declaration: a use only sees locals declared before it.
func VisibleBefore(seq int64) LookupOption {
	return func(c *lookupConfig) {
		c.before = seq
		c.hasBefore = true
	}
}

// Matching restricts the lookup to declarations accepted by pred. A level
// whose declarations are all rejected does not stop the walk.
func Matching(pred func(*Declaration) bool) LookupOption {
	return func(c *lookupConfig) { c.filter = pred }
}

func buildConfig(opts []LookupOption) lookupConfig {
	var cfg lookupConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Lookup walks from s outward and returns the first scope level holding any
// declaration of name, together with that level's overload set. A nearer
// declaration hides every outer declaration of the same name regardless of
// kind. Record scopes include inherited members.
func (s *Scope) Lookup(name string, opts ...LookupOption) (*Scope, []*Declaration) {
	cfg := buildConfig(opts)
	for cur := s; cur != nil; cur = cur.parent {
		if decls := cur.level(name, cfg); len(decls) > 0 {
			return cur, decls
		}
	}
	return nil, nil
}

func (s *Scope) visible(name string, cfg lookupConfig) []*Declaration {
	local := s.Local(name)
	if len(local) == 0 {
		return nil
	}
	out := local[:0]
	for _, d := range local {
		if cfg.hasBefore && (s.Kind == Block || s.Kind == FunctionScope) && d.Seq > cfg.before {
			continue
		}
		if cfg.filter != nil && !cfg.filter(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *Scope) level(name string, cfg lookupConfig) []*Declaration {
	if decls := s.visible(name, cfg); len(decls) > 0 {
		if s.Kind == RecordScope && s.Owner != nil {
			return filterDecls(CollectMembers(s.Owner, name), cfg)
		}
		return decls
	}
	if s.Kind == RecordScope && s.Owner != nil {
		if decls := filterDecls(CollectMembers(s.Owner, name), cfg); len(decls) > 0 {
			return decls
		}
	}
	s.mu.RLock()
	usings := make([]*Scope, len(s.usings))
	copy(usings, s.usings)
	s.mu.RUnlock()
	for _, u := range usings {
		if decls := u.visible(name, cfg); len(decls) > 0 {
			return decls
		}
	}
	return nil
}

func filterDecls(decls []*Declaration, cfg lookupConfig) []*Declaration {
	if cfg.filter == nil {
		return decls
	}
	out := decls[:0]
	for _, d := range decls {
		if cfg.filter(d) {
			out = append(out, d)
		}
	}
	return out
}

// CollectMembers gathers the members called name of rec and of its bases,
// depth-first in base order. A base method is hidden when a method with the
// same signature was already collected from a more derived record; base
// fields are hidden by any nearer field of the same name. Diamond shapes are
// visited once.
func CollectMembers(rec *Declaration, name string) []*Declaration {
	var out []*Declaration
	visited := make(map[*Declaration]bool)
	var walk func(r *Declaration)
	walk = func(r *Declaration) {
		if r == nil || visited[r] {
			return
		}
		visited[r] = true
		if r.Members != nil {
			for _, d := range r.Members.Local(name) {
				if hidden(d, out) {
					continue
				}
				out = append(out, d)
			}
		}
		for _, b := range r.Bases {
			walk(b)
		}
	}
	walk(rec)
	return out
}

func hidden(d *Declaration, nearer []*Declaration) bool {
	for _, n := range nearer {
		if n == d {
			return true
		}
		if d.IsCallable() && n.IsCallable() && n.Signature() == d.Signature() {
			return true
		}
		if !d.IsCallable() && !n.IsCallable() && n.Kind == d.Kind {
			return true
		}
	}
	return false
}

// ResolveScopeName finds the scope denoted by one qualifier component as seen
// from s: namespace aliases first, then nested namespaces, then records, then
// namespaces brought in by using-directives. The walk goes outward.
func (s *Scope) ResolveScopeName(name string) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if found := cur.scopeComponent(name); found != nil {
			return found
		}
	}
	return nil
}

func (s *Scope) scopeComponent(name string) *Scope {
	for _, d := range s.Local(name) {
		if d.Kind == NamespaceAlias {
			if t := d.AliasTarget(); t != nil {
				return t
			}
		}
	}
	if ns := s.Namespace(name); ns != nil {
		return ns
	}
	for _, d := range s.Local(name) {
		if d.Kind == Record && d.Members != nil {
			return d.Members
		}
	}
	if s.Kind == RecordScope && s.Owner != nil {
		for _, d := range CollectMembers(s.Owner, name) {
			if d.Kind == Record && d.Members != nil {
				return d.Members
			}
		}
	}
	s.mu.RLock()
	usings := make([]*Scope, len(s.usings))
	copy(usings, s.usings)
	s.mu.RUnlock()
	for _, u := range usings {
		if ns := u.Namespace(name); ns != nil {
			return ns
		}
	}
	return nil
}

// ResolveScopePath resolves a qualifier path such as {"a", "b"} from s. A
// leading empty component anchors the path at the global scope.
func (s *Scope) ResolveScopePath(path []string) *Scope {
	if len(path) == 0 {
		return s
	}
	var cur *Scope
	if path[0] == "" {
		cur = s.Root()
		path = path[1:]
	} else {
		cur = s.ResolveScopeName(path[0])
		path = path[1:]
	}
	for _, comp := range path {
		if cur == nil {
			return nil
		}
		cur = cur.scopeComponent(comp)
	}
	return cur
}

// Root returns the global scope.
func (s *Scope) Root() *Scope {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// LookupQualified resolves `path::name`. The qualifier is resolved with
// ResolveScopePath and the name is then looked up in that scope only.
func (s *Scope) LookupQualified(path []string, name string, opts ...LookupOption) (*Scope, []*Declaration) {
	if len(path) == 0 {
		return s.Lookup(name, opts...)
	}
	target := s.ResolveScopePath(path)
	if target == nil {
		return nil, nil
	}
	cfg := buildConfig(opts)
	if decls := target.level(name, cfg); len(decls) > 0 {
		return target, decls
	}
	return nil, nil
}

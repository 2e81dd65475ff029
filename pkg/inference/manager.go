// Package inference synthesizes placeholder declarations for names that do
// not resolve: functions called with no viable overload, records and
// namespaces that are referenced but never declared. A Manager is created for
// one analysis run and shared by every unit of that run.
package inference

import (
	"strconv"
	"sync"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/internal/metrics"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// Key identifies an inferred declaration: the qualified name of the scope it
// lives in, its simple name and its signature ("record" and "namespace" for
// non-functions).
type Key struct {
	Scope     string
	Name      string
	Signature string
}

// Manager is the registry of inferred declarations. Upserts are serialized
// by one lock so concurrent units never create duplicates.
type Manager struct {
	mu     sync.Mutex
	byKey  map[Key]*scope.Declaration
	order  []*scope.Declaration
	logger log.Logger
}

// NewManager creates an empty registry.
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		byKey:  make(map[Key]*scope.Declaration),
		logger: logger,
	}
}

// upsert returns the declaration stored under key, creating it with create
// when absent, and makes sure it is declared in s.
func (m *Manager) upsert(s *scope.Scope, key Key, create func() *scope.Declaration) (*scope.Declaration, bool) {
	m.mu.Lock()
	d, ok := m.byKey[key]
	if !ok {
		d = create()
		d.Inferred = true
		m.byKey[key] = d
		m.order = append(m.order, d)
	}
	m.mu.Unlock()

	if s != nil && !s.Contains(d) {
		s.Declare(d)
	}
	if !ok {
		metrics.InferredDeclarations.WithLabelValues(d.Kind.String()).Inc()
		m.logger.Debug("inferred declaration", "kind", d.Kind.String(), "name", d.QualifiedName, "signature", key.Signature)
	}
	return d, !ok
}

// InferFunction returns the inferred free function name(params) in s,
// creating it on first request. Repeated requests with the same scope, name
// and parameter types return the identical declaration.
func (m *Manager) InferFunction(s *scope.Scope, name string, params []types.Type, result types.Type) *scope.Declaration {
	return m.inferCallable(s, scope.Function, name, params, result)
}

// InferMethod returns the inferred method name(params) of the record whose
// member scope is s.
func (m *Manager) InferMethod(s *scope.Scope, name string, params []types.Type, result types.Type) *scope.Declaration {
	return m.inferCallable(s, scope.Method, name, params, result)
}

func (m *Manager) inferCallable(s *scope.Scope, kind scope.DeclKind, name string, params []types.Type, result types.Type) *scope.Declaration {
	key := Key{Scope: s.QualifiedName(), Name: name, Signature: types.Signature(params, false)}
	d, _ := m.upsert(s, key, func() *scope.Declaration {
		if result == nil {
			result = &types.Unknown{Name: name}
		}
		d := &scope.Declaration{
			Kind:          kind,
			Name:          name,
			QualifiedName: s.Qualify(name),
			Scope:         s,
			Result:        result,
		}
		for i, p := range params {
			d.Params = append(d.Params, &scope.Param{Name: paramName(i), Type: p})
		}
		d.Type = &types.FunctionPointer{Params: params, Result: result}
		return d
	})
	return d
}

// InferRecord returns the inferred record name in s.
func (m *Manager) InferRecord(s *scope.Scope, name string) *scope.Declaration {
	key := Key{Scope: s.QualifiedName(), Name: name, Signature: "record"}
	d, _ := m.upsert(s, key, func() *scope.Declaration {
		q := s.Qualify(name)
		d := &scope.Declaration{
			Kind:          scope.Record,
			Name:          name,
			QualifiedName: q,
			Scope:         s,
			Tag:           "struct",
			Type:          &types.Record{Name: name, QualifiedName: q, Inferred: true},
		}
		if t := s.Table(); t != nil {
			d.Members = t.OpenScope(s, scope.RecordScope, name, nil)
			d.Members.Owner = d
		}
		return d
	})
	return d
}

// InferNamespace returns the namespace name nested in s, creating an inferred
// one when the unit has none. The registry keeps one declaration per
// qualified namespace; each unit gets its own scope, unified on merge.
func (m *Manager) InferNamespace(s *scope.Scope, name string) *scope.Scope {
	if ns := s.Namespace(name); ns != nil {
		return ns
	}
	ns := s.OpenNamespace(name, nil)
	ns.Inferred = true
	key := Key{Scope: s.QualifiedName(), Name: name, Signature: "namespace"}
	m.upsert(nil, key, func() *scope.Declaration {
		return &scope.Declaration{
			Kind:          scope.NamespaceDecl,
			Name:          name,
			QualifiedName: s.Qualify(name),
			Scope:         s,
			Members:       ns,
		}
	})
	return ns
}

// Lookup returns the inferred declaration stored under key, if any.
func (m *Manager) Lookup(key Key) (*scope.Declaration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byKey[key]
	return d, ok
}

// All returns every inferred declaration in creation order.
func (m *Manager) All() []*scope.Declaration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*scope.Declaration, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of inferred declarations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

func paramName(i int) string {
	return "arg" + strconv.Itoa(i)
}

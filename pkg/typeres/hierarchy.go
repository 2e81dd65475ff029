package typeres

import (
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// ResolveBases resolves the base clause of a record into base declarations.
// It is idempotent. Bases that do not name a record are dropped.
func (r *Resolver) ResolveBases(rec *scope.Declaration) {
	if rec == nil || rec.Kind != scope.Record {
		return
	}
	r.mu.Lock()
	if r.basesDone == nil {
		r.basesDone = make(map[*scope.Declaration]bool)
	}
	done := r.basesDone[rec]
	r.basesDone[rec] = true
	r.mu.Unlock()
	if done || len(rec.BaseRefs) == 0 {
		return
	}

	s := rec.Members
	if s == nil {
		s = rec.Scope
	}
	for _, b := range rec.BaseRefs {
		bt := types.RecordOf(r.Canonical(r.ResolveRef(s, b.Type)))
		if bt == nil {
			continue
		}
		base := r.table.RecordDecl(bt.String())
		if base == nil || base == rec {
			continue
		}
		rec.Bases = append(rec.Bases, base)
	}
}

// LinkOverrides resolves every record's bases and links each method to the
// base method it overrides: same name and same resolved signature as a
// virtual method of a base. Such methods become virtual themselves.
func (r *Resolver) LinkOverrides() {
	decls := r.table.Declarations()
	for _, d := range decls {
		if d.Kind == scope.Record && d.Template == nil {
			r.ResolveBases(d)
		}
	}
	for _, d := range decls {
		if d.Kind != scope.Record || d.Members == nil || len(d.Bases) == 0 || d.Template != nil {
			continue
		}
		for _, name := range d.Members.Names() {
			for _, m := range d.Members.Local(name) {
				if m.Kind != scope.Method || m.Overrides != nil {
					continue
				}
				r.DeclType(m)
				if base := r.overridden(d, m); base != nil {
					m.Overrides = base
					m.Virtual = true
				}
			}
		}
	}
}

func (r *Resolver) overridden(rec, m *scope.Declaration) *scope.Declaration {
	sig := m.Signature()
	visited := map[*scope.Declaration]bool{rec: true}
	var walk func(b *scope.Declaration) *scope.Declaration
	walk = func(b *scope.Declaration) *scope.Declaration {
		if b == nil || visited[b] {
			return nil
		}
		visited[b] = true
		if b.Members != nil {
			for _, cand := range b.Members.Local(m.Name) {
				if cand.Kind != scope.Method {
					continue
				}
				r.DeclType(cand)
				if cand.Virtual && cand.Signature() == sig {
					return cand
				}
			}
		}
		for _, bb := range b.Bases {
			if found := walk(bb); found != nil {
				return found
			}
		}
		return nil
	}
	for _, b := range rec.Bases {
		if found := walk(b); found != nil {
			return found
		}
	}
	return nil
}

// Overriders returns the methods that override m, directly or through
// intermediate overrides, in declaration order.
func (r *Resolver) Overriders(m *scope.Declaration) []*scope.Declaration {
	var out []*scope.Declaration
	for _, d := range r.table.Declarations() {
		if d.Kind != scope.Method || d == m {
			continue
		}
		for o := d.Overrides; o != nil; o = o.Overrides {
			if o == m {
				out = append(out, d)
				break
			}
			if o.Overrides == o {
				break
			}
		}
	}
	return out
}

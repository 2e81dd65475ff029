package callgraph

import (
	"context"
	"math"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/diag"
	"github.com/l3aro/go-flow-query/pkg/inference"
	"github.com/l3aro/go-flow-query/pkg/scope"
	"github.com/l3aro/go-flow-query/pkg/typeres"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// Resolver runs pass 2 over one unit.
type Resolver struct {
	table  *scope.Table
	tr     *typeres.Resolver
	infer  *inference.Manager
	diags  *diag.Collector
	logger log.Logger
	conv   types.Converter

	inferUnresolved bool
	res             *Resolution
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithInference enables or disables synthesis of declarations for calls with
// no viable candidate. It is enabled by default.
func WithInference(enabled bool) Option {
	return func(r *Resolver) { r.inferUnresolved = enabled }
}

// NewResolver creates a call resolver on top of a unit's type resolver.
func NewResolver(tr *typeres.Resolver, infer *inference.Manager, diags *diag.Collector, logger log.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	if diags == nil {
		diags = diag.NewCollector()
	}
	r := &Resolver{
		table:           tr.Table(),
		tr:              tr,
		infer:           infer,
		diags:           diags,
		logger:          logger,
		conv:            tr.Converter(),
		inferUnresolved: infer != nil,
	}
	for _, o := range opts {
		o(r)
	}
	if r.infer == nil {
		r.inferUnresolved = false
	}
	return r
}

// Resolve types every declaration, links the class hierarchy and walks every
// function body and global initializer. Cancellation is checked between
// functions; a cancelled run returns the context error and a partial
// resolution.
func (r *Resolver) Resolve(ctx context.Context) (*Resolution, error) {
	r.res = newResolution()
	r.tr.ResolveDecls()
	r.tr.LinkOverrides()

	for _, d := range r.table.Declarations() {
		if d.Kind != scope.Variable || d.Init == nil || d.IsParam {
			continue
		}
		if d.Scope == nil || (d.Scope.Kind != scope.Global && d.Scope.Kind != scope.Namespace) {
			continue
		}
		w := &walker{r: r, seq: math.MaxInt64}
		w.expr(d.Scope, d.Init)
	}

	for _, fn := range r.table.Functions() {
		if err := ctx.Err(); err != nil {
			return r.res, err
		}
		r.walkFunction(fn)
	}

	st := r.res.Graph.Stats()
	r.logger.Debug("calls resolved", "file", r.table.File, "sites", st.Sites, "inferred", st.Inferred, "indirect", st.Indirect, "unresolved", st.Unresolved)
	return r.res, nil
}

func (r *Resolver) walkFunction(fn *scope.Declaration) {
	if fn.Body == nil {
		return
	}
	s := r.table.ScopeOf(fn.Body)
	if s == nil {
		s = fn.Members
	}
	w := &walker{r: r, fn: fn, seq: fn.BodySeq, this: thisRecord(s)}
	w.stmts(s, fn.Body.List)
}

// thisRecord returns the record `this` points to inside s: the record of the
// nearest enclosing non-static method, looking through lambdas.
func thisRecord(s *scope.Scope) *scope.Declaration {
	for cur := s; cur != nil; cur = cur.Parent() {
		if cur.Kind != scope.FunctionScope || cur.Owner == nil {
			continue
		}
		m := cur.Owner
		if m.Kind == scope.Method && !m.Static && m.Scope != nil && m.Scope.Owner != nil {
			return m.Scope.Owner
		}
		if m.Lambda == nil {
			return nil
		}
	}
	return nil
}

// walker carries the state of one body walk: the caller and the declaration
// watermark that limits which locals are visible.
type walker struct {
	r    *Resolver
	fn   *scope.Declaration
	this *scope.Declaration
	seq  int64
}

func (w *walker) lookupOpts() []scope.LookupOption {
	return []scope.LookupOption{scope.VisibleBefore(w.seq)}
}

// enter returns the scope opened for node, or s when node opens none.
func (w *walker) enter(s *scope.Scope, node ast.Node) *scope.Scope {
	if inner := w.r.table.ScopeOf(node); inner != nil {
		return inner
	}
	return s
}

func (w *walker) stmts(s *scope.Scope, list []ast.Stmt) {
	for _, st := range list {
		w.stmt(s, st)
	}
}

func (w *walker) stmt(s *scope.Scope, st ast.Stmt) {
	if st == nil {
		return
	}
	s = w.enter(s, st)
	switch n := st.(type) {
	case *ast.CompoundStmt:
		w.stmts(s, n.List)
	case *ast.DeclStmt:
		for _, d := range n.Decls {
			w.decl(s, d)
		}
	case *ast.ExprStmt:
		w.expr(s, n.X)
	case *ast.IfStmt:
		w.stmt(s, n.Init)
		w.expr(s, n.Cond)
		w.stmt(s, n.Then)
		w.stmt(s, n.Else)
	case *ast.ForStmt:
		w.stmt(s, n.Init)
		w.expr(s, n.Range)
		w.expr(s, n.Cond)
		w.expr(s, n.Post)
		w.stmt(s, n.Body)
	case *ast.WhileStmt:
		w.stmt(s, n.Init)
		w.expr(s, n.Cond)
		w.stmt(s, n.Body)
	case *ast.DoStmt:
		w.stmt(s, n.Body)
		w.expr(s, n.Cond)
	case *ast.SwitchStmt:
		w.stmt(s, n.Init)
		w.expr(s, n.Cond)
		for _, c := range n.Cases {
			for _, v := range c.Values {
				w.expr(s, v)
			}
			w.stmts(s, c.Body)
		}
	case *ast.ReturnStmt:
		w.expr(s, n.X)
	case *ast.LabeledStmt:
		w.stmt(s, n.Stmt)
	}
}

// decl advances the watermark past a local declaration and resolves its
// initializer. The declared name is in scope inside its own initializer.
func (w *walker) decl(s *scope.Scope, d ast.Decl) {
	if sd := w.r.table.DeclOf(d); sd != nil && sd.Seq > w.seq {
		w.seq = sd.Seq
	}
	// member functions of local classes are walked as functions
	if v, ok := d.(*ast.VarDecl); ok {
		w.expr(s, v.Init)
	}
}

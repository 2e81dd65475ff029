package scope

import (
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/types"
)

// Build runs the declaration pass over a translation unit. It opens a scope
// for every namespace, record, function and block, and declares every
// variable, function, record, typedef and alias in it. Types are not
// resolved here.
func Build(unit *ast.TranslationUnit) *Table {
	t := NewTable(unit.File)
	t.Global.Node = unit
	t.BindScope(unit, t.Global)
	b := &builder{t: t}
	b.decls(t.Global, unit.Decls)
	return t
}

type builder struct {
	t *Table
}

func (b *builder) decls(s *Scope, ds []ast.Decl) {
	for _, d := range ds {
		b.decl(s, d)
	}
}

func (b *builder) decl(s *Scope, d ast.Decl) {
	switch n := d.(type) {
	case *ast.NamespaceDecl:
		b.namespace(s, n)
	case *ast.NamespaceAliasDecl:
		alias := &Declaration{Kind: NamespaceAlias, Name: n.Name, Node: n, AliasPath: n.Target}
		s.Declare(alias)
		b.t.BindDecl(n, alias)
	case *ast.UsingNamespaceDecl:
		if target := s.ResolveScopePath(n.Path); target != nil {
			s.AddUsing(target)
		}
	case *ast.RecordDecl:
		b.record(s, n)
	case *ast.EnumDecl:
		b.enum(s, n)
	case *ast.FunctionDecl:
		b.function(s, n)
	case *ast.VarDecl:
		b.variable(s, n)
	case *ast.TypedefDecl:
		td := &Declaration{
			Kind:           TypedefAlias,
			Name:           n.Name,
			Node:           n,
			TypeRef:        n.Type,
			TemplateParams: n.TemplateParams,
		}
		s.Declare(td)
		b.t.BindDecl(n, td)
		if n.TemplateParams != nil {
			td.Members = b.t.OpenScope(s, Block, "", n)
			td.Members.Owner = td
			b.templateParams(td.Members, n.TemplateParams)
		}
	}
}

func (b *builder) namespace(s *Scope, n *ast.NamespaceDecl) {
	var ns *Scope
	if n.Name == "" {
		// anonymous namespaces are visible from their parent
		ns = b.t.OpenScope(s, Namespace, "", n)
		s.AddUsing(ns)
	} else {
		ns = s.OpenNamespace(n.Name, n)
		b.t.BindScope(n, ns)
	}
	b.decls(ns, n.Decls)
}

func (b *builder) record(s *Scope, n *ast.RecordDecl) *Declaration {
	var rec *Declaration
	for _, existing := range s.Local(n.Name) {
		if existing.Kind == Record && n.Name != "" {
			rec = existing
			break
		}
	}
	if rec == nil {
		rec = &Declaration{
			Kind:           Record,
			Name:           n.Name,
			Tag:            n.Tag,
			Node:           n,
			TemplateParams: n.TemplateParams,
		}
		s.Declare(rec)
		rec.Members = b.t.OpenScope(s, RecordScope, n.Name, n)
		rec.Members.Owner = rec
	}
	b.t.BindDecl(n, rec)
	if n.Forward {
		return rec
	}
	// a definition after a forward declaration takes over the record
	rec.Node = n
	rec.BaseRefs = n.Bases
	if n.TemplateParams != nil {
		rec.TemplateParams = n.TemplateParams
	}
	b.t.BindScope(n, rec.Members)
	b.templateParams(rec.Members, n.TemplateParams)

	for _, m := range n.Members {
		switch mm := m.(type) {
		case *ast.VarDecl:
			field := &Declaration{
				Kind:    Variable,
				Name:    mm.Name,
				Node:    mm,
				TypeRef: mm.Type,
				Init:    mm.Init,
				IsField: !mm.Static,
				Static:  mm.Static,
			}
			rec.Members.Declare(field)
			b.t.BindDecl(mm, field)
		default:
			b.decl(rec.Members, m)
		}
	}
	b.t.index(rec)
	return rec
}

func (b *builder) enum(s *Scope, n *ast.EnumDecl) {
	intRef := ast.Named("int")
	if n.Name != "" {
		td := &Declaration{Kind: TypedefAlias, Name: n.Name, Node: n, TypeRef: intRef}
		s.Declare(td)
		b.t.BindDecl(n, td)
	}
	for _, e := range n.Enumerators {
		v := &Declaration{Kind: Variable, Name: e.Name, Node: e, TypeRef: intRef, Init: e.Value, IsConst: true}
		s.Declare(v)
	}
}

func (b *builder) variable(s *Scope, n *ast.VarDecl) *Declaration {
	v := &Declaration{
		Kind:    Variable,
		Name:    n.Name,
		Node:    n,
		TypeRef: n.Type,
		Init:    n.Init,
		Static:  n.Static,
		IsConst: n.Type != nil && n.Type.Const,
	}
	s.Declare(v)
	b.t.BindDecl(n, v)
	if n.Init != nil {
		b.expr(s, n.Init)
	}
	return v
}

func (b *builder) function(s *Scope, n *ast.FunctionDecl) *Declaration {
	owner := s
	if len(n.Qualifier) > 0 {
		if target := s.ResolveScopePath(n.Qualifier); target != nil {
			owner = target
		}
	}
	kind := Function
	if owner.Kind == RecordScope {
		kind = Method
	}

	fn := &Declaration{
		Kind:           kind,
		Name:           n.Name,
		Node:           n,
		ResultRef:      n.Result,
		Variadic:       n.Variadic,
		Virtual:        n.Virtual,
		Override:       n.Override,
		Static:         n.Static,
		TemplateParams: n.TemplateParams,
	}
	for _, p := range n.Params {
		fn.Params = append(fn.Params, &Param{Name: p.Name, TypeRef: p.Type, Default: p.Default})
	}

	// A definition completes an earlier prototype with the same signature.
	if prior := matchPrototype(owner, fn); prior != nil {
		if n.Body == nil {
			b.t.BindDecl(n, prior)
			return prior
		}
		for i, p := range fn.Params {
			if i < len(prior.Params) && prior.Params[i].Default != nil && p.Default == nil {
				p.Default = prior.Params[i].Default
			}
		}
		prior.Params = fn.Params
		prior.Node = n
		prior.Virtual = prior.Virtual || n.Virtual
		prior.Override = prior.Override || n.Override
		fn = prior
	} else {
		owner.Declare(fn)
	}
	b.t.BindDecl(n, fn)

	// An out-of-line definition sees the members of its record.
	fs := b.t.OpenScope(owner, FunctionScope, n.Name, n)
	fs.Owner = fn
	fn.Members = fs
	b.templateParams(fs, n.TemplateParams)
	for i, p := range n.Params {
		if p.Default != nil {
			b.expr(fs, p.Default)
		}
		if p.Name == "" {
			continue
		}
		pv := &Declaration{Kind: Variable, Name: p.Name, Node: p, TypeRef: p.Type, IsParam: true}
		fs.Declare(pv)
		b.t.BindDecl(p, pv)
		fn.Params[i].Decl = pv
	}
	fn.BodySeq = NextSeq()

	if n.Body != nil {
		fn.Body = n.Body
		b.t.BindScope(n.Body, fs)
		b.t.AddFunction(fn)
		b.stmts(fs, n.Body.List)
	}
	return fn
}

func matchPrototype(owner *Scope, fn *Declaration) *Declaration {
	sig := fn.WrittenSignature()
	for _, d := range owner.Local(fn.Name) {
		if d.IsCallable() && !d.Inferred && d.WrittenSignature() == sig {
			return d
		}
	}
	return nil
}

func (b *builder) templateParams(s *Scope, params []*ast.TemplateParam) {
	for i, tp := range params {
		if tp.Name == "" {
			continue
		}
		d := &Declaration{
			Kind: TemplateParameter,
			Name: tp.Name,
			Node: tp,
			Type: &types.TemplateParam{Name: tp.Name, Index: i},
		}
		if tp.Kind == ast.TemplateValueParam {
			d.TypeRef = tp.ValueType
		}
		s.Declare(d)
		b.t.BindDecl(tp, d)
	}
}

func (b *builder) lambda(s *Scope, n *ast.LambdaExpr) {
	name := b.t.NextLambdaName()
	fn := &Declaration{
		Kind:      Function,
		Name:      name,
		Node:      n,
		ResultRef: n.Result,
		Lambda:    n,
		Scope:     s,
	}
	fn.QualifiedName = s.Qualify(name)
	for _, p := range n.Params {
		fn.Params = append(fn.Params, &Param{Name: p.Name, TypeRef: p.Type, Default: p.Default})
	}
	b.t.RegisterInstance(fn)
	b.t.BindDecl(n, fn)

	fs := b.t.OpenScope(s, FunctionScope, name, n)
	fs.Owner = fn
	fn.Members = fs
	for i, p := range n.Params {
		if p.Name == "" {
			continue
		}
		pv := &Declaration{Kind: Variable, Name: p.Name, Node: p, TypeRef: p.Type, IsParam: true}
		fs.Declare(pv)
		b.t.BindDecl(p, pv)
		fn.Params[i].Decl = pv
	}
	fn.BodySeq = NextSeq()
	if n.Body != nil {
		fn.Body = n.Body
		b.t.BindScope(n.Body, fs)
		b.t.AddFunction(fn)
		b.stmts(fs, n.Body.List)
	}
}

// expr declares the lambdas nested in an expression.
func (b *builder) expr(s *Scope, e ast.Expr) {
	ast.Inspect(e, func(n ast.Node) bool {
		if lam, ok := n.(*ast.LambdaExpr); ok {
			b.lambda(s, lam)
			return false
		}
		return true
	})
}

func (b *builder) stmts(s *Scope, list []ast.Stmt) {
	for _, st := range list {
		b.stmt(s, st)
	}
}

// branch processes the body of a control-flow statement. Bodies get their
// own block scope so names declared in them end with the statement.
func (b *builder) branch(s *Scope, st ast.Stmt) {
	if st == nil {
		return
	}
	switch st.(type) {
	case *ast.CompoundStmt, *ast.IfStmt, *ast.ForStmt, *ast.WhileStmt, *ast.SwitchStmt, *ast.DoStmt:
		b.stmt(s, st)
	default:
		blk := b.t.OpenScope(s, Block, "", st)
		b.stmt(blk, st)
	}
}

func (b *builder) stmt(s *Scope, st ast.Stmt) {
	switch n := st.(type) {
	case *ast.CompoundStmt:
		blk := b.t.OpenScope(s, Block, "", n)
		b.stmts(blk, n.List)
	case *ast.DeclStmt:
		for _, d := range n.Decls {
			b.decl(s, d)
		}
	case *ast.ExprStmt:
		b.expr(s, n.X)
	case *ast.IfStmt:
		cs := b.t.OpenScope(s, Block, "", n)
		if n.Init != nil {
			b.stmt(cs, n.Init)
		}
		b.expr(cs, n.Cond)
		b.branch(cs, n.Then)
		b.branch(cs, n.Else)
	case *ast.ForStmt:
		fs := b.t.OpenScope(s, Block, "", n)
		if n.Init != nil {
			b.stmt(fs, n.Init)
		}
		b.expr(fs, n.Range)
		b.expr(fs, n.Cond)
		b.expr(fs, n.Post)
		b.branch(fs, n.Body)
	case *ast.WhileStmt:
		ws := b.t.OpenScope(s, Block, "", n)
		if n.Init != nil {
			b.stmt(ws, n.Init)
		}
		b.expr(ws, n.Cond)
		b.branch(ws, n.Body)
	case *ast.DoStmt:
		b.branch(s, n.Body)
		b.expr(s, n.Cond)
	case *ast.SwitchStmt:
		ss := b.t.OpenScope(s, Block, "", n)
		if n.Init != nil {
			b.stmt(ss, n.Init)
		}
		b.expr(ss, n.Cond)
		for _, c := range n.Cases {
			for _, v := range c.Values {
				b.expr(ss, v)
			}
			b.stmts(ss, c.Body)
		}
	case *ast.ReturnStmt:
		b.expr(s, n.X)
	case *ast.LabeledStmt:
		b.stmt(s, n.Stmt)
	}
}

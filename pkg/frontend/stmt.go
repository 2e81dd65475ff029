package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

func (cv *converter) compound(n *sitter.Node) *ast.CompoundStmt {
	block := &ast.CompoundStmt{Base: cv.base(n), List: []ast.Stmt{}}
	for _, ch := range namedChildren(n) {
		if s := cv.stmt(ch); s != nil {
			block.List = append(block.List, s)
		}
	}
	return block
}

// stmt lowers a statement. It returns nil for statements without effect on
// the analysis, never a typed nil.
func (cv *converter) stmt(n *sitter.Node) ast.Stmt {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "compound_statement":
		return cv.compound(n)
	case "declaration", "alias_declaration", "type_definition", "struct_specifier",
		"class_specifier", "union_specifier", "enum_specifier":
		decls := cv.decl(n)
		if len(decls) == 0 {
			return nil
		}
		return &ast.DeclStmt{Base: cv.base(n), Decls: decls}
	case "expression_statement", "throw_statement":
		x := cv.singleExpr(n)
		if x == nil {
			return nil
		}
		return &ast.ExprStmt{Base: cv.base(n), X: x}
	case "if_statement":
		return cv.ifStmt(n)
	case "while_statement":
		init, cond := cv.condition(n.ChildByFieldName("condition"))
		return &ast.WhileStmt{Base: cv.base(n), Init: init, Cond: cond, Body: cv.stmt(n.ChildByFieldName("body"))}
	case "do_statement":
		return &ast.DoStmt{Base: cv.base(n), Body: cv.stmt(n.ChildByFieldName("body")), Cond: cv.expr(n.ChildByFieldName("condition"))}
	case "for_statement":
		return cv.forStmt(n)
	case "for_range_loop":
		return cv.rangeFor(n)
	case "switch_statement":
		return cv.switchStmt(n)
	case "return_statement":
		return &ast.ReturnStmt{Base: cv.base(n), X: cv.singleExpr(n)}
	case "break_statement":
		return &ast.BreakStmt{Base: cv.base(n)}
	case "continue_statement":
		return &ast.ContinueStmt{Base: cv.base(n)}
	case "labeled_statement":
		var inner ast.Stmt
		for _, ch := range namedChildren(n) {
			if ch.Type() != "statement_identifier" {
				inner = cv.stmt(ch)
			}
		}
		return &ast.LabeledStmt{Base: cv.base(n), Label: cv.text(n.ChildByFieldName("label")), Stmt: inner}
	case "goto_statement":
		return &ast.GotoStmt{Base: cv.base(n), Label: cv.text(n.ChildByFieldName("label"))}
	case "try_statement":
		// handlers are not modelled; the protected block runs as written
		if body := n.ChildByFieldName("body"); body != nil {
			return cv.compound(body)
		}
	case "function_definition":
		// local function definitions are a GNU extension
		return nil
	}
	return nil
}

// singleExpr lowers the only expression child of n, if any.
func (cv *converter) singleExpr(n *sitter.Node) ast.Expr {
	for _, ch := range namedChildren(n) {
		if x := cv.expr(ch); x != nil {
			return x
		}
	}
	return nil
}

func (cv *converter) ifStmt(n *sitter.Node) ast.Stmt {
	s := &ast.IfStmt{Base: cv.base(n)}
	s.Init, s.Cond = cv.condition(n.ChildByFieldName("condition"))
	s.Then = cv.stmt(n.ChildByFieldName("consequence"))
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		if alt.Type() == "else_clause" {
			for _, ch := range namedChildren(alt) {
				s.Else = cv.stmt(ch)
			}
		} else {
			s.Else = cv.stmt(alt)
		}
	}
	return s
}

// condition lowers a parenthesized condition or a C++ condition clause. A
// condition declaration becomes the init statement and the condition tests
// the declared variable.
func (cv *converter) condition(n *sitter.Node) (ast.Stmt, ast.Expr) {
	if n == nil {
		return nil, nil
	}
	if n.Type() != "condition_clause" {
		return nil, cv.expr(n)
	}
	var init ast.Stmt
	if in := n.ChildByFieldName("initializer"); in != nil {
		init = cv.stmt(in)
	}
	value := n.ChildByFieldName("value")
	if value == nil {
		value = lastNamed(n)
	}
	if value == nil {
		return init, nil
	}
	if value.Type() == "declaration" || value.Type() == "condition_declaration" {
		decls := cv.declaration(value)
		if len(decls) == 0 {
			return init, nil
		}
		var cond ast.Expr
		if v, ok := decls[len(decls)-1].(*ast.VarDecl); ok {
			cond = &ast.Ident{Base: v.Base, Name: v.Name}
		}
		return &ast.DeclStmt{Base: cv.base(value), Decls: decls}, cond
	}
	return init, cv.expr(value)
}

func (cv *converter) forStmt(n *sitter.Node) ast.Stmt {
	s := &ast.ForStmt{Base: cv.base(n), Body: cv.stmt(n.ChildByFieldName("body"))}
	if in := n.ChildByFieldName("initializer"); in != nil {
		if in.Type() == "declaration" {
			s.Init = cv.stmt(in)
		} else if x := cv.expr(in); x != nil {
			s.Init = &ast.ExprStmt{Base: cv.base(in), X: x}
		}
	}
	s.Cond = cv.expr(n.ChildByFieldName("condition"))
	s.Post = cv.expr(n.ChildByFieldName("update"))
	return s
}

// rangeFor lowers `for (T x : r)`; Init declares x and Range holds r.
func (cv *converter) rangeFor(n *sitter.Node) ast.Stmt {
	s := &ast.ForStmt{Base: cv.base(n), Body: cv.stmt(n.ChildByFieldName("body"))}
	d := cv.declarator(n.ChildByFieldName("declarator"), cv.specType(n))
	if d.name != "" {
		s.Init = &ast.DeclStmt{Base: cv.base(n), Decls: []ast.Decl{
			&ast.VarDecl{Base: cv.base(n.ChildByFieldName("declarator")), Name: d.name, Type: d.typ},
		}}
	}
	right := n.ChildByFieldName("right")
	if right != nil && right.Type() == "initializer_list" {
		s.Range = cv.initList(right)
	} else {
		s.Range = cv.expr(right)
	}
	return s
}

func (cv *converter) switchStmt(n *sitter.Node) ast.Stmt {
	s := &ast.SwitchStmt{Base: cv.base(n)}
	s.Init, s.Cond = cv.condition(n.ChildByFieldName("condition"))
	for _, ch := range namedChildren(n.ChildByFieldName("body")) {
		if ch.Type() != "case_statement" {
			continue
		}
		clause := &ast.CaseClause{Base: cv.base(ch)}
		value := ch.ChildByFieldName("value")
		if value != nil {
			clause.Values = []ast.Expr{cv.expr(value)}
		}
		for _, st := range namedChildren(ch) {
			if value != nil && sameNode(st, value) {
				continue
			}
			if x := cv.stmt(st); x != nil {
				clause.Body = append(clause.Body, x)
			}
		}
		s.Cases = append(s.Cases, clause)
	}
	return s
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

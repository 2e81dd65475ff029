package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExprString(t *testing.T) {
	p := &Ident{Name: "p"}
	tests := []struct {
		expr Expr
		want string
	}{
		{&Ident{Qualifier: []string{"std"}, Name: "move"}, "std::move"},
		{&Literal{Kind: StringLit, Value: "hi"}, `"hi"`},
		{&Literal{Kind: CharLit, Value: "a"}, "'a'"},
		{&UnaryExpr{Op: "*", X: p}, "*p"},
		{&UnaryExpr{Op: "++", X: p, Postfix: true}, "p++"},
		{&UnaryExpr{Op: "sizeof", X: p}, "sizeof p"},
		{&MemberExpr{X: p, Name: "next", Arrow: true}, "p->next"},
		{&AssignExpr{Op: "=", Lhs: p, Rhs: &UnaryExpr{Op: "&", X: &Ident{Name: "v"}}}, "p = &v"},
		{&CallExpr{Fun: &Ident{Name: "f"}, Args: []Expr{p, &Literal{Kind: IntLit, Value: "2"}}}, "f(p, 2)"},
		{&CallExpr{Fun: &Ident{Name: "g"}, ExplicitTemplate: true}, "g<>()"},
		{&CallExpr{Fun: &Ident{Name: "g"}, ExplicitTemplate: true,
			TemplateArgs: []TemplateArg{{Type: PointerTo(Named("int"))}}}, "g<int*>()"},
		{&SubscriptExpr{X: p, Index: &Literal{Kind: IntLit, Value: "0"}}, "p[0]"},
		{&CastExpr{Type: PointerTo(Named("void")), X: p}, "(void*)p"},
		{&InitListExpr{Elems: []Expr{p}, Designators: []string{"ptr"}}, "{.ptr = p}"},
		{&ThisExpr{}, "this"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ExprString(tt.expr))
		})
	}
}

func TestTypeRefString(t *testing.T) {
	assert.Equal(t, "void", (*TypeRef)(nil).String())
	assert.Equal(t, "const char*", PointerTo(Named("char").WithConst()).String())
	assert.Equal(t, "int[4]", ArrayOf(Named("int"), 4).String())
	assert.Equal(t, "int[]", ArrayOf(Named("int"), -1).String())
	assert.Equal(t, "void(*)(int,double&)", FuncOf(nil, Named("int"), ReferenceTo(Named("double"))).String())
	box := Named("ns", "Box")
	box.Args = []TemplateArg{{Type: Named("int")}, {Value: &Literal{Kind: IntLit, Value: "3"}}}
	assert.Equal(t, "ns::Box<int,3>", box.String())
}

func TestInspectOrder(t *testing.T) {
	v := &Ident{Name: "v"}
	p := &Ident{Name: "p"}
	body := &CompoundStmt{List: []Stmt{
		&ExprStmt{X: &AssignExpr{Op: "=", Lhs: p, Rhs: &UnaryExpr{Op: "&", X: v}}},
		&ReturnStmt{X: &UnaryExpr{Op: "*", X: p}},
	}}

	var idents []string
	Inspect(body, func(n Node) bool {
		if id, ok := n.(*Ident); ok {
			idents = append(idents, id.Name)
		}
		return true
	})
	assert.Equal(t, []string{"p", "v", "p"}, idents)

	var visited int
	Inspect(body, func(n Node) bool {
		visited++
		_, isReturn := n.(*ReturnStmt)
		return !isReturn
	})
	// body, expr stmt, assign, p, unary, v, return
	assert.Equal(t, 7, visited)
}

func TestChildrenSkipsTypedNil(t *testing.T) {
	var missing *Ident
	ret := &ReturnStmt{X: missing}
	assert.Empty(t, Children(ret))
}

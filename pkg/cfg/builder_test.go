package cfg

import (
	"testing"

	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }

func assign(lhs, rhs string) *ast.ExprStmt {
	return &ast.ExprStmt{X: &ast.AssignExpr{Op: "=", Lhs: ident(lhs), Rhs: ident(rhs)}}
}

func edgesOfType(info *CFGInfo, t EdgeType) int {
	n := 0
	for _, e := range info.Edges {
		if e.EdgeType == t {
			n++
		}
	}
	return n
}

func TestBuild_Straight(t *testing.T) {
	info := Build("f", &ast.CompoundStmt{List: []ast.Stmt{
		&ast.DeclStmt{Decls: []ast.Decl{&ast.VarDecl{Name: "p", Type: ast.PointerTo(ast.Named("int")), Init: ident("q")}}},
		assign("r", "p"),
	}})

	require.Len(t, info.Blocks, 2)
	entry := info.Entry()
	assert.Equal(t, []string{"entry", "int* p = q", "r = p"}, entry.Statements)
	assert.Len(t, entry.Nodes, 2)
	assert.Equal(t, []int{info.ExitBlockID}, entry.Successors)
	assert.Equal(t, 1, info.CyclomaticComplexity)
}

func TestBuild_ControlFlow(t *testing.T) {
	tests := []struct {
		name       string
		body       []ast.Stmt
		complexity int
		check      func(t *testing.T, info *CFGInfo)
	}{
		{
			name: "if else joins",
			body: []ast.Stmt{&ast.IfStmt{Cond: ident("c"), Then: assign("a", "b"), Else: assign("a", "d")}},
			complexity: 2,
			check: func(t *testing.T, info *CFGInfo) {
				assert.Equal(t, 1, edgesOfType(info, EdgeTypeTrue))
				assert.Equal(t, 1, edgesOfType(info, EdgeTypeFalse))
				var join *CFGBlock
				for _, b := range info.Blocks {
					if b.Type == BlockTypeJoin {
						join = b
					}
				}
				require.NotNil(t, join)
				assert.Len(t, join.Predecessors, 2)
			},
		},
		{
			name: "while has a back edge",
			body: []ast.Stmt{&ast.WhileStmt{Cond: ident("c"), Body: assign("a", "b")}},
			complexity: 2,
			check: func(t *testing.T, info *CFGInfo) {
				assert.Equal(t, 1, edgesOfType(info, EdgeTypeBackEdge))
			},
		},
		{
			name: "for with break and continue",
			body: []ast.Stmt{&ast.ForStmt{
				Cond: ident("c"),
				Post: &ast.UnaryExpr{Op: "++", X: ident("i"), Postfix: true},
				Body: &ast.CompoundStmt{List: []ast.Stmt{
					&ast.IfStmt{Cond: ident("x"), Then: &ast.BreakStmt{}},
					&ast.IfStmt{Cond: ident("y"), Then: &ast.ContinueStmt{}},
				}},
			}},
			complexity: 4,
			check: func(t *testing.T, info *CFGInfo) {
				assert.Equal(t, 1, edgesOfType(info, EdgeTypeBreak))
				assert.Equal(t, 1, edgesOfType(info, EdgeTypeContinue))
			},
		},
		{
			name: "return skips the rest",
			body: []ast.Stmt{&ast.ReturnStmt{X: ident("p")}, assign("a", "b")},
			complexity: 1,
			check: func(t *testing.T, info *CFGInfo) {
				order := info.ReversePostorder()
				for _, id := range order {
					for _, s := range info.Blocks[id].Statements {
						assert.NotEqual(t, "a = b", s)
					}
				}
			},
		},
		{
			name: "switch falls through",
			body: []ast.Stmt{&ast.SwitchStmt{Cond: ident("k"), Cases: []*ast.CaseClause{
				{Values: []ast.Expr{&ast.Literal{Kind: ast.IntLit, Value: "1"}}, Body: []ast.Stmt{assign("a", "b")}},
				{Values: []ast.Expr{&ast.Literal{Kind: ast.IntLit, Value: "2"}}, Body: []ast.Stmt{assign("a", "c"), &ast.BreakStmt{}}},
			}}},
			complexity: 3,
			check: func(t *testing.T, info *CFGInfo) {
				assert.Equal(t, 1, edgesOfType(info, EdgeTypeBreak))
			},
		},
		{
			name: "goto a label",
			body: []ast.Stmt{
				&ast.LabeledStmt{Label: "again", Stmt: assign("a", "b")},
				&ast.IfStmt{Cond: ident("c"), Then: &ast.GotoStmt{Label: "again"}},
			},
			complexity: 2,
			check: func(t *testing.T, info *CFGInfo) {
				assert.Equal(t, 1, edgesOfType(info, EdgeTypeGoto))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Build("f", &ast.CompoundStmt{List: tt.body})
			assert.Equal(t, tt.complexity, info.CyclomaticComplexity)
			for _, e := range info.Edges {
				assert.Contains(t, info.Blocks[e.SourceID].Successors, e.TargetID)
				assert.Contains(t, info.Blocks[e.TargetID].Predecessors, e.SourceID)
			}
			tt.check(t, info)
		})
	}
}

func TestReversePostorder_EntryFirst(t *testing.T) {
	info := Build("f", &ast.CompoundStmt{List: []ast.Stmt{
		&ast.WhileStmt{Cond: ident("c"), Body: assign("a", "b")},
	}})
	order := info.ReversePostorder()
	require.NotEmpty(t, order)
	assert.Equal(t, info.EntryBlockID, order[0])
	assert.Contains(t, order, info.ExitBlockID)
}

func TestBuild_NilBody(t *testing.T) {
	info := Build("proto", nil)
	assert.Len(t, info.Blocks, 2)
	assert.Len(t, info.Edges, 1)
	assert.Equal(t, 3, info.Size())
}

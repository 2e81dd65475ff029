package dfg

import "github.com/l3aro/go-flow-query/pkg/scope"

// RefType represents the type of variable reference in def-use analysis.
type RefType string

const (
	RefTypeDefinition RefType = "definition" // Declaration with initializer, plain assignment or parameter binding
	RefTypeUpdate     RefType = "update"     // Compound assignment, increment or decrement
	RefTypeUse        RefType = "use"        // Read
)

// VarRef is one occurrence of a local variable in a function body.
type VarRef struct {
	Name    string             `json:"name"`
	RefType RefType            `json:"ref_type"`
	Line    int                `json:"line"`
	Column  int                `json:"column"`
	Decl    *scope.Declaration `json:"-"`
	block   int
}

// DataflowEdge connects a definition or update to a use it reaches.
type DataflowEdge struct {
	DefRef  VarRef `json:"def_ref"`
	UseRef  VarRef `json:"use_ref"`
	VarName string `json:"var_name"`
}

// DFGInfo holds the def-use chains of the locals of one function.
type DFGInfo struct {
	FunctionName  string              `json:"function_name"`
	VarRefs       []VarRef            `json:"var_refs"`
	DataflowEdges []DataflowEdge      `json:"dataflow_edges"`
	Variables     map[string][]VarRef `json:"variables"`
}

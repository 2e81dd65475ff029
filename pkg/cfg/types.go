// Package cfg builds Control Flow Graphs over function bodies. Blocks hold
// the statements and conditions they evaluate in order; the data-flow pass
// iterates over them.
package cfg

import "github.com/l3aro/go-flow-query/pkg/ast"

// BlockType represents the type of a CFG block.
type BlockType string

const (
	BlockTypeEntry    BlockType = "entry"     // Function entry point
	BlockTypeBranch   BlockType = "branch"    // Evaluates a condition
	BlockTypeLoopBody BlockType = "loop_body" // Loop body
	BlockTypeReturn   BlockType = "return"    // Return statement
	BlockTypeExit     BlockType = "exit"      // Function exit point
	BlockTypePlain    BlockType = "plain"     // Regular statements
	BlockTypeJoin     BlockType = "join"      // Merge point after a branch or loop
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional"
	EdgeTypeTrue          EdgeType = "true"
	EdgeTypeFalse         EdgeType = "false"
	EdgeTypeBackEdge      EdgeType = "back_edge"
	EdgeTypeBreak         EdgeType = "break"
	EdgeTypeContinue      EdgeType = "continue"
	EdgeTypeGoto          EdgeType = "goto"
)

// CFGBlock is a basic block. Nodes are the units the data-flow transfer
// functions run over: *ast.VarDecl for local declarations, *ast.ReturnStmt,
// and plain expressions for expression statements and conditions.
type CFGBlock struct {
	ID           int        `json:"id"`
	Type         BlockType  `json:"type"`
	StartLine    int        `json:"start_line"`
	EndLine      int        `json:"end_line"`
	Nodes        []ast.Node `json:"-"`
	Statements   []string   `json:"statements"`
	Predecessors []int      `json:"predecessors"`
	Successors   []int      `json:"successors"`
}

// CFGEdge is a directed edge between two blocks.
type CFGEdge struct {
	SourceID  int      `json:"source_id"`
	TargetID  int      `json:"target_id"`
	EdgeType  EdgeType `json:"edge_type"`
	Condition string   `json:"condition,omitempty"`
}

// CFGInfo is the control flow graph of one function. Blocks are indexed by
// ID.
type CFGInfo struct {
	FunctionName         string      `json:"function_name"`
	Blocks               []*CFGBlock `json:"blocks"`
	Edges                []CFGEdge   `json:"edges"`
	EntryBlockID         int         `json:"entry_block_id"`
	ExitBlockID          int         `json:"exit_block_id"`
	CyclomaticComplexity int         `json:"cyclomatic_complexity"`
}

// Entry returns the entry block.
func (c *CFGInfo) Entry() *CFGBlock { return c.Blocks[c.EntryBlockID] }

// Exit returns the exit block.
func (c *CFGInfo) Exit() *CFGBlock { return c.Blocks[c.ExitBlockID] }

// Size is the number of blocks plus the number of edges.
func (c *CFGInfo) Size() int { return len(c.Blocks) + len(c.Edges) }

// ReversePostorder lists the IDs of the blocks reachable from the entry in
// reverse postorder. Forward data-flow problems converge fastest visiting
// blocks in this order.
func (c *CFGInfo) ReversePostorder() []int {
	seen := make([]bool, len(c.Blocks))
	post := make([]int, 0, len(c.Blocks))
	var visit func(id int)
	visit = func(id int) {
		seen[id] = true
		for _, s := range c.Blocks[id].Successors {
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, id)
	}
	visit(c.EntryBlockID)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

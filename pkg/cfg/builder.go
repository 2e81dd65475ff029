package cfg

import (
	"fmt"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

type loopTarget struct {
	brk  *CFGBlock
	cont *CFGBlock // nil for switch
}

type pendingGoto struct {
	from  *CFGBlock
	label string
}

type builder struct {
	info   *CFGInfo
	exit   *CFGBlock
	loops  []loopTarget
	labels map[string]*CFGBlock
	gotos  []pendingGoto
}

// Build constructs the control flow graph of a function body. A nil body
// yields an entry block connected to the exit block.
func Build(name string, body *ast.CompoundStmt) *CFGInfo {
	b := &builder{
		info:   &CFGInfo{FunctionName: name},
		labels: make(map[string]*CFGBlock),
	}
	start, end := 0, 0
	if body != nil {
		sp := body.Span()
		start, end = sp.StartLine, sp.EndLine
	}
	entry := b.newBlock(BlockTypeEntry, start)
	entry.Statements = []string{"entry"}
	b.exit = b.newBlock(BlockTypeExit, end)
	b.exit.Statements = []string{"exit"}
	b.info.EntryBlockID = entry.ID
	b.info.ExitBlockID = b.exit.ID

	current := entry
	if body != nil {
		b.processStmts(body.List, &current)
	}
	b.addEdge(current, b.exit, EdgeTypeUnconditional, "")

	for _, g := range b.gotos {
		target, ok := b.labels[g.label]
		if !ok {
			target = b.exit
		}
		b.addEdge(g.from, target, EdgeTypeGoto, g.label)
	}

	complexity := len(b.info.Edges) - len(b.info.Blocks) + 2
	if complexity < 1 {
		complexity = 1
	}
	b.info.CyclomaticComplexity = complexity
	return b.info
}

func (b *builder) newBlock(t BlockType, line int) *CFGBlock {
	blk := &CFGBlock{ID: len(b.info.Blocks), Type: t, StartLine: line, EndLine: line}
	b.info.Blocks = append(b.info.Blocks, blk)
	return blk
}

func (b *builder) addEdge(from, to *CFGBlock, t EdgeType, cond string) {
	if from == nil || to == nil {
		return
	}
	b.info.Edges = append(b.info.Edges, CFGEdge{SourceID: from.ID, TargetID: to.ID, EdgeType: t, Condition: cond})
	from.Successors = append(from.Successors, to.ID)
	to.Predecessors = append(to.Predecessors, from.ID)
}

// addNode appends n to the current block, opening an unreachable block when
// control cannot reach this point.
func (b *builder) addNode(current **CFGBlock, n ast.Node) {
	if n == nil {
		return
	}
	if *current == nil {
		*current = b.newBlock(BlockTypePlain, n.Span().StartLine)
	}
	blk := *current
	blk.Nodes = append(blk.Nodes, n)
	blk.Statements = append(blk.Statements, Render(n))
	if l := n.Span().EndLine; l > blk.EndLine {
		blk.EndLine = l
	}
}

func (b *builder) processStmts(list []ast.Stmt, current **CFGBlock) {
	for _, st := range list {
		b.processStmt(st, current)
	}
}

func (b *builder) processStmt(st ast.Stmt, current **CFGBlock) {
	switch n := st.(type) {
	case nil:
	case *ast.CompoundStmt:
		b.processStmts(n.List, current)
	case *ast.DeclStmt:
		for _, d := range n.Decls {
			if v, ok := d.(*ast.VarDecl); ok {
				b.addNode(current, v)
			}
		}
	case *ast.ExprStmt:
		if n.X != nil {
			b.addNode(current, n.X)
		}
	case *ast.IfStmt:
		b.processIf(n, current)
	case *ast.WhileStmt:
		b.processWhile(n, current)
	case *ast.ForStmt:
		b.processFor(n, current)
	case *ast.DoStmt:
		b.processDo(n, current)
	case *ast.SwitchStmt:
		b.processSwitch(n, current)
	case *ast.ReturnStmt:
		ret := b.newBlock(BlockTypeReturn, n.Span().StartLine)
		b.addEdge(*current, ret, EdgeTypeUnconditional, "")
		b.addNode(&ret, n)
		b.addEdge(ret, b.exit, EdgeTypeUnconditional, "")
		*current = nil
	case *ast.BreakStmt:
		if len(b.loops) > 0 {
			b.addEdge(*current, b.loops[len(b.loops)-1].brk, EdgeTypeBreak, "")
		}
		*current = nil
	case *ast.ContinueStmt:
		for i := len(b.loops) - 1; i >= 0; i-- {
			if b.loops[i].cont != nil {
				b.addEdge(*current, b.loops[i].cont, EdgeTypeContinue, "")
				break
			}
		}
		*current = nil
	case *ast.LabeledStmt:
		lb := b.newBlock(BlockTypePlain, n.Span().StartLine)
		lb.Statements = []string{n.Label + ":"}
		b.addEdge(*current, lb, EdgeTypeUnconditional, "")
		b.labels[n.Label] = lb
		*current = lb
		b.processStmt(n.Stmt, current)
	case *ast.GotoStmt:
		if *current != nil {
			b.gotos = append(b.gotos, pendingGoto{from: *current, label: n.Label})
		}
		*current = nil
	}
}

func (b *builder) branch(cond ast.Expr, line int, current **CFGBlock) *CFGBlock {
	br := b.newBlock(BlockTypeBranch, line)
	b.addEdge(*current, br, EdgeTypeUnconditional, "")
	if cond != nil {
		b.addNode(&br, cond)
	}
	return br
}

func (b *builder) processIf(n *ast.IfStmt, current **CFGBlock) {
	b.processStmt(n.Init, current)
	cond := ast.ExprString(n.Cond)
	br := b.branch(n.Cond, n.Span().StartLine, current)
	join := b.newBlock(BlockTypeJoin, n.Span().EndLine)

	then := b.newBlock(BlockTypePlain, n.Span().StartLine)
	b.addEdge(br, then, EdgeTypeTrue, cond)
	b.processStmt(n.Then, &then)
	b.addEdge(then, join, EdgeTypeUnconditional, "")

	if n.Else != nil {
		els := b.newBlock(BlockTypePlain, n.Else.Span().StartLine)
		b.addEdge(br, els, EdgeTypeFalse, cond)
		b.processStmt(n.Else, &els)
		b.addEdge(els, join, EdgeTypeUnconditional, "")
	} else {
		b.addEdge(br, join, EdgeTypeFalse, cond)
	}
	*current = join
}

func (b *builder) processWhile(n *ast.WhileStmt, current **CFGBlock) {
	b.processStmt(n.Init, current)
	cond := ast.ExprString(n.Cond)
	header := b.branch(n.Cond, n.Span().StartLine, current)
	after := b.newBlock(BlockTypeJoin, n.Span().EndLine)
	body := b.newBlock(BlockTypeLoopBody, n.Span().StartLine)
	b.addEdge(header, body, EdgeTypeTrue, cond)
	b.addEdge(header, after, EdgeTypeFalse, cond)

	b.loops = append(b.loops, loopTarget{brk: after, cont: header})
	b.processStmt(n.Body, &body)
	b.loops = b.loops[:len(b.loops)-1]
	b.addEdge(body, header, EdgeTypeBackEdge, "")
	*current = after
}

// processFor handles classic and range-based loops. The loop variable of a
// range loop is assigned at the top of every iteration.
func (b *builder) processFor(n *ast.ForStmt, current **CFGBlock) {
	if n.Range == nil {
		b.processStmt(n.Init, current)
	}
	header := b.branch(n.Cond, n.Span().StartLine, current)
	if n.Range != nil {
		b.addNode(&header, n.Range)
	}
	cond := ast.ExprString(n.Cond)
	after := b.newBlock(BlockTypeJoin, n.Span().EndLine)
	body := b.newBlock(BlockTypeLoopBody, n.Span().StartLine)
	b.addEdge(header, body, EdgeTypeTrue, cond)
	if n.Cond != nil || n.Range != nil {
		b.addEdge(header, after, EdgeTypeFalse, cond)
	}
	if n.Range != nil {
		b.processStmt(n.Init, &body)
	}

	cont := header
	var latch *CFGBlock
	if n.Post != nil {
		latch = b.newBlock(BlockTypePlain, n.Span().StartLine)
		b.addNode(&latch, n.Post)
		cont = latch
	}

	b.loops = append(b.loops, loopTarget{brk: after, cont: cont})
	b.processStmt(n.Body, &body)
	b.loops = b.loops[:len(b.loops)-1]

	if latch != nil {
		b.addEdge(body, latch, EdgeTypeUnconditional, "")
		b.addEdge(latch, header, EdgeTypeBackEdge, "")
	} else {
		b.addEdge(body, header, EdgeTypeBackEdge, "")
	}
	*current = after
}

func (b *builder) processDo(n *ast.DoStmt, current **CFGBlock) {
	body := b.newBlock(BlockTypeLoopBody, n.Span().StartLine)
	start := body
	b.addEdge(*current, body, EdgeTypeUnconditional, "")
	after := b.newBlock(BlockTypeJoin, n.Span().EndLine)
	cond := b.newBlock(BlockTypeBranch, n.Span().EndLine)

	b.loops = append(b.loops, loopTarget{brk: after, cont: cond})
	b.processStmt(n.Body, &body)
	b.loops = b.loops[:len(b.loops)-1]

	b.addEdge(body, cond, EdgeTypeUnconditional, "")
	b.addNode(&cond, n.Cond)
	text := ast.ExprString(n.Cond)
	b.addEdge(cond, start, EdgeTypeBackEdge, text)
	b.addEdge(cond, after, EdgeTypeFalse, text)
	*current = after
}

func (b *builder) processSwitch(n *ast.SwitchStmt, current **CFGBlock) {
	b.processStmt(n.Init, current)
	sw := b.branch(n.Cond, n.Span().StartLine, current)
	after := b.newBlock(BlockTypeJoin, n.Span().EndLine)

	b.loops = append(b.loops, loopTarget{brk: after})
	var prev *CFGBlock
	hasDefault := false
	for _, c := range n.Cases {
		label := "default"
		if c.Values == nil {
			hasDefault = true
		} else {
			label = "case " + ast.ExprString(c.Values[0])
		}
		cb := b.newBlock(BlockTypePlain, c.Span().StartLine)
		cb.Statements = []string{label + ":"}
		b.addEdge(sw, cb, EdgeTypeUnconditional, label)
		// fallthrough from the previous clause
		b.addEdge(prev, cb, EdgeTypeUnconditional, "")
		b.processStmts(c.Body, &cb)
		prev = cb
	}
	b.loops = b.loops[:len(b.loops)-1]

	b.addEdge(prev, after, EdgeTypeUnconditional, "")
	if !hasDefault {
		b.addEdge(sw, after, EdgeTypeFalse, "")
	}
	*current = after
}

// Render prints a block node for listings.
func Render(n ast.Node) string {
	switch x := n.(type) {
	case *ast.VarDecl:
		s := fmt.Sprintf("%s %s", x.Type.String(), x.Name)
		if x.Init != nil {
			s += " = " + ast.ExprString(x.Init)
		}
		return s
	case *ast.ReturnStmt:
		if x.X == nil {
			return "return"
		}
		return "return " + ast.ExprString(x.X)
	case ast.Expr:
		return ast.ExprString(x)
	}
	return fmt.Sprintf("%T", n)
}

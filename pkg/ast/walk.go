package ast

// Inspect traverses the tree rooted at n in depth-first order. It calls f(n)
// and, if f returns true, recurses into each child. Lambda bodies are visited
// like any other child; callers that treat lambdas as separate functions
// return false for *LambdaExpr.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Children returns the direct child nodes of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(c Node) {
		if c == nil {
			return
		}
		// typed nil pointers stored in interfaces
		switch v := c.(type) {
		case *CompoundStmt:
			if v == nil {
				return
			}
		case Expr:
			if isNilExpr(v) {
				return
			}
		}
		out = append(out, c)
	}
	addExprs := func(es []Expr) {
		for _, e := range es {
			add(e)
		}
	}
	addTemplateArgs := func(args []TemplateArg) {
		for _, a := range args {
			if a.Value != nil {
				add(a.Value)
			}
		}
	}

	switch x := n.(type) {
	case *TranslationUnit:
		for _, d := range x.Decls {
			add(d)
		}
	case *NamespaceDecl:
		for _, d := range x.Decls {
			add(d)
		}
	case *RecordDecl:
		for _, d := range x.Members {
			add(d)
		}
	case *EnumDecl:
		for _, e := range x.Enumerators {
			if e.Value != nil {
				add(e.Value)
			}
		}
	case *FunctionDecl:
		for _, p := range x.Params {
			add(p)
		}
		if x.Body != nil {
			add(x.Body)
		}
	case *ParamDecl:
		if x.Default != nil {
			add(x.Default)
		}
	case *VarDecl:
		if x.Init != nil {
			add(x.Init)
		}
	case *CompoundStmt:
		for _, s := range x.List {
			add(s)
		}
	case *DeclStmt:
		for _, d := range x.Decls {
			add(d)
		}
	case *ExprStmt:
		add(x.X)
	case *IfStmt:
		if x.Init != nil {
			add(x.Init)
		}
		add(x.Cond)
		if x.Then != nil {
			add(x.Then)
		}
		if x.Else != nil {
			add(x.Else)
		}
	case *ForStmt:
		if x.Init != nil {
			add(x.Init)
		}
		add(x.Range)
		add(x.Cond)
		add(x.Post)
		if x.Body != nil {
			add(x.Body)
		}
	case *WhileStmt:
		if x.Init != nil {
			add(x.Init)
		}
		add(x.Cond)
		if x.Body != nil {
			add(x.Body)
		}
	case *DoStmt:
		if x.Body != nil {
			add(x.Body)
		}
		add(x.Cond)
	case *SwitchStmt:
		if x.Init != nil {
			add(x.Init)
		}
		add(x.Cond)
		for _, c := range x.Cases {
			add(c)
		}
	case *CaseClause:
		addExprs(x.Values)
		for _, s := range x.Body {
			add(s)
		}
	case *ReturnStmt:
		add(x.X)
	case *LabeledStmt:
		if x.Stmt != nil {
			add(x.Stmt)
		}
	case *CallExpr:
		add(x.Fun)
		addTemplateArgs(x.TemplateArgs)
		addExprs(x.Args)
	case *MemberExpr:
		add(x.X)
	case *UnaryExpr:
		add(x.X)
	case *BinaryExpr:
		add(x.X)
		add(x.Y)
	case *AssignExpr:
		add(x.Lhs)
		add(x.Rhs)
	case *SubscriptExpr:
		add(x.X)
		add(x.Index)
	case *CastExpr:
		add(x.X)
	case *NewExpr:
		addExprs(x.Args)
	case *ConditionalExpr:
		add(x.Cond)
		add(x.Then)
		add(x.Else)
	case *InitListExpr:
		addExprs(x.Elems)
	case *LambdaExpr:
		for _, p := range x.Params {
			add(p)
		}
		if x.Body != nil {
			add(x.Body)
		}
	}
	return out
}

func isNilExpr(e Expr) bool {
	switch v := e.(type) {
	case *Ident:
		return v == nil
	case *Literal:
		return v == nil
	case *CallExpr:
		return v == nil
	case *MemberExpr:
		return v == nil
	case *UnaryExpr:
		return v == nil
	case *BinaryExpr:
		return v == nil
	case *AssignExpr:
		return v == nil
	case *SubscriptExpr:
		return v == nil
	case *CastExpr:
		return v == nil
	case *NewExpr:
		return v == nil
	case *ConditionalExpr:
		return v == nil
	case *InitListExpr:
		return v == nil
	case *LambdaExpr:
		return v == nil
	case *ThisExpr:
		return v == nil
	}
	return false
}

package frontend

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

var namedCasts = map[string]bool{
	"static_cast":      true,
	"reinterpret_cast": true,
	"const_cast":       true,
	"dynamic_cast":     true,
}

// expr lowers an expression. Unsupported forms lower to their only operand,
// or to nil.
func (cv *converter) expr(n *sitter.Node) ast.Expr {
	if n == nil {
		return nil
	}
	b := cv.base(n)
	switch n.Type() {
	case "identifier", "field_identifier", "namespace_identifier", "type_identifier", "primitive_type":
		return &ast.Ident{Base: b, Name: cv.text(n)}
	case "qualified_identifier", "scoped_identifier":
		path := cv.path(n)
		if len(path) == 0 {
			return nil
		}
		id := cv.ident(n, path)
		if name := lastNamed(n); name != nil && name.Type() == "template_function" {
			return &ast.CallExpr{Base: b, Fun: id, TemplateArgs: cv.templateArgs(name.ChildByFieldName("arguments")), ExplicitTemplate: true}
		}
		return id
	case "this":
		return &ast.ThisExpr{Base: b}
	case "number_literal":
		return cv.number(n)
	case "string_literal", "raw_string_literal":
		return &ast.Literal{Base: b, Kind: ast.StringLit, Value: cv.stringValue(n)}
	case "concatenated_string":
		var sb strings.Builder
		for _, ch := range namedChildren(n) {
			sb.WriteString(cv.stringValue(ch))
		}
		return &ast.Literal{Base: b, Kind: ast.StringLit, Value: sb.String()}
	case "char_literal":
		return &ast.Literal{Base: b, Kind: ast.CharLit, Value: charValue(cv.text(n))}
	case "true", "false":
		return &ast.Literal{Base: b, Kind: ast.BoolLit, Value: n.Type()}
	case "null", "nullptr":
		return &ast.Literal{Base: b, Kind: ast.NullLit, Value: cv.text(n)}
	case "call_expression":
		return cv.call(n)
	case "field_expression":
		op := n.ChildByFieldName("operator")
		return &ast.MemberExpr{
			Base:  b,
			X:     cv.expr(n.ChildByFieldName("argument")),
			Name:  lastPathElem(cv.path(n.ChildByFieldName("field"))),
			Arrow: op != nil && cv.text(op) == "->",
		}
	case "pointer_expression", "unary_expression":
		return &ast.UnaryExpr{Base: b, Op: cv.text(n.ChildByFieldName("operator")), X: cv.expr(n.ChildByFieldName("argument"))}
	case "update_expression":
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")
		return &ast.UnaryExpr{Base: b, Op: cv.text(op), X: cv.expr(arg), Postfix: arg != nil && op != nil && arg.StartByte() < op.StartByte()}
	case "binary_expression":
		return &ast.BinaryExpr{
			Base: b,
			Op:   cv.text(n.ChildByFieldName("operator")),
			X:    cv.expr(n.ChildByFieldName("left")),
			Y:    cv.expr(n.ChildByFieldName("right")),
		}
	case "comma_expression":
		return &ast.BinaryExpr{Base: b, Op: ",", X: cv.expr(n.ChildByFieldName("left")), Y: cv.expr(n.ChildByFieldName("right"))}
	case "assignment_expression":
		rhs := n.ChildByFieldName("right")
		var value ast.Expr
		if rhs != nil && rhs.Type() == "initializer_list" {
			value = cv.initList(rhs)
		} else {
			value = cv.expr(rhs)
		}
		return &ast.AssignExpr{Base: b, Op: cv.text(n.ChildByFieldName("operator")), Lhs: cv.expr(n.ChildByFieldName("left")), Rhs: value}
	case "subscript_expression":
		index := n.ChildByFieldName("index")
		if index == nil {
			if idx := n.ChildByFieldName("indices"); idx != nil {
				index = lastNamed(idx)
			}
		}
		return &ast.SubscriptExpr{Base: b, X: cv.expr(n.ChildByFieldName("argument")), Index: cv.expr(index)}
	case "cast_expression":
		return &ast.CastExpr{Base: b, Type: cv.typeRef(n.ChildByFieldName("type")), X: cv.expr(n.ChildByFieldName("value"))}
	case "compound_literal_expression":
		value := n.ChildByFieldName("value")
		var x ast.Expr
		if value != nil && value.Type() == "initializer_list" {
			x = cv.initList(value)
		} else {
			x = cv.expr(value)
		}
		return &ast.CastExpr{Base: b, Type: cv.typeRef(n.ChildByFieldName("type")), X: x}
	case "sizeof_expression", "alignof_expression":
		if t := n.ChildByFieldName("type"); t != nil {
			return &ast.UnaryExpr{Base: b, Op: "sizeof", X: cv.typeOperand(t)}
		}
		return &ast.UnaryExpr{Base: b, Op: "sizeof", X: cv.expr(n.ChildByFieldName("value"))}
	case "new_expression":
		return cv.newExpr(n)
	case "delete_expression":
		return &ast.UnaryExpr{Base: b, Op: "delete", X: cv.singleExpr(n)}
	case "conditional_expression":
		return &ast.ConditionalExpr{
			Base: b,
			Cond: cv.expr(n.ChildByFieldName("condition")),
			Then: cv.expr(n.ChildByFieldName("consequence")),
			Else: cv.expr(n.ChildByFieldName("alternative")),
		}
	case "parenthesized_expression", "condition_clause":
		return cv.singleExpr(n)
	case "initializer_list":
		return cv.initList(n)
	case "lambda_expression":
		return cv.lambda(n)
	case "template_function":
		return &ast.CallExpr{
			Base:             b,
			Fun:              &ast.Ident{Base: b, Name: cv.text(n.ChildByFieldName("name"))},
			TemplateArgs:     cv.templateArgs(n.ChildByFieldName("arguments")),
			ExplicitTemplate: true,
		}
	case "comment", "ERROR":
		return nil
	}
	ch := namedChildren(n)
	if len(ch) == 1 {
		return cv.expr(ch[0])
	}
	return nil
}

// ident builds an identifier from a qualified path.
func (cv *converter) ident(n *sitter.Node, path []string) *ast.Ident {
	id := &ast.Ident{Base: cv.base(n), Name: lastPathElem(path)}
	if len(path) > 1 {
		id.Qualifier = path[:len(path)-1]
	}
	return id
}

func lastPathElem(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

// typeOperand lowers the type operand of sizeof to a name the type
// resolver can fold. Only named types survive.
func (cv *converter) typeOperand(n *sitter.Node) ast.Expr {
	t := cv.typeRef(n)
	if t == nil {
		return nil
	}
	if t.Kind == ast.TypeNamed && len(t.Name) > 0 {
		return cv.ident(n, t.Name)
	}
	return &ast.CastExpr{Base: cv.base(n), Type: t}
}

func (cv *converter) number(n *sitter.Node) ast.Expr {
	text := cv.text(n)
	kind := ast.IntLit
	lower := strings.ToLower(text)
	isHex := strings.HasPrefix(lower, "0x")
	if strings.ContainsAny(lower, ".") || (!isHex && strings.ContainsAny(lower, "e")) || (isHex && strings.Contains(lower, "p")) {
		kind = ast.FloatLit
	} else if !isHex && strings.HasSuffix(lower, "f") {
		kind = ast.FloatLit
	}
	return &ast.Literal{Base: cv.base(n), Kind: kind, Value: text}
}

// charValue strips the quotes of a plain character literal. Prefixed
// literals keep their spelling so the prefix still selects the type.
func charValue(s string) string {
	if strings.HasPrefix(s, "'") {
		return strings.Trim(s, "'")
	}
	return s
}

// stringValue returns the unquoted contents of a string literal, with the
// simple escapes decoded.
func (cv *converter) stringValue(n *sitter.Node) string {
	if n.Type() == "raw_string_literal" {
		if c := n.ChildByFieldName("content"); c != nil {
			return cv.text(c)
		}
	}
	text := cv.text(n)
	start := strings.IndexByte(text, '"')
	end := strings.LastIndexByte(text, '"')
	if start < 0 || end <= start {
		return text
	}
	body := text[start : end+1]
	if s, err := strconv.Unquote(body); err == nil {
		return s
	}
	return body[1 : len(body)-1]
}

func (cv *converter) args(n *sitter.Node) []ast.Expr {
	out := []ast.Expr{}
	for _, ch := range namedChildren(n) {
		var x ast.Expr
		if ch.Type() == "initializer_list" {
			x = cv.initList(ch)
		} else {
			x = cv.expr(ch)
		}
		if x != nil {
			out = append(out, x)
		}
	}
	return out
}

// call lowers a call expression. Named casts written as calls become cast
// expressions and template-ids set ExplicitTemplate.
func (cv *converter) call(n *sitter.Node) ast.Expr {
	b := cv.base(n)
	fn := n.ChildByFieldName("function")
	args := cv.args(n.ChildByFieldName("arguments"))
	if fn == nil {
		return nil
	}
	switch fn.Type() {
	case "template_function":
		name := cv.text(fn.ChildByFieldName("name"))
		targs := cv.templateArgs(fn.ChildByFieldName("arguments"))
		if namedCasts[name] && len(targs) == 1 && targs[0].Type != nil {
			var x ast.Expr
			if len(args) > 0 {
				x = args[0]
			}
			return &ast.CastExpr{Base: b, Type: targs[0].Type, X: x}
		}
		return &ast.CallExpr{Base: b, Fun: &ast.Ident{Base: cv.base(fn), Name: name}, Args: args, TemplateArgs: targs, ExplicitTemplate: true}
	case "qualified_identifier":
		c := &ast.CallExpr{Base: b, Fun: cv.ident(fn, cv.path(fn)), Args: args}
		if name := lastNamed(fn); name != nil && name.Type() == "template_function" {
			c.TemplateArgs = cv.templateArgs(name.ChildByFieldName("arguments"))
			c.ExplicitTemplate = true
		}
		return c
	case "field_expression":
		field := fn.ChildByFieldName("field")
		if field != nil && (field.Type() == "template_method" || field.Type() == "template_function") {
			op := fn.ChildByFieldName("operator")
			m := &ast.MemberExpr{
				Base:  cv.base(fn),
				X:     cv.expr(fn.ChildByFieldName("argument")),
				Name:  cv.text(field.ChildByFieldName("name")),
				Arrow: op != nil && cv.text(op) == "->",
			}
			return &ast.CallExpr{Base: b, Fun: m, Args: args, TemplateArgs: cv.templateArgs(field.ChildByFieldName("arguments")), ExplicitTemplate: true}
		}
	case "primitive_type", "type_identifier":
		// functional cast such as int(x)
		if len(args) == 1 {
			return &ast.CastExpr{Base: b, Type: cv.typeRef(fn), X: args[0]}
		}
	}
	return &ast.CallExpr{Base: b, Fun: cv.expr(fn), Args: args}
}

func (cv *converter) templateArgs(n *sitter.Node) []ast.TemplateArg {
	out := []ast.TemplateArg{}
	for _, ch := range namedChildren(n) {
		if ch.Type() == "type_descriptor" {
			out = append(out, ast.TemplateArg{Type: cv.typeRef(ch)})
			continue
		}
		if x := cv.expr(ch); x != nil {
			out = append(out, ast.TemplateArg{Value: x})
		}
	}
	return out
}

func (cv *converter) newExpr(n *sitter.Node) ast.Expr {
	x := &ast.NewExpr{Base: cv.base(n), Type: cv.typeRef(n.ChildByFieldName("type"))}
	if d := n.ChildByFieldName("declarator"); d != nil {
		x.Array = true
		if d.Type() == "new_declarator" {
			for _, ch := range namedChildren(d) {
				if e := cv.expr(ch); e != nil {
					x.Args = append(x.Args, e)
					break
				}
			}
		}
	}
	if a := n.ChildByFieldName("arguments"); a != nil {
		if a.Type() == "initializer_list" {
			x.Args = append(x.Args, cv.initList(a))
		} else {
			x.Args = append(x.Args, cv.args(a)...)
		}
	}
	return x
}

// initList lowers a braced initializer, recording `.f = v` designators.
func (cv *converter) initList(n *sitter.Node) *ast.InitListExpr {
	list := &ast.InitListExpr{Base: cv.base(n), Elems: []ast.Expr{}, Designators: []string{}}
	for _, ch := range namedChildren(n) {
		name := ""
		value := ch
		if ch.Type() == "initializer_pair" {
			for _, d := range fieldChildren(ch, "designator") {
				if d.Type() == "field_designator" {
					name = strings.TrimPrefix(cv.text(d), ".")
				}
			}
			value = ch.ChildByFieldName("value")
		}
		var x ast.Expr
		if value != nil && value.Type() == "initializer_list" {
			x = cv.initList(value)
		} else {
			x = cv.expr(value)
		}
		if x == nil {
			continue
		}
		list.Elems = append(list.Elems, x)
		list.Designators = append(list.Designators, name)
	}
	return list
}

// lambda lowers a lambda. `this` captures are implicit through the
// enclosing method and are not recorded.
func (cv *converter) lambda(n *sitter.Node) ast.Expr {
	l := &ast.LambdaExpr{Base: cv.base(n)}
	for _, c := range namedChildren(n.ChildByFieldName("captures")) {
		switch c.Type() {
		case "lambda_default_capture":
			l.Captures = append(l.Captures, ast.Capture{ByRef: cv.text(c) == "&"})
		case "identifier":
			l.Captures = append(l.Captures, ast.Capture{Name: cv.text(c)})
		case "pointer_expression", "unary_expression":
			arg := c.ChildByFieldName("argument")
			op := c.ChildByFieldName("operator")
			if arg != nil && arg.Type() == "identifier" {
				l.Captures = append(l.Captures, ast.Capture{Name: cv.text(arg), ByRef: op != nil && cv.text(op) == "&"})
			}
		case "lambda_capture_initializer":
			if name := c.ChildByFieldName("left"); name != nil {
				l.Captures = append(l.Captures, ast.Capture{Name: cv.text(name)})
			}
		}
	}
	if d := n.ChildByFieldName("declarator"); d != nil {
		l.Params, _ = cv.params(d.ChildByFieldName("parameters"))
		for _, ch := range namedChildren(d) {
			if ch.Type() == "trailing_return_type" {
				l.Result = cv.typeRef(lastNamed(ch))
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		l.Body = cv.compound(body)
	}
	return l
}

// typeRef lowers a type specifier or a type descriptor.
func (cv *converter) typeRef(n *sitter.Node) *ast.TypeRef {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "primitive_type", "sized_type_specifier":
		return ast.Named(collapseSpaces(cv.text(n)))
	case "type_identifier", "namespace_identifier", "identifier":
		return ast.Named(cv.text(n))
	case "auto", "placeholder_type_specifier", "decltype":
		return ast.Named("auto")
	case "qualified_identifier", "scoped_type_identifier", "template_type":
		t := ast.Named(cv.path(n)...)
		inner := n
		for inner != nil && inner.Type() != "template_type" {
			inner = inner.ChildByFieldName("name")
		}
		if inner != nil {
			t.Args = cv.templateArgs(inner.ChildByFieldName("arguments"))
		}
		return t
	case "struct_specifier", "class_specifier", "union_specifier", "enum_specifier":
		var t *ast.TypeRef
		if name := n.ChildByFieldName("name"); name != nil {
			t = ast.Named(cv.path(name)...)
		} else {
			t = ast.Named(cv.recordName(n))
		}
		t.Tag = strings.TrimSuffix(n.Type(), "_specifier")
		return t
	case "type_descriptor":
		t := cv.specType(n)
		if d := n.ChildByFieldName("declarator"); d != nil {
			info := cv.declarator(d, t)
			return info.typ
		}
		return t
	case "dependent_type":
		return cv.typeRef(lastNamed(n))
	case "trailing_return_type":
		return cv.typeRef(lastNamed(n))
	}
	return ast.Named(collapseSpaces(cv.text(n)))
}

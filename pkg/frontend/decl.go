package frontend

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-flow-query/pkg/ast"
)

// decls lowers the declarations among the children of a container node
// (translation unit, namespace body, linkage block, preprocessor branch).
func (cv *converter) decls(n *sitter.Node) []ast.Decl {
	var out []ast.Decl
	for _, ch := range namedChildren(n) {
		out = append(out, cv.decl(ch)...)
	}
	return out
}

func (cv *converter) decl(n *sitter.Node) []ast.Decl {
	switch n.Type() {
	case "function_definition":
		if fn := cv.function(n); fn != nil {
			return []ast.Decl{fn}
		}
	case "declaration", "field_declaration":
		return cv.declaration(n)
	case "struct_specifier", "class_specifier", "union_specifier":
		if r := cv.record(n); r != nil {
			return []ast.Decl{r}
		}
	case "enum_specifier":
		if e := cv.enum(n); e != nil {
			return []ast.Decl{e}
		}
	case "type_definition":
		return cv.typedef(n)
	case "alias_declaration":
		return []ast.Decl{cv.alias(n)}
	case "namespace_definition":
		return []ast.Decl{cv.namespace(n)}
	case "namespace_alias_definition":
		if d := cv.namespaceAlias(n); d != nil {
			return []ast.Decl{d}
		}
	case "using_declaration":
		if cv.hasChild(n, "", "namespace") {
			if path := cv.path(lastNamed(n)); len(path) > 0 {
				return []ast.Decl{&ast.UsingNamespaceDecl{Base: cv.base(n), Path: path}}
			}
		}
	case "template_declaration":
		return cv.template(n)
	case "linkage_specification":
		body := n.ChildByFieldName("body")
		if body == nil {
			return nil
		}
		if body.Type() == "declaration_list" {
			return cv.decls(body)
		}
		return cv.decl(body)
	case "declaration_list", "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
		return cv.decls(n)
	}
	return nil
}

func lastNamed(n *sitter.Node) *sitter.Node {
	ch := namedChildren(n)
	if len(ch) == 0 {
		return nil
	}
	return ch[len(ch)-1]
}

// template lowers `template <params> decl`, attaching the parameters to the
// function, record or alias it introduces.
func (cv *converter) template(n *sitter.Node) []ast.Decl {
	params := cv.templateParams(n.ChildByFieldName("parameters"))
	var out []ast.Decl
	for _, ch := range namedChildren(n) {
		if ch.Type() == "template_parameter_list" {
			continue
		}
		for _, d := range cv.decl(ch) {
			switch x := d.(type) {
			case *ast.FunctionDecl:
				x.TemplateParams = params
			case *ast.RecordDecl:
				x.TemplateParams = params
			case *ast.TypedefDecl:
				x.TemplateParams = params
			}
			out = append(out, d)
		}
	}
	return out
}

func (cv *converter) templateParams(n *sitter.Node) []*ast.TemplateParam {
	out := []*ast.TemplateParam{}
	for _, p := range namedChildren(n) {
		tp := &ast.TemplateParam{Base: cv.base(p)}
		switch p.Type() {
		case "type_parameter_declaration", "variadic_type_parameter_declaration":
			if name := lastNamed(p); name != nil {
				tp.Name = cv.text(name)
			}
			tp.Pack = p.Type() == "variadic_type_parameter_declaration"
		case "optional_type_parameter_declaration":
			tp.Name = cv.text(p.ChildByFieldName("name"))
			tp.DefaultType = cv.typeRef(p.ChildByFieldName("default_type"))
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
			d := cv.declarator(p.ChildByFieldName("declarator"), cv.specType(p))
			tp.Kind = ast.TemplateValueParam
			tp.Name = d.name
			tp.ValueType = d.typ
			tp.Pack = p.Type() == "variadic_parameter_declaration"
			if v := p.ChildByFieldName("default_value"); v != nil {
				tp.DefaultValue = cv.expr(v)
			}
		default:
			continue
		}
		out = append(out, tp)
	}
	return out
}

// declInfo is the outcome of walking a declarator.
type declInfo struct {
	name string
	qual []string
	// typ is the declared type, or the result type when fn is set.
	typ *ast.TypeRef
	// fn is the function declarator when the declarator declares a
	// function rather than an object.
	fn *sitter.Node
}

func isDeclaratorName(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "field_identifier", "qualified_identifier", "destructor_name",
		"operator_name", "template_function", "operator_cast":
		return true
	}
	return false
}

// declarator applies the declarator n to the base type t, from the outside
// in, and returns the declared name and type.
func (cv *converter) declarator(n *sitter.Node, t *ast.TypeRef) declInfo {
	if n == nil {
		return declInfo{typ: t}
	}
	switch n.Type() {
	case "identifier", "field_identifier", "type_identifier", "destructor_name",
		"operator_name", "namespace_identifier", "operator_cast":
		return declInfo{name: cv.text(n), typ: t}
	case "template_function":
		return declInfo{name: cv.text(n.ChildByFieldName("name")), typ: t}
	case "qualified_identifier":
		path := cv.path(n)
		if len(path) == 0 {
			return declInfo{typ: t}
		}
		return declInfo{name: path[len(path)-1], qual: path[:len(path)-1], typ: t}
	case "pointer_declarator", "abstract_pointer_declarator":
		p := ast.PointerTo(t)
		if cv.hasChild(n, "const", "type_qualifier") {
			p.Const = true
		}
		return cv.declarator(n.ChildByFieldName("declarator"), p)
	case "reference_declarator", "abstract_reference_declarator":
		var inner *sitter.Node
		for _, ch := range namedChildren(n) {
			if ch.Type() != "type_qualifier" {
				inner = ch
			}
		}
		return cv.declarator(inner, ast.ReferenceTo(t))
	case "array_declarator", "abstract_array_declarator":
		size := -1
		if s := n.ChildByFieldName("size"); s != nil && s.Type() == "number_literal" {
			if v, err := strconv.ParseInt(strings.TrimRight(cv.text(s), "uUlL"), 0, 64); err == nil {
				size = int(v)
			}
		}
		return cv.declarator(n.ChildByFieldName("declarator"), ast.ArrayOf(t, size))
	case "function_declarator", "abstract_function_declarator":
		inner := n.ChildByFieldName("declarator")
		if inner != nil && isDeclaratorName(inner) {
			d := cv.declarator(inner, t)
			d.fn = n
			return d
		}
		params, variadic := cv.params(n.ChildByFieldName("parameters"))
		ft := ast.FuncOf(t)
		for _, p := range params {
			ft.Params = append(ft.Params, p.Type)
		}
		ft.Variadic = variadic
		return cv.declarator(inner, ft)
	case "parenthesized_declarator":
		ch := namedChildren(n)
		if len(ch) == 0 {
			return declInfo{typ: t}
		}
		return cv.declarator(ch[0], t)
	case "init_declarator":
		return cv.declarator(n.ChildByFieldName("declarator"), t)
	}
	return declInfo{typ: t}
}

// params lowers a parameter list. `(void)` is the empty list.
func (cv *converter) params(n *sitter.Node) ([]*ast.ParamDecl, bool) {
	var out []*ast.ParamDecl
	variadic := false
	for i := 0; i < int(n.ChildCount()); i++ {
		p := n.Child(i)
		switch p.Type() {
		case "...", "variadic_parameter":
			variadic = true
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
			d := cv.declarator(p.ChildByFieldName("declarator"), cv.specType(p))
			if d.fn != nil {
				// a parameter of function type adjusts to a pointer
				d.typ = cv.functionType(d)
				d.typ = ast.PointerTo(d.typ)
			}
			pd := &ast.ParamDecl{Base: cv.base(p), Name: d.name, Type: d.typ}
			if v := p.ChildByFieldName("default_value"); v != nil {
				pd.Default = cv.expr(v)
			}
			out = append(out, pd)
		}
	}
	if len(out) == 1 && out[0].Name == "" && out[0].Type != nil &&
		out[0].Type.Kind == ast.TypeNamed && len(out[0].Type.Name) == 1 && out[0].Type.Name[0] == "void" {
		return nil, variadic
	}
	return out, variadic
}

// functionType builds the type of the function a declarator declares.
func (cv *converter) functionType(d declInfo) *ast.TypeRef {
	params, variadic := cv.params(d.fn.ChildByFieldName("parameters"))
	ft := ast.FuncOf(d.typ)
	for _, p := range params {
		ft.Params = append(ft.Params, p.Type)
	}
	ft.Variadic = variadic
	return ft
}

// specType returns the type named by the declaration specifiers of n, with
// a const qualifier applied.
func (cv *converter) specType(n *sitter.Node) *ast.TypeRef {
	t := cv.typeRef(n.ChildByFieldName("type"))
	if t != nil && cv.hasChild(n, "const", "type_qualifier") {
		t = t.WithConst()
	}
	return t
}

func (cv *converter) isStatic(n *sitter.Node) bool {
	return cv.hasChild(n, "static", "storage_class_specifier")
}

func (cv *converter) isVirtual(n *sitter.Node) bool {
	return cv.hasChild(n, "", "virtual", "virtual_function_specifier")
}

// function lowers a function definition.
func (cv *converter) function(n *sitter.Node) *ast.FunctionDecl {
	d := cv.declarator(n.ChildByFieldName("declarator"), cv.specType(n))
	if d.fn == nil {
		return nil
	}
	fn := cv.functionDecl(n, d)
	if body := n.ChildByFieldName("body"); body != nil && body.Type() == "compound_statement" {
		fn.Body = cv.compound(body)
		if init := cv.fieldInitializers(n); len(init) > 0 {
			fn.Body.List = append(init, fn.Body.List...)
		}
	}
	return fn
}

// functionDecl builds the declaration part shared by definitions and
// prototypes.
func (cv *converter) functionDecl(n *sitter.Node, d declInfo) *ast.FunctionDecl {
	fn := &ast.FunctionDecl{
		Base:      cv.base(n),
		Name:      d.name,
		Qualifier: d.qual,
		Result:    d.typ,
		Virtual:   cv.isVirtual(n),
		Static:    cv.isStatic(n),
	}
	fn.Params, fn.Variadic = cv.params(d.fn.ChildByFieldName("parameters"))
	for i := 0; i < int(d.fn.ChildCount()); i++ {
		ch := d.fn.Child(i)
		switch ch.Type() {
		case "type_qualifier":
			if cv.text(ch) == "const" {
				fn.Const = true
			}
		case "virtual_specifier":
			fn.Override = true
		}
	}
	return fn
}

// fieldInitializers lowers a constructor's member initializer list into
// assignments through this.
func (cv *converter) fieldInitializers(n *sitter.Node) []ast.Stmt {
	var list *sitter.Node
	for _, ch := range namedChildren(n) {
		if ch.Type() == "field_initializer_list" {
			list = ch
		}
	}
	if list == nil {
		return nil
	}
	var out []ast.Stmt
	for _, fi := range namedChildren(list) {
		if fi.Type() != "field_initializer" {
			continue
		}
		var name string
		var value ast.Expr
		for _, ch := range namedChildren(fi) {
			switch ch.Type() {
			case "field_identifier":
				name = cv.text(ch)
			case "argument_list":
				args := cv.args(ch)
				if len(args) == 1 {
					value = args[0]
				}
			case "initializer_list":
				value = cv.initList(ch)
			}
		}
		if name == "" || value == nil {
			continue
		}
		out = append(out, &ast.ExprStmt{Base: cv.base(fi), X: &ast.AssignExpr{
			Base: cv.base(fi),
			Op:   "=",
			Lhs:  &ast.MemberExpr{Base: cv.base(fi), X: &ast.ThisExpr{Base: cv.base(fi)}, Name: name, Arrow: true},
			Rhs:  value,
		}})
	}
	return out
}

// declaration lowers a simple declaration: variables, fields, prototypes,
// and any record or enum defined in its type.
func (cv *converter) declaration(n *sitter.Node) []ast.Decl {
	var out []ast.Decl
	typ := n.ChildByFieldName("type")
	if typ != nil && typ.ChildByFieldName("body") != nil {
		switch typ.Type() {
		case "struct_specifier", "class_specifier", "union_specifier":
			if r := cv.record(typ); r != nil {
				out = append(out, r)
			}
		case "enum_specifier":
			if e := cv.enum(typ); e != nil {
				out = append(out, e)
			}
		}
	}
	base := cv.specType(n)
	static := cv.isStatic(n)
	for _, dn := range fieldChildren(n, "declarator") {
		target := dn
		if dn.Type() == "init_declarator" {
			target = dn.ChildByFieldName("declarator")
		}
		d := cv.declarator(target, base)
		if d.fn != nil {
			fn := cv.functionDecl(n, d)
			fn.Base = cv.base(dn)
			out = append(out, fn)
			continue
		}
		if d.name == "" {
			continue
		}
		v := &ast.VarDecl{Base: cv.base(dn), Name: d.name, Type: d.typ, Static: static}
		if dn.Type() == "init_declarator" {
			v.Init = cv.initializer(dn.ChildByFieldName("value"), d.typ)
		} else if val := n.ChildByFieldName("value"); val != nil {
			// condition declarations carry the value beside the declarator
			v.Init = cv.initializer(val, d.typ)
		}
		if dv := n.ChildByFieldName("default_value"); dv != nil && v.Init == nil {
			v.Init = cv.initializer(dv, d.typ)
		}
		out = append(out, v)
	}
	return out
}

// initializer lowers the initializer of a declaration of type t. The
// constructor form `T x(args)` becomes a call to T.
func (cv *converter) initializer(n *sitter.Node, t *ast.TypeRef) ast.Expr {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "argument_list":
		args := cv.args(n)
		if t != nil && t.Kind == ast.TypeNamed && len(t.Name) > 0 {
			fun := cv.ident(n, t.Name)
			return &ast.CallExpr{Base: cv.base(n), Fun: fun, Args: args, TemplateArgs: t.Args, ExplicitTemplate: len(t.Args) > 0}
		}
		if len(args) == 1 {
			return args[0]
		}
		return nil
	case "initializer_list":
		return cv.initList(n)
	}
	return cv.expr(n)
}

// recordName returns the name of a record or enum specifier, synthesizing
// a stable one for anonymous types.
func (cv *converter) recordName(n *sitter.Node) string {
	if name := n.ChildByFieldName("name"); name != nil {
		path := cv.path(name)
		if len(path) > 0 {
			return path[len(path)-1]
		}
		return cv.text(name)
	}
	p := n.StartPoint()
	return fmt.Sprintf("__anon_%d_%d", p.Row+1, p.Column+1)
}

func (cv *converter) record(n *sitter.Node) *ast.RecordDecl {
	tag := strings.TrimSuffix(n.Type(), "_specifier")
	r := &ast.RecordDecl{Base: cv.base(n), Tag: tag, Name: cv.recordName(n)}
	body := n.ChildByFieldName("body")
	if body == nil {
		if n.ChildByFieldName("name") == nil {
			return nil
		}
		r.Forward = true
		return r
	}
	for _, ch := range namedChildren(n) {
		if ch.Type() == "base_class_clause" {
			r.Bases = cv.bases(ch)
		}
	}
	r.Members = []ast.Decl{}
	for _, m := range namedChildren(body) {
		r.Members = append(r.Members, cv.decl(m)...)
	}
	return r
}

func (cv *converter) bases(n *sitter.Node) []ast.BaseSpec {
	var out []ast.BaseSpec
	var access string
	virtual := false
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		switch ch.Type() {
		case "access_specifier", "public", "protected", "private":
			access = cv.text(ch)
		case "virtual":
			virtual = true
		case ",":
			access, virtual = "", false
		default:
			if !ch.IsNamed() {
				continue
			}
			if t := cv.typeRef(ch); t != nil {
				out = append(out, ast.BaseSpec{Type: t, Virtual: virtual, Access: access})
			}
		}
	}
	return out
}

func (cv *converter) enum(n *sitter.Node) *ast.EnumDecl {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	e := &ast.EnumDecl{Base: cv.base(n), Name: cv.recordName(n)}
	for _, en := range namedChildren(body) {
		if en.Type() != "enumerator" {
			continue
		}
		item := &ast.Enumerator{Base: cv.base(en), Name: cv.text(en.ChildByFieldName("name"))}
		if v := en.ChildByFieldName("value"); v != nil {
			item.Value = cv.expr(v)
		}
		e.Enumerators = append(e.Enumerators, item)
	}
	return e
}

func (cv *converter) typedef(n *sitter.Node) []ast.Decl {
	var out []ast.Decl
	typ := n.ChildByFieldName("type")
	if typ != nil && typ.ChildByFieldName("body") != nil {
		switch typ.Type() {
		case "struct_specifier", "class_specifier", "union_specifier":
			if r := cv.record(typ); r != nil {
				out = append(out, r)
			}
		case "enum_specifier":
			if e := cv.enum(typ); e != nil {
				out = append(out, e)
			}
		}
	}
	base := cv.specType(n)
	for _, dn := range fieldChildren(n, "declarator") {
		d := cv.declarator(dn, base)
		if d.name == "" {
			continue
		}
		t := d.typ
		if d.fn != nil {
			t = cv.functionType(d)
		}
		out = append(out, &ast.TypedefDecl{Base: cv.base(dn), Name: d.name, Type: t})
	}
	return out
}

func (cv *converter) alias(n *sitter.Node) ast.Decl {
	return &ast.TypedefDecl{
		Base: cv.base(n),
		Name: cv.text(n.ChildByFieldName("name")),
		Type: cv.typeRef(n.ChildByFieldName("type")),
	}
}

func (cv *converter) namespace(n *sitter.Node) ast.Decl {
	var path []string
	if name := n.ChildByFieldName("name"); name != nil {
		path = cv.path(name)
	}
	body := cv.decls(n.ChildByFieldName("body"))
	if len(path) == 0 {
		return &ast.NamespaceDecl{Base: cv.base(n), Decls: body}
	}
	// namespace a::b { } nests one declaration per component
	inner := &ast.NamespaceDecl{Base: cv.base(n), Name: path[len(path)-1], Decls: body}
	for i := len(path) - 2; i >= 0; i-- {
		inner = &ast.NamespaceDecl{Base: cv.base(n), Name: path[i], Decls: []ast.Decl{inner}}
	}
	return inner
}

func (cv *converter) namespaceAlias(n *sitter.Node) ast.Decl {
	ch := namedChildren(n)
	if len(ch) < 2 {
		return nil
	}
	return &ast.NamespaceAliasDecl{
		Base:   cv.base(n),
		Name:   cv.text(ch[0]),
		Target: cv.path(ch[len(ch)-1]),
	}
}

// path flattens a possibly qualified name into its components. Template
// arguments are dropped; a leading `::` yields an empty first component.
func (cv *converter) path(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "qualified_identifier", "scoped_identifier", "scoped_type_identifier",
		"scoped_namespace_identifier", "qualified_type_identifier", "qualified_field_identifier":
		scope := n.ChildByFieldName("scope")
		var out []string
		if scope == nil {
			out = []string{""}
		} else {
			out = cv.path(scope)
		}
		return append(out, cv.path(n.ChildByFieldName("name"))...)
	case "nested_namespace_specifier":
		var out []string
		for _, ch := range namedChildren(n) {
			out = append(out, cv.path(ch)...)
		}
		return out
	case "template_type", "template_function", "template_method":
		return []string{cv.text(n.ChildByFieldName("name"))}
	case "destructor_name":
		return []string{cv.text(n)}
	}
	return []string{strings.TrimSpace(cv.text(n))}
}

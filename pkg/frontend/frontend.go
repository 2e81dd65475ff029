// Package frontend parses C and C++ sources with tree-sitter and lowers the
// concrete syntax tree into the nodes of pkg/ast. Lowering is best effort:
// constructs the analysis does not model are dropped, and syntax errors are
// tolerated the way tree-sitter tolerates them.
package frontend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/l3aro/go-flow-query/internal/log"
	"github.com/l3aro/go-flow-query/pkg/ast"
)

// Language selects the grammar used for a file.
type Language string

const (
	C   Language = "c"
	CPP Language = "cpp"
)

var extensions = map[string]Language{
	".c":   C,
	".h":   CPP,
	".cc":  CPP,
	".cpp": CPP,
	".cxx": CPP,
	".c++": CPP,
	".hh":  CPP,
	".hpp": CPP,
	".hxx": CPP,
	".inl": CPP,
}

// LanguageOf returns the language of path by extension. Headers are parsed
// as C++, whose grammar accepts C declarations.
func LanguageOf(path string) (Language, bool) {
	l, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// Extensions returns the file extensions the front end accepts.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	return out
}

func grammar(l Language) *sitter.Language {
	if l == C {
		return c.GetLanguage()
	}
	return cpp.GetLanguage()
}

// Parser lowers source files into translation units. It is safe for
// concurrent use; every call gets its own tree-sitter parser.
type Parser struct {
	logger log.Logger
}

// New creates a parser.
func New(logger log.Logger) *Parser {
	if logger == nil {
		logger = log.Default()
	}
	return &Parser{logger: logger}
}

// ParseFile reads and parses the file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ast.TranslationUnit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	lang, ok := LanguageOf(path)
	if !ok {
		lang = CPP
	}
	return p.Parse(ctx, path, lang, content)
}

// Parse lowers src, attributing spans to file.
func (p *Parser) Parse(ctx context.Context, file string, lang Language, src []byte) (*ast.TranslationUnit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar(lang))

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing file %s: %w", file, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parsing file %s failed", file)
	}
	defer tree.Close()

	root := tree.RootNode()
	cv := &converter{src: src, file: file}
	tu := &ast.TranslationUnit{Base: cv.base(root), File: file}
	tu.Decls = cv.decls(root)
	if root.HasError() {
		p.logger.Warn("syntax errors, lowering what parsed", "file", file, "errors", countErrors(root))
	}
	p.logger.Debug("parsed", "file", file, "language", string(lang), "decls", len(tu.Decls))
	return tu, nil
}

func countErrors(n *sitter.Node) int {
	if n == nil || !n.HasError() {
		return 0
	}
	count := 0
	if n.Type() == "ERROR" || n.IsMissing() {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countErrors(n.Child(i))
	}
	return count
}

// converter holds the state of lowering one file.
type converter struct {
	src  []byte
	file string
}

func (cv *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(cv.src)
}

func (cv *converter) span(n *sitter.Node) ast.Span {
	start, end := n.StartPoint(), n.EndPoint()
	return ast.Span{
		File:      cv.file,
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

func (cv *converter) base(n *sitter.Node) ast.Base {
	return ast.Base{Loc: cv.span(n)}
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		if ch == nil || ch.Type() == "comment" {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// fieldChildren returns the children of n attached to field.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

// hasChild reports whether n has a direct child of one of the given types
// whose text, when want is not empty, equals want.
func (cv *converter) hasChild(n *sitter.Node, want string, kinds ...string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		for _, k := range kinds {
			if ch.Type() == k && (want == "" || cv.text(ch) == want) {
				return true
			}
		}
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package treesitter

import (
	"context"

	"github.com/panbanda/refaudit/pkg/ast"
	"github.com/panbanda/refaudit/pkg/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

// Ensure Provider implements ast.Parser.
var _ ast.Parser = (*Provider)(nil)

// Provider implements ast.Parser using the tree-sitter Python grammar.
// It is safe for concurrent use; each Parse call gets its own tree-sitter parser.
type Provider struct{}

// New creates a new tree-sitter based provider.
func New() *Provider {
	return &Provider{}
}

// Parse parses src and converts the tree-sitter tree into an ast.Module.
// Sources containing syntax errors yield a *models.ParseError.
func (p *Provider) Parse(path string, src []byte) (*ast.Module, error) {
	if len(src) == 0 {
		return &ast.Module{Path: path, Root: &ast.Node{Kind: ast.KindModule, StartLine: 1, EndLine: 1}}, nil
	}

	psr := parser.New()
	defer psr.Close()

	result, err := psr.Parse(context.Background(), src, path)
	if err != nil {
		return nil, ast.NewParseError(path, err)
	}
	defer result.Close()

	if err := result.SyntaxError(); err != nil {
		return nil, ast.NewParseError(path, err)
	}

	root := convert(result.Root(), result.Source, "")
	if root == nil {
		root = &ast.Node{Kind: ast.KindModule, StartLine: 1, EndLine: 1}
	}
	return &ast.Module{Path: path, Root: root}, nil
}

// kindByType maps tree-sitter Python node types to ast kinds.
var kindByType = map[string]ast.Kind{
	"module":                 ast.KindModule,
	"class_definition":       ast.KindClass,
	"function_definition":    ast.KindFunction,
	"if_statement":           ast.KindIf,
	"elif_clause":            ast.KindIf,
	"conditional_expression": ast.KindIfExp,
	"for_statement":          ast.KindFor,
	"while_statement":        ast.KindWhile,
	"except_clause":          ast.KindExcept,
	"except_group_clause":    ast.KindExcept,
	"boolean_operator":       ast.KindBoolOp,
	"with_statement":         ast.KindWith,
	"call":                   ast.KindCall,
}

// convert builds the ast subtree for node. parentOp is the operator of the
// enclosing boolean_operator, used to fold chains like a and b and c into one.
func convert(node *sitter.Node, source []byte, parentOp string) *ast.Node {
	nodeType := node.Type()
	kind, ok := kindByType[nodeType]
	if !ok {
		kind = ast.KindOther
	}

	n := &ast.Node{
		Kind:      kind,
		StartLine: parser.StartLine(node),
		EndLine:   parser.EndLine(node),
	}

	op := ""
	switch kind {
	case ast.KindClass, ast.KindFunction:
		n.Name = parser.Text(node.ChildByFieldName("name"), source)
		n.Async = kind == ast.KindFunction && isAsync(node)
	case ast.KindFor, ast.KindWith:
		n.Async = isAsync(node)
	case ast.KindCall:
		n.Name = calleeName(node.ChildByFieldName("function"), source)
	case ast.KindBoolOp:
		if opNode := node.ChildByFieldName("operator"); opNode != nil {
			op = opNode.Type()
		}
		if op != "" && op == parentOp {
			n.Kind = ast.KindOther
		}
	}

	for i := range int(node.NamedChildCount()) {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if c := convert(child, source, op); c != nil {
			n.Children = append(n.Children, c)
		}
	}

	if n.Kind == ast.KindOther && len(n.Children) == 0 {
		return nil
	}
	return n
}

// calleeName returns the bare name of a call target: the identifier for
// f() and the attribute for obj.method().
func calleeName(fn *sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return parser.Text(fn, source)
	case "attribute":
		return parser.Text(fn.ChildByFieldName("attribute"), source)
	default:
		return ""
	}
}

func isAsync(node *sitter.Node) bool {
	if node.ChildCount() == 0 {
		return false
	}
	return node.Child(0).Type() == "async"
}

// Package parser wraps the tree-sitter Python grammar.
package parser

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax is returned when the parsed tree contains syntax errors.
var ErrSyntax = errors.New("source contains syntax errors")

// Parser wraps a tree-sitter parser. A Parser is not safe for concurrent use.
type Parser struct {
	parser *sitter.Parser
}

// Result is a parsed module.
type Result struct {
	Tree   *sitter.Tree
	Source []byte
	Path   string
}

// New creates a parser for Python source.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// Parse parses source. path is only carried into the result.
func (p *Parser) Parse(ctx context.Context, source []byte, path string) (*Result, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return &Result{Tree: tree, Source: source, Path: path}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// Close releases the tree.
func (r *Result) Close() {
	r.Tree.Close()
}

// Root returns the module node.
func (r *Result) Root() *sitter.Node {
	return r.Tree.RootNode()
}

// SyntaxError returns ErrSyntax with the first error position when the tree
// contains ERROR or MISSING nodes.
func (r *Result) SyntaxError() error {
	root := r.Root()
	if !root.HasError() {
		return nil
	}
	var first *sitter.Node
	Walk(root, func(n *sitter.Node) bool {
		if first != nil {
			return false
		}
		if n.IsError() || n.IsMissing() {
			first = n
			return false
		}
		return n.HasError()
	})
	if first == nil {
		return ErrSyntax
	}
	return fmt.Errorf("%w at line %d", ErrSyntax, StartLine(first))
}

// Walk visits node and its descendants depth first. Children of a node are
// skipped when visit returns false for it.
func Walk(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil || !visit(node) {
		return
	}
	for i := range int(node.ChildCount()) {
		Walk(node.Child(i), visit)
	}
}

// Text returns the source text of node, or "" for a nil node or offsets
// outside source.
func Text(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// StartLine returns the 1-based first line of node.
func StartLine(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// EndLine returns the 1-based last line of node. A node ending at column 0
// ends on the previous line.
func EndLine(node *sitter.Node) int {
	end := node.EndPoint()
	line := int(end.Row) + 1
	if end.Column == 0 && line > StartLine(node) {
		line--
	}
	return line
}

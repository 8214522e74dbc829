package ast

import (
	"fmt"
	"os"

	"github.com/panbanda/refaudit/pkg/models"
)

// Kind classifies a syntax tree node.
type Kind string

const (
	KindModule   Kind = "module"
	KindClass    Kind = "class"
	KindFunction Kind = "function"
	KindIf       Kind = "if"     // if and elif branches
	KindIfExp    Kind = "ifexp"  // conditional expression
	KindFor      Kind = "for"
	KindWhile    Kind = "while"
	KindExcept   Kind = "except" // exception handler
	KindBoolOp   Kind = "boolop" // and/or chain
	KindWith     Kind = "with"   // context manager
	KindCall     Kind = "call"
	KindOther    Kind = "other"
)

// Node is one element of a parsed module.
type Node struct {
	Kind Kind
	// Name is the class or function name for definitions and the bare
	// callee name for calls (the attribute for obj.method()). Empty when
	// the callee is not a plain name or attribute.
	Name  string
	Async bool
	// StartLine and EndLine are 1-based. EndLine is 0 when the parser did
	// not report an end position.
	StartLine int
	EndLine   int
	Children  []*Node
}

// Module is a parsed source file.
type Module struct {
	Path string
	Root *Node
}

// Parser produces syntax trees for source files.
// Implementations must return *models.ParseError for sources that cannot
// be parsed.
type Parser interface {
	Parse(path string, src []byte) (*Module, error)
}

// ParseFile reads path and parses it with p.
func ParseFile(p Parser, path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(path, src)
}

// Visitor is called for each node; returning false skips the node's children.
type Visitor func(n *Node) bool

// Walk traverses the tree depth-first in source order.
func Walk(n *Node, visit Visitor) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, child := range n.Children {
		Walk(child, visit)
	}
}

// MaxLine returns the largest line number found in n's subtree.
func MaxLine(n *Node) int {
	maxLine := 0
	Walk(n, func(c *Node) bool {
		if c.StartLine > maxLine {
			maxLine = c.StartLine
		}
		if c.EndLine > maxLine {
			maxLine = c.EndLine
		}
		return true
	})
	return maxLine
}

// End returns the node's reported end line, falling back to the maximum
// position found in its subtree.
func (n *Node) End() int {
	if n.EndLine > 0 {
		return n.EndLine
	}
	if m := MaxLine(n); m > n.StartLine {
		return m
	}
	return n.StartLine
}

// IsDefinition reports whether the node introduces a new scope.
func (n *Node) IsDefinition() bool {
	return n.Kind == KindClass || n.Kind == KindFunction
}

// NewParseError wraps err as a models.ParseError for path.
func NewParseError(path string, err error) error {
	return &models.ParseError{Path: path, Err: err}
}

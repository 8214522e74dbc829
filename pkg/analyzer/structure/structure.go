// Package structure extracts method boundaries from parsed modules.
package structure

import (
	"strings"

	"github.com/panbanda/refaudit/pkg/ast"
	"github.com/panbanda/refaudit/pkg/models"
)

// Extract returns one MethodRange per function or method definition in mod,
// in source order. Methods of nested classes are included with a dotted
// owning class; definitions nested inside functions are not.
func Extract(mod *ast.Module) []models.MethodRange {
	if mod == nil || mod.Root == nil {
		return nil
	}
	var ranges []models.MethodRange
	visit(mod.Root, nil, &ranges)
	return ranges
}

// ExtractFile reads and parses path, then extracts its method ranges.
// A source that cannot be parsed yields a *models.ParseError.
func ExtractFile(p ast.Parser, path string) ([]models.MethodRange, error) {
	mod, err := ast.ParseFile(p, path)
	if err != nil {
		return nil, err
	}
	return Extract(mod), nil
}

func visit(n *ast.Node, classes []string, out *[]models.MethodRange) {
	switch n.Kind {
	case ast.KindFunction:
		*out = append(*out, newRange(n, classes))
		// bodies of functions are implementation detail
		return
	case ast.KindClass:
		classes = append(classes[:len(classes):len(classes)], n.Name)
	}
	for _, child := range n.Children {
		visit(child, classes, out)
	}
}

func newRange(n *ast.Node, classes []string) models.MethodRange {
	owner := strings.Join(classes, ".")
	qualified := n.Name
	if owner != "" {
		qualified = owner + "." + n.Name
	}
	end := n.End()
	if end < n.StartLine {
		end = n.StartLine
	}
	return models.MethodRange{
		QualifiedName: qualified,
		OwningClass:   owner,
		StartLine:     n.StartLine,
		EndLine:       end,
	}
}

// ByClass groups the bare method names of ranges by owning class
// (models.ModuleScope for module-level functions).
func ByClass(ranges []models.MethodRange) map[string][]string {
	groups := make(map[string][]string)
	for _, r := range ranges {
		scope := r.Scope()
		groups[scope] = append(groups[scope], r.Name())
	}
	return groups
}

// Package ast defines the syntax tree capability the audit algorithms run on.
//
// The structure extractor, complexity scorer and test-gap engine never talk
// to a concrete parser. They consume the language-neutral Node tree returned
// by a Parser, so any conformant parser for the managed language can be
// injected. The tree-sitter implementation lives in the treesitter
// subpackage.
//
// Usage:
//
//	p := treesitter.New()
//	mod, err := p.Parse("service.py", src)
//	if err != nil {
//	    return err
//	}
//
//	ast.Walk(mod.Root, func(n *ast.Node) bool {
//	    fmt.Println(n.Kind, n.Name, n.StartLine)
//	    return true
//	})
package ast

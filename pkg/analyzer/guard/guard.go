// Package guard compares original and refactored modules and finds public
// methods that their test module never calls.
package guard

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/panbanda/refaudit/pkg/analyzer/structure"
	"github.com/panbanda/refaudit/pkg/ast"
	"github.com/panbanda/refaudit/pkg/models"
	"go.uber.org/zap"
)

// Diff compares method sets per owning class. Every class present in either
// version gets an entry; classes found in only one version list all of their
// methods as missing or added. A nil original means a new file.
func Diff(original, refactored []models.MethodRange) map[string]models.MethodDiff {
	orig := structure.ByClass(original)
	ref := structure.ByClass(refactored)

	out := make(map[string]models.MethodDiff, len(orig)+len(ref))
	for class := range orig {
		out[class] = models.MethodDiff{
			Missing: difference(orig[class], ref[class]),
			Added:   difference(ref[class], orig[class]),
		}
	}
	for class := range ref {
		if _, ok := out[class]; ok {
			continue
		}
		out[class] = models.MethodDiff{
			Missing: []string{},
			Added:   difference(ref[class], nil),
		}
	}
	return out
}

// difference returns the sorted, deduplicated names of a not in b.
func difference(a, b []string) []string {
	exclude := make(map[string]bool, len(b))
	for _, name := range b {
		exclude[name] = true
	}
	seen := make(map[string]bool, len(a))
	out := []string{}
	for _, name := range a {
		if exclude[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CallTargets collects the bare names used as call targets in mod: f for
// f() and m for obj.m(). A nil module yields an empty set.
func CallTargets(mod *ast.Module) map[string]bool {
	calls := make(map[string]bool)
	if mod == nil {
		return calls
	}
	ast.Walk(mod.Root, func(n *ast.Node) bool {
		if n.Kind == ast.KindCall && n.Name != "" {
			calls[n.Name] = true
		}
		return true
	})
	return calls
}

// MissingTests returns the public methods of refactored whose bare name is
// not in calls, in source order.
func MissingTests(refactored []models.MethodRange, calls map[string]bool) []models.MissingTestEntry {
	out := []models.MissingTestEntry{}
	for _, r := range refactored {
		if !r.IsPublic() || calls[r.Name()] {
			continue
		}
		out = append(out, models.MissingTestEntry{Class: r.Scope(), Method: r.Name()})
	}
	return out
}

// Inputs names the files of one audit pair. OriginalPath and TestPath are
// optional.
type Inputs struct {
	OriginalPath   string
	RefactoredPath string
	TestPath       string
}

// Result is the structural comparison of one file pair.
type Result struct {
	Original   []models.MethodRange
	Refactored []models.MethodRange
	// Module is the parsed refactored source.
	Module       *ast.Module
	MethodDiff   map[string]models.MethodDiff
	MissingTests []models.MissingTestEntry
	// Warnings holds degraded but non-fatal conditions, such as an
	// unparseable test module.
	Warnings []error
}

// Guard runs the diff and test-gap checks for file pairs.
type Guard struct {
	parser ast.Parser
	logger *zap.Logger
}

// New creates a guard that parses sources with p.
func New(p ast.Parser, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{parser: p, logger: logger}
}

// Check parses the pair and its test module and compares them.
//
// A refactored or original source that cannot be parsed fails the check with
// a *models.ParseError. A missing original is a new file. A missing or
// unparseable test module leaves the call set empty, so every public method
// is reported as untested.
func (g *Guard) Check(ctx context.Context, in Inputs) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	refMod, err := ast.ParseFile(g.parser, in.RefactoredPath)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Module:     refMod,
		Refactored: structure.Extract(refMod),
	}

	if in.OriginalPath != "" {
		origMod, err := ast.ParseFile(g.parser, in.OriginalPath)
		switch {
		case err == nil:
			res.Original = structure.Extract(origMod)
		case errors.Is(err, os.ErrNotExist):
			g.logger.Debug("original missing, treating as new file", zap.String("path", in.RefactoredPath))
		default:
			return nil, err
		}
	}

	var calls map[string]bool
	if in.TestPath != "" {
		testMod, err := ast.ParseFile(g.parser, in.TestPath)
		if err != nil {
			g.logger.Warn("test module unusable, reporting all public methods as untested",
				zap.String("path", in.TestPath), zap.Error(err))
			res.Warnings = append(res.Warnings, err)
		} else {
			calls = CallTargets(testMod)
		}
	}

	res.MethodDiff = Diff(res.Original, res.Refactored)
	res.MissingTests = MissingTests(res.Refactored, calls)
	return res, nil
}

// Package complexity assigns cyclomatic-style scores to Python functions.
//
// Each function starts at 1 and gains one point per branching construct in
// its own body: if/elif, conditional expressions, for and while loops,
// exception handlers, boolean operator chains and with blocks. Bodies of
// nested functions are not part of the enclosing score; every nested def is
// reported under its own qualified name.
package complexity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/panbanda/refaudit/pkg/ast"
	"github.com/panbanda/refaudit/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// decisionKinds are the node kinds that add one point each.
var decisionKinds = map[ast.Kind]bool{
	ast.KindIf:     true,
	ast.KindIfExp:  true,
	ast.KindFor:    true,
	ast.KindWhile:  true,
	ast.KindExcept: true,
	ast.KindBoolOp: true,
	ast.KindWith:   true,
}

// Analyze scores every function in mod, including functions nested inside
// other functions. Results are in source order. When a qualified name is
// defined more than once, as with a property getter and its setter, the
// first definition keeps the name and later ones are suffixed with
// "@<start line>", so every definition gets its own entry.
func Analyze(mod *ast.Module) []FunctionResult {
	if mod == nil || mod.Root == nil {
		return nil
	}
	var out []FunctionResult
	collect(mod.Root, nil, false, &out)

	seen := make(map[string]bool, len(out))
	for i := range out {
		name := out[i].Range.QualifiedName
		if seen[name] {
			out[i].Range.QualifiedName = fmt.Sprintf("%s@%d", name, out[i].Range.StartLine)
		}
		seen[name] = true
	}
	return out
}

// Score returns the complexity of every function in mod keyed by qualified name.
func Score(mod *ast.Module) map[string]int {
	results := Analyze(mod)
	scores := make(map[string]int, len(results))
	for _, r := range results {
		scores[r.Name()] = r.Complexity
	}
	return scores
}

// ModuleScore is the aggregate complexity of a module: the sum of its
// function scores plus one unit of module overhead.
func ModuleScore(scores map[string]int) int {
	total := 1
	for _, s := range scores {
		total += s
	}
	return total
}

// collect walks n, which sits inside the classes and functions named by
// scope. inFunction is set below any function definition, where entries
// carry no owning class.
func collect(n *ast.Node, scope []string, inFunction bool, out *[]FunctionResult) {
	for _, child := range n.Children {
		switch child.Kind {
		case ast.KindFunction:
			qualified := append(append([]string{}, scope...), child.Name)
			owner := ""
			if !inFunction {
				owner = strings.Join(scope, ".")
			}
			*out = append(*out, FunctionResult{
				Range: models.MethodRange{
					QualifiedName: strings.Join(qualified, "."),
					OwningClass:   owner,
					StartLine:     child.StartLine,
					EndLine:       child.End(),
				},
				Complexity: 1 + countDecisions(child),
			})
			collect(child, qualified, true, out)
		case ast.KindClass:
			collect(child, append(append([]string{}, scope...), child.Name), inFunction, out)
		default:
			collect(child, scope, inFunction, out)
		}
	}
}

// countDecisions counts branching constructs in fn's body, stopping at
// nested function definitions.
func countDecisions(fn *ast.Node) int {
	count := 0
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		for _, child := range n.Children {
			if child.Kind == ast.KindFunction {
				continue
			}
			if decisionKinds[child.Kind] {
				count++
			}
			walk(child)
		}
	}
	walk(fn)
	return count
}

// Summarize computes aggregate statistics for a set of scores.
func Summarize(scores map[string]int) Summary {
	s := Summary{TotalFunctions: len(scores)}
	if len(scores) == 0 {
		return s
	}

	values := make([]float64, 0, len(scores))
	for _, v := range scores {
		values = append(values, float64(v))
		s.Total += v
		if v > s.Max {
			s.Max = v
		}
	}
	sort.Float64s(values)

	s.Mean = stat.Mean(values, nil)
	s.P50 = stat.Quantile(0.5, stat.Empirical, values, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, values, nil)
	return s
}

// ExceedsThreshold returns the functions whose score is above threshold,
// highest first. A zero threshold disables that level.
func ExceedsThreshold(scores map[string]int, t Thresholds) []Violation {
	var out []Violation
	for name, v := range scores {
		sev := t.Classify(v)
		if sev == SeverityOK {
			continue
		}
		limit := t.Warn
		if sev == SeverityError {
			limit = t.Error
		}
		out = append(out, Violation{
			Function:   name,
			Complexity: v,
			Threshold:  limit,
			Severity:   sev,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Complexity != out[j].Complexity {
			return out[i].Complexity > out[j].Complexity
		}
		return out[i].Function < out[j].Function
	})
	return out
}

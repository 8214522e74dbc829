package audit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/panbanda/refaudit/internal/output"
	"github.com/panbanda/refaudit/pkg/analyzer/complexity"
	"github.com/panbanda/refaudit/pkg/analyzer/coverage"
	"github.com/panbanda/refaudit/pkg/models"
)

// RenderOptions selects the sections of a rendered report.
type RenderOptions struct {
	// MissingTests includes the missing-tests table.
	MissingTests bool
	// Complexity includes the complexity table.
	Complexity bool
	Thresholds complexity.Thresholds
	// Top limits the complexity table to the highest rows; 0 shows all.
	Top int
}

// Render builds the human-readable report of a run. The report's data is
// the ledger itself, so JSON, TOON and YAML output carry exactly the
// ledger the run produced.
func Render(res *Result, opts RenderOptions) *output.Report {
	report := &output.Report{
		Title: "Refactor Audit",
		Data:  res.Ledger,
	}
	report.Sections = append(report.Sections, summarySection(res))

	if t := methodDiffTable(res.Ledger); t != nil {
		report.Sections = append(report.Sections, t)
	}
	if opts.MissingTests {
		if t := missingTestsTable(res.Ledger); t != nil {
			report.Sections = append(report.Sections, t)
		}
	}
	if opts.Complexity {
		if t := complexityTable(res.Ledger, opts); t != nil {
			report.Sections = append(report.Sections, t)
		}
	}
	if t := qualityTable(res.Summary); t != nil {
		report.Sections = append(report.Sections, t)
	}
	if len(res.Warnings) > 0 {
		lines := make([]string, len(res.Warnings))
		for i, w := range res.Warnings {
			lines[i] = "- " + w.String()
		}
		report.Sections = append(report.Sections, &output.Section{
			Title:   "Warnings",
			Content: strings.Join(lines, "\n"),
		})
	}
	return report
}

func summarySection(res *Result) *output.Section {
	s := res.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", res.Mode)
	fmt.Fprintf(&b, "Files audited: %d", s.Files)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, " (%d skipped)", s.Skipped)
	}
	b.WriteString("\n")
	if carried := len(res.Ledger) - len(res.Fresh); carried > 0 {
		fmt.Fprintf(&b, "Carried from prior ledger: %d\n", carried)
	}
	fmt.Fprintf(&b, "Methods missing: %d, added: %d\n", s.MethodsMissing, s.MethodsAdded)
	fmt.Fprintf(&b, "Untested public methods: %d\n", s.MissingTests)
	if s.Complexity.TotalFunctions > 0 {
		fmt.Fprintf(&b, "Functions: %d, mean complexity %.1f, p90 %.0f, max %d\n",
			s.Complexity.TotalFunctions, s.Complexity.Mean, s.Complexity.P90, s.Complexity.Max)
		fmt.Fprintf(&b, "Over threshold: %d, coverage unknown: %d", len(s.Violations), s.UnknownCover)
	}
	return &output.Section{
		Title:   "Summary",
		Content: strings.TrimRight(b.String(), "\n"),
		Data:    s,
	}
}

func methodDiffTable(l models.AuditLedger) *output.Table {
	var rows [][]string
	for _, path := range l.Paths() {
		rec := l[path]
		classes := make([]string, 0, len(rec.MethodDiff))
		for class := range rec.MethodDiff {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		for _, class := range classes {
			d := rec.MethodDiff[class]
			if d.Empty() {
				continue
			}
			rows = append(rows, []string{
				path,
				class,
				strings.Join(d.Missing, ", "),
				strings.Join(d.Added, ", "),
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return output.NewTable("Method Changes", []string{"File", "Scope", "Missing", "Added"}, rows, nil, nil)
}

func missingTestsTable(l models.AuditLedger) *output.Table {
	var rows [][]string
	for _, path := range l.Paths() {
		for _, m := range l[path].MissingTests {
			rows = append(rows, []string{path, m.Class, m.Method})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	footer := []string{"", "Total", strconv.Itoa(len(rows))}
	return output.NewTable("Missing Tests", []string{"File", "Class", "Method"}, rows, footer, nil)
}

type complexityRow struct {
	path  string
	name  string
	entry models.ComplexityEntry
}

func complexityTable(l models.AuditLedger, opts RenderOptions) *output.Table {
	var rows []complexityRow
	for _, path := range l.Paths() {
		for name, e := range l[path].Complexity {
			rows = append(rows, complexityRow{path: path, name: name, entry: e})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.Complexity != rows[j].entry.Complexity {
			return rows[i].entry.Complexity > rows[j].entry.Complexity
		}
		if rows[i].path != rows[j].path {
			return rows[i].path < rows[j].path
		}
		return rows[i].name < rows[j].name
	})
	if opts.Top > 0 && len(rows) > opts.Top {
		rows = rows[:opts.Top]
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		cov := models.CoverageUnknown
		risk := "-"
		if r.entry.Coverage.Known {
			cov = fmt.Sprintf("%.0f%%", r.entry.Coverage.Ratio*100)
		}
		if score, ok := coverage.RiskScore(r.entry.Complexity, r.entry.Coverage); ok {
			risk = fmt.Sprintf("%.1f", score)
		}
		sev := opts.Thresholds.Classify(r.entry.Complexity)
		cells[i] = []string{
			r.path,
			r.name,
			output.SeverityColor(severityLevel(sev), strconv.Itoa(r.entry.Complexity)),
			cov,
			risk,
			string(sev),
		}
	}
	return output.NewTable("Complexity", []string{"File", "Function", "Complexity", "Coverage", "Risk", "Severity"}, cells, nil, nil)
}

func severityLevel(s complexity.Severity) string {
	switch s {
	case complexity.SeverityError:
		return "high"
	case complexity.SeverityWarning:
		return "medium"
	default:
		return "low"
	}
}

func qualityTable(s Summary) *output.Table {
	if len(s.QualityIssues) == 0 {
		return nil
	}
	plugins := make([]string, 0, len(s.QualityIssues))
	for p := range s.QualityIssues {
		plugins = append(plugins, p)
	}
	sort.Strings(plugins)
	rows := make([][]string, len(plugins))
	for i, p := range plugins {
		rows[i] = []string{p, strconv.Itoa(s.QualityIssues[p])}
	}
	return output.NewTable("Quality", []string{"Plugin", "Findings"}, rows, nil, s.QualityIssues)
}

// Package quality runs external Python quality tools and folds their
// reports into a ledger keyed by normalized path.
//
// Each Plugin owns one tool: how to invoke it, where its report lives, and
// how to read the report back. The Driver runs a plugin only when its
// report is missing or empty, then always parses it, so merging is
// self-healing on first use and idempotent afterwards.
package quality

import (
	"context"
)

// RunResult describes what a plugin's Run did.
type RunResult struct {
	// Ran is true when this run wrote the report; such reports are removed
	// by Driver.Cleanup.
	Ran      bool
	ExitCode int
}

// Plugin is one quality check.
type Plugin interface {
	Name() string
	// ReportPath is the absolute location of the plugin's report.
	ReportPath() string
	// Run invokes the tool and writes its report.
	Run(ctx context.Context) (RunResult, error)
	// Parse reads the report and adds its findings to l.
	Parse(l *Ledger) error
}

// Issue is one finding of a line-oriented checker.
type Issue struct {
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
}

// IssueList is the payload of lint, type and docstring checkers.
type IssueList struct {
	Issues []Issue `json:"issues"`
}

// FormatFinding is the payload of the formatter check.
type FormatFinding struct {
	WouldReformat bool   `json:"would_reformat"`
	Error         string `json:"error,omitempty"`
}

// CoverageFinding is the file-level payload of the coverage plugin.
type CoverageFinding struct {
	Percent       float64 `json:"percent"`
	CoveredLines  int     `json:"covered_lines"`
	NumStatements int     `json:"num_statements"`
}

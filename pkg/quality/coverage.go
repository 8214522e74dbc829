package quality

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/panbanda/refaudit/internal/execshell"
	"github.com/panbanda/refaudit/pkg/analyzer/coverage"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
)

// coveragePlugin exports coverage.py data and records file-level coverage.
type coveragePlugin struct {
	report  string
	dir     string
	command []string
	runner  execshell.Runner
}

func (c *coveragePlugin) Name() string       { return "coverage" }
func (c *coveragePlugin) ReportPath() string { return c.report }

// Run exports the collected coverage data. The command writes the report
// itself, so Ran is set only when the report exists afterwards.
func (c *coveragePlugin) Run(ctx context.Context) (RunResult, error) {
	if err := os.MkdirAll(filepath.Dir(c.report), 0o755); err != nil {
		return RunResult{}, &models.ToolExecutionError{Tool: c.Name(), ExitCode: -1, Err: err}
	}

	args := make([]string, 0, len(c.command)-1)
	for _, a := range c.command[1:] {
		args = append(args, strings.ReplaceAll(a, "{report}", c.report))
	}
	res, err := c.runner.Run(ctx, execshell.Command{Name: c.command[0], Args: args, Dir: c.dir})
	if err != nil {
		return RunResult{}, &models.ToolExecutionError{Tool: c.Name(), ExitCode: -1, Stderr: res.Stderr, Err: err}
	}

	_, statErr := os.Stat(c.report)
	result := RunResult{Ran: statErr == nil, ExitCode: res.ExitCode}
	if res.ExitCode != 0 {
		return result, &models.ToolExecutionError{
			Tool:     c.Name(),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      fmt.Errorf("unexpected exit status %d: %s", res.ExitCode, strings.TrimSpace(res.Stdout+res.Stderr)),
		}
	}
	return result, nil
}

// Parse loads the report and records percent, covered lines and statement
// count for each file.
func (c *coveragePlugin) Parse(l *Ledger) error {
	report, err := coverage.Load(c.report)
	if err != nil {
		return err
	}
	for _, p := range report.Paths() {
		fc := report.Files[p]
		l.Set(c.Name(), ledgerPath(report, p, l.Normalizer()), CoverageFinding{
			Percent:       fc.Percent(),
			CoveredLines:  fc.CoveredLines,
			NumStatements: fc.NumStatements,
		})
	}
	return nil
}

// ledgerPath places a relative report entry under the first source root
// that lies inside the repository, so XML reports written from another
// working directory still key by repository-relative path.
func ledgerPath(report *coverage.Report, p string, norm *pathnorm.Normalizer) string {
	if path.IsAbs(p) {
		return p
	}
	for _, src := range report.Sources {
		joined := path.Join(pathnorm.ToSlash(src), p)
		if norm.Inside(joined) {
			return joined
		}
	}
	return p
}

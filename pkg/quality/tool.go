package quality

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/panbanda/refaudit/internal/execshell"
	"github.com/panbanda/refaudit/pkg/models"
)

// lineParser handles one report line. It returns false for lines that do
// not match the tool's format.
type lineParser func(l *Ledger, plugin string, lines *lineScanner) bool

// textTool is a plugin whose report is the captured console output of a
// line-oriented tool.
type textTool struct {
	name    string
	report  string
	dir     string
	command []string
	runner  execshell.Runner
	// okCodes are exit codes meaning the tool ran normally, findings or not.
	okCodes map[int]bool
	// stderr is included in the report; black writes its findings there.
	stderr bool
	parse  lineParser
}

func (t *textTool) Name() string       { return t.name }
func (t *textTool) ReportPath() string { return t.report }

// Run invokes the tool and writes its output to the report. Exit codes
// outside okCodes yield a *models.ToolExecutionError, but the output is
// still written so it can be parsed best effort.
func (t *textTool) Run(ctx context.Context) (RunResult, error) {
	cmd := execshell.Command{Name: t.command[0], Args: t.command[1:], Dir: t.dir}
	res, err := t.runner.Run(ctx, cmd)
	if err != nil {
		return RunResult{}, &models.ToolExecutionError{Tool: t.name, ExitCode: -1, Stderr: res.Stderr, Err: err}
	}

	var out bytes.Buffer
	out.WriteString(res.Stdout)
	if t.stderr {
		if out.Len() > 0 && !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
			out.WriteByte('\n')
		}
		out.WriteString(res.Stderr)
	}
	if err := writeReport(t.report, out.Bytes()); err != nil {
		return RunResult{ExitCode: res.ExitCode}, &models.ToolExecutionError{Tool: t.name, ExitCode: res.ExitCode, Err: err}
	}

	result := RunResult{Ran: true, ExitCode: res.ExitCode}
	if !t.okCodes[res.ExitCode] {
		return result, &models.ToolExecutionError{
			Tool:     t.name,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      fmt.Errorf("unexpected exit status %d", res.ExitCode),
		}
	}
	return result, nil
}

// Parse reads the report line by line. Lines the tool's parser rejects are
// kept as unparsed.
func (t *textTool) Parse(l *Ledger) error {
	data, err := os.ReadFile(t.report)
	if err != nil {
		return &models.ReportFormatError{Report: t.report, Err: err}
	}

	lines := newLineScanner(data)
	for lines.Next() {
		line := lines.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !t.parse(l, t.name, lines) {
			l.AddUnparsed(t.name, line)
		}
	}
	if err := lines.Err(); err != nil {
		return &models.ReportFormatError{Report: t.report, Err: err}
	}
	return nil
}

func writeReport(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// lineScanner is a bufio.Scanner with one line of lookahead, for formats
// that spread a finding over two lines.
type lineScanner struct {
	sc      *bufio.Scanner
	cur     string
	next    string
	hasNext bool
}

func newLineScanner(data []byte) *lineScanner {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	s := &lineScanner{sc: sc}
	s.hasNext = sc.Scan()
	if s.hasNext {
		s.next = strings.TrimRight(sc.Text(), "\r")
	}
	return s
}

// Next advances to the next line.
func (s *lineScanner) Next() bool {
	if !s.hasNext {
		return false
	}
	s.cur = s.next
	s.hasNext = s.sc.Scan()
	if s.hasNext {
		s.next = strings.TrimRight(s.sc.Text(), "\r")
	} else {
		s.next = ""
	}
	return true
}

// Text returns the current line.
func (s *lineScanner) Text() string { return s.cur }

// Peek returns the following line without consuming it.
func (s *lineScanner) Peek() (string, bool) { return s.next, s.hasNext }

// Skip consumes the following line.
func (s *lineScanner) Skip() { s.Next() }

func (s *lineScanner) Err() error { return s.sc.Err() }

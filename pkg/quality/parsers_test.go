package quality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	n, err := pathnorm.New(t.TempDir())
	require.NoError(t, err)
	return NewLedger(n)
}

// parseReport writes content as the plugin's report and parses it.
func parseReport(t *testing.T, name string, content string) *Ledger {
	t.Helper()
	l := newTestLedger(t)
	report := filepath.Join(t.TempDir(), name+".txt")
	require.NoError(t, os.WriteFile(report, []byte(content), 0644))

	tool := &textTool{name: name, report: report, parse: parsers[name]}
	require.NoError(t, tool.Parse(l))
	return l
}

func TestParseBlack(t *testing.T) {
	l := parseReport(t, "black", `would reformat ./pkg/mod.py
would reformat pkg\other.py
error: cannot format pkg/broken.py: Cannot parse: 3:4: def (
Oh no! 💥 💔 💥
2 files would be reformatted, 3 files would be left unchanged, 1 file would fail to reformat.
something unexpected
`)

	f := l.Findings()
	assert.Equal(t, FormatFinding{WouldReformat: true}, f["pkg/mod.py"]["black"])
	assert.Equal(t, FormatFinding{WouldReformat: true}, f["pkg/other.py"]["black"])
	assert.Equal(t, FormatFinding{Error: "Cannot parse: 3:4: def ("}, f["pkg/broken.py"]["black"])
	assert.Equal(t, map[string][]string{"black": {"something unexpected"}}, l.Unparsed())
}

func TestParseFlake8(t *testing.T) {
	l := parseReport(t, "flake8", `./pkg/mod.py:3:1: E302 expected 2 blank lines, found 1
./pkg/mod.py:10:80: E501 line too long (88 > 79 characters)
pkg/other.py:1:1: F401 'os' imported but unused
not a flake8 line
`)

	f := l.Findings()
	require.Contains(t, f, "pkg/mod.py")
	assert.Equal(t, IssueList{Issues: []Issue{
		{Line: 3, Column: 1, Code: "E302", Message: "expected 2 blank lines, found 1"},
		{Line: 10, Column: 80, Code: "E501", Message: "line too long (88 > 79 characters)"},
	}}, f["pkg/mod.py"]["flake8"])
	assert.Len(t, f["pkg/other.py"]["flake8"].(IssueList).Issues, 1)
	assert.Equal(t, []string{"not a flake8 line"}, l.Unparsed()["flake8"])

	// unparsed lines are exposed under the reserved key
	assert.Equal(t, map[string]any{"unparsed": []string{"not a flake8 line"}}, f[models.UnparsedKey]["flake8"])
}

func TestParseMypy(t *testing.T) {
	l := parseReport(t, "mypy", `pkg/mod.py:12: error: Incompatible return value type (got "int", expected "str")  [return-value]
pkg/mod.py:20:5: note: Revealed type is "builtins.int"
Found 1 error in 1 file (checked 4 source files)
`)

	issues := l.Findings()["pkg/mod.py"]["mypy"].(IssueList).Issues
	require.Len(t, issues, 2)
	assert.Equal(t, Issue{
		Line:     12,
		Severity: "error",
		Code:     "return-value",
		Message:  `Incompatible return value type (got "int", expected "str")`,
	}, issues[0])
	assert.Equal(t, Issue{Line: 20, Column: 5, Severity: "note", Message: `Revealed type is "builtins.int"`}, issues[1])
	assert.Empty(t, l.Unparsed())
}

func TestParsePydocstyle(t *testing.T) {
	l := parseReport(t, "pydocstyle", `pkg/mod.py:1: D100: Missing docstring in public module
pkg/mod.py:8 in public method `+"`run`"+`:
        D102: Missing docstring in public method
pkg/mod.py:9 in public function `+"`x`"+`:
stray line
`)

	issues := l.Findings()["pkg/mod.py"]["pydocstyle"].(IssueList).Issues
	require.Len(t, issues, 2)
	assert.Equal(t, Issue{Line: 1, Code: "D100", Message: "Missing docstring in public module"}, issues[0])
	assert.Equal(t, 8, issues[1].Line)
	assert.Equal(t, "D102", issues[1].Code)
	assert.Contains(t, issues[1].Message, "in public method `run`")
	assert.Equal(t, []string{"pkg/mod.py:9 in public function `x`:", "stray line"}, l.Unparsed()["pydocstyle"])
}

func TestTextToolParse_MissingReport(t *testing.T) {
	tool := &textTool{name: "flake8", report: filepath.Join(t.TempDir(), "absent.txt"), parse: parseFlake8}
	err := tool.Parse(newTestLedger(t))

	var rfe *models.ReportFormatError
	assert.ErrorAs(t, err, &rfe)
}

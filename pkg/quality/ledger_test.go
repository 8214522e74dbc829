package quality

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/panbanda/refaudit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_NormalizesKeys(t *testing.T) {
	l := newTestLedger(t)
	root := l.Normalizer().Root()

	l.AddIssue("flake8", "./pkg/mod.py", Issue{Line: 1})
	l.AddIssue("flake8", filepath.Join(root, "pkg", "mod.py"), Issue{Line: 2})
	l.Set("black", `pkg\mod.py`, FormatFinding{WouldReformat: true})

	assert.Equal(t, []string{"pkg/mod.py"}, l.Paths())
	f := l.Findings()["pkg/mod.py"]
	assert.Len(t, f["flake8"].(IssueList).Issues, 2)
	assert.Equal(t, FormatFinding{WouldReformat: true}, f["black"])
}

func TestLedger_Clear(t *testing.T) {
	l := newTestLedger(t)
	l.AddIssue("flake8", "a.py", Issue{Line: 1})
	l.Set("black", "a.py", FormatFinding{WouldReformat: true})
	l.AddIssue("flake8", "b.py", Issue{Line: 1})
	l.AddUnparsed("flake8", "junk")

	l.Clear("flake8")

	assert.Equal(t, []string{"a.py"}, l.Paths())
	assert.Empty(t, l.Unparsed())
	assert.NotContains(t, l.Findings(), models.UnparsedKey)
}

func TestLedger_FindingsAreCopies(t *testing.T) {
	l := newTestLedger(t)
	l.AddIssue("flake8", "a.py", Issue{Line: 1})

	snapshot := l.Findings()
	l.AddIssue("flake8", "a.py", Issue{Line: 2})

	assert.Len(t, snapshot["a.py"]["flake8"].(IssueList).Issues, 1)
}

func TestLedger_Concurrent(t *testing.T) {
	l := newTestLedger(t)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.AddIssue("flake8", "a.py", Issue{Line: i})
		}(i)
	}
	wg.Wait()
	assert.Len(t, l.Findings()["a.py"]["flake8"].(IssueList).Issues, 50)
}

func TestLedger_AuditLedger(t *testing.T) {
	l := newTestLedger(t)
	l.Set("coverage", "a.py", CoverageFinding{Percent: 50, CoveredLines: 1, NumStatements: 2})
	l.AddUnparsed("mypy", "odd")

	audit := l.Ledger()
	require.Contains(t, audit, "a.py")
	assert.Equal(t, CoverageFinding{Percent: 50, CoveredLines: 1, NumStatements: 2}, audit["a.py"].Quality["coverage"])
	assert.Empty(t, audit["a.py"].MethodDiff)
	require.Contains(t, audit, models.UnparsedKey)
}

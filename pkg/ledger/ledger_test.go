package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/panbanda/refaudit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLedger() models.AuditLedger {
	rec := models.NewFileAuditRecord()
	rec.MethodDiff["Service"] = models.MethodDiff{Missing: []string{"legacy"}, Added: []string{}}
	rec.MissingTests = []models.MissingTestEntry{{Class: "Service", Method: "run"}}
	rec.Complexity["Service.run"] = models.ComplexityEntry{Complexity: 3, Coverage: models.NewCoverageStat(2, 4)}
	rec.Complexity["helper"] = models.ComplexityEntry{Complexity: 1, Coverage: models.UnknownCoverage(5)}
	rec.Quality["black"] = map[string]any{"would_reformat": true}
	return models.AuditLedger{"pkg/service.py": rec}
}

func TestLoad_Missing(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, l)
	assert.NotNil(t, l)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit_ledger.json")

	written, err := Save(path, sampleLedger())
	require.NoError(t, err)
	assert.True(t, written)

	l, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, l, "pkg/service.py")
	rec := l["pkg/service.py"]
	assert.Equal(t, []string{"legacy"}, rec.MethodDiff["Service"].Missing)
	assert.Equal(t, []string{}, rec.MethodDiff["Service"].Added)
	assert.Equal(t, []models.MissingTestEntry{{Class: "Service", Method: "run"}}, rec.MissingTests)

	run := rec.Complexity["Service.run"]
	assert.True(t, run.Coverage.Known)
	assert.InDelta(t, 0.5, run.Coverage.Ratio, 1e-9)
	assert.Equal(t, 2, run.Coverage.HitLines)
	assert.False(t, rec.Complexity["helper"].Coverage.Known)
	assert.Equal(t, true, rec.Quality["black"].(map[string]any)["would_reformat"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSave_SkipsIdenticalContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_ledger.json")
	_, err := Save(path, sampleLedger())
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	written, err := Save(path, sampleLedger())
	require.NoError(t, err)
	assert.False(t, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))

	changed := sampleLedger()
	changed["other.py"] = models.NewFileAuditRecord()
	written, err = Save(path, changed)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestLoad_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{"a.py": `},
		{"not an object", `[1, 2]`},
		{"missing sub-ledger", `{"a.py": {"method_diff": {}, "missing_tests": [], "complexity": {}}}`},
		{"bad coverage", `{"a.py": {"method_diff": {}, "missing_tests": [], "quality": {},
			"complexity": {"f": {"complexity": 1, "coverage": "half"}}}}`},
		{"ratio out of range", `{"a.py": {"method_diff": {}, "missing_tests": [], "quality": {},
			"complexity": {"f": {"complexity": 1, "coverage": 1.5, "hits": 1, "lines": 1}}}}`},
		{"null diff", `{"a.py": {"method_diff": {"C": {"missing": null, "added": []}},
			"missing_tests": [], "complexity": {}, "quality": {}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o644))
	l, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, l)
}

func TestUnion_FreshWins(t *testing.T) {
	prior := models.AuditLedger{
		"a.py": models.NewFileAuditRecord(),
		"b.py": models.NewFileAuditRecord(),
	}
	prior["a.py"].MissingTests = []models.MissingTestEntry{{Class: "<module>", Method: "old"}}

	fresh := models.AuditLedger{
		"a.py": models.NewFileAuditRecord(),
		"c.py": models.NewFileAuditRecord(),
	}

	out := Union(prior, fresh)
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, out.Paths())
	assert.Same(t, fresh["a.py"], out["a.py"])
	assert.Same(t, prior["b.py"], out["b.py"])

	// inputs are not modified
	assert.Len(t, prior, 2)
	assert.Len(t, fresh, 2)
}

package coverage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<?xml version="1.0" ?>
<coverage version="7.4.0" line-rate="0.5">
	<sources>
		<source>/ci/build/src</source>
	</sources>
	<packages>
		<package name="pkg">
			<classes>
				<class name="mod.py" filename="pkg/mod.py">
					<methods/>
					<lines>
						<line number="1" hits="1"/>
						<line number="2" hits="0"/>
						<line number="3" hits="4"/>
					</lines>
				</class>
				<class name="mod.py" filename="pkg/mod.py">
					<lines>
						<line number="7" hits="1"/>
					</lines>
				</class>
			</classes>
		</package>
	</packages>
</coverage>
`

func newNormalizer(t *testing.T) *pathnorm.Normalizer {
	t.Helper()
	n, err := pathnorm.New(t.TempDir())
	require.NoError(t, err)
	return n
}

func bitmap(lines ...uint32) *roaring.Bitmap {
	return roaring.BitmapOf(lines...)
}

func reportWith(paths ...string) *Report {
	r := NewReport(FormatXML)
	for _, p := range paths {
		fc := r.file(p)
		fc.HasLineData = true
	}
	return r
}

func TestParseXML(t *testing.T) {
	report, err := ParseXML(strings.NewReader(sampleXML))
	require.NoError(t, err)

	assert.Equal(t, FormatXML, report.Format)
	assert.Equal(t, []string{"/ci/build/src"}, report.Sources)
	require.Contains(t, report.Files, "pkg/mod.py")

	fc := report.Files["pkg/mod.py"]
	assert.True(t, fc.HasLineData)
	assert.Equal(t, []uint32{1, 3, 7}, fc.Hits.ToArray())
	assert.Equal(t, []uint32{1, 2, 3, 7}, fc.Measured.ToArray())
	assert.Equal(t, 3, fc.CoveredLines)
	assert.Equal(t, 4, fc.NumStatements)
	assert.InDelta(t, 75.0, fc.Percent(), 1e-9)
}

func TestParseXML_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unclosed tag", `<coverage><packages><class filename="a.py"><lines><line number="1" hits="1"/>`},
		{"wrong root", `<report/>`},
		{"empty", ``},
		{"bad hits", `<coverage><class filename="a.py"><line number="1" hits="x"/></class></coverage>`},
		{"missing filename", `<coverage><class><line number="1" hits="1"/></class></coverage>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseXML(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseJSON(t *testing.T) {
	doc := `{
		"meta": {"version": "7.4.0"},
		"files": {
			"pkg/lines.py": {
				"executed_lines": [1, 2, 5],
				"missing_lines": [3],
				"summary": {"covered_lines": 3, "num_statements": 4}
			},
			"pkg/summary.py": {
				"summary": {"covered_lines": 8, "num_statements": 10}
			}
		}
	}`
	report, err := ParseJSON(strings.NewReader(doc))
	require.NoError(t, err)

	lines := report.Files["pkg/lines.py"]
	require.NotNil(t, lines)
	assert.True(t, lines.HasLineData)
	assert.Equal(t, []uint32{1, 2, 5}, lines.Hits.ToArray())
	assert.Equal(t, []uint32{1, 2, 3, 5}, lines.Measured.ToArray())

	summary := report.Files["pkg/summary.py"]
	require.NotNil(t, summary)
	assert.False(t, summary.HasLineData)
	assert.Equal(t, 8, summary.CoveredLines)
	assert.Equal(t, 10, summary.NumStatements)
	assert.InDelta(t, 80.0, summary.Percent(), 1e-9)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := ParseJSON(strings.NewReader(`{"files": {`))
	assert.Error(t, err)

	_, err = ParseJSON(strings.NewReader(`{"totals": {}}`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	xmlPath := filepath.Join(dir, "coverage.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(sampleXML), 0644))
	report, err := Load(xmlPath)
	require.NoError(t, err)
	assert.Equal(t, FormatXML, report.Format)

	sniffed := filepath.Join(dir, "report.dat")
	require.NoError(t, os.WriteFile(sniffed, []byte(`  {"files": {}}`), 0644))
	report, err = Load(sniffed)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, report.Format)

	broken := filepath.Join(dir, "broken.xml")
	require.NoError(t, os.WriteFile(broken, []byte(`<coverage><class filename="a.py">`), 0644))
	_, err = Load(broken)
	var rfe *models.ReportFormatError
	require.True(t, errors.As(err, &rfe))
	assert.Equal(t, broken, rfe.Report)

	_, err = Load(filepath.Join(dir, "missing.xml"))
	assert.True(t, errors.As(err, &rfe))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatXML, DetectFormat("c.XML", nil))
	assert.Equal(t, FormatJSON, DetectFormat("c.json", nil))
	assert.Equal(t, FormatXML, DetectFormat("c", []byte("\n<coverage/>")))
	assert.Equal(t, Format(""), DetectFormat("c", []byte("garbage")))
	assert.Equal(t, Format(""), DetectFormat("c", nil))
}

func TestResolve(t *testing.T) {
	n := newNormalizer(t)

	t.Run("exact", func(t *testing.T) {
		res := Resolve(reportWith("pkg/mod.py", "other/mod.py"), "pkg/mod.py", n)
		assert.Equal(t, ConfidenceExact, res.Confidence)
		assert.Equal(t, "pkg/mod.py", res.Path)
		assert.NoError(t, res.Err())
	})

	t.Run("exact through absolute root", func(t *testing.T) {
		res := Resolve(reportWith("pkg/mod.py"), filepath.Join(n.Root(), "pkg", "mod.py"), n)
		assert.Equal(t, ConfidenceExact, res.Confidence)
	})

	t.Run("longest suffix", func(t *testing.T) {
		res := Resolve(reportWith("/ci/build/pkg/mod.py", "/ci/build/other/mod.py"), "src/pkg/mod.py", n)
		assert.Equal(t, ConfidenceSuffix, res.Confidence)
		assert.Equal(t, "/ci/build/pkg/mod.py", res.Path)
		assert.Equal(t, 2, res.Score)
	})

	t.Run("tie broken by repository root", func(t *testing.T) {
		inside := pathnorm.ToSlash(filepath.Join(n.Root(), "other", "pkg", "mod.py"))
		res := Resolve(reportWith(inside, "/elsewhere/pkg/mod.py"), "src/pkg/mod.py", n)
		assert.Equal(t, ConfidenceSuffix, res.Confidence)
		assert.Equal(t, inside, res.Path)
	})

	t.Run("ambiguous tie", func(t *testing.T) {
		res := Resolve(reportWith("a/mod.py", "b/mod.py"), "c/mod.py", n)
		assert.Equal(t, ConfidenceAmbiguous, res.Confidence)
		assert.False(t, res.OK())
		assert.Empty(t, res.Path)
		assert.ElementsMatch(t, []string{"a/mod.py", "b/mod.py"}, res.Candidates)
		assert.ErrorIs(t, res.Err(), models.ErrPathAmbiguous)
	})

	t.Run("no match", func(t *testing.T) {
		res := Resolve(reportWith("pkg/other.py"), "pkg/mod.py", n)
		assert.Equal(t, ConfidenceNone, res.Confidence)
		assert.ErrorIs(t, res.Err(), models.ErrPathUnresolved)
	})

	t.Run("nil report", func(t *testing.T) {
		assert.Equal(t, ConfidenceNone, Resolve(nil, "pkg/mod.py", n).Confidence)
	})

	t.Run("idempotent", func(t *testing.T) {
		report := reportWith("/x/pkg/mod.py", "/y/lib/mod.py", "mod.py")
		first := Resolve(report, "src/pkg/mod.py", n)
		assert.Equal(t, first, Resolve(report, "src/pkg/mod.py", n))
	})
}

func TestMapMethods_HalfCovered(t *testing.T) {
	n := newNormalizer(t)
	report := reportWith("pkg/mod.py")
	report.Files["pkg/mod.py"].Hits = bitmap(3)

	ranges := []models.MethodRange{{QualifiedName: "Foo.m", OwningClass: "Foo", StartLine: 2, EndLine: 3}}
	stats, res := MapMethods(report, "pkg/mod.py", n, ranges)

	assert.True(t, res.OK())
	stat := stats["Foo.m"]
	assert.True(t, stat.Known)
	assert.InDelta(t, 0.5, stat.Ratio, 1e-9)
	assert.Equal(t, 1, stat.HitLines)
	assert.Equal(t, 2, stat.TotalLines)
}

func TestMapMethods_DecoratorAdjustment(t *testing.T) {
	// line 4 is the decorator, line 5 the def, lines 6-7 the body
	hits := bitmap(1, 4, 5, 6)
	stat := MethodStat(hits, models.MethodRange{QualifiedName: "f", StartLine: 5, EndLine: 7})

	assert.Equal(t, 3, stat.HitLines)
	assert.Equal(t, 4, stat.TotalLines)
	assert.InDelta(t, 0.75, stat.Ratio, 1e-9)

	assert.Equal(t, 4, AdjustStart(hits, 5))
	assert.Equal(t, 1, AdjustStart(bitmap(1, 2), 2))
	assert.Equal(t, 1, AdjustStart(hits, 1))
}

func TestMapMethods_Unknown(t *testing.T) {
	n := newNormalizer(t)
	ranges := []models.MethodRange{
		{QualifiedName: "a", StartLine: 1, EndLine: 2},
		{QualifiedName: "b", StartLine: 4, EndLine: 9},
	}

	t.Run("no report", func(t *testing.T) {
		stats, _ := MapMethods(nil, "pkg/mod.py", n, ranges)
		assert.False(t, stats["a"].Known)
		assert.Equal(t, 6, stats["b"].TotalLines)
	})

	t.Run("ambiguous", func(t *testing.T) {
		stats, res := MapMethods(reportWith("x/mod.py", "y/mod.py"), "pkg/mod.py", n, ranges)
		assert.Equal(t, ConfidenceAmbiguous, res.Confidence)
		for _, s := range stats {
			assert.False(t, s.Known)
		}
	})

	t.Run("summary only", func(t *testing.T) {
		report := NewReport(FormatJSON)
		fc := report.file("pkg/mod.py")
		fc.NumStatements = 10
		stats, res := MapMethods(report, "pkg/mod.py", n, ranges)
		assert.True(t, res.OK())
		assert.False(t, stats["a"].Known)
	})

	t.Run("malformed report", func(t *testing.T) {
		_, err := ParseXML(strings.NewReader(`<coverage><class filename="pkg/mod.py">`))
		require.Error(t, err)
		stats := UnknownAll(ranges)
		assert.Len(t, stats, 2)
		for _, s := range stats {
			assert.False(t, s.Known)
		}
	})
}

func TestMethodStat_Monotonic(t *testing.T) {
	r := models.MethodRange{QualifiedName: "m", StartLine: 10, EndLine: 20}
	hits := roaring.New()
	prev := MethodStat(hits, r).Ratio
	for _, line := range []uint32{15, 11, 20, 13, 10} {
		hits.Add(line)
		cur := MethodStat(hits, r).Ratio
		assert.GreaterOrEqual(t, cur, prev, "after adding line %d", line)
		prev = cur
	}
}

func TestRiskScore(t *testing.T) {
	risk, ok := RiskScore(5, models.NewCoverageStat(0, 10))
	require.True(t, ok)
	assert.InDelta(t, 30.0, risk, 1e-9)

	risk, ok = RiskScore(5, models.NewCoverageStat(10, 10))
	require.True(t, ok)
	assert.InDelta(t, 5.0, risk, 1e-9)

	_, ok = RiskScore(5, models.UnknownCoverage(10))
	assert.False(t, ok)
}

package coverage

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
)

// MapMethods computes the coverage of each range in sourcePath, keyed by
// qualified name. Every method is unknown when the report is nil, the file
// cannot be resolved to exactly one entry, or the entry has no line data.
func MapMethods(report *Report, sourcePath string, norm *pathnorm.Normalizer, ranges []models.MethodRange) (map[string]models.CoverageStat, Resolution) {
	res := Resolve(report, sourcePath, norm)

	var fc *FileCoverage
	if res.OK() {
		fc = report.Files[res.Path]
	}
	if fc == nil || !fc.HasLineData {
		return UnknownAll(ranges), res
	}

	stats := make(map[string]models.CoverageStat, len(ranges))
	for _, r := range ranges {
		stats[r.QualifiedName] = MethodStat(fc.Hits, r)
	}
	return stats, res
}

// MethodStat counts the hit lines of r. The range is first extended upward
// over consecutive hit lines directly above it so decorator lines count
// with the definition they decorate.
func MethodStat(hits *roaring.Bitmap, r models.MethodRange) models.CoverageStat {
	start := AdjustStart(hits, r.StartLine)
	end := r.EndLine
	if end < start {
		end = start
	}
	return models.NewCoverageStat(countHits(hits, start, end), end-start+1)
}

// AdjustStart walks upward from start while the preceding line is hit.
func AdjustStart(hits *roaring.Bitmap, start int) int {
	for start > 1 && hits.Contains(uint32(start-1)) {
		start--
	}
	return start
}

// countHits returns the number of hit lines in [start, end].
func countHits(hits *roaring.Bitmap, start, end int) int {
	if start < 1 {
		start = 1
	}
	if end < start {
		return 0
	}
	upper := hits.Rank(uint32(end))
	lower := uint64(0)
	if start > 1 {
		lower = hits.Rank(uint32(start - 1))
	}
	return int(upper - lower)
}

// UnknownAll returns unknown coverage for every range, used when no report
// is available or the report could not be parsed.
func UnknownAll(ranges []models.MethodRange) map[string]models.CoverageStat {
	stats := make(map[string]models.CoverageStat, len(ranges))
	for _, r := range ranges {
		stats[r.QualifiedName] = models.UnknownCoverage(r.Lines())
	}
	return stats
}

// RiskScore combines complexity with coverage into a CRAP-style risk:
// complexity² × (1 − coverage)³ + complexity. The second result is false
// when coverage is unknown.
func RiskScore(complexity int, stat models.CoverageStat) (float64, bool) {
	if !stat.Known {
		return 0, false
	}
	comp := float64(complexity)
	uncovered := 1 - stat.Ratio
	return comp*comp*math.Pow(uncovered, 3) + comp, true
}

package coverage

import (
	"path"

	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
)

// Confidence describes how a source file was matched to a report entry.
type Confidence int

const (
	// ConfidenceNone means no report entry shares the file's basename.
	ConfidenceNone Confidence = iota
	// ConfidenceAmbiguous means several entries tie for the best match.
	ConfidenceAmbiguous
	// ConfidenceSuffix means one entry uniquely shares the longest suffix.
	ConfidenceSuffix
	// ConfidenceExact means an entry normalizes to the source path itself.
	ConfidenceExact
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExact:
		return "exact"
	case ConfidenceSuffix:
		return "suffix"
	case ConfidenceAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Resolution is the outcome of matching a source file to a report entry.
type Resolution struct {
	// Path is the matched report entry; empty unless OK.
	Path string
	// Score is the number of trailing path components shared with the source.
	Score      int
	Confidence Confidence
	// Candidates lists the tied entries of an ambiguous resolution.
	Candidates []string
}

// OK reports whether the resolution identifies a single entry.
func (r Resolution) OK() bool {
	return r.Confidence >= ConfidenceSuffix
}

// Err returns the error matching an unsuccessful resolution, or nil.
func (r Resolution) Err() error {
	switch r.Confidence {
	case ConfidenceNone:
		return models.ErrPathUnresolved
	case ConfidenceAmbiguous:
		return models.ErrPathAmbiguous
	default:
		return nil
	}
}

// Resolve finds the report entry that describes sourcePath.
//
// An entry that normalizes to the source path wins outright. Otherwise the
// entry sharing the longest common path-component suffix wins; ties are
// broken in favour of entries that resolve inside the repository root, and
// any tie remaining after that is ambiguous. Entries are visited in sorted
// order so repeated calls give the same answer.
func Resolve(report *Report, sourcePath string, norm *pathnorm.Normalizer) Resolution {
	if report == nil || len(report.Files) == 0 {
		return Resolution{}
	}
	target := norm.Normalize(sourcePath)

	best := 0
	var tied []string
	for _, p := range report.Paths() {
		if exactMatch(report, p, target, norm) {
			return Resolution{Path: p, Score: len(pathnorm.Components(target)), Confidence: ConfidenceExact}
		}
		score := pathnorm.CommonSuffix(p, target)
		switch {
		case score == 0 || score < best:
		case score > best:
			best = score
			tied = []string{p}
		default:
			tied = append(tied, p)
		}
	}

	if best == 0 {
		return Resolution{}
	}
	if len(tied) == 1 {
		return Resolution{Path: tied[0], Score: best, Confidence: ConfidenceSuffix}
	}

	var inside []string
	for _, p := range tied {
		if resolvesInside(report, p, norm) {
			inside = append(inside, p)
		}
	}
	if len(inside) == 1 {
		return Resolution{Path: inside[0], Score: best, Confidence: ConfidenceSuffix}
	}
	return Resolution{Score: best, Confidence: ConfidenceAmbiguous, Candidates: tied}
}

// locations returns the paths an entry may refer to: the entry itself when
// absolute, otherwise the entry joined to each report source root. Without
// source roots a relative entry is taken relative to the repository root.
func locations(report *Report, p string) []string {
	if path.IsAbs(p) || len(report.Sources) == 0 {
		return []string{p}
	}
	out := make([]string, 0, len(report.Sources))
	for _, src := range report.Sources {
		out = append(out, path.Join(pathnorm.ToSlash(src), p))
	}
	return out
}

func exactMatch(report *Report, p, target string, norm *pathnorm.Normalizer) bool {
	if norm.Normalize(p) == target {
		return true
	}
	for _, loc := range locations(report, p) {
		if norm.Normalize(loc) == target {
			return true
		}
	}
	return false
}

func resolvesInside(report *Report, p string, norm *pathnorm.Normalizer) bool {
	for _, loc := range locations(report, p) {
		if norm.Inside(loc) {
			return true
		}
	}
	return false
}

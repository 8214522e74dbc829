// Package coverage maps coverage.py reports onto method ranges.
//
// Two report formats are understood: the Cobertura-style XML written by
// `coverage xml` and the JSON written by `coverage json`. Report paths rarely
// match source paths exactly, so each source file is resolved against the
// report entries by longest common path suffix before its methods are
// scored. Methods that cannot be attributed to exactly one entry get
// "unknown" coverage, never zero.
package coverage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
)

// Format identifies a coverage report wire format.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// FileCoverage is the coverage recorded for one file entry of a report.
type FileCoverage struct {
	// Path is the file path as written in the report, with forward slashes.
	Path string
	// Hits holds the line numbers executed at least once.
	Hits *roaring.Bitmap
	// Measured holds every line number the report lists, hit or not.
	Measured *roaring.Bitmap
	// CoveredLines and NumStatements come from the report summary when
	// present, otherwise from the line sets.
	CoveredLines  int
	NumStatements int
	// HasLineData is false for summary-only entries; such entries cannot be
	// mapped to individual methods.
	HasLineData bool
}

func newFileCoverage(path string) *FileCoverage {
	return &FileCoverage{
		Path:     path,
		Hits:     roaring.New(),
		Measured: roaring.New(),
	}
}

// Percent returns the file-level coverage percentage.
func (f *FileCoverage) Percent() float64 {
	if f.NumStatements == 0 {
		return 0
	}
	return 100 * float64(f.CoveredLines) / float64(f.NumStatements)
}

// finish derives summary counts from the line sets when the report did
// not carry them.
func (f *FileCoverage) finish() {
	if f.NumStatements == 0 && f.HasLineData {
		f.NumStatements = int(f.Measured.GetCardinality())
		f.CoveredLines = int(f.Hits.GetCardinality())
	}
}

// Report is a parsed coverage report.
type Report struct {
	Format Format
	// Sources are the <source> roots of an XML report.
	Sources []string
	Files   map[string]*FileCoverage
}

// NewReport returns an empty report of the given format.
func NewReport(format Format) *Report {
	return &Report{Format: format, Files: make(map[string]*FileCoverage)}
}

// file returns the entry for path, creating it if needed.
func (r *Report) file(path string) *FileCoverage {
	path = pathnorm.ToSlash(path)
	fc, ok := r.Files[path]
	if !ok {
		fc = newFileCoverage(path)
		r.Files[path] = fc
	}
	return fc
}

// Paths returns the report's file paths in sorted order.
func (r *Report) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Load reads and parses the report at path. The format is chosen by file
// extension, falling back to sniffing the first non-blank byte. Any failure
// to read or parse is returned as a *models.ReportFormatError.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ReportFormatError{Report: path, Err: err}
	}

	var report *Report
	switch DetectFormat(path, data) {
	case FormatXML:
		report, err = ParseXML(bytes.NewReader(data))
	case FormatJSON:
		report, err = ParseJSON(bytes.NewReader(data))
	default:
		err = fmt.Errorf("unrecognized coverage report format")
	}
	if err != nil {
		return nil, &models.ReportFormatError{Report: path, Err: err}
	}
	return report, nil
}

// DetectFormat guesses the format of a report from its name and content.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML
	case ".json":
		return FormatJSON
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '<':
		return FormatXML
	case '{':
		return FormatJSON
	}
	return ""
}

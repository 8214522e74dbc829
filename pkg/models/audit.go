package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ModuleScope is the pseudo-class that groups module-level functions.
const ModuleScope = "<module>"

// UnparsedKey is the reserved ledger key holding plugin report lines that
// did not match the tool's expected shape.
const UnparsedKey = "<unparsed>"

// PrivatePrefix marks a method name as private by convention.
const PrivatePrefix = "_"

// MethodRange is the inclusive source line span of one function or method.
type MethodRange struct {
	QualifiedName string `json:"qualified_name"`
	OwningClass   string `json:"owning_class,omitempty"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
}

// Name returns the bare method name (the last qualified component).
func (r MethodRange) Name() string {
	if r.OwningClass == "" {
		return r.QualifiedName
	}
	return r.QualifiedName[len(r.OwningClass)+1:]
}

// Scope returns the owning class, or ModuleScope for module-level functions.
func (r MethodRange) Scope() string {
	if r.OwningClass == "" {
		return ModuleScope
	}
	return r.OwningClass
}

// Lines returns the number of lines spanned by the range.
func (r MethodRange) Lines() int {
	return r.EndLine - r.StartLine + 1
}

// IsPublic reports whether the method name is not private by convention.
func (r MethodRange) IsPublic() bool {
	name := r.Name()
	return len(name) == 0 || name[:1] != PrivatePrefix
}

// ComplexityScore is the cyclomatic-style score of one function.
type ComplexityScore struct {
	QualifiedName string `json:"qualified_name"`
	Score         int    `json:"score"`
}

// CoverageStat is the coverage of one method range.
// Known is false when no coverage data could be attributed to the method;
// unknown is distinct from zero coverage.
type CoverageStat struct {
	Known      bool    `json:"-"`
	Ratio      float64 `json:"-"`
	HitLines   int     `json:"-"`
	TotalLines int     `json:"-"`
}

// UnknownCoverage returns a stat for a method with no attributable coverage.
func UnknownCoverage(totalLines int) CoverageStat {
	return CoverageStat{TotalLines: totalLines}
}

// NewCoverageStat builds a known stat from hit and total line counts.
func NewCoverageStat(hits, total int) CoverageStat {
	stat := CoverageStat{Known: true, HitLines: hits, TotalLines: total}
	if total > 0 {
		stat.Ratio = float64(hits) / float64(total)
	}
	return stat
}

// MethodDiff lists methods removed from and added to one class.
type MethodDiff struct {
	Missing []string `json:"missing"`
	Added   []string `json:"added"`
}

// Empty reports whether the class is unchanged.
func (d MethodDiff) Empty() bool {
	return len(d.Missing) == 0 && len(d.Added) == 0
}

// MissingTestEntry is a public method with no call expression in its test module.
type MissingTestEntry struct {
	Class  string `json:"class"`
	Method string `json:"method"`
}

// ComplexityEntry is the per-method complexity and coverage row of a record.
type ComplexityEntry struct {
	Complexity int
	Coverage   CoverageStat
}

type complexityEntryJSON struct {
	Complexity int  `json:"complexity"`
	Coverage   any  `json:"coverage"`
	Hits       *int `json:"hits"`
	Lines      int  `json:"lines"`
}

// MarshalJSON encodes unknown coverage as the string "unknown" with null hits.
func (e ComplexityEntry) MarshalJSON() ([]byte, error) {
	out := complexityEntryJSON{
		Complexity: e.Complexity,
		Coverage:   CoverageUnknown,
		Lines:      e.Coverage.TotalLines,
	}
	if e.Coverage.Known {
		hits := e.Coverage.HitLines
		out.Coverage = e.Coverage.Ratio
		out.Hits = &hits
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes both numeric and "unknown" coverage values.
func (e *ComplexityEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Complexity int             `json:"complexity"`
		Coverage   json.RawMessage `json:"coverage"`
		Hits       *int            `json:"hits"`
		Lines      int             `json:"lines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Complexity = raw.Complexity
	e.Coverage = UnknownCoverage(raw.Lines)

	if len(raw.Coverage) == 0 || string(raw.Coverage) == "null" {
		return nil
	}
	var label string
	if err := json.Unmarshal(raw.Coverage, &label); err == nil {
		if label != CoverageUnknown {
			return fmt.Errorf("invalid coverage value %q", label)
		}
		return nil
	}
	var ratio float64
	if err := json.Unmarshal(raw.Coverage, &ratio); err != nil {
		return fmt.Errorf("invalid coverage value: %w", err)
	}
	e.Coverage = CoverageStat{Known: true, Ratio: ratio, TotalLines: raw.Lines}
	if raw.Hits != nil {
		e.Coverage.HitLines = *raw.Hits
	}
	return nil
}

// CoverageUnknown is the JSON sentinel for unattributable coverage.
const CoverageUnknown = "unknown"

// QualityFinding maps plugin name to its tool-specific payload.
type QualityFinding map[string]any

// FileAuditRecord is the audit result for one normalized file path.
type FileAuditRecord struct {
	MethodDiff   map[string]MethodDiff      `json:"method_diff"`
	MissingTests []MissingTestEntry         `json:"missing_tests"`
	Complexity   map[string]ComplexityEntry `json:"complexity"`
	Quality      QualityFinding             `json:"quality"`
}

// NewFileAuditRecord returns a record with all sub-ledgers initialized.
func NewFileAuditRecord() *FileAuditRecord {
	return &FileAuditRecord{
		MethodDiff:   make(map[string]MethodDiff),
		MissingTests: []MissingTestEntry{},
		Complexity:   make(map[string]ComplexityEntry),
		Quality:      make(QualityFinding),
	}
}

// AuditLedger maps normalized file paths to their audit records.
type AuditLedger map[string]*FileAuditRecord

// Paths returns the ledger keys in sorted order.
func (l AuditLedger) Paths() []string {
	paths := make([]string, 0, len(l))
	for p := range l {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

package coverage

import (
	"encoding/json"
	"fmt"
	"io"
)

type jsonReport struct {
	Files map[string]jsonFile `json:"files"`
}

type jsonFile struct {
	Filename      string       `json:"filename"`
	ExecutedLines []int        `json:"executed_lines"`
	MissingLines  []int        `json:"missing_lines"`
	Summary       *jsonSummary `json:"summary"`
}

type jsonSummary struct {
	CoveredLines  int `json:"covered_lines"`
	NumStatements int `json:"num_statements"`
}

// ParseJSON parses a report as written by `coverage json`.
//
// Entries carrying executed_lines are mapped line by line. Summary-only
// entries keep their file-level counts but report no line data.
func ParseJSON(r io.Reader) (*Report, error) {
	var raw jsonReport
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid coverage json: %w", err)
	}
	if raw.Files == nil {
		return nil, fmt.Errorf("invalid coverage json: missing \"files\" object")
	}

	report := NewReport(FormatJSON)
	for key, entry := range raw.Files {
		path := key
		if path == "" {
			path = entry.Filename
		}
		if path == "" {
			return nil, fmt.Errorf("invalid coverage json: file entry without a path")
		}

		fc := report.file(path)
		if entry.ExecutedLines != nil {
			fc.HasLineData = true
			for _, line := range entry.ExecutedLines {
				if line < 1 {
					return nil, fmt.Errorf("invalid coverage json: bad line %d in %s", line, path)
				}
				fc.Hits.Add(uint32(line))
				fc.Measured.Add(uint32(line))
			}
			for _, line := range entry.MissingLines {
				if line >= 1 {
					fc.Measured.Add(uint32(line))
				}
			}
		}
		if entry.Summary != nil {
			fc.CoveredLines = entry.Summary.CoveredLines
			fc.NumStatements = entry.Summary.NumStatements
		}
		fc.finish()
	}
	return report, nil
}

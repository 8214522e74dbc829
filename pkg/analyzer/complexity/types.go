package complexity

import "github.com/panbanda/refaudit/pkg/models"

// FunctionResult is the complexity of one function definition.
type FunctionResult struct {
	Range      models.MethodRange `json:"range"`
	Complexity int                `json:"complexity"`
}

// Name returns the qualified name of the function.
func (f FunctionResult) Name() string {
	return f.Range.QualifiedName
}

// Summary provides aggregate statistics over a set of function scores.
type Summary struct {
	TotalFunctions int     `json:"total_functions"`
	Total          int     `json:"total"`
	Max            int     `json:"max"`
	Mean           float64 `json:"mean"`
	P50            float64 `json:"p50"`
	P90            float64 `json:"p90"`
}

// Thresholds defines the limits used to flag complex functions.
type Thresholds struct {
	Warn  int `json:"warn" toml:"warn"`
	Error int `json:"error" toml:"error"`
}

// DefaultThresholds returns sensible defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warn:  10,
		Error: 20,
	}
}

// Severity indicates how far a function exceeds the thresholds.
type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Classify returns the severity of a complexity value. A zero threshold
// disables that level.
func (t Thresholds) Classify(value int) Severity {
	switch {
	case t.Error > 0 && value > t.Error:
		return SeverityError
	case t.Warn > 0 && value > t.Warn:
		return SeverityWarning
	default:
		return SeverityOK
	}
}

// Violation is a function whose complexity exceeds a threshold.
type Violation struct {
	Function   string   `json:"function"`
	Complexity int      `json:"complexity"`
	Threshold  int      `json:"threshold"`
	Severity   Severity `json:"severity"`
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/panbanda/refaudit/pkg/analyzer/complexity"
	"github.com/panbanda/refaudit/pkg/analyzer/coverage"
	"github.com/panbanda/refaudit/pkg/ledger"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/quality"
	"go.uber.org/zap"
)

// Mode selects which files a run audits.
type Mode int

const (
	// ModePair audits a single original/refactored pair.
	ModePair Mode = iota
	// ModeTree audits every file of the original tree.
	ModeTree
	// ModeChanged audits the files changed since a base revision.
	ModeChanged
	// ModeQuality only merges the quality reports.
	ModeQuality
)

func (m Mode) String() string {
	switch m {
	case ModeTree:
		return "tree"
	case ModeChanged:
		return "changed"
	case ModeQuality:
		return "quality"
	default:
		return "pair"
	}
}

// Request describes one run.
type Request struct {
	Mode Mode
	// Pair is used by ModePair.
	Pair Pair
	// Base is the revision ModeChanged diffs against.
	Base string
}

// Summary aggregates a run's ledger.
type Summary struct {
	Files          int                    `json:"files"`
	Skipped        int                    `json:"skipped"`
	MethodsAdded   int                    `json:"methods_added"`
	MethodsMissing int                    `json:"methods_missing"`
	MissingTests   int                    `json:"missing_tests"`
	UnknownCover   int                    `json:"unknown_coverage"`
	Complexity     complexity.Summary     `json:"complexity"`
	Violations     []complexity.Violation `json:"violations,omitempty"`
	QualityIssues  map[string]int         `json:"quality_issues,omitempty"`
}

// Result is the outcome of a run. The ledger is always present; warnings
// list the items that were degraded or skipped.
type Result struct {
	Mode     Mode
	Ledger   models.AuditLedger
	Warnings []Warning
	Summary  Summary
	// Fresh lists the keys audited by this run, as opposed to those carried
	// over from a prior ledger by union.
	Fresh []string
}

// Run executes a full audit: merge quality reports, load coverage, audit
// the selected files, fold quality findings into the records and, when
// configured, union with the prior ledger.
//
// Only setup failures are returned as errors: bad roots, an unreadable
// prior ledger, a repository that cannot be opened. Everything else
// degrades into warnings.
func (a *Assembler) Run(ctx context.Context, req Request) (*Result, error) {
	var prior models.AuditLedger
	if a.cfg.Audit.Union && a.cfg.Audit.Ledger != "" {
		var err error
		prior, err = ledger.Load(a.abs(a.cfg.Audit.Ledger))
		if err != nil {
			return nil, fmt.Errorf("load prior ledger: %w", err)
		}
	}

	res := &Result{Mode: req.Mode}

	ql := quality.NewLedger(a.norm)
	if a.driver != nil {
		summary := a.driver.Merge(ctx, ql)
		for _, o := range summary.Outcomes {
			if o.RunErr != nil {
				res.Warnings = append(res.Warnings, Warning{Path: o.Plugin, Err: o.RunErr})
			}
			if o.ParseErr != nil {
				res.Warnings = append(res.Warnings, Warning{Path: o.Plugin, Err: o.ParseErr})
			}
		}
	}

	cov, covWarnings := a.LoadCoverage()
	res.Warnings = append(res.Warnings, covWarnings...)
	if a.driver != nil {
		if err := a.driver.Cleanup(); err != nil {
			a.logger.Warn("could not remove generated reports", zap.Error(err))
		}
	}

	var (
		audited  models.AuditLedger
		warnings []Warning
		err      error
	)
	switch req.Mode {
	case ModePair:
		var key string
		var rec *models.FileAuditRecord
		key, rec, warnings, err = a.runPair(ctx, req.Pair, cov)
		if err == nil {
			audited = models.AuditLedger{key: rec}
		}
	case ModeTree:
		audited, warnings, err = a.AuditTree(ctx, cov)
	case ModeChanged:
		audited, warnings, err = a.runChanged(ctx, cov, req.Base)
	case ModeQuality:
		audited = make(models.AuditLedger)
	default:
		err = fmt.Errorf("unknown audit mode %d", req.Mode)
	}
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, warnings...)

	fold(audited, ql)
	res.Fresh = audited.Paths()

	res.Ledger = audited
	if prior != nil {
		res.Ledger = ledger.Union(prior, audited)
	}

	sort.SliceStable(res.Warnings, func(i, j int) bool {
		return res.Warnings[i].Path < res.Warnings[j].Path
	})
	res.Summary = a.summarize(res)
	return res, nil
}

// runPair audits the single pair. Missing refactored or original files are
// setup errors. A pair whose refactored file cannot be parsed still yields
// an empty record so the run produces a ledger.
func (a *Assembler) runPair(ctx context.Context, pair Pair, cov *coverage.Report) (string, *models.FileAuditRecord, []Warning, error) {
	if pair.Refactored == "" {
		return "", nil, nil, errors.New("no refactored file given")
	}
	if _, err := os.Stat(a.abs(pair.Refactored)); err != nil {
		return "", nil, nil, fmt.Errorf("refactored file: %w", err)
	}
	// an original named explicitly must exist; only an omitted one means a new file
	if pair.Original != "" {
		if _, err := os.Stat(a.abs(pair.Original)); err != nil {
			return "", nil, nil, fmt.Errorf("original file: %w", err)
		}
	}
	pa, err := a.auditPair(ctx, pair, cov)
	if err != nil {
		var pe *models.ParseError
		if errors.As(err, &pe) {
			key := a.norm.Normalize(a.abs(pair.Refactored))
			a.logger.Warn("file skipped", zap.String("path", key), zap.Error(err))
			return key, models.NewFileAuditRecord(), []Warning{{Path: key, Err: err}}, nil
		}
		return "", nil, nil, err
	}
	return pa.key, pa.record, pa.warnings, nil
}

// runChanged opens the repository holding the refactored root and audits
// the files changed since base.
func (a *Assembler) runChanged(ctx context.Context, cov *coverage.Report, base string) (models.AuditLedger, []Warning, error) {
	repo, err := a.OpenRepository()
	if err != nil {
		return nil, nil, fmt.Errorf("open repository: %w", err)
	}
	return a.AuditChanged(ctx, cov, repo, base)
}

// fold copies the quality findings into the audited records. Paths with
// findings but no audit get a quality-only record.
func fold(l models.AuditLedger, ql *quality.Ledger) {
	for key, finding := range ql.Findings() {
		rec, ok := l[key]
		if !ok {
			rec = models.NewFileAuditRecord()
			l[key] = rec
		}
		for plugin, payload := range finding {
			rec.Quality[plugin] = payload
		}
	}
}

func (a *Assembler) summarize(res *Result) Summary {
	s := Summary{Files: len(res.Fresh)}
	scores := make(map[string]int)
	for _, key := range res.Fresh {
		rec := res.Ledger[key]
		if rec == nil {
			continue
		}
		for _, d := range rec.MethodDiff {
			s.MethodsAdded += len(d.Added)
			s.MethodsMissing += len(d.Missing)
		}
		s.MissingTests += len(rec.MissingTests)
		for name, e := range rec.Complexity {
			scores[key+"::"+name] = e.Complexity
			if !e.Coverage.Known {
				s.UnknownCover++
			}
		}
		for plugin, payload := range rec.Quality {
			if n := issueCount(payload); n > 0 {
				if s.QualityIssues == nil {
					s.QualityIssues = make(map[string]int)
				}
				s.QualityIssues[plugin] += n
			}
		}
	}
	for _, w := range res.Warnings {
		if w.Skipped {
			s.Skipped++
		}
	}
	s.Complexity = complexity.Summarize(scores)
	s.Violations = complexity.ExceedsThreshold(scores, a.Thresholds())
	return s
}

// Thresholds returns the configured complexity thresholds.
func (a *Assembler) Thresholds() complexity.Thresholds {
	return complexity.Thresholds{
		Warn:  a.cfg.Thresholds.ComplexityWarn,
		Error: a.cfg.Thresholds.ComplexityError,
	}
}

// issueCount counts the findings in a plugin payload. A formatter finding
// counts once when the file would be reformatted.
func issueCount(payload any) int {
	switch p := payload.(type) {
	case quality.IssueList:
		return len(p.Issues)
	case *quality.IssueList:
		return len(p.Issues)
	case quality.FormatFinding:
		if p.WouldReformat || p.Error != "" {
			return 1
		}
	case []string:
		return len(p)
	}
	return 0
}

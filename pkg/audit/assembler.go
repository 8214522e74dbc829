// Package audit assembles per-file audit records from the structural,
// complexity, coverage and quality analyses.
//
// Every sub-ledger of a record is keyed by the same normalized path: the
// repository-relative path of the refactored file. The assembler is the
// single writer of the ledger; per-file work returns values that are
// merged once all files are done.
package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/panbanda/refaudit/internal/scanner"
	"github.com/panbanda/refaudit/internal/vcs"
	"github.com/panbanda/refaudit/pkg/analyzer/complexity"
	"github.com/panbanda/refaudit/pkg/analyzer/coverage"
	"github.com/panbanda/refaudit/pkg/analyzer/guard"
	"github.com/panbanda/refaudit/pkg/ast"
	"github.com/panbanda/refaudit/pkg/ast/treesitter"
	"github.com/panbanda/refaudit/pkg/config"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
	"github.com/panbanda/refaudit/pkg/quality"
	"go.uber.org/zap"
)

// ProgressFactory starts progress reporting for a run over total files.
// tick is called once per file and done once at the end.
type ProgressFactory func(label string, total int) (tick func(), done func())

// Assembler runs audits for one repository.
type Assembler struct {
	cfg      *config.Config
	norm     *pathnorm.Normalizer
	parser   ast.Parser
	guard    *guard.Guard
	driver   *quality.Driver
	opener   vcs.Opener
	logger   *zap.Logger
	progress ProgressFactory
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithParser sets the parser used for every source file.
func WithParser(p ast.Parser) Option {
	return func(a *Assembler) {
		a.parser = p
	}
}

// WithDriver sets the quality driver. Without one no quality findings are
// collected.
func WithDriver(d *quality.Driver) Option {
	return func(a *Assembler) {
		a.driver = d
	}
}

// WithOpener sets the VCS opener (for testing).
func WithOpener(o vcs.Opener) Option {
	return func(a *Assembler) {
		a.opener = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithProgress reports per-file progress in tree modes.
func WithProgress(p ProgressFactory) Option {
	return func(a *Assembler) {
		a.progress = p
	}
}

// New creates an assembler for the repository at norm's root.
func New(cfg *config.Config, norm *pathnorm.Normalizer, opts ...Option) *Assembler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a := &Assembler{
		cfg:    cfg,
		norm:   norm,
		parser: treesitter.New(),
		opener: vcs.DefaultOpener(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.guard = guard.New(a.parser, a.logger)
	return a
}

// Normalizer returns the assembler's path normalizer.
func (a *Assembler) Normalizer() *pathnorm.Normalizer {
	return a.norm
}

// Pair names the files of a single-pair audit. Original and Test are
// optional; relative paths are taken against the repository root.
type Pair struct {
	Original   string
	Refactored string
	Test       string
}

// Warning is a degraded item of a run: a skipped file, an unresolvable
// coverage entry, a failed tool.
type Warning struct {
	Path string
	Err  error
	// Skipped is set when the file produced no record.
	Skipped bool
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Err.Error()
	}
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// pairAudit is the outcome of one pair before it is merged.
type pairAudit struct {
	key      string
	record   *models.FileAuditRecord
	warnings []Warning
}

// AuditPair audits one file pair against the coverage report cov, which may
// be nil. It returns the normalized key and the record without quality
// findings. A refactored file that cannot be read or parsed is an error.
func (a *Assembler) AuditPair(ctx context.Context, pair Pair, cov *coverage.Report) (string, *models.FileAuditRecord, error) {
	res, err := a.auditPair(ctx, pair, cov)
	if err != nil {
		return "", nil, err
	}
	for _, w := range res.warnings {
		a.logger.Warn("audit degraded", zap.String("path", w.Path), zap.Error(w.Err))
	}
	return res.key, res.record, nil
}

func (a *Assembler) auditPair(ctx context.Context, pair Pair, cov *coverage.Report) (*pairAudit, error) {
	refPath := a.abs(pair.Refactored)
	key := a.norm.Normalize(refPath)

	in := guard.Inputs{RefactoredPath: refPath}
	if pair.Original != "" {
		in.OriginalPath = a.abs(pair.Original)
	}
	if pair.Test != "" {
		in.TestPath = a.abs(pair.Test)
	}

	checked, err := a.guard.Check(ctx, in)
	if err != nil {
		return nil, err
	}

	out := &pairAudit{key: key, record: models.NewFileAuditRecord()}
	out.record.MethodDiff = checked.MethodDiff
	out.record.MissingTests = checked.MissingTests
	for _, w := range checked.Warnings {
		out.warnings = append(out.warnings, Warning{Path: a.norm.Normalize(in.TestPath), Err: w})
	}

	if a.cfg.Audit.IgnoreComplexity {
		return out, nil
	}

	functions := complexity.Analyze(checked.Module)
	ranges := make([]models.MethodRange, len(functions))
	for i, f := range functions {
		ranges[i] = f.Range
	}

	var stats map[string]models.CoverageStat
	if cov == nil {
		stats = coverage.UnknownAll(ranges)
	} else {
		var res coverage.Resolution
		stats, res = coverage.MapMethods(cov, refPath, a.norm, ranges)
		switch {
		case res.Confidence == coverage.ConfidenceAmbiguous:
			out.warnings = append(out.warnings, Warning{Path: key, Err: res.Err()})
		case !res.OK():
			a.logger.Debug("no coverage entry for file", zap.String("path", key))
		}
	}

	for _, f := range functions {
		out.record.Complexity[f.Range.QualifiedName] = models.ComplexityEntry{
			Complexity: f.Complexity,
			Coverage:   stats[f.Range.QualifiedName],
		}
	}
	return out, nil
}

// abs resolves p against the repository root unless it is absolute.
func (a *Assembler) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(a.norm.Root(), p)
}

// LoadCoverage reads the configured coverage report. A missing report
// yields nil with no warning; a malformed one yields nil and a warning, so
// every method's coverage is unknown.
func (a *Assembler) LoadCoverage() (*coverage.Report, []Warning) {
	if a.cfg.Audit.Coverage == "" {
		return nil, nil
	}
	path := a.abs(a.cfg.Audit.Coverage)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.logger.Debug("no coverage report, coverage unknown", zap.String("report", path))
		return nil, nil
	}

	report, err := coverage.Load(path)
	if err != nil {
		a.logger.Warn("coverage report unusable, coverage unknown for every method",
			zap.String("report", path), zap.Error(err))
		return nil, []Warning{{Path: a.norm.Normalize(path), Err: err}}
	}
	return report, nil
}

// newScanner returns a scanner honouring the configured exclusions.
func (a *Assembler) newScanner() *scanner.Scanner {
	return scanner.NewScanner(a.cfg)
}

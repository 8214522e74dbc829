package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/panbanda/refaudit/internal/fileproc"
	"github.com/panbanda/refaudit/internal/vcs"
	"github.com/panbanda/refaudit/pkg/analyzer/coverage"
	"github.com/panbanda/refaudit/pkg/models"
	"go.uber.org/zap"
)

// roots returns the absolute original, refactored and tests roots. The
// original root is empty when none is configured.
func (a *Assembler) roots() (orig, ref, tests string, err error) {
	if a.cfg.Audit.Refactored == "" {
		return "", "", "", errors.New("no refactored root configured")
	}
	ref = a.abs(a.cfg.Audit.Refactored)
	if info, statErr := os.Stat(ref); statErr != nil || !info.IsDir() {
		return "", "", "", fmt.Errorf("refactored root %s is not a directory", ref)
	}
	if a.cfg.Audit.Original != "" {
		orig = a.abs(a.cfg.Audit.Original)
		if info, statErr := os.Stat(orig); statErr != nil || !info.IsDir() {
			return "", "", "", fmt.Errorf("original root %s is not a directory", orig)
		}
	}
	tests = ref
	if a.cfg.Audit.Tests != "" {
		tests = a.abs(a.cfg.Audit.Tests)
		if info, statErr := os.Stat(tests); statErr != nil || !info.IsDir() {
			return "", "", "", fmt.Errorf("tests root %s is not a directory", tests)
		}
	}
	return orig, ref, tests, nil
}

// TestModule finds the test module for rel, a path relative to the
// refactored root, by trying the configured templates under testsRoot in
// order. {dir} is rel's directory and {name} its file name without
// extension. It returns "" when no candidate exists.
func TestModule(testsRoot, rel string, templates []string) string {
	rel = filepath.ToSlash(rel)
	dir := path.Dir(rel)
	name := strings.TrimSuffix(path.Base(rel), path.Ext(rel))

	for _, tmpl := range templates {
		candidate := strings.NewReplacer("{dir}", dir, "{name}", name).Replace(tmpl)
		candidate = filepath.Join(testsRoot, filepath.FromSlash(path.Clean(candidate)))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// job is one file of a tree audit, relative to the refactored root.
type job struct {
	rel  string
	pair Pair
}

// AuditTree audits every file of the original tree that still exists in the
// refactored tree. Files absent from the refactored tree are skipped with a
// warning. Without an original root the refactored tree is scanned and
// every file is treated as new.
func (a *Assembler) AuditTree(ctx context.Context, cov *coverage.Report) (models.AuditLedger, []Warning, error) {
	orig, ref, tests, err := a.roots()
	if err != nil {
		return nil, nil, err
	}

	scanRoot := orig
	if scanRoot == "" {
		scanRoot = ref
	}
	rels, err := a.newScanner().ScanDir(scanRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", scanRoot, err)
	}

	var warnings []Warning
	jobs := make([]job, 0, len(rels))
	for _, rel := range rels {
		refPath := filepath.Join(ref, filepath.FromSlash(rel))
		if _, err := os.Stat(refPath); err != nil {
			warnings = append(warnings, Warning{
				Path:    a.norm.Normalize(refPath),
				Err:     errors.New("absent from refactored tree"),
				Skipped: true,
			})
			continue
		}
		j := job{rel: rel, pair: Pair{
			Refactored: refPath,
			Test:       TestModule(tests, rel, a.cfg.Tests.Templates),
		}}
		if orig != "" {
			j.pair.Original = filepath.Join(orig, filepath.FromSlash(rel))
		}
		jobs = append(jobs, j)
	}

	l, more := a.auditJobs(ctx, "Auditing tree", jobs, cov)
	return l, append(warnings, more...), nil
}

// AuditChanged audits only the refactored files that repo reports changed
// since the merge base with base, including uncommitted changes. The
// original counterpart is optional; a changed file without one is new.
func (a *Assembler) AuditChanged(ctx context.Context, cov *coverage.Report, repo vcs.Repository, base string) (models.AuditLedger, []Warning, error) {
	orig, ref, tests, err := a.roots()
	if err != nil {
		return nil, nil, err
	}

	changed, err := vcs.ChangedFiles(ctx, repo, base)
	if err != nil {
		return nil, nil, fmt.Errorf("changed files since %s: %w", base, err)
	}

	repoRoot := repo.RepoPath()
	if resolved, err := filepath.EvalSymlinks(repoRoot); err == nil {
		repoRoot = resolved
	}
	refRoot := ref
	if resolved, err := filepath.EvalSymlinks(ref); err == nil {
		refRoot = resolved
	}

	sc := a.newScanner()
	var jobs []job
	for _, name := range changed {
		abs := filepath.Join(repoRoot, filepath.FromSlash(name))
		rel, err := filepath.Rel(refRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		ok, err := sc.ScanFile(refRoot, rel)
		if err != nil {
			// deleted since the merge base
			a.logger.Debug("changed file not on disk", zap.String("path", name))
			continue
		}
		if !ok {
			continue
		}
		rel = filepath.ToSlash(rel)
		j := job{rel: rel, pair: Pair{
			Refactored: filepath.Join(ref, filepath.FromSlash(rel)),
			Test:       TestModule(tests, rel, a.cfg.Tests.Templates),
		}}
		if orig != "" {
			j.pair.Original = filepath.Join(orig, filepath.FromSlash(rel))
		}
		jobs = append(jobs, j)
	}

	l, warnings := a.auditJobs(ctx, "Auditing changes", jobs, cov)
	return l, warnings, nil
}

// OpenRepository opens the repository containing the refactored root.
func (a *Assembler) OpenRepository() (vcs.Repository, error) {
	start := a.norm.Root()
	if a.cfg.Audit.Refactored != "" {
		start = a.abs(a.cfg.Audit.Refactored)
	}
	return a.opener.PlainOpenWithDetect(start)
}

// auditJobs runs the jobs on the worker pool and merges their records.
func (a *Assembler) auditJobs(ctx context.Context, label string, jobs []job, cov *coverage.Report) (models.AuditLedger, []Warning) {
	byRel := make(map[string]Pair, len(jobs))
	rels := make([]string, 0, len(jobs))
	for _, j := range jobs {
		byRel[j.rel] = j.pair
		rels = append(rels, j.rel)
	}

	var tick func()
	if a.progress != nil && len(rels) > 0 {
		var done func()
		tick, done = a.progress(label, len(rels))
		defer done()
	}

	results, errs := fileproc.MapFiles(ctx, rels, a.cfg.WorkerCount(), func(ctx context.Context, rel string) (*pairAudit, error) {
		return a.auditPair(ctx, byRel[rel], cov)
	}, tick)

	l := make(models.AuditLedger, len(results))
	var warnings []Warning
	for _, r := range results {
		l[r.key] = r.record
		warnings = append(warnings, r.warnings...)
	}
	if errs != nil {
		for _, pe := range errs.Errors {
			key := a.norm.Normalize(byRel[pe.Path].Refactored)
			a.logger.Warn("file skipped", zap.String("path", key), zap.Error(pe.Err))
			warnings = append(warnings, Warning{Path: key, Err: pe.Err, Skipped: true})
		}
	}
	return l, warnings
}

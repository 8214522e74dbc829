package quality

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Outcome records what happened to one plugin during a merge.
type Outcome struct {
	Plugin   string
	Report   string
	Ran      bool
	ExitCode int
	RunErr   error
	ParseErr error
}

// MergeSummary collects the per-plugin outcomes of a merge.
type MergeSummary struct {
	Outcomes []Outcome
}

// Warnings returns the run and parse errors of all plugins.
func (s *MergeSummary) Warnings() []error {
	var out []error
	for _, o := range s.Outcomes {
		if o.RunErr != nil {
			out = append(out, o.RunErr)
		}
		if o.ParseErr != nil {
			out = append(out, o.ParseErr)
		}
	}
	return out
}

// Driver merges plugin reports into a ledger. A driver covers one audit
// run: each report is generated at most once over its lifetime, however
// many merges run and whether they run concurrently.
type Driver struct {
	plugins []Plugin
	logger  *zap.Logger
	group   singleflight.Group

	mu        sync.Mutex
	attempted map[string]bool
	generated map[string]bool
}

// NewDriver creates a driver for the given plugins, run in order.
func NewDriver(plugins []Plugin, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		plugins:   plugins,
		logger:    logger,
		attempted: make(map[string]bool),
		generated: make(map[string]bool),
	}
}

// Plugins returns the driver's plugins.
func (d *Driver) Plugins() []Plugin {
	return d.plugins
}

// Merge runs each plugin whose report is missing or empty, then parses
// every plugin's report into l. Failures are logged and recorded in the
// summary; they never stop the remaining plugins.
func (d *Driver) Merge(ctx context.Context, l *Ledger) *MergeSummary {
	summary := &MergeSummary{}
	for _, p := range d.plugins {
		if ctx.Err() != nil {
			break
		}
		summary.Outcomes = append(summary.Outcomes, d.mergeOne(ctx, p, l))
	}
	return summary
}

func (d *Driver) mergeOne(ctx context.Context, p Plugin, l *Ledger) Outcome {
	out := Outcome{Plugin: p.Name(), Report: p.ReportPath()}
	log := d.logger.With(zap.String("plugin", p.Name()), zap.String("report", out.Report))

	res, err := d.ensureReport(ctx, p)
	out.Ran, out.ExitCode, out.RunErr = res.Ran, res.ExitCode, err
	if err != nil {
		log.Warn("quality tool failed, parsing whatever it produced", zap.Error(err))
	} else if res.Ran {
		log.Debug("generated report", zap.Int("exit_code", res.ExitCode))
	}

	l.Clear(p.Name())
	if err := p.Parse(l); err != nil {
		out.ParseErr = err
		log.Warn("could not parse quality report", zap.Error(err))
	}
	return out
}

// ensureReport runs p when its report is missing or empty and it has not
// been run since the last Cleanup. Concurrent callers for the same report
// share one run.
func (d *Driver) ensureReport(ctx context.Context, p Plugin) (RunResult, error) {
	report := p.ReportPath()
	v, err, _ := d.group.Do(report, func() (any, error) {
		d.mu.Lock()
		done := d.attempted[report]
		d.mu.Unlock()
		if done || !needsRun(report) {
			return RunResult{}, nil
		}

		res, err := p.Run(ctx)

		d.mu.Lock()
		d.attempted[report] = true
		if res.Ran {
			d.generated[report] = true
		}
		d.mu.Unlock()
		return res, err
	})
	res, _ := v.(RunResult)
	return res, err
}

// needsRun reports whether a report is missing or empty.
func needsRun(path string) bool {
	info, err := os.Stat(path)
	return err != nil || info.Size() == 0
}

// Generated returns the reports this driver wrote, sorted.
func (d *Driver) Generated() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.generated))
	for p := range d.generated {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Cleanup removes the reports this driver generated and ends the run: the
// next Merge runs any plugin whose report is missing again. Reports
// supplied by the caller are left in place.
func (d *Driver) Cleanup() error {
	var errs []error
	for _, p := range d.Generated() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		d.logger.Debug("removed generated report", zap.String("report", p))
	}
	d.mu.Lock()
	d.generated = make(map[string]bool)
	d.attempted = make(map[string]bool)
	d.mu.Unlock()
	return errors.Join(errs...)
}

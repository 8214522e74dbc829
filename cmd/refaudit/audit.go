package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/panbanda/refaudit/internal/progress"
	"github.com/panbanda/refaudit/pkg/audit"
	"github.com/panbanda/refaudit/pkg/config"
	"github.com/panbanda/refaudit/pkg/ledger"
	"github.com/panbanda/refaudit/pkg/watch"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func auditCmd() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit a refactored module or tree against the original",
		Description: `Without --recursive or --git-diff, --original, --refactored and --tests name
single files. With --recursive they name trees: every module of the original
tree is audited against the refactored module at the same relative path. With
--git-diff only refactored modules changed since --base are audited.

Examples:
  refaudit audit --original old/svc.py --refactored src/svc.py --tests tests/test_svc.py
  refaudit audit --recursive --original legacy --refactored src --coverage coverage.xml
  refaudit audit --git-diff --base main --refactored src -f json`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Usage: "Repository root; ledger keys are relative to it"},
			&cli.StringFlag{Name: "original", Usage: "Original module, or tree with --recursive"},
			&cli.StringFlag{Name: "refactored", Usage: "Refactored module, or tree with --recursive"},
			&cli.StringFlag{Name: "tests", Usage: "Test module, or root searched for test modules"},
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Audit whole trees"},
			&cli.BoolFlag{Name: "git-diff", Usage: "Audit only modules changed since --base"},
			&cli.StringFlag{Name: "base", Value: "main", Usage: "Base revision for --git-diff"},
			&cli.BoolFlag{Name: "ignore-complexity", Usage: "Omit complexity and coverage"},
			&cli.BoolFlag{Name: "missing-tests", Usage: "Show the untested public methods table"},
			&cli.IntFlag{Name: "complexity-threshold", Usage: "Complexity above which functions are flagged"},
			&cli.IntFlag{Name: "top", Usage: "Show only the N most complex functions (0 = all)"},
			&cli.StringFlag{Name: "coverage", Usage: "Coverage report (coverage.py XML or JSON)"},
			&cli.StringFlag{Name: "ledger", Usage: "Ledger file to write"},
			&cli.BoolFlag{Name: "union", Usage: "Keep records of the existing ledger for files not audited"},
			&cli.BoolFlag{Name: "no-quality", Usage: "Skip the quality tools"},
			&cli.IntFlag{Name: "workers", Usage: "Parallel workers (0 = 2x CPUs, 1 = sequential)"},
			&cli.BoolFlag{Name: "no-progress", Usage: "Hide the progress bar"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Re-audit when source files change"},
		},
		Action: runAuditCmd,
	}
}

// applyAuditFlags copies the audit flags that are set onto cfg. Paths
// given on the command line are made absolute so they keep meaning what
// the user typed whatever the repository root is.
func applyAuditFlags(c *cli.Context, cfg *config.Config) error {
	for flag, dst := range map[string]*string{
		"root":       &cfg.Audit.Root,
		"original":   &cfg.Audit.Original,
		"refactored": &cfg.Audit.Refactored,
		"tests":      &cfg.Audit.Tests,
		"coverage":   &cfg.Audit.Coverage,
		"ledger":     &cfg.Audit.Ledger,
	} {
		if !c.IsSet(flag) {
			continue
		}
		abs, err := filepath.Abs(c.String(flag))
		if err != nil {
			return fmt.Errorf("--%s: %w", flag, err)
		}
		*dst = abs
	}
	if c.IsSet("ignore-complexity") {
		cfg.Audit.IgnoreComplexity = c.Bool("ignore-complexity")
	}
	if c.IsSet("union") {
		cfg.Audit.Union = c.Bool("union")
	}
	if c.Bool("no-quality") {
		cfg.Quality.Enabled = false
	}
	if c.IsSet("workers") {
		cfg.Execution.Workers = c.Int("workers")
	}
	if c.IsSet("complexity-threshold") {
		cfg.Thresholds.ComplexityWarn = c.Int("complexity-threshold")
		if cfg.Thresholds.ComplexityError > 0 && cfg.Thresholds.ComplexityError < cfg.Thresholds.ComplexityWarn {
			cfg.Thresholds.ComplexityError = cfg.Thresholds.ComplexityWarn
		}
	}
	return nil
}

// auditRequest picks the mode from the flags.
func auditRequest(c *cli.Context, cfg *config.Config) (audit.Request, error) {
	switch {
	case c.Bool("git-diff"):
		if cfg.Audit.Refactored == "" {
			return audit.Request{}, errors.New("--git-diff needs --refactored")
		}
		return audit.Request{Mode: audit.ModeChanged, Base: c.String("base")}, nil
	case c.Bool("recursive"):
		if cfg.Audit.Refactored == "" {
			return audit.Request{}, errors.New("--recursive needs --refactored")
		}
		return audit.Request{Mode: audit.ModeTree}, nil
	default:
		if cfg.Audit.Refactored == "" {
			return audit.Request{}, errors.New("--refactored is required")
		}
		if info, err := os.Stat(cfg.Audit.Refactored); err == nil && info.IsDir() {
			return audit.Request{}, fmt.Errorf("%s is a directory; use --recursive", cfg.Audit.Refactored)
		}
		return audit.Request{
			Mode: audit.ModePair,
			Pair: audit.Pair{
				Original:   cfg.Audit.Original,
				Refactored: cfg.Audit.Refactored,
				Test:       cfg.Audit.Tests,
			},
		}, nil
	}
}

func runAuditCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyAuditFlags(c, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	req, err := auditRequest(c, cfg)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := audit.FromConfig(cfg, logger, audit.WithProgress(progress.Factory(!c.Bool("no-progress"))))
	if err != nil {
		return err
	}
	opts := audit.RenderOptions{
		MissingTests: c.Bool("missing-tests"),
		Complexity:   !cfg.Audit.IgnoreComplexity,
		Thresholds:   a.Thresholds(),
		Top:          c.Int("top"),
	}

	if err := auditOnce(c, a, cfg, req, opts); err != nil {
		return err
	}
	if !c.Bool("watch") {
		return nil
	}
	return watchAudit(c, a, cfg, req, opts, logger)
}

// auditOnce runs one audit, writes the ledger and prints the report.
func auditOnce(c *cli.Context, a *audit.Assembler, cfg *config.Config, req audit.Request, opts audit.RenderOptions) error {
	res, err := a.Run(c.Context, req)
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		label := "warning"
		if w.Skipped {
			label = "skipped"
		}
		color.New(color.FgYellow).Fprintf(os.Stderr, "%s: %s\n", label, w)
	}

	if cfg.Audit.Ledger != "" {
		path := a.Normalizer().Abs(cfg.Audit.Ledger)
		written, err := ledger.Save(path, res.Ledger)
		if err != nil {
			return fmt.Errorf("write ledger: %w", err)
		}
		if !written {
			fmt.Fprintf(os.Stderr, "ledger unchanged: %s\n", path)
		}
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(audit.Render(res, opts))
}

// watchRoots lists the directories whose changes trigger a re-audit.
func watchRoots(cfg *config.Config, req audit.Request) []string {
	var roots []string
	add := func(p string) {
		if p == "" {
			return
		}
		if req.Mode == audit.ModePair {
			p = filepath.Dir(p)
		}
		for _, r := range roots {
			if r == p {
				return
			}
		}
		roots = append(roots, p)
	}
	add(cfg.Audit.Refactored)
	add(cfg.Audit.Original)
	add(cfg.Audit.Tests)
	return roots
}

func watchAudit(c *cli.Context, a *audit.Assembler, cfg *config.Config, req audit.Request, opts audit.RenderOptions, logger *zap.Logger) error {
	w, err := watch.NewWatcher(watchRoots(cfg, req), cfg, 0, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	w.SetCallback(func(ctx context.Context, paths []string) {
		color.Cyan("\n%d file(s) changed, re-auditing", len(paths))
		if err := auditOnce(c, a, cfg, req, opts); err != nil {
			color.Red("audit failed: %v", err)
		}
	})
	color.Cyan("Watching for changes. Press Ctrl+C to stop")

	err = w.Start(c.Context)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

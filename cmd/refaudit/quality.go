package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/panbanda/refaudit/pkg/audit"
	"github.com/urfave/cli/v2"
)

func qualityCmd() *cli.Command {
	return &cli.Command{
		Name:  "quality",
		Usage: "Run the quality tools and print the merged findings",
		Description: `Runs each enabled quality plugin once, parses its report and prints the
findings keyed by file. No audit is performed and no ledger is written.

Examples:
  refaudit quality
  refaudit quality --plugins flake8,mypy -f json`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Usage: "Repository root the tools run in"},
			&cli.StringSliceFlag{Name: "plugins", Usage: "Plugins to run (default: all configured)"},
			&cli.StringFlag{Name: "report-dir", Usage: "Directory for generated reports"},
		},
		Action: runQualityCmd,
	}
}

func runQualityCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("root") {
		root, err := filepath.Abs(c.String("root"))
		if err != nil {
			return fmt.Errorf("--root: %w", err)
		}
		cfg.Audit.Root = root
	}
	if c.IsSet("plugins") {
		cfg.Quality.Plugins = c.StringSlice("plugins")
	}
	if c.IsSet("report-dir") {
		cfg.Quality.ReportDir = c.String("report-dir")
	}
	cfg.Quality.Enabled = true
	cfg.Audit.Union = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := audit.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	res, err := a.Run(c.Context, audit.Request{Mode: audit.ModeQuality})
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		color.New(color.FgYellow).Fprintf(os.Stderr, "warning: %s\n", w)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(audit.Render(res, audit.RenderOptions{}))
}

package quality

import (
	"path/filepath"
	"strings"

	"github.com/panbanda/refaudit/internal/execshell"
	"github.com/panbanda/refaudit/pkg/config"
	"github.com/panbanda/refaudit/pkg/pathnorm"
)

// defaultCommands are the tool invocations used when the config does not
// override them. They run from the repository root.
var defaultCommands = map[string][]string{
	"black":      {"black", "--check", "."},
	"flake8":     {"flake8", "."},
	"mypy":       {"mypy", "."},
	"pydocstyle": {"pydocstyle", "."},
	"coverage":   {"coverage", "xml", "-o", "{report}"},
}

// Registry returns the enabled plugins in their fixed order: black, flake8,
// mypy, pydocstyle, coverage. The coverage plugin shares its report with
// the coverage mapper (audit.coverage).
func Registry(cfg *config.Config, runner execshell.Runner, norm *pathnorm.Normalizer) []Plugin {
	root := norm.Root()
	var plugins []Plugin

	for _, name := range config.PluginNames {
		if !cfg.PluginEnabled(name) {
			continue
		}
		tool := cfg.Quality.Tools[name]
		report := tool.Report
		if report == "" {
			if name == "coverage" {
				report = cfg.Audit.Coverage
			} else {
				report = filepath.Join(cfg.Quality.ReportDir, name+".txt")
			}
		}
		report = absolute(root, report)

		command := tool.Command
		if len(command) == 0 {
			command = defaultCommand(name, report)
		}

		if name == "coverage" {
			plugins = append(plugins, &coveragePlugin{report: report, dir: root, command: command, runner: runner})
			continue
		}

		plugins = append(plugins, &textTool{
			name:    name,
			report:  report,
			dir:     root,
			command: command,
			runner:  runner,
			okCodes: map[int]bool{0: true, 1: true},
			stderr:  name == "black",
			parse:   parsers[name],
		})
	}
	return plugins
}

// defaultCommand returns the built-in invocation of name. The coverage
// export matches the report format the mapper will read back.
func defaultCommand(name, report string) []string {
	if name == "coverage" && strings.EqualFold(filepath.Ext(report), ".json") {
		return []string{"coverage", "json", "-o", "{report}"}
	}
	return defaultCommands[name]
}

var parsers = map[string]lineParser{
	"black":      parseBlack,
	"flake8":     parseFlake8,
	"mypy":       parseMypy,
	"pydocstyle": parsePydocstyle,
}

func absolute(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

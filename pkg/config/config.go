package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration options for refaudit.
type Config struct {
	// Audit inputs and outputs
	Audit AuditConfig `koanf:"audit" toml:"audit"`

	// Thresholds for complexity warnings
	Thresholds ThresholdConfig `koanf:"thresholds" toml:"thresholds"`

	// File exclusion patterns for tree mode
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude"`

	// Test module discovery
	Tests TestsConfig `koanf:"tests" toml:"tests"`

	// Quality tool plugins
	Quality QualityConfig `koanf:"quality" toml:"quality"`

	// Worker pool and subprocess limits
	Execution ExecutionConfig `koanf:"execution" toml:"execution"`

	// Parse cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`

	// Logging settings
	Logging LoggingConfig `koanf:"logging" toml:"logging"`
}

// AuditConfig names the trees being compared and the ledger written.
type AuditConfig struct {
	Root       string `koanf:"root" toml:"root"`
	Original   string `koanf:"original" toml:"original"`
	Refactored string `koanf:"refactored" toml:"refactored"`
	Tests      string `koanf:"tests" toml:"tests"`
	Coverage   string `koanf:"coverage" toml:"coverage"`
	Ledger     string `koanf:"ledger" toml:"ledger"`
	// Union keeps records of a prior ledger for files not recomputed.
	Union bool `koanf:"union" toml:"union"`
	// IgnoreComplexity omits the complexity sub-ledger.
	IgnoreComplexity bool `koanf:"ignore_complexity" toml:"ignore_complexity"`
}

// ThresholdConfig defines complexity thresholds. Zero disables a level.
type ThresholdConfig struct {
	ComplexityWarn  int `koanf:"complexity_warn" toml:"complexity_warn"`
	ComplexityError int `koanf:"complexity_error" toml:"complexity_error"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns []string `koanf:"patterns" toml:"patterns"`
	// Extensions lists the audited source extensions; other files are excluded.
	Extensions []string `koanf:"extensions" toml:"extensions"`
	Dirs       []string `koanf:"dirs" toml:"dirs"`
	Gitignore  bool     `koanf:"gitignore" toml:"gitignore"`
}

// TestsConfig controls how a source file's test module is located.
// Templates are tried in order relative to the tests root; {dir} is the
// source file's directory within its tree and {name} its base name without
// extension.
type TestsConfig struct {
	Templates []string `koanf:"templates" toml:"templates"`
}

// QualityConfig controls the quality tool plugins.
type QualityConfig struct {
	Enabled bool `koanf:"enabled" toml:"enabled"`
	// Plugins names the enabled plugins. They always run in the fixed
	// registry order regardless of the order listed here.
	Plugins []string `koanf:"plugins" toml:"plugins"`
	// ReportDir holds reports generated by the merge driver.
	ReportDir string                `koanf:"report_dir" toml:"report_dir"`
	Tools     map[string]ToolConfig `koanf:"tools" toml:"tools"`
}

// ToolConfig overrides how one quality plugin invokes its tool.
type ToolConfig struct {
	// Command replaces the tool invocation; the first element is the executable.
	Command []string `koanf:"command" toml:"command"`
	// Report replaces the report location.
	Report string `koanf:"report" toml:"report"`
}

// ExecutionConfig controls concurrency and subprocess limits.
type ExecutionConfig struct {
	// Workers is the tree-mode worker count; 0 means 2×NumCPU, 1 is sequential.
	Workers int `koanf:"workers" toml:"workers"`
	// ToolTimeoutSeconds bounds each external tool run; 0 disables the limit.
	ToolTimeoutSeconds int `koanf:"tool_timeout_seconds" toml:"tool_timeout_seconds"`
}

// CacheConfig controls the parse cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	// TTLHours expires entries older than this; 0 keeps them forever.
	TTLHours int `koanf:"ttl_hours" toml:"ttl_hours"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format"` // json, text, markdown, toon, yaml
	Color  bool   `koanf:"color" toml:"color"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level  string `koanf:"level" toml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" toml:"format"` // console, structured
}

// PluginNames lists the quality plugins in their fixed run order.
var PluginNames = []string{"black", "flake8", "mypy", "pydocstyle", "coverage"}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Audit: AuditConfig{
			Root:     ".",
			Coverage: "coverage.xml",
			Ledger:   "audit_ledger.json",
		},
		Thresholds: ThresholdConfig{
			ComplexityWarn:  10,
			ComplexityError: 20,
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"test_*.py",
				"*_test.py",
				"conftest.py",
			},
			Extensions: []string{
				".py",
			},
			Dirs: []string{
				".git",
				".refaudit",
				"__pycache__",
				".venv",
				"venv",
				".tox",
				".mypy_cache",
				".pytest_cache",
				"node_modules",
				"build",
				"dist",
			},
			Gitignore: true,
		},
		Tests: TestsConfig{
			Templates: []string{
				"{dir}/test_{name}.py",
				"test_{name}.py",
				"{dir}/{name}_test.py",
				"{name}_test.py",
			},
		},
		Quality: QualityConfig{
			Enabled:   true,
			Plugins:   append([]string{}, PluginNames...),
			ReportDir: ".refaudit/reports",
			Tools:     map[string]ToolConfig{},
		},
		Execution: ExecutionConfig{
			Workers:            0,
			ToolTimeoutSeconds: 300,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Dir:      ".refaudit/cache",
			TTLHours: 168,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a file, layered over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, nil
}

// configNames are the file names searched for, in priority order.
var configNames = []string{
	"refaudit.toml",
	"refaudit.yaml",
	"refaudit.yml",
	"refaudit.json",
	".refaudit.toml",
	".refaudit.yaml",
	".refaudit.yml",
	".refaudit.json",
}

// Find returns the first config file found in dir or dir/.refaudit, or "".
func Find(dir string) string {
	for _, d := range []string{dir, filepath.Join(dir, ".refaudit")} {
		for _, name := range configNames {
			path := filepath.Join(d, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault loads the config found in the current directory, or returns
// the defaults when there is none. The second result is the file used.
func LoadOrDefault() (*Config, string, error) {
	path := Find(".")
	if path == "" {
		return DefaultConfig(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

var (
	outputFormats = map[string]bool{"json": true, "text": true, "markdown": true, "toon": true, "yaml": true}
	logLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats    = map[string]bool{"console": true, "structured": true}
)

// Validate checks the config for values refaudit cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Thresholds.ComplexityWarn < 0 || c.Thresholds.ComplexityError < 0 {
		errs = append(errs, errors.New("thresholds must not be negative"))
	}
	if c.Thresholds.ComplexityWarn > 0 && c.Thresholds.ComplexityError > 0 &&
		c.Thresholds.ComplexityWarn > c.Thresholds.ComplexityError {
		errs = append(errs, fmt.Errorf("thresholds.complexity_warn (%d) exceeds thresholds.complexity_error (%d)",
			c.Thresholds.ComplexityWarn, c.Thresholds.ComplexityError))
	}
	if c.Execution.Workers < 0 {
		errs = append(errs, fmt.Errorf("execution.workers must not be negative, got %d", c.Execution.Workers))
	}
	if c.Execution.ToolTimeoutSeconds < 0 {
		errs = append(errs, errors.New("execution.tool_timeout_seconds must not be negative"))
	}
	if c.Cache.TTLHours < 0 {
		errs = append(errs, errors.New("cache.ttl_hours must not be negative"))
	}
	if !outputFormats[c.Output.Format] {
		errs = append(errs, fmt.Errorf("unsupported output.format %q", c.Output.Format))
	}
	if !logLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("unsupported logging.level %q", c.Logging.Level))
	}
	if !logFormats[c.Logging.Format] {
		errs = append(errs, fmt.Errorf("unsupported logging.format %q", c.Logging.Format))
	}
	for _, tmpl := range c.Tests.Templates {
		if !strings.Contains(tmpl, "{name}") {
			errs = append(errs, fmt.Errorf("tests template %q lacks {name}", tmpl))
		}
	}
	for _, name := range c.Quality.Plugins {
		if !knownPlugin(name) {
			errs = append(errs, fmt.Errorf("unknown quality plugin %q", name))
		}
	}
	for name := range c.Quality.Tools {
		if !knownPlugin(name) {
			errs = append(errs, fmt.Errorf("unknown quality tool %q", name))
		}
	}
	return errors.Join(errs...)
}

func knownPlugin(name string) bool {
	for _, n := range PluginNames {
		if n == name {
			return true
		}
	}
	return false
}

// WorkerCount resolves the configured worker count.
func (c *Config) WorkerCount() int {
	if c.Execution.Workers > 0 {
		return c.Execution.Workers
	}
	return 2 * runtime.NumCPU()
}

// ToolTimeout returns the external tool timeout.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Execution.ToolTimeoutSeconds) * time.Second
}

// PluginEnabled reports whether the named quality plugin should run.
func (c *Config) PluginEnabled(name string) bool {
	if !c.Quality.Enabled {
		return false
	}
	for _, n := range c.Quality.Plugins {
		if n == name {
			return true
		}
	}
	return false
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	path = filepath.ToSlash(path)

	// Check directory exclusions
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, "/"+dir+"/") || strings.HasPrefix(path, dir+"/") {
			return true
		}
	}

	// Only configured extensions are audited
	if len(c.Exclude.Extensions) > 0 {
		ext := filepath.Ext(path)
		found := false
		for _, want := range c.Exclude.Extensions {
			if ext == want {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}

	// Check pattern exclusions
	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}

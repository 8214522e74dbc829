package mcpserver

import (
	"bytes"
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/panbanda/refaudit/internal/output"
	"github.com/panbanda/refaudit/pkg/audit"
	"github.com/panbanda/refaudit/pkg/config"
)

// AuditInput is the base input for all audit tools.
type AuditInput struct {
	Root     string `json:"root,omitempty" jsonschema:"Repository root. Ledger keys are relative to it. Defaults to the server's working directory."`
	Coverage string `json:"coverage,omitempty" jsonschema:"Coverage report (coverage.py XML or JSON). Defaults to the configured report."`
	Quality  *bool  `json:"quality,omitempty" jsonschema:"Run and merge the quality tools. Defaults to the server configuration."`
	Format   string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or yaml."`
}

// PairInput names the files of a single-pair audit.
type PairInput struct {
	AuditInput
	Original         string `json:"original,omitempty" jsonschema:"Original module. Omit for a new file."`
	Refactored       string `json:"refactored" jsonschema:"Refactored module to audit."`
	Test             string `json:"test,omitempty" jsonschema:"Test module whose calls count as coverage of public methods."`
	IgnoreComplexity bool   `json:"ignore_complexity,omitempty" jsonschema:"Omit the complexity sub-ledger."`
}

// TreeInput names the trees of a tree audit.
type TreeInput struct {
	AuditInput
	Original         string `json:"original,omitempty" jsonschema:"Original tree. Omit to treat every file as new."`
	Refactored       string `json:"refactored" jsonschema:"Refactored tree."`
	Tests            string `json:"tests,omitempty" jsonschema:"Root searched for test modules. Defaults to the refactored tree."`
	IgnoreComplexity bool   `json:"ignore_complexity,omitempty" jsonschema:"Omit the complexity sub-ledger."`
}

// ChangedInput selects a changed-files audit.
type ChangedInput struct {
	TreeInput
	Base string `json:"base,omitempty" jsonschema:"Base revision; changes since its merge base with HEAD are audited. Default main."`
}

// QualityInput selects the quality plugins to merge.
type QualityInput struct {
	AuditInput
	Plugins []string `json:"plugins,omitempty" jsonschema:"Plugins to run: black, flake8, mypy, pydocstyle, coverage. Defaults to the configured set."`
}

// toolOutput is what every tool returns.
type toolOutput struct {
	Ledger   any            `json:"ledger"`
	Warnings []string       `json:"warnings,omitempty"`
	Summary  *audit.Summary `json:"summary,omitempty"`
}

func getFormat(input AuditInput) output.Format {
	switch input.Format {
	case "json":
		return output.FormatJSON
	case "yaml", "yml":
		return output.FormatYAML
	default:
		return output.FormatTOON
	}
}

// configFor copies the server config and applies the per-call overrides.
func (s *Server) configFor(input AuditInput) *config.Config {
	cfg := *s.config
	if input.Root != "" {
		cfg.Audit.Root = input.Root
	}
	if input.Coverage != "" {
		cfg.Audit.Coverage = input.Coverage
	}
	if input.Quality != nil {
		cfg.Quality.Enabled = *input.Quality
	}
	// tool calls never carry a prior ledger forward
	cfg.Audit.Union = false
	return &cfg
}

func (s *Server) run(ctx context.Context, cfg *config.Config, req audit.Request, format output.Format) (*mcp.CallToolResult, any, error) {
	a, err := audit.FromConfig(cfg, s.logger)
	if err != nil {
		return toolError(err.Error())
	}
	res, err := a.Run(ctx, req)
	if err != nil {
		return toolError(err.Error())
	}

	out := toolOutput{Ledger: res.Ledger, Summary: &res.Summary}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	if req.Mode == audit.ModeQuality {
		out.Summary = nil
	}
	return toolResult(out, format)
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	var buf bytes.Buffer
	if err := output.Encode(&buf, format, data); err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: buf.String()},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

// Tool handlers

func (s *Server) handleAuditPair(ctx context.Context, _ *mcp.CallToolRequest, input PairInput) (*mcp.CallToolResult, any, error) {
	if input.Refactored == "" {
		return toolError("refactored is required")
	}
	cfg := s.configFor(input.AuditInput)
	cfg.Audit.IgnoreComplexity = input.IgnoreComplexity
	return s.run(ctx, cfg, audit.Request{
		Mode: audit.ModePair,
		Pair: audit.Pair{Original: input.Original, Refactored: input.Refactored, Test: input.Test},
	}, getFormat(input.AuditInput))
}

func (s *Server) treeConfig(input TreeInput) *config.Config {
	cfg := s.configFor(input.AuditInput)
	cfg.Audit.Original = input.Original
	cfg.Audit.Refactored = input.Refactored
	cfg.Audit.Tests = input.Tests
	cfg.Audit.IgnoreComplexity = input.IgnoreComplexity
	return cfg
}

func (s *Server) handleAuditTree(ctx context.Context, _ *mcp.CallToolRequest, input TreeInput) (*mcp.CallToolResult, any, error) {
	if input.Refactored == "" {
		return toolError("refactored is required")
	}
	return s.run(ctx, s.treeConfig(input), audit.Request{Mode: audit.ModeTree}, getFormat(input.AuditInput))
}

func (s *Server) handleAuditChanged(ctx context.Context, _ *mcp.CallToolRequest, input ChangedInput) (*mcp.CallToolResult, any, error) {
	if input.Refactored == "" {
		return toolError("refactored is required")
	}
	base := input.Base
	if base == "" {
		base = "main"
	}
	return s.run(ctx, s.treeConfig(input.TreeInput), audit.Request{Mode: audit.ModeChanged, Base: base}, getFormat(input.AuditInput))
}

func (s *Server) handleQualityMerge(ctx context.Context, _ *mcp.CallToolRequest, input QualityInput) (*mcp.CallToolResult, any, error) {
	cfg := s.configFor(input.AuditInput)
	cfg.Quality.Enabled = true
	if len(input.Plugins) > 0 {
		probe := *cfg
		probe.Quality.Plugins = input.Plugins
		if err := probe.Validate(); err != nil {
			return toolError(err.Error())
		}
		cfg.Quality.Plugins = input.Plugins
	}
	return s.run(ctx, cfg, audit.Request{Mode: audit.ModeQuality}, getFormat(input.AuditInput))
}

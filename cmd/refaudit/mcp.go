package main

import (
	"github.com/panbanda/refaudit/internal/mcpserver"
	"github.com/urfave/cli/v2"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio that exposes refaudit's audits as tools.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "refaudit": {
        "command": "refaudit",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - audit_pair      One original/refactored module pair
  - audit_tree      Every module of an original tree
  - audit_changed   Modules changed since a base revision
  - quality_merge   Quality tool findings by file`,
		Action: runMCPCmd,
	}
}

func runMCPCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// stdout carries the protocol; logs stay on stderr
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return mcpserver.NewServer(version, cfg, logger).Run(c.Context)
}

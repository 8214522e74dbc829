// Package mcpserver exposes refaudit's audits as MCP tools over stdio.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/panbanda/refaudit/pkg/config"
	"go.uber.org/zap"
)

// Server wraps the MCP server and registers the audit tools.
type Server struct {
	server *mcp.Server
	config *config.Config
	logger *zap.Logger
}

// NewServer creates an MCP server whose tools start from cfg. Tool inputs
// override the audit roots per call.
func NewServer(version string, cfg *config.Config, logger *zap.Logger) *Server {
	if version == "" {
		version = "dev"
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "refaudit",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, config: cfg, logger: logger}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "audit_pair",
		Description: describeAuditPair(),
	}, s.handleAuditPair)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "audit_tree",
		Description: describeAuditTree(),
	}, s.handleAuditTree)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "audit_changed",
		Description: describeAuditChanged(),
	}, s.handleAuditChanged)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "quality_merge",
		Description: describeQualityMerge(),
	}, s.handleQualityMerge)
}

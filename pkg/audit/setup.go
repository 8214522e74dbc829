package audit

import (
	"fmt"

	"github.com/panbanda/refaudit/internal/cache"
	"github.com/panbanda/refaudit/internal/execshell"
	"github.com/panbanda/refaudit/pkg/ast/treesitter"
	"github.com/panbanda/refaudit/pkg/config"
	"github.com/panbanda/refaudit/pkg/pathnorm"
	"github.com/panbanda/refaudit/pkg/quality"
	"go.uber.org/zap"
)

// FromConfig builds an assembler for cfg.Audit.Root with the parse cache
// and, when enabled, the quality plugins wired in. Extra options are
// applied last.
func FromConfig(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Assembler, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	root := cfg.Audit.Root
	if root == "" {
		root = "."
	}
	norm, err := pathnorm.New(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}

	c, err := cache.New(absolute(norm, cfg.Cache.Dir), cfg.Cache.TTLHours, cfg.Cache.Enabled)
	if err != nil {
		logger.Warn("parse cache disabled", zap.Error(err))
		c = nil
	} else if n, err := c.Prune(); err != nil {
		logger.Debug("could not prune parse cache", zap.Error(err))
	} else if n > 0 {
		logger.Debug("pruned parse cache", zap.Int("removed", n))
	}
	base := []Option{
		WithLogger(logger),
		WithParser(cache.NewParser(treesitter.New(), c, logger)),
	}
	if cfg.Quality.Enabled {
		runner := execshell.NewOSRunner(cfg.ToolTimeout(), logger)
		plugins := quality.Registry(cfg, runner, norm)
		if len(plugins) > 0 {
			base = append(base, WithDriver(quality.NewDriver(plugins, logger)))
		}
	}
	return New(cfg, norm, append(base, opts...)...), nil
}

func absolute(norm *pathnorm.Normalizer, p string) string {
	if p == "" {
		return ""
	}
	return norm.Abs(p)
}

package cache

import (
	"encoding/json"

	"github.com/panbanda/refaudit/pkg/ast"
	"go.uber.org/zap"
)

// schemaVersion is mixed into every content hash; bump it when the shape
// of ast.Module or the parser's conversion changes.
const schemaVersion = "ast-v1"

// Parser wraps an ast.Parser and serves repeated parses of unchanged
// content from the cache. Parse errors are never cached.
type Parser struct {
	inner  ast.Parser
	cache  *Cache
	logger *zap.Logger
}

var _ ast.Parser = (*Parser)(nil)

// NewParser returns a caching parser. With a nil or disabled cache it
// simply delegates to inner.
func NewParser(inner ast.Parser, c *Cache, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{inner: inner, cache: c, logger: logger}
}

// Parse returns the cached module for src when present, otherwise parses
// and stores it.
func (p *Parser) Parse(path string, src []byte) (*ast.Module, error) {
	if !p.cache.Enabled() {
		return p.inner.Parse(path, src)
	}

	hash := HashBytes(append([]byte(schemaVersion+"\x00"), src...))
	if data, ok := p.cache.Lookup(path, hash); ok {
		var root ast.Node
		if err := json.Unmarshal(data, &root); err == nil {
			return &ast.Module{Path: path, Root: &root}, nil
		}
	}

	mod, err := p.inner.Parse(path, src)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(mod.Root)
	if err == nil {
		err = p.cache.Store(path, hash, data)
	}
	if err != nil {
		p.logger.Debug("could not cache parse result", zap.String("path", path), zap.Error(err))
	}
	return mod, nil
}

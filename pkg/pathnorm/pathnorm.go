// Package pathnorm canonicalizes file paths into repository-relative keys.
//
// Every sub-ledger of an audit (method diff, missing tests, complexity,
// quality findings) is keyed by the normalized form, so paths reported by
// different tools from different working directories line up on one key.
package pathnorm

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalizer converts paths to forward-slash keys relative to a repository root.
type Normalizer struct {
	root string
}

// New creates a normalizer rooted at root. Relative roots are made absolute
// and symlinks are resolved when possible.
func New(root string) (*Normalizer, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Normalizer{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute repository root.
func (n *Normalizer) Root() string {
	return n.root
}

// Normalize returns the canonical key for p.
//
// Absolute paths inside the root become root-relative; absolute paths
// outside it stay absolute. Relative paths are taken as already relative to
// the root. Separators are always forward slashes and "./" prefixes are dropped.
func (n *Normalizer) Normalize(p string) string {
	if p == "" {
		return ""
	}
	p = ToSlash(p)

	if isAbs(p) {
		root := ToSlash(n.root)
		cleaned := path.Clean(p)
		if resolved, err := filepath.EvalSymlinks(filepath.FromSlash(cleaned)); err == nil {
			cleaned = ToSlash(resolved)
		}
		if rel, ok := within(cleaned, root); ok {
			return rel
		}
		return cleaned
	}

	cleaned := path.Clean(p)
	cleaned = strings.TrimPrefix(cleaned, "./")
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// Abs returns the absolute filesystem path for a normalized key.
func (n *Normalizer) Abs(key string) string {
	if isAbs(key) {
		return filepath.FromSlash(key)
	}
	return filepath.Join(n.root, filepath.FromSlash(key))
}

// Inside reports whether p, resolved against the root when relative, lies
// inside the repository root.
func (n *Normalizer) Inside(p string) bool {
	p = ToSlash(p)
	if !isAbs(p) {
		p = ToSlash(filepath.Join(n.root, filepath.FromSlash(p)))
	}
	_, ok := within(path.Clean(p), ToSlash(n.root))
	return ok
}

// ToSlash converts both Windows and native separators to forward slashes.
func ToSlash(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}

// Components splits p into its non-empty, non-"." path components.
func Components(p string) []string {
	parts := strings.Split(ToSlash(p), "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

// CommonSuffix returns the number of trailing path components a and b share.
func CommonSuffix(a, b string) int {
	ac := Components(a)
	bc := Components(b)
	n := 0
	for n < len(ac) && n < len(bc) && ac[len(ac)-1-n] == bc[len(bc)-1-n] {
		n++
	}
	return n
}

func isAbs(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	// drive-letter paths such as C:/src/app.py
	return len(p) >= 3 && p[1] == ':' && p[2] == '/'
}

func within(p, root string) (string, bool) {
	if p == root {
		return "", true
	}
	prefix := strings.TrimSuffix(root, "/") + "/"
	if strings.HasPrefix(p, prefix) {
		return strings.TrimPrefix(p, prefix), true
	}
	return "", false
}

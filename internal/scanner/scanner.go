// Package scanner discovers auditable source files under a root.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/panbanda/refaudit/pkg/config"
)

// Scanner finds auditable files in a directory tree.
type Scanner struct {
	config   *config.Config
	matchers []gitignore.Matcher
	loaded   string
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// findGitRoot walks up from start looking for a .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadExcludePatterns combines the configured patterns and directories
// with the repository's .gitignore files into one matcher.
func (s *Scanner) loadExcludePatterns(root string) {
	s.matchers = nil
	s.loaded = root
	var patterns []gitignore.Pattern

	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}
	for _, dir := range s.config.Exclude.Dirs {
		patterns = append(patterns, gitignore.ParsePattern(strings.TrimSuffix(dir, "/")+"/", nil))
	}

	if s.config.Exclude.Gitignore {
		if gitRoot := findGitRoot(root); gitRoot != "" {
			if gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil); err == nil {
				patterns = append(patterns, rebase(gitPatterns, gitRoot, root)...)
			}
		}
	}

	if len(patterns) > 0 {
		s.matchers = append(s.matchers, gitignore.NewMatcher(patterns))
	}
}

// rebase keeps gitignore patterns usable when the scan root sits below the
// git root: paths are matched relative to the scan root, so the patterns
// are matched against the root's prefix as well.
func rebase(patterns []gitignore.Pattern, gitRoot, root string) []gitignore.Pattern {
	rel, err := filepath.Rel(gitRoot, root)
	if err != nil || rel == "." {
		return patterns
	}
	prefix := strings.Split(filepath.ToSlash(rel), "/")
	out := make([]gitignore.Pattern, len(patterns))
	for i, p := range patterns {
		out[i] = prefixed{Pattern: p, prefix: prefix}
	}
	return out
}

type prefixed struct {
	gitignore.Pattern
	prefix []string
}

func (p prefixed) Match(path []string, isDir bool) gitignore.MatchResult {
	full := make([]string, 0, len(p.prefix)+len(path))
	full = append(full, p.prefix...)
	full = append(full, path...)
	return p.Pattern.Match(full, isDir)
}

// isExcluded checks if a root-relative path matches any exclusion pattern.
func (s *Scanner) isExcluded(path string, isDir bool) bool {
	if len(s.matchers) == 0 {
		return false
	}
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, m := range s.matchers {
		if m.Match(parts, isDir) {
			return true
		}
	}
	return false
}

// auditable reports whether path carries one of the audited extensions.
func (s *Scanner) auditable(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range s.config.Exclude.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// ScanDir recursively scans a directory for auditable files and returns
// their paths relative to root, sorted. Symlinks that escape the root are
// skipped.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.loadExcludePatterns(absRoot)

	files := make([]string, 0, 256)
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(absRoot, path)
		if relPath == "." {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if s.isExcluded(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.isExcluded(relPath, false) || !s.auditable(path) {
			return nil
		}
		files = append(files, filepath.ToSlash(relPath))
		return nil
	})

	sort.Strings(files)
	return files, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// ScanFile checks if a single file, given relative to root, should be audited.
func (s *Scanner) ScanFile(root, rel string) (bool, error) {
	info, err := os.Stat(filepath.Join(root, rel))
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if s.loaded != abs {
		s.loadExcludePatterns(abs)
	}

	dir := filepath.Dir(rel)
	for dir != "." && dir != "/" && dir != "" {
		if s.isExcluded(dir, true) {
			return false, nil
		}
		dir = filepath.Dir(dir)
	}
	if s.isExcluded(rel, false) {
		return false, nil
	}
	return s.auditable(rel), nil
}

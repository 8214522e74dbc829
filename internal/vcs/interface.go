// Package vcs provides the version control queries the audit needs.
package vcs

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// Repository provides access to git repository operations.
type Repository interface {
	// Head returns the hash of the HEAD commit.
	Head() (plumbing.Hash, error)
	// Resolve resolves a revision such as a branch, tag or hash.
	Resolve(rev string) (plumbing.Hash, error)
	// MergeBase returns the best common ancestor of two commits.
	MergeBase(a, b plumbing.Hash) (plumbing.Hash, error)
	// DiffNames returns the paths changed between two commits.
	DiffNames(from, to plumbing.Hash) ([]string, error)
	// WorktreeChanges returns paths that are staged, modified or untracked.
	WorktreeChanges() ([]string, error)
	// RepoPath returns the root path of the repository.
	RepoPath() string
}

// Opener opens git repositories.
type Opener interface {
	// PlainOpen opens an existing git repository.
	PlainOpen(path string) (Repository, error)
	// PlainOpenWithDetect opens a git repository, detecting .git in parent directories.
	PlainOpenWithDetect(path string) (Repository, error)
}

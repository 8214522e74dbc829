package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNoMergeBase is returned when two commits share no history.
var ErrNoMergeBase = errors.New("no common ancestor")

// GitOpener opens git repositories using go-git.
type GitOpener struct{}

// NewGitOpener creates a new GitOpener.
func NewGitOpener() *GitOpener {
	return &GitOpener{}
}

// PlainOpen opens an existing git repository.
func (o *GitOpener) PlainOpen(path string) (Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, err
	}
	return newGitRepository(repo, path), nil
}

// PlainOpenWithDetect opens a git repository, detecting .git in parent directories.
func (o *GitOpener) PlainOpenWithDetect(path string) (Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, err
	}
	return newGitRepository(repo, path), nil
}

// gitRepository wraps go-git Repository.
type gitRepository struct {
	repo *git.Repository
	root string
}

func newGitRepository(repo *git.Repository, fallback string) *gitRepository {
	root := fallback
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &gitRepository{repo: repo, root: root}
}

func (r *gitRepository) RepoPath() string {
	return r.root
}

func (r *gitRepository) Head() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return ref.Hash(), nil
}

func (r *gitRepository) Resolve(rev string) (plumbing.Hash, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %q: %w", rev, err)
	}
	return *h, nil
}

func (r *gitRepository) MergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	ca, err := r.repo.CommitObject(a)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	cb, err := r.repo.CommitObject(b)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, ErrNoMergeBase
	}
	return bases[0].Hash, nil
}

func (r *gitRepository) DiffNames(from, to plumbing.Hash) ([]string, error) {
	fromCommit, err := r.repo.CommitObject(from)
	if err != nil {
		return nil, err
	}
	toCommit, err := r.repo.CommitObject(to)
	if err != nil {
		return nil, err
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, err
	}
	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, c := range changes {
		if c.To.Name != "" {
			names = append(names, c.To.Name)
		} else if c.From.Name != "" {
			names = append(names, c.From.Name)
		}
	}
	return names, nil
}

func (r *gitRepository) WorktreeChanges() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	var names []string
	for path, s := range status {
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			names = append(names, path)
		}
	}
	return names, nil
}

// ChangedFiles returns the repository-relative paths changed on the current
// branch: everything committed since the merge base with base, plus staged,
// modified and untracked files in the worktree. Paths are slash separated,
// sorted and unique. Deleted paths are included; callers that need the
// file on disk must check for it.
func ChangedFiles(ctx context.Context, repo Repository, base string) ([]string, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("read HEAD: %w", err)
	}
	baseHash, err := repo.Resolve(base)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mb, err := repo.MergeBase(head, baseHash)
	if err != nil {
		return nil, fmt.Errorf("merge base of HEAD and %s: %w", base, err)
	}
	committed, err := repo.DiffNames(mb, head)
	if err != nil {
		return nil, fmt.Errorf("diff %s..HEAD: %w", mb, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	worktree, err := repo.WorktreeChanges()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}

	seen := make(map[string]bool, len(committed)+len(worktree))
	var out []string
	for _, names := range [][]string{committed, worktree} {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Default opener singleton
var defaultOpener Opener = NewGitOpener()

// DefaultOpener returns the default git opener.
func DefaultOpener() Opener {
	return defaultOpener
}

// SetDefaultOpener sets the default git opener (useful for testing).
func SetDefaultOpener(opener Opener) {
	defaultOpener = opener
}

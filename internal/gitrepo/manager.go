// Package gitrepo manages the git working copies that back each sandbox's
// project directory: cloning, branch listing, status, log, commit and diff
// summaries (C3, §4.3). It is grounded on go-git/go-git rather than
// shelling out to the git binary, matching how the wider example corpus
// (DataDog-datadog-agent, flightctl, teleport) embeds git operations.
package gitrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// Manager opens and operates on git repositories rooted under a sandbox's
// workspace path. One Manager instance is shared across sandboxes; repo
// access is serialized per path so concurrent terminal commands and API
// calls against the same working copy never race (§5).
type Manager struct {
	logger *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		logger: log.WithFields(zap.String("component", "gitrepo")),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	return l
}

// Clone clones a remote repository into dir, optionally authenticating
// with a token (from the OAuth vault, C10).
func (m *Manager) Clone(ctx context.Context, dir, remoteURL, token string) error {
	lock := m.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	opts := &git.CloneOptions{URL: remoteURL}
	if token != "" {
		opts.Auth = tokenAuth(token)
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return apperrors.Runtime(fmt.Sprintf("failed to clone %s", remoteURL), err)
	}
	return nil
}

// Init creates a fresh repository at dir (used when a sandbox's project
// has no remote, §4.5 auto-detection fallback).
func (m *Manager) Init(dir string) error {
	lock := m.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	if _, err := git.PlainInit(dir, false); err != nil {
		return apperrors.Runtime("failed to init repository", err)
	}
	return nil
}

func (m *Manager) open(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, apperrors.NotFound("repository", dir)
	}
	return repo, nil
}

// Branches lists local branches with their configured upstream, and marks
// the currently checked-out one (§4.3). Ahead/behind counts are not
// computed; Ahead and Behind are always 0.
func (m *Manager) Branches(dir string) ([]v1.Branch, error) {
	lock := m.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := m.open(dir)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil && err != plumbing.ErrReferenceNotFound {
		return nil, apperrors.Runtime("failed to resolve HEAD", err)
	}

	refs, err := repo.Branches()
	if err != nil {
		return nil, apperrors.Runtime("failed to list branches", err)
	}
	defer refs.Close()

	var branches []v1.Branch
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		b := v1.Branch{
			Name:      name,
			IsCurrent: head != nil && ref.Name() == head.Name(),
		}
		if cfg, cerr := repo.Config(); cerr == nil {
			if branchCfg, ok := cfg.Branches[name]; ok && branchCfg.Merge != "" {
				b.Upstream = branchCfg.Merge.Short()
			}
		}
		branches = append(branches, b)
		return nil
	})
	if err != nil {
		return nil, apperrors.Runtime("failed to iterate branches", err)
	}

	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// Status returns staged and unstaged file changes against the working
// tree (§4.3).
func (m *Manager) Status(dir string) (*v1.RepoStatus, error) {
	lock := m.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := m.open(dir)
	if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, apperrors.Runtime("failed to open worktree", err)
	}

	st, err := wt.Status()
	if err != nil {
		return nil, apperrors.Runtime("failed to compute status", err)
	}

	result := &v1.RepoStatus{}
	for path, s := range st {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			result.Staged = append(result.Staged, v1.FileDiffEntry{Status: statusToKind(s.Staging), Path: path})
		}
		if s.Worktree != git.Unmodified {
			result.Unstaged = append(result.Unstaged, v1.FileDiffEntry{Status: statusToKind(s.Worktree), Path: path})
		}
	}
	return result, nil
}

// Log returns the most recent n commits reachable from HEAD (§4.3).
func (m *Manager) Log(dir string, n int) ([]v1.Commit, error) {
	lock := m.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := m.open(dir)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, apperrors.Runtime("failed to resolve HEAD", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, apperrors.Runtime("failed to read log", err)
	}
	defer iter.Close()

	var commits []v1.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= n {
			return storerErrStop
		}
		commits = append(commits, v1.Commit{
			SHA:     c.Hash.String(),
			Author:  c.Author.Name,
			Message: c.Message,
			Time:    c.Author.When,
		})
		return nil
	})
	if err != nil && err != storerErrStop {
		return nil, apperrors.Runtime("failed to iterate log", err)
	}
	return commits, nil
}

// Commit stages all changes and creates a new commit (§4.3).
func (m *Manager) Commit(dir, message, authorName, authorEmail string) (string, error) {
	lock := m.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := m.open(dir)
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", apperrors.Runtime("failed to open worktree", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", apperrors.Runtime("failed to stage changes", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()},
	})
	if err != nil {
		return "", apperrors.Runtime("failed to commit", err)
	}
	return hash.String(), nil
}

// CheckoutBranch switches the working tree to branchName, creating it from
// HEAD when create is true (§4.3).
func (m *Manager) CheckoutBranch(dir, branchName string, create bool) error {
	lock := m.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := m.open(dir)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return apperrors.Runtime("failed to open worktree", err)
	}

	ref := plumbing.NewBranchReferenceName(branchName)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: create}); err != nil {
		return apperrors.Runtime(fmt.Sprintf("failed to checkout %s", branchName), err)
	}
	return nil
}

// DiffSummary groups the working tree's changed paths by kind against HEAD
// (§4.3), used by the dashboard's compact diff view.
func (m *Manager) DiffSummary(dir string) (*v1.DiffSummary, error) {
	status, err := m.Status(dir)
	if err != nil {
		return nil, err
	}

	summary := &v1.DiffSummary{}
	seen := make(map[string]bool)
	for _, entries := range [][]v1.FileDiffEntry{status.Staged, status.Unstaged} {
		for _, e := range entries {
			if seen[e.Path] {
				continue
			}
			seen[e.Path] = true
			switch e.Status {
			case v1.DiffAdded:
				summary.Added = append(summary.Added, e.Path)
			case v1.DiffModified:
				summary.Modified = append(summary.Modified, e.Path)
			case v1.DiffDeleted:
				summary.Deleted = append(summary.Deleted, e.Path)
			case v1.DiffRenamed:
				summary.Renamed = append(summary.Renamed, e.Path)
			}
		}
	}
	return summary, nil
}

func statusToKind(code git.StatusCode) v1.FileDiffStatus {
	switch code {
	case git.Added, git.Untracked:
		return v1.DiffAdded
	case git.Deleted:
		return v1.DiffDeleted
	case git.Renamed:
		return v1.DiffRenamed
	default:
		return v1.DiffModified
	}
}

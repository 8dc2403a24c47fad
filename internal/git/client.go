// Package git reads files from Git repositories that track the engine API dump.
//
// Repositories are cloned shallowly into memory without a worktree; file
// contents are read straight from the HEAD commit's tree.
package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/go-logr/logr"
)

// ErrReferenceNotFound is returned when the remote does not advertise the requested branch
var ErrReferenceNotFound = errors.New("reference not found on remote")

// Client defines the interface for Git operations
type Client interface {
	// Clone clones a repository with the given configuration
	Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error)

	// GetFileContent retrieves the content of a file from the cloned HEAD commit
	GetFileContent(repoInfo *RepositoryInfo, path string) ([]byte, error)

	// RemoteHead returns the commit hash the remote advertises for branch
	// (or for HEAD when branch is empty) without fetching any objects
	RemoteHead(ctx context.Context, url, branch string) (string, error)

	// Cleanup releases the in-memory repository
	Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error
}

// defaultGitClient implements Client using go-git
type defaultGitClient struct{}

// NewDefaultGitClient creates a new defaultGitClient
func NewDefaultGitClient() Client {
	return &defaultGitClient{}
}

// Clone clones a repository with the given configuration
func (*defaultGitClient) Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("repository URL is required")
	}
	logger := logr.FromContextOrDiscard(ctx)

	cloneOptions := &git.CloneOptions{
		URL:          config.URL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if config.Branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(config.Branch)
	}

	logger.V(1).Info("Cloning repository", "url", config.URL, "branch", config.Branch)

	// No worktree: files are read from the commit tree
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, cloneOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	repoInfo := &RepositoryInfo{
		Repository: repo,
		RemoteURL:  config.URL,
		CommitHash: ref.Hash().String(),
	}
	if ref.Name().IsBranch() {
		repoInfo.Branch = ref.Name().Short()
	}

	return repoInfo, nil
}

// GetFileContent retrieves the content of a file from the repository
func (*defaultGitClient) GetFileContent(repoInfo *RepositoryInfo, path string) ([]byte, error) {
	if repoInfo == nil || repoInfo.Repository == nil {
		return nil, fmt.Errorf("repository is nil")
	}

	ref, err := repoInfo.Repository.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	commit, err := repoInfo.Repository.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	file, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}

	return []byte(content), nil
}

// RemoteHead lists the remote's references, like git ls-remote
func (*defaultGitClient) RemoteHead(ctx context.Context, url, branch string) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{url},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to list remote references: %w", err)
	}

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	name := plumbing.HEAD
	if branch != "" {
		name = plumbing.NewBranchReferenceName(branch)
	}

	ref, ok := byName[name]
	// HEAD is usually advertised as a symbolic reference to the default branch
	for ok && ref.Type() == plumbing.SymbolicReference {
		ref, ok = byName[ref.Target()]
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrReferenceNotFound)
	}

	return ref.Hash().String(), nil
}

// Cleanup releases the in-memory repository
func (*defaultGitClient) Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error {
	if repoInfo == nil || repoInfo.Repository == nil {
		return fmt.Errorf("repository is nil")
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("Releasing cloned repository", "url", repoInfo.RemoteURL)
	repoInfo.Repository = nil
	return nil
}

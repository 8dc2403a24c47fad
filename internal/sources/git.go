package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/git"
)

// gitSourceHandler reads the class dump from a Git repository
type gitSourceHandler struct {
	gitClient git.Client
}

// NewGitSourceHandler creates a new Git source handler
func NewGitSourceHandler(gitClient git.Client) SourceHandler {
	return &gitSourceHandler{
		gitClient: gitClient,
	}
}

// Validate validates the Git source configuration
func (*gitSourceHandler) Validate(source *config.SourceConfig) error {
	if source == nil {
		return fmt.Errorf("source configuration cannot be nil")
	}
	if source.Git == nil {
		return fmt.Errorf("git configuration is required")
	}
	if source.Git.Repository == "" {
		return fmt.Errorf("git repository URL cannot be empty")
	}
	if source.Git.Path == "" {
		return fmt.Errorf("git path cannot be empty")
	}
	return nil
}

// CurrentVersion returns the commit the tracked branch points to, via ls-remote
func (h *gitSourceHandler) CurrentVersion(ctx context.Context, source *config.SourceConfig) (string, error) {
	if err := h.Validate(source); err != nil {
		return "", fmt.Errorf("source validation failed: %w", err)
	}

	head, err := h.gitClient.RemoteHead(ctx, source.Git.Repository, source.Git.Branch)
	if err != nil {
		return "", fmt.Errorf("failed to resolve remote head: %w", err)
	}
	return head, nil
}

// FetchClasses clones the repository and parses the dump file
func (h *gitSourceHandler) FetchClasses(ctx context.Context, source *config.SourceConfig) (*FetchResult, error) {
	if err := h.Validate(source); err != nil {
		return nil, fmt.Errorf("source validation failed: %w", err)
	}
	logger := logr.FromContextOrDiscard(ctx)
	gitSource := source.Git

	startTime := time.Now()
	logger.Info("Starting git clone", "repository", gitSource.Repository, "branch", gitSource.Branch)

	repoInfo, err := h.gitClient.Clone(ctx, &git.CloneConfig{
		URL:    gitSource.Repository,
		Branch: gitSource.Branch,
	})
	if err != nil {
		logger.Error(err, "Git clone failed", "repository", gitSource.Repository, "duration", time.Since(startTime).String())
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}
	defer func() {
		if cleanupErr := h.gitClient.Cleanup(ctx, repoInfo); cleanupErr != nil {
			logger.Error(cleanupErr, "Failed to cleanup repository")
		}
	}()

	logger.Info("Git clone completed",
		"repository", gitSource.Repository,
		"branch", repoInfo.Branch,
		"commit_sha", repoInfo.CommitHash,
		"duration", time.Since(startTime).String())

	data, err := h.gitClient.GetFileContent(repoInfo, gitSource.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s from repository: %w", gitSource.Path, err)
	}

	parsed, err := ParseClasses(data, source.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", gitSource.Path, err)
	}

	return NewFetchResult(parsed.Names, repoInfo.CommitHash, hashData(data), source.Format), nil
}

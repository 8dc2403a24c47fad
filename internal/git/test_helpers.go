package git

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TestingT is the part of testing.T the helpers need. GinkgoT() satisfies it too.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
	TempDir() string
}

// CreateTestRepo initializes a repository in a temporary directory whose HEAD
// points at branch, commits files to it and returns the repository path.
func CreateTestRepo(t TestingT, branch string, files map[string]string) string {
	t.Helper()

	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	if err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}

	if branch != "" {
		head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
		if err := repo.Storer.SetReference(head); err != nil {
			t.Fatalf("Failed to set HEAD to %s: %v", branch, err)
		}
	}

	CommitTestFiles(t, repoDir, files)
	return repoDir
}

// CommitTestFiles writes files into the repository at repoDir, commits them
// on the current branch and returns the new commit hash.
func CommitTestFiles(t TestingT, repoDir string, files map[string]string) string {
	t.Helper()

	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	workTree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}

	for filename, content := range files {
		filePath := filepath.Join(repoDir, filename)
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", filename, err)
		}
		if err := os.WriteFile(filePath, []byte(content), 0600); err != nil {
			t.Fatalf("Failed to write file %s: %v", filename, err)
		}
		if _, err := workTree.Add(filename); err != nil {
			t.Fatalf("Failed to add file %s: %v", filename, err)
		}
	}

	hash, err := workTree.Commit("Update dump", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test Author",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return hash.String()
}

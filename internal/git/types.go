package git

import (
	"github.com/go-git/go-git/v5"
)

// CloneConfig contains configuration for cloning a repository
type CloneConfig struct {
	// URL is the repository URL or local path to clone
	URL string

	// Branch is the specific branch to clone (optional, defaults to the remote HEAD)
	Branch string
}

// RepositoryInfo contains information about a cloned repository
type RepositoryInfo struct {
	// Repository is the go-git repository instance
	Repository *git.Repository

	// Branch is the branch that was cloned
	Branch string

	// RemoteURL is the remote repository URL
	RemoteURL string

	// CommitHash is the hash of the cloned HEAD commit
	CommitHash string
}

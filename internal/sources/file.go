package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/pinehappi/argon/internal/config"
)

// fileSourceHandler reads the class dump from a local file
type fileSourceHandler struct{}

// NewFileSourceHandler creates a new file source handler
func NewFileSourceHandler() SourceHandler {
	return &fileSourceHandler{}
}

// Validate validates the file source configuration
func (*fileSourceHandler) Validate(source *config.SourceConfig) error {
	if source == nil {
		return fmt.Errorf("source configuration cannot be nil")
	}
	if source.File == nil {
		return fmt.Errorf("file configuration is required")
	}
	if source.File.Path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	return nil
}

// CurrentVersion returns the SHA256 of the file content
func (h *fileSourceHandler) CurrentVersion(ctx context.Context, source *config.SourceConfig) (string, error) {
	data, err := h.readFile(ctx, source)
	if err != nil {
		return "", err
	}
	return hashData(data), nil
}

// FetchClasses reads and parses the file. The version is the content hash.
func (h *fileSourceHandler) FetchClasses(ctx context.Context, source *config.SourceConfig) (*FetchResult, error) {
	data, err := h.readFile(ctx, source)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseClasses(data, source.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source.File.Path, err)
	}

	hash := hashData(data)
	return NewFetchResult(parsed.Names, hash, hash, source.Format), nil
}

func (h *fileSourceHandler) readFile(ctx context.Context, source *config.SourceConfig) ([]byte, error) {
	if err := h.Validate(source); err != nil {
		return nil, fmt.Errorf("source validation failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// #nosec G304 -- the path comes from the workspace configuration
	data, err := os.ReadFile(source.File.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", source.File.Path, err)
	}
	return data, nil
}

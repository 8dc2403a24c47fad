package sources

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/pinehappi/argon/internal/config"
)

//go:generate mockgen -destination=mocks/mock_source_handler.go -package=mocks -source=types.go SourceHandler,SourceHandlerFactory

// SourceHandler is an interface with methods to fetch class lists from external sources
type SourceHandler interface {
	// FetchClasses retrieves the full class list from the source
	FetchClasses(ctx context.Context, source *config.SourceConfig) (*FetchResult, error)

	// CurrentVersion returns the version token the source currently serves,
	// without downloading the class list
	CurrentVersion(ctx context.Context, source *config.SourceConfig) (string, error)

	// Validate validates the source configuration
	Validate(source *config.SourceConfig) error
}

// FetchResult contains the result of a fetch operation
type FetchResult struct {
	// Classes are the unique class names in source order
	Classes []string

	// Version is the version token matching CurrentVersion for the same data
	Version string

	// Hash is the SHA256 hash of the raw payload
	Hash string

	// ClassCount is the number of classes found
	ClassCount int

	// Format indicates the format of the source payload
	Format string
}

// NewFetchResult creates a new FetchResult
func NewFetchResult(classes []string, version, hash, format string) *FetchResult {
	return &FetchResult{
		Classes:    classes,
		Version:    version,
		Hash:       hash,
		ClassCount: len(classes),
		Format:     format,
	}
}

// SourceHandlerFactory creates source handlers based on source type
type SourceHandlerFactory interface {
	// CreateHandler creates a source handler for the given source type
	CreateHandler(sourceType string) (SourceHandler, error)
}

// hashData returns the hex SHA256 of data
func hashData(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

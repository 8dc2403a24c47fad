package sync

import (
	"context"

	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/sources"
	"github.com/pinehappi/argon/internal/versions"
)

// VersionChangeDetector detects whether the remote serves a different class list
type VersionChangeDetector interface {
	// IsVersionChanged compares the source's current version with the marker.
	// It returns the remote version alongside the decision.
	IsVersionChanged(ctx context.Context, source *config.SourceConfig, marker classdb.Marker) (bool, string, error)
}

// defaultVersionChangeDetector implements VersionChangeDetector using source handlers
type defaultVersionChangeDetector struct {
	sourceHandlerFactory sources.SourceHandlerFactory
}

// NewVersionChangeDetector creates a detector that queries sources created by factory
func NewVersionChangeDetector(factory sources.SourceHandlerFactory) VersionChangeDetector {
	return &defaultVersionChangeDetector{sourceHandlerFactory: factory}
}

// IsVersionChanged checks the remote version token against the marker
func (d *defaultVersionChangeDetector) IsVersionChanged(
	ctx context.Context, source *config.SourceConfig, marker classdb.Marker,
) (bool, string, error) {
	// Nothing to compare against
	if marker.Version == "" {
		return true, "", nil
	}

	sourceHandler, err := d.sourceHandlerFactory.CreateHandler(source.Type)
	if err != nil {
		return true, "", err
	}

	remoteVersion, err := sourceHandler.CurrentVersion(ctx, source)
	if err != nil {
		return true, "", err
	}

	return versions.HasChanged(remoteVersion, marker.Version), remoteVersion, nil
}

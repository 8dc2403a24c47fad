// Package service provides the operations behind the session server
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/internal/sync/coordinator"
)

var (
	// ErrClassNotFound is returned when a class is not in the class database
	ErrClassNotFound = errors.New("class not found")
	// ErrNotReady is returned while the class database is not usable
	ErrNotReady = errors.New("class database is not ready")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go ClassService

// ClassService defines the operations the session server exposes
type ClassService interface {
	// CheckReadiness checks if the service is ready to serve requests
	CheckReadiness(ctx context.Context) error

	// Details describes the running session and the class database
	Details(ctx context.Context) (*Details, error)

	// ListClasses returns the class names, sorted
	ListClasses(ctx context.Context, opts ...Option[ListClassesOptions]) ([]string, error)

	// GetClass returns the canonical name of a class, matched case-insensitively
	GetClass(ctx context.Context, name string) (string, error)

	// Refresh refreshes the class database and notifies the outcome
	Refresh(ctx context.Context, force bool) (*coordinator.RefreshResult, error)

	// Stop stops the session
	Stop(ctx context.Context) error
}

// Details describes the running session and the class database
type Details struct {
	Version    string             `json:"version"`
	Name       string             `json:"name"`
	Workspace  string             `json:"workspace"`
	SessionID  string             `json:"sessionId,omitempty"`
	Phase      string             `json:"phase"`
	StartedAt  *time.Time         `json:"startedAt,omitempty"`
	ClassCount int                `json:"classCount"`
	Source     classdb.Source     `json:"source"`
	Marker     classdb.Marker     `json:"marker"`
	LastSync   *status.SyncStatus `json:"lastSync,omitempty"`
}

// Option is a function that sets an option for a service operation
type Option[T ListClassesOptions] func(*T) error

// ListClassesOptions is the options for the ListClasses operation
type ListClassesOptions struct {
	Prefix string
	Limit  int
}

// WithPrefix keeps only classes starting with prefix, compared case-insensitively
func WithPrefix(prefix string) Option[ListClassesOptions] {
	return func(o *ListClassesOptions) error {
		if prefix == "" {
			return fmt.Errorf("invalid prefix: %s", prefix)
		}
		o.Prefix = prefix
		return nil
	}
}

// WithLimit caps the number of returned classes
func WithLimit(limit int) Option[ListClassesOptions] {
	return func(o *ListClassesOptions) error {
		if limit <= 0 {
			return fmt.Errorf("invalid limit: %d", limit)
		}
		o.Limit = limit
		return nil
	}
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/sources"
	"github.com/pinehappi/argon/internal/storage"
)

// Result contains the result of a successful sync operation
type Result struct {
	// Changed is false when the remote confirmed the local table is current
	Changed bool

	Version    string
	Hash       string
	ClassCount int

	// PersistErr is set when the cache could not be written; the in-memory table is still updated
	PersistErr error
}

// Reason represents the decision and reason for whether a sync should occur
type Reason int

//nolint:revive // Group comments are for categorization, not per-constant documentation
const (
	// Reasons that require sync
	ReasonNeverSynced Reason = iota
	ReasonCacheExpired
	ReasonManualSync

	// Reasons that do not require sync
	ReasonUpToDate
	ReasonNoExpiryPolicy

	// ReasonNotEvaluated marks a refresh turned away before the decision ran
	ReasonNotEvaluated
)

// String returns the string representation of the sync reason
func (r Reason) String() string {
	switch r {
	case ReasonNeverSynced:
		return "never-synced"
	case ReasonCacheExpired:
		return "cache-expired"
	case ReasonManualSync:
		return "manual-sync"
	case ReasonUpToDate:
		return "up-to-date"
	case ReasonNoExpiryPolicy:
		return "no-expiry-policy"
	case ReasonNotEvaluated:
		return "not-evaluated"
	default:
		return "unknown"
	}
}

// Evaluated reports whether the reason comes from a sync decision
func (r Reason) Evaluated() bool {
	return r != ReasonNotEvaluated
}

// ShouldSync returns true if sync is needed for this reason
func (r Reason) ShouldSync() bool {
	switch r {
	case ReasonNeverSynced, ReasonCacheExpired, ReasonManualSync:
		return true
	default:
		return false
	}
}

// Condition reasons for failures
const (
	ConditionReasonHandlerCreationFailed = "HandlerCreationFailed"
	ConditionReasonValidationFailed      = "ValidationFailed"
	ConditionReasonFetchFailed           = "FetchFailed"
	ConditionReasonEmptyData             = "EmptyData"
)

// Condition types
const (
	// ConditionSourceAvailable indicates whether the source is configured and usable
	ConditionSourceAvailable = "SourceAvailable"

	// ConditionDataValid indicates whether the fetched class list is valid
	ConditionDataValid = "DataValid"

	// ConditionSyncSuccessful indicates whether the last sync was successful
	ConditionSyncSuccessful = "SyncSuccessful"
)

// Error represents a structured sync error with condition information
type Error struct {
	Err             error
	Message         string
	ConditionType   string
	ConditionReason string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Manager manages synchronization of the class database
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/pinehappi/argon/internal/sync Manager
type Manager interface {
	// ShouldSync decides locally whether a sync is needed. force always yields ReasonManualSync.
	ShouldSync(ctx context.Context, force bool) Reason

	// PerformSync contacts the remote source and updates the database for the given reason
	PerformSync(ctx context.Context, reason Reason) (*Result, *Error)

	// Restore loads the persisted cache into the database. Returns storage.ErrCacheNotFound when none exists.
	Restore(ctx context.Context) error

	// Delete removes the persisted cache and puts the builtin seed back in the database
	Delete(ctx context.Context) error
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	cfg                  *config.Config
	db                   *classdb.Database
	sourceHandlerFactory sources.SourceHandlerFactory
	storageManager       storage.StorageManager
	versionDetector      VersionChangeDetector
	now                  func() time.Time
}

// ManagerOption configures the default manager
type ManagerOption func(*defaultSyncManager)

// WithClock overrides time.Now
func WithClock(now func() time.Time) ManagerOption {
	return func(m *defaultSyncManager) {
		m.now = now
	}
}

// WithVersionChangeDetector overrides the detector built from the handler factory
func WithVersionChangeDetector(detector VersionChangeDetector) ManagerOption {
	return func(m *defaultSyncManager) {
		m.versionDetector = detector
	}
}

// NewDefaultSyncManager creates a new defaultSyncManager
func NewDefaultSyncManager(
	cfg *config.Config,
	db *classdb.Database,
	sourceHandlerFactory sources.SourceHandlerFactory,
	storageManager storage.StorageManager,
	opts ...ManagerOption,
) Manager {
	m := &defaultSyncManager{
		cfg:                  cfg,
		db:                   db,
		sourceHandlerFactory: sourceHandlerFactory,
		storageManager:       storageManager,
		versionDetector:      NewVersionChangeDetector(sourceHandlerFactory),
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldSync determines if a sync operation is needed
func (s *defaultSyncManager) ShouldSync(ctx context.Context, force bool) Reason {
	logger := logr.FromContextOrDiscard(ctx)

	reason := s.decide(force)
	logger.V(1).Info("ShouldSync",
		"force", force,
		"source", s.db.Source(),
		"syncedAt", s.db.Marker().SyncedAt,
		"maxAge", s.cfg.GetMaxAge().String(),
		"reason", reason.String())
	return reason
}

func (s *defaultSyncManager) decide(force bool) Reason {
	switch {
	case force:
		return ReasonManualSync
	case s.db.Source() != classdb.SourceRemoteSynced:
		return ReasonNeverSynced
	case s.cfg.GetMaxAge() <= 0:
		return ReasonNoExpiryPolicy
	case s.db.IsStale(s.now(), s.cfg.GetMaxAge()):
		return ReasonCacheExpired
	default:
		return ReasonUpToDate
	}
}

// PerformSync performs the sync operation for the given reason
func (s *defaultSyncManager) PerformSync(ctx context.Context, reason Reason) (*Result, *Error) {
	logger := logr.FromContextOrDiscard(ctx)

	if reason == ReasonCacheExpired {
		result, checked := s.confirmCurrentVersion(ctx)
		if checked {
			return result, nil
		}
	}

	fetchResult, syncErr := s.fetchClasses(ctx)
	if syncErr != nil {
		return nil, syncErr
	}

	snap, err := s.db.Replace(fetchResult.Classes, classdb.Marker{
		Version:  fetchResult.Version,
		Hash:     fetchResult.Hash,
		SyncedAt: s.now(),
	})
	if err != nil {
		logger.Error(err, "Fetched class list rejected")
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Fetched class list rejected: %v", err),
			ConditionType:   ConditionDataValid,
			ConditionReason: ConditionReasonEmptyData,
		}
	}

	logger.Info("Class database replaced",
		"reason", reason.String(),
		"classCount", snap.Len(),
		"version", fetchResult.Version)

	return &Result{
		Changed:    true,
		Version:    fetchResult.Version,
		Hash:       fetchResult.Hash,
		ClassCount: snap.Len(),
		PersistErr: s.persist(ctx, snap),
	}, nil
}

// confirmCurrentVersion renews the marker when the remote still serves the
// local version. checked is false when the version could not be confirmed and
// a full fetch is needed.
func (s *defaultSyncManager) confirmCurrentVersion(ctx context.Context) (result *Result, checked bool) {
	logger := logr.FromContextOrDiscard(ctx)
	marker := s.db.Marker()

	changed, remoteVersion, err := s.versionDetector.IsVersionChanged(ctx, &s.cfg.Source, marker)
	if err != nil {
		logger.Error(err, "Failed to check remote version, falling back to full fetch")
		return nil, false
	}
	logger.Info("Checked remote version", "local", marker.Version, "remote", remoteVersion, "changed", changed)
	if changed {
		return nil, false
	}

	snap := s.db.Touch(s.now())
	return &Result{
		Changed:    false,
		Version:    snap.Marker().Version,
		Hash:       snap.Marker().Hash,
		ClassCount: snap.Len(),
		PersistErr: s.persist(ctx, snap),
	}, true
}

// fetchClasses handles source handler creation, validation and fetch
func (s *defaultSyncManager) fetchClasses(ctx context.Context) (*sources.FetchResult, *Error) {
	logger := logr.FromContextOrDiscard(ctx)
	source := &s.cfg.Source

	sourceHandler, err := s.sourceHandlerFactory.CreateHandler(source.Type)
	if err != nil {
		logger.Error(err, "Failed to create source handler")
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Failed to create source handler: %v", err),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: ConditionReasonHandlerCreationFailed,
		}
	}

	if err := sourceHandler.Validate(source); err != nil {
		logger.Error(err, "Source validation failed")
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Source validation failed: %v", err),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: ConditionReasonValidationFailed,
		}
	}

	fetchResult, err := sourceHandler.FetchClasses(ctx, source)
	if err != nil {
		logger.Error(err, "Fetch operation failed")
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Fetch failed: %v", err),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: ConditionReasonFetchFailed,
		}
	}

	logger.Info("Class list fetched successfully from source",
		"classCount", fetchResult.ClassCount,
		"format", fetchResult.Format,
		"version", fetchResult.Version)

	return fetchResult, nil
}

// persist writes snap to the cache; failures are logged and returned, never fatal
func (s *defaultSyncManager) persist(ctx context.Context, snap *classdb.Snapshot) error {
	if s.storageManager == nil {
		return nil
	}
	if err := s.storageManager.Store(ctx, snap); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "Failed to persist class cache")
		return fmt.Errorf("failed to persist class cache: %w", err)
	}
	return nil
}

// Restore loads the persisted cache into the database
func (s *defaultSyncManager) Restore(ctx context.Context) error {
	if s.storageManager == nil {
		return storage.ErrCacheNotFound
	}
	snap, err := s.storageManager.Get(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCacheNotFound) {
			return err
		}
		return fmt.Errorf("failed to load class cache: %w", err)
	}
	if err := s.db.Restore(snap); err != nil {
		return err
	}
	logr.FromContextOrDiscard(ctx).Info("Restored class database from cache",
		"classCount", snap.Len(),
		"version", snap.Marker().Version,
		"syncedAt", snap.Marker().SyncedAt)
	return nil
}

// Delete removes the persisted cache and resets the database to the seed
func (s *defaultSyncManager) Delete(ctx context.Context) error {
	if s.storageManager != nil {
		if err := s.storageManager.Delete(ctx); err != nil {
			return err
		}
	}
	if err := s.db.Restore(classdb.SeedSnapshot()); err != nil {
		return fmt.Errorf("failed to reset class database: %w", err)
	}
	logr.FromContextOrDiscard(ctx).Info("Class cache removed, database reset to the builtin seed",
		"classCount", s.db.Len())
	return nil
}

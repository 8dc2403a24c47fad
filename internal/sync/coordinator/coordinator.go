package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/status"
	pkgsync "github.com/pinehappi/argon/internal/sync"
	"github.com/pinehappi/argon/internal/telemetry"
)

// LockFileName is the per-workspace refresh lock inside the cache directory
const LockFileName = "classes.lock"

// ErrAlreadyStarted is returned when Start is called on a running coordinator
var ErrAlreadyStarted = errors.New("coordinator already started")

// Outcome is the result of a refresh that did not fail
type Outcome string

const (
	// OutcomeUpdated means the class database was replaced with a fresh list
	OutcomeUpdated Outcome = "updated"

	// OutcomeAlreadyCurrent means no update was needed
	OutcomeAlreadyCurrent Outcome = "already-current"

	// OutcomeBusy means another refresh holds a gate; retry later
	OutcomeBusy Outcome = "busy"
)

// RefreshResult describes a refresh that did not fail
type RefreshResult struct {
	Outcome Outcome

	// Reason is the sync decision. It is ReasonNotEvaluated when the
	// in-process gate turned the refresh away before deciding.
	Reason pkgsync.Reason

	Version    string
	Hash       string
	ClassCount int

	// PersistErr is set when the cache could not be written after an update
	PersistErr error
}

// RefreshError is a failed refresh. The class database is left untouched.
type RefreshError struct {
	Code    status.Code
	Err     error
	Message string
}

func (e *RefreshError) Error() string {
	return e.Message
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Code maps the return values of Refresh to a notification code
func Code(result *RefreshResult, err error) status.Code {
	if err != nil {
		var refreshErr *RefreshError
		if errors.As(err, &refreshErr) {
			return refreshErr.Code
		}
		return status.CodeGenericError
	}
	if result == nil {
		return status.CodeGenericError
	}
	switch result.Outcome {
	case OutcomeUpdated:
		return status.CodeUpdated
	case OutcomeAlreadyCurrent:
		return status.CodeAlreadyCurrent
	case OutcomeBusy:
		return status.CodeBusy
	default:
		return status.CodeGenericError
	}
}

// Coordinator serializes refreshes of the class database
type Coordinator interface {
	// Refresh brings the class database up to date. It never blocks on
	// another refresh: a held gate yields OutcomeBusy.
	Refresh(ctx context.Context, force bool) (*RefreshResult, error)

	// LastResult returns a copy of the most recent sync status, nil before the first refresh
	LastResult() *status.SyncStatus

	// Start runs periodic refreshes until ctx is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop ends the periodic loop and waits for it to exit
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager  pkgsync.Manager
	config   *config.Config
	inFlight *semaphore.Weighted
	lockPath string
	interval time.Duration
	now      func() time.Time

	statusPersistence status.StatusPersistence
	notifier          status.Notifier
	metrics           *telemetry.RefreshMetrics

	statusMu   gosync.RWMutex
	lastStatus *status.SyncStatus

	// Lifecycle management
	lifecycleMu gosync.Mutex
	cancelFunc  context.CancelFunc
	done        chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithStatusPersistence persists the sync status after each refresh
func WithStatusPersistence(persistence status.StatusPersistence) Option {
	return func(c *defaultCoordinator) {
		c.statusPersistence = persistence
	}
}

// WithRefreshMetrics sets the refresh metrics for the coordinator
func WithRefreshMetrics(metrics *telemetry.RefreshMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// WithNotifier reports the outcome of periodic refreshes that changed something or failed
func WithNotifier(notifier status.Notifier) Option {
	return func(c *defaultCoordinator) {
		c.notifier = notifier
	}
}

// WithInitialStatus seeds LastResult with a status persisted by an earlier
// run. An empty status is ignored.
func WithInitialStatus(syncStatus *status.SyncStatus) Option {
	return func(c *defaultCoordinator) {
		if syncStatus == nil || syncStatus.LastAttempt == nil {
			return
		}
		c.lastStatus = syncStatus.Copy()
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a new coordinator with injected dependencies
func New(manager pkgsync.Manager, cfg *config.Config, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:  manager,
		config:   cfg,
		inFlight: semaphore.NewWeighted(1),
		lockPath: filepath.Join(cfg.CacheDir, LockFileName),
		interval: cfg.GetCheckInterval(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Refresh runs the refresh decision flow
func (c *defaultCoordinator) Refresh(ctx context.Context, force bool) (*RefreshResult, error) {
	logger := logr.FromContextOrDiscard(ctx)

	if !c.inFlight.TryAcquire(1) {
		logger.V(1).Info("Refresh already in flight")
		c.metrics.RecordRefresh(ctx, string(OutcomeBusy))
		return &RefreshResult{Outcome: OutcomeBusy, Reason: pkgsync.ReasonNotEvaluated}, nil
	}
	defer c.inFlight.Release(1)

	reason := c.manager.ShouldSync(ctx, force)
	if !reason.ShouldSync() {
		logger.V(1).Info("Class database does not need refresh", "reason", reason.String())
		c.metrics.RecordRefresh(ctx, string(OutcomeAlreadyCurrent))
		return &RefreshResult{Outcome: OutcomeAlreadyCurrent, Reason: reason}, nil
	}

	lock, err := c.tryLock()
	if err != nil {
		logger.Error(err, "Failed to acquire workspace lock")
		c.metrics.RecordRefresh(ctx, string(status.CodeGenericError))
		return nil, &RefreshError{
			Code:    status.CodeGenericError,
			Err:     err,
			Message: fmt.Sprintf("Failed to acquire workspace lock: %v", err),
		}
	}
	if lock == nil {
		logger.Info("Another process is refreshing this workspace", "lock", c.lockPath)
		c.metrics.RecordRefresh(ctx, string(OutcomeBusy))
		return &RefreshResult{Outcome: OutcomeBusy, Reason: reason}, nil
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Error(err, "Failed to release workspace lock", "lock", c.lockPath)
		}
	}()

	return c.performRefresh(ctx, reason)
}

// tryLock takes the workspace lock without waiting. A nil lock with a nil
// error means another process holds it.
func (c *defaultCoordinator) tryLock() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(c.lockPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	lock := flock.New(c.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return lock, nil
}

// LastResult returns a copy of the most recent sync status
func (c *defaultCoordinator) LastResult() *status.SyncStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.lastStatus.Copy()
}

// Start runs Refresh(ctx, false) every checkInterval. With no interval
// configured it only waits for cancellation.
func (c *defaultCoordinator) Start(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)

	c.lifecycleMu.Lock()
	if c.cancelFunc != nil {
		c.lifecycleMu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancelFunc = cancel
	c.done = done
	c.lifecycleMu.Unlock()

	defer func() {
		close(done)
		logger.V(1).Info("Refresh loop shut down")
	}()

	if c.interval <= 0 {
		logger.V(1).Info("Periodic class database checks disabled")
		<-loopCtx.Done()
		return nil
	}

	logger.Info("Starting periodic class database checks", "interval", c.interval.String())
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(loopCtx)
		case <-loopCtx.Done():
			return nil
		}
	}
}

func (c *defaultCoordinator) tick(ctx context.Context) {
	result, err := c.Refresh(ctx, false)
	code := Code(result, err)
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "Periodic refresh failed", "code", code)
	}
	if c.notifier == nil {
		return
	}
	switch code {
	case status.CodeAlreadyCurrent, status.CodeBusy:
	default:
		c.notifier.Notify(code)
	}
}

// Stop gracefully stops the periodic loop
func (c *defaultCoordinator) Stop() error {
	c.lifecycleMu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.cancelFunc, c.done = nil, nil
	c.lifecycleMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

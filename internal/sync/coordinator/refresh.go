package coordinator

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/pinehappi/argon/internal/status"
	pkgsync "github.com/pinehappi/argon/internal/sync"
)

// performRefresh executes the sync and records the resulting status. Must be
// called with both gates held.
func (c *defaultCoordinator) performRefresh(ctx context.Context, reason pkgsync.Reason) (*RefreshResult, error) {
	logger := logr.FromContextOrDiscard(ctx)
	startTime := c.now()

	// Record the attempt, then make sure the final status is written whatever
	// happens below. The default covers an unexpected exit.
	syncStatus := c.beginAttempt(ctx, startTime)
	syncStatus.Phase = status.SyncPhaseFailed
	syncStatus.Message = "Unexpected failure while refreshing class database"
	syncStatus.LastOutcome = status.CodeGenericError
	defer c.setStatus(ctx, syncStatus)

	logger.Info("Starting class database refresh", "reason", reason.String(), "attempt", syncStatus.AttemptCount)

	result, syncErr := c.manager.PerformSync(ctx, reason)
	duration := c.now().Sub(startTime)

	if syncErr != nil {
		code := codeForSyncError(syncErr)
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = syncErr.Message
		syncStatus.LastOutcome = code

		logger.Error(syncErr, "Class database refresh failed", "code", code, "condition", syncErr.ConditionReason)
		c.metrics.RecordRefresh(ctx, string(code))
		c.metrics.RecordRefreshDuration(ctx, string(code), duration)

		return nil, &RefreshError{Code: code, Err: syncErr, Message: syncErr.Message}
	}

	outcome := OutcomeAlreadyCurrent
	if result.Changed {
		outcome = OutcomeUpdated
	}

	now := c.now()
	syncStatus.Phase = status.SyncPhaseComplete
	syncStatus.Message = "Sync completed successfully"
	syncStatus.LastOutcome = Code(&RefreshResult{Outcome: outcome}, nil)
	syncStatus.LastSyncTime = &now
	syncStatus.LastSyncVersion = result.Version
	syncStatus.LastSyncHash = result.Hash
	syncStatus.ClassCount = result.ClassCount
	syncStatus.AttemptCount = 0
	if result.PersistErr != nil {
		syncStatus.Message = "Sync completed, cache not written: " + result.PersistErr.Error()
	}

	hashPreview := result.Hash
	if len(hashPreview) > 8 {
		hashPreview = hashPreview[:8]
	}
	logger.Info("Class database refresh completed",
		"outcome", outcome,
		"classCount", result.ClassCount,
		"version", result.Version,
		"hash", hashPreview)

	c.metrics.RecordRefresh(ctx, string(outcome))
	c.metrics.RecordRefreshDuration(ctx, string(outcome), duration)
	c.metrics.RecordClassCount(ctx, result.ClassCount)

	return &RefreshResult{
		Outcome:    outcome,
		Reason:     reason,
		Version:    result.Version,
		Hash:       result.Hash,
		ClassCount: result.ClassCount,
		PersistErr: result.PersistErr,
	}, nil
}

// beginAttempt marks the status as syncing and persists it so other
// processes can see the refresh. It returns the working copy.
func (c *defaultCoordinator) beginAttempt(ctx context.Context, at time.Time) *status.SyncStatus {
	c.statusMu.Lock()
	syncStatus := c.lastStatus.Copy()
	if syncStatus == nil {
		syncStatus = &status.SyncStatus{}
	}
	syncStatus.Phase = status.SyncPhaseSyncing
	syncStatus.Message = "Sync in progress"
	syncStatus.LastAttempt = &at
	syncStatus.AttemptCount++
	c.lastStatus = syncStatus.Copy()
	c.statusMu.Unlock()

	c.persistStatus(ctx, syncStatus)
	return syncStatus
}

// setStatus publishes and persists the final status of a refresh
func (c *defaultCoordinator) setStatus(ctx context.Context, syncStatus *status.SyncStatus) {
	c.statusMu.Lock()
	c.lastStatus = syncStatus.Copy()
	c.statusMu.Unlock()

	c.persistStatus(ctx, syncStatus)
}

func (c *defaultCoordinator) persistStatus(ctx context.Context, syncStatus *status.SyncStatus) {
	if c.statusPersistence == nil {
		return
	}
	if err := c.statusPersistence.SaveStatus(ctx, syncStatus); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "Failed to persist sync status", "phase", syncStatus.Phase)
	}
}

// codeForSyncError maps a sync failure to its notification code. A source
// that could not be set up is a configuration problem; everything after that
// is a failure to reach the source or read what it returned.
func codeForSyncError(syncErr *pkgsync.Error) status.Code {
	if syncErr.ConditionType == pkgsync.ConditionSourceAvailable {
		return status.CodeGenericError
	}
	return status.CodeConnectionFailed
}

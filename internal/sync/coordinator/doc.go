// Package coordinator serializes class database refreshes.
//
// The coordinator sits on top of sync.Manager. It owns the two refresh
// gates and the bookkeeping around a refresh:
//
//   - an in-process semaphore: a second caller gets OutcomeBusy instead of waiting
//   - a per-workspace file lock, so two argon processes never refresh the same cache
//   - the persisted SyncStatus, written once the refresh finishes whatever the result
//   - refresh metrics
//
// # Refresh Decision Flow
//
//  1. Try the semaphore, report Busy when a refresh is in flight
//  2. Manager.ShouldSync decides locally; no sync needed means AlreadyCurrent
//  3. Try the workspace lock, report Busy when another process holds it
//  4. Manager.PerformSync contacts the source and updates the database
//  5. The final status is persisted in a deferred block
//
// Start runs the same flow on a ticker when syncPolicy.checkInterval is set.
//
// # Usage
//
//	manager := sync.NewDefaultSyncManager(cfg, db, factory, storageManager)
//	coord := coordinator.New(manager, cfg,
//	    coordinator.WithStatusPersistence(status.NewFileStatusPersistence(cfg.CacheDir)))
//
//	result, err := coord.Refresh(ctx, false)
//	notifier.Notify(coordinator.Code(result, err))
package coordinator

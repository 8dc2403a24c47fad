// Package sync decides when the class database needs refreshing and performs
// the refresh against the configured remote source.
//
// # Core Interfaces
//
//   - Manager: orchestrates freshness decisions and sync operations
//   - VersionChangeDetector: asks the source for its current version token and
//     compares it with the local marker, without downloading the class list
//
// The sync/coordinator subpackage wraps a Manager with the in-flight gate,
// status persistence and the optional periodic check.
//
// # Sync Decision Making
//
// Manager.ShouldSync is a local, cheap check. It returns a Reason; use
// Reason.ShouldSync() to test whether a sync is needed and Reason.String()
// for logging.
//
// Reasons that indicate sync IS needed:
//   - ReasonNeverSynced: the database still holds the builtin seed
//   - ReasonCacheExpired: the marker is older than the configured max age
//   - ReasonManualSync: the caller forced a refresh
//
// Reasons that indicate sync is NOT needed:
//   - ReasonUpToDate: the marker is within the max age
//   - ReasonNoExpiryPolicy: the database synced once and max age is disabled
//
// Manager.PerformSync contacts the remote. For ReasonCacheExpired it first
// compares version tokens and only renews the marker when nothing changed;
// every other reason downloads the full list and replaces the database.
//
// # Errors
//
// PerformSync returns a structured Error carrying a condition type and
// reason, so callers can tell configuration problems (ConditionSourceAvailable)
// apart from remote failures (ConditionSyncSuccessful, ConditionDataValid).
// A cache write failure does not fail the sync; it is reported through
// Result.PersistErr and the in-memory database keeps the new table.
package sync

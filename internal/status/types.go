package status

import "time"

// Code is a status reported to the notification port. The core only ever
// hands out codes; turning them into user-facing text is the job of the
// presentation layer.
type Code string

const (
	// CodeStarted means a sync session is now running
	CodeStarted Code = "started"

	// CodeAlreadyRunning means start was requested while a session was running
	CodeAlreadyRunning Code = "already-running"

	// CodeStopped means the running session was stopped
	CodeStopped Code = "stopped"

	// CodeNotRunning means stop was requested while no session was running
	CodeNotRunning Code = "not-running"

	// CodeUpdated means the class database was replaced by a fresh sync
	CodeUpdated Code = "updated"

	// CodeAlreadyCurrent means the class database did not need an update
	CodeAlreadyCurrent Code = "already-current"

	// CodeBusy means another refresh is in flight and the caller should retry later
	CodeBusy Code = "busy"

	// CodeConnectionFailed means the remote source could not be reached or returned bad data
	CodeConnectionFailed Code = "connection-failed"

	// CodeGenericError is any other failure
	CodeGenericError Code = "generic-error"

	// CodeNoWorkspace means the configured workspace directory does not exist
	CodeNoWorkspace Code = "no-workspace"
)

// Severity groups codes the way the presentation layer displays them
type Severity string

const (
	// SeverityInfo is used for normal state transitions
	SeverityInfo Severity = "info"
	// SeverityWarning is used for transient conditions the user can act on
	SeverityWarning Severity = "warning"
	// SeverityError is used for failures
	SeverityError Severity = "error"
)

// Severity returns the display severity of the code
func (c Code) Severity() Severity {
	switch c {
	case CodeBusy, CodeNoWorkspace:
		return SeverityWarning
	case CodeConnectionFailed, CodeGenericError:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// Codes returns every code the core may report
func Codes() []Code {
	return []Code{
		CodeStarted,
		CodeAlreadyRunning,
		CodeStopped,
		CodeNotRunning,
		CodeUpdated,
		CodeAlreadyCurrent,
		CodeBusy,
		CodeConnectionFailed,
		CodeGenericError,
		CodeNoWorkspace,
	}
}

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks -source=types.go Notifier

// Notifier receives status codes from the core. It is owned by the UI layer.
type Notifier interface {
	Notify(code Code)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(code Code)

// Notify calls f(code)
func (f NotifierFunc) Notify(code Code) {
	f(code)
}

// SyncPhase represents the current phase of a class database refresh
type SyncPhase string

const (
	// SyncPhaseSyncing means a refresh is currently contacting the remote source
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last refresh completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last refresh failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus represents the state of class database synchronization
type SyncStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `json:"phase"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty"`

	// LastOutcome is the code reported for the last refresh
	LastOutcome Code `json:"lastOutcome,omitempty"`

	// LastAttempt is the timestamp of the last refresh that contacted the remote source
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// LastSyncVersion is the version token of the last successfully synced data
	LastSyncVersion string `json:"lastSyncVersion,omitempty"`

	// LastSyncHash is the hash of the last successfully synced data
	LastSyncHash string `json:"lastSyncHash,omitempty"`

	// ClassCount is the number of classes in the database after the last sync
	ClassCount int `json:"classCount,omitempty"`
}

// Copy returns a deep copy of the status
func (s *SyncStatus) Copy() *SyncStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	return &out
}

// Package session tracks whether an argon sync session is running.
//
// A Session is a two-state machine. Starting a session runs a class database
// staleness check through the injected Refresher and reports every status
// through the injected Notifier; concurrency of the refresh itself belongs
// to the coordinator.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/internal/sync/coordinator"
)

// Phase is the state of a session
type Phase string

const (
	// PhaseStopped is the initial state
	PhaseStopped Phase = "stopped"

	// PhaseRunning means a sync session is active
	PhaseRunning Phase = "running"
)

var (
	// ErrAlreadyRunning is returned by Start when the session is running
	ErrAlreadyRunning = errors.New("session is already running")

	// ErrNotRunning is returned by Stop when the session is stopped
	ErrNotRunning = errors.New("session is not running")

	// ErrNoWorkspace is returned by Start when the configured workspace does not exist
	ErrNoWorkspace = errors.New("workspace does not exist")
)

// Refresher runs a class database refresh. coordinator.Coordinator implements it.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (*coordinator.RefreshResult, error)
}

// Session is the session state machine. The zero value is not usable; call New.
type Session struct {
	refresher    Refresher
	notifier     status.Notifier
	checkOnStart bool
	workspace    string
	now          func() time.Time

	mu        sync.Mutex
	phase     Phase
	id        uuid.UUID
	startedAt time.Time
}

// Option configures a Session
type Option func(*Session)

// WithCheckOnStart enables or disables the staleness check run by Start
func WithCheckOnStart(enabled bool) Option {
	return func(s *Session) {
		s.checkOnStart = enabled
	}
}

// WithWorkspace makes Start fail with ErrNoWorkspace while dir is missing
func WithWorkspace(dir string) Option {
	return func(s *Session) {
		s.workspace = dir
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates a stopped session. A nil notifier discards notifications.
func New(refresher Refresher, notifier status.Notifier, opts ...Option) *Session {
	if notifier == nil {
		notifier = status.NotifierFunc(func(status.Code) {})
	}
	s := &Session{
		refresher:    refresher,
		notifier:     notifier,
		checkOnStart: true,
		now:          time.Now,
		phase:        PhaseStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start moves the session to Running and checks the class database. A
// refresh failure is reported but never fails Start. The refresh runs
// outside the session lock, so Phase and Stop answer while it is in flight.
func (s *Session) Start(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)

	s.mu.Lock()
	if s.phase == PhaseRunning {
		s.mu.Unlock()
		s.notifier.Notify(status.CodeAlreadyRunning)
		return ErrAlreadyRunning
	}

	if s.workspace != "" {
		if info, err := os.Stat(s.workspace); err != nil || !info.IsDir() {
			s.mu.Unlock()
			s.notifier.Notify(status.CodeNoWorkspace)
			return fmt.Errorf("%w: %s", ErrNoWorkspace, s.workspace)
		}
	}

	id := uuid.New()
	s.phase = PhaseRunning
	s.id = id
	s.startedAt = s.now()
	s.mu.Unlock()
	logger.Info("Session started", "session", id.String(), "workspace", s.workspace)

	if s.checkOnStart && s.refresher != nil {
		result, err := s.refresher.Refresh(ctx, false)
		code := coordinator.Code(result, err)
		if err != nil {
			logger.Error(err, "Class database check failed", "code", code)
		}
		// A current database is the expected case on start and is not reported
		if code != status.CodeAlreadyCurrent {
			s.notifier.Notify(code)
		}
	}

	// Stopped while the check ran
	if s.ID() != id.String() {
		logger.Info("Session stopped before its start check finished", "session", id.String())
		return nil
	}

	s.notifier.Notify(status.CodeStarted)
	return nil
}

// Stop moves the session to Stopped. The class database is left as is.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning {
		s.notifier.Notify(status.CodeNotRunning)
		return ErrNotRunning
	}

	logr.FromContextOrDiscard(ctx).Info("Session stopped",
		"session", s.id.String(),
		"uptime", s.now().Sub(s.startedAt).String())

	s.phase = PhaseStopped
	s.id = uuid.Nil
	s.startedAt = time.Time{}
	s.notifier.Notify(status.CodeStopped)
	return nil
}

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ID returns the id of the running session, empty when stopped
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == uuid.Nil {
		return ""
	}
	return s.id.String()
}

// StartedAt returns when the running session started, zero when stopped
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

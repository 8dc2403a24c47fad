package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/session"
	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/internal/sync/coordinator"
	"github.com/pinehappi/argon/internal/versions"
)

// classService is the default ClassService
type classService struct {
	cfg         *config.Config
	db          *classdb.Database
	session     *session.Session
	coordinator coordinator.Coordinator
	notifier    status.Notifier
	onStop      func()
}

// ServiceOption configures the default ClassService
type ServiceOption func(*classService)

// WithNotifier reports manual refresh outcomes
func WithNotifier(notifier status.Notifier) ServiceOption {
	return func(s *classService) {
		s.notifier = notifier
	}
}

// WithStopHook runs fn after the session has been stopped through Stop
func WithStopHook(fn func()) ServiceOption {
	return func(s *classService) {
		s.onStop = fn
	}
}

// New creates the default ClassService
func New(
	cfg *config.Config,
	db *classdb.Database,
	sess *session.Session,
	coord coordinator.Coordinator,
	opts ...ServiceOption,
) ClassService {
	s := &classService{
		cfg:         cfg,
		db:          db,
		session:     sess,
		coordinator: coord,
		notifier:    status.NotifierFunc(func(status.Code) {}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckReadiness implements ClassService.CheckReadiness
func (s *classService) CheckReadiness(_ context.Context) error {
	if s.db.Len() == 0 {
		return ErrNotReady
	}
	return nil
}

// Details implements ClassService.Details
func (s *classService) Details(_ context.Context) (*Details, error) {
	snap := s.db.Snapshot()
	details := &Details{
		Version:    versions.Current().Version,
		Name:       s.cfg.Name,
		Workspace:  s.cfg.Workspace,
		SessionID:  s.session.ID(),
		Phase:      string(s.session.Phase()),
		ClassCount: snap.Len(),
		Source:     snap.Source(),
		Marker:     snap.Marker(),
		LastSync:   s.coordinator.LastResult(),
	}
	if startedAt := s.session.StartedAt(); !startedAt.IsZero() {
		details.StartedAt = &startedAt
	}
	return details, nil
}

// ListClasses implements ClassService.ListClasses
func (s *classService) ListClasses(_ context.Context, opts ...Option[ListClassesOptions]) ([]string, error) {
	options := &ListClassesOptions{}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	all := s.db.All()
	if options.Prefix == "" && options.Limit == 0 {
		return all, nil
	}

	prefix := strings.ToLower(options.Prefix)
	out := make([]string, 0, len(all))
	for _, name := range all {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}
		out = append(out, name)
		if options.Limit > 0 && len(out) == options.Limit {
			break
		}
	}
	return out, nil
}

// GetClass implements ClassService.GetClass
func (s *classService) GetClass(_ context.Context, name string) (string, error) {
	snap := s.db.Snapshot()
	if snap.Contains(name) {
		return name, nil
	}
	for _, candidate := range snap.All() {
		if strings.EqualFold(candidate, name) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

// Refresh implements ClassService.Refresh. Every outcome is reported, as the
// user asked for it explicitly.
func (s *classService) Refresh(ctx context.Context, force bool) (*coordinator.RefreshResult, error) {
	result, err := s.coordinator.Refresh(ctx, force)
	code := coordinator.Code(result, err)
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "Manual refresh failed", "code", code)
	}
	s.notifier.Notify(code)
	return result, err
}

// Stop implements ClassService.Stop
func (s *classService) Stop(ctx context.Context) error {
	if err := s.session.Stop(ctx); err != nil {
		return err
	}
	if s.onStop != nil {
		s.onStop()
	}
	return nil
}

package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/status"
	statusmocks "github.com/pinehappi/argon/internal/status/mocks"
	"github.com/pinehappi/argon/internal/sync"
	syncmocks "github.com/pinehappi/argon/internal/sync/mocks"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default(t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		result   *RefreshResult
		err      error
		expected status.Code
	}{
		{"updated", &RefreshResult{Outcome: OutcomeUpdated}, nil, status.CodeUpdated},
		{"already current", &RefreshResult{Outcome: OutcomeAlreadyCurrent}, nil, status.CodeAlreadyCurrent},
		{"busy", &RefreshResult{Outcome: OutcomeBusy}, nil, status.CodeBusy},
		{"connection failed", nil, &RefreshError{Code: status.CodeConnectionFailed}, status.CodeConnectionFailed},
		{"unknown error", nil, errors.New("boom"), status.CodeGenericError},
		{"nil result", nil, nil, status.CodeGenericError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Code(tt.result, tt.err))
		})
	}
}

func TestCoordinator_Refresh_NotNeeded(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockManager.EXPECT().ShouldSync(gomock.Any(), false).Return(sync.ReasonUpToDate)
	// PerformSync must not be called: no remote contact

	coord := New(mockManager, testConfig(t))
	result, err := coord.Refresh(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCurrent, result.Outcome)
	assert.Equal(t, sync.ReasonUpToDate, result.Reason)
	assert.Nil(t, coord.LastResult())
}

func TestCoordinator_Refresh_Updated(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockPersistence := statusmocks.NewMockStatusPersistence(ctrl)

	mockManager.EXPECT().ShouldSync(gomock.Any(), true).Return(sync.ReasonManualSync)
	mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonManualSync).Return(&sync.Result{
		Changed:    true,
		Version:    "0.650.0.6500736",
		Hash:       "0123456789abcdef",
		ClassCount: 2,
	}, nil)

	var saved []status.SyncStatus
	mockPersistence.EXPECT().SaveStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *status.SyncStatus) error {
			saved = append(saved, *s.Copy())
			return nil
		}).Times(2)

	coord := New(mockManager, testConfig(t), WithStatusPersistence(mockPersistence))
	result, err := coord.Refresh(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)
	assert.Equal(t, 2, result.ClassCount)
	assert.Equal(t, status.CodeUpdated, Code(result, err))

	require.Len(t, saved, 2)
	assert.Equal(t, status.SyncPhaseSyncing, saved[0].Phase)
	assert.Equal(t, 1, saved[0].AttemptCount)
	assert.Equal(t, status.SyncPhaseComplete, saved[1].Phase)
	assert.Equal(t, 0, saved[1].AttemptCount)
	assert.Equal(t, status.CodeUpdated, saved[1].LastOutcome)

	last := coord.LastResult()
	require.NotNil(t, last)
	assert.Equal(t, "0.650.0.6500736", last.LastSyncVersion)
	assert.Equal(t, 2, last.ClassCount)
	require.NotNil(t, last.LastSyncTime)
}

func TestCoordinator_Refresh_UnchangedRemoteIsAlreadyCurrent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockManager.EXPECT().ShouldSync(gomock.Any(), false).Return(sync.ReasonCacheExpired)
	mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonCacheExpired).
		Return(&sync.Result{Changed: false, Version: "v1", ClassCount: 271}, nil)

	coord := New(mockManager, testConfig(t))
	result, err := coord.Refresh(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCurrent, result.Outcome)
	assert.Equal(t, status.CodeAlreadyCurrent, coord.LastResult().LastOutcome)
}

func TestCoordinator_Refresh_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		syncErr  *sync.Error
		expected status.Code
	}{
		{
			name: "fetch failure is a connection failure",
			syncErr: &sync.Error{
				Err:             context.DeadlineExceeded,
				Message:         "Fetch failed: context deadline exceeded",
				ConditionType:   sync.ConditionSyncSuccessful,
				ConditionReason: sync.ConditionReasonFetchFailed,
			},
			expected: status.CodeConnectionFailed,
		},
		{
			name: "empty data is a connection failure",
			syncErr: &sync.Error{
				Message:         "Fetched class list rejected",
				ConditionType:   sync.ConditionDataValid,
				ConditionReason: sync.ConditionReasonEmptyData,
			},
			expected: status.CodeConnectionFailed,
		},
		{
			name: "handler creation failure is generic",
			syncErr: &sync.Error{
				Message:         "Failed to create source handler",
				ConditionType:   sync.ConditionSourceAvailable,
				ConditionReason: sync.ConditionReasonHandlerCreationFailed,
			},
			expected: status.CodeGenericError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockManager := syncmocks.NewMockManager(ctrl)
			mockManager.EXPECT().ShouldSync(gomock.Any(), true).Return(sync.ReasonManualSync).Times(2)
			gomock.InOrder(
				mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonManualSync).Return(nil, tt.syncErr),
				mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonManualSync).
					Return(&sync.Result{Changed: true, Version: "v2", ClassCount: 2}, nil),
			)

			coord := New(mockManager, testConfig(t))
			result, err := coord.Refresh(context.Background(), true)

			assert.Nil(t, result)
			require.Error(t, err)
			assert.Equal(t, tt.expected, Code(result, err))

			var refreshErr *RefreshError
			require.ErrorAs(t, err, &refreshErr)
			assert.Equal(t, tt.syncErr.Message, refreshErr.Message)

			last := coord.LastResult()
			require.NotNil(t, last)
			assert.Equal(t, status.SyncPhaseFailed, last.Phase)
			assert.Equal(t, tt.expected, last.LastOutcome)
			assert.Equal(t, 1, last.AttemptCount)

			// The failed attempt released the gate
			result, err = coord.Refresh(context.Background(), true)
			require.NoError(t, err)
			assert.Equal(t, OutcomeUpdated, result.Outcome)
			assert.Equal(t, 0, coord.LastResult().AttemptCount)
		})
	}
}

func TestCoordinator_Refresh_ConcurrentCallsAreBusy(t *testing.T) {
	t.Parallel()

	const callers = 8

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})

	mockManager.EXPECT().ShouldSync(gomock.Any(), true).Return(sync.ReasonManualSync)
	mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonManualSync).
		DoAndReturn(func(context.Context, sync.Reason) (*sync.Result, *sync.Error) {
			close(entered)
			<-release
			return &sync.Result{Changed: true, Version: "v2", ClassCount: 2}, nil
		}).Times(1)

	coord := New(mockManager, testConfig(t))

	first := make(chan *RefreshResult, 1)
	go func() {
		result, err := coord.Refresh(context.Background(), true)
		assert.NoError(t, err)
		first <- result
	}()
	<-entered

	var wg gosync.WaitGroup
	outcomes := make(chan Outcome, callers-1)
	for i := 0; i < callers-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := coord.Refresh(context.Background(), true)
			assert.NoError(t, err)
			outcomes <- result.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		assert.Equal(t, OutcomeBusy, outcome)
	}
	busy, err := coord.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, sync.ReasonNotEvaluated, busy.Reason)

	close(release)
	assert.Equal(t, OutcomeUpdated, (<-first).Outcome)
}

func TestCoordinator_Refresh_WorkspaceLockHeld(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockManager.EXPECT().ShouldSync(gomock.Any(), true).Return(sync.ReasonManualSync).Times(2)
	mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonManualSync).
		Return(&sync.Result{Changed: true, Version: "v2", ClassCount: 2}, nil)

	cfg := testConfig(t)
	coord := New(mockManager, cfg)

	// Simulate another argon process refreshing the same workspace
	require.NoError(t, os.MkdirAll(cfg.CacheDir, 0750))
	other := flock.New(filepath.Join(cfg.CacheDir, LockFileName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	result, err := coord.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBusy, result.Outcome)
	assert.Equal(t, sync.ReasonManualSync, result.Reason)

	// Once the other process lets go the next refresh goes through
	require.NoError(t, other.Unlock())
	result, err = coord.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)
}

func TestCoordinator_WithInitialStatus(t *testing.T) {
	t.Parallel()

	t.Run("persisted status carries over", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		mockManager := syncmocks.NewMockManager(ctrl)
		mockManager.EXPECT().ShouldSync(gomock.Any(), true).Return(sync.ReasonManualSync)
		mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonManualSync).Return(nil, &sync.Error{
			Message:         "Fetch failed",
			ConditionType:   sync.ConditionSyncSuccessful,
			ConditionReason: sync.ConditionReasonFetchFailed,
		})

		attempted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		coord := New(mockManager, testConfig(t), WithInitialStatus(&status.SyncStatus{
			Phase:           status.SyncPhaseFailed,
			LastAttempt:     &attempted,
			LastSyncTime:    &attempted,
			LastSyncVersion: "v1",
			AttemptCount:    2,
		}))
		require.Equal(t, "v1", coord.LastResult().LastSyncVersion)

		_, err := coord.Refresh(context.Background(), true)
		require.Error(t, err)

		last := coord.LastResult()
		assert.Equal(t, 3, last.AttemptCount)
		assert.Equal(t, "v1", last.LastSyncVersion)
	})

	t.Run("empty status is ignored", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		coord := New(syncmocks.NewMockManager(ctrl), testConfig(t), WithInitialStatus(&status.SyncStatus{}))
		assert.Nil(t, coord.LastResult())
	})
}

func TestCoordinator_StartStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockManager := syncmocks.NewMockManager(ctrl)
	mockNotifier := statusmocks.NewMockNotifier(ctrl)

	ticked := make(chan struct{}, 1)
	mockManager.EXPECT().ShouldSync(gomock.Any(), false).Return(sync.ReasonCacheExpired).MinTimes(1)
	mockManager.EXPECT().PerformSync(gomock.Any(), sync.ReasonCacheExpired).
		Return(&sync.Result{Changed: true, Version: "v3", ClassCount: 5}, nil).MinTimes(1)
	mockNotifier.EXPECT().Notify(status.CodeUpdated).Do(func(status.Code) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	}).MinTimes(1)

	coord := New(mockManager, testConfig(t), WithNotifier(mockNotifier))
	coord.(*defaultCoordinator).interval = 10 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- coord.Start(context.Background()) }()

	select {
	case <-ticked:
	case <-time.After(5 * time.Second):
		t.Fatal("periodic refresh did not run")
	}

	require.NoError(t, coord.Stop())
	require.NoError(t, <-errCh)
}

func TestCoordinator_StartWithoutInterval(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coord := New(syncmocks.NewMockManager(ctrl), testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- coord.Start(ctx) }()

	cancel()
	require.NoError(t, <-errCh)
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coord := New(syncmocks.NewMockManager(ctrl), testConfig(t))

	// Stop should not panic if called before Start
	assert.NoError(t, coord.Stop())
}

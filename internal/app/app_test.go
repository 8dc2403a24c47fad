package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinehappi/argon/internal/session"
	"github.com/pinehappi/argon/internal/status"
)

// recordingNotifier collects notified codes
type recordingNotifier struct {
	mu    sync.Mutex
	codes []status.Code
}

func (n *recordingNotifier) Notify(code status.Code) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, code)
}

func (n *recordingNotifier) snapshot() []status.Code {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]status.Code(nil), n.codes...)
}

func TestArgonApp_Lifecycle(t *testing.T) {
	t.Parallel()

	cfg := fileSourceConfig(t, `{"version":"v1","classes":["Part","Script"]}`)
	notifier := &recordingNotifier{}

	app, err := NewArgonApp(context.Background(), WithConfig(cfg), WithNotifier(notifier))
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	baseURL := "http://" + listener.Addr().String()

	serveErr := make(chan error, 1)
	go func() { serveErr <- app.Serve(listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, session.PhaseRunning, app.GetComponents().Session.Phase())
	assert.Equal(t, []status.Code{status.CodeUpdated, status.CodeStarted}, notifier.snapshot())

	resp, err := http.Get(baseURL + "/classes")
	require.NoError(t, err)
	var classes struct {
		Classes []string `json:"classes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&classes))
	_ = resp.Body.Close()
	assert.Equal(t, []string{"Part", "Script"}, classes.Classes)

	resp, err = http.Post(baseURL+"/stop", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-app.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop through the API did not signal Done")
	}

	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, <-serveErr)
	assert.Equal(t, session.PhaseStopped, app.GetComponents().Session.Phase())
	assert.Equal(t, []status.Code{status.CodeUpdated, status.CodeStarted, status.CodeStopped}, notifier.snapshot())
}

func TestArgonApp_MissingWorkspace(t *testing.T) {
	t.Parallel()

	cfg := fileSourceConfig(t, `["Part"]`)
	cfg.Workspace = cfg.Workspace + "-gone"
	notifier := &recordingNotifier{}

	app, err := NewArgonApp(context.Background(), WithConfig(cfg), WithNotifier(notifier))
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = app.Serve(listener)
	require.ErrorIs(t, err, session.ErrNoWorkspace)
	assert.Equal(t, []status.Code{status.CodeNoWorkspace}, notifier.snapshot())
}

package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	argonapp "github.com/pinehappi/argon/internal/app"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/status"
)

// SessionTestHelper runs a full argon application for one workspace
type SessionTestHelper struct {
	ctx        context.Context
	workspace  string
	baseURL    string
	httpClient *http.Client
	app        *argonapp.ArgonApp
	serveErr   chan error

	mu    sync.Mutex
	codes []status.Code
}

// NewSessionTestHelper creates a helper for an existing workspace
func NewSessionTestHelper(ctx context.Context, workspace string) *SessionTestHelper {
	return &SessionTestHelper{
		ctx:        ctx,
		workspace:  workspace,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify implements status.Notifier
func (s *SessionTestHelper) Notify(code status.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
}

// Codes returns the codes notified so far
func (s *SessionTestHelper) Codes() []status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]status.Code(nil), s.codes...)
}

// StartSession loads the workspace config and serves the app on a free port
func (s *SessionTestHelper) StartSession() error {
	cfg, err := config.LoadConfig(config.WithWorkspace(s.workspace))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := argonapp.NewArgonApp(s.ctx, argonapp.WithConfig(cfg), argonapp.WithNotifier(s))
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.baseURL = "http://" + listener.Addr().String()

	s.serveErr = make(chan error, 1)
	go func() {
		s.serveErr <- app.Serve(listener)
	}()
	return nil
}

// StopSession stops the app and returns the error Serve ended with
func (s *SessionTestHelper) StopSession() error {
	if s.app == nil {
		return nil
	}
	if err := s.app.Stop(5 * time.Second); err != nil {
		return err
	}
	err := <-s.serveErr
	s.app = nil
	return err
}

// App returns the running application
func (s *SessionTestHelper) App() *argonapp.ArgonApp {
	return s.app
}

// WaitForSessionReady waits until the API answers
func (s *SessionTestHelper) WaitForSessionReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("session returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 50*time.Millisecond).Should(gomega.Succeed(), "Session should be ready")
}

// Get performs a GET against the session API
func (s *SessionTestHelper) Get(path string) (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + path)
}

// Post performs a body-less POST against the session API
func (s *SessionTestHelper) Post(path string) (*http.Response, error) {
	return s.httpClient.Post(s.baseURL+path, "application/json", nil)
}

// GetJSON performs a GET and decodes the body into v, returning the status code
func (s *SessionTestHelper) GetJSON(path string, v any) int {
	resp, err := s.Get(path)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return decode(resp, v)
}

// PostJSON performs a POST and decodes the body into v, returning the status code
func (s *SessionTestHelper) PostJSON(path string, v any) int {
	resp, err := s.Post(path)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return decode(resp, v)
}

func decode(resp *http.Response, v any) int {
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	if v != nil {
		gomega.Expect(json.Unmarshal(body, v)).To(gomega.Succeed(), string(body))
	}
	return resp.StatusCode
}

// WriteConfigYAML writes argon.yaml into the workspace
func WriteConfigYAML(workspace string, cfg map[string]any) {
	data, err := yaml.Marshal(cfg)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	err = os.WriteFile(filepath.Join(workspace, config.DefaultConfigFileName), data, 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
}

// APISourceConfig returns a config using the mock Roblox server
func APISourceConfig(server *MockRobloxServer) map[string]any {
	return map[string]any{
		"source": map[string]any{
			"type":   config.SourceTypeAPI,
			"format": config.SourceFormatAPIDump,
			"api": map[string]any{
				"versionEndpoint": server.VersionEndpoint(),
				"dumpEndpoint":    server.DumpEndpoint(),
			},
		},
		"http": map[string]any{
			"timeout": "2s",
			"retries": 1,
		},
	}
}

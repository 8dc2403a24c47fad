package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// MockRobloxServer serves a client-version endpoint and the matching API dump
type MockRobloxServer struct {
	*httptest.Server

	mu      sync.Mutex
	version string
	upload  string
	classes []string
	failing bool

	versionRequests atomic.Int32
	dumpRequests    atomic.Int32
}

// NewMockRobloxServer starts a server publishing classes under version
func NewMockRobloxServer(version string, classes ...string) *MockRobloxServer {
	m := &MockRobloxServer{}
	m.Publish(version, classes...)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/client-version/WindowsStudio64", m.handleVersion)
	mux.HandleFunc("/dumps/", m.handleDump)
	m.Server = httptest.NewServer(mux)
	return m
}

// Publish makes a new client version live
func (m *MockRobloxServer) Publish(version string, classes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
	m.upload = "version-" + strings.ReplaceAll(version, ".", "")
	m.classes = classes
}

// SetFailing makes every endpoint answer 503
func (m *MockRobloxServer) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

// VersionEndpoint is the URL to configure as source.api.versionEndpoint
func (m *MockRobloxServer) VersionEndpoint() string {
	return m.URL + "/v2/client-version/WindowsStudio64"
}

// DumpEndpoint is the URL to configure as source.api.dumpEndpoint
func (m *MockRobloxServer) DumpEndpoint() string {
	return m.URL + "/dumps/{upload}-API-Dump.json"
}

// DumpRequests is the number of API dumps served
func (m *MockRobloxServer) DumpRequests() int {
	return int(m.dumpRequests.Load())
}

// VersionRequests is the number of version checks served
func (m *MockRobloxServer) VersionRequests() int {
	return int(m.versionRequests.Load())
}

func (m *MockRobloxServer) handleVersion(w http.ResponseWriter, _ *http.Request) {
	m.versionRequests.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"version":             m.version,
		"clientVersionUpload": m.upload,
	})
}

func (m *MockRobloxServer) handleDump(w http.ResponseWriter, r *http.Request) {
	m.dumpRequests.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if r.URL.Path != fmt.Sprintf("/dumps/%s-API-Dump.json", m.upload) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write(APIDump(m.classes...))
}

// APIDump renders a minimal engine API dump containing classes
func APIDump(classes ...string) []byte {
	type class struct {
		Name       string
		Superclass string
		Members    []any
	}
	dump := struct {
		Version int
		Classes []class
	}{Version: 1}
	for _, name := range classes {
		dump.Classes = append(dump.Classes, class{Name: name, Superclass: "Instance", Members: []any{}})
	}
	data, _ := json.Marshal(dump)
	return data
}

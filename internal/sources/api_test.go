package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/httpclient"
	"github.com/pinehappi/argon/internal/sources"
)

const (
	versionPath = "/v2/client-version/WindowsStudio64"
	testUpload  = "version-1a2b3c4d5e6f7a8b"
	testVersion = "0.650.0.6500123"
	testDump    = `{"Version":1,"Classes":[{"Name":"Part"},{"Name":"Script"},{"Name":"Part"}]}`
)

func newRobloxServer(t *testing.T, versionBody string, dumpStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var dumpRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case versionPath:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(versionBody))
		case "/" + testUpload + "-API-Dump.json":
			dumpRequests.Add(1)
			w.WriteHeader(dumpStatus)
			if dumpStatus == http.StatusOK {
				_, _ = w.Write([]byte(testDump))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	return server, &dumpRequests
}

func apiSource(serverURL string) *config.SourceConfig {
	return &config.SourceConfig{
		Type:   config.SourceTypeAPI,
		Format: config.SourceFormatAPIDump,
		API: &config.APIConfig{
			VersionEndpoint: serverURL + versionPath,
			DumpEndpoint:    serverURL + "/{upload}-API-Dump.json",
		},
	}
}

func newTestHTTPClient() httpclient.Client {
	return httpclient.NewDefaultClient(5*time.Second,
		httpclient.WithRetries(1),
		httpclient.WithRetryInterval(time.Millisecond))
}

func TestAPISourceHandler_FetchClasses(t *testing.T) {
	t.Parallel()

	server, dumpRequests := newRobloxServer(t,
		`{"version":"`+testVersion+`","clientVersionUpload":"`+testUpload+`","bootstrapperVersion":"1, 6, 0, 6500123"}`,
		http.StatusOK)

	handler := sources.NewAPISourceHandler(newTestHTTPClient())
	result, err := handler.FetchClasses(context.Background(), apiSource(server.URL))

	require.NoError(t, err)
	assert.Equal(t, []string{"Part", "Script"}, result.Classes)
	assert.Equal(t, 2, result.ClassCount)
	assert.Equal(t, testVersion, result.Version)
	assert.Len(t, result.Hash, 64)
	assert.Equal(t, config.SourceFormatAPIDump, result.Format)
	assert.Equal(t, int32(1), dumpRequests.Load())
}

func TestAPISourceHandler_CurrentVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		versionBody   string
		expected      string
		errorContains string
	}{
		{
			name:        "version is preferred",
			versionBody: `{"version":"` + testVersion + `","clientVersionUpload":"` + testUpload + `"}`,
			expected:    testVersion,
		},
		{
			name:        "upload id when version is missing",
			versionBody: `{"clientVersionUpload":"` + testUpload + `"}`,
			expected:    testUpload,
		},
		{
			name:          "neither field",
			versionBody:   `{"other":"x"}`,
			errorContains: "neither version nor clientVersionUpload",
		},
		{
			name:          "invalid JSON",
			versionBody:   `<html>`,
			errorContains: "not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, dumpRequests := newRobloxServer(t, tt.versionBody, http.StatusOK)
			handler := sources.NewAPISourceHandler(newTestHTTPClient())

			version, err := handler.CurrentVersion(context.Background(), apiSource(server.URL))
			assert.Zero(t, dumpRequests.Load(), "version check must not download the dump")
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, version)
		})
	}
}

func TestAPISourceHandler_FetchClasses_Errors(t *testing.T) {
	t.Parallel()

	t.Run("dump not found", func(t *testing.T) {
		t.Parallel()

		server, _ := newRobloxServer(t, `{"version":"v","clientVersionUpload":"`+testUpload+`"}`, http.StatusNotFound)
		_, err := sources.NewAPISourceHandler(newTestHTTPClient()).FetchClasses(context.Background(), apiSource(server.URL))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to download class dump")
		assert.Equal(t, http.StatusNotFound, httpclient.StatusCode(err))
	})

	t.Run("upload id required by dump endpoint", func(t *testing.T) {
		t.Parallel()

		server, _ := newRobloxServer(t, `{"version":"v"}`, http.StatusOK)
		_, err := sources.NewAPISourceHandler(newTestHTTPClient()).FetchClasses(context.Background(), apiSource(server.URL))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "clientVersionUpload")
	})

	t.Run("version endpoint unreachable", func(t *testing.T) {
		t.Parallel()

		server, _ := newRobloxServer(t, `{}`, http.StatusOK)
		source := apiSource(server.URL)
		server.Close()

		_, err := sources.NewAPISourceHandler(newTestHTTPClient()).FetchClasses(context.Background(), source)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query client version")
	})
}

func TestAPISourceHandler_Validate(t *testing.T) {
	t.Parallel()

	handler := sources.NewAPISourceHandler(newTestHTTPClient())

	require.Error(t, handler.Validate(nil))
	require.Error(t, handler.Validate(&config.SourceConfig{}))
	require.Error(t, handler.Validate(&config.SourceConfig{API: &config.APIConfig{VersionEndpoint: "http://x"}}))
	require.NoError(t, handler.Validate(apiSource("http://localhost")))
}

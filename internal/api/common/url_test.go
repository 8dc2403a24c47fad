package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveParam routes value through chi and returns what validate reported
func serveParam(t *testing.T, value string, validate func(*http.Request, string) (string, error)) (string, error) {
	t.Helper()

	var got string
	var gotErr error
	router := chi.NewRouter()
	router.Get("/{name}", func(_ http.ResponseWriter, r *http.Request) {
		got, gotErr = validate(r, "name")
	})

	req, err := http.NewRequest(http.MethodGet, "/"+value, nil)
	require.NoError(t, err)
	router.ServeHTTP(httptest.NewRecorder(), req)
	return got, gotErr
}

func TestGetAndValidateURLParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		paramValue string
		wantValue  string
		wantErrMsg string
	}{
		{name: "plain", paramValue: "Part", wantValue: "Part"},
		{name: "url-encoded slash", paramValue: "a%2Fb", wantValue: "a/b"},
		{name: "url-encoded plus", paramValue: "a%2Bb", wantValue: "a+b"},
		{name: "url-encoded space only", paramValue: "%20", wantErrMsg: "name cannot be empty"},
		{name: "url-encoded tab only", paramValue: "%09", wantErrMsg: "name cannot be empty"},
		{name: "space in middle", paramValue: "Mesh%20Part", wantErrMsg: "name cannot contain whitespace"},
		{name: "newline at end", paramValue: "Part%0A", wantErrMsg: "name cannot contain whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			value, err := serveParam(t, tt.paramValue, GetAndValidateURLParam)
			if tt.wantErrMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestGetAndValidateURLParam_InvalidEncoding(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"Part%2", "Part%ZZ", "Part%"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("name", value)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

		_, err := GetAndValidateURLParam(req, "name")
		require.Error(t, err, value)
		assert.Equal(t, "invalid URL encoding in name", err.Error())
	}
}

func TestGetClassNameParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		paramValue string
		wantErrMsg string
	}{
		{name: "class name", paramValue: "MeshPart"},
		{name: "underscore and digits", paramValue: "UIGridStyleLayout_2"},
		{name: "leading digit", paramValue: "3DText", wantErrMsg: "name is not a valid class name"},
		{name: "punctuation", paramValue: "Part.Size", wantErrMsg: "name is not a valid class name"},
		{name: "too long", paramValue: strings.Repeat("A", maxClassNameLength+1), wantErrMsg: "name exceeds 100 characters"},
		{name: "whitespace", paramValue: "Mesh%20Part", wantErrMsg: "name cannot contain whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			value, err := serveParam(t, tt.paramValue, GetClassNameParam)
			if tt.wantErrMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.paramValue, value)
		})
	}
}

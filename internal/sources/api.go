package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/httpclient"
)

// UploadPlaceholder is replaced in the dump endpoint with the client version upload id
const UploadPlaceholder = "{upload}"

// apiSourceHandler fetches the API dump over HTTP
type apiSourceHandler struct {
	httpClient httpclient.Client
}

// NewAPISourceHandler creates a new API source handler
func NewAPISourceHandler(httpClient httpclient.Client) SourceHandler {
	return &apiSourceHandler{
		httpClient: httpClient,
	}
}

// clientVersion is the client-version endpoint response
type clientVersion struct {
	Version string
	Upload  string
}

// Validate validates the API source configuration
func (*apiSourceHandler) Validate(source *config.SourceConfig) error {
	if source == nil {
		return fmt.Errorf("source configuration cannot be nil")
	}
	if source.API == nil {
		return fmt.Errorf("api configuration is required")
	}
	if source.API.VersionEndpoint == "" {
		return fmt.Errorf("api version endpoint cannot be empty")
	}
	if source.API.DumpEndpoint == "" {
		return fmt.Errorf("api dump endpoint cannot be empty")
	}
	return nil
}

// CurrentVersion asks the version endpoint which client version is live
func (h *apiSourceHandler) CurrentVersion(ctx context.Context, source *config.SourceConfig) (string, error) {
	if err := h.Validate(source); err != nil {
		return "", fmt.Errorf("source validation failed: %w", err)
	}

	cv, err := h.fetchClientVersion(ctx, source.API.VersionEndpoint)
	if err != nil {
		return "", err
	}
	return cv.token(), nil
}

// FetchClasses resolves the live client version and downloads its API dump
func (h *apiSourceHandler) FetchClasses(ctx context.Context, source *config.SourceConfig) (*FetchResult, error) {
	if err := h.Validate(source); err != nil {
		return nil, fmt.Errorf("source validation failed: %w", err)
	}
	logger := logr.FromContextOrDiscard(ctx)

	cv, err := h.fetchClientVersion(ctx, source.API.VersionEndpoint)
	if err != nil {
		return nil, err
	}

	dumpURL := source.API.DumpEndpoint
	if strings.Contains(dumpURL, UploadPlaceholder) {
		if cv.Upload == "" {
			return nil, fmt.Errorf("version endpoint did not report clientVersionUpload required by %s", dumpURL)
		}
		dumpURL = strings.ReplaceAll(dumpURL, UploadPlaceholder, cv.Upload)
	}

	logger.V(1).Info("Downloading class dump", "url", dumpURL, "version", cv.Version)
	data, err := h.httpClient.Get(ctx, dumpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download class dump: %w", err)
	}

	parsed, err := ParseClasses(data, source.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse class dump: %w", err)
	}

	return NewFetchResult(parsed.Names, cv.token(), hashData(data), source.Format), nil
}

func (h *apiSourceHandler) fetchClientVersion(ctx context.Context, endpoint string) (*clientVersion, error) {
	data, err := h.httpClient.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to query client version: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("client version response is not valid JSON")
	}

	fields := gjson.GetManyBytes(data, "version", "clientVersionUpload")
	cv := &clientVersion{
		Version: fields[0].String(),
		Upload:  fields[1].String(),
	}
	if cv.token() == "" {
		return nil, fmt.Errorf("client version response has neither version nor clientVersionUpload")
	}
	return cv, nil
}

// token is the version token used as freshness marker
func (cv *clientVersion) token() string {
	if cv.Version != "" {
		return cv.Version
	}
	return cv.Upload
}

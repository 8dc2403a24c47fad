package sources

import (
	"fmt"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/git"
	"github.com/pinehappi/argon/internal/httpclient"
)

// defaultSourceHandlerFactory is the default implementation of SourceHandlerFactory
type defaultSourceHandlerFactory struct {
	httpClient httpclient.Client
	gitClient  git.Client
}

var _ SourceHandlerFactory = (*defaultSourceHandlerFactory)(nil)

// FactoryOption configures the handler factory
type FactoryOption func(*defaultSourceHandlerFactory)

// WithHTTPClient sets the HTTP client used by api sources
func WithHTTPClient(client httpclient.Client) FactoryOption {
	return func(f *defaultSourceHandlerFactory) {
		f.httpClient = client
	}
}

// WithGitClient sets the Git client used by git sources
func WithGitClient(client git.Client) FactoryOption {
	return func(f *defaultSourceHandlerFactory) {
		f.gitClient = client
	}
}

// NewSourceHandlerFactory creates a new source handler factory
func NewSourceHandlerFactory(opts ...FactoryOption) SourceHandlerFactory {
	f := &defaultSourceHandlerFactory{}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = httpclient.NewDefaultClient(0)
	}
	if f.gitClient == nil {
		f.gitClient = git.NewDefaultGitClient()
	}
	return f
}

// CreateHandler creates a source handler for the given source type
func (f *defaultSourceHandlerFactory) CreateHandler(sourceType string) (SourceHandler, error) {
	switch sourceType {
	case config.SourceTypeAPI:
		return NewAPISourceHandler(f.httpClient), nil
	case config.SourceTypeGit:
		return NewGitSourceHandler(f.gitClient), nil
	case config.SourceTypeFile:
		return NewFileSourceHandler(), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

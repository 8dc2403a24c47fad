package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/viper"

	v0 "github.com/pinehappi/argon/internal/api/v0"
	argonapp "github.com/pinehappi/argon/internal/app"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/httpclient"
	"github.com/pinehappi/argon/internal/service"
	"github.com/pinehappi/argon/internal/status"
)

// controlTimeout bounds calls to a running session. Refreshes may download a full API dump.
const controlTimeout = 2 * time.Minute

// controlClient talks to the HTTP API of a running session
type controlClient struct {
	baseURL string
	client  httpclient.Client
}

func newControlClient(cfg *config.Config) *controlClient {
	return newControlClientAt("http://" + dialAddress(cfg.GetServerAddress()))
}

// newControlClientAt makes a single attempt per call, so an absent session is
// reported without waiting on backoff
func newControlClientAt(baseURL string) *controlClient {
	return &controlClient{
		baseURL: baseURL,
		client:  httpclient.NewDefaultClient(controlTimeout, httpclient.WithRetries(1)),
	}
}

// dialAddress turns a listen address into one a client can connect to
func dialAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// unreachable reports whether err means no session is listening
func unreachable(err error) bool {
	return err != nil && httpclient.StatusCode(err) == 0
}

// stop asks the running session to stop
func (c *controlClient) stop(ctx context.Context) (status.Code, error) {
	// Post is never retried: a repeated stop would answer 409 and read as not running
	data, err := c.client.Post(ctx, c.baseURL+"/stop", nil)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusConflict {
			return status.CodeNotRunning, nil
		}
		return "", err
	}
	var resp v0.StopResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to decode stop response: %w", err)
	}
	return resp.Code, nil
}

// refresh asks the running session to refresh its class database
func (c *controlClient) refresh(ctx context.Context, force bool) (status.Code, *v0.RefreshResponse, error) {
	target := c.baseURL + "/classes/refresh?force=" + url.QueryEscape(strconv.FormatBool(force))
	// Sent once, like stop
	data, err := c.client.Post(ctx, target, nil)
	if err != nil {
		switch httpclient.StatusCode(err) {
		case 0:
			return "", nil, err
		case http.StatusConflict:
			return status.CodeBusy, nil, nil
		case http.StatusBadGateway:
			return status.CodeConnectionFailed, nil, nil
		default:
			return status.CodeGenericError, nil, nil
		}
	}
	var resp v0.RefreshResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	return resp.Code, &resp, nil
}

// details fetches the session details
func (c *controlClient) details(ctx context.Context) (*service.Details, error) {
	data, err := c.client.Get(ctx, c.baseURL+"/details")
	if err != nil {
		return nil, err
	}
	var details service.Details
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}
	return &details, nil
}

// openLocal builds the application without serving it, for commands that
// work on the workspace cache directly. close releases its resources.
func openLocal(ctx context.Context, v *viper.Viper, notifier status.Notifier) (*argonapp.ArgonApp, func(), error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, nil, err
	}
	opts := []argonapp.ArgonAppOptions{argonapp.WithConfig(cfg)}
	if notifier != nil {
		opts = append(opts, argonapp.WithNotifier(notifier))
	}
	app, err := argonapp.NewArgonApp(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	closeFn := func() {
		_ = app.GetComponents().Telemetry.Shutdown(context.WithoutCancel(ctx))
	}
	return app, closeFn, nil
}

// Package app provides application lifecycle management for an argon session.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/session"
)

// ArgonApp encapsulates all components needed to run a sync session and its
// HTTP server. It provides lifecycle management and graceful shutdown.
type ArgonApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
	doneOnce   sync.Once
}

// Start starts the session, the periodic check and the HTTP server.
// It blocks until the HTTP server stops or encounters an error.
func (app *ArgonApp) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(listener)
}

// Serve is Start on an existing listener
func (app *ArgonApp) Serve(listener net.Listener) error {
	logger := logr.FromContextOrDiscard(app.ctx)

	if err := app.components.Session.Start(app.ctx); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to start session: %w", err)
	}

	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			logger.Error(err, "Sync coordinator failed")
		}
	}()

	logger.Info("Server listening", "address", listener.Addr().String())
	if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Done is closed once the session has been stopped through the API
func (app *ArgonApp) Done() <-chan struct{} {
	return app.done
}

// requestShutdown is the stop hook of the class service
func (app *ArgonApp) requestShutdown() {
	app.doneOnce.Do(func() { close(app.done) })
}

// Stop gracefully stops the application with the given timeout. It stops
// the periodic check, the session and the HTTP server, then flushes metrics.
func (app *ArgonApp) Stop(timeout time.Duration) error {
	logger := logr.FromContextOrDiscard(app.ctx)
	logger.Info("Shutting down server...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		logger.Error(err, "Failed to stop sync coordinator")
	}

	// Cancel first so an in-flight start check gives up
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if app.components.Session.Phase() == session.PhaseRunning {
		if err := app.components.Session.Stop(app.ctx); err != nil {
			logger.Error(err, "Failed to stop session")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if app.components.Telemetry != nil {
		if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "Failed to shut down telemetry")
		}
	}

	logger.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *ArgonApp) GetConfig() *config.Config {
	return app.config
}

// GetComponents returns the wired components
func (app *ArgonApp) GetComponents() *AppComponents {
	return app.components
}

// GetHTTPServer returns the HTTP server
func (app *ArgonApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

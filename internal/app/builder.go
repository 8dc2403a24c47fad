package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"

	"github.com/pinehappi/argon/internal/api"
	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/httpclient"
	"github.com/pinehappi/argon/internal/service"
	"github.com/pinehappi/argon/internal/session"
	"github.com/pinehappi/argon/internal/sources"
	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/internal/storage"
	pkgsync "github.com/pinehappi/argon/internal/sync"
	"github.com/pinehappi/argon/internal/sync/coordinator"
	"github.com/pinehappi/argon/internal/telemetry"
	"github.com/pinehappi/argon/internal/versions"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// ArgonAppOptions is a function that configures the app builder
type ArgonAppOptions func(*argonAppConfig) error

// argonAppConfig collects the builder inputs. Component overrides exist for tests.
type argonAppConfig struct {
	config *config.Config

	// Optional component overrides
	sourceHandlerFactory sources.SourceHandlerFactory
	storageManager       storage.StorageManager
	statusPersistence    status.StatusPersistence
	syncManager          pkgsync.Manager
	database             *classdb.Database
	notifier             status.Notifier

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry options
	meterOptions []telemetry.MeterProviderOption
}

func baseConfig(opts ...ArgonAppOptions) (*argonAppConfig, error) {
	cfg := &argonAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetServerAddress()
	}

	return cfg, nil
}

// NewArgonApp wires the class database, sync, session, service and HTTP
// components. The persisted cache is restored before the app is returned.
func NewArgonApp(ctx context.Context, opts ...ArgonAppOptions) (*ArgonApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, cfg.config, versions.Current().Version, cfg.meterOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = tel.Shutdown(ctx)
		}
	}()

	db, syncManager, syncCoordinator, err := buildSyncComponents(ctx, cfg, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	sess := session.New(syncCoordinator, cfg.notifier,
		session.WithCheckOnStart(cfg.config.CheckOnStart()),
		session.WithWorkspace(cfg.config.Workspace),
	)

	appCtx, cancel := context.WithCancel(ctx)
	app := &ArgonApp{
		config: cfg.config,
		ctx:    appCtx,
		done:   make(chan struct{}),
	}
	app.cancelFunc = cancel

	svcOpts := []service.ServiceOption{service.WithStopHook(app.requestShutdown)}
	if cfg.notifier != nil {
		svcOpts = append(svcOpts, service.WithNotifier(cfg.notifier))
	}
	classService := service.New(cfg.config, db, sess, syncCoordinator, svcOpts...)

	app.httpServer = buildHTTPServer(ctx, cfg, classService, tel)
	app.components = &AppComponents{
		Database:        db,
		SyncManager:     syncManager,
		SyncCoordinator: syncCoordinator,
		Session:         sess,
		ClassService:    classService,
		Telemetry:       tel,
	}

	cleanupNeeded = false
	return app, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress overrides the configured HTTP server address
func WithAddress(addr string) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		idx := strings.LastIndex(addr, ":")
		if idx < 0 || idx == len(addr)-1 {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host, port := addr[:idx], addr[idx+1:]
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithNotifier sets the notification port that receives status codes
func WithNotifier(notifier status.Notifier) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.notifier = notifier
		return nil
	}
}

// WithSourceHandlerFactory allows injecting a custom source handler factory
func WithSourceHandlerFactory(f sources.SourceHandlerFactory) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.sourceHandlerFactory = f
		return nil
	}
}

// WithStorageManager allows injecting a custom cache store
func WithStorageManager(sm storage.StorageManager) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.storageManager = sm
		return nil
	}
}

// WithStatusPersistence allows injecting a custom status store
func WithStatusPersistence(sp status.StatusPersistence) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.statusPersistence = sp
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager. It must operate
// on the database passed with WithDatabase.
func WithSyncManager(sm pkgsync.Manager) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithDatabase allows injecting the class database
func WithDatabase(db *classdb.Database) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.database = db
		return nil
	}
}

// WithMeterProviderOptions passes extra options to the meter provider
func WithMeterProviderOptions(opts ...telemetry.MeterProviderOption) ArgonAppOptions {
	return func(cfg *argonAppConfig) error {
		cfg.meterOptions = append(cfg.meterOptions, opts...)
		return nil
	}
}

// buildSyncComponents builds the class database, sync manager and coordinator
func buildSyncComponents(
	ctx context.Context,
	b *argonAppConfig,
	tel *telemetry.Telemetry,
) (*classdb.Database, pkgsync.Manager, coordinator.Coordinator, error) {
	logger := logr.FromContextOrDiscard(ctx)
	logger.Info("Initializing sync components")

	if b.sourceHandlerFactory == nil {
		client := httpclient.NewDefaultClient(b.config.GetHTTPTimeout(),
			httpclient.WithRetries(b.config.GetHTTPRetries()))
		b.sourceHandlerFactory = sources.NewSourceHandlerFactory(sources.WithHTTPClient(client))
	}

	if b.storageManager == nil {
		sm, err := storage.NewFileStorageManager(b.config.CacheDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create cache storage: %w", err)
		}
		b.storageManager = sm
	}

	if b.statusPersistence == nil {
		b.statusPersistence = status.NewFileStatusPersistence(b.config.CacheDir)
	}

	if b.database == nil {
		b.database = classdb.New()
	}

	if b.syncManager == nil {
		b.syncManager = pkgsync.NewDefaultSyncManager(b.config, b.database, b.sourceHandlerFactory, b.storageManager)
	}

	// A missing or unreadable cache leaves the builtin seed in place
	if err := b.syncManager.Restore(ctx); err != nil {
		if errors.Is(err, storage.ErrCacheNotFound) {
			logger.Info("No class cache found, starting from the builtin seed")
		} else {
			logger.Error(err, "Failed to restore class cache, starting from the builtin seed")
		}
	}
	tel.RefreshMetrics().RecordClassCount(ctx, b.database.Len())

	coordOpts := []coordinator.Option{
		coordinator.WithStatusPersistence(b.statusPersistence),
		coordinator.WithRefreshMetrics(tel.RefreshMetrics()),
	}
	if lastStatus, err := b.statusPersistence.LoadStatus(ctx); err != nil {
		logger.Error(err, "Failed to load sync status, starting without history")
	} else {
		coordOpts = append(coordOpts, coordinator.WithInitialStatus(lastStatus))
	}
	if b.notifier != nil {
		coordOpts = append(coordOpts, coordinator.WithNotifier(b.notifier))
	}

	syncCoordinator := coordinator.New(b.syncManager, b.config, coordOpts...)
	logger.Info("Sync components initialized successfully",
		"source", b.config.Source.Type,
		"classCount", b.database.Len())

	return b.database, b.syncManager, syncCoordinator, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	ctx context.Context,
	b *argonAppConfig,
	svc service.ClassService,
	tel *telemetry.Telemetry,
) *http.Server {
	logger := logr.FromContextOrDiscard(ctx)

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.ContextLogger(logger),
			api.LoggingMiddleware,
		}
	}

	// Metrics come first so rejected requests are counted too
	middlewares := append([]func(http.Handler) http.Handler{tel.HTTPMetrics().Middleware}, b.middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(middlewares...)}
	if handler := tel.Handler(); handler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(handler))
	}

	server := &http.Server{
		Addr:         b.address,
		Handler:      api.NewServer(svc, serverOpts...),
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	logger.Info("HTTP server configured", "address", b.address)
	return server
}

package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	argonapp "github.com/pinehappi/argon/internal/app"
	"github.com/pinehappi/argon/internal/session"
)

const defaultGracefulTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a sync session for the workspace",
		Long: `Start a sync session for the workspace.

The cached class list is restored, checked against the remote source unless
syncPolicy.checkOnStart is false, and served on the local HTTP API until the
process is interrupted or "argon stop" is run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}
	cmd.Flags().String("address", "", "Address to listen on (default: server.address from the config)")
	_ = v.BindPFlag("address", cmd.Flags().Lookup("address"))
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()
	logger := logr.FromContextOrDiscard(ctx)

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	logger.Info("Loaded configuration",
		"workspace", cfg.Workspace,
		"source", cfg.Source.Type,
		"cacheDir", cfg.CacheDir)

	opts := []argonapp.ArgonAppOptions{
		argonapp.WithConfig(cfg),
		argonapp.WithNotifier(newTerminalNotifier(cmd.OutOrStdout())),
	}
	if address := v.GetString("address"); address != "" {
		opts = append(opts, argonapp.WithAddress(address))
	}

	app, err := argonapp.NewArgonApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		_ = app.Stop(defaultGracefulTimeout)
		if errors.Is(err, session.ErrNoWorkspace) {
			// Already reported through the notifier
			return nil
		}
		return err
	case <-app.Done():
		logger.Info("Session stopped through the API")
	case sig := <-quit:
		logger.Info("Received signal", "signal", sig.String())
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return <-serveErr
}

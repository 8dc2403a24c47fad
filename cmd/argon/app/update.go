package app

import (
	"errors"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pinehappi/argon/internal/status"
)

func newUpdateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh the class database",
		Long: `Refresh the class database.

When a session is running the refresh happens inside it. Otherwise the
workspace cache is refreshed directly. Without --force the remote source is
only contacted when the cache is missing or older than syncPolicy.maxAge.

--clean removes the workspace cache and starts again from the builtin class
list before a forced refresh. It needs the session to be stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			clean, err := cmd.Flags().GetBool("clean")
			if err != nil {
				return err
			}
			if clean {
				return runClean(cmd, v)
			}
			return runUpdate(cmd, v, force)
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Contact the remote source even when the cache is fresh")
	cmd.Flags().Bool("clean", false, "Delete the workspace cache before a forced refresh")
	return cmd
}

// errSessionRunning is returned by --clean while a session serves the workspace
var errSessionRunning = errors.New("stop the running session before cleaning the class cache")

func runClean(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()
	notifier := newTerminalNotifier(cmd.OutOrStdout())

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	// A running session keeps its own copy of the database in memory
	if _, err := newControlClient(cfg).details(ctx); err == nil || !unreachable(err) {
		notifier.Notify(status.CodeGenericError)
		return errSessionRunning
	}

	app, closeFn, err := openLocal(ctx, v, notifier)
	if err != nil {
		return err
	}
	defer closeFn()

	components := app.GetComponents()
	if err := components.SyncManager.Delete(ctx); err != nil {
		notifier.Notify(status.CodeGenericError)
		return err
	}
	_, _ = components.ClassService.Refresh(ctx, true)
	return nil
}

func runUpdate(cmd *cobra.Command, v *viper.Viper, force bool) error {
	ctx := cmd.Context()
	logger := logr.FromContextOrDiscard(ctx)
	notifier := newTerminalNotifier(cmd.OutOrStdout())

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	code, resp, err := newControlClient(cfg).refresh(ctx, force)
	switch {
	case err == nil:
		if resp != nil {
			logger.Info("Refresh finished",
				"outcome", resp.Outcome,
				"reason", resp.Reason,
				"version", resp.Version,
				"classCount", resp.ClassCount)
		}
		notifier.Notify(code)
		return nil
	case !unreachable(err):
		notifier.Notify(status.CodeGenericError)
		return err
	}

	logger.V(1).Info("No session is listening, refreshing the workspace cache", "error", err.Error())
	app, closeFn, err := openLocal(ctx, v, notifier)
	if err != nil {
		return err
	}
	defer closeFn()

	// The service reports the outcome through the notifier
	_, _ = app.GetComponents().ClassService.Refresh(ctx, force)
	return nil
}

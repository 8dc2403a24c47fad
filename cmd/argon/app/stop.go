package app

import (
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pinehappi/argon/internal/status"
)

func newStopCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running sync session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			notifier := newTerminalNotifier(cmd.OutOrStdout())

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			code, err := newControlClient(cfg).stop(ctx)
			if unreachable(err) {
				logr.FromContextOrDiscard(ctx).V(1).Info("No session is listening", "error", err.Error())
				notifier.Notify(status.CodeNotRunning)
				return nil
			}
			if err != nil {
				notifier.Notify(status.CodeGenericError)
				return err
			}
			notifier.Notify(code)
			return nil
		},
	}
}

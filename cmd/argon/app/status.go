package app

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pinehappi/argon/internal/service"
	"github.com/pinehappi/argon/internal/session"
	"github.com/pinehappi/argon/internal/status"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and the last class database refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			details, err := newControlClient(cfg).details(ctx)
			if err != nil && !unreachable(err) {
				return err
			}

			syncStatus, err := status.NewFileStatusPersistence(cfg.CacheDir).LoadStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to read sync status: %w", err)
			}

			return renderStatus(cmd.OutOrStdout(), details, syncStatus)
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

// renderStatus prints a key/value table. details is nil when no session is listening.
func renderStatus(w io.Writer, details *service.Details, syncStatus *status.SyncStatus) error {
	rows := [][]string{}
	if details == nil {
		rows = append(rows, []string{"Session", string(session.PhaseStopped)})
	} else {
		rows = append(rows,
			[]string{"Session", details.Phase},
			[]string{"Session ID", details.SessionID},
			[]string{"Started", formatTime(details.StartedAt)},
			[]string{"Classes", fmt.Sprint(details.ClassCount)},
			[]string{"Source", string(details.Source)},
		)
	}

	rows = append(rows,
		[]string{"Sync phase", orDash(string(syncStatus.Phase))},
		[]string{"Last outcome", outcome(syncStatus.LastOutcome)},
		[]string{"Version", orDash(syncStatus.LastSyncVersion)},
		[]string{"Last attempt", formatTime(syncStatus.LastAttempt)},
		[]string{"Last sync", formatTime(syncStatus.LastSyncTime)},
		[]string{"Attempts", fmt.Sprint(syncStatus.AttemptCount)},
	)
	if syncStatus.Message != "" {
		rows = append(rows, []string{"Message", syncStatus.Message})
	}

	table := tablewriter.NewWriter(w)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func outcome(code status.Code) string {
	if code == "" {
		return "-"
	}
	return Message(code)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

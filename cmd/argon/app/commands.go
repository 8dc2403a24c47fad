// Package app provides the cobra commands of the argon CLI.
package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/versions"
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "argon",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Keep a workspace's engine class database in sync",
		Long: `argon keeps a local database of engine class names in sync with Roblox.

A session (argon serve) restores the cached class list, checks it against the
remote source and serves it over a local HTTP API while the workspace is open.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logr.FromContextOrDiscard(cmd.Context()).Error(err, "Error displaying help")
			}
		},
	}

	rootCmd.PersistentFlags().StringP("workspace", "w", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (default: <workspace>/argon.yaml)")
	for _, name := range []string{"workspace", "config"} {
		_ = v.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(
		newServeCmd(v),
		newStopCmd(v),
		newUpdateCmd(v),
		newClassesCmd(v),
		newDocCmd(v),
		newStatusCmd(v),
		newVersionCmd(),
	)

	return rootCmd
}

// loadConfig loads the configuration selected by the workspace and config flags
func loadConfig(v *viper.Viper) (*config.Config, error) {
	opts := []config.Option{config.WithWorkspace(v.GetString("workspace"))}
	if path := v.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func printVersion(w io.Writer, format string) error {
	info := versions.Current()
	if format == "json" {
		output, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("error formatting version info as JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(output))
		return err
	}
	_, err := fmt.Fprintln(w, info.String())
	return err
}

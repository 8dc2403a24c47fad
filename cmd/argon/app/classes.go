package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pinehappi/argon/internal/service"
)

func newClassesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes [name]",
		Short: "List the known engine classes or look one up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, closeFn, err := openLocal(ctx, v, nil)
			if err != nil {
				return err
			}
			defer closeFn()
			svc := app.GetComponents().ClassService

			if len(args) == 1 {
				name, err := svc.GetClass(ctx, args[0])
				if errors.Is(err, service.ErrClassNotFound) {
					return fmt.Errorf("%q is not a known class", args[0])
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), name)
				return err
			}

			var opts []service.Option[service.ListClassesOptions]
			if prefix, _ := cmd.Flags().GetString("prefix"); prefix != "" {
				opts = append(opts, service.WithPrefix(prefix))
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit != 0 {
				opts = append(opts, service.WithLimit(limit))
			}
			classes, err := svc.ListClasses(ctx, opts...)
			if err != nil {
				return err
			}
			return renderClasses(cmd.OutOrStdout(), classes)
		},
	}
	cmd.Flags().String("prefix", "", "Only list classes starting with this prefix (case-insensitive)")
	cmd.Flags().Int("limit", 0, "Maximum number of classes to list")
	return cmd
}

func renderClasses(w io.Writer, classes []string) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "CLASS")
	for i, name := range classes {
		if err := table.Append(fmt.Sprint(i+1), name); err != nil {
			return err
		}
	}
	return table.Render()
}

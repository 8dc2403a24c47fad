package app

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pinehappi/argon/internal/service"
)

// docsBaseURL is the engine class reference
const docsBaseURL = "https://create.roblox.com/docs/reference/engine/classes/"

// openURL is swapped in tests
var openURL = browser.OpenURL

// DocURL returns the reference page of class
func DocURL(class string) string {
	return docsBaseURL + url.PathEscape(class)
}

func newDocCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc <class>",
		Short: "Open the reference page of an engine class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, closeFn, err := openLocal(ctx, v, nil)
			if err != nil {
				return err
			}
			defer closeFn()

			name, err := app.GetComponents().ClassService.GetClass(ctx, args[0])
			if errors.Is(err, service.ErrClassNotFound) {
				return fmt.Errorf("%q is not a known class", args[0])
			}
			if err != nil {
				return err
			}

			target := DocURL(name)
			if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), target)
				return err
			}
			if err := openURL(target); err != nil {
				return fmt.Errorf("failed to open %s: %w", target, err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("print", false, "Print the URL instead of opening a browser")
	return cmd
}

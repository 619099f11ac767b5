package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/update"
	"github.com/acto-dev/ajax/internal/validation"
)

// version is set at build time via ldflags
var version = "dev"

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print version information",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			var result *update.CheckResult
			if check {
				// The release check fails silently.
				if client, err := api.New(
					api.WithURLValidator(validation.ValidateTargetURL),
					api.WithUserAgent("ajax/"+version),
				); err == nil {
					result = update.CheckForUpdate(cmd.Context(), client, version)
				}
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"version": version,
					"update":  result,
				})
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ajax version %s\n", version)
			if result != nil && result.UpdateAvailable {
				errOut := cmd.ErrOrStderr()
				_, _ = fmt.Fprintf(errOut, "\nUpdate available: %s -> %s\n", result.CurrentVersion, result.LatestVersion)
				_, _ = fmt.Fprintf(errOut, "Download: %s\n", result.UpdateURL)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check for a newer release")

	return cmd
}

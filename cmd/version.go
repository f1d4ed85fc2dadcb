package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfga/mpath/internal/build"
)

// NewVersionCommand returns the command to get the mpath version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Return the mpath version",
		Long:  "Return the mpath version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mpath version %s date %s commit %s\n", build.Version, build.Date, build.Commit)
			return err
		},
	}
}

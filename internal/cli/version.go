package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, set from main via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "mrrp %s (commit %s, built %s)\n", Version, Commit, Date)
		return err
	},
}

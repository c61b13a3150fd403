// Package flags holds flags shared by several commands.
package flags

import (
	"github.com/spf13/cobra"
)

// DryRunFlag names the flag that stops service restarts.
const DryRunFlag = "dry-run"

// AddDryRunFlags registers --dry-run and its --no-restart alias on cmd and
// every command below it.
func AddDryRunFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(DryRunFlag, false, "Write configuration but log service restarts instead of running them")
	cmd.PersistentFlags().Bool("no-restart", false, "Alias for --dry-run")
}

// IsDryRun reports whether either spelling was given.
func IsDryRun(cmd *cobra.Command) bool {
	dry, _ := cmd.Flags().GetBool(DryRunFlag)
	noRestart, _ := cmd.Flags().GetBool("no-restart")
	return dry || noRestart
}

/* cmd/root.go */

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/cmd_helpers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/flags"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Subcommands
	"github.com/CodeMonkeyCybersecurity/prov/cmd/create"
	"github.com/CodeMonkeyCybersecurity/prov/cmd/delete"
	"github.com/CodeMonkeyCybersecurity/prov/cmd/read"
	"github.com/CodeMonkeyCybersecurity/prov/cmd/rename"
	"github.com/CodeMonkeyCybersecurity/prov/cmd/sync"
	"github.com/CodeMonkeyCybersecurity/prov/cmd/update"
	"github.com/CodeMonkeyCybersecurity/prov/cmd/watch"
)

// RootCmd is the base command for prov.
var RootCmd = &cobra.Command{
	Use:   "prov",
	Short: "Network boot provisioning server",
	Long: `prov keeps an inventory of distros, profiles, systems, repos and images,
and turns it into the TFTP and HTTP trees and the DHCP, DNS and TFTP service
configuration that network-booted machines need.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// HelpCmd wraps help so that it can be invoked like a normal command.
var HelpCmd = &cobra.Command{
	Use:   "help",
	Short: "Help about any command",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return RootCmd.Help()
		}
		c, _, err := RootCmd.Find(args)
		if err != nil || c == nil {
			return fmt.Errorf("command not found: %s", strings.Join(args, " "))
		}
		return c.Help()
	},
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	RootCmd.SetHelpCommand(HelpCmd)
	RootCmd.PersistentFlags().String(cmd_helpers.ConfigFlag, config.DefaultPath, "Settings file")
	flags.AddDryRunFlags(RootCmd)

	for _, subCmd := range []*cobra.Command{
		sync.SyncCmd,
		create.CreateCmd,
		update.UpdateCmd,
		delete.DeleteCmd,
		rename.RenameCmd,
		read.ReadCmd,
		watch.WatchCmd,
	} {
		RootCmd.AddCommand(subCmd)
	}
}

// Execute runs the root command and exits with the code of the error's
// category.
func Execute() {
	defer logger.Sync()

	RegisterCommands()

	err := RootCmd.Execute()
	if err == nil {
		return
	}
	code := prov_err.GetExitCode(err)
	logger.L().Error("Command failed", zap.Error(err), zap.Int("exit_code", code))
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	for _, hint := range prov_err.Remediation(err) {
		fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
	}
	logger.Sync()
	_ = telemetry.Shutdown(context.Background())
	os.Exit(code)
}

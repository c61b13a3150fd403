// cmd/sync/sync.go
package sync

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/cmd_helpers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_cli"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// SyncCmd regenerates every artifact from the inventory.
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Regenerate the boot trees and service configuration",
	Long: `Empty the generated TFTP and HTTP trees, copy every distro's kernel and
initrd, render every item's files and boot configs, then rewrite and restart
the managed DHCP, DNS and TFTP services.

A failure that concerns one item is reported and the rest still sync. The
command exits non-zero if anything failed.

Examples:
  prov sync
  prov sync --dry-run      # write everything, log service restarts only`,
	Args: cobra.NoArgs,
	RunE: prov_cli.Wrap(runSync),
}

func runSync(rc *prov_io.RuntimeContext, cmd *cobra.Command, _ []string) error {
	logger := otelzap.Ctx(rc.Ctx)

	a, err := cmd_helpers.OpenAPI(rc, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rep, err := a.Sync(rc.Ctx)
	if rep != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sync %s: %s (%s)\n", rep.OperationID, rep.Summary(), rep.Duration.Round(time.Millisecond))
		for _, ae := range rep.Artifacts {
			fmt.Fprintf(out, "  failed: %v\n", ae)
		}
		for _, res := range rep.Managers {
			if !res.Success {
				fmt.Fprintf(out, "  manager %s %s: %s\n", res.Manager, res.Op, res.Error)
			}
		}
	}
	if err != nil {
		return err
	}
	logger.Info("Sync complete", zap.String("operation_id", rep.OperationID))
	return rep.Err()
}

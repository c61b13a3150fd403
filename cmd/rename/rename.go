// cmd/rename/rename.go
package rename

import (
	"github.com/CodeMonkeyCybersecurity/prov/pkg/cmd_helpers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_cli"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// RenameCmd renames an item, keeping its identity.
var RenameCmd = &cobra.Command{
	Use:   "rename <distro|profile|system|repo|image> <old> <new>",
	Short: "Rename an item",
	Long: `Rename an item. Children and profiles listing a renamed repo are updated
to the new name, and the artifacts are regenerated under it.

Example:
  prov rename profile web web-alma9`,
	Args: cobra.ExactArgs(3),
	RunE: prov_cli.Wrap(runRename),
}

func runRename(rc *prov_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	kind, err := inventory.ParseKind(args[0])
	if err != nil {
		return prov_err.NewValidationError(args[0], args[1], "kind", err.Error())
	}

	a, err := cmd_helpers.OpenAPI(rc, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Rename(rc.Ctx, kind, args[1], args[2]); err != nil {
		return err
	}
	otelzap.Ctx(rc.Ctx).Info("Item renamed",
		zap.String("kind", string(kind)),
		zap.String("from", args[1]),
		zap.String("to", args[2]))
	return nil
}

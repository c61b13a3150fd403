// cmd/delete/delete.go
package delete

import (
	"github.com/CodeMonkeyCybersecurity/prov/pkg/cmd_helpers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_cli"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	"github.com/spf13/cobra"
)

var recursive bool

// DeleteCmd removes an item and what it produced.
var DeleteCmd = &cobra.Command{
	Use:   "delete <distro|profile|system|repo|image> <name>",
	Short: "Remove an item",
	Long: `Remove an item and delete the files it produced. An item that others
depend on is refused unless --recursive is given, which removes the
dependents first.

Examples:
  prov delete system web01
  prov delete distro alma9 --recursive`,
	Aliases: []string{"remove"},
	Args:    cobra.ExactArgs(2),
	RunE:    prov_cli.Wrap(runDelete),
}

func init() {
	DeleteCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Also remove every item that depends on this one")
}

func runDelete(rc *prov_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	kind, err := inventory.ParseKind(args[0])
	if err != nil {
		return prov_err.NewValidationError(args[0], args[1], "kind", err.Error())
	}

	a, err := cmd_helpers.OpenAPI(rc, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.Remove(rc.Ctx, kind, args[1], recursive)
}

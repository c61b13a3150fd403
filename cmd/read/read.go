// cmd/read/read.go
package read

import (
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/cmd_helpers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/output"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_cli"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	"github.com/spf13/cobra"
)

var resolved bool

// ReadCmd lists items or shows one.
var ReadCmd = &cobra.Command{
	Use:   "read <distro|profile|system|repo|image> [name]",
	Short: "List items or show one",
	Long: `Without a name, list every item of the kind. With a name, print the item
as stored, or with --resolved the values it ends up with after inheritance.

Examples:
  prov read systems
  prov read system web01
  prov read system web01 --resolved`,
	Aliases: []string{"list", "report"},
	Args:    cobra.RangeArgs(1, 2),
	RunE:    prov_cli.Wrap(runRead),
}

func init() {
	ReadCmd.Flags().BoolVar(&resolved, "resolved", false, "Show the values after inheritance")
}

func runRead(rc *prov_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	kind, err := inventory.ParseKind(args[0])
	if err != nil {
		return prov_err.NewValidationError(args[0], "", "kind", err.Error())
	}

	a, err := cmd_helpers.OpenAPI(rc, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		table := output.NewTableTo(out).WithHeaders("NAME", "PARENT", "DETAIL")
		for _, it := range a.List(kind) {
			table.AddRow(it.Name(), it.Parent().String(), detail(it))
		}
		return table.Render()
	}

	if resolved {
		view, err := a.Resolve(kind, args[1])
		if err != nil {
			return err
		}
		return output.YAMLTo(out, view.Data())
	}
	item, err := a.Find(kind, args[1])
	if err != nil {
		return err
	}
	return output.YAMLTo(out, inventory.ToRecord(item))
}

// detail is the one column that tells items of a kind apart at a glance.
func detail(it inventory.Item) string {
	switch v := it.(type) {
	case *inventory.Distro:
		return v.Arch()
	case *inventory.System:
		return strings.Join(v.MACs(), ",")
	case *inventory.Repo:
		return v.Mirror()
	case *inventory.Image:
		return v.File()
	case *inventory.Profile:
		return strings.Join(v.Repos(), ",")
	}
	return ""
}

// cmd/create/create.go
package create

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

var change cmd_helpers.Change

// CreateCmd adds an item to the inventory and generates its artifacts.
var CreateCmd = &cobra.Command{
	Use:       "create <distro|profile|system|repo|image> <name>",
	Short:     "Add an item to the inventory",
	ValidArgs: []string{"distro", "profile", "system", "repo", "image"},
	Long: `Add an item and generate what it produces. Properties are given as
key=value; list values are space or comma separated, map values are
space separated key=value words.

Examples:
  prov create distro alma9 --set kernel=/srv/alma9/vmlinuz --set initrd=/srv/alma9/initrd.img
  prov create profile web --parent alma9 --set "kernel_options=console=ttyS0 quiet"
  prov create system web01 --parent web --interface name=eth0,mac=52:54:00:aa:bb:01,ip=10.0.0.21,netboot`,
	Args: cobra.ExactArgs(2),
	RunE: prov_cli.Wrap(runCreate),
}

func init() {
	CreateCmd.Flags().StringVar(&change.Parent, "parent", "", "Parent item, as name or kind/name")
	CreateCmd.Flags().StringArrayVar(&change.Sets, "set", nil, "Property to set, as key=value (repeatable)")
	CreateCmd.Flags().StringArrayVar(&change.Interfaces, "interface", nil,
		"System interface, as name=eth0,mac=...,ip=...,netboot (repeatable)")
}

func runCreate(rc *prov_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	logger := otelzap.Ctx(rc.Ctx)

	kind, err := inventory.ParseKind(args[0])
	if err != nil {
		return prov_err.NewValidationError(args[0], args[1], "kind", err.Error())
	}
	item, err := inventory.New(kind, args[1])
	if err != nil {
		return err
	}

	a, err := cmd_helpers.OpenAPI(rc, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if _, err := a.Find(kind, args[1]); err == nil {
		return prov_err.NewValidationError(string(kind), args[1], "name", "a %s with this name already exists", kind)
	}
	exists := func(ref inventory.Ref) bool {
		_, err := a.Find(ref.Kind, ref.Name)
		return err == nil
	}
	if err := change.Apply(item, exists); err != nil {
		return err
	}
	if err := a.Save(rc.Ctx, item); err != nil {
		return err
	}
	logger.Info("Item created",
		zap.String("kind", string(kind)),
		zap.String("name", item.Name()),
		zap.String("uid", item.UID()))
	return nil
}

// cmd/update/update.go
package update

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

// UpdateCmd edits an existing item in place.
var UpdateCmd = &cobra.Command{
	Use:   "update <distro|profile|system|repo|image> <name>",
	Short: "Edit an item",
	Long: `Change an item's parent, properties or interfaces and regenerate what it
and everything below it produces. Set a property to <<inherit>> to take the
parent's value again.

Examples:
  prov update profile web --set "kernel_options=console=ttyS1"
  prov update system web01 --set netboot_enabled=false
  prov update system web01 --remove-interface eth1 --interface name=eth0,ip=10.0.0.30`,
	Aliases: []string{"edit"},
	Args:    cobra.ExactArgs(2),
	RunE:    prov_cli.Wrap(runUpdate),
}

func init() {
	UpdateCmd.Flags().StringVar(&change.Parent, "parent", "", "New parent item, as name or kind/name")
	UpdateCmd.Flags().StringArrayVar(&change.Sets, "set", nil, "Property to set, as key=value (repeatable)")
	UpdateCmd.Flags().StringArrayVar(&change.Interfaces, "interface", nil,
		"System interface to add or replace, as name=eth0,mac=...,ip=... (repeatable)")
	UpdateCmd.Flags().StringArrayVar(&change.RemoveInterfaces, "remove-interface", nil, "System interface to remove (repeatable)")
}

func runUpdate(rc *prov_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	logger := otelzap.Ctx(rc.Ctx)

	kind, err := inventory.ParseKind(args[0])
	if err != nil {
		return prov_err.NewValidationError(args[0], args[1], "kind", err.Error())
	}

	a, err := cmd_helpers.OpenAPI(rc, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	item, err := a.Find(kind, args[1])
	if err != nil {
		return err
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
	logger.Info("Item updated", zap.String("kind", string(kind)), zap.String("name", item.Name()))
	return nil
}

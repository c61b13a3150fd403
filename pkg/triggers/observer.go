package triggers

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
)

// Observer fires the add and delete hooks for committed inventory
// mutations. Hook failures are logged by the bus and never fail the
// mutation that caused them.
type Observer struct {
	Bus *Bus
}

func (o Observer) ItemSaved(ctx context.Context, item, _ inventory.Item) error {
	_ = o.Bus.Fire(ctx, AddPost(item.Kind()), item.Name())
	return nil
}

func (o Observer) ItemRemoved(ctx context.Context, item inventory.Item) error {
	_ = o.Bus.Fire(ctx, DeletePost(item.Kind()), item.Name())
	return nil
}

// pkg/sync/incremental.go

package sync

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/metrics"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/pxe"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/triggers"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// lockFor takes the lock an incremental operation on item needs. Repos are
// referenced across subtrees, so they serialise against everything. So does
// an item whose ancestors are already gone, as in the notifications of a
// recursive remove: its subtree can no longer be named.
func (c *Compiler) lockFor(item inventory.Item) func() {
	if item.Kind() == inventory.KindRepo {
		return c.locks.Full()
	}
	key := item.Ref()
	if !item.Parent().IsZero() {
		root, ok := c.graph.Root(item.Parent())
		if !ok {
			return c.locks.Full()
		}
		key = root
	}
	return c.locks.Subtree(key.String())
}

func (c *Compiler) begin(ctx context.Context, op string, item inventory.Item) (context.Context, *Report, func(*error)) {
	rep := newReport(uuid.NewString(), "incremental")
	ctx, span := telemetry.Start(ctx, "sync."+op,
		attribute.String("operation_id", rep.OperationID),
		attribute.String("item", item.Ref().String()))
	logger := otelzap.Ctx(ctx)
	logger.Debug("Incremental sync starting",
		zap.String("operation_id", rep.OperationID),
		zap.String("op", op),
		zap.String("item", item.Ref().String()))
	return ctx, rep, func(errp *error) {
		rep.Duration = time.Since(rep.Started)
		metrics.SyncDuration.WithLabelValues("incremental").Observe(rep.Duration.Seconds())
		if *errp != nil {
			span.RecordError(*errp)
		}
		span.End()
		logger.Info("Incremental sync finished",
			zap.String("operation_id", rep.OperationID),
			zap.String("op", op),
			zap.String("item", item.Ref().String()),
			zap.String("summary", rep.Summary()),
			zap.Duration("duration", rep.Duration),
			zap.Error(*errp))
	}
}

// AddItem regenerates what item produces after it was added or edited, and
// cascades to everything that inherits from it. previous is the stored
// version before an edit, nil for a new item; its stale boot configs are
// removed.
func (c *Compiler) AddItem(ctx context.Context, item, previous inventory.Item) (rep *Report, err error) {
	release := c.lockFor(item)
	defer release()

	ctx, rep, done := c.begin(ctx, "AddItem", item)
	defer done(&err)

	ref := item.Ref()
	var targets []inventory.Ref
	switch item.Kind() {
	case inventory.KindDistro:
		if d, ok := c.graph.Lookup(ref); ok {
			c.copyDistro(ctx, rep, d.(*inventory.Distro))
		}
		targets = append([]inventory.Ref{ref}, c.graph.Descendants(ref)...)
	case inventory.KindProfile, inventory.KindImage:
		targets = append([]inventory.Ref{ref}, c.graph.Descendants(ref)...)
	case inventory.KindSystem:
		targets = []inventory.Ref{ref}
	case inventory.KindRepo:
		targets = c.repoDependents(item.Name())
	}

	c.renderAll(ctx, rep, targets)
	if prev, ok := previous.(*inventory.System); ok {
		c.dropStaleBootConfigs(ctx, rep, prev)
	}
	if item.Kind() != inventory.KindSystem && item.Kind() != inventory.KindImage {
		c.writeMenu(ctx, rep)
	}

	if err := c.syncHosts(ctx, rep, targets); err != nil {
		return rep, err
	}
	c.fire(ctx, triggers.ClassChange, string(item.Kind()), item.Name())
	return rep, nil
}

// RemoveItem deletes what item produced. The item is already gone from the
// inventory.
func (c *Compiler) RemoveItem(ctx context.Context, item inventory.Item) (rep *Report, err error) {
	release := c.lockFor(item)
	defer release()

	ctx, rep, done := c.begin(ctx, "RemoveItem", item)
	defer done(&err)

	ref := item.Ref()
	switch item.Kind() {
	case inventory.KindDistro:
		c.deletePaths(ctx, rep, ref,
			c.layout.tftpImages(ref.Name),
			c.layout.webImages(ref.Name),
			c.layout.descriptor(ref))
		c.writeMenu(ctx, rep)
	case inventory.KindProfile:
		c.deletePaths(ctx, rep, ref,
			c.layout.descriptor(ref),
			c.layout.autoinstall(ref),
			c.layout.templateDir(ref))
		c.writeMenu(ctx, rep)
	case inventory.KindSystem:
		sys := item.(*inventory.System)
		c.deletePaths(ctx, rep, ref,
			c.layout.descriptor(ref),
			c.layout.autoinstall(ref),
			c.layout.templateDir(ref))
		c.deletePaths(ctx, rep, ref, c.allBootPaths(sys)...)
		if sys.Name() == pxe.DefaultName {
			c.writeMenu(ctx, rep)
		}
		results, merr := c.managers.RemoveSingleSystem(ctx, sys)
		rep.managerResults(results, merr)
		if fatal := writeFailures(merr); fatal != nil {
			return rep, fatal
		}
	case inventory.KindRepo:
		c.renderAll(ctx, rep, c.repoDependents(item.Name()))
	}

	c.fire(ctx, triggers.ClassChange, string(item.Kind()), item.Name())
	return rep, nil
}

// renderAll renders targets kind by kind, parents first.
func (c *Compiler) renderAll(ctx context.Context, rep *Report, targets []inventory.Ref) {
	for _, kind := range []inventory.Kind{inventory.KindDistro, inventory.KindProfile, inventory.KindSystem} {
		for _, t := range targets {
			if t.Kind == kind {
				c.renderItem(ctx, rep, t)
			}
		}
	}
}

// syncHosts tells the managers about the systems among targets: one system
// takes the single-system path, more than one a full manager sync.
func (c *Compiler) syncHosts(ctx context.Context, rep *Report, targets []inventory.Ref) error {
	var systems []*inventory.System
	for _, t := range targets {
		if t.Kind != inventory.KindSystem {
			continue
		}
		if it, ok := c.graph.Lookup(t); ok {
			systems = append(systems, it.(*inventory.System))
		}
	}
	var err error
	switch len(systems) {
	case 0:
		return nil
	case 1:
		results, serr := c.managers.SyncSingleSystem(ctx, systems[0])
		rep.managerResults(results, serr)
		err = serr
	default:
		results, merr := c.managers.Sync(ctx)
		rep.managerResults(results, merr)
		err = merr
	}
	return writeFailures(err)
}

// repoDependents are the profiles listing the repo and everything below
// them.
func (c *Compiler) repoDependents(repo string) []inventory.Ref {
	seen := map[inventory.Ref]bool{}
	var out []inventory.Ref
	for _, it := range c.graph.Profiles().ToList() {
		p := it.(*inventory.Profile)
		uses := false
		for _, r := range p.Repos() {
			if r == repo {
				uses = true
				break
			}
		}
		if !uses {
			continue
		}
		for _, ref := range append([]inventory.Ref{p.Ref()}, c.graph.Descendants(p.Ref())...) {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}

// dropStaleBootConfigs removes the boot configs the previous version of a
// system owned and the current one no longer writes, so a changed MAC,
// address or loader leaves nothing behind.
func (c *Compiler) dropStaleBootConfigs(ctx context.Context, rep *Report, prev *inventory.System) {
	current := map[string]bool{}
	if it, ok := c.graph.Lookup(prev.Ref()); ok {
		sys := it.(*inventory.System)
		if view, err := c.resolver.Resolve(sys.Ref()); err == nil {
			for _, f := range c.systemBootFiles(sys, view) {
				current[f.path] = true
			}
		} else {
			for _, p := range c.allBootPaths(sys) {
				current[p] = true
			}
		}
	}
	var stale []string
	for _, p := range c.allBootPaths(prev) {
		if !current[p] {
			stale = append(stale, p)
		}
	}
	c.deletePaths(ctx, rep, prev.Ref(), stale...)
}

// ItemSaved implements inventory.Observer.
func (c *Compiler) ItemSaved(ctx context.Context, item, previous inventory.Item) error {
	rep, err := c.AddItem(ctx, item, previous)
	if err != nil {
		return err
	}
	return rep.Err()
}

// ItemRemoved implements inventory.Observer.
func (c *Compiler) ItemRemoved(ctx context.Context, item inventory.Item) error {
	rep, err := c.RemoveItem(ctx, item)
	if err != nil {
		return err
	}
	return rep.Err()
}

package inventory

import (
	"context"
	"sort"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Collection is the uniquely named set of items of one kind. It is a view
// onto the Graph and holds no state of its own.
type Collection struct {
	g    *Graph
	kind Kind
}

func (c *Collection) Kind() Kind { return c.kind }

// Find returns a copy of the named item, or nil.
func (c *Collection) Find(name string) Item {
	it, ok := c.g.Lookup(Ref{Kind: c.kind, Name: name})
	if !ok {
		return nil
	}
	return it
}

// ToList returns copies of every item, sorted by name.
func (c *Collection) ToList() []Item {
	c.g.mu.RLock()
	defer c.g.mu.RUnlock()
	out := make([]Item, 0, len(c.g.items[c.kind]))
	for _, it := range c.g.items[c.kind] {
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Children returns the refs of the items whose parent is the named item.
func (c *Collection) Children(name string) []Ref {
	return c.g.Children(Ref{Kind: c.kind, Name: name})
}

// Len returns the number of items.
func (c *Collection) Len() int {
	c.g.mu.RLock()
	defer c.g.mu.RUnlock()
	return len(c.g.items[c.kind])
}

// Add stores a copy of item. An item with the same name and UID is replaced
// (an edit); the same name with a different UID is rejected. Nothing is
// changed unless every check passes.
//
// With save set the item is written through the persister first and
// observers are notified once the change is committed. Observer errors are
// returned but do not undo the commit.
func (c *Collection) Add(ctx context.Context, item Item, save bool) error {
	if item == nil {
		return prov_err.NewValidationError(string(c.kind), "", "", "nil item")
	}
	if item.Kind() != c.kind {
		return prov_err.NewValidationError(string(c.kind), item.Name(), "kind", "cannot add a %s to the %s collection", item.Kind(), c.kind.Plural())
	}
	if err := item.Validate(); err != nil {
		return err
	}
	candidate := item.Clone()

	g := c.g
	g.mu.Lock()
	bucket := g.items[c.kind]
	previous, exists := bucket[candidate.Name()]
	if exists && previous.UID() != candidate.UID() {
		g.mu.Unlock()
		return prov_err.NewValidationError(string(c.kind), candidate.Name(), "name", "a %s with this name already exists", c.kind)
	}
	for name, it := range bucket {
		if it.UID() == candidate.UID() && name != candidate.Name() {
			g.mu.Unlock()
			return prov_err.NewValidationError(string(c.kind), candidate.Name(), "name", "item is stored as %q, rename it instead", name)
		}
	}
	if err := g.checkRefsLocked(candidate); err != nil {
		g.mu.Unlock()
		return err
	}
	if save && g.persister != nil {
		if err := g.persister.SaveItem(ctx, candidate); err != nil {
			g.mu.Unlock()
			return cerr.Wrapf(err, "persist %s %q", c.kind, candidate.Name())
		}
	}
	bucket[candidate.Name()] = candidate
	g.generation++
	observers := append([]Observer(nil), g.observers...)
	g.mu.Unlock()

	g.log.Debug("Item stored",
		zap.String("kind", string(c.kind)),
		zap.String("name", candidate.Name()),
		zap.Bool("edit", exists),
		zap.Bool("save", save))

	if !save {
		return nil
	}
	if !exists {
		previous = nil
	}
	return g.notifySaved(ctx, observers, candidate, previous)
}

// Remove deletes the named item. While other items depend on it the call
// fails with a ReferentialIntegrityError, unless recursive is set, in which
// case dependents are removed depth-first before the item itself. Observers
// get one notification per removed item.
//
// Store deletes all happen before the graph changes. If one fails, the
// items already deleted are written back and the graph is left alone.
func (c *Collection) Remove(ctx context.Context, name string, recursive bool) error {
	g := c.g
	ref := Ref{Kind: c.kind, Name: name}

	g.mu.Lock()
	if _, ok := g.items[c.kind][name]; !ok {
		g.mu.Unlock()
		return prov_err.NewValidationError(string(c.kind), name, "name", "no such %s", c.kind)
	}
	deps := g.dependentsLocked(ref)
	if len(deps) > 0 && !recursive {
		g.mu.Unlock()
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = d.String()
		}
		return prov_err.NewIntegrityError(string(c.kind), name, names)
	}

	var order []Ref
	seen := map[Ref]bool{}
	var visit func(r Ref)
	visit = func(r Ref) {
		if seen[r] {
			return
		}
		seen[r] = true
		for _, d := range g.dependentsLocked(r) {
			visit(d)
		}
		order = append(order, r)
	}
	visit(ref)

	if g.persister != nil {
		var gone []Item
		for _, r := range order {
			if err := g.persister.DeleteItem(ctx, r.Kind, r.Name); err != nil {
				err = cerr.Wrapf(err, "delete %s from store", r)
				for _, it := range gone {
					if rerr := g.persister.SaveItem(ctx, it); rerr != nil {
						err = appendErr(err, cerr.Wrapf(rerr, "restore %s in store", it.Ref()))
					}
				}
				g.mu.Unlock()
				return err
			}
			gone = append(gone, g.items[r.Kind][r.Name])
		}
	}

	removed := make([]Item, 0, len(order))
	for _, r := range order {
		removed = append(removed, g.items[r.Kind][r.Name])
		delete(g.items[r.Kind], r.Name)
	}
	g.generation++
	observers := append([]Observer(nil), g.observers...)
	g.mu.Unlock()

	var err error
	for _, it := range removed {
		g.log.Debug("Item removed", zap.String("kind", string(it.Kind())), zap.String("name", it.Name()))
		if nerr := g.notifyRemoved(ctx, observers, it); nerr != nil {
			err = appendErr(err, nerr)
		}
	}
	return err
}

// Rename changes an item's name, keeping its UID, and rewrites every
// reference to it: children's parent refs and, for repos, profile repo
// lists. A store failure undoes the store writes made so far and leaves the
// graph unchanged.
func (c *Collection) Rename(ctx context.Context, oldName, newName string) error {
	g := c.g
	if !namePattern.MatchString(newName) {
		return prov_err.NewValidationError(string(c.kind), newName, "name", "name may only contain letters, digits and _ . : + -")
	}

	g.mu.Lock()
	bucket := g.items[c.kind]
	item, ok := bucket[oldName]
	if !ok {
		g.mu.Unlock()
		return prov_err.NewValidationError(string(c.kind), oldName, "name", "no such %s", c.kind)
	}
	if oldName == newName {
		g.mu.Unlock()
		return nil
	}
	if _, taken := bucket[newName]; taken {
		g.mu.Unlock()
		return prov_err.NewValidationError(string(c.kind), newName, "name", "a %s with this name already exists", c.kind)
	}

	renamed := item.Clone()
	renamed.core().name = newName
	oldRef, newRef := item.Ref(), renamed.Ref()

	var rewritten []Item
	for _, k := range []Kind{KindProfile, KindSystem} {
		for _, it := range g.items[k] {
			touched := false
			cp := it.Clone()
			if cp.Parent() == oldRef {
				cp.core().parent = newRef
				touched = true
			}
			if p, ok := cp.(*Profile); ok && c.kind == KindRepo {
				repos := p.Repos()
				for i, r := range repos {
					if r == oldName {
						repos[i] = newName
						touched = true
					}
				}
				p.props["repos"] = repos
			}
			if touched {
				rewritten = append(rewritten, cp)
			}
		}
	}
	sort.Slice(rewritten, func(i, j int) bool { return rewritten[i].Name() < rewritten[j].Name() })

	if g.persister != nil {
		if err := g.persistRename(ctx, item, renamed, rewritten); err != nil {
			g.mu.Unlock()
			return err
		}
	}

	delete(bucket, oldName)
	bucket[newName] = renamed
	previous := make(map[Ref]Item, len(rewritten))
	for _, it := range rewritten {
		previous[it.Ref()] = g.items[it.Kind()][it.Name()]
		g.items[it.Kind()][it.Name()] = it
	}
	g.generation++
	observers := append([]Observer(nil), g.observers...)
	g.mu.Unlock()

	g.log.Info("Item renamed",
		zap.String("kind", string(c.kind)),
		zap.String("from", oldName),
		zap.String("to", newName),
		zap.Int("rewritten", len(rewritten)))

	err := g.notifyRemoved(ctx, observers, item)
	if nerr := g.notifySaved(ctx, observers, renamed, nil); nerr != nil {
		err = appendErr(err, nerr)
	}
	// distro and profile renames already cascade to every descendant
	if c.kind == KindRepo {
		for _, it := range rewritten {
			if nerr := g.notifySaved(ctx, observers, it, previous[it.Ref()]); nerr != nil {
				err = appendErr(err, nerr)
			}
		}
	}
	return err
}

// persistRename writes the renamed item and its rewritten dependents, then
// deletes the old name. On failure the writes already made are undone.
// Called with g.mu held.
func (g *Graph) persistRename(ctx context.Context, item, renamed Item, rewritten []Item) error {
	undo := func(err error, saved []Item) error {
		for _, it := range saved {
			var rerr error
			if it == renamed {
				rerr = g.persister.DeleteItem(ctx, it.Kind(), it.Name())
			} else {
				rerr = g.persister.SaveItem(ctx, g.items[it.Kind()][it.Name()])
			}
			if rerr != nil {
				err = appendErr(err, cerr.Wrapf(rerr, "undo rename of %s in store", it.Ref()))
			}
		}
		return err
	}

	var saved []Item
	for _, it := range append([]Item{renamed}, rewritten...) {
		if err := g.persister.SaveItem(ctx, it); err != nil {
			return undo(cerr.Wrapf(err, "persist %s", it.Ref()), saved)
		}
		saved = append(saved, it)
	}
	if err := g.persister.DeleteItem(ctx, item.Kind(), item.Name()); err != nil {
		return undo(cerr.Wrapf(err, "delete %s from store", item.Ref()), saved)
	}
	return nil
}

func appendErr(err, next error) error {
	if err == nil {
		return next
	}
	return cerr.CombineErrors(err, next)
}

package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Options are the graph-wide uniqueness rules.
type Options struct {
	AllowDuplicateMACs bool
	AllowDuplicateIPs  bool
}

// Persister stores committed items. SaveItem runs before a mutation is
// committed in memory, so a failing store leaves the graph unchanged.
type Persister interface {
	SaveItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, kind Kind, name string) error
}

// Observer is told about committed mutations, after the graph lock is
// released. previous is nil for a newly added item.
type Observer interface {
	ItemSaved(ctx context.Context, item, previous Item) error
	ItemRemoved(ctx context.Context, item Item) error
}

// Graph owns every collection. All collections share one lock and one
// generation counter, which is bumped on every committed mutation.
type Graph struct {
	mu         sync.RWMutex
	generation uint64
	items      map[Kind]map[string]Item
	opts       Options
	persister  Persister
	observers  []Observer
	log        *zap.Logger
}

func NewGraph(log *zap.Logger, opts Options) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Graph{
		items: make(map[Kind]map[string]Item, len(Kinds)),
		opts:  opts,
		log:   log.Named("inventory"),
	}
	for _, k := range Kinds {
		g.items[k] = make(map[string]Item)
	}
	return g
}

// SetPersister installs the store mutations are written through.
func (g *Graph) SetPersister(p Persister) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persister = p
}

// AddObserver registers o for mutation notifications, in registration order.
func (g *Graph) AddObserver(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// Generation returns the mutation counter.
func (g *Graph) Generation() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

func (g *Graph) Collection(kind Kind) *Collection { return &Collection{g: g, kind: kind} }
func (g *Graph) Distros() *Collection             { return g.Collection(KindDistro) }
func (g *Graph) Profiles() *Collection            { return g.Collection(KindProfile) }
func (g *Graph) Systems() *Collection             { return g.Collection(KindSystem) }
func (g *Graph) Repos() *Collection               { return g.Collection(KindRepo) }
func (g *Graph) Images() *Collection              { return g.Collection(KindImage) }

// Lookup returns a copy of the item ref names.
func (g *Graph) Lookup(ref Ref) (Item, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	it, ok := g.items[ref.Kind][ref.Name]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// Chain returns copies of the item and its ancestors, root first, together
// with the generation they were read at.
func (g *Graph) Chain(ref Ref) ([]Item, uint64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	chain, err := g.chainLocked(ref)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Item, len(chain))
	for i, it := range chain {
		out[len(chain)-1-i] = it.Clone()
	}
	return out, g.generation, nil
}

// chainLocked walks leaf to root.
func (g *Graph) chainLocked(ref Ref) ([]Item, error) {
	var chain []Item
	seen := map[Ref]bool{}
	cur := ref
	for !cur.IsZero() {
		if seen[cur] {
			return nil, prov_err.NewDanglingRefError(string(ref.Kind), ref.Name, "parent chain loops at %s", cur)
		}
		seen[cur] = true
		it, ok := g.items[cur.Kind][cur.Name]
		if !ok {
			if cur == ref {
				return nil, prov_err.NewValidationError(string(ref.Kind), ref.Name, "name", "no such %s", ref.Kind)
			}
			return nil, prov_err.NewDanglingRefError(string(ref.Kind), ref.Name, "ancestor %s does not exist", cur)
		}
		chain = append(chain, it)
		cur = it.Parent()
	}
	return chain, nil
}

// Root returns the top of ref's parent chain. ok is false when ref or one
// of its ancestors is missing; ref is then returned as its own root.
func (g *Graph) Root(ref Ref) (root Ref, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	chain, err := g.chainLocked(ref)
	if err != nil || len(chain) == 0 {
		return ref, false
	}
	return chain[len(chain)-1].Ref(), true
}

// Children returns the items whose parent is ref, sorted by kind then name.
func (g *Graph) Children(ref Ref) []Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.childrenLocked(ref)
}

func (g *Graph) childrenLocked(ref Ref) []Ref {
	var out []Ref
	for _, k := range []Kind{KindProfile, KindSystem} {
		for _, it := range g.items[k] {
			if it.Parent() == ref {
				out = append(out, it.Ref())
			}
		}
	}
	sortRefs(out)
	return out
}

// dependentsLocked is every item that would dangle if ref disappeared:
// children plus, for repos, the profiles that list it.
func (g *Graph) dependentsLocked(ref Ref) []Ref {
	out := g.childrenLocked(ref)
	if ref.Kind == KindRepo {
		for _, it := range g.items[KindProfile] {
			if contains(it.(*Profile).Repos(), ref.Name) {
				out = append(out, it.Ref())
			}
		}
		sortRefs(out)
	}
	return out
}

// Descendants returns every item below ref in breadth-first order, so an
// item always comes after its parent.
func (g *Graph) Descendants(ref Ref) []Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Ref
	seen := map[Ref]bool{ref: true}
	queue := []Ref{ref}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range g.childrenLocked(cur) {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// Load replaces the whole graph with items, as read from storage. Parent
// references are not checked; a broken chain surfaces when the item is
// resolved.
func (g *Graph) Load(items []Item) error {
	fresh := make(map[Kind]map[string]Item, len(Kinds))
	for _, k := range Kinds {
		fresh[k] = make(map[string]Item)
	}
	for _, it := range items {
		bucket, ok := fresh[it.Kind()]
		if !ok {
			return prov_err.NewValidationError(string(it.Kind()), it.Name(), "kind", "unknown item kind")
		}
		if _, dup := bucket[it.Name()]; dup {
			return prov_err.NewValidationError(string(it.Kind()), it.Name(), "name", "loaded twice")
		}
		bucket[it.Name()] = it.Clone()
	}

	g.mu.Lock()
	g.items = fresh
	g.generation++
	g.mu.Unlock()

	g.log.Info("Inventory loaded",
		zap.Int("distros", len(fresh[KindDistro])),
		zap.Int("profiles", len(fresh[KindProfile])),
		zap.Int("systems", len(fresh[KindSystem])),
		zap.Int("repos", len(fresh[KindRepo])),
		zap.Int("images", len(fresh[KindImage])))
	return nil
}

// checkRefsLocked verifies the references of an item about to be stored.
func (g *Graph) checkRefsLocked(it Item) error {
	parent := it.Parent()
	if !parent.IsZero() {
		if _, ok := g.items[parent.Kind][parent.Name]; !ok {
			return prov_err.NewValidationError(string(it.Kind()), it.Name(), "parent", "%s %q does not exist", parent.Kind, parent.Name)
		}
		if it.Kind() == KindProfile && parent.Kind == KindProfile {
			self := it.Ref()
			seen := map[Ref]bool{}
			for cur := parent; !cur.IsZero(); {
				if cur == self {
					return prov_err.NewValidationError(string(it.Kind()), it.Name(), "parent", "%s would create a cycle", parent)
				}
				if seen[cur] {
					break
				}
				seen[cur] = true
				p, ok := g.items[cur.Kind][cur.Name]
				if !ok {
					break
				}
				cur = p.Parent()
			}
		}
	}
	if p, ok := it.(*Profile); ok {
		for _, r := range p.Repos() {
			if _, ok := g.items[KindRepo][r]; !ok {
				return prov_err.NewValidationError(string(KindProfile), it.Name(), "repos", "repo %q does not exist", r)
			}
		}
	}
	if s, ok := it.(*System); ok {
		return g.checkUniqueLocked(s)
	}
	return nil
}

func (g *Graph) checkUniqueLocked(s *System) error {
	if g.opts.AllowDuplicateMACs && g.opts.AllowDuplicateIPs {
		return nil
	}
	macs := toSet(s.MACs())
	ips := toSet(s.IPs())
	for _, it := range g.items[KindSystem] {
		if it.UID() == s.UID() {
			continue
		}
		other := it.(*System)
		if !g.opts.AllowDuplicateMACs {
			for _, m := range other.MACs() {
				if macs[m] {
					return prov_err.NewValidationError(string(KindSystem), s.Name(), "mac_address", "%s already used by system %q", m, other.Name())
				}
			}
		}
		if !g.opts.AllowDuplicateIPs {
			for _, ip := range other.IPs() {
				if ips[ip] {
					return prov_err.NewValidationError(string(KindSystem), s.Name(), "ip_address", "%s already used by system %q", ip, other.Name())
				}
			}
		}
	}
	return nil
}

func (g *Graph) notifySaved(ctx context.Context, observers []Observer, item, previous Item) error {
	var result *multierror.Error
	for _, o := range observers {
		if err := o.ItemSaved(ctx, item.Clone(), previous); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (g *Graph) notifyRemoved(ctx context.Context, observers []Observer, item Item) error {
	var result *multierror.Error
	for _, o := range observers {
		if err := o.ItemRemoved(ctx, item.Clone()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func toSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, e := range list {
		m[e] = true
	}
	return m
}

var kindOrder = map[Kind]int{KindDistro: 0, KindRepo: 1, KindImage: 2, KindProfile: 3, KindSystem: 4}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return kindOrder[refs[i].Kind] < kindOrder[refs[j].Kind]
		}
		return refs[i].Name < refs[j].Name
	})
}

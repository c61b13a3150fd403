// pkg/serializer/store.go

// Package serializer persists inventory items. Two backends exist: a YAML
// tree with one file per item, readable and diffable by operators, and an
// embedded Badger key/value store.
package serializer

import (
	"context"
	"sort"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"go.uber.org/zap"
)

// Store loads and saves items. It satisfies inventory.Persister.
type Store interface {
	LoadAll(ctx context.Context) (*Snapshot, error)
	SaveItem(ctx context.Context, item inventory.Item) error
	DeleteItem(ctx context.Context, kind inventory.Kind, name string) error
	Close() error
}

// Snapshot is every stored item, grouped by kind and sorted by name.
type Snapshot struct {
	Distros  []inventory.Item
	Profiles []inventory.Item
	Systems  []inventory.Item
	Repos    []inventory.Item
	Images   []inventory.Item
}

func (s *Snapshot) add(item inventory.Item) {
	switch item.Kind() {
	case inventory.KindDistro:
		s.Distros = append(s.Distros, item)
	case inventory.KindProfile:
		s.Profiles = append(s.Profiles, item)
	case inventory.KindSystem:
		s.Systems = append(s.Systems, item)
	case inventory.KindRepo:
		s.Repos = append(s.Repos, item)
	case inventory.KindImage:
		s.Images = append(s.Images, item)
	}
}

func (s *Snapshot) sort() {
	for _, l := range [][]inventory.Item{s.Distros, s.Profiles, s.Systems, s.Repos, s.Images} {
		sort.Slice(l, func(i, j int) bool { return l[i].Name() < l[j].Name() })
	}
}

// Items returns every item, repos and distros first.
func (s *Snapshot) Items() []inventory.Item {
	var out []inventory.Item
	out = append(out, s.Repos...)
	out = append(out, s.Distros...)
	out = append(out, s.Images...)
	out = append(out, s.Profiles...)
	out = append(out, s.Systems...)
	return out
}

// Len is the number of items in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Distros) + len(s.Profiles) + len(s.Systems) + len(s.Repos) + len(s.Images)
}

// Open returns the backend selected by settings.
func Open(s *config.Settings, logger *zap.Logger) (Store, error) {
	switch s.StoreBackend {
	case "", "file":
		return NewFileStore(s.StorePath, logger), nil
	case "badger":
		cfg := DefaultBadgerConfig()
		cfg.Path = s.StorePath
		cfg.Logger = logger
		return OpenBadger(cfg)
	}
	return nil, prov_err.NewValidationError("settings", "", "store_backend", "unknown store backend %q", s.StoreBackend)
}

// Load reads every item from store into graph and points the graph's
// persister at store.
func Load(ctx context.Context, store Store, graph *inventory.Graph) (*Snapshot, error) {
	snap, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := graph.Load(snap.Items()); err != nil {
		return nil, err
	}
	graph.SetPersister(store)
	return snap, nil
}

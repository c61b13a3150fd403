package serializer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fromRecord(t *testing.T, rec inventory.Record) inventory.Item {
	t.Helper()
	it, err := inventory.FromRecord(rec)
	require.NoError(t, err)
	return it
}

func sampleItems(t *testing.T) []inventory.Item {
	t.Helper()
	distro := inventory.Ref{Kind: inventory.KindDistro, Name: "centos9"}
	profile := inventory.Ref{Kind: inventory.KindProfile, Name: "web"}
	return []inventory.Item{
		fromRecord(t, inventory.Record{Kind: inventory.KindDistro, Name: "centos9", Properties: map[string]interface{}{
			"kernel":         "/srv/centos9/vmlinuz",
			"initrd":         "/srv/centos9/initrd.img",
			"kernel_options": map[string]interface{}{"console": "ttyS0"},
		}}),
		fromRecord(t, inventory.Record{Kind: inventory.KindRepo, Name: "base", Properties: map[string]interface{}{
			"mirror": "http://mirror.example.com/base", "priority": 10,
		}}),
		fromRecord(t, inventory.Record{Kind: inventory.KindProfile, Name: "web", Parent: &distro, Properties: map[string]interface{}{
			"repos":    []string{"base"},
			"virt_ram": 2048,
			"owners":   inventory.InheritToken,
		}}),
		fromRecord(t, inventory.Record{Kind: inventory.KindSystem, Name: "web01", Parent: &profile,
			Interfaces: []inventory.NetworkInterface{{Name: "eth0", MACAddress: "AA:BB:CC:DD:EE:01", IPAddress: "10.0.0.21/24", NetbootEnabled: true}},
		}),
	}
}

func assertSameItem(t *testing.T, want, got inventory.Item) {
	t.Helper()
	require.NotNil(t, got)
	w, g := inventory.ToRecord(want), inventory.ToRecord(got)
	assert.Equal(t, w.Kind, g.Kind)
	assert.Equal(t, w.Name, g.Name)
	assert.Equal(t, w.UID, g.UID)
	assert.Equal(t, w.Parent, g.Parent)
	assert.Equal(t, w.Properties, g.Properties)
	assert.Equal(t, w.Interfaces, g.Interfaces)
	assert.True(t, w.Created.Equal(g.Created), "ctime %s != %s", w.Created, g.Created)
	assert.True(t, w.Modified.Equal(g.Modified), "mtime %s != %s", w.Modified, g.Modified)
}

func TestStoreRoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			return NewFileStore(t.TempDir(), zaptest.NewLogger(t))
		},
		"badger": func(t *testing.T) Store {
			cfg := InMemoryBadgerConfig()
			cfg.Logger = zaptest.NewLogger(t)
			s, err := OpenBadger(cfg)
			require.NoError(t, err)
			return s
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			defer func() { assert.NoError(t, store.Close()) }()

			items := sampleItems(t)
			for _, it := range items {
				require.NoError(t, store.SaveItem(ctx, it))
			}

			snap, err := store.LoadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, snap.Len())
			require.Len(t, snap.Systems, 1)
			assertSameItem(t, items[0], snap.Distros[0])
			assertSameItem(t, items[1], snap.Repos[0])
			assertSameItem(t, items[2], snap.Profiles[0])
			assertSameItem(t, items[3], snap.Systems[0])
			assert.True(t, inventory.IsInherit(snap.Profiles[0].Get("owners")))

			require.NoError(t, store.DeleteItem(ctx, inventory.KindSystem, "web01"))
			require.NoError(t, store.DeleteItem(ctx, inventory.KindSystem, "web01"), "deleting twice is harmless")
			snap, err = store.LoadAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, snap.Systems)
			assert.Equal(t, 3, snap.Len())
		})
	}
}

func TestLoadIntoGraph(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), zaptest.NewLogger(t))
	for _, it := range sampleItems(t) {
		require.NoError(t, store.SaveItem(ctx, it))
	}

	g := inventory.NewGraph(zaptest.NewLogger(t), inventory.Options{})
	snap, err := Load(ctx, store, g)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Len())
	require.NotNil(t, g.Systems().Find("web01"))

	// the graph now writes through to the store
	sys := g.Systems().Find("web01").(*inventory.System)
	require.NoError(t, sys.Set("hostname", "web01.example.com"))
	require.NoError(t, g.Systems().Add(ctx, sys, true))

	snap, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web01.example.com", snap.Systems[0].Get("hostname"))
}

func TestFileStoreLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(root, zaptest.NewLogger(t))
	items := sampleItems(t)
	require.NoError(t, store.SaveItem(ctx, items[2]))

	data, err := os.ReadFile(filepath.Join(root, "profiles", "web.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "kind: profile")
	assert.Contains(t, string(data), "<<inherit>>")

	bad := inventory.NewDistro("../escape")
	assert.Error(t, store.SaveItem(ctx, bad))
}

func TestFileStoreRejectsMismatchedKind(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "distros"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "distros", "x.yaml"), []byte("kind: system\nname: x\n"), 0o644))
	_, err := NewFileStore(root, zaptest.NewLogger(t)).LoadAll(context.Background())
	assert.Error(t, err)
}

func TestBadgerKeys(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	defer s.Close()
	for _, it := range sampleItems(t) {
		require.NoError(t, s.SaveItem(ctx, it))
	}
	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"distro/centos9", "profile/web", "repo/base", "system/web01"}, keys)
}

func TestOpenSelectsBackend(t *testing.T) {
	s := config.Default()
	s.StorePath = t.TempDir()
	store, err := Open(s, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	s.StoreBackend = "badger"
	store, err = Open(s, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, store)
	assert.NoError(t, store.Close())

	s.StoreBackend = "sqlite"
	_, err = Open(s, zaptest.NewLogger(t))
	assert.Error(t, err)
}

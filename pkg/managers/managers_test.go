package managers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/blender"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/fileops"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/templates"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var profileRef = inventory.Ref{Kind: inventory.KindProfile, Name: "p1"}

type fixture struct {
	deps   Deps
	runner *testutil.FakeRunner
	dir    string
}

func addRecord(t *testing.T, g *inventory.Graph, rec inventory.Record) {
	t.Helper()
	it, err := inventory.FromRecord(rec)
	require.NoError(t, err)
	require.NoError(t, g.Collection(rec.Kind).Add(context.Background(), it, false))
}

func addSystem(t *testing.T, g *inventory.Graph, name, mac, ip, dns string) {
	t.Helper()
	addRecord(t, g, inventory.Record{Kind: inventory.KindSystem, Name: name, Parent: &profileRef,
		Interfaces: []inventory.NetworkInterface{{Name: "eth0", MACAddress: mac, IPAddress: ip, DNSName: dns}}})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := zaptest.NewLogger(t)

	s := config.Default()
	s.Server = "10.0.0.1"
	s.DHCPConfigPath = filepath.Join(dir, "dhcpd.conf")
	s.DnsmasqConfigPath = filepath.Join(dir, "dnsmasq.conf")
	s.EthersPath = filepath.Join(dir, "ethers")
	s.HostsPath = filepath.Join(dir, "hosts")
	s.NamedConfigPath = filepath.Join(dir, "named.conf")
	s.ZoneDir = filepath.Join(dir, "zones")
	s.TFTPBootDir = filepath.Join(dir, "tftpboot")
	s.BootloaderDir = filepath.Join(dir, "loaders")
	s.ManageForwardZones = []string{"example.com"}
	s.ManageReverseZones = []string{"10.0.0"}

	g := inventory.NewGraph(log, inventory.Options{})
	distroRef := inventory.Ref{Kind: inventory.KindDistro, Name: "d1"}
	addRecord(t, g, inventory.Record{Kind: inventory.KindDistro, Name: "d1", Properties: map[string]interface{}{
		"kernel": "/srv/d1/vmlinuz", "initrd": "/srv/d1/initrd.img",
	}})
	addRecord(t, g, inventory.Record{Kind: inventory.KindProfile, Name: "p1", Parent: &distroRef})
	addSystem(t, g, "web01", "aa:bb:cc:dd:ee:01", "10.0.0.21", "web01.example.com")

	runner := &testutil.FakeRunner{}
	return &fixture{
		runner: runner,
		dir:    dir,
		deps: Deps{
			Settings: s,
			Graph:    g,
			Resolver: blender.New(g, s, log),
			Renderer: templates.NewRenderer(log, "", nil),
			Files:    fileops.NewFileSystemOperations(log),
			Runner:   runner,
			Logger:   log,
		},
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestISCSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewISC(f.deps)

	require.NoError(t, m.Sync(ctx))
	conf := read(t, f.deps.Settings.DHCPConfigPath)
	assert.Contains(t, conf, "next-server 10.0.0.1;")
	assert.Contains(t, conf, "host web01-eth0 {")
	assert.Contains(t, conf, "hardware ethernet aa:bb:cc:dd:ee:01;")
	assert.Contains(t, conf, "fixed-address 10.0.0.21;")
	assert.Contains(t, conf, `option host-name "web01.example.com";`)
	assert.Contains(t, conf, `filename "pxelinux.0";`)
	assert.Equal(t, []string{"check:dhcpd", "restart:dhcpd"}, f.runner.Calls())

	t.Run("unchanged system skips restart", func(t *testing.T) {
		sys := f.deps.Graph.Systems().Find("web01").(*inventory.System)
		require.NoError(t, m.SyncSingleSystem(ctx, sys))
		assert.Empty(t, f.runner.Calls())
	})

	t.Run("new system rewrites and restarts", func(t *testing.T) {
		addSystem(t, f.deps.Graph, "web02", "aa:bb:cc:dd:ee:02", "10.0.0.22", "")
		sys := f.deps.Graph.Systems().Find("web02").(*inventory.System)
		require.NoError(t, m.SyncSingleSystem(ctx, sys))
		assert.Contains(t, read(t, f.deps.Settings.DHCPConfigPath), "host web02-eth0 {")
		assert.Equal(t, []string{"check:dhcpd", "restart:dhcpd"}, f.runner.Calls())
	})

	t.Run("removed system leaves the file", func(t *testing.T) {
		sys := f.deps.Graph.Systems().Find("web02").(*inventory.System)
		require.NoError(t, f.deps.Graph.Systems().Remove(ctx, "web02", false))
		require.NoError(t, m.RemoveSingleSystem(ctx, sys))
		assert.NotContains(t, read(t, f.deps.Settings.DHCPConfigPath), "web02")
	})
}

func TestRestartFailureIsManagerError(t *testing.T) {
	f := newFixture(t)
	f.runner.Fail = "dhcpd"
	code, err := NewISC(f.deps).RestartService(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.True(t, prov_err.IsManager(err))
}

func TestRestartDisabled(t *testing.T) {
	f := newFixture(t)
	f.deps.Settings.RestartDHCP = false
	code, err := NewISC(f.deps).RestartService(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Empty(t, f.runner.Calls())
}

func TestDnsmasqFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewDnsmasq(f.deps)

	require.NoError(t, m.Sync(ctx))
	s := f.deps.Settings
	assert.Contains(t, read(t, s.DnsmasqConfigPath), "dhcp-host=aa:bb:cc:dd:ee:01,10.0.0.21,web01.example.com")
	assert.Contains(t, read(t, s.DnsmasqConfigPath), "addn-hosts="+s.HostsPath)
	assert.Equal(t, "aa:bb:cc:dd:ee:01\t10.0.0.21\n", read(t, s.EthersPath))
	assert.Equal(t, "10.0.0.21\tweb01.example.com\n", read(t, s.HostsPath))
	assert.Equal(t, []string{"check:dnsmasq", "restart:dnsmasq"}, f.runner.Calls())

	var _ HostsRegenerator = m
	var _ EthersRegenerator = m
	require.NoError(t, os.Remove(s.EthersPath))
	require.NoError(t, m.RegenEthers(ctx))
	assert.Equal(t, "aa:bb:cc:dd:ee:01\t10.0.0.21\n", read(t, s.EthersPath))
}

func TestDnsmasqSingleSystemRestartsOnConfChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewDnsmasq(f.deps)
	require.NoError(t, m.WriteConfigs(ctx))

	addSystem(t, f.deps.Graph, "web02", "aa:bb:cc:dd:ee:02", "10.0.0.22", "web02.example.com")
	sys := f.deps.Graph.Systems().Find("web02").(*inventory.System)
	require.NoError(t, m.SyncSingleSystem(ctx, sys))
	assert.Equal(t, []string{"check:dnsmasq", "restart:dnsmasq"}, f.runner.Calls())

	require.NoError(t, m.SyncSingleSystem(ctx, sys))
	assert.Empty(t, f.runner.Calls(), "nothing changed")
}

func TestBindZones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewBind(f.deps)
	s := f.deps.Settings

	require.NoError(t, m.Sync(ctx))
	named := read(t, s.NamedConfigPath)
	assert.Contains(t, named, `zone "example.com." {`)
	assert.Contains(t, named, `zone "0.0.10.in-addr.arpa." {`)

	forward := filepath.Join(s.ZoneDir, "db.example.com")
	reverse := filepath.Join(s.ZoneDir, "db.10.0.0")
	assert.Contains(t, read(t, forward), "web01 IN A 10.0.0.21")
	assert.Contains(t, read(t, forward), "    1 ; serial")
	assert.Contains(t, read(t, reverse), "21 IN PTR web01.example.com.")
	assert.Equal(t, []string{"check:named-checkconf", "restart:named"}, f.runner.Calls())

	t.Run("unchanged zone keeps its serial", func(t *testing.T) {
		sys := f.deps.Graph.Systems().Find("web01").(*inventory.System)
		require.NoError(t, m.SyncSingleSystem(ctx, sys))
		assert.Contains(t, read(t, forward), "    1 ; serial")
		assert.Empty(t, f.runner.Calls())
	})

	t.Run("changed zone bumps its serial", func(t *testing.T) {
		addSystem(t, f.deps.Graph, "web02", "aa:bb:cc:dd:ee:02", "10.0.0.22", "web02.example.com")
		sys := f.deps.Graph.Systems().Find("web02").(*inventory.System)
		require.NoError(t, m.SyncSingleSystem(ctx, sys))
		zone := read(t, forward)
		assert.Contains(t, zone, "    2 ; serial")
		assert.Contains(t, zone, "web02 IN A 10.0.0.22")
		assert.Contains(t, read(t, reverse), "    2 ; serial")
	})
}

func TestInTFTPDInstallsLoaders(t *testing.T) {
	f := newFixture(t)
	s := f.deps.Settings
	require.NoError(t, os.MkdirAll(s.BootloaderDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.BootloaderDir, "pxelinux.0"), []byte("loader"), 0o644))

	m := NewInTFTPD(f.deps)
	require.NoError(t, m.Sync(context.Background()))
	assert.Equal(t, "loader", read(t, filepath.Join(s.TFTPBootDir, "pxelinux.0")))
	assert.Empty(t, f.runner.Calls(), "no tftp unit configured")
}

func TestFromSettings(t *testing.T) {
	t.Run("dnsmasq shared between dhcp and dns", func(t *testing.T) {
		f := newFixture(t)
		s := f.deps.Settings
		s.ManageDHCP, s.ManageDNS, s.ManageTFTPD = true, true, false
		s.DHCPModule, s.DNSModule = "dnsmasq", "dnsmasq"

		r, err := FromSettings(f.deps)
		require.NoError(t, err)
		dhcp, ok := r.Get(KindDHCP)
		require.True(t, ok)
		dns, ok := r.Get(KindDNS)
		require.True(t, ok)
		assert.Same(t, dhcp, dns)
		assert.Len(t, r.Managers(), 1)

		_, err = r.Sync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"check:dnsmasq", "restart:dnsmasq"}, f.runner.Calls(), "synced once")
	})

	t.Run("separate backends", func(t *testing.T) {
		f := newFixture(t)
		s := f.deps.Settings
		s.ManageDHCP, s.ManageDNS, s.ManageTFTPD = true, true, true

		r, err := FromSettings(f.deps)
		require.NoError(t, err)
		var names []string
		for _, m := range r.Managers() {
			names = append(names, m.Name())
		}
		assert.Equal(t, []string{"isc", "bind", "in_tftpd"}, names)
	})

	t.Run("nothing managed", func(t *testing.T) {
		f := newFixture(t)
		f.deps.Settings.ManageTFTPD = false
		r, err := FromSettings(f.deps)
		require.NoError(t, err)
		assert.Empty(t, r.Managers())
	})
}

func TestRegistryConflict(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	isc := NewISC(f.deps)
	require.NoError(t, r.Register(isc))
	require.NoError(t, r.Register(isc), "same instance again")
	assert.Error(t, r.Register(NewDnsmasq(f.deps, KindDHCP)))
}

func TestRegistryFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	f.runner.Fail = "dhcpd"
	r := NewRegistry()
	require.NoError(t, r.Register(NewISC(f.deps)))
	require.NoError(t, r.Register(NewBind(f.deps)))

	results, err := r.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, prov_err.IsManager(err))
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.FileExists(t, filepath.Join(f.deps.Settings.ZoneDir, "db.example.com"))
}

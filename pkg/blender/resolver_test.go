package blender

import (
	"context"
	"testing"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	distroRef  = inventory.Ref{Kind: inventory.KindDistro, Name: "centos9"}
	profileRef = inventory.Ref{Kind: inventory.KindProfile, Name: "web"}
	subRef     = inventory.Ref{Kind: inventory.KindProfile, Name: "web-small"}
	systemRef  = inventory.Ref{Kind: inventory.KindSystem, Name: "web01"}
)

type fixture struct {
	graph    *inventory.Graph
	settings *config.Settings
	resolver *Resolver
}

func add(t *testing.T, g *inventory.Graph, rec inventory.Record) {
	t.Helper()
	it, err := inventory.FromRecord(rec)
	require.NoError(t, err)
	require.NoError(t, g.Collection(rec.Kind).Add(context.Background(), it, false))
}

// newFixture builds centos9 <- web <- web-small <- web01 with a repo.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := inventory.NewGraph(zaptest.NewLogger(t), inventory.Options{})
	s := config.Default()
	s.Server = "10.0.0.1"
	s.HTTPPort = 8080
	s.WebPrefix = "/prov"
	s.DefaultKernelOptions = map[string]interface{}{"ksdevice": "bootif"}
	s.DefaultNameServers = []string{"10.0.0.53"}

	add(t, g, inventory.Record{Kind: inventory.KindDistro, Name: "centos9", Properties: map[string]interface{}{
		"kernel":         "/srv/centos9/vmlinuz",
		"initrd":         "/srv/centos9/initrd.img",
		"kernel_options": map[string]interface{}{"a": "0", "b": "2"},
		"owners":         []string{"ops"},
	}})
	add(t, g, inventory.Record{Kind: inventory.KindRepo, Name: "base", Properties: map[string]interface{}{
		"mirror": "http://mirror.example.com/base", "priority": 50, "mirror_locally": false,
	}})
	add(t, g, inventory.Record{Kind: inventory.KindRepo, Name: "updates", Properties: map[string]interface{}{
		"mirror": "http://mirror.example.com/updates", "priority": 90,
	}})
	add(t, g, inventory.Record{Kind: inventory.KindProfile, Name: "web", Parent: &distroRef, Properties: map[string]interface{}{
		"kernel_options": map[string]interface{}{"a": "1"},
		"repos":          []string{"base"},
		"name_servers":   []string{"192.0.2.53"},
		"virt_type":      "qemu",
	}})
	add(t, g, inventory.Record{Kind: inventory.KindProfile, Name: "web-small", Parent: &profileRef, Properties: map[string]interface{}{
		"owners": []string{"web-team"},
		"repos":  []string{"base", "updates"},
	}})
	add(t, g, inventory.Record{Kind: inventory.KindSystem, Name: "web01", Parent: &subRef,
		Properties: map[string]interface{}{"kernel_options": map[string]interface{}{"!ksdevice": "", "console": "ttyS0"}},
		Interfaces: []inventory.NetworkInterface{{Name: "eth0", MACAddress: "aa:bb:cc:dd:ee:ff", IPAddress: "10.0.0.20/24", DNSName: "web01.example.com"}},
	})

	return &fixture{graph: g, settings: s, resolver: New(g, s, zaptest.NewLogger(t))}
}

func (f *fixture) resolve(t *testing.T, ref inventory.Ref) *View {
	t.Helper()
	v, err := f.resolver.Resolve(ref)
	require.NoError(t, err)
	return v
}

func TestMapsMergeKeyWise(t *testing.T) {
	f := newFixture(t)
	v := f.resolve(t, profileRef)
	assert.Equal(t, map[string]interface{}{"ksdevice": "bootif", "a": "1", "b": "2"}, v.Map("kernel_options"))
	assert.Equal(t, "a=1 b=2 ksdevice=bootif", v.String("kernel_options_string"))
}

func TestInheritedMapEqualsParent(t *testing.T) {
	f := newFixture(t)
	parent := f.resolve(t, profileRef)
	child := f.resolve(t, subRef)
	assert.Equal(t, parent.Map("kernel_options"), child.Map("kernel_options"))
	assert.Equal(t, parent.Map("autoinstall_meta"), child.Map("autoinstall_meta"))
}

func TestListsAndScalarsReplace(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"ops"}, f.resolve(t, profileRef).List("owners"))
	assert.Equal(t, []string{"web-team"}, f.resolve(t, subRef).List("owners"))

	p := f.graph.Profiles().Find("web-small")
	require.NoError(t, p.Set("comment", "small"))
	require.NoError(t, f.graph.Profiles().Add(context.Background(), p, false))
	assert.Equal(t, "small", f.resolve(t, systemRef).String("comment"))
	assert.Equal(t, "", f.resolve(t, profileRef).String("comment"))
}

func TestSettingsDefaultsAtTop(t *testing.T) {
	f := newFixture(t)
	v := f.resolve(t, distroRef)
	assert.Equal(t, []string{"pxe", "ipxe"}, v.List("boot_loaders"))
	assert.Equal(t, "default.ks", f.resolve(t, systemRef).String("autoinstall"))
	assert.Contains(t, v.Map("kernel_options"), "ksdevice")
}

func TestBangKeyRemoves(t *testing.T) {
	f := newFixture(t)
	v := f.resolve(t, systemRef)
	ko := v.Map("kernel_options")
	assert.NotContains(t, ko, "ksdevice")
	assert.NotContains(t, ko, "!ksdevice")
	assert.Equal(t, "ttyS0", ko["console"])
	assert.Equal(t, "1", ko["a"])
}

func TestNoUpwardOrSidewaysLeakage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	add(t, f.graph, inventory.Record{Kind: inventory.KindProfile, Name: "db", Parent: &distroRef})

	before := f.resolve(t, profileRef).Data()
	sibling := f.resolve(t, inventory.Ref{Kind: inventory.KindProfile, Name: "db"}).Map("kernel_options")

	s := f.graph.Systems().Find("web01")
	require.NoError(t, s.Set("kernel_options", map[string]interface{}{"a": "system", "new": "x"}))
	require.NoError(t, f.graph.Systems().Add(ctx, s, false))
	_ = f.resolve(t, systemRef)

	after := f.resolve(t, profileRef).Data()
	assert.Equal(t, before["kernel_options"], after["kernel_options"])
	assert.Equal(t, sibling, f.resolve(t, inventory.Ref{Kind: inventory.KindProfile, Name: "db"}).Map("kernel_options"))

	// mutating a returned map must not reach the cache
	v := f.resolve(t, profileRef)
	m := v.Map("kernel_options")
	m["a"] = "tampered"
	assert.Equal(t, "1", f.resolve(t, profileRef).Map("kernel_options")["a"])
}

func TestCacheNeverStale(t *testing.T) {
	f := newFixture(t)
	first := f.resolve(t, systemRef)
	again := f.resolve(t, systemRef)
	assert.Same(t, first, again)

	d := f.graph.Distros().Find("centos9")
	require.NoError(t, d.Set("kernel_options", map[string]interface{}{"b": "changed"}))
	require.NoError(t, f.graph.Distros().Add(context.Background(), d, false))

	fresh := f.resolve(t, systemRef)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, "changed", fresh.Map("kernel_options")["b"])
	assert.Greater(t, fresh.Generation, first.Generation)
}

func TestComputedFields(t *testing.T) {
	f := newFixture(t)
	v := f.resolve(t, systemRef)

	assert.Equal(t, "centos9", v.String("distro_name"))
	assert.Equal(t, "web-small", v.String("profile_name"))
	assert.Equal(t, "web01", v.String("system_name"))
	assert.Equal(t, "10.0.0.1:8080", v.String("http_server"))
	assert.Equal(t, "/images/centos9/vmlinuz", v.String("kernel_path"))
	assert.Equal(t, "/images/centos9/initrd.img", v.String("initrd_path"))
	assert.Equal(t, "http://10.0.0.1:8080/prov/autoinstall/systems/web01", v.String("autoinstall_url"))
	assert.Equal(t, "http://10.0.0.1:8080/prov/distro_mirror/centos9", v.String("install_tree"))
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", v.String("mac_address_eth0"))
	assert.Equal(t, "10.0.0.20", v.String("ip_address_eth0"))
	assert.Equal(t, "web01.example.com", v.String("hostname"))
	assert.Equal(t, []string{"10.0.0.53"}, v.List("name_servers"))
	assert.Equal(t, []string{"192.0.2.53"}, f.resolve(t, profileRef).List("name_servers"))
	require.Len(t, v.Interfaces(), 1)

	repos, ok := v.Get("repo_data").([]interface{})
	require.True(t, ok)
	require.Len(t, repos, 2)
	assert.Equal(t, "updates", repos[0].(map[string]interface{})["name"])
	assert.Equal(t, "http://10.0.0.1:8080/prov/repo_mirror/updates", repos[0].(map[string]interface{})["url"])
	assert.Equal(t, "http://mirror.example.com/base", repos[1].(map[string]interface{})["url"])

	add(t, f.graph, inventory.Record{Kind: inventory.KindProfile, Name: "bare", Parent: &distroRef})
	assert.Equal(t, []string{"10.0.0.53"}, f.resolve(t, inventory.Ref{Kind: inventory.KindProfile, Name: "bare"}).List("name_servers"))
}

func TestNonInheritableStayWithItem(t *testing.T) {
	f := newFixture(t)

	profile := f.resolve(t, profileRef)
	for _, key := range []string{"kernel", "initrd", "arch", "breed", "os_version", "source_repos"} {
		assert.False(t, profile.Has(key), key)
	}
	assert.Equal(t, "/srv/centos9/vmlinuz", profile.Map("distro")["kernel"])
	assert.Equal(t, "qemu", profile.String("virt_type"))

	// a sub-profile keeps its own defaults rather than its parent's values
	assert.Equal(t, "kvm", f.resolve(t, subRef).String("virt_type"))

	sys := f.resolve(t, systemRef)
	for _, key := range []string{"kernel", "arch", "virt_type", "repos", "enable_menu", "proxy"} {
		assert.False(t, sys.Has(key), key)
	}
	prof := sys.Map("profile")
	assert.Equal(t, "web-small", prof["name"])
	assert.Equal(t, []string{"base", "updates"}, prof["repos"])
	assert.Equal(t, "kvm", prof["virt_type"])
}

func TestBrokenChain(t *testing.T) {
	f := newFixture(t)
	orphanParent := inventory.Ref{Kind: inventory.KindProfile, Name: "gone"}
	orphan, err := inventory.FromRecord(inventory.Record{Kind: inventory.KindSystem, Name: "lost", Parent: &orphanParent})
	require.NoError(t, err)
	items := []inventory.Item{orphan}
	for _, k := range inventory.Kinds {
		items = append(items, f.graph.Collection(k).ToList()...)
	}
	require.NoError(t, f.graph.Load(items))

	_, err = f.resolver.Resolve(orphan.Ref())
	assert.True(t, prov_err.IsReferentialIntegrity(err))

	_, err = f.resolver.Resolve(inventory.Ref{Kind: inventory.KindSystem, Name: "nobody"})
	assert.True(t, prov_err.IsValidation(err))
}

func TestKernelOptionsString(t *testing.T) {
	assert.Equal(t, "", KernelOptionsString(nil))
	assert.Equal(t, "a b=2 c=x c=y", KernelOptionsString(map[string]interface{}{
		"b": "2", "a": "", "c": []interface{}{"x", "y"},
	}))
}

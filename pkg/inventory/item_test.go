package inventory

import (
	"testing"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewItemDefaults(t *testing.T) {
	p := NewProfile("p")
	assert.True(t, IsInherit(p.Get("kernel_options")))
	assert.True(t, IsInherit(p.Get("autoinstall")))
	assert.Equal(t, 512, p.Get("virt_ram"))
	assert.Equal(t, true, p.Get("enable_menu"))
	assert.Equal(t, []string{}, p.Get("repos"))
	assert.NotEmpty(t, p.UID())
	assert.NotEqual(t, p.UID(), NewProfile("p").UID())
}

func TestInheritDistinctFromEmpty(t *testing.T) {
	p := NewProfile("p")
	require.NoError(t, p.Set("kernel_options", map[string]interface{}{}))
	assert.False(t, IsInherit(p.Get("kernel_options")))
	assert.Equal(t, map[string]interface{}{}, p.Get("kernel_options"))

	require.NoError(t, p.Set("kernel_options", InheritToken))
	assert.True(t, IsInherit(p.Get("kernel_options")))
}

func TestSetCoercion(t *testing.T) {
	tests := []struct {
		name string
		prop string
		in   interface{}
		want interface{}
	}{
		{name: "map from words", prop: "kernel_options", in: "console=ttyS0 quiet", want: map[string]interface{}{"console": "ttyS0", "quiet": ""}},
		{name: "list from string", prop: "owners", in: "admin, ops", want: []string{"admin", "ops"}},
		{name: "list from any slice", prop: "mgmt_classes", in: []interface{}{"web", "db"}, want: []string{"web", "db"}},
		{name: "int from string", prop: "virt_ram", in: "2048", want: 2048},
		{name: "bool from yes", prop: "enable_menu", in: "no", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProfile("p")
			require.NoError(t, p.Set(tt.prop, tt.in))
			assert.Equal(t, tt.want, p.Get(tt.prop))
		})
	}
}

func TestSetRejects(t *testing.T) {
	p := NewProfile("p")
	for prop, v := range map[string]interface{}{
		"virt_ram":     "lots",
		"boot_loaders": []string{"pxe", "floppy"},
		"no_such_prop": "x",
		"virt_type":    "hyperv",
		"repos":        InheritToken,
	} {
		err := p.Set(prop, v)
		assert.True(t, prov_err.IsValidation(err), "prop %s", prop)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	p := NewProfile("p")
	require.NoError(t, p.Set("kernel_options", map[string]interface{}{"a": "1"}))
	m := p.Get("kernel_options").(map[string]interface{})
	m["a"] = "changed"
	assert.Equal(t, "1", p.Get("kernel_options").(map[string]interface{})["a"])
}

func TestKernelCheck(t *testing.T) {
	d := NewDistro("d")
	assert.Error(t, d.Set("kernel", "/nonexistent/vmlinuz"))
	assert.Error(t, d.Set("kernel", "/etc/hostname"))
	kernel, _ := bootFiles(t)
	assert.NoError(t, d.Set("kernel", kernel))
}

func TestValidateRequiredFields(t *testing.T) {
	assert.True(t, prov_err.IsValidation(NewDistro("d").Validate()))
	assert.True(t, prov_err.IsValidation(NewProfile("p").Validate()))
	assert.True(t, prov_err.IsValidation(NewRepo("r").Validate()))
	assert.True(t, prov_err.IsValidation(NewImage("i").Validate()))
	assert.True(t, prov_err.IsValidation(NewDistro("bad name").Validate()))
}

func TestSetParentKinds(t *testing.T) {
	s := NewSystem("s")
	assert.NoError(t, s.SetParent(Ref{Kind: KindImage, Name: "img"}))
	assert.Error(t, s.SetParent(Ref{Kind: KindDistro, Name: "d"}))
	assert.Error(t, NewDistro("d").SetParent(Ref{Kind: KindDistro, Name: "x"}))
}

func TestSystemInterfaces(t *testing.T) {
	s := NewSystem("s")
	require.NoError(t, s.SetInterface(NetworkInterface{Name: "eth0", MACAddress: "BB:EE:EE:EE:EE:FF", IPAddress: "10.0.0.5/24"}))
	require.NoError(t, s.SetInterface(NetworkInterface{Name: "eth1", IPAddress: "10.0.1.5"}))
	require.NoError(t, s.SetInterface(NetworkInterface{Name: "eth0", MACAddress: "bb:ee:ee:ee:ee:ff", IPAddress: "10.0.0.6"}))

	ifaces := s.Interfaces()
	require.Len(t, ifaces, 2)
	assert.Equal(t, "eth0", ifaces[0].Name)
	assert.Equal(t, []string{"bb:ee:ee:ee:ee:ff"}, s.MACs())
	assert.Equal(t, []string{"10.0.0.6", "10.0.1.5"}, s.IPs())

	assert.True(t, prov_err.IsValidation(s.SetInterface(NetworkInterface{Name: "eth2", MACAddress: "not-a-mac"})))
	require.NoError(t, s.RemoveInterface("eth1"))
	assert.Error(t, s.RemoveInterface("eth1"))
}

func TestInterfaceAddressForms(t *testing.T) {
	s := NewSystem("s")
	require.NoError(t, s.SetInterface(NetworkInterface{Name: "eth0", IPAddress: "10.0.0.5/24"}))
	require.NoError(t, s.SetInterface(NetworkInterface{Name: "eth1", IPAddress: "10.0.1.0/24"}))
	require.NoError(t, s.SetInterface(NetworkInterface{Name: "eth2", IPAddress: "10.0.2.9"}))
	assert.Equal(t, []string{"10.0.0.5", "10.0.1.0", "10.0.2.9"}, s.IPs())

	for _, bad := range []string{"10.0.0.5/33", "10.0.0.300", "fe80::1/64", "web01"} {
		err := s.SetInterface(NetworkInterface{Name: "eth3", IPAddress: bad})
		assert.True(t, prov_err.IsValidation(err), bad)
	}
	assert.Len(t, s.Interfaces(), 3)
}

func TestRecordRoundTrip(t *testing.T) {
	s := NewSystem("web01")
	require.NoError(t, s.SetParent(Ref{Kind: KindProfile, Name: "p1"}))
	require.NoError(t, s.Set("kernel_options", "!quiet console=tty0"))
	require.NoError(t, s.SetInterface(NetworkInterface{Name: "eth0", MACAddress: "aa:bb:cc:dd:ee:ff"}))

	rec := ToRecord(s)
	assert.Equal(t, InheritToken, rec.Properties["comment"])

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, s.UID(), back.UID())
	assert.Equal(t, s.Parent(), back.Parent())
	assert.True(t, IsInherit(back.Get("comment")))
	assert.Equal(t, s.Get("kernel_options"), back.Get("kernel_options"))
	assert.Equal(t, s.Interfaces(), back.(*System).Interfaces())
	assert.True(t, s.Created().Equal(back.Created()))
}

func TestFromRecordSkipsHostChecks(t *testing.T) {
	rec := Record{
		Kind: KindDistro,
		Name: "d",
		UID:  "fixed",
		Properties: map[string]interface{}{
			"kernel":  "/srv/missing/vmlinuz",
			"initrd":  "/srv/missing/initrd.img",
			"retired": "ignored",
		},
	}
	item, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, "/srv/missing/vmlinuz", item.(*Distro).Kernel())
	assert.Equal(t, "fixed", item.UID())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Profiles")
	require.NoError(t, err)
	assert.Equal(t, KindProfile, k)
	_, err = ParseKind("widget")
	assert.Error(t, err)
}

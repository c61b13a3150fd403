package inventory

import (
	"net"
	"net/netip"
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// cidrv4 wants a network address; interfaces carry host/prefix
	_ = v.RegisterValidation("host_cidrv4", func(fl validator.FieldLevel) bool {
		p, err := netip.ParsePrefix(fl.Field().String())
		return err == nil && p.Addr().Is4()
	})
	return v
}

// NetworkInterface is one named interface of a system.
type NetworkInterface struct {
	Name           string `yaml:"name" validate:"required,max=64"`
	MACAddress     string `yaml:"mac_address,omitempty" validate:"omitempty,mac"`
	IPAddress      string `yaml:"ip_address,omitempty" validate:"omitempty,ipv4|host_cidrv4"`
	IPv6Address    string `yaml:"ipv6_address,omitempty" validate:"omitempty,ipv6"`
	Hostname       string `yaml:"hostname,omitempty" validate:"omitempty,hostname_rfc1123"`
	DNSName        string `yaml:"dns_name,omitempty" validate:"omitempty,fqdn|hostname_rfc1123"`
	Gateway        string `yaml:"if_gateway,omitempty" validate:"omitempty,ip"`
	Netmask        string `yaml:"netmask,omitempty" validate:"omitempty,ipv4"`
	DHCPTag        string `yaml:"dhcp_tag,omitempty"`
	NetbootEnabled bool   `yaml:"netboot_enabled"`
	Static         bool   `yaml:"static"`
}

// IP returns the interface address with any prefix length stripped.
func (n NetworkInterface) IP() string {
	ip, _, _ := strings.Cut(n.IPAddress, "/")
	return ip
}

// ToMap flattens the interface for template metadata.
func (n NetworkInterface) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"name":            n.Name,
		"mac_address":     n.MACAddress,
		"ip_address":      n.IP(),
		"ipv6_address":    n.IPv6Address,
		"hostname":        n.Hostname,
		"dns_name":        n.DNSName,
		"if_gateway":      n.Gateway,
		"netmask":         n.Netmask,
		"dhcp_tag":        n.DHCPTag,
		"netboot_enabled": n.NetbootEnabled,
		"static":          n.Static,
	}
}

func (n *NetworkInterface) normalize() {
	if hw, err := net.ParseMAC(n.MACAddress); err == nil {
		n.MACAddress = hw.String()
	}
	n.DNSName = strings.ToLower(n.DNSName)
}

// System is one physical or virtual host.
type System struct {
	base
	interfaces []NetworkInterface
}

func NewSystem(name string) *System {
	return &System{base: newBase(KindSystem, name)}
}

func (s *System) Hostname() string { return s.str("hostname") }

// Interfaces returns a copy of the interfaces in their stored order.
func (s *System) Interfaces() []NetworkInterface {
	out := make([]NetworkInterface, len(s.interfaces))
	copy(out, s.interfaces)
	return out
}

// Interface returns the interface named name.
func (s *System) Interface(name string) (NetworkInterface, bool) {
	for _, ni := range s.interfaces {
		if ni.Name == name {
			return ni, true
		}
	}
	return NetworkInterface{}, false
}

// SetInterface validates ni and stores it, replacing an interface with the
// same name in place or appending a new one.
func (s *System) SetInterface(ni NetworkInterface) error {
	ni.normalize()
	if err := validate.Struct(ni); err != nil {
		return s.interfaceError(ni.Name, err)
	}
	for i := range s.interfaces {
		if s.interfaces[i].Name == ni.Name {
			s.interfaces[i] = ni
			return nil
		}
	}
	s.interfaces = append(s.interfaces, ni)
	return nil
}

// RemoveInterface deletes the named interface.
func (s *System) RemoveInterface(name string) error {
	for i := range s.interfaces {
		if s.interfaces[i].Name == name {
			s.interfaces = append(s.interfaces[:i], s.interfaces[i+1:]...)
			return nil
		}
	}
	return prov_err.NewValidationError(string(KindSystem), s.name, "interfaces", "no interface %q", name)
}

// MACs returns the non-empty MAC addresses, sorted.
func (s *System) MACs() []string {
	var out []string
	for _, ni := range s.interfaces {
		if ni.MACAddress != "" {
			out = append(out, ni.MACAddress)
		}
	}
	sort.Strings(out)
	return out
}

// IPs returns the non-empty IPv4 addresses, sorted.
func (s *System) IPs() []string {
	var out []string
	for _, ni := range s.interfaces {
		if ip := ni.IP(); ip != "" {
			out = append(out, ip)
		}
	}
	sort.Strings(out)
	return out
}

func (s *System) interfaceError(name string, err error) error {
	var verrs validator.ValidationErrors
	if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
		fe := verrs[0]
		return prov_err.NewValidationError(string(KindSystem), s.name, "interfaces."+name+"."+fe.Field(),
			"failed %q check (value %v)", fe.Tag(), fe.Value())
	}
	return prov_err.NewValidationError(string(KindSystem), s.name, "interfaces."+name, err.Error())
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}

func (s *System) Validate() error {
	if err := s.validateCommon(); err != nil {
		return err
	}
	if err := s.requireParent(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, ni := range s.interfaces {
		if seen[ni.Name] {
			return prov_err.NewValidationError(string(KindSystem), s.name, "interfaces", "duplicate interface %q", ni.Name)
		}
		seen[ni.Name] = true
		if err := validate.Struct(ni); err != nil {
			return s.interfaceError(ni.Name, err)
		}
	}
	if gw := s.str("gateway"); gw != "" && net.ParseIP(gw) == nil {
		return prov_err.NewValidationError(string(KindSystem), s.name, "gateway", "%q is not an IP address", gw)
	}
	return nil
}

func (s *System) Clone() Item {
	return &System{base: s.base.clone(), interfaces: s.Interfaces()}
}

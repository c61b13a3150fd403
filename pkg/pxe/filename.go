// pkg/pxe/filename.go

// Package pxe derives the per-host file names boot loaders look up in the
// TFTP tree.
package pxe

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
)

// Loader is a boot-loader flavour. Only grub uses a different MAC spelling.
type Loader string

const (
	LoaderPXE  Loader = "pxe"
	LoaderIPXE Loader = "ipxe"
	LoaderGrub Loader = "grub"
)

// DefaultName is the system name that maps onto the catch-all menu file.
const DefaultName = "default"

// MACFilename is the pxelinux spelling of a MAC: ARP type 01 followed by the
// lowercase octets joined with dashes. BB:EE:EE:EE:EE:FF becomes
// 01-bb-ee-ee-ee-ee-ff.
func MACFilename(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("parse mac %q: %w", mac, err)
	}
	return "01-" + strings.ReplaceAll(hw.String(), ":", "-"), nil
}

// HostIPHex encodes an IPv4 address as eight uppercase hex digits. For an
// address in CIDR notation the network address is encoded instead, and when
// the network is larger than eight addresses the insignificant trailing
// nibbles are dropped, so 10.0.0.0/24 becomes 0A0000.
func HostIPHex(addr string) (string, error) {
	if !strings.Contains(addr, "/") {
		ip, err := netip.ParseAddr(addr)
		if err != nil || !ip.Is4() {
			return "", fmt.Errorf("%q is not an IPv4 address", addr)
		}
		return hex4(ip), nil
	}
	prefix, err := netip.ParsePrefix(addr)
	if err != nil || !prefix.Addr().Is4() {
		return "", fmt.Errorf("%q is not an IPv4 network", addr)
	}
	hostBits := 32 - prefix.Bits()
	pretty := hex4(prefix.Masked().Addr())
	if hostBits == 0 {
		return hex4(prefix.Addr()), nil
	}
	if hostBits <= 3 {
		return pretty, nil
	}
	return pretty[:len(pretty)-hostBits/4], nil
}

func hex4(ip netip.Addr) string {
	b := ip.As4()
	return fmt.Sprintf("%02X%02X%02X%02X", b[0], b[1], b[2], b[3])
}

// ConfigFilename returns the boot-loader file name of one interface of a
// system: the MAC spelling when the interface has a MAC, else the IPv4 hex
// encoding, else its DNS name or hostname, else the system name. ok is false
// when the interface does not exist or, for grub, when the system is the
// catch-all "default" system.
func ConfigFilename(sys *inventory.System, iface string, loader Loader) (name string, ok bool) {
	ni, found := sys.Interface(iface)
	if !found {
		return "", false
	}
	if sys.Name() == DefaultName {
		if loader == LoaderGrub {
			return "", false
		}
		return DefaultName, true
	}
	if ni.MACAddress != "" {
		if loader == LoaderGrub {
			return strings.ToLower(ni.MACAddress), true
		}
		if fn, err := MACFilename(ni.MACAddress); err == nil {
			return fn, true
		}
	}
	if ni.IPAddress != "" {
		if fn, err := HostIPHex(ni.IPAddress); err == nil {
			return fn, true
		}
	}
	switch {
	case ni.DNSName != "":
		return ni.DNSName, true
	case ni.Hostname != "":
		return ni.Hostname, true
	}
	return sys.Name(), true
}

// LoaderSet reports which config families a boot_loaders list asks for.
// An empty list means pxe.
func LoaderSet(bootLoaders []string) (pxeFamily, grub bool) {
	if len(bootLoaders) == 0 {
		return true, false
	}
	for _, l := range bootLoaders {
		switch Loader(l) {
		case LoaderPXE, LoaderIPXE:
			pxeFamily = true
		case LoaderGrub:
			grub = true
		}
	}
	return pxeFamily, grub
}

// LoaderFor picks the boot program DHCP hands an interface. Grub is only
// written for interfaces that boot the installer, so a local-boot
// interface gets the first pxe-family loader when one is listed.
func LoaderFor(bootLoaders []string, install bool) Loader {
	pxeFamily, grub := LoaderSet(bootLoaders)
	if grub && (install || !pxeFamily) {
		return LoaderGrub
	}
	for _, l := range bootLoaders {
		if Loader(l) == LoaderPXE || Loader(l) == LoaderIPXE {
			return Loader(l)
		}
	}
	return LoaderPXE
}

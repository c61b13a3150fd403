// Package cmd_helpers holds what the item commands share: opening the
// server from flags and turning command-line words into item changes.
package cmd_helpers

import (
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
)

// parentCandidates is the order a bare parent name is looked up in.
var parentCandidates = map[inventory.Kind][]inventory.Kind{
	inventory.KindProfile: {inventory.KindDistro, inventory.KindProfile},
	inventory.KindSystem:  {inventory.KindProfile, inventory.KindImage},
}

// ResolveParent turns a --parent value into a reference. "kind/name" is
// taken as written; a bare name is looked up among the kinds an item of
// kind may descend from, first match wins.
func ResolveParent(kind inventory.Kind, value string, exists func(inventory.Ref) bool) (inventory.Ref, error) {
	if value == "" {
		return inventory.Ref{}, nil
	}
	if k, name, ok := strings.Cut(value, "/"); ok {
		pk, err := inventory.ParseKind(k)
		if err != nil {
			return inventory.Ref{}, prov_err.NewValidationError(string(kind), "", "parent", err.Error())
		}
		return inventory.Ref{Kind: pk, Name: name}, nil
	}
	candidates := parentCandidates[kind]
	if len(candidates) == 0 {
		return inventory.Ref{}, prov_err.NewValidationError(string(kind), "", "parent", "a %s has no parent", kind)
	}
	for _, k := range candidates {
		ref := inventory.Ref{Kind: k, Name: value}
		if exists(ref) {
			return ref, nil
		}
	}
	return inventory.Ref{}, prov_err.NewValidationError(string(kind), "", "parent", "no %s named %q", candidates[0], value)
}

// ApplyAssignments sets each key=value word on item in order. The value
// <<inherit>> restores inheritance.
func ApplyAssignments(item inventory.Item, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return prov_err.NewValidationError(string(item.Kind()), item.Name(), pair, "expected key=value")
		}
		if err := item.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// ParseInterface reads an interface given as comma separated key=value
// words, for example "name=eth0,mac=aa:bb:cc:dd:ee:ff,ip=10.0.0.5,netboot".
// A bare boolean key means true.
func ParseInterface(spec string) (inventory.NetworkInterface, error) {
	var ni inventory.NetworkInterface
	bad := func(format string, args ...interface{}) error {
		return prov_err.NewValidationError(string(inventory.KindSystem), "", "interface", format, args...)
	}
	for _, word := range strings.Split(spec, ",") {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		key, value, hasValue := strings.Cut(word, "=")
		switch key {
		case "name":
			ni.Name = value
		case "mac", "mac_address":
			ni.MACAddress = value
		case "ip", "ip_address":
			ni.IPAddress = value
		case "ipv6", "ipv6_address":
			ni.IPv6Address = value
		case "hostname":
			ni.Hostname = value
		case "dns", "dns_name":
			ni.DNSName = value
		case "gateway", "if_gateway":
			ni.Gateway = value
		case "netmask":
			ni.Netmask = value
		case "dhcp_tag":
			ni.DHCPTag = value
		case "netboot", "netboot_enabled", "static":
			on := !hasValue
			if hasValue {
				switch strings.ToLower(value) {
				case "true", "yes", "on", "1":
					on = true
				case "false", "no", "off", "0":
				default:
					return ni, bad("%s expects a boolean, got %q", key, value)
				}
			}
			if key == "static" {
				ni.Static = on
			} else {
				ni.NetbootEnabled = on
			}
		default:
			return ni, bad("unknown interface field %q", key)
		}
	}
	if ni.Name == "" {
		return ni, bad("interface %q has no name", spec)
	}
	return ni, nil
}

// Change is one create or edit request from the command line.
type Change struct {
	Parent     string
	Sets       []string
	Interfaces []string
	// RemoveInterfaces names interfaces to drop from a system.
	RemoveInterfaces []string
}

// Apply writes c onto item. exists reports whether a parent candidate is in
// the inventory.
func (c Change) Apply(item inventory.Item, exists func(inventory.Ref) bool) error {
	if c.Parent != "" {
		ref, err := ResolveParent(item.Kind(), c.Parent, exists)
		if err != nil {
			return err
		}
		if err := item.SetParent(ref); err != nil {
			return err
		}
	}
	if err := ApplyAssignments(item, c.Sets); err != nil {
		return err
	}
	if len(c.Interfaces) == 0 && len(c.RemoveInterfaces) == 0 {
		return nil
	}
	sys, ok := item.(*inventory.System)
	if !ok {
		return prov_err.NewValidationError(string(item.Kind()), item.Name(), "interface", "only systems have interfaces")
	}
	for _, name := range c.RemoveInterfaces {
		if err := sys.RemoveInterface(name); err != nil {
			return err
		}
	}
	for _, spec := range c.Interfaces {
		ni, err := ParseInterface(spec)
		if err != nil {
			return err
		}
		if err := sys.SetInterface(ni); err != nil {
			return err
		}
	}
	return nil
}

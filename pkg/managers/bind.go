package managers

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
)

// Bind manages named.conf and one zone file per managed forward and reverse
// zone.
type Bind struct {
	*BaseManager
}

func NewBind(deps Deps) *Bind {
	return &Bind{BaseManager: NewBaseManager("bind", deps)}
}

func (m *Bind) Kinds() []ServiceKind { return []ServiceKind{KindDNS} }

type zoneRecord struct {
	name, typ, value string
}

type zone struct {
	name    string
	file    string
	records []zoneRecord
}

var serialLine = regexp.MustCompile(`(?m)^\s*(\d+) ; serial$`)

func (m *Bind) WriteConfigs(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writeConfigs(ctx)
	return err
}

func (m *Bind) writeConfigs(ctx context.Context) (bool, error) {
	s := m.deps.Settings
	zones := m.zones(m.hosts(ctx))

	list := make([]interface{}, 0, len(zones))
	for _, z := range zones {
		list = append(list, map[string]interface{}{"name": z.name, "file": z.file})
	}
	out, err := m.render(ctx, "named.template", map[string]interface{}{
		"zone_dir": s.ZoneDir,
		"zones":    list,
	})
	if err != nil {
		return false, err
	}
	changed, err := m.writeFile(ctx, s.NamedConfigPath, out)
	if err != nil {
		return false, err
	}
	for _, z := range zones {
		zc, err := m.writeZone(ctx, z)
		if err != nil {
			return changed, err
		}
		changed = changed || zc
	}
	return changed, nil
}

// writeZone renders z with the serial of the zone file on disk and bumps the
// serial only when the records differ, so an unchanged zone is left alone.
func (m *Bind) writeZone(ctx context.Context, z zone) (bool, error) {
	path := filepath.Join(m.deps.Settings.ZoneDir, z.file)
	serial := 0
	var current string
	if b, err := m.deps.Files.ReadFile(ctx, path); err == nil {
		current = string(b)
		if match := serialLine.FindStringSubmatch(current); match != nil {
			serial, _ = strconv.Atoi(match[1])
		}
	}

	out, err := m.renderZone(ctx, z, serial)
	if err != nil {
		return false, err
	}
	if out == current && serial > 0 {
		return false, nil
	}
	if out, err = m.renderZone(ctx, z, serial+1); err != nil {
		return false, err
	}
	return m.writeFile(ctx, path, out)
}

func (m *Bind) renderZone(ctx context.Context, z zone, serial int) (string, error) {
	records := make([]interface{}, 0, len(z.records))
	for _, r := range z.records {
		records = append(records, map[string]interface{}{"name": r.name, "type": r.typ, "value": r.value})
	}
	return m.render(ctx, "zone.template", map[string]interface{}{
		"zone":    z.name,
		"server":  m.deps.Settings.Server,
		"serial":  serial,
		"records": records,
	})
}

// zones builds the forward zones named in manage_forward_zones and the
// reverse zones for the network prefixes in manage_reverse_zones.
func (m *Bind) zones(entries []hostEntry) []zone {
	s := m.deps.Settings
	var zones []zone
	for _, name := range s.ManageForwardZones {
		name = strings.TrimSuffix(name, ".")
		z := zone{name: name, file: "db." + name}
		seen := map[string]bool{}
		for _, e := range entries {
			host := strings.TrimSuffix(e.Hostname, ".")
			if e.IP == "" || !strings.HasSuffix(host, "."+name) {
				continue
			}
			short := strings.TrimSuffix(host, "."+name)
			if seen[short] {
				continue
			}
			seen[short] = true
			z.records = append(z.records, zoneRecord{name: short, typ: "A", value: e.IP})
		}
		sortRecords(z.records)
		zones = append(zones, z)
	}
	for _, prefix := range s.ManageReverseZones {
		prefix = strings.TrimSuffix(prefix, ".")
		octets := strings.Split(prefix, ".")
		name := strings.Join(reversed(octets), ".") + ".in-addr.arpa"
		z := zone{name: name, file: "db." + prefix}
		seen := map[string]bool{}
		for _, e := range entries {
			if e.IP == "" || e.Hostname == "" || !strings.HasPrefix(e.IP, prefix+".") {
				continue
			}
			rest := strings.Split(strings.TrimPrefix(e.IP, prefix+"."), ".")
			short := strings.Join(reversed(rest), ".")
			if seen[short] {
				continue
			}
			seen[short] = true
			z.records = append(z.records, zoneRecord{name: short, typ: "PTR", value: strings.TrimSuffix(e.Hostname, ".") + "."})
		}
		sortRecords(z.records)
		zones = append(zones, z)
	}
	return zones
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func sortRecords(r []zoneRecord) {
	sort.Slice(r, func(i, j int) bool { return r[i].name < r[j].name })
}

func (m *Bind) RestartService(ctx context.Context) (int, error) {
	s := m.deps.Settings
	return m.restart(ctx, s.DNSService, s.RestartDNS, false, func(ctx context.Context) error {
		return m.deps.Runner.Check(ctx, "named-checkconf", s.NamedConfigPath)
	})
}

func (m *Bind) Sync(ctx context.Context) error {
	if err := m.WriteConfigs(ctx); err != nil {
		return err
	}
	_, err := m.RestartService(ctx)
	return err
}

// SyncSingleSystem rewrites every zone; a record cannot be attributed to a
// single system once two systems share a hostname.
func (m *Bind) SyncSingleSystem(ctx context.Context, _ *inventory.System) error {
	return m.rewrite(ctx)
}

func (m *Bind) RemoveSingleSystem(ctx context.Context, _ *inventory.System) error {
	return m.rewrite(ctx)
}

func (m *Bind) rewrite(ctx context.Context) error {
	m.mu.Lock()
	changed, err := m.writeConfigs(ctx)
	m.mu.Unlock()
	if err != nil || !changed {
		return err
	}
	_, err = m.RestartService(ctx)
	return err
}

package managers

import (
	"context"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"go.uber.org/zap"
)

// Dnsmasq manages dnsmasq.conf together with the ethers and hosts files
// dnsmasq reads. One instance can serve DHCP, DNS or both.
type Dnsmasq struct {
	*BaseManager
	kinds []ServiceKind
}

func NewDnsmasq(deps Deps, kinds ...ServiceKind) *Dnsmasq {
	if len(kinds) == 0 {
		kinds = []ServiceKind{KindDHCP, KindDNS}
	}
	return &Dnsmasq{BaseManager: NewBaseManager("dnsmasq", deps), kinds: kinds}
}

func (m *Dnsmasq) Kinds() []ServiceKind {
	return append([]ServiceKind(nil), m.kinds...)
}

// changes records which dnsmasq files a write touched.
type changes struct {
	conf  bool
	extra bool
}

func (m *Dnsmasq) WriteConfigs(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writeAll(ctx)
	return err
}

func (m *Dnsmasq) writeAll(ctx context.Context) (changes, error) {
	var c changes
	entries := m.hosts(ctx)

	conf, err := m.writeConf(ctx, entries)
	if err != nil {
		return c, err
	}
	c.conf = conf
	ethers, err := m.writeEthers(ctx, entries)
	if err != nil {
		return c, err
	}
	hosts, err := m.writeHosts(ctx, entries)
	if err != nil {
		return c, err
	}
	c.extra = ethers || hosts
	return c, nil
}

func (m *Dnsmasq) writeConf(ctx context.Context, entries []hostEntry) (bool, error) {
	s := m.deps.Settings
	hosts := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		if e.MAC == "" {
			continue
		}
		hosts = append(hosts, e.data())
	}
	out, err := m.render(ctx, "dnsmasq.template", map[string]interface{}{
		"hosts_path":  s.HostsPath,
		"server":      s.Server,
		"next_server": s.NextServerOrServer(),
		"hosts":       hosts,
	})
	if err != nil {
		return false, err
	}
	return m.writeFile(ctx, s.DnsmasqConfigPath, out)
}

// writeEthers writes "mac ip" for every interface that has both.
func (m *Dnsmasq) writeEthers(ctx context.Context, entries []hostEntry) (bool, error) {
	var b strings.Builder
	for _, e := range entries {
		if e.MAC == "" || e.IP == "" {
			continue
		}
		b.WriteString(e.MAC + "\t" + e.IP + "\n")
	}
	return m.writeFile(ctx, m.deps.Settings.EthersPath, b.String())
}

// writeHosts writes "ip hostname" for every interface that has both.
func (m *Dnsmasq) writeHosts(ctx context.Context, entries []hostEntry) (bool, error) {
	var b strings.Builder
	for _, e := range entries {
		if e.IP == "" || e.Hostname == "" {
			continue
		}
		b.WriteString(e.IP + "\t" + e.Hostname + "\n")
	}
	return m.writeFile(ctx, m.deps.Settings.HostsPath, b.String())
}

func (m *Dnsmasq) RegenEthers(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writeEthers(ctx, m.hosts(ctx))
	return err
}

func (m *Dnsmasq) RegenHosts(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writeHosts(ctx, m.hosts(ctx))
	return err
}

func (m *Dnsmasq) restartEnabled() bool {
	s := m.deps.Settings
	for _, k := range m.kinds {
		if (k == KindDHCP && s.RestartDHCP) || (k == KindDNS && s.RestartDNS) {
			return true
		}
	}
	return false
}

func (m *Dnsmasq) RestartService(ctx context.Context) (int, error) {
	s := m.deps.Settings
	return m.restart(ctx, s.DnsmasqService, m.restartEnabled(), false, func(ctx context.Context) error {
		return m.deps.Runner.Check(ctx, "dnsmasq", "--test", "--conf-file="+s.DnsmasqConfigPath)
	})
}

func (m *Dnsmasq) Sync(ctx context.Context) error {
	if err := m.WriteConfigs(ctx); err != nil {
		return err
	}
	_, err := m.RestartService(ctx)
	return err
}

// SyncSingleSystem regenerates every dnsmasq file. dnsmasq rereads ethers
// and hosts on SIGHUP, so when only those changed a reload is enough; a
// changed dnsmasq.conf needs a full restart.
func (m *Dnsmasq) SyncSingleSystem(ctx context.Context, sys *inventory.System) error {
	return m.rewrite(ctx, sys)
}

func (m *Dnsmasq) RemoveSingleSystem(ctx context.Context, sys *inventory.System) error {
	return m.rewrite(ctx, sys)
}

func (m *Dnsmasq) rewrite(ctx context.Context, sys *inventory.System) error {
	m.mu.Lock()
	c, err := m.writeAll(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	switch {
	case c.conf:
		_, err = m.RestartService(ctx)
	case c.extra:
		m.logger.Debug("Reloading dnsmasq for host changes", zap.String("system", sys.Name()))
		_, err = m.restart(ctx, m.deps.Settings.DnsmasqService, m.restartEnabled(), true, nil)
	}
	return err
}

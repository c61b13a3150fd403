package managers

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	cerr "github.com/cockroachdb/errors"
)

var errNoRunner = cerr.New("no service runner configured")

// ISC manages dhcpd.conf for the ISC DHCP server.
type ISC struct {
	*BaseManager
}

func NewISC(deps Deps) *ISC {
	return &ISC{BaseManager: NewBaseManager("isc", deps)}
}

func (m *ISC) Kinds() []ServiceKind { return []ServiceKind{KindDHCP} }

func (m *ISC) WriteConfigs(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.writeConfigs(ctx)
	return err
}

func (m *ISC) writeConfigs(ctx context.Context) (bool, error) {
	s := m.deps.Settings
	out, err := m.render(ctx, "dhcp.template", map[string]interface{}{
		"next_server": s.NextServerOrServer(),
		"groups":      groupByTag(m.hosts(ctx)),
	})
	if err != nil {
		return false, err
	}
	return m.writeFile(ctx, s.DHCPConfigPath, out)
}

func (m *ISC) RestartService(ctx context.Context) (int, error) {
	s := m.deps.Settings
	return m.restart(ctx, s.DHCPService, s.RestartDHCP, false, func(ctx context.Context) error {
		return m.deps.Runner.Check(ctx, "dhcpd", "-t", "-q", "-cf", s.DHCPConfigPath)
	})
}

func (m *ISC) Sync(ctx context.Context) error {
	if err := m.WriteConfigs(ctx); err != nil {
		return err
	}
	_, err := m.RestartService(ctx)
	return err
}

// SyncSingleSystem rewrites the whole of dhcpd.conf: host stanzas share one
// file and group blocks, so there is no safe in-place edit. The restart is
// skipped when the rewrite changed nothing.
func (m *ISC) SyncSingleSystem(ctx context.Context, _ *inventory.System) error {
	return m.rewrite(ctx)
}

func (m *ISC) RemoveSingleSystem(ctx context.Context, _ *inventory.System) error {
	return m.rewrite(ctx)
}

func (m *ISC) rewrite(ctx context.Context) error {
	m.mu.Lock()
	changed, err := m.writeConfigs(ctx)
	m.mu.Unlock()
	if err != nil || !changed {
		return err
	}
	_, err = m.RestartService(ctx)
	return err
}

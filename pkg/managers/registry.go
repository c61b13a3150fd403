// pkg/managers/registry.go

package managers

import (
	"context"
	"sync"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Registry holds at most one manager per service kind. It is built once at
// start-up and handed to whoever needs the managers.
type Registry struct {
	byKind map[ServiceKind]Manager
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[ServiceKind]Manager)}
}

// FromSettings builds the registry for the managed services. When DHCP and
// DNS are both served by dnsmasq they share one instance.
func FromSettings(deps Deps) (*Registry, error) {
	s := deps.Settings
	if s == nil {
		return nil, cerr.New("managers: settings are required")
	}
	r := NewRegistry()

	var dnsmasqKinds []ServiceKind
	if s.ManageDHCP && s.DHCPModule == "dnsmasq" {
		dnsmasqKinds = append(dnsmasqKinds, KindDHCP)
	}
	if s.ManageDNS && s.DNSModule == "dnsmasq" {
		dnsmasqKinds = append(dnsmasqKinds, KindDNS)
	}
	if len(dnsmasqKinds) > 0 {
		if err := r.Register(NewDnsmasq(deps, dnsmasqKinds...)); err != nil {
			return nil, err
		}
	}

	if s.ManageDHCP {
		switch s.DHCPModule {
		case "isc":
			if err := r.Register(NewISC(deps)); err != nil {
				return nil, err
			}
		case "dnsmasq":
		default:
			return nil, prov_err.NewValidationError("settings", "", "dhcp_module", "unknown DHCP module %q", s.DHCPModule)
		}
	}
	if s.ManageDNS {
		switch s.DNSModule {
		case "bind":
			if err := r.Register(NewBind(deps)); err != nil {
				return nil, err
			}
		case "dnsmasq":
		default:
			return nil, prov_err.NewValidationError("settings", "", "dns_module", "unknown DNS module %q", s.DNSModule)
		}
	}
	if s.ManageTFTPD {
		switch s.TFTPModule {
		case "in_tftpd":
			if err := r.Register(NewInTFTPD(deps)); err != nil {
				return nil, err
			}
		default:
			return nil, prov_err.NewValidationError("settings", "", "tftpd_module", "unknown TFTP module %q", s.TFTPModule)
		}
	}
	return r, nil
}

// Register adds m for each of its kinds. A kind already held by a different
// manager is an error; registering the same instance again is a no-op.
func (r *Registry) Register(m Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range m.Kinds() {
		if existing, ok := r.byKind[k]; ok && existing != m {
			return cerr.Newf("%s service already managed by %s", k, existing.Name())
		}
	}
	for _, k := range m.Kinds() {
		r.byKind[k] = m
	}
	return nil
}

// Get returns the manager for kind.
func (r *Registry) Get(kind ServiceKind) (Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byKind[kind]
	return m, ok
}

// Managers returns each distinct manager once, in dhcp, dns, tftp order.
func (r *Registry) Managers() []Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Manager
	seen := map[Manager]bool{}
	for _, k := range kindOrder {
		m, ok := r.byKind[k]
		if !ok || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Sync syncs every manager once. A failing manager does not stop the
// others; the failures are returned together.
func (r *Registry) Sync(ctx context.Context) ([]OperationResult, error) {
	return r.each(ctx, "sync", func(m Manager) error { return m.Sync(ctx) })
}

// SyncSingleSystem passes a saved system to every manager.
func (r *Registry) SyncSingleSystem(ctx context.Context, sys *inventory.System) ([]OperationResult, error) {
	return r.each(ctx, "sync_system", func(m Manager) error { return m.SyncSingleSystem(ctx, sys) })
}

// RemoveSingleSystem passes a removed system to every manager.
func (r *Registry) RemoveSingleSystem(ctx context.Context, sys *inventory.System) ([]OperationResult, error) {
	return r.each(ctx, "remove_system", func(m Manager) error { return m.RemoveSingleSystem(ctx, sys) })
}

// RegenHosts regenerates the hosts file of every manager that keeps one.
func (r *Registry) RegenHosts(ctx context.Context) error {
	var errs *multierror.Error
	for _, m := range r.Managers() {
		if h, ok := m.(HostsRegenerator); ok {
			if err := h.RegenHosts(ctx); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

func (r *Registry) each(ctx context.Context, op string, fn func(Manager) error) ([]OperationResult, error) {
	logger := otelzap.Ctx(ctx)
	var results []OperationResult
	var errs *multierror.Error
	for _, m := range r.Managers() {
		var opErr error
		res := timed(m.Name(), op, func() error {
			opErr = fn(m)
			return opErr
		})
		results = append(results, res)
		if opErr != nil {
			logger.Error("Service manager failed",
				zap.String("manager", m.Name()),
				zap.String("op", op),
				zap.Error(opErr))
			if !prov_err.IsManager(opErr) {
				opErr = prov_err.NewManagerError(m.Name(), op, opErr)
			}
			errs = multierror.Append(errs, opErr)
		}
	}
	return results, errs.ErrorOrNil()
}

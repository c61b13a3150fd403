// pkg/managers/core.go

// Package managers turns the resolved inventory into backend service
// configuration (DHCP, DNS, TFTP) and restarts those services.
//
// Every backend regenerates its files wholesale from the graph. The single
// system entry points exist so a backend can skip work it can prove is
// unnecessary; when it cannot, it falls back to a full rewrite and restart.
package managers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/blender"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/fileops"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/metrics"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/pxe"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/systemd"
	"github.com/sony/gobreaker"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ServiceKind is the network service a manager is responsible for.
type ServiceKind string

const (
	KindDHCP ServiceKind = "dhcp"
	KindDNS  ServiceKind = "dns"
	KindTFTP ServiceKind = "tftp"
)

var kindOrder = []ServiceKind{KindDHCP, KindDNS, KindTFTP}

// Manager configures one backend service family.
type Manager interface {
	Name() string
	Kinds() []ServiceKind
	// WriteConfigs regenerates every file the backend owns.
	WriteConfigs(ctx context.Context) error
	// RestartService returns 0 when the service was restarted, or restarting
	// is disabled, and a non-zero code otherwise.
	RestartService(ctx context.Context) (int, error)
	Sync(ctx context.Context) error
	SyncSingleSystem(ctx context.Context, sys *inventory.System) error
	RemoveSingleSystem(ctx context.Context, sys *inventory.System) error
}

// HostsRegenerator is implemented by backends that keep a hosts file.
type HostsRegenerator interface {
	RegenHosts(ctx context.Context) error
}

// EthersRegenerator is implemented by backends that keep an ethers file.
type EthersRegenerator interface {
	RegenEthers(ctx context.Context) error
}

// Renderer renders a named template.
type Renderer interface {
	RenderNamed(ctx context.Context, name string, data map[string]interface{}) (string, error)
}

// Deps are the collaborators shared by every backend.
type Deps struct {
	Settings *config.Settings
	Graph    *inventory.Graph
	Resolver *blender.Resolver
	Renderer Renderer
	Files    *fileops.FileSystemOperations
	Runner   systemd.ServiceRunner
	Logger   *zap.Logger
}

// OperationResult records one manager operation.
type OperationResult struct {
	Manager  string        `json:"manager"`
	Op       string        `json:"op"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// BaseManager carries what every backend needs: its collaborators, a lock
// serialising writes to its files, and a circuit breaker around restarts so
// a service that keeps failing is not hammered on every save.
type BaseManager struct {
	name    string
	deps    Deps
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
	mu      sync.Mutex
}

func NewBaseManager(name string, deps Deps) *BaseManager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Files == nil {
		deps.Files = fileops.NewFileSystemOperations(deps.Logger)
	}
	logger := deps.Logger.Named("manager").With(zap.String("manager", name))
	return &BaseManager{
		name:   name,
		deps:   deps,
		logger: logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name + "-restart",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(n string, from, to gobreaker.State) {
				logger.Warn("Restart circuit changed state",
					zap.String("breaker", n),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

func (b *BaseManager) Name() string { return b.name }

// writeFile writes content to path and reports whether the file changed.
func (b *BaseManager) writeFile(ctx context.Context, path, content string) (bool, error) {
	changed, err := b.deps.Files.WriteFile(ctx, path, []byte(content), 0o644)
	if err != nil {
		return false, prov_err.NewManagerError(b.name, "write "+path, err)
	}
	if changed {
		otelzap.Ctx(ctx).Info("Service configuration updated",
			zap.String("manager", b.name), zap.String("path", path))
	}
	return changed, nil
}

// render renders a named template, failing as a manager error.
func (b *BaseManager) render(ctx context.Context, name string, data map[string]interface{}) (string, error) {
	out, err := b.deps.Renderer.RenderNamed(ctx, name, data)
	if err != nil {
		return "", prov_err.NewManagerError(b.name, "render "+name, err)
	}
	return out, nil
}

// restart checks and restarts unit. An empty unit or disabled restart is a
// successful no-op.
func (b *BaseManager) restart(ctx context.Context, unit string, enabled bool, reload bool, check func(context.Context) error) (int, error) {
	if !enabled || unit == "" {
		b.logger.Debug("Restart skipped", zap.String("unit", unit), zap.Bool("enabled", enabled))
		return 0, nil
	}
	if b.deps.Runner == nil {
		return 1, prov_err.NewManagerError(b.name, "restart "+unit, errNoRunner)
	}

	timeout := 30 * time.Second
	if b.deps.Settings != nil && b.deps.Settings.RestartTimeout > 0 {
		timeout = b.deps.Settings.RestartTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := b.breaker.Execute(func() (interface{}, error) {
		if check != nil {
			if err := check(rctx); err != nil {
				return nil, err
			}
		}
		if reload {
			return nil, b.deps.Runner.Reload(rctx, unit)
		}
		return nil, b.deps.Runner.Restart(rctx, unit)
	})
	metrics.ManagerOps.WithLabelValues(b.name, "restart", metrics.Result(err)).Inc()
	if err != nil {
		b.logger.Warn("Service restart failed",
			zap.String("unit", unit),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return 1, prov_err.NewManagerError(b.name, "restart "+unit, err)
	}
	b.logger.Info("Service restarted", zap.String("unit", unit), zap.Duration("duration", time.Since(start)))
	return 0, nil
}

// hostEntry is one interface of one system as the DHCP and DNS backends see
// it.
type hostEntry struct {
	System    string
	Interface string
	MAC       string
	IP        string
	Hostname  string
	Gateway   string
	Netmask   string
	Tag       string
	Filename  string
}

func (h hostEntry) data() map[string]interface{} {
	return map[string]interface{}{
		"name":     h.System + "-" + h.Interface,
		"mac":      h.MAC,
		"ip":       h.IP,
		"hostname": h.Hostname,
		"gateway":  h.Gateway,
		"netmask":  h.Netmask,
		"tag":      h.Tag,
		"filename": h.Filename,
	}
}

// hosts lists every interface of every system, ordered by system name then
// interface order. A system that does not resolve is skipped with a warning.
// With duplicate MACs allowed only the first holder of a MAC is listed, since
// neither dhcpd nor dnsmasq accept two leases for one address.
func (b *BaseManager) hosts(ctx context.Context) []hostEntry {
	logger := otelzap.Ctx(ctx)
	var out []hostEntry
	seen := map[string]string{}
	for _, it := range b.deps.Graph.Systems().ToList() {
		sys := it.(*inventory.System)
		view, err := b.deps.Resolver.Resolve(sys.Ref())
		if err != nil {
			logger.Warn("Skipping unresolvable system", zap.String("system", sys.Name()), zap.Error(err))
			continue
		}
		loaders := view.List("boot_loaders")
		kernel := view.String("kernel_path") != ""
		for _, ni := range sys.Interfaces() {
			// same install rule as the boot configs the sync writes
			filename := bootFilename(pxe.LoaderFor(loaders, ni.NetbootEnabled && kernel))
			entry := hostEntry{
				System:    sys.Name(),
				Interface: ni.Name,
				MAC:       ni.MACAddress,
				IP:        ni.IP(),
				Gateway:   ni.Gateway,
				Netmask:   ni.Netmask,
				Tag:       ni.DHCPTag,
				Filename:  filename,
			}
			if entry.Gateway == "" {
				entry.Gateway = view.String("gateway")
			}
			switch {
			case ni.DNSName != "":
				entry.Hostname = ni.DNSName
			case ni.Hostname != "":
				entry.Hostname = ni.Hostname
			default:
				entry.Hostname = view.String("hostname")
			}
			if entry.MAC != "" {
				if owner, dup := seen[entry.MAC]; dup {
					logger.Warn("Duplicate MAC left out of service configuration",
						zap.String("mac", entry.MAC),
						zap.String("system", sys.Name()),
						zap.String("kept", owner))
					continue
				}
				seen[entry.MAC] = sys.Name()
			}
			out = append(out, entry)
		}
	}
	return out
}

// bootFilename is the network boot program handed out by DHCP.
func bootFilename(loader pxe.Loader) string {
	switch loader {
	case pxe.LoaderGrub:
		return "grub/grubx64.efi"
	case pxe.LoaderIPXE:
		return "undionly.kpxe"
	}
	return "pxelinux.0"
}

// groupByTag groups entries with a MAC by DHCP tag, the untagged group first.
func groupByTag(entries []hostEntry) []interface{} {
	byTag := map[string][]interface{}{}
	for _, e := range entries {
		if e.MAC == "" {
			continue
		}
		byTag[e.Tag] = append(byTag[e.Tag], e.data())
	}
	tags := make([]string, 0, len(byTag))
	for t := range byTag {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	groups := make([]interface{}, 0, len(tags))
	for _, t := range tags {
		groups = append(groups, map[string]interface{}{"tag": t, "hosts": byTag[t]})
	}
	return groups
}

func timed(name, op string, fn func() error) OperationResult {
	start := time.Now()
	err := fn()
	metrics.ManagerOps.WithLabelValues(name, op, metrics.Result(err)).Inc()
	res := OperationResult{Manager: name, Op: op, Success: err == nil, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

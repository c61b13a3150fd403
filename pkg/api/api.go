// pkg/api/api.go

// Package api assembles the provisioning server from its settings: the
// inventory graph and its store, the resolver, the template renderer, the
// service managers, the trigger bus and the sync compiler. Commands talk to
// an *API and never build the pieces themselves.
package api

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/blender"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/fileops"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/managers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/serializer"
	psync "github.com/CodeMonkeyCybersecurity/prov/pkg/sync"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/systemd"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/templates"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/triggers"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tune how New builds the server.
type Options struct {
	// Runner restarts services. Nil means systemctl.
	Runner systemd.ServiceRunner
	Logger *zap.Logger
	// DryRun logs service restarts instead of running them.
	DryRun bool
	// RenderRate caps template renders per second; zero is unlimited.
	RenderRate float64
}

// API is a loaded provisioning server.
type API struct {
	settings *config.Settings
	store    serializer.Store
	graph    *inventory.Graph
	resolver *blender.Resolver
	managers *managers.Registry
	triggers *triggers.Bus
	compiler *psync.Compiler
	logger   *zap.Logger
}

// New validates s, opens the store, loads the inventory and wires every
// component. Inventory mutations made through the returned API regenerate
// their artifacts and fire the change triggers.
func New(ctx context.Context, s *config.Settings, opts Options) (*API, error) {
	logger := opts.Logger
	if logger == nil {
		logger = otelzap.Ctx(ctx).ZapLogger()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	graph := inventory.NewGraph(logger, inventory.Options{
		AllowDuplicateMACs: s.AllowDuplicateMACs,
		AllowDuplicateIPs:  s.AllowDuplicateIPs,
	})

	store, err := serializer.Open(s, logger)
	if err != nil {
		return nil, err
	}
	snap, err := serializer.Load(ctx, store, graph)
	if err != nil {
		_ = store.Close()
		return nil, cerr.Wrapf(err, "load inventory from %s", s.StorePath)
	}

	renderOpts := templates.DefaultRenderOptions()
	if opts.RenderRate > 0 {
		renderOpts.Limiter = rate.NewLimiter(rate.Limit(opts.RenderRate), int(opts.RenderRate)+1)
	}
	renderer := templates.NewRenderer(logger, s.TemplateDir, renderOpts)
	resolver := blender.New(graph, s, logger)
	files := fileops.NewFileSystemOperations(logger)

	runner := opts.Runner
	if runner == nil {
		runner = systemd.NewSystemctl(s.RestartTimeout, opts.DryRun)
	}
	registry, err := managers.FromSettings(managers.Deps{
		Settings: s,
		Graph:    graph,
		Resolver: resolver,
		Renderer: renderer,
		Files:    files,
		Runner:   runner,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := triggers.New(s.TriggerDir, s.TriggerTimeout, logger)
	compiler := psync.New(psync.Deps{
		Settings: s,
		Graph:    graph,
		Resolver: resolver,
		Renderer: renderer,
		Files:    files,
		Managers: registry,
		Triggers: bus,
		Logger:   logger,
	})
	graph.AddObserver(compiler)
	graph.AddObserver(triggers.Observer{Bus: bus})

	a := &API{
		settings: s,
		store:    store,
		graph:    graph,
		resolver: resolver,
		managers: registry,
		triggers: bus,
		compiler: compiler,
		logger:   logger.Named("api"),
	}
	a.logger.Info("Provisioning server ready",
		zap.String("store", s.StoreBackend),
		zap.Int("items", snap.Len()),
		zap.Int("managers", len(registry.Managers())),
		zap.Duration("duration", time.Since(start)))
	return a, nil
}

func (a *API) Settings() *config.Settings   { return a.settings }
func (a *API) Graph() *inventory.Graph      { return a.graph }
func (a *API) Triggers() *triggers.Bus      { return a.triggers }
func (a *API) Managers() *managers.Registry { return a.managers }
func (a *API) Compiler() *psync.Compiler    { return a.compiler }

// Sync runs a full sync.
func (a *API) Sync(ctx context.Context) (*psync.Report, error) {
	return a.compiler.Sync(ctx)
}

// Find returns a copy of the named item.
func (a *API) Find(kind inventory.Kind, name string) (inventory.Item, error) {
	it := a.graph.Collection(kind).Find(name)
	if it == nil {
		return nil, prov_err.NewValidationError(string(kind), name, "name", "no such %s", kind)
	}
	return it, nil
}

// List returns copies of every item of kind, sorted by name.
func (a *API) List(kind inventory.Kind) []inventory.Item {
	return a.graph.Collection(kind).ToList()
}

// Save adds item, or replaces the stored item of the same name and UID.
// The item is persisted and its artifacts regenerated.
func (a *API) Save(ctx context.Context, item inventory.Item) error {
	if err := a.graph.Collection(item.Kind()).Add(ctx, item, true); err != nil {
		return err
	}
	a.logger.Info("Item saved",
		zap.String("kind", string(item.Kind())),
		zap.String("name", item.Name()))
	return nil
}

// Remove deletes the named item. Without recursive an item that others
// depend on is refused.
func (a *API) Remove(ctx context.Context, kind inventory.Kind, name string, recursive bool) error {
	if err := a.graph.Collection(kind).Remove(ctx, name, recursive); err != nil {
		return err
	}
	a.logger.Info("Item removed",
		zap.String("kind", string(kind)),
		zap.String("name", name),
		zap.Bool("recursive", recursive))
	return nil
}

// Rename renames an item and rewrites every reference to it.
func (a *API) Rename(ctx context.Context, kind inventory.Kind, oldName, newName string) error {
	return a.graph.Collection(kind).Rename(ctx, oldName, newName)
}

// Resolve returns the fully inherited view of an item.
func (a *API) Resolve(kind inventory.Kind, name string) (*blender.View, error) {
	if _, err := a.Find(kind, name); err != nil {
		return nil, err
	}
	return a.resolver.Resolve(inventory.Ref{Kind: kind, Name: name})
}

// Reload replaces the in-memory inventory with what the store holds. It
// generates nothing; callers follow it with Sync.
func (a *API) Reload(ctx context.Context) error {
	snap, err := serializer.Load(ctx, a.store, a.graph)
	if err != nil {
		return cerr.Wrap(err, "reload inventory")
	}
	a.logger.Info("Inventory reloaded", zap.Int("items", snap.Len()))
	return nil
}

// Close releases the store.
func (a *API) Close() error {
	return a.store.Close()
}

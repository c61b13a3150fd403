// pkg/sync/compiler.go

package sync

import (
	"context"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/blender"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/fileops"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/managers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/metrics"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/triggers"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Renderer renders template text and named templates.
type Renderer interface {
	Template(name string) (string, error)
	Render(ctx context.Context, text string, data map[string]interface{}) (string, error)
	RenderNamed(ctx context.Context, name string, data map[string]interface{}) (string, error)
}

// Deps are the compiler's collaborators. Managers and Triggers may be nil.
type Deps struct {
	Settings *config.Settings
	Graph    *inventory.Graph
	Resolver *blender.Resolver
	Renderer Renderer
	Files    *fileops.FileSystemOperations
	Managers *managers.Registry
	Triggers *triggers.Bus
	Logger   *zap.Logger
}

// Compiler generates the boot and web trees.
type Compiler struct {
	settings *config.Settings
	graph    *inventory.Graph
	resolver *blender.Resolver
	renderer Renderer
	files    *fileops.FileSystemOperations
	managers *managers.Registry
	triggers *triggers.Bus
	logger   *zap.Logger
	layout   layout
	locks    *Locks
}

func New(d Deps) *Compiler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Files == nil {
		d.Files = fileops.NewFileSystemOperations(d.Logger)
	}
	if d.Managers == nil {
		d.Managers = managers.NewRegistry()
	}
	return &Compiler{
		settings: d.Settings,
		graph:    d.Graph,
		resolver: d.Resolver,
		renderer: d.Renderer,
		files:    d.Files,
		managers: d.Managers,
		triggers: d.Triggers,
		logger:   d.Logger.Named("sync"),
		layout:   layout{tftp: d.Settings.TFTPBootDir, web: d.Settings.WebDir},
		locks:    NewLocks(),
	}
}

func (c *Compiler) workers() int {
	if c.settings.SyncWorkers > 0 {
		return c.settings.SyncWorkers
	}
	return 1
}

// Sync regenerates everything. The returned error is non-nil only when the
// run could not complete: the output tree is unusable or a manager could not
// write its configuration. Per-item failures are in the report.
func (c *Compiler) Sync(ctx context.Context) (rep *Report, err error) {
	release := c.locks.Full()
	defer release()

	rep = newReport(uuid.NewString(), "full")
	ctx, span := telemetry.Start(ctx, "sync.Sync", attribute.String("operation_id", rep.OperationID))
	defer span.End()
	logger := otelzap.Ctx(ctx)
	defer func() {
		rep.Duration = time.Since(rep.Started)
		metrics.SyncDuration.WithLabelValues("full").Observe(rep.Duration.Seconds())
		if err != nil {
			span.RecordError(err)
		}
		logger.Info("Sync finished",
			zap.String("operation_id", rep.OperationID),
			zap.String("summary", rep.Summary()),
			zap.Duration("duration", rep.Duration),
			zap.Error(err))
	}()

	logger.Info("Sync starting",
		zap.String("operation_id", rep.OperationID),
		zap.String("tftpboot", c.layout.tftp),
		zap.String("webdir", c.layout.web))

	c.fire(ctx, triggers.ClassPreSync)

	start := time.Now()
	if err := c.Clean(ctx); err != nil {
		return rep, err
	}
	logger.Debug("[CLEAN] Output directories emptied", zap.Duration("duration", time.Since(start)))

	start = time.Now()
	c.CopyDistroFiles(ctx, rep)
	logger.Debug("[COPY] Distro files copied", zap.Duration("duration", time.Since(start)))

	start = time.Now()
	c.RenderTemplates(ctx, rep)
	logger.Debug("[RENDER] Item artifacts rendered", zap.Duration("duration", time.Since(start)))

	start = time.Now()
	results, merr := c.managers.Sync(ctx)
	rep.managerResults(results, merr)
	logger.Debug("[MANAGERS] Service managers synced",
		zap.Int("managers", len(results)),
		zap.Duration("duration", time.Since(start)))
	if fatal := writeFailures(merr); fatal != nil {
		return rep, fatal
	}

	c.fire(ctx, triggers.ClassPostSync)
	c.fire(ctx, triggers.ClassChange)
	return rep, nil
}

// writeFailures keeps the manager errors that are not restart failures. A
// failed restart is logged and reported, but the configuration is in place.
func writeFailures(err error) error {
	if err == nil {
		return nil
	}
	var out *multierror.Error
	for _, e := range flatten(err) {
		var me *prov_err.ManagerError
		if cerr.As(e, &me) && strings.HasPrefix(me.Op, "restart") {
			continue
		}
		out = multierror.Append(out, e)
	}
	if out.ErrorOrNil() == nil {
		return nil
	}
	return cerr.Wrap(out, "service manager configuration failed")
}

func flatten(err error) []error {
	if me, ok := err.(*multierror.Error); ok {
		return me.Errors
	}
	return []error{err}
}

// Clean empties every generated directory, creating any that are missing.
func (c *Compiler) Clean(ctx context.Context) error {
	for _, dir := range c.layout.managedDirs() {
		if err := c.files.CleanTree(ctx, dir); err != nil {
			return prov_err.NewFatalError("cannot prepare output directory "+dir, err,
				"check that "+dir+" is writable by the provisioning service")
		}
	}
	return nil
}

// CopyDistroFiles copies each distro's kernel and initrd into both trees.
func (c *Compiler) CopyDistroFiles(ctx context.Context, rep *Report) {
	var g errgroup.Group
	g.SetLimit(c.workers())
	for _, it := range c.graph.Distros().ToList() {
		d := it.(*inventory.Distro)
		g.Go(func() error {
			c.copyDistro(ctx, rep, d)
			return nil
		})
	}
	_ = g.Wait()
}

// RenderTemplates renders every item, one kind after another so a parent's
// artifacts always exist before its children's.
func (c *Compiler) RenderTemplates(ctx context.Context, rep *Report) {
	for _, kind := range []inventory.Kind{inventory.KindDistro, inventory.KindImage, inventory.KindRepo, inventory.KindProfile, inventory.KindSystem} {
		var g errgroup.Group
		g.SetLimit(c.workers())
		for _, it := range c.graph.Collection(kind).ToList() {
			item := it
			g.Go(func() error {
				c.renderItem(ctx, rep, item.Ref())
				return nil
			})
		}
		_ = g.Wait()
		metrics.InventoryItems.WithLabelValues(string(kind)).Set(float64(c.graph.Collection(kind).Len()))
	}
	c.writeMenu(ctx, rep)
}

func (c *Compiler) fire(ctx context.Context, class string, args ...string) {
	if c.triggers == nil {
		return
	}
	if err := c.triggers.Fire(ctx, class, args...); err != nil {
		otelzap.Ctx(ctx).Warn("Trigger failures", zap.String("class", class), zap.Error(err))
	}
}

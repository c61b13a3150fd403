// pkg/triggers/bus.go

// Package triggers runs the hooks fired around syncs and inventory changes.
//
// A hook class is a slash separated name such as "sync/pre". Its hooks are
// the in-process functions registered for the class followed by the
// executable files in <trigger_dir>/<class>/, each group in name order. A
// failing hook is logged and the remaining hooks still run.
package triggers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/metrics"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Hook classes fired by the sync compiler.
const (
	ClassPreSync  = "sync/pre"
	ClassPostSync = "sync/post"
	ClassChange   = "change"
)

// AddPost is the class fired after an item of kind is saved.
func AddPost(kind inventory.Kind) string { return "add/" + string(kind) + "/post" }

// DeletePost is the class fired after an item of kind is removed.
func DeletePost(kind inventory.Kind) string { return "delete/" + string(kind) + "/post" }

// Hook is an in-process trigger. ctx carries the trigger timeout and a hook
// must return once it is done: Fire stops waiting at the deadline but cannot
// stop the hook, so one that ignores ctx keeps running in the background.
type Hook func(ctx context.Context, args []string) error

type namedHook struct {
	name string
	fn   Hook
}

// Bus discovers and runs hooks.
type Bus struct {
	dir     string
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.RWMutex
	hooks map[string][]namedHook
}

// New returns a bus reading scripts below dir. An empty dir disables script
// discovery.
func New(dir string, timeout time.Duration, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bus{
		dir:     dir,
		timeout: timeout,
		logger:  logger.Named("triggers"),
		hooks:   make(map[string][]namedHook),
	}
}

// Register adds an in-process hook to class, replacing one of the same name.
func (b *Bus) Register(class, name string, fn Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.hooks[class]
	for i := range list {
		if list[i].name == name {
			list[i].fn = fn
			return
		}
	}
	list = append(list, namedHook{name: name, fn: fn})
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	b.hooks[class] = list
}

// Scripts lists the executable hook files of class in name order.
func (b *Bus) Scripts(class string) ([]string, error) {
	if b.dir == "" {
		return nil, nil
	}
	if !filepath.IsLocal(class) {
		return nil, cerr.Newf("hook class %q escapes the trigger directory", class)
	}
	dir := filepath.Join(b.dir, filepath.FromSlash(class))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrapf(err, "list triggers in %s", dir)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		// package manager leftovers and editor files are never hooks
		if strings.HasPrefix(name, ".") || strings.Contains(name, ".rpm") || strings.HasSuffix(name, "~") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// Fire runs every hook of class with args and waits for all of them. The
// returned error combines the hook failures; it is informational, since no
// failure stops the remaining hooks.
func (b *Bus) Fire(ctx context.Context, class string, args ...string) error {
	ctx, span := telemetry.Start(ctx, "triggers.Fire", attribute.String("class", class))
	defer span.End()

	b.mu.RLock()
	hooks := append([]namedHook(nil), b.hooks[class]...)
	b.mu.RUnlock()

	scripts, err := b.Scripts(class)
	if err != nil {
		b.logger.Warn("Trigger discovery failed", zap.String("class", class), zap.Error(err))
		return err
	}
	if len(hooks) == 0 && len(scripts) == 0 {
		return nil
	}

	var errs *multierror.Error
	for _, h := range hooks {
		err := b.runHook(ctx, h, args)
		b.record(class, h.name, err)
		if err != nil {
			errs = multierror.Append(errs, cerr.Wrapf(err, "trigger %s/%s", class, h.name))
		}
	}
	for _, script := range scripts {
		_, err := execute.Run(ctx, execute.Options{
			Command: script,
			Args:    args,
			Timeout: b.timeout,
			Logger:  b.logger,
		})
		b.record(class, filepath.Base(script), err)
		if err != nil {
			errs = multierror.Append(errs, cerr.Wrapf(err, "trigger %s", script))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// runHook waits for h until the trigger timeout. A hook still running at the
// deadline is abandoned with its context cancelled.
func (b *Bus) runHook(ctx context.Context, h namedHook, args []string) (err error) {
	hctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- cerr.Newf("hook panicked: %v", r)
			}
		}()
		done <- h.fn(hctx, append([]string(nil), args...))
	}()
	select {
	case err = <-done:
		return err
	case <-hctx.Done():
		return cerr.Newf("hook timed out after %s", b.timeout)
	}
}

func (b *Bus) record(class, name string, err error) {
	metrics.TriggerRuns.WithLabelValues(class, metrics.Result(err)).Inc()
	if err != nil {
		b.logger.Warn("Trigger failed",
			zap.String("class", class),
			zap.String("hook", name),
			zap.Error(err))
		return
	}
	b.logger.Debug("Trigger ran", zap.String("class", class), zap.String("hook", name))
}

package systemd

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ServiceRunner restarts and checks the services the managers configure.
type ServiceRunner interface {
	Restart(ctx context.Context, unit string) error
	Reload(ctx context.Context, unit string) error
	// Check runs a configuration check command such as `dhcpd -t`.
	Check(ctx context.Context, command string, args ...string) error
}

// Systemctl drives units through systemctl with a bounded timeout.
type Systemctl struct {
	Timeout time.Duration
	DryRun  bool
}

func NewSystemctl(timeout time.Duration, dryRun bool) *Systemctl {
	return &Systemctl{Timeout: timeout, DryRun: dryRun}
}

func (s *Systemctl) Restart(ctx context.Context, unit string) error {
	return s.run(ctx, "restart", unit)
}

func (s *Systemctl) Reload(ctx context.Context, unit string) error {
	return s.run(ctx, "reload-or-restart", unit)
}

func (s *Systemctl) Check(ctx context.Context, command string, args ...string) error {
	logger := otelzap.Ctx(ctx)
	logger.Debug("Checking service configuration", zap.String("command", command), zap.Strings("args", args))
	out, err := execute.Run(ctx, execute.Options{
		Command: command,
		Args:    args,
		Timeout: s.Timeout,
		DryRun:  s.DryRun,
		Logger:  logger.ZapLogger(),
	})
	if err != nil {
		return cerr.WithDetail(cerr.Wrapf(err, "%s configuration check", command), out)
	}
	return nil
}

// run executes systemctl with args.
func (s *Systemctl) run(ctx context.Context, args ...string) error {
	logger := otelzap.Ctx(ctx)

	if !s.DryRun {
		if _, err := exec.LookPath("systemctl"); err != nil {
			return cerr.Wrap(err, "systemctl not found")
		}
	}

	logger.Debug("Executing systemctl command", zap.Strings("args", args))
	if _, err := execute.Run(ctx, execute.Options{
		Command: "systemctl",
		Args:    args,
		Timeout: s.Timeout,
		DryRun:  s.DryRun,
		Logger:  logger.ZapLogger(),
	}); err != nil {
		return cerr.Wrapf(err, "systemctl %s failed", strings.Join(args, " "))
	}

	logger.Debug("Systemctl command completed successfully", zap.Strings("args", args))
	return nil
}

// ActiveState returns the ActiveState property of unit.
func (s *Systemctl) ActiveState(ctx context.Context, unit string) (string, error) {
	output, err := execute.Run(ctx, execute.Options{
		Command: "systemctl",
		Args:    []string{"show", unit, "--property=ActiveState"},
		Timeout: s.Timeout,
		Capture: true,
		Logger:  otelzap.Ctx(ctx).ZapLogger(),
	})
	if err != nil {
		return "unknown", cerr.Wrapf(err, "getting %s state", unit)
	}
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok && k == "ActiveState" {
			return v, nil
		}
	}
	return "unknown", nil
}

// pkg/execute/execute.go

// Package execute runs external programs with a bounded timeout, optional
// retries and structured logging. Commands are never passed through a shell.
package execute

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a command run whose Options leave Timeout unset.
const DefaultTimeout = 30 * time.Second

// Options describe one command run.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
	Retries int
	Delay   time.Duration
	// Capture returns combined output on success as well as on failure.
	Capture bool
	DryRun  bool
	Logger  *zap.Logger
}

// Run executes opts.Command and returns its combined output when Capture is
// set or the command fails.
func Run(ctx context.Context, opts Options) (string, error) {
	cmdStr := strings.TrimSpace(opts.Command + " " + strings.Join(opts.Args, " "))
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := telemetry.Start(ctx, "execute.Run",
		attribute.String("command", opts.Command),
		attribute.String("args", strings.Join(opts.Args, " ")))
	defer span.End()

	if opts.DryRun {
		logger.Info("Dry run mode - command not executed", zap.String("command", cmdStr))
		return "", nil
	}

	attempts := opts.Retries
	if attempts < 1 {
		attempts = 1
	}

	var output string
	var err error
	for i := 1; i <= attempts; i++ {
		output, err = runOnce(ctx, opts)
		if err == nil {
			logger.Debug("Execution succeeded", zap.String("command", cmdStr), zap.Int("attempt", i))
			break
		}

		span.RecordError(err)
		logger.Warn("Execution failed",
			zap.Int("attempt", i),
			zap.String("command", cmdStr),
			zap.String("summary", prov_err.ExtractSummary(output, 2)),
			zap.Error(err))

		if i < attempts {
			select {
			case <-ctx.Done():
				return output, cerr.Wrapf(ctx.Err(), "%s: cancelled after %d attempts", cmdStr, i)
			case <-time.After(opts.Delay):
			}
		}
	}

	if err != nil {
		return output, cerr.Wrapf(err, "%s failed after %d attempts", cmdStr, attempts)
	}
	if opts.Capture {
		return output, nil
	}
	return "", nil
}

func runOnce(ctx context.Context, opts Options) (string, error) {
	rc, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(rc, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if rc.Err() == context.DeadlineExceeded {
		return buf.String(), cerr.Newf("timed out after %s", opts.Timeout)
	}
	return buf.String(), err
}

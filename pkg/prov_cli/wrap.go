// pkg/prov_cli/wrap.go

package prov_cli

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Wrap ensures panic recovery, telemetry and logging around a command body.
func Wrap(fn func(rc *prov_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger.InitFallback()

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		rc := prov_io.NewContext(parent, cmd.CommandPath())
		defer rc.End(&err)

		defer func() {
			if r := recover(); r != nil {
				err = cerr.AssertionFailedf("panic: %v", r)
				rc.Log.Error("Panic recovered", zap.Any("panic", r))
			}
		}()

		rc.Log.Debug("Command starting", zap.Strings("args", args))

		err = fn(rc, cmd, args)
		if err != nil {
			err = cerr.WithStack(err)
		}
		return err
	}
}

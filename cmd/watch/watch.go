// cmd/watch/watch.go
package watch

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/api"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/cmd_helpers"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/metrics"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_cli"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/watcher"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	debounce    time.Duration
	skipInitial bool
)

// WatchCmd keeps the generated trees in step with the store.
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Resync whenever the inventory or templates change on disk",
	Long: `Run a full sync, then watch the item store and the template directory and
reload and resync after every burst of changes. With --metrics-addr the
Prometheus metrics are served on /metrics.

Examples:
  prov watch
  prov watch --metrics-addr :9153 --debounce 2s`,
	Args: cobra.NoArgs,
	RunE: prov_cli.Wrap(runWatch),
}

func init() {
	WatchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	WatchCmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "Quiet period before a batch of changes is handled")
	WatchCmd.Flags().BoolVar(&skipInitial, "skip-initial-sync", false, "Do not run a full sync at start")
}

func runWatch(rc *prov_io.RuntimeContext, cmd *cobra.Command, _ []string) error {
	logger := otelzap.Ctx(rc.Ctx)

	a, err := cmd_helpers.OpenAPI(rc, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	s := a.Settings()

	ctx, stop := signal.NotifyContext(rc.Ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.MetricsAddr != "" {
		srv := &http.Server{Addr: s.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", zap.String("addr", s.MetricsAddr), zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Serving metrics", zap.String("addr", s.MetricsAddr))
	}

	if !skipInitial {
		if _, err := a.Sync(ctx); err != nil {
			return cerr.Wrap(err, "initial sync")
		}
	}

	var dirs []string
	if s.StoreBackend == "" || s.StoreBackend == "file" {
		dirs = append(dirs, s.StorePath)
	} else {
		logger.Warn("Store changes are not watched for this backend", zap.String("store", s.StoreBackend))
	}
	dirs = append(dirs, s.TemplateDir)

	w := watcher.New(rc.Log, debounce, resync(a), dirs...)
	return w.Run(ctx)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// resync reloads the inventory and runs a full sync. Per-item failures are
// logged by the sync; the watch keeps going.
func resync(a *api.API) watcher.Handler {
	return func(ctx context.Context, paths []string) error {
		otelzap.Ctx(ctx).Info("Changes detected", zap.Strings("paths", paths))
		if err := a.Reload(ctx); err != nil {
			return err
		}
		_, err := a.Sync(ctx)
		return err
	}
}

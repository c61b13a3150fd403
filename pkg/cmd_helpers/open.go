package cmd_helpers

import (
	"github.com/CodeMonkeyCybersecurity/prov/pkg/api"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/flags"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ConfigFlag names the persistent flag holding the settings file path.
const ConfigFlag = "config"

// LoadSettings reads the settings file named by --config, then the
// environment, then any flag of cmd named after a setting.
func LoadSettings(cmd *cobra.Command) (*config.Settings, error) {
	path, _ := cmd.Flags().GetString(ConfigFlag)
	if path == "" {
		path = config.DefaultPath
	}
	return config.Load(path, cmd.Flags())
}

// OpenAPI loads settings and the inventory for a command. The caller closes
// the returned API.
func OpenAPI(rc *prov_io.RuntimeContext, cmd *cobra.Command) (*api.API, error) {
	s, err := LoadSettings(cmd)
	if err != nil {
		return nil, err
	}
	rc.Log.Debug("Settings loaded",
		zap.String("server", s.Server),
		zap.String("store", s.StoreBackend),
		zap.String("store_path", s.StorePath))
	return api.New(rc.Ctx, s, api.Options{
		Logger: rc.Log,
		DryRun: flags.IsDryRun(cmd),
	})
}

package managers

import (
	"context"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// InTFTPD manages the TFTP root for the in.tftpd server: it installs the
// network boot programs from the bootloader directory. Per-system boot
// configuration is written by the sync compiler, so single system changes
// need nothing from this backend.
type InTFTPD struct {
	*BaseManager
}

func NewInTFTPD(deps Deps) *InTFTPD {
	return &InTFTPD{BaseManager: NewBaseManager("in_tftpd", deps)}
}

func (m *InTFTPD) Kinds() []ServiceKind { return []ServiceKind{KindTFTP} }

func (m *InTFTPD) WriteConfigs(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.deps.Settings
	if s.BootloaderDir == "" {
		return nil
	}
	names, err := m.deps.Files.ListFiles(ctx, s.BootloaderDir)
	if err != nil {
		return prov_err.NewManagerError(m.name, "list "+s.BootloaderDir, err)
	}
	if len(names) == 0 {
		otelzap.Ctx(ctx).Warn("No boot loaders to install", zap.String("dir", s.BootloaderDir))
		return nil
	}
	for _, name := range names {
		src := filepath.Join(s.BootloaderDir, name)
		dst := filepath.Join(s.TFTPBootDir, name)
		if _, err := m.deps.Files.CopyFile(ctx, src, dst, 0o644); err != nil {
			return prov_err.NewManagerError(m.name, "install "+name, err)
		}
	}
	m.logger.Debug("Boot loaders installed", zap.Int("count", len(names)))
	return nil
}

func (m *InTFTPD) RestartService(ctx context.Context) (int, error) {
	return m.restart(ctx, m.deps.Settings.TFTPService, true, false, nil)
}

func (m *InTFTPD) Sync(ctx context.Context) error {
	if err := m.WriteConfigs(ctx); err != nil {
		return err
	}
	_, err := m.RestartService(ctx)
	return err
}

func (m *InTFTPD) SyncSingleSystem(context.Context, *inventory.System) error   { return nil }
func (m *InTFTPD) RemoveSingleSystem(context.Context, *inventory.System) error { return nil }

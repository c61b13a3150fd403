package serializer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/fileops"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const fileExt = ".yaml"

// FileStore keeps each item in <root>/<kind>s/<name>.yaml.
type FileStore struct {
	root  string
	files *fileops.FileSystemOperations
}

func NewFileStore(root string, logger *zap.Logger) *FileStore {
	return &FileStore{root: root, files: fileops.NewFileSystemOperations(logger)}
}

func (s *FileStore) path(kind inventory.Kind, name string) (string, error) {
	if !filepath.IsLocal(name) || strings.ContainsRune(name, filepath.Separator) {
		return "", cerr.Newf("item name %q cannot be stored as a file", name)
	}
	return filepath.Join(s.root, kind.Plural(), name+fileExt), nil
}

func (s *FileStore) SaveItem(ctx context.Context, item inventory.Item) error {
	p, err := s.path(item.Kind(), item.Name())
	if err != nil {
		return err
	}
	data, err := prov_io.MarshalYAML(inventory.ToRecord(item))
	if err != nil {
		return cerr.Wrapf(err, "encode %s", item.Ref())
	}
	if _, err := s.files.WriteFile(ctx, p, data, 0o640); err != nil {
		return cerr.Wrapf(err, "save %s", item.Ref())
	}
	return nil
}

func (s *FileStore) DeleteItem(ctx context.Context, kind inventory.Kind, name string) error {
	p, err := s.path(kind, name)
	if err != nil {
		return err
	}
	return s.files.DeleteFile(ctx, p)
}

// LoadAll reads every item file. A file that does not decode fails the load:
// silently dropping an item would let a later sync delete its artifacts.
func (s *FileStore) LoadAll(ctx context.Context) (*Snapshot, error) {
	logger := otelzap.Ctx(ctx)
	snap := &Snapshot{}
	for _, kind := range inventory.Kinds {
		dir := filepath.Join(s.root, kind.Plural())
		names, err := s.files.ListFiles(ctx, dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if !strings.HasSuffix(name, fileExt) {
				continue
			}
			var rec inventory.Record
			p := filepath.Join(dir, name)
			if err := prov_io.ReadYAML(ctx, p, &rec); err != nil {
				return nil, err
			}
			if rec.Kind == "" {
				rec.Kind = kind
			}
			if rec.Kind != kind {
				return nil, cerr.Newf("%s holds a %s record", p, rec.Kind)
			}
			item, err := inventory.FromRecord(rec)
			if err != nil {
				return nil, cerr.Wrapf(err, "load %s", p)
			}
			snap.add(item)
		}
		logger.Debug("Loaded items", zap.String("kind", string(kind)), zap.String("dir", dir))
	}
	snap.sort()
	return snap, nil
}

func (s *FileStore) Close() error { return nil }

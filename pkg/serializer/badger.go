package serializer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	cerr "github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerConfig configures the Badger backend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory, for tests.
	InMemory bool

	SyncWrites bool

	Logger *zap.Logger

	// GCInterval runs value log GC periodically; zero disables it.
	GCInterval time.Duration
}

func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites: true,
		GCInterval: 10 * time.Minute,
	}
}

func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// BadgerStore keeps each item as a JSON record under "<kind>/<name>".
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
	stop   chan struct{}
	done   chan struct{}
}

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, cerr.New("path is required for a persistent store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, cerr.Wrapf(err, "create store directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, cerr.Wrap(err, "open badger store")
	}
	s := &BadgerStore{db: db, logger: logger, stop: make(chan struct{}), done: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.gcLoop(cfg.GCInterval)
	} else {
		close(s.done)
	}
	return s, nil
}

func key(kind inventory.Kind, name string) []byte {
	return []byte(fmt.Sprintf("%s/%s", kind, name))
}

func (s *BadgerStore) SaveItem(_ context.Context, item inventory.Item) error {
	data, err := json.Marshal(inventory.ToRecord(item))
	if err != nil {
		return cerr.Wrapf(err, "encode %s", item.Ref())
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(item.Kind(), item.Name()), data)
	}); err != nil {
		return cerr.Wrapf(err, "save %s", item.Ref())
	}
	return nil
}

func (s *BadgerStore) DeleteItem(_ context.Context, kind inventory.Kind, name string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(kind, name))
	}); err != nil {
		return cerr.Wrapf(err, "delete %s/%s", kind, name)
	}
	return nil
}

func (s *BadgerStore) LoadAll(_ context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.View(func(txn *badger.Txn) error {
		for _, kind := range inventory.Kinds {
			prefix := []byte(string(kind) + "/")
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var rec inventory.Record
				k := string(it.Item().Key())
				if err := it.Item().Value(func(v []byte) error {
					return json.Unmarshal(v, &rec)
				}); err != nil {
					it.Close()
					return cerr.Wrapf(err, "decode %s", k)
				}
				item, err := inventory.FromRecord(rec)
				if err != nil {
					it.Close()
					return cerr.Wrapf(err, "load %s", k)
				}
				snap.add(item)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	snap.sort()
	return snap, nil
}

// Keys lists every stored key, sorted.
func (s *BadgerStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

func (s *BadgerStore) gcLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func (s *BadgerStore) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
	}
	close(s.stop)
	<-s.done
	return s.db.Close()
}

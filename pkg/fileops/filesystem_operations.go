// Package fileops writes generated artifacts. Every write is atomic (temp
// file in the target directory, then rename) and a write whose content
// already matches the target leaves the file untouched, so repeated syncs
// produce no churn.
package fileops

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// FileSystemOperations provides filesystem operations
type FileSystemOperations struct {
	logger *zap.Logger
}

func NewFileSystemOperations(logger *zap.Logger) *FileSystemOperations {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemOperations{
		logger: logger.Named("filesystem"),
	}
}

// ReadFile reads the entire contents of a file
func (f *FileSystemOperations) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to read file %s", path)
	}
	return data, nil
}

// WriteFile atomically replaces path with data. changed is false when the
// file already held exactly data.
func (f *FileSystemOperations) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) (changed bool, err error) {
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, data) {
		f.logger.Debug("File unchanged", zap.String("path", path))
		return false, nil
	}
	if err := f.writeAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return false, err
	}
	f.logger.Debug("File written",
		zap.String("path", path),
		zap.Int("size", len(data)))
	return true, nil
}

// CopyFile atomically copies src to dst. changed is false when dst already
// had the same content.
func (f *FileSystemOperations) CopyFile(ctx context.Context, src, dst string, perm os.FileMode) (changed bool, err error) {
	same, err := sameContent(src, dst)
	if err != nil {
		return false, err
	}
	if same {
		f.logger.Debug("Copy target unchanged", zap.String("src", src), zap.String("dst", dst))
		return false, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return false, cerr.Wrapf(err, "failed to open source file %s", src)
	}
	defer func() {
		if err := in.Close(); err != nil {
			f.logger.Warn("Failed to close source file", zap.Error(err))
		}
	}()

	if err := f.writeAtomic(dst, perm, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return false, cerr.Wrapf(err, "copy %s", src)
	}
	f.logger.Debug("File copied", zap.String("src", src), zap.String("dst", dst))
	return true, nil
}

func (f *FileSystemOperations) writeAtomic(path string, perm os.FileMode, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerr.Wrapf(err, "failed to create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return cerr.Wrapf(err, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			f.logger.Warn("Failed to remove temp file", zap.String("path", tmpName), zap.Error(rmErr))
		}
	}

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		_ = tmp.Close()
		cleanup()
		return cerr.Wrapf(err, "failed to write %s", path)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		cleanup()
		return cerr.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return cerr.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return cerr.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return cerr.Wrapf(err, "failed to rename %s to %s", tmpName, path)
	}
	return nil
}

// DeleteFile removes a file. A missing file is not an error.
func (f *FileSystemOperations) DeleteFile(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cerr.Wrapf(err, "failed to delete file %s", path)
	}
	f.logger.Debug("File deleted", zap.String("path", path))
	return nil
}

// RemoveTree removes path and everything below it.
func (f *FileSystemOperations) RemoveTree(ctx context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return cerr.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

// CleanTree empties dir, creating it if needed. Entries whose base name is
// listed in keep survive.
func (f *FileSystemOperations) CleanTree(ctx context.Context, dir string, keep ...string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerr.Wrapf(err, "failed to create directory %s", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return cerr.Wrapf(err, "failed to list %s", dir)
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	removed := 0
	for _, e := range entries {
		if kept[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return cerr.Wrapf(err, "failed to remove %s", filepath.Join(dir, e.Name()))
		}
		removed++
	}
	f.logger.Debug("Cleaned directory", zap.String("dir", dir), zap.Int("removed", removed))
	return nil
}

// Exists checks if a file or directory exists
func (f *FileSystemOperations) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, cerr.Wrapf(err, "failed to check if path exists %s", path)
}

// ListFiles returns the regular file names in dir, sorted. A missing
// directory yields no names.
func (f *FileSystemOperations) ListFiles(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to list %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// sameContent reports whether b exists and holds the same bytes as a.
func sameContent(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, cerr.Wrapf(err, "failed to stat source file %s", a)
	}
	bi, err := os.Stat(b)
	if err != nil || ai.Size() != bi.Size() || !bi.Mode().IsRegular() {
		return false, nil
	}
	fa, err := os.Open(a)
	if err != nil {
		return false, cerr.Wrapf(err, "failed to open source file %s", a)
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, nil
	}
	defer fb.Close()

	ra, rb := bufio.NewReader(fa), bufio.NewReader(fb)
	bufA, bufB := make([]byte, 32*1024), make([]byte, 32*1024)
	for {
		na, errA := io.ReadFull(ra, bufA)
		nb, errB := io.ReadFull(rb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF || errA == io.ErrUnexpectedEOF {
			return errB == io.EOF || errB == io.ErrUnexpectedEOF, nil
		}
		if errA != nil {
			return false, cerr.Wrapf(errA, "failed to read %s", a)
		}
		if errB != nil {
			return false, nil
		}
	}
}

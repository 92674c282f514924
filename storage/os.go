package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/stream"
)

// OSStorage stores files in one real filesystem directory. Its locks are
// lock files created with O_EXCL, which makes them valid across separate
// OS processes sharing the directory.
type OSStorage struct {
	dir    string
	closed bool
}

var _ Storage = (*OSStorage)(nil)

// NewOSStorage creates a storage over the given directory. The directory
// is not touched until Create is called.
func NewOSStorage(dir string) *OSStorage {
	return &OSStorage{dir: dir}
}

// Dir returns the backing directory path.
func (st *OSStorage) Dir() string {
	return st.dir
}

func (st *OSStorage) path(name string) string {
	return filepath.Join(st.dir, name)
}

func (st *OSStorage) Create() error {
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %q: %v", errs.ErrStorage, st.dir, err)
	}

	return nil
}

func (st *OSStorage) Destroy() error {
	if err := os.RemoveAll(st.dir); err != nil {
		return fmt.Errorf("%w: destroying %q: %v", errs.ErrStorage, st.dir, err)
	}

	return nil
}

func (st *OSStorage) CreateFile(name string) (*Output, error) {
	f, err := os.Create(st.path(name))
	if err != nil {
		return nil, fmt.Errorf("%w: creating file %q: %v", errs.ErrStorage, name, err)
	}

	return NewOutput(name, stream.NewWriter(f), f, nil), nil
}

func (st *OSStorage) OpenFile(name string) (*Input, error) {
	f, err := os.Open(st.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
		}

		return nil, fmt.Errorf("%w: opening file %q: %v", errs.ErrStorage, name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("%w: stat %q: %v", errs.ErrStorage, name, err)
	}

	return NewFileInput(name, f, info.Size()), nil
}

func (st *OSStorage) List() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %q: %v", errs.ErrStorage, st.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	return names, nil
}

func (st *OSStorage) FileExists(name string) bool {
	info, err := os.Stat(st.path(name))

	return err == nil && !info.IsDir()
}

func (st *OSStorage) FileLength(name string) (int64, error) {
	info, err := os.Stat(st.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
		}

		return 0, fmt.Errorf("%w: stat %q: %v", errs.ErrStorage, name, err)
	}

	return info.Size(), nil
}

func (st *OSStorage) FileModified(name string) (time.Time, error) {
	info, err := os.Stat(st.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
		}

		return time.Time{}, fmt.Errorf("%w: stat %q: %v", errs.ErrStorage, name, err)
	}

	return info.ModTime(), nil
}

func (st *OSStorage) DeleteFile(name string) error {
	if err := os.Remove(st.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
		}

		return fmt.Errorf("%w: deleting %q: %v", errs.ErrStorage, name, err)
	}

	return nil
}

func (st *OSStorage) RenameFile(oldName, newName string, safe bool) error {
	if safe && st.FileExists(newName) {
		return fmt.Errorf("%w: %q", errs.ErrFileExists, newName)
	}
	if err := os.Rename(st.path(oldName), st.path(newName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", errs.ErrUnknownFile, oldName)
		}

		return fmt.Errorf("%w: renaming %q to %q: %v", errs.ErrStorage, oldName, newName, err)
	}

	return nil
}

func (st *OSStorage) Lock(name string) Lock {
	return &fileLock{path: st.path(name)}
}

func (st *OSStorage) TempStorage(name string) (Storage, error) {
	if name == "" {
		name = "tmp"
	}
	tmp := NewOSStorage(filepath.Join(st.dir, name))
	if err := tmp.Create(); err != nil {
		return nil, err
	}

	return tmp, nil
}

func (st *OSStorage) Optimize() error {
	return nil
}

func (st *OSStorage) ReadOnly() bool {
	return false
}

func (st *OSStorage) Close() error {
	if st.closed {
		return fmt.Errorf("%w: storage %q", errs.ErrClosed, st.dir)
	}
	st.closed = true

	return nil
}

// fileLock is a cross-process lock backed by exclusive creation of a lock
// file. The lock is held while the file exists.
type fileLock struct {
	path string
	f    *os.File
}

func (l *fileLock) Acquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}

		return false, fmt.Errorf("%w: lock %q: %v", errs.ErrLockFailed, l.path, err)
	}
	l.f = f

	return true, nil
}

func (l *fileLock) Release() error {
	if l.f == nil {
		return fmt.Errorf("%w: lock %q not held", errs.ErrLockFailed, l.path)
	}
	l.f.Close()
	l.f = nil
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("%w: releasing lock %q: %v", errs.ErrLockFailed, l.path, err)
	}

	return nil
}

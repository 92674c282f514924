package storage

import (
	"fmt"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/internal/hash"
	"github.com/quiversearch/quiver/stream"
)

// maxMapBytes is the largest compound file we will try to map. Anything
// bigger falls back to bounded sub-readers immediately.
const maxMapBytes = 1 << 40

// CompoundStorage exposes the sub-files packed inside one compound file
// as a read-only Storage.
//
// On open it reads the trailing directory, then tries to establish a
// single memory-mapped read-only view of the file; if the platform
// refuses the mapping (no real file descriptor behind the storage, size
// out of range, address space exhausted) it silently falls back to
// creating bounded position-relative sub-readers per request. OpenFile is
// zero-copy in the mapped case.
//
// Close releases the mapping exactly once; closing twice is a fault, not
// a no-op, since that would mask leaked mapped regions.
type CompoundStorage struct {
	name    string
	source  *Input
	mapped  mmap.MMap // nil when the fallback path is active
	entries map[string]dirEntry
	options map[string]any
	closed  bool
}

var _ Storage = (*CompoundStorage)(nil)

// OpenCompound opens the named compound file inside st.
func OpenCompound(st Storage, name string) (*CompoundStorage, error) {
	in, err := st.OpenFile(name)
	if err != nil {
		return nil, err
	}

	cs, err := openCompoundInput(name, in)
	if err != nil {
		in.Close() //nolint:errcheck

		return nil, err
	}

	return cs, nil
}

func openCompoundInput(name string, in *Input) (*CompoundStorage, error) {
	if in.Size() < compoundHeaderSize {
		return nil, fmt.Errorf("%w: compound file %q is %d bytes", errs.ErrCorrupt, name, in.Size())
	}
	dirOffset, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	dirLength, err := in.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int64(dirOffset)+int64(dirLength) > in.Size() { //nolint:gosec
		return nil, fmt.Errorf("%w: compound directory outside file bounds", errs.ErrCorrupt)
	}
	if dirLength < 8 {
		return nil, fmt.Errorf("%w: compound directory of %d bytes", errs.ErrCorrupt, dirLength)
	}

	// The directory region is small; read it whole to verify its digest
	// before trusting any offsets in it.
	region, err := in.Subset(int64(dirOffset), int64(dirLength)) //nolint:gosec
	if err != nil {
		return nil, err
	}
	raw := make([]byte, dirLength)
	if err := region.ReadBytes(raw); err != nil {
		return nil, err
	}
	body, digest := raw[:len(raw)-8], raw[len(raw)-8:]
	want := stream.NewBytesReader(digest)
	wantSum, err := want.ReadUint64()
	if err != nil {
		return nil, err
	}
	if hash.Sum64(body) != wantSum {
		return nil, fmt.Errorf("%w: compound directory digest", errs.ErrChecksum)
	}

	entries, options, err := decodeDirectory(stream.NewBytesReader(body))
	if err != nil {
		return nil, err
	}
	byName := make(map[string]dirEntry, len(entries))
	for _, e := range entries {
		byName[e.name] = e
	}

	cs := &CompoundStorage{
		name:    name,
		source:  in,
		entries: byName,
		options: options,
	}
	cs.tryMap()

	return cs, nil
}

// tryMap attempts the single read-only mapping. Every failure mode is a
// silent fallback, never an open error.
func (cs *CompoundStorage) tryMap() {
	f := cs.source.OSFile()
	if f == nil || cs.source.Size() == 0 || cs.source.Size() > maxMapBytes {
		return
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return
	}
	cs.mapped = m
}

// Mapped reports whether the zero-copy mapped view is active.
func (cs *CompoundStorage) Mapped() bool {
	return cs.mapped != nil
}

// Options returns the option bag stored after the directory.
func (cs *CompoundStorage) Options() map[string]any {
	return cs.options
}

// OpenFile returns the named sub-stream as a bounded view: a zero-copy
// slice of the mapping when one is active, else a position-bounded
// sub-reader over the original handle.
func (cs *CompoundStorage) OpenFile(name string) (*Input, error) {
	if cs.closed {
		return nil, fmt.Errorf("%w: compound storage %q", errs.ErrClosed, cs.name)
	}
	e, ok := cs.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in compound %q", errs.ErrUnknownFile, name, cs.name)
	}

	if cs.mapped != nil {
		view := cs.mapped[e.offset : e.offset+e.length]

		return NewInput(name, stream.NewBytesReader(view), nil), nil
	}

	sub, err := cs.source.Subset(e.offset, e.length)
	if err != nil {
		return nil, err
	}

	return NewInput(name, sub, nil), nil
}

func (cs *CompoundStorage) List() ([]string, error) {
	names := make([]string, 0, len(cs.entries))
	for name := range cs.entries {
		names = append(names, name)
	}

	return names, nil
}

func (cs *CompoundStorage) FileExists(name string) bool {
	_, ok := cs.entries[name]

	return ok
}

func (cs *CompoundStorage) FileLength(name string) (int64, error) {
	e, ok := cs.entries[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
	}

	return e.length, nil
}

func (cs *CompoundStorage) FileModified(name string) (time.Time, error) {
	e, ok := cs.entries[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
	}

	return e.modified, nil
}

func (cs *CompoundStorage) Create() error {
	return fmt.Errorf("%w: create", errs.ErrReadOnly)
}

func (cs *CompoundStorage) Destroy() error {
	return fmt.Errorf("%w: destroy", errs.ErrReadOnly)
}

func (cs *CompoundStorage) CreateFile(name string) (*Output, error) {
	return nil, fmt.Errorf("%w: create file %q", errs.ErrReadOnly, name)
}

func (cs *CompoundStorage) DeleteFile(name string) error {
	return fmt.Errorf("%w: delete file %q", errs.ErrReadOnly, name)
}

func (cs *CompoundStorage) RenameFile(oldName, newName string, safe bool) error {
	return fmt.Errorf("%w: rename %q", errs.ErrReadOnly, oldName)
}

func (cs *CompoundStorage) Lock(name string) Lock {
	return failedLock{name: name}
}

func (cs *CompoundStorage) TempStorage(string) (Storage, error) {
	return NewRAMStorage(), nil
}

func (cs *CompoundStorage) Optimize() error {
	return nil
}

func (cs *CompoundStorage) ReadOnly() bool {
	return true
}

// Close releases the mapping (when active) and the underlying handle,
// exactly once.
func (cs *CompoundStorage) Close() error {
	if cs.closed {
		return fmt.Errorf("%w: compound storage %q", errs.ErrClosed, cs.name)
	}
	cs.closed = true

	if cs.mapped != nil {
		if err := cs.mapped.Unmap(); err != nil {
			return fmt.Errorf("%w: unmapping %q: %v", errs.ErrStorage, cs.name, err)
		}
		cs.mapped = nil
	}

	return cs.source.Close()
}

// failedLock is handed out by read-only storages; locking a committed
// compound file makes no sense.
type failedLock struct {
	name string
}

func (l failedLock) Acquire() (bool, error) {
	return false, fmt.Errorf("%w: lock %q", errs.ErrReadOnly, l.name)
}

func (l failedLock) Release() error {
	return fmt.Errorf("%w: lock %q", errs.ErrReadOnly, l.name)
}

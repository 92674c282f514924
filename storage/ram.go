package storage

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/stream"
)

// RAMStorage keeps the whole namespace in process memory. It is the
// backing store for transient indexes and merge staging; nothing survives
// the process. Locks are process-local mutexes.
//
// RAMStorage is safe for concurrent use: the namespace map is guarded by
// one mutex, and opened Inputs read immutable snapshots.
type RAMStorage struct {
	mu     sync.Mutex
	files  map[string]*ramFile
	locks  map[string]*sync.Mutex
	closed bool
}

type ramFile struct {
	data     []byte
	modified time.Time
}

var _ Storage = (*RAMStorage)(nil)

// NewRAMStorage creates an empty in-memory storage. Unlike filesystem
// backends it is usable immediately; Create is a no-op.
func NewRAMStorage() *RAMStorage {
	return &RAMStorage{
		files: make(map[string]*ramFile),
		locks: make(map[string]*sync.Mutex),
	}
}

func (st *RAMStorage) Create() error {
	return nil
}

func (st *RAMStorage) Destroy() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.files = make(map[string]*ramFile)

	return nil
}

// CreateFile returns a handle that buffers writes in memory. The file
// becomes visible in the namespace when the handle is closed; a crash or a
// dropped handle leaves the namespace untouched.
func (st *RAMStorage) CreateFile(name string) (*Output, error) {
	mw := newMemWriter()
	commit := func() error {
		st.mu.Lock()
		defer st.mu.Unlock()
		st.files[name] = &ramFile{data: mw.bytes(), modified: time.Now()}

		return nil
	}

	return NewOutput(name, stream.NewWriter(mw), nil, commit), nil
}

func (st *RAMStorage) OpenFile(name string) (*Input, error) {
	st.mu.Lock()
	f, ok := st.files[name]
	st.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
	}

	return NewInput(name, stream.NewBytesReader(f.data), nil), nil
}

func (st *RAMStorage) List() ([]string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	names := make([]string, 0, len(st.files))
	for name := range st.files {
		names = append(names, name)
	}

	return names, nil
}

func (st *RAMStorage) FileExists(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.files[name]

	return ok
}

func (st *RAMStorage) FileLength(name string) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	f, ok := st.files[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
	}

	return int64(len(f.data)), nil
}

func (st *RAMStorage) FileModified(name string) (time.Time, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	f, ok := st.files[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
	}

	return f.modified, nil
}

func (st *RAMStorage) DeleteFile(name string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.files[name]; !ok {
		return fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
	}
	delete(st.files, name)

	return nil
}

func (st *RAMStorage) RenameFile(oldName, newName string, safe bool) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	f, ok := st.files[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", errs.ErrUnknownFile, oldName)
	}
	if _, exists := st.files[newName]; exists && safe {
		return fmt.Errorf("%w: %q", errs.ErrFileExists, newName)
	}
	delete(st.files, oldName)
	st.files[newName] = f

	return nil
}

func (st *RAMStorage) Lock(name string) Lock {
	st.mu.Lock()
	defer st.mu.Unlock()
	mu, ok := st.locks[name]
	if !ok {
		mu = &sync.Mutex{}
		st.locks[name] = mu
	}

	return &ramLock{name: name, mu: mu}
}

func (st *RAMStorage) TempStorage(string) (Storage, error) {
	return NewRAMStorage(), nil
}

func (st *RAMStorage) Optimize() error {
	return nil
}

func (st *RAMStorage) ReadOnly() bool {
	return false
}

func (st *RAMStorage) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return fmt.Errorf("%w: RAM storage", errs.ErrClosed)
	}
	st.closed = true

	return nil
}

// ramLock is a process-local lock. Acquire never blocks; it reports false
// when the name is already held.
type ramLock struct {
	name string
	mu   *sync.Mutex
	held bool
}

func (l *ramLock) Acquire() (bool, error) {
	if l.held {
		return false, fmt.Errorf("%w: lock %q is not reentrant", errs.ErrLockFailed, l.name)
	}
	if !l.mu.TryLock() {
		return false, nil
	}
	l.held = true

	return true, nil
}

func (l *ramLock) Release() error {
	if !l.held {
		return fmt.Errorf("%w: lock %q not held", errs.ErrLockFailed, l.name)
	}
	l.held = false
	l.mu.Unlock()

	return nil
}

// memWriter is a seekable in-memory write buffer, so RAM-backed files
// support the same back-patching the compound assembler does on disk.
type memWriter struct {
	buf []byte
	pos int
}

var _ io.WriteSeeker = (*memWriter)(nil)

func newMemWriter() *memWriter {
	return &memWriter{}
}

func (m *memWriter) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, max(end, 2*cap(m.buf)))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end

	return len(p), nil
}

func (m *memWriter) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(m.pos) + offset
	case io.SeekEnd:
		pos = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("%w: bad seek whence %d", errs.ErrStorage, whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("%w: negative seek position", errs.ErrStorage)
	}
	m.pos = int(pos)

	return pos, nil
}

func (m *memWriter) bytes() []byte {
	return m.buf
}

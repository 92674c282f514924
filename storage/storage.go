package storage

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/internal/pool"
	"github.com/quiversearch/quiver/stream"
)

// Storage is a flat namespace mapping file names to byte streams.
//
// Names are unique within one storage instance and List is the
// authoritative enumeration. A storage is created explicitly with Create
// and destroyed explicitly with Destroy; individual files are created,
// opened (read-only by convention for index readers), renamed, or deleted.
type Storage interface {
	// Create prepares the backing resource (directory, database file, ...).
	// It is idempotent.
	Create() error

	// Destroy removes the backing resource and everything in it.
	Destroy() error

	// CreateFile creates a named file and returns a writable handle.
	// An existing file with the same name is truncated.
	CreateFile(name string) (*Output, error)

	// OpenFile opens a named file for reading. A missing name fails with
	// errs.ErrUnknownFile.
	OpenFile(name string) (*Input, error)

	// List returns the names of all files in the namespace.
	List() ([]string, error)

	// FileExists reports whether the named file exists.
	FileExists(name string) bool

	// FileLength returns the length of the named file in bytes.
	FileLength(name string) (int64, error)

	// FileModified returns the last-modified time of the named file.
	FileModified(name string) (time.Time, error)

	// DeleteFile removes the named file.
	DeleteFile(name string) error

	// RenameFile renames a file. When safe is true the rename fails with
	// errs.ErrFileExists if the destination name is taken; otherwise the
	// destination is overwritten.
	RenameFile(oldName, newName string, safe bool) error

	// Lock returns a named mutual-exclusion handle scoped to this storage.
	// Filesystem backends provide locks valid across OS processes;
	// in-memory backends lock within the process only.
	Lock(name string) Lock

	// TempStorage returns a nested storage scoped for transient files, for
	// example merge staging. The caller destroys it when done.
	TempStorage(name string) (Storage, error)

	// Optimize lets the backend compact itself. Most backends treat it as
	// a no-op.
	Optimize() error

	// ReadOnly reports whether mutating operations are rejected.
	ReadOnly() bool

	// Close releases the storage. Closing twice fails with errs.ErrClosed.
	Close() error
}

// Lock is a named, non-reentrant mutual-exclusion handle.
type Lock interface {
	// Acquire attempts to obtain the lock, returning false without error
	// if it is held elsewhere.
	Acquire() (bool, error)

	// Release releases the lock. Releasing an unheld lock is an error.
	Release() error
}

// WithLock acquires l, runs fn, and releases l on every exit path
// including the error one.
func WithLock(l Lock, fn func() error) error {
	ok, err := l.Acquire()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w", errs.ErrLockFailed)
	}
	defer l.Release() //nolint:errcheck

	return fn()
}

// Output is a writable file handle exposing typed binary writes. It is
// returned by Storage.CreateFile and is not safe for concurrent use.
type Output struct {
	*stream.Writer

	name   string
	closer io.Closer // nil when closing is a pure bookkeeping operation
	onDone func() error
	closed bool
}

// NewOutput wraps a stream.Writer as a storage file handle. onDone, if
// non-nil, runs after the underlying closer succeeds; backends use it to
// commit buffered contents.
func NewOutput(name string, w *stream.Writer, closer io.Closer, onDone func() error) *Output {
	return &Output{Writer: w, name: name, closer: closer, onDone: onDone}
}

// Name returns the file name this handle writes to.
func (o *Output) Name() string {
	return o.name
}

// Close flushes and releases the handle. A second Close fails with
// errs.ErrClosed.
func (o *Output) Close() error {
	if o.closed {
		return fmt.Errorf("%w: output %q", errs.ErrClosed, o.name)
	}
	o.closed = true

	if o.closer != nil {
		if err := o.closer.Close(); err != nil {
			return fmt.Errorf("%w: closing %q: %v", errs.ErrStorage, o.name, err)
		}
	}
	if o.onDone != nil {
		return o.onDone()
	}

	return nil
}

// Input is a readable file handle exposing typed binary reads. It is
// returned by Storage.OpenFile. Independent Inputs over the same file may
// be used concurrently; a single Input may not.
type Input struct {
	*stream.Reader

	name   string
	closer io.Closer // nil for in-memory sources
	file   *os.File  // non-nil only for real-file-backed inputs
	closed bool
}

// NewInput wraps a stream.Reader as a storage file handle.
func NewInput(name string, r *stream.Reader, closer io.Closer) *Input {
	return &Input{Reader: r, name: name, closer: closer}
}

// NewFileInput wraps an open OS file as a storage file handle, retaining
// the descriptor so callers like CompoundStorage can attempt to
// memory-map it.
func NewFileInput(name string, f *os.File, size int64) *Input {
	return &Input{Reader: stream.NewReader(f, size), name: name, closer: f, file: f}
}

// OSFile returns the underlying descriptor for real-file-backed inputs,
// or nil when there is none to map.
func (in *Input) OSFile() *os.File {
	return in.file
}

// Name returns the file name this handle reads from.
func (in *Input) Name() string {
	return in.name
}

// Close releases the handle. A second Close fails with errs.ErrClosed.
// Subset readers obtained from this handle must not be used afterwards.
func (in *Input) Close() error {
	if in.closed {
		return fmt.Errorf("%w: input %q", errs.ErrClosed, in.name)
	}
	in.closed = true

	if in.closer != nil {
		if err := in.closer.Close(); err != nil {
			return fmt.Errorf("%w: closing %q: %v", errs.ErrStorage, in.name, err)
		}
	}

	return nil
}

// ReadAll reads the entire remaining window of the file.
func (in *Input) ReadAll() ([]byte, error) {
	p := make([]byte, in.Remaining())
	if err := in.ReadBytes(p); err != nil {
		return nil, err
	}

	return p, nil
}

// ReadAllInto reads the entire remaining window into a pooled staging
// buffer and returns the filled slice, which aliases buf and is only
// valid until buf's next reset or reuse.
func (in *Input) ReadAllInto(buf *pool.ByteBuffer) ([]byte, error) {
	n := int(in.Remaining())
	buf.Reset()
	buf.Grow(n)
	p := buf.B[:n]
	if err := in.ReadBytes(p); err != nil {
		return nil, err
	}
	buf.B = p

	return p, nil
}

// readOnly wraps a Storage and fails every mutating operation with
// errs.ErrReadOnly, performing no observable mutation.
type readOnly struct {
	Storage
}

// AsReadOnly wraps st so that every mutating call fails with
// errs.ErrReadOnly. List, open and stat operations pass through.
func AsReadOnly(st Storage) Storage {
	return &readOnly{Storage: st}
}

func (r *readOnly) Create() error {
	return fmt.Errorf("%w: create", errs.ErrReadOnly)
}

func (r *readOnly) Destroy() error {
	return fmt.Errorf("%w: destroy", errs.ErrReadOnly)
}

func (r *readOnly) CreateFile(name string) (*Output, error) {
	return nil, fmt.Errorf("%w: create file %q", errs.ErrReadOnly, name)
}

func (r *readOnly) DeleteFile(name string) error {
	return fmt.Errorf("%w: delete file %q", errs.ErrReadOnly, name)
}

func (r *readOnly) RenameFile(oldName, newName string, safe bool) error {
	return fmt.Errorf("%w: rename %q to %q", errs.ErrReadOnly, oldName, newName)
}

func (r *readOnly) Optimize() error {
	return fmt.Errorf("%w: optimize", errs.ErrReadOnly)
}

func (r *readOnly) ReadOnly() bool {
	return true
}

// Package errs defines the sentinel errors shared across quiver packages.
//
// All errors are wrapped at call sites with fmt.Errorf("%w: ...") so callers
// can match on the sentinel with errors.Is while still getting context in the
// message.
package errs

import "errors"

// Storage errors.
var (
	// ErrStorage is the generic storage fault. More specific storage errors
	// wrap it so errors.Is(err, ErrStorage) matches any of them.
	ErrStorage = errors.New("storage error")

	// ErrReadOnly is returned when a mutating operation is attempted on a
	// read-only storage.
	ErrReadOnly = errors.New("storage is read-only")

	// ErrUnknownFile is returned when a named file does not exist in a
	// storage namespace.
	ErrUnknownFile = errors.New("unknown file")

	// ErrFileExists is returned by a safe rename when the destination name
	// is already taken.
	ErrFileExists = errors.New("file already exists")

	// ErrLockFailed is returned when a named lock cannot be obtained.
	ErrLockFailed = errors.New("unable to obtain lock")

	// ErrClosed is returned when an object is used after Close, or closed a
	// second time. Double close is a usage fault, not a no-op: silently
	// ignoring it would mask leaked mapped regions.
	ErrClosed = errors.New("already closed")
)

// Writer state-machine errors.
var (
	// ErrWriterState is returned when a writer method is called outside its
	// required state sequence (AddField outside a document, StartDoc while a
	// document is open, StartTerm without StartField, ...).
	ErrWriterState = errors.New("writer method called out of sequence")

	// ErrOutOfOrder is returned when a FieldWriter receives fields or terms
	// that are not in ascending sorted-byte order.
	ErrOutOfOrder = errors.New("fields/terms out of order")
)

// Lookup errors.
var (
	// ErrTermNotFound is returned when a (field, term) pair is absent from a
	// terms reader.
	ErrTermNotFound = errors.New("term not found")

	// ErrInvalidCursor is returned when a term cursor is used while
	// exhausted or uninitialized.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrNoColumn is returned when a column is requested for a field that
	// has none.
	ErrNoColumn = errors.New("no column for field")

	// ErrNoVector is returned when a term vector is requested for a
	// document/field pair that has none.
	ErrNoVector = errors.New("no vector")
)

// Capability errors.
var (
	// ErrUnsupported is returned when a codec or reader is asked for a
	// capability it does not implement.
	ErrUnsupported = errors.New("unsupported feature")
)

// Format errors.
var (
	// ErrBadSegmentName is returned when a file name does not match the
	// segment filename grammar.
	ErrBadSegmentName = errors.New("malformed segment file name")

	// ErrBadMagic is returned when a file's magic tag or version is not
	// recognized.
	ErrBadMagic = errors.New("invalid magic number or version")

	// ErrChecksum is returned when a stored digest does not match the bytes
	// that were read.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrCorrupt is returned when an on-disk structure cannot be decoded.
	ErrCorrupt = errors.New("corrupt data")
)

// Package storage provides quiver's virtual file namespace: a flat mapping
// of names to byte streams with create/open/list/delete/rename/lock
// operations, plus the concrete backends the engine runs on.
//
// Backends:
//   - OSStorage: a real directory on the filesystem, with cross-process
//     lock files.
//   - RAMStorage: an in-process map, with process-local locks.
//   - BoltStorage: an embedded Bolt database file holding the namespace in
//     a single bucket.
//   - OverlayStorage: a read-only primary merged with a writable secondary.
//   - CompoundStorage: a read-only view over one compound file produced by
//     the CompoundWriter assembler.
//
// Any backend can be made read-only with ReadOnly, which fails every
// mutating call with errs.ErrReadOnly instead of a generic I/O error.
package storage

// Package stream implements quiver's typed binary I/O layer.
//
// A Writer wraps any io.Writer (seekable or not) and a Reader wraps any
// io.ReaderAt, exposing fixed-width integer and float primitives in quiver's
// canonical byte order (little-endian, independent of the host), LEB128
// unsigned varints with a zig-zag signed variant, length-prefixed byte
// strings, homogeneous fixed-width array blocks, and a small versioned
// tag-length-value codec for metadata maps (used only for directories and
// option bags, never for hot-path postings).
//
// Checksummed variants accumulate a running CRC32 over every byte written or
// read and reject seeking, since a checksum is only meaningful for
// sequential single-pass access.
//
// Readers support Subset(offset, length), which returns a new Reader scoped
// to a byte range of the same backing source without copying. A subset must
// not outlive its parent's open lifetime; closing the parent first and then
// using the child is a misuse, not a supported pattern.
package stream

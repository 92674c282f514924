// Package codec defines the pluggable on-disk format layer. A Codec
// bundles the writer and reader roles that move documents and inverted
// terms between the engine and a storage backend, and a Segment is the
// codec-owned handle for one immutable unit of index data.
//
// Codec implementations register themselves by name so segments written
// by one process can be reopened by another that links the same codec
// package. The memory codec (codec/memcodec) and the line-oriented debug
// codec (codec/plaintext) are the two built-in implementations.
package codec

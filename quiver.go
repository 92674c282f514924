// Package quiver is a segment-based storage engine for full-text
// indexes. It provides the layers below query parsing and scoring: a
// binary stream codec, a virtual file storage abstraction with
// directory, in-memory, overlay, and Bolt backends, a compound-file
// assembler, pluggable segment codecs, multi-segment composed readers,
// and Levenshtein-automaton fuzzy term matching.
//
// Codecs self-register by name, so importing a codec package is enough
// to make it resolvable through codec.Lookup. This package imports the
// built-in memory and plaintext codecs for its users.
package quiver

import (
	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/codec/memcodec"
	"github.com/quiversearch/quiver/codec/plaintext"
	"github.com/quiversearch/quiver/storage"
)

// OpenRAM creates a ready-to-use transient storage.
func OpenRAM() *storage.RAMStorage {
	st := storage.NewRAMStorage()
	st.Create() //nolint:errcheck // creating a fresh RAM storage cannot fail

	return st
}

// OpenDir opens directory-backed storage at path, creating the
// directory when absent.
func OpenDir(path string) (*storage.OSStorage, error) {
	st := storage.NewOSStorage(path)
	if err := st.Create(); err != nil {
		return nil, err
	}

	return st, nil
}

// MemoryCodec returns the process-wide in-memory codec.
func MemoryCodec() codec.Codec {
	return memcodec.Shared()
}

// PlaintextCodec returns the line-oriented debugging codec.
func PlaintextCodec() codec.Codec {
	return plaintext.Codec{}
}

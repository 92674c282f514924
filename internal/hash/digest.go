package hash

import "github.com/cespare/xxhash/v2"

// Sum64 computes the xxHash64 of the given bytes. Used as the integrity
// digest over compound-file directories.
func Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}
